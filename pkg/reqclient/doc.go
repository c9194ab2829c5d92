// Package reqclient provides the primary entry point for constructing a
// reqconf.Client from configuration.
//
// It layers the HTTP transport, data-source resolution (a static table and an
// optional NATS key-value bucket), and the cross-cutting interceptors enabled
// in the configuration on top of the reqconf package. Most applications build a
// client here, then request pre-seeded builders from it by endpoint key.
//
// Quick start
//
//	import (
//	  "context"
//	  "log"
//	  "net/http"
//
//	  "github.com/fivetwenty-io/reqconf/pkg/reqclient"
//	  "github.com/fivetwenty-io/reqconf/pkg/reqconf"
//	)
//
//	func example() {
//	  ctx := context.Background()
//
//	  // Minimal: a base URL and the endpoints to call.
//	  cli, err := reqclient.NewWithBaseURL(ctx, "https://api.example.com", reqconf.Endpoint{
//	    Key:    "user.getDetails",
//	    Method: http.MethodGet,
//	    Path:   []string{"users"},
//	  })
//	  if err != nil { log.Fatal(err) }
//
//	  // Or everything from $HOME/.reqconf/config.yml and REQCONF_* variables:
//	  cli, err = reqclient.NewFromFile(ctx, "")
//	  if err != nil { log.Fatal(err) }
//	  defer cli.Close()
//
//	  resp, err := cli.Request(ctx, "user.getDetails", "42").
//	    AddHeaders(map[string]string{"Authority": "token"}).
//	    Execute(ctx)
//	  if err != nil { log.Fatal(err) }
//	  _ = resp
//	}
//
// # Data sources
//
// Sources map an endpoint key or a dotted prefix of one ("user" covers
// "user.getDetails") to a base URL. When a NATS bucket is configured it is
// consulted first and the static table second; keys found in neither use the
// configured base URL.
//
// # Helpers
//
// The package also provides convenience constructors NewWithBaseURL,
// NewWithToken and NewFromFile that wrap New with the appropriate
// configuration.
package reqclient
