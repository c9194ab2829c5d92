package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/fivetwenty-io/reqconf/internal/constants"
	"github.com/fivetwenty-io/reqconf/pkg/reqconf"
)

// callOptions holds the per-call overrides given on the command line.
type callOptions struct {
	headers       []string
	query         []string
	params        []string
	removeHeaders []string
	removeQuery   []string
	removeParams  []string
	requireHeader []string
	data          string
	timeout       time.Duration
	dryRun        bool
	showSecrets   bool
}

// callResult is the rendered outcome of a call.
type callResult struct {
	Endpoint   string            `json:"endpoint"             yaml:"endpoint"`
	StatusCode int               `json:"status_code"          yaml:"status_code"`
	Headers    map[string]string `json:"headers,omitempty"    yaml:"headers,omitempty"`
	Body       interface{}       `json:"body,omitempty"       yaml:"body,omitempty"`
}

// callPreview is the rendered merged configuration of a dry run.
type callPreview struct {
	Endpoint string            `json:"endpoint"          yaml:"endpoint"`
	Method   string            `json:"method"            yaml:"method"`
	URL      string            `json:"url"               yaml:"url"`
	Headers  map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	Body     interface{}       `json:"body,omitempty"    yaml:"body,omitempty"`
}

// NewCallCommand creates the call command.
func NewCallCommand() *cobra.Command {
	opts := &callOptions{}

	cmd := &cobra.Command{
		Use:   "call KEY [URL_PARAM...]",
		Short: "Call an endpoint",
		Long: `Call a configured endpoint. Global defaults and endpoint defaults are merged
with the overrides given on the command line; local values win and removals
mask defaults. Extra arguments are appended as URL path segments.`,
		Example: `  reqconf call user.getDetails 42
  reqconf call user.getDetails 42 -q fields=name -H "Authority: token2"
  reqconf call user.getDetails 42 --remove-header Authority --dry-run
  reqconf call user.update 42 -d '{"name":"Ada"}'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCall(cmd, args[0], args[1:], opts)
		},
	}

	cmd.Flags().StringArrayVarP(&opts.headers, "header", "H", nil, "header to add (Key: value or Key=value)")
	cmd.Flags().StringArrayVarP(&opts.query, "query", "q", nil, "query parameter to add (key=value)")
	cmd.Flags().StringArrayVarP(&opts.params, "param", "p", nil, "URL path segment to append")
	cmd.Flags().StringArrayVar(&opts.removeHeaders, "remove-header", nil, "header to remove, including global defaults")
	cmd.Flags().StringArrayVar(&opts.removeQuery, "remove-query", nil, "query parameter to remove, including global defaults")
	cmd.Flags().StringArrayVar(&opts.removeParams, "remove-param", nil, "URL path segment to remove, including global defaults")
	cmd.Flags().StringArrayVar(&opts.requireHeader, "require-header", nil, "abort unless the merged call carries this header")
	cmd.Flags().StringVarP(&opts.data, "data", "d", "", "request body (@file reads a file, @- reads stdin)")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 0, "overall call timeout")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "show the merged call without sending it")
	cmd.Flags().BoolVar(&opts.showSecrets, "show-secrets", false, "show credential header values")

	return cmd
}

func runCall(cmd *cobra.Command, key string, args []string, opts *callOptions) error {
	ctx := context.Background()

	if opts.timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}

	builder, closeClient, err := newCallBuilder(ctx, cmd, key, args, opts)
	if err != nil {
		return err
	}

	defer closeClient()

	if opts.dryRun {
		preview, err := builder.Preview()
		if err != nil {
			return err
		}

		return writePreview(cmd, preview, opts.showSecrets)
	}

	resp, err := builder.Execute(ctx)
	if err != nil {
		return describeCallError(cmd, key, resp, err)
	}

	return writeResponse(cmd, key, resp, opts.showSecrets)
}

// newCallBuilder creates the builder for key and applies the command line
// overrides to it.
func newCallBuilder(ctx context.Context, cmd *cobra.Command, key string, args []string, opts *callOptions) (*reqconf.RequestBuilder, func(), error) {
	headers, err := parseKeyValues(opts.headers, true)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid header: %w", err)
	}

	query, err := parseKeyValues(opts.query, false)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid query parameter: %w", err)
	}

	body, err := readBody(cmd, opts.data)
	if err != nil {
		return nil, nil, err
	}

	client, err := createClient(ctx)
	if err != nil {
		return nil, nil, err
	}

	closeClient := func() { _ = client.Close() }

	builder := client.Request(ctx, key, args...).
		AddURLParams(opts.params...).
		RemoveURLParams(opts.removeParams...).
		AddQueryParams(query).
		RemoveQueryParams(opts.removeQuery...).
		AddHeaders(headers).
		RemoveHeaders(opts.removeHeaders...)

	if len(opts.requireHeader) > 0 {
		builder.AddInterceptor(reqconf.Interceptor{PreCall: reqconf.RequireHeadersInterceptor(opts.requireHeader...)})
	}

	if body != "" {
		builder.SetBody(body)

		if json.Valid([]byte(body)) && !hasHeader(headers, constants.HeaderContentType) {
			builder.AddHeaders(map[string]string{constants.HeaderContentType: constants.MediaTypeJSON})
		}
	}

	err = builder.Err()
	if err != nil {
		closeClient()

		return nil, nil, err
	}

	return builder, closeClient, nil
}

func writePreview(cmd *cobra.Command, cfg *reqconf.Config, showSecrets bool) error {
	preview := callPreview{
		Endpoint: cfg.EndpointKey(),
		Method:   cfg.Method(),
		URL:      cfg.URL(),
		Headers:  maskHeaders(cfg.Header(), showSecrets),
		Body:     cfg.Body(),
	}

	return writeOutput(cmd.OutOrStdout(), preview, func(table *tablewriter.Table) {
		table.Header("Property", "Value")
		_ = table.Append("Endpoint", preview.Endpoint)
		_ = table.Append("Method", preview.Method)
		_ = table.Append("URL", preview.URL)

		for _, key := range sortedKeys(preview.Headers) {
			_ = table.Append("Header "+key, preview.Headers[key])
		}

		if cfg.HasBody() {
			_ = table.Append("Body", fmt.Sprintf("%v", preview.Body))
		}
	})
}

func writeResponse(cmd *cobra.Command, key string, resp *reqconf.Response, showSecrets bool) error {
	if isTableOutput() {
		out := cmd.OutOrStdout()

		if isTerminal(out) {
			var indented bytes.Buffer
			if json.Indent(&indented, resp.Body, "", defaultJSONIndent) == nil {
				_, err := fmt.Fprintln(out, indented.String())

				return err
			}
		}

		_, err := out.Write(resp.Body)

		return err
	}

	result := callResult{
		Endpoint:   key,
		StatusCode: resp.StatusCode,
		Headers:    maskHeaders(resp.Headers, showSecrets),
		Body:       decodeBody(resp),
	}

	return writeOutput(cmd.OutOrStdout(), result, nil)
}

// decodeBody returns the value set by a post-call interceptor, the decoded
// JSON body, or the raw body text.
func decodeBody(resp *reqconf.Response) interface{} {
	if resp.Value != nil {
		return resp.Value
	}

	if len(resp.Body) == 0 {
		return nil
	}

	var decoded interface{}
	if json.Unmarshal(resp.Body, &decoded) == nil {
		return decoded
	}

	return string(resp.Body)
}

// describeCallError prints the failed response body, if any, to stderr and
// returns err annotated with how the call failed.
func describeCallError(cmd *cobra.Command, key string, resp *reqconf.Response, err error) error {
	if reqconf.IsAborted(err) {
		return fmt.Errorf("call to %s aborted: %s", key, reqconf.AbortReason(err))
	}

	transportErr := &reqconf.TransportError{}
	if errors.As(err, &transportErr) && len(transportErr.Body) > 0 {
		_, _ = fmt.Fprintln(cmd.ErrOrStderr(), strings.TrimSpace(string(transportErr.Body)))
	} else if resp != nil && len(resp.Body) > 0 {
		_, _ = fmt.Fprintln(cmd.ErrOrStderr(), strings.TrimSpace(string(resp.Body)))
	}

	if transportErr.StatusCode > 0 {
		return fmt.Errorf("call to %s failed with status %d: %w", key, transportErr.StatusCode, err)
	}

	return fmt.Errorf("call to %s failed: %w", key, err)
}

// hasHeader reports whether headers carries name in any letter case.
func hasHeader(headers map[string]string, name string) bool {
	for key := range headers {
		if http.CanonicalHeaderKey(key) == http.CanonicalHeaderKey(name) {
			return true
		}
	}

	return false
}
