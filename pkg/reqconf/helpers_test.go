package reqconf_test

import (
	"context"
	"net/http"
	"sync"

	"github.com/fivetwenty-io/reqconf/pkg/reqconf"
)

const (
	testBaseURL     = "https://api.example.com"
	userDetailsKey  = "user.getDetails"
	headerAuthority = "Authority"
)

// recordingTransport captures every dispatched configuration.
type recordingTransport struct {
	mu    sync.Mutex
	calls []*reqconf.Config
	resp  *reqconf.Response
	err   error
}

func newRecordingTransport() *recordingTransport {
	return &recordingTransport{
		resp: &reqconf.Response{StatusCode: http.StatusOK, Headers: make(http.Header), Body: []byte(`{"name":"test-user"}`)},
	}
}

func (t *recordingTransport) Do(ctx context.Context, cfg *reqconf.Config) (*reqconf.Response, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.calls = append(t.calls, cfg)

	return t.resp, t.err
}

func (t *recordingTransport) Calls() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.calls)
}

func (t *recordingTransport) Last() *reqconf.Config {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.calls) == 0 {
		return nil
	}

	return t.calls[len(t.calls)-1]
}

func newUserDetails(registry *reqconf.Registry, transport reqconf.Transport) *reqconf.RequestBuilder {
	return reqconf.NewRequestBuilder(userDetailsKey, http.MethodGet, testBaseURL, transport, reqconf.WithRegistry(registry))
}

// MockLogger for testing.
type MockLogger struct {
	mu   sync.Mutex
	logs []map[string]interface{}
}

func (l *MockLogger) add(level, msg string, fields map[string]interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.logs = append(l.logs, map[string]interface{}{"level": level, "msg": msg, "fields": fields})
}

func (l *MockLogger) Debug(msg string, fields map[string]interface{}) { l.add("debug", msg, fields) }
func (l *MockLogger) Info(msg string, fields map[string]interface{})  { l.add("info", msg, fields) }
func (l *MockLogger) Warn(msg string, fields map[string]interface{})  { l.add("warn", msg, fields) }
func (l *MockLogger) Error(msg string, fields map[string]interface{}) { l.add("error", msg, fields) }

func (l *MockLogger) Messages() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	messages := make([]string, 0, len(l.logs))
	for _, entry := range l.logs {
		messages = append(messages, entry["msg"].(string))
	}

	return messages
}
