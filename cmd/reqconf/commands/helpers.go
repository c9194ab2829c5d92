package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/fivetwenty-io/reqconf/internal/config"
	"github.com/fivetwenty-io/reqconf/internal/constants"
	"github.com/fivetwenty-io/reqconf/pkg/reqclient"
	"github.com/fivetwenty-io/reqconf/pkg/reqconf"
)

// Common string constants used throughout the commands package.
const (
	NotAvailable = "N/A"
	Masked       = "***"

	// JSON formatting.
	defaultJSONIndent = "  "
)

// Common static errors used throughout the commands package.
var (
	ErrEndpointNotFound = errors.New("endpoint not found")
	ErrEmptyBodyFile    = errors.New("body file name is required after @")
)

// sensitiveHeaders are masked in command output.
var sensitiveHeaders = map[string]struct{}{
	"Authorization":       {},
	"Authority":           {},
	"Proxy-Authorization": {},
	"Cookie":              {},
	"X-Api-Key":           {},
}

// loadConfig decodes the settings read by the root command.
func loadConfig() (*config.Config, error) {
	cfg, err := config.NewLoader(viper.GetViper(), newLogger(viper.GetBool("verbose"))).Decode()
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// createClient builds a client from the current configuration.
func createClient(ctx context.Context) (*reqclient.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	client, err := reqclient.New(ctx, cfg, reqclient.WithLogger(newLogger(cfg.Verbose)))
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	return client, nil
}

// writeOutput renders value in the selected output format. render fills
// the table for the table format.
func writeOutput(out io.Writer, value interface{}, render func(table *tablewriter.Table)) error {
	switch format := viper.GetString("output"); format {
	case constants.FormatJSON:
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", defaultJSONIndent)

		return encoder.Encode(value)
	case constants.FormatYAML:
		encoder := yaml.NewEncoder(out)

		err := encoder.Encode(value)
		if err != nil {
			return err
		}

		return encoder.Close()
	case constants.FormatTable, "":
		table := tablewriter.NewWriter(out)
		if render != nil {
			render(table)
		}

		if err := table.Render(); err != nil {
			return fmt.Errorf("failed to render table: %w", err)
		}

		return nil
	default:
		return fmt.Errorf("%w: %s", constants.ErrUnknownOutputFormat, format)
	}
}

// parseKeyValues parses repeated key=value flags. Header flags also accept
// the curl style "Key: value".
func parseKeyValues(values []string, allowColon bool) (map[string]string, error) {
	if len(values) == 0 {
		return nil, nil
	}

	parsed := make(map[string]string, len(values))

	for _, value := range values {
		key, val, found := strings.Cut(value, "=")
		if allowColon {
			if colonKey, colonVal, ok := strings.Cut(value, ":"); ok && (!found || len(colonKey) < len(key)) {
				key, val, found = colonKey, colonVal, true
			}
		}

		key = strings.TrimSpace(key)
		if !found || key == "" {
			return nil, fmt.Errorf("%w: %q", constants.ErrInvalidKeyValue, value)
		}

		parsed[key] = strings.TrimSpace(val)
	}

	return parsed, nil
}

// readBody resolves the --data flag: "@file" reads a file, "@-" reads stdin.
func readBody(cmd *cobra.Command, data string) (string, error) {
	if !strings.HasPrefix(data, "@") {
		return data, nil
	}

	name := strings.TrimPrefix(data, "@")
	switch name {
	case "":
		return "", ErrEmptyBodyFile
	case "-":
		content, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("failed to read body from stdin: %w", err)
		}

		return string(content), nil
	default:
		content, err := os.ReadFile(name) //nolint:gosec // path is operator supplied
		if err != nil {
			return "", fmt.Errorf("failed to read body file: %w", err)
		}

		return string(content), nil
	}
}

// maskHeaders flattens header for display, masking credentials unless
// showSecrets is set.
func maskHeaders(header http.Header, showSecrets bool) map[string]string {
	masked := make(map[string]string, len(header))

	for key := range header {
		value := strings.Join(header.Values(key), ", ")
		if _, ok := sensitiveHeaders[http.CanonicalHeaderKey(key)]; ok && !showSecrets {
			value = Masked
		}

		masked[key] = value
	}

	return masked
}

// sortedKeys returns the keys of values in lexical order.
func sortedKeys(values map[string]string) []string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	return keys
}

// formatPairs renders a map as "k=v, k=v" in key order.
func formatPairs(values map[string]string) string {
	if len(values) == 0 {
		return ""
	}

	pairs := make([]string, 0, len(values))
	for _, key := range sortedKeys(values) {
		pairs = append(pairs, key+"="+values[key])
	}

	return strings.Join(pairs, ", ")
}

// endpointPath renders an endpoint path template for display.
func endpointPath(endpoint reqconf.Endpoint) string {
	return "/" + strings.Join(endpoint.Path, "/")
}

// isTerminal reports whether out is an interactive terminal.
func isTerminal(out io.Writer) bool {
	file, ok := out.(*os.File)
	if !ok {
		return false
	}

	return term.IsTerminal(int(file.Fd())) //nolint:gosec // file descriptors fit in int
}

// stderrLogger writes interceptor and transport logs to stderr.
type stderrLogger struct {
	out     io.Writer
	verbose bool
}

func newLogger(verbose bool) reqconf.Logger {
	return &stderrLogger{out: os.Stderr, verbose: verbose}
}

func (l *stderrLogger) Debug(msg string, fields map[string]interface{}) {
	if l.verbose {
		l.write("DEBUG", msg, fields)
	}
}

func (l *stderrLogger) Info(msg string, fields map[string]interface{}) {
	if l.verbose {
		l.write("INFO", msg, fields)
	}
}

func (l *stderrLogger) Warn(msg string, fields map[string]interface{}) {
	l.write("WARN", msg, fields)
}

func (l *stderrLogger) Error(msg string, fields map[string]interface{}) {
	l.write("ERROR", msg, fields)
}

func (l *stderrLogger) write(level, msg string, fields map[string]interface{}) {
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	var line strings.Builder

	fmt.Fprintf(&line, "[%s] %s", level, msg)

	for _, key := range keys {
		fmt.Fprintf(&line, " %s=%v", key, fields[key])
	}

	fmt.Fprintln(l.out, line.String())
}

// isTableOutput reports whether the table format is selected.
func isTableOutput() bool {
	format := viper.GetString("output")

	return format == constants.FormatTable || format == ""
}

// maskHeaderValue masks value when key names a credential header.
func maskHeaderValue(key, value string) string {
	if _, ok := sensitiveHeaders[http.CanonicalHeaderKey(key)]; ok {
		return Masked
	}

	return value
}

// withMaskedHeaders copies the global defaults of cfg with credential
// headers masked.
func withMaskedHeaders(cfg *config.Config) []config.GlobalDefaults {
	globals := make([]config.GlobalDefaults, 0, len(cfg.Globals))

	for _, global := range cfg.Globals {
		if len(global.Headers) > 0 {
			headers := make(map[string]string, len(global.Headers))
			for key, value := range global.Headers {
				headers[key] = maskHeaderValue(key, value)
			}

			global.Headers = headers
		}

		globals = append(globals, global)
	}

	return globals
}
