package commands_test

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/fivetwenty-io/reqconf/internal/config"
	"github.com/fivetwenty-io/reqconf/internal/constants"
)

const cliConfig = `
base_url: %s
endpoints:
  - key: user.getDetails
    method: GET
    path: [users]
    defaults:
      query:
        fields: all
  - key: user.update
    method: PATCH
    path: [users]
globals:
  - endpoint: "*"
    headers:
      Accept: application/json
  - endpoint: user.getDetails
    headers:
      Authority: token1
sources:
  - key: billing
    base_url: https://billing.internal
`

// findSubcommand finds a subcommand by name within a cobra command.
func findSubcommand(cmd *cobra.Command, name string) *cobra.Command {
	for _, c := range cmd.Commands() {
		if c.Name() == name {
			return c
		}
	}

	return nil
}

// useConfig points the global viper instance at a config file for baseURL
// and selects output. It is reset when the test ends.
func useConfig(t *testing.T, baseURL, output string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(fmt.Sprintf(cliConfig, baseURL)), constants.ConfigFilePerm))

	viper.Reset()
	t.Cleanup(viper.Reset)

	config.Configure(viper.GetViper(), path)
	require.NoError(t, viper.ReadInConfig())
	viper.Set("output", output)
	viper.Set("http.retry_max", 0)
}

// run executes cmd with args and returns what it wrote to stdout and stderr.
func run(t *testing.T, cmd *cobra.Command, args ...string) (string, string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer

	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)

	err := cmd.Execute()

	return stdout.String(), stderr.String(), err
}
