package commands

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/fivetwenty-io/reqconf/pkg/reqconf"
)

// NewEndpointsCommand creates the endpoints command group.
func NewEndpointsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "endpoints",
		Aliases: []string{"endpoint", "ep"},
		Short:   "Inspect configured endpoints",
		Long:    "List and inspect the endpoints defined in the configuration",
	}

	cmd.AddCommand(newEndpointsListCommand())
	cmd.AddCommand(newEndpointsGetCommand())

	return cmd
}

func newEndpointsListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List endpoints",
		Long:  "List every endpoint defined in the configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			endpoints := append([]reqconf.Endpoint(nil), cfg.Endpoints...)
			sort.Slice(endpoints, func(i, j int) bool {
				return endpoints[i].Key < endpoints[j].Key
			})

			if len(endpoints) == 0 && isTableOutput() {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No endpoints defined")

				return nil
			}

			return writeOutput(cmd.OutOrStdout(), endpoints, func(table *tablewriter.Table) {
				table.Header("Key", "Method", "Path", "Query", "Headers")

				for _, endpoint := range endpoints {
					_ = table.Append(
						endpoint.Key,
						strings.ToUpper(endpoint.Method),
						endpointPath(endpoint),
						formatPairs(endpoint.Defaults.QueryParams),
						strings.Join(sortedKeys(endpoint.Defaults.Headers), ", "),
					)
				}
			})
		},
	}
}

func newEndpointsGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get KEY",
		Short: "Get endpoint details",
		Long:  "Display an endpoint definition together with the base URL it resolves to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			client, err := createClient(ctx)
			if err != nil {
				return err
			}

			defer func() { _ = client.Close() }()

			endpoint, ok := client.Endpoint(args[0])
			if !ok {
				return fmt.Errorf("%w: %s", ErrEndpointNotFound, args[0])
			}

			preview, err := client.Request(ctx, endpoint.Key).Preview()
			if err != nil {
				return fmt.Errorf("failed to resolve endpoint: %w", err)
			}

			type EndpointInfo struct {
				reqconf.Endpoint `yaml:",inline"`

				BaseURL string `json:"base_url" yaml:"base_url"`
			}

			info := EndpointInfo{Endpoint: endpoint, BaseURL: preview.BaseURL()}

			return writeOutput(cmd.OutOrStdout(), info, func(table *tablewriter.Table) {
				table.Header("Property", "Value")
				_ = table.Append("Key", endpoint.Key)
				_ = table.Append("Method", strings.ToUpper(endpoint.Method))
				_ = table.Append("Path", endpointPath(endpoint))
				_ = table.Append("Base URL", preview.BaseURL())

				for _, key := range sortedKeys(endpoint.Defaults.QueryParams) {
					_ = table.Append("Query "+key, endpoint.Defaults.QueryParams[key])
				}

				for _, key := range sortedKeys(endpoint.Defaults.Headers) {
					_ = table.Append("Header "+key, maskHeaderValue(key, endpoint.Defaults.Headers[key]))
				}
			})
		},
	}
}
