package commands

import (
	"fmt"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

// NewGlobalsCommand creates the globals command group.
func NewGlobalsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "globals",
		Aliases: []string{"global"},
		Short:   "Inspect global defaults",
		Long:    "List the global defaults applied to every call of an endpoint, or to all endpoints with \"*\"",
	}

	cmd.AddCommand(newGlobalsListCommand())

	return cmd
}

func newGlobalsListCommand() *cobra.Command {
	var showSecrets bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List global defaults",
		Long:  "List global defaults in the order they are applied",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			if len(cfg.Globals) == 0 && isTableOutput() {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No global defaults defined")

				return nil
			}

			globals := cfg.Globals
			if !showSecrets {
				globals = withMaskedHeaders(cfg)
			}

			return writeOutput(cmd.OutOrStdout(), globals, func(table *tablewriter.Table) {
				table.Header("Endpoint", "URL Params", "Query", "Headers", "Body")

				for _, global := range globals {
					body := ""
					if global.Body != nil {
						body = fmt.Sprintf("%v", global.Body)
					}

					_ = table.Append(
						global.Endpoint,
						strings.Join(global.URLParams, "/"),
						formatPairs(global.QueryParams),
						formatPairs(global.Headers),
						body,
					)
				}
			})
		},
	}

	cmd.Flags().BoolVar(&showSecrets, "show-secrets", false, "show credential header values")

	return cmd
}
