package commands

import (
	"context"
	"fmt"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

// NewSourcesCommand creates the sources command group.
func NewSourcesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "sources",
		Aliases: []string{"source", "src"},
		Short:   "Inspect data sources",
		Long:    "List configured data sources and resolve the base URL an endpoint is dispatched to",
	}

	cmd.AddCommand(newSourcesListCommand())
	cmd.AddCommand(newSourcesResolveCommand())

	return cmd
}

func newSourcesListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List data sources",
		Long:  "List the static data sources and the NATS bucket, if one is configured",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			type SourceInfo struct {
				Key     string `json:"key"      yaml:"key"`
				BaseURL string `json:"base_url" yaml:"base_url"`
				Origin  string `json:"origin"   yaml:"origin"`
			}

			sources := make([]SourceInfo, 0, len(cfg.Sources)+1)
			if cfg.NATS.Enabled() {
				sources = append(sources, SourceInfo{Key: "*", BaseURL: cfg.NATS.URL, Origin: "nats:" + cfg.NATS.Bucket})
			}

			for _, entry := range cfg.Sources {
				sources = append(sources, SourceInfo{Key: entry.Key, BaseURL: entry.BaseURL, Origin: "static"})
			}

			if cfg.BaseURL != "" {
				sources = append(sources, SourceInfo{Key: "*", BaseURL: cfg.BaseURL, Origin: "default"})
			}

			if len(sources) == 0 && isTableOutput() {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No data sources configured")

				return nil
			}

			return writeOutput(cmd.OutOrStdout(), sources, func(table *tablewriter.Table) {
				table.Header("Key", "Base URL", "Origin")

				for _, source := range sources {
					_ = table.Append(source.Key, source.BaseURL, source.Origin)
				}
			})
		},
	}
}

func newSourcesResolveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve KEY",
		Short: "Resolve an endpoint's base URL",
		Long:  "Resolve the base URL an endpoint key is dispatched to through the configured data sources",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			client, err := createClient(ctx)
			if err != nil {
				return err
			}

			defer func() { _ = client.Close() }()

			preview, err := client.Request(ctx, args[0]).Preview()
			if err != nil {
				return fmt.Errorf("failed to resolve %s: %w", args[0], err)
			}

			resolved := map[string]string{
				"endpoint": args[0],
				"base_url": preview.BaseURL(),
			}

			return writeOutput(cmd.OutOrStdout(), resolved, func(table *tablewriter.Table) {
				table.Header("Endpoint", "Base URL")
				_ = table.Append(args[0], preview.BaseURL())
			})
		},
	}
}
