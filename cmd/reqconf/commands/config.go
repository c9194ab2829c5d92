package commands

import (
	"fmt"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// NewConfigCommand creates the config command group.
func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
		Long:  "Show and validate the reqconf configuration",
	}

	cmd.AddCommand(newConfigShowCommand())
	cmd.AddCommand(newConfigValidateCommand())

	return cmd
}

func newConfigShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show configuration",
		Long:  "Display the effective configuration after file, environment and flag overrides",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			shown := *cfg
			shown.Globals = withMaskedHeaders(cfg)

			if shown.Token != "" {
				shown.Token = Masked
			}

			file := viper.ConfigFileUsed()
			if file == "" {
				file = NotAvailable
			}

			return writeOutput(cmd.OutOrStdout(), shown, func(table *tablewriter.Table) {
				table.Header("Property", "Value")
				_ = table.Append("Config File", file)
				_ = table.Append("Base URL", shown.BaseURL)
				_ = table.Append("Token", shown.Token)
				_ = table.Append("Output", shown.Output)
				_ = table.Append("Verbose", strconv.FormatBool(shown.Verbose))
				_ = table.Append("Request ID", strconv.FormatBool(shown.RequestID))
				_ = table.Append("Endpoints", strconv.Itoa(len(shown.Endpoints)))
				_ = table.Append("Globals", strconv.Itoa(len(shown.Globals)))
				_ = table.Append("Sources", strconv.Itoa(len(shown.Sources)))
				_ = table.Append("HTTP Timeout", shown.HTTP.Timeout.String())
				_ = table.Append("HTTP Retry Max", strconv.Itoa(shown.HTTP.RetryMax))
				_ = table.Append("NATS Bucket", shown.NATS.Bucket)
				_ = table.Append("Rate Limit", strconv.FormatFloat(shown.RateLimit.RequestsPerSecond, 'f', -1, 64))
				_ = table.Append("Circuit Breaker", strconv.FormatBool(shown.CircuitBreaker.Enabled))
			})
		},
	}
}

func newConfigValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration",
		Long:  "Decode and validate the configuration without making any call",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Configuration is valid: %d endpoints, %d global defaults, %d sources\n",
				len(cfg.Endpoints), len(cfg.Globals), len(cfg.Sources))

			return nil
		},
	}
}
