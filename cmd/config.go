package main

import (
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/siteresolve/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration as YAML",
	Long:  "Prints the configuration after config.yaml, SITERESOLVE_* environment variables and defaults are merged.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return writeConfig(os.Stdout, cfg)
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
}

// writeConfig encodes c as YAML with the Postgres and webhook URLs redacted.
func writeConfig(out io.Writer, c *config.Config) error {
	redacted := *c
	if redacted.Store.Driver == "postgres" && redacted.Store.DatabaseURL != "" {
		redacted.Store.DatabaseURL = "<redacted>"
	}
	if redacted.Monitoring.WebhookURL != "" {
		redacted.Monitoring.WebhookURL = "<redacted>"
	}

	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(&redacted); err != nil {
		return eris.Wrap(err, "config: encode yaml")
	}
	return eris.Wrap(enc.Close(), "config: flush yaml")
}
