package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/siteresolve/internal/registry"
	"github.com/sells-group/siteresolve/internal/sitematch"
)

var brandsMatch string

var brandsCmd = &cobra.Command{
	Use:   "brands",
	Short: "List the brand registry or test a URL against it",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("brands"); err != nil {
			return err
		}

		reg, err := registry.Load(ctx, cfg.BrandSites, newOpener(cfg.Fetch), registry.DefaultOptions())
		if err != nil {
			return err
		}

		if brandsMatch == "" {
			for _, e := range reg.Entries() {
				fmt.Fprintln(os.Stdout, e)
			}
			return nil
		}

		token, err := sitematch.ExtractSiteToken(brandsMatch)
		if err != nil {
			return err
		}
		formatBrandMatch(os.Stdout, brandsMatch, token, reg.Match(token))
		return nil
	},
}

func init() {
	brandsCmd.Flags().StringVar(&brandsMatch, "match", "", "URL to check against the registry")
	rootCmd.AddCommand(brandsCmd)
}

// formatBrandMatch writes the outcome of a registry lookup to w.
func formatBrandMatch(out io.Writer, url, token string, m sitematch.BrandMatch) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "URL:\t%s\n", url)
	_, _ = fmt.Fprintf(w, "Site token:\t%s\n", token)
	_, _ = fmt.Fprintf(w, "Known brand:\t%t\n", m.Matched)
	_, _ = fmt.Fprintf(w, "Best ratio:\t%.3f\n", m.BestRatio)
	if m.Matched {
		_, _ = fmt.Fprintf(w, "Entry:\t%s\n", m.Entry)
	}
	_ = w.Flush()
}
