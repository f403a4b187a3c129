package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/siteresolve/internal/facility"
	"github.com/sells-group/siteresolve/internal/sitematch"
)

var (
	resolveName       string
	resolveURLs       []string
	resolveCandidates string
	resolveMode       string
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Resolve the website of a single facility",
	Example: `  siteresolve resolve --name "Storage Depot" --url https://www.depot.com --url https://www.publicstorage.com/ca
  siteresolve resolve --name "Cube Smart" --candidates "['https://www.cubesmart.com']"`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if resolveMode != "" {
			cfg.Resolve.Mode = resolveMode
		}
		if err := cfg.Validate("resolve"); err != nil {
			return err
		}

		urls := resolveURLs
		if len(urls) == 0 && resolveCandidates != "" {
			parsed, err := facility.ParseCandidates(resolveCandidates)
			if err != nil {
				return eris.Wrap(err, "resolve: --candidates")
			}
			urls = parsed
		}

		resolver, err := loadResolver(ctx, newOpener(cfg.Fetch), cfg.BrandSites, cfg.Resolve.Mode)
		if err != nil {
			return err
		}

		res := resolver.Resolve(sitematch.Facility{Name: resolveName, CandidateURLs: urls})
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Name    string `json:"name"`
			Website string `json:"website"`
			sitematch.Result
		}{Name: resolveName, Website: res.Website(), Result: res})
	},
}

func init() {
	resolveCmd.Flags().StringVar(&resolveName, "name", "", "facility name (required)")
	resolveCmd.Flags().StringSliceVar(&resolveURLs, "url", nil, "candidate URL, in search order (repeatable)")
	resolveCmd.Flags().StringVar(&resolveCandidates, "candidates", "", "candidate list as the scraper writes it, e.g. \"['https://a.com']\"")
	resolveCmd.Flags().StringVar(&resolveMode, "mode", "", "resolve mode: last_match or best_match")
	_ = resolveCmd.MarkFlagRequired("name")
	rootCmd.AddCommand(resolveCmd)
}
