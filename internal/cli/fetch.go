package cli

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MrWong99/tngbot/internal/source"
)

func newFetchCommand(g *globals) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "fetch [SERIES...]",
		Short: "Download transcripts into the local cache",
		Long: `fetch downloads the transcripts of the given series (default: every series
a configured character uses) into the script cache. A series whose cache is
already complete is skipped unless --force is given.

Valid series: ` + strings.Join(source.Codes(), ", "),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig(cmd)
			if err != nil {
				return err
			}

			codes := args
			if len(codes) == 0 {
				for _, c := range cfg.Characters {
					codes = append(codes, c.Series)
				}
			}
			for i, c := range codes {
				s, err := source.Lookup(c)
				if err != nil {
					return err
				}
				codes[i] = s.Code
			}
			slices.Sort(codes)
			codes = slices.Compact(codes)

			cache := source.NewCache(cfg.Scripts.CacheDir)
			fetcher := newFetcher(cfg, cache)

			var (
				rows []fetchRow
				errs []error
			)
			for _, code := range codes {
				st, err := cache.Status(code)
				if err != nil {
					errs = append(errs, err)
					continue
				}
				if st.Valid() && !force {
					rows = append(rows, fetchRow{Result: source.Result{Series: code, Listed: st.Total}, cached: true})
					continue
				}
				res, err := fetcher.Fetch(cmd.Context(), code)
				if err != nil {
					errs = append(errs, err)
				}
				res.Series = code
				rows = append(rows, fetchRow{Result: res, err: err})
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderFetchSummary(rows))
			return errors.Join(errs...)
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "download again even when the cache is complete")
	return cmd
}

// fetchRow is one line of the fetch summary.
type fetchRow struct {
	source.Result
	cached bool
	err    error
}
