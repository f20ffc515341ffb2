package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MrWong99/tngbot/internal/config"
	"github.com/MrWong99/tngbot/internal/modelstore"
	"github.com/MrWong99/tngbot/internal/pipeline"
	"github.com/MrWong99/tngbot/internal/source"
)

type buildFlags struct {
	series      string
	characters  []string
	output      string
	concurrency int
}

func newBuildCommand(g *globals) *cobra.Command {
	f := &buildFlags{}

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build and save character models from transcripts",
		Long: `build fetches the transcripts of a series (or reuses the local cache),
collects every line spoken by each character, trains a Markov chain on them
and saves the model.

A character with no lines in the transcripts fails the build; the others
are still saved.`,
		Example: `  tngbot build
  tngbot build --character picard --character data
  tngbot build --series DS9 --character quark --output ./models`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.loadConfig(cmd)
			if err != nil {
				return err
			}
			chars, err := f.resolve(cfg)
			if err != nil {
				return err
			}

			var store modelstore.Store
			if f.output != "" {
				store, err = modelstore.NewFileStore(f.output)
			} else {
				store, err = modelstore.Open(cmd.Context(), cfg.Store)
			}
			if err != nil {
				return err
			}
			defer store.Close()

			fetcher := newFetcher(cfg, source.NewCache(cfg.Scripts.CacheDir))
			builder := pipeline.NewBuilder(fetcher, store, pipeline.WithConcurrency(f.concurrency))
			results, buildErr := builder.BuildAll(cmd.Context(), chars)

			fmt.Fprintln(cmd.OutOrStdout(), renderBuildSummary(results))
			if buildErr != nil {
				return fmt.Errorf("build: %d of %d characters failed: %w", failures(results), len(results), buildErr)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&f.series, "series", "s", "", "series to read transcripts from; valid values: "+strings.Join(source.Codes(), ", "))
	cmd.Flags().StringArrayVar(&f.characters, "character", nil, "character to build (repeatable; default: the configured characters)")
	cmd.Flags().StringVarP(&f.output, "output", "o", "", "directory to save models to (default: the configured store)")
	cmd.Flags().IntVar(&f.concurrency, "concurrency", 0, "characters built at once (default 4)")
	return cmd
}

// resolve returns the characters to build. Named characters keep their
// configured series unless --series overrides it.
func (f *buildFlags) resolve(cfg *config.Config) ([]config.CharacterConfig, error) {
	if f.series != "" {
		if _, err := source.Lookup(f.series); err != nil {
			return nil, err
		}
	}

	var chars []config.CharacterConfig
	if len(f.characters) == 0 {
		chars = append(chars, cfg.Characters...)
	} else {
		for _, name := range f.characters {
			name = strings.TrimSpace(name)
			if name == "" || strings.ContainsAny(name, " \t") {
				return nil, fmt.Errorf("invalid --character %q: must be a single word", name)
			}
			c, ok := cfg.Character(name)
			if !ok {
				c = config.CharacterConfig{Name: name, Series: config.DefaultSeries}
			}
			chars = append(chars, c)
		}
	}
	if f.series != "" {
		for i := range chars {
			chars[i].Series = strings.ToUpper(f.series)
		}
	}
	return chars, nil
}

func failures(results []pipeline.Result) int {
	n := 0
	for _, r := range results {
		if r.Err != nil {
			n++
		}
	}
	return n
}

func newFetcher(cfg *config.Config, cache *source.Cache) *source.Fetcher {
	return source.NewFetcher(
		cache,
		source.WithBaseURL(cfg.Scripts.BaseURL),
		source.WithConcurrency(cfg.Scripts.Concurrency),
	)
}
