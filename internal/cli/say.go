package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MrWong99/tngbot/internal/command"
	"github.com/MrWong99/tngbot/internal/modelstore"
	"github.com/MrWong99/tngbot/internal/roster"
)

func newSayCommand(g *globals) *cobra.Command {
	var (
		count int
		dir   string
	)

	cmd := &cobra.Command{
		Use:   "say CHARACTER",
		Short: "Print generated lines for a character",
		Long: `say loads one character's saved model and prints generated lines, the same
way the bot answers "./<bot_name> CHARACTER".`,
		Example: "  tngbot say picard -n 3",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig(cmd)
			if err != nil {
				return err
			}

			var store modelstore.Store
			if dir != "" {
				store, err = modelstore.NewFileStore(dir)
			} else {
				store, err = modelstore.Open(cmd.Context(), cfg.Store)
			}
			if err != nil {
				return err
			}
			defer store.Close()

			r := roster.New(store)
			if err := r.Reload(cmd.Context(), []string{args[0]}, cfg.Generator.Options()...); err != nil {
				return err
			}
			d := command.NewDispatcher(cfg.Discord.BotName, r)

			for range max(count, 1) {
				reply, err := d.Quote(cmd.Context(), args[0])
				fmt.Fprintln(cmd.OutOrStdout(), reply)
				if err != nil {
					return fmt.Errorf("say: %w", err)
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 1, "number of lines to print")
	cmd.Flags().StringVarP(&dir, "models", "m", "", "directory to load models from (default: the configured store)")
	return cmd
}
