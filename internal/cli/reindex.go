package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wolfman30/botdesk/internal/app/bootstrap"
)

func newReindexCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reindex <botID>",
		Short: "Rebuild a bot's knowledge chunks",
		Long: `Chunk, embed and store the bot's description, website text and file text,
replacing the chunks it had before. Needs DATABASE_URL and embedding credentials.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pool, err := bootstrap.ConnectPostgres(ctx, a.cfg.DatabaseURL, a.logger)
			if err != nil {
				return err
			}
			if pool == nil {
				return errors.New("DATABASE_URL is required")
			}
			defer pool.Close()

			embedder, err := bootstrap.BuildEmbedder(ctx, a.cfg, a.logger)
			if err != nil {
				return err
			}
			if embedder == nil {
				return errors.New("no embedding provider configured")
			}

			bots := bootstrap.BuildBotRepository(pool, nil, a.cfg, a.logger)
			b, err := bots.Get(ctx, args[0])
			if err != nil {
				return fmt.Errorf("load bot %s: %w", args[0], err)
			}

			writer := bootstrap.BuildWriter(a.cfg, embedder, bootstrap.BuildChunkStore(pool), a.logger)
			count, err := writer.Reindex(ctx, b)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stored %d chunk(s) for %s\n", count, b.ID)
			return nil
		},
	}
}
