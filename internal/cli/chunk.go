package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wolfman30/botdesk/internal/knowledge"
)

func newChunkCmd(a *app) *cobra.Command {
	var maxTokens, minTokens, overlap int
	cmd := &cobra.Command{
		Use:   "chunk <file|->",
		Short: "Preview how a document would be chunked",
		Long: `Split a text file into knowledge chunks without embedding or storing them.

Examples:
  botctl chunk site.txt
  cat faq.txt | botctl chunk - --max-tokens 400`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readSource(cmd, args[0])
			if err != nil {
				return err
			}
			cfg := knowledge.ChunkerConfig{MaxTokens: maxTokens, MinTokens: minTokens, OverlapTokens: overlap}
			if a.cfg != nil {
				if !cmd.Flags().Changed("max-tokens") {
					cfg.MaxTokens = a.cfg.ChunkMaxTokens
				}
				if !cmd.Flags().Changed("min-tokens") {
					cfg.MinTokens = a.cfg.ChunkMinTokens
				}
				if !cmd.Flags().Changed("overlap") {
					cfg.OverlapTokens = a.cfg.ChunkOverlapTokens
				}
			}
			chunker := knowledge.NewChunker(cfg)
			chunks := chunker.Split("preview", text)

			out := cmd.OutOrStdout()
			eff := chunker.Config()
			fmt.Fprintf(out, "%d tokens in, %d chunk(s) (max %d, min %d, overlap %d)\n",
				knowledge.CountTokens(text), len(chunks), eff.MaxTokens, eff.MinTokens, eff.OverlapTokens)
			for _, ch := range chunks {
				fmt.Fprintf(out, "[%d] %d tokens: %s\n", ch.Index, ch.TokenCount, preview(ch.Text, 80))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&maxTokens, "max-tokens", knowledge.MaxTokensPerChunk, "maximum tokens per chunk")
	cmd.Flags().IntVar(&minTokens, "min-tokens", knowledge.MinTokensPerChunk, "minimum tokens per chunk")
	cmd.Flags().IntVar(&overlap, "overlap", knowledge.OverlapTokens, "tokens carried into the next chunk")
	return cmd
}

func readSource(cmd *cobra.Command, path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), nil
}

func preview(text string, n int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n]) + "..."
}
