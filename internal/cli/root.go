// Package cli provides botctl, the operator command line for botdesk.
package cli

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	appconfig "github.com/wolfman30/botdesk/internal/config"
	"github.com/wolfman30/botdesk/pkg/logging"
)

// Version is set at build time.
var Version = "0.1.0"

type app struct {
	cfg     *appconfig.Config
	logger  *logging.Logger
	verbose bool
}

// NewRootCmd builds the botctl command tree.
func NewRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "botctl",
		Short: "Operate botdesk chat bots",
		Long: `botctl inspects and maintains botdesk bots from a terminal.

It reads the same environment (and .env file) as the API server.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			_ = godotenv.Load()
			a.cfg = appconfig.Load()
			level := a.cfg.LogLevel
			if a.verbose {
				level = "debug"
			}
			a.logger = logging.NewCLI(level)
		},
	}
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		newChunkCmd(a),
		newClassifyCmd(),
		newReindexCmd(a),
		newTokenCmd(a),
	)
	return root
}

// Execute runs botctl with os.Args.
func Execute() error {
	return NewRootCmd().Execute()
}
