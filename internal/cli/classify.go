package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wolfman30/botdesk/internal/chat"
)

func newClassifyCmd() *cobra.Command {
	var previous string
	cmd := &cobra.Command{
		Use:   "classify <message>",
		Short: "Show how a visitor message would be routed",
		Long: `Run the intent detector, low-signal guard and injection scan on a message.

Examples:
  botctl classify "how much is botox?"
  botctl classify "yes" --previous "Would you like to book a consultation?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			message := strings.Join(args, " ")
			det := chat.ClassifyIntent(message, previous)
			guard := chat.NewLowSignalGuard(chat.LooksLikeCaptureAnswer)
			low, reason := guard.Check(message, previous)
			scan := chat.ScanForInjection(message)

			out := cmd.OutOrStdout()
			rule := det.Rule
			if rule == "" {
				rule = "default"
			}
			fmt.Fprintf(out, "intent:     %s (rule %s)\n", det.Intent, rule)
			if low {
				fmt.Fprintf(out, "low signal: yes (%s)\n", reason)
			} else {
				fmt.Fprintln(out, "low signal: no")
			}
			fmt.Fprintf(out, "injection:  score %.2f blocked %t", scan.Score, scan.Blocked)
			if len(scan.Signals) > 0 {
				fmt.Fprintf(out, " signals %s", strings.Join(scan.Signals, ","))
			}
			fmt.Fprintln(out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&previous, "previous", "p", "", "previous assistant message")
	return cmd
}
