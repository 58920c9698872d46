package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var messagesFlags struct {
	clientConfig
	limit int
}

var messagesCmd = &cobra.Command{
	Use:   "messages <tenant>",
	Short: "List recent relay attempts for a salon",
	Args:  cobra.ExactArgs(1),
	RunE:  runMessages,
}

func init() {
	rootCmd.AddCommand(messagesCmd)

	addClientFlags(messagesCmd, &messagesFlags.clientConfig)
	messagesCmd.Flags().IntVar(&messagesFlags.limit, "limit", 20, "maximum number of entries")
}

func runMessages(cmd *cobra.Command, args []string) error {
	c, err := messagesFlags.newClient()
	if err != nil {
		return err
	}

	resp, err := c.Messages(cmd.Context(), args[0], messagesFlags.limit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(resp.Messages) == 0 {
		fmt.Fprintln(out, "No messages relayed.")
		return nil
	}

	fmt.Fprintf(out, "%-19s  %-11s  %-6s  %-24s  %s\n", "TIME", "OUTCOME", "HTTP", "SENDER", "ERROR")
	for _, m := range resp.Messages {
		occurredAt, _ := time.Parse(time.RFC3339, m.OccurredAt)
		errText := "-"
		if m.Error != nil {
			errText = *m.Error
		}
		fmt.Fprintf(out, "%-19s  %-11s  %-6d  %-24s  %s\n",
			occurredAt.Local().Format("2006-01-02 15:04:05"), m.Outcome, m.HTTPStatus, m.Sender, errText)
	}
	return nil
}
