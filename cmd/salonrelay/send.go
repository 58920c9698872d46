package main

import (
	"strings"

	"github.com/spf13/cobra"
)

var sendFlags struct {
	clientConfig
}

var sendCmd = &cobra.Command{
	Use:   "send <tenant> <phone> <message...>",
	Short: "Send a WhatsApp message through a salon's session",
	Long: `Send a text message from a salon's WhatsApp account. The phone may be
a bare number or a full chat id such as 15551234567@c.us.`,
	Args: cobra.MinimumNArgs(3),
	RunE: runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)

	addClientFlags(sendCmd, &sendFlags.clientConfig)
}

func runSend(cmd *cobra.Command, args []string) error {
	c, err := sendFlags.newClient()
	if err != nil {
		return err
	}

	resp, err := c.SendMessage(cmd.Context(), args[0], args[1], strings.Join(args[2:], " "))
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), resp)
}
