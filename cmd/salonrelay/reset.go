package main

import (
	"github.com/spf13/cobra"
)

var resetFlags struct {
	clientConfig
}

var resetCmd = &cobra.Command{
	Use:   "reset <tenant>",
	Short: "Log a salon out and start pairing again",
	Long: `Discard a salon's WhatsApp credentials and connection record. The
session restarts and issues a new QR code to scan.`,
	Args: cobra.ExactArgs(1),
	RunE: runReset,
}

func init() {
	rootCmd.AddCommand(resetCmd)

	addClientFlags(resetCmd, &resetFlags.clientConfig)
}

func runReset(cmd *cobra.Command, args []string) error {
	c, err := resetFlags.newClient()
	if err != nil {
		return err
	}

	resp, err := c.ResetConnection(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), resp)
}
