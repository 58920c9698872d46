package main

import (
	"github.com/spf13/cobra"
)

var statusFlags struct {
	clientConfig
}

var statusCmd = &cobra.Command{
	Use:   "status [tenant]",
	Short: "Show connection status",
	Long: `Show the aggregate health of a running relay, or the connection
status of one salon when a tenant id is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	addClientFlags(statusCmd, &statusFlags.clientConfig)
}

func runStatus(cmd *cobra.Command, args []string) error {
	c, err := statusFlags.newClient()
	if err != nil {
		return err
	}

	if len(args) == 0 {
		resp, err := c.Health(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), resp)
	}

	resp, err := c.ConnectionStatus(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), resp)
}
