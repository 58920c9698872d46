package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rsclarke/salonrelay/internal/tenant"
)

var tenantsFlags struct {
	clientConfig
	tenantsFile string
	remote      bool
}

var tenantsCmd = &cobra.Command{
	Use:   "tenants",
	Short: "List configured salons",
	Long: `List the salons in the tenants file (or the built-in table when no
file is set). With --remote, list the salons of a running relay along with
their pairing state.`,
	Args: cobra.NoArgs,
	RunE: runTenants,
}

func init() {
	rootCmd.AddCommand(tenantsCmd)

	addClientFlags(tenantsCmd, &tenantsFlags.clientConfig)
	tenantsCmd.Flags().StringVar(&tenantsFlags.tenantsFile, "tenants", getEnv("SALONRELAY_TENANTS_FILE", ""), "YAML tenants file")
	tenantsCmd.Flags().BoolVar(&tenantsFlags.remote, "remote", false, "query a running relay instead of the tenants file")
}

func runTenants(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	if tenantsFlags.remote {
		c, err := tenantsFlags.newClient()
		if err != nil {
			return err
		}
		resp, err := c.ListTenants(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%-16s  %-24s  %-5s  %s\n", "ID", "NAME", "PORT", "STATE")
		for _, t := range resp.Tenants {
			fmt.Fprintf(out, "%-16s  %-24s  %-5d  %s\n", t.ID, t.Name, t.Port, t.State)
		}
		return nil
	}

	reg, err := tenant.LoadFile(tenantsFlags.tenantsFile)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%-16s  %-24s  %-5s  %-24s  %s\n", "ID", "NAME", "PORT", "CLIENT", "WEBHOOK")
	for _, t := range reg.All() {
		fmt.Fprintf(out, "%-16s  %-24s  %-5d  %-24s  %s\n", t.ID, t.Name, t.Port, t.ClientID, t.WebhookPath)
	}
	return nil
}
