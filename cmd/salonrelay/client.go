package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/rsclarke/salonrelay/internal/client"
)

type clientConfig struct {
	adminURL string
}

func addClientFlags(cmd *cobra.Command, cfg *clientConfig) {
	cmd.Flags().StringVar(&cfg.adminURL, "admin-url", getEnv("SALONRELAY_ADMIN_URL", "http://127.0.0.1:3000"), "admin listener URL")
}

func (cfg *clientConfig) newClient() (*client.Client, error) {
	if cfg.adminURL == "" {
		return nil, fmt.Errorf("admin URL required (use --admin-url flag or SALONRELAY_ADMIN_URL env var)")
	}
	return client.NewClient(cfg.adminURL), nil
}

func printJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}
