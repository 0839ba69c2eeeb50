package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/drg911/htb-pro-card/internal/utils"
	"github.com/drg911/htb-pro-card/pkg/identifier"
	"github.com/drg911/htb-pro-card/pkg/service"
	"github.com/spf13/cobra"
)

var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Fetch a profile straight from its source and print the raw result",
	RunE: func(cmd *cobra.Command, args []string) error {
		id, _ := cmd.Flags().GetString("id")
		jsonURL, _ := cmd.Flags().GetString("json-url")

		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		st, err := service.Settle(service.Request{ID: id, JSONURL: jsonURL}, a.server.Defaults)
		if err != nil {
			return err
		}
		if host, ok := identifier.ProfileHost(id); ok {
			utils.Log.Debugf("profile URL on %s", host)
		}
		cfg := service.SelectSource(st.JSONURL, a.server.Labs, a.server.RelayTimeout)
		d := a.svc.TestConnection(cmd.Context(), st.Identifier, cfg)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(d); err != nil {
			return err
		}
		if !d.OK {
			return fmt.Errorf("connection test via %s failed", d.Source)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(testCmd)
	testCmd.Flags().String("id", "", "HTB user id or profile URL (default: defaults.id)")
	testCmd.Flags().String("json-url", "", "Test a JSON relay instead of the Labs API")
}
