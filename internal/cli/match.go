package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"hostproxy/internal/dispatch"
	"hostproxy/internal/handlers"
	"hostproxy/internal/routes"
)

var matchCmd = &cobra.Command{
	Use:   "match <host>",
	Short: "Show where a request for host would be dispatched",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadSettings(cmd)
		if err != nil {
			return err
		}
		src, err := cfg.NewSource()
		if err != nil {
			return err
		}
		table, err := routes.Load(cmd.Context(), src)
		if err != nil {
			return err
		}
		asJSON, _ := cmd.Flags().GetBool("json")
		return writeExplanation(cmd.OutOrStdout(), dispatch.Explain(table, handlers.Builtin(), args[0]), asJSON)
	},
}

func init() {
	matchCmd.Flags().Bool("json", false, "Print the result as JSON")
	matchCmd.Flags().String("routes-dir", "", "Directory holding routes.json and dev-routes.json")
	matchCmd.Flags().String("source", "", "Route source: file or consul")
	matchCmd.Flags().String("consul-address", "", "Consul agent address for the consul source")
}

func writeExplanation(w io.Writer, ex dispatch.Explanation, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(ex)
	}
	fmt.Fprintf(w, "Host:      %s\n", ex.Host)
	fmt.Fprintf(w, "Local:     %s\n", ex.Local)
	for _, e := range ex.Locals {
		fmt.Fprintf(w, "  %s -> %s\n", e.Pattern, e.Handler)
	}
	fmt.Fprintf(w, "Upstream:  %s\n", ex.Upstream)
	for _, e := range ex.Upstreams {
		fmt.Fprintf(w, "  %s -> %s\n", e.Pattern, e.Upstream)
	}
	fmt.Fprintf(w, "Outcome:   %s (%d)\n", ex.Outcome, ex.Status)
	return nil
}
