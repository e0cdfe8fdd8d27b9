package cli

import (
	"github.com/spf13/cobra"

	"hostproxy/internal/routes"
)

var routesCmd = &cobra.Command{
	Use:   "routes",
	Short: "Load and print the configured route tables",
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
		printRoutes(cmd.OutOrStdout(), table)
		return nil
	},
}

func init() {
	routesCmd.Flags().String("routes-dir", "", "Directory holding routes.json and dev-routes.json")
	routesCmd.Flags().String("source", "", "Route source: file or consul")
	routesCmd.Flags().String("consul-address", "", "Consul agent address for the consul source")
}
