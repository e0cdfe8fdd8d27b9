package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"hostproxy/internal/config"
	"hostproxy/internal/routes"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write settings.yml and example route files",
	Long: `Write settings.yml (if missing) and the example route files into the routes
directory. With --install, missing routes.json and dev-routes.json are
created from the examples as serve would do on first start.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, dir, err := loadSettings(cmd)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Settings: %s\n", config.Path(dir))

		written, err := routes.WriteExamples(cfg.RoutesDir)
		if err != nil {
			return err
		}
		for _, p := range written {
			fmt.Fprintf(out, "Wrote %s\n", p)
		}

		if install, _ := cmd.Flags().GetBool("install"); install {
			if err := routes.EnsureRouteFiles(cfg.RoutesDir); err != nil {
				return err
			}
			fmt.Fprintf(out, "Route files ready in %s\n", cfg.RoutesDir)
		}
		return nil
	},
}

func init() {
	initCmd.Flags().Bool("install", false, "Also create routes.json and dev-routes.json when missing")
	initCmd.Flags().String("routes-dir", "", "Directory holding routes.json and dev-routes.json")
}
