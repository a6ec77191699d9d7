// Command valuator serves the valuation API and exposes the form engine on
// the command line.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	envFile    string
)

var rootCmd = &cobra.Command{
	Use:   "valuator",
	Short: "Bank property valuation service and form engine",
	Long: `valuator keeps bank valuation reports: it serves the REST and
websocket API used by the data-entry form and offers the form engine
(flatten, nest, recompute) as offline commands.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before environment overrides")

	rootCmd.AddCommand(serveCmd, seedCmd, flattenCmd, nestCmd, recomputeCmd, catalogCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
