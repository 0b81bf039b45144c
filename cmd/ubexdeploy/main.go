package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version is set at build time.
	Version = "dev"

	// Global flags
	cfgFile string
	jsonOut bool
)

// flagKeys maps persistent flags to their configuration keys.
var flagKeys = map[string]string{
	"network":        "network",
	"log-level":      "log.level",
	"log-format":     "log.format",
	"strategy":       "plan.strategy",
	"platform":       "platform.driver",
	"rpc-url":        "rpc.url",
	"chain-id":       "rpc.chain_id",
	"artifacts":      "artifacts.dir",
	"directory":      "directory.driver",
	"directory-path": "directory.path",
}

var rootCmd = &cobra.Command{
	Use:   "ubexdeploy",
	Short: "ubexdeploy - deploy and verify the Ubex contract set",
	Long: `ubexdeploy deploys the Ubex contracts for a network in dependency order,
publishes their addresses to a shared directory and checks the deployed state.

Configuration (in order of priority):
  1. Command-line flags (--network, --platform, --directory, ...)
  2. Environment variables (UBEX_NETWORK, UBEX_RPC_URL, UBEX_DEPLOYER_PRIVATE_KEY, ...)
  3. Config file (./ubexdeploy.yaml or --config)

Get started:
  $ ubexdeploy plan --network development
  $ ubexdeploy migrate --network development --verify
  $ ubexdeploy verify --network development`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "ubexdeploy version %s\n", Version)
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is ./ubexdeploy.yaml)")
	flags.BoolVar(&jsonOut, "json", false, "output in JSON format")
	flags.String("network", "", "network selector (or UBEX_NETWORK)")
	flags.String("log-level", "", "log level: debug, info, warn, error")
	flags.String("log-format", "", "log format: text, json")
	flags.String("strategy", "", "plan ordering: static, topological")
	flags.String("platform", "", "deployment platform: evm, memory")
	flags.String("rpc-url", "", "JSON-RPC endpoint (or UBEX_RPC_URL)")
	flags.Uint64("chain-id", 0, "expected chain ID (or UBEX_RPC_CHAIN_ID)")
	flags.String("artifacts", "", "compiled contract artifacts directory")
	flags.String("directory", "", "deployment directory: memory, file, postgres, redis")
	flags.String("directory-path", "", "JSON file used by the file directory")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s %s\n", colorRed("Error:"), err)
		os.Exit(1)
	}
}
