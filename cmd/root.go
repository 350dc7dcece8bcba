package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "zcash-near-intents",
	Short: "Privacy-aware NEAR <-> Zcash swaps through NEAR Intents",
	Long: `zcash-near-intents swaps between NEAR-native assets and Zcash by signing
intents and publishing them to the NEAR Intents solver relay. Zcash output can be
delivered into the shielded pool, and a local portfolio view tracks balances per
privacy class.

Examples:
  zcash-near-intents swap 1 NEAR to ZEC
  zcash-near-intents swap 100 USDC to ZEC --privacy transparent --yes
  zcash-near-intents status <swap-id> --watch
  zcash-near-intents portfolio --analyze
  zcash-near-intents history
  zcash-near-intents list-tokens`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and prints any error it returns
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		printError(err)
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "Output in JSON format")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default $HOME/.zcash-near-intents.yaml)")
}

func printError(err error) {
	fmt.Printf("\n%s %v\n\n", color.RedString("Error:"), err)
}

func printSuccess(message string) {
	fmt.Printf("\n%s\n\n", message)
}
