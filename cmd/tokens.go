package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"zcash-near-intents/pkg/client"
	"zcash-near-intents/pkg/types"
)

var (
	filterChain  string
	filterSymbol string
	localOnly    bool
)

var tokensCmd = &cobra.Command{
	Use:     "list-tokens",
	Aliases: []string{"tokens", "ls"},
	Short:   "List supported tokens",
	Long: `List the tokens known to the NEAR Intents 1Click API. Tokens this tool can swap
are marked with *.

With --local only the configured asset list is shown, without any network call.

Examples:
  zcash-near-intents list-tokens
  zcash-near-intents list-tokens --chain near
  zcash-near-intents list-tokens --symbol ZEC
  zcash-near-intents list-tokens --local`,
	RunE: runListTokens,
}

func init() {
	rootCmd.AddCommand(tokensCmd)

	tokensCmd.Flags().StringVar(&filterChain, "chain", "", "Filter by blockchain")
	tokensCmd.Flags().StringVar(&filterSymbol, "symbol", "", "Filter by token symbol")
	tokensCmd.Flags().BoolVar(&localOnly, "local", false, "Show only the configured asset list")
}

func runListTokens(cmd *cobra.Command, args []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	a, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if localOnly {
		assets := a.registry.List()
		if jsonOutput {
			jsonData, _ := json.MarshalIndent(assets, "", "  ")
			fmt.Println(string(jsonData))
			return nil
		}
		displayRegistry(assets)
		return nil
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Fetching supported tokens..."
		s.Start()
	}
	tokens, err := a.oneClick().GetSupportedTokens(context.Background())
	if !jsonOutput {
		s.Stop()
	}
	if err != nil {
		return err
	}

	if _, err := client.SyncRegistry(tokens, a.registry); err != nil {
		a.log.WithError(err).Warn("Failed to apply token catalog to asset list")
	}
	swappable := make(map[string]bool)
	for _, info := range a.registry.List() {
		swappable[info.AssetID] = true
	}

	filtered := tokens
	if filterChain != "" {
		var temp []client.TokenInfo
		for _, token := range filtered {
			if strings.EqualFold(token.Blockchain, filterChain) {
				temp = append(temp, token)
			}
		}
		filtered = temp
	}
	if filterSymbol != "" {
		var temp []client.TokenInfo
		for _, token := range filtered {
			if strings.Contains(strings.ToUpper(token.Symbol), strings.ToUpper(filterSymbol)) {
				temp = append(temp, token)
			}
		}
		filtered = temp
	}

	if jsonOutput {
		jsonData, _ := json.MarshalIndent(filtered, "", "  ")
		fmt.Println(string(jsonData))
		return nil
	}
	displayTokens(filtered, swappable)
	return nil
}

func displayTokens(tokens []client.TokenInfo, swappable map[string]bool) {
	if len(tokens) == 0 {
		fmt.Println("\nNo tokens found matching the criteria.")
		return
	}

	fmt.Println("\n" + strings.Repeat("=", 90))
	color.Green("                            SUPPORTED TOKENS")
	fmt.Println(strings.Repeat("=", 90))

	// Group tokens by blockchain
	tokensByChain := make(map[string][]client.TokenInfo)
	for _, token := range tokens {
		tokensByChain[token.Blockchain] = append(tokensByChain[token.Blockchain], token)
	}

	chains := make([]string, 0, len(tokensByChain))
	for chain := range tokensByChain {
		chains = append(chains, chain)
	}
	sort.Strings(chains)

	for _, chain := range chains {
		color.Cyan("\n%s", strings.ToUpper(chain))
		fmt.Println(strings.Repeat("-", 90))

		for _, token := range tokensByChain[chain] {
			address := token.ContractAddress
			if len(address) > 40 {
				address = address[:37] + "..."
			}

			mark := " "
			if swappable[token.AssetID] {
				mark = color.GreenString("*")
			}

			price := ""
			if token.PriceUSD.IsPositive() {
				price = "$" + token.PriceUSD.StringFixed(4)
			}

			fmt.Printf("%s %-10s  %2d decimals  %-14s %s\n",
				mark,
				color.YellowString(token.Symbol),
				token.Decimals,
				price,
				color.HiBlackString(address))
		}
	}

	fmt.Println("\n" + strings.Repeat("=", 90))
	fmt.Printf("\nTotal: %d tokens across %d blockchains (* swappable here)\n\n", len(tokens), len(chains))
}

func displayRegistry(assets []types.AssetInfo) {
	fmt.Println("\n" + strings.Repeat("=", 90))
	color.Green("                            CONFIGURED ASSETS")
	fmt.Println(strings.Repeat("=", 90) + "\n")

	for _, info := range assets {
		classes := "transparent"
		if info.Chain.SupportsShielded() {
			classes += ", " + color.MagentaString("shielded")
		}
		fmt.Printf("  %-10s %-5s %2d decimals  %-24s %s\n",
			color.YellowString(info.Symbol),
			info.Chain,
			info.Decimals,
			classes,
			color.HiBlackString(info.AssetID))
	}

	fmt.Println("\n" + strings.Repeat("=", 90) + "\n")
}
