package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"zcash-near-intents/pkg/client"
	"zcash-near-intents/pkg/portfolio"
)

var analyzePortfolio bool

var portfolioCmd = &cobra.Command{
	Use:     "portfolio",
	Aliases: []string{"balances"},
	Short:   "Show balances per asset and privacy class",
	Long: `Query NEAR and Zcash for the configured account's balances, split into
transparent and shielded classes.

With --analyze the balances are valued in USD using 1Click token prices (or the
price_usd values of the asset list when no 1Click token is configured) and the
share of value held in the shielded pool is reported.

Examples:
  zcash-near-intents portfolio
  zcash-near-intents portfolio --analyze
  zcash-near-intents portfolio --json`,
	RunE: runPortfolio,
}

func init() {
	rootCmd.AddCommand(portfolioCmd)

	portfolioCmd.Flags().BoolVarP(&analyzePortfolio, "analyze", "a", false, "Value holdings and report privacy distribution")
}

func runPortfolio(cmd *cobra.Command, args []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	a, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := a.openPortfolio(); err != nil {
		return err
	}
	defer a.close()

	ctx := context.Background()

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Querying balances..."
		s.Start()
	}
	snap, refreshErr := a.tracker.Refresh(ctx)

	var analysis *portfolio.Analysis
	if analyzePortfolio {
		if !jsonOutput {
			s.Suffix = " Fetching prices..."
		}
		result := portfolio.Analyze(snap, a.prices(ctx))
		analysis = &result
	}
	if !jsonOutput {
		s.Stop()
	}

	if refreshErr != nil && !jsonOutput {
		color.Yellow("\nSome balances could not be refreshed: %v", refreshErr)
	}

	if jsonOutput {
		balances := snap.Sorted()
		jsonData, _ := json.MarshalIndent(map[string]interface{}{
			"account":  snap.Account,
			"taken_at": snap.TakenAt,
			"balances": balances,
			"analysis": analysis,
		}, "", "  ")
		fmt.Println(string(jsonData))
		return nil
	}

	displayPortfolio(snap)
	if analysis != nil {
		displayAnalysis(analysis)
	}
	return nil
}

// prices returns USD prices from 1Click, falling back to the configured asset list
func (a *app) prices(ctx context.Context) map[string]decimal.Decimal {
	if a.cfg.OneClick.JWTToken != "" {
		prices, err := a.oneClick().Prices(ctx, a.registry)
		if err == nil {
			return prices
		}
		a.log.WithError(err).Warn("Falling back to configured prices")
	}
	return client.PricesFor(nil, a.registry)
}

func displayPortfolio(snap *portfolio.Snapshot) {
	fmt.Println("\n" + strings.Repeat("=", 70))
	color.Green("                          PORTFOLIO")
	fmt.Println(strings.Repeat("=", 70))

	fmt.Printf("\n  Account: %s\n", color.CyanString(snap.Account))
	fmt.Printf("  As of:   %s\n\n", snap.TakenAt.Format("2006-01-02 15:04:05"))

	for _, b := range snap.Sorted() {
		flags := ""
		if b.Pending {
			flags += color.YellowString(" pending")
		}
		if b.Stale {
			flags += color.RedString(" stale")
		}
		fmt.Printf("  %-8s %-12s %24s%s\n",
			color.YellowString(b.Asset.Symbol),
			privacyLabel(b.Asset.Privacy),
			b.Amount.String(),
			flags)
	}

	for _, w := range snap.Warnings {
		color.Yellow("\n  Warning: %v", w.Err())
	}

	fmt.Println("\n" + strings.Repeat("=", 70) + "\n")
}

func displayAnalysis(an *portfolio.Analysis) {
	fmt.Println(strings.Repeat("=", 70))
	color.Green("                          ANALYSIS")
	fmt.Println(strings.Repeat("=", 70))

	fmt.Printf("\n  Total Value:    $%s\n", an.TotalUSD.StringFixed(2))
	fmt.Printf("  Shielded Value: $%s\n", an.ShieldedUSD.StringFixed(2))
	fmt.Printf("  Privacy Ratio:  %s%%\n\n", an.PrivacyRatio.Shift(2).StringFixed(1))

	for _, h := range an.Holdings {
		if !h.Priced {
			fmt.Printf("  %-8s %s\n", color.YellowString(h.Symbol), color.HiBlackString("no price"))
			continue
		}
		fmt.Printf("  %-8s $%12s  %5s%%\n",
			color.YellowString(h.Symbol),
			h.ValueUSD.StringFixed(2),
			h.Share.Shift(2).StringFixed(1))
	}

	fmt.Println("\n" + strings.Repeat("=", 70) + "\n")
}
