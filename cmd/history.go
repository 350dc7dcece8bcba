package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"zcash-near-intents/pkg/types"
)

var (
	historyStatus string
	historyLimit  int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List past swaps",
	Long: `List swaps recorded in the local history file, newest first.

Examples:
  zcash-near-intents history
  zcash-near-intents history --status failed
  zcash-near-intents history --limit 5 --json`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().StringVar(&historyStatus, "status", "", "Filter by status (pending, settled, failed, expired)")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum number of swaps to show (0 for all)")
}

func runHistory(cmd *cobra.Command, args []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	a, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := a.openStore(); err != nil {
		return err
	}

	var records []*types.SwapResult
	if historyStatus != "" {
		status := types.SwapStatus(strings.ToLower(historyStatus))
		switch status {
		case types.StatusPending, types.StatusSettled, types.StatusFailed, types.StatusExpired:
		default:
			return fmt.Errorf("unknown status %q", historyStatus)
		}
		records = a.store.ListByStatus(status)
	} else {
		records = a.store.List()
	}
	if historyLimit > 0 && len(records) > historyLimit {
		records = records[:historyLimit]
	}

	if jsonOutput {
		jsonData, _ := json.MarshalIndent(records, "", "  ")
		fmt.Println(string(jsonData))
		return nil
	}

	if len(records) == 0 {
		fmt.Println("\nNo swaps recorded yet.")
		return nil
	}

	fmt.Println("\n" + strings.Repeat("=", 96))
	color.Green("                                     SWAP HISTORY")
	fmt.Println(strings.Repeat("=", 96))

	for _, r := range records {
		out := r.RealizedOut
		if !out.IsPositive() {
			out = r.MinOut
		}
		fmt.Printf("  %s  %-19s  %-18s  %s %s -> %s %s (%s)\n",
			color.HiBlackString(truncateString(r.ID, 8)),
			r.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			coloredSwapStatus(r.Status),
			r.SourceAmount, r.Request.Source.Symbol,
			out, r.Request.Dest.Symbol,
			r.AppliedPrivacy)
	}

	fmt.Println(strings.Repeat("=", 96))
	fmt.Printf("\nShowing %d of %d swaps (%s)\n\n", len(records), a.store.Count(), a.store.Path())
	return nil
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}
