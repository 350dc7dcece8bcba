package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"zcash-near-intents/pkg/parser"
	"zcash-near-intents/pkg/types"
)

var (
	swapPrivacy string
	swapMemo    string
	swapWait    bool
	noConfirm   bool
)

var swapCmd = &cobra.Command{
	Use:   "swap <amount> <source-token> to <dest-token>",
	Short: "Swap between NEAR assets and Zcash",
	Long: `Swap tokens by signing an intent and publishing it to the NEAR Intents solver relay.

The source is spent from your NEAR account. Zcash output is delivered into the
shielded pool unless --privacy transparent is given; any transparent residual is
shielded afterwards when privacy.auto_shield is on.

Examples:
  zcash-near-intents swap 1 NEAR to ZEC
  zcash-near-intents swap 1 NEAR to ZEC --memo "rent"
  zcash-near-intents swap 0.5 ZEC to USDC --privacy transparent
  zcash-near-intents swap 100 USDC to ZEC --yes --wait=false`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSwap,
}

func init() {
	rootCmd.AddCommand(swapCmd)

	swapCmd.Flags().StringVarP(&swapPrivacy, "privacy", "p", "", "Destination privacy level: shielded or transparent (default privacy.default_level)")
	swapCmd.Flags().StringVar(&swapMemo, "memo", "", "Memo attached to shielded output")
	swapCmd.Flags().BoolVar(&swapWait, "wait", true, "Wait for settlement before returning (default swap.wait_for_settlement)")
	swapCmd.Flags().BoolVarP(&noConfirm, "yes", "y", false, "Skip confirmation prompt")
}

func runSwap(cmd *cobra.Command, args []string) error {
	command, err := parser.ParseSwapCommand(strings.Join(args, " "))
	if err != nil {
		return err
	}

	a, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	privacy := a.cfg.DefaultPrivacy()
	if swapPrivacy != "" {
		if privacy, err = types.ParsePrivacy(swapPrivacy); err != nil {
			return err
		}
	}

	req, err := command.Request(a.registry, privacy, swapMemo)
	if err != nil {
		return err
	}

	jsonOutput, _ := cmd.Flags().GetBool("json")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	wait := a.cfg.Swap.WaitForSettlement
	if cmd.Flags().Changed("wait") {
		wait = swapWait
	}
	if err := a.openEngine(ctx, wait); err != nil {
		a.close()
		return err
	}

	if !noConfirm && !jsonOutput {
		previewQuote(ctx, a, req)
		if !confirmSwap() {
			a.close()
			fmt.Println("\nSwap cancelled.")
			return nil
		}
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Quoting, signing and waiting for settlement..."
		if !wait {
			s.Suffix = " Quoting, signing and submitting..."
		}
		s.Start()
	}

	result, err := a.engine.SubmitSwap(ctx, req)
	if err == nil && !wait {
		result, err = awaitSubmission(ctx, a, result.ID)
	}
	if !jsonOutput {
		s.Stop()
	}

	if err != nil {
		a.close()
		return err
	}

	var unconfirmed []types.Asset
	if wait {
		if !jsonOutput && result.Status == types.StatusSettled {
			s.Suffix = " Confirming balances..."
			s.Start()
		}
		unconfirmed = a.confirmPortfolio(ctx, result)
		if !jsonOutput {
			s.Stop()
		}
		a.close()
	} else {
		a.detach()
	}

	if jsonOutput {
		jsonData, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(jsonData))
		return nil
	}

	displaySwapResult(result)
	if len(unconfirmed) > 0 {
		names := make([]string, 0, len(unconfirmed))
		for _, asset := range unconfirmed {
			names = append(names, asset.String())
		}
		color.Yellow("Balances not yet confirmed on chain: %s", strings.Join(names, ", "))
		fmt.Println("Check them later with:")
		color.Cyan("  zcash-near-intents portfolio\n")
	}
	if !result.Status.Terminal() {
		fmt.Println("You can monitor the swap status using:")
		color.Cyan("  zcash-near-intents status %s --watch\n", result.ID)
	}
	return nil
}

// awaitSubmission blocks until the swap has been handed to the relay or ended
func awaitSubmission(ctx context.Context, a *app, id string) (*types.SwapResult, error) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		r, err := a.engine.Get(id)
		if err != nil {
			return nil, err
		}
		if r.State == types.StateSubmitted || r.Status.Terminal() {
			return r, nil
		}
		select {
		case <-ctx.Done():
			return r, ctx.Err()
		case <-ticker.C:
		}
	}
}

func previewQuote(ctx context.Context, a *app, req types.SwapRequest) {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = " Fetching indicative quote..."
	s.Start()
	quote, err := a.relay.GetQuote(ctx, req.Source, req.Dest, req.Amount)
	s.Stop()

	fmt.Println("\n" + strings.Repeat("=", 60))
	color.Green("                     SWAP PREVIEW")
	fmt.Println(strings.Repeat("=", 60))

	fmt.Printf("\n  From:              %s %s\n", req.Amount, color.YellowString(req.Source.Symbol))
	fmt.Printf("  To:                %s (%s)\n", color.YellowString(req.Dest.Symbol), privacyLabel(req.Privacy))
	if err != nil {
		color.Yellow("  Quote:             unavailable (%v)", err)
	} else {
		slip, _ := a.cfg.Slippage()
		minOut := a.registry.Truncate(req.Dest.Symbol, quote.DestAmount.Mul(decimal.NewFromInt(1).Sub(slip)))
		fmt.Printf("  Indicative:        ~%s %s\n", quote.DestAmount, req.Dest.Symbol)
		fmt.Printf("  Minimum Received:  %s %s (slippage %s%%)\n", minOut, req.Dest.Symbol, slip.Shift(2))
	}
	if req.Memo != "" {
		fmt.Printf("  Memo:              %s\n", req.Memo)
	}
	fmt.Printf("  Settlement Window: %s\n", a.cfg.Swap.SettlementWindow)

	fmt.Println("\n" + strings.Repeat("=", 60))
}

func displaySwapResult(r *types.SwapResult) {
	fmt.Println("\n" + strings.Repeat("=", 60))
	color.Green("                     SWAP RESULT")
	fmt.Println(strings.Repeat("=", 60))

	fmt.Printf("\n  Swap ID:           %s\n", color.CyanString(r.ID))
	fmt.Printf("  Status:            %s\n", coloredSwapStatus(r.Status))
	fmt.Printf("  From:              %s %s\n", r.SourceAmount, color.YellowString(r.Request.Source.Symbol))
	if r.RealizedOut.IsPositive() {
		fmt.Printf("  Received:          %s %s (%s)\n", r.RealizedOut, color.YellowString(r.Request.Dest.Symbol), privacyLabel(r.AppliedPrivacy))
	} else if r.MinOut.IsPositive() {
		fmt.Printf("  Minimum Out:       %s %s (%s)\n", r.MinOut, color.YellowString(r.Request.Dest.Symbol), privacyLabel(r.AppliedPrivacy))
	}
	if r.IntentHash != "" {
		fmt.Printf("  Intent Hash:       %s\n", color.HiBlackString(r.IntentHash))
	}
	if r.SettlementTx != "" {
		fmt.Printf("  Settlement Tx:     %s\n", color.HiBlackString(r.SettlementTx))
	}
	if r.Shielding != nil && r.Shielding.Status != types.ShieldingNotRequested {
		line := string(r.Shielding.Status)
		if r.Shielding.OperationID != "" {
			line += " " + r.Shielding.OperationID
		}
		if r.Shielding.Reason != "" {
			line += " (" + r.Shielding.Reason + ")"
		}
		fmt.Printf("  Shielding:         %s\n", line)
	}
	if r.Status != types.StatusSettled && r.Reason != "" {
		fmt.Printf("  Reason:            %s\n", color.RedString(r.Reason))
	}

	fmt.Println("\n" + strings.Repeat("=", 60) + "\n")
}

func privacyLabel(p types.PrivacyClass) string {
	if p == types.Shielded {
		return color.MagentaString(string(p))
	}
	return string(p)
}

func coloredSwapStatus(status types.SwapStatus) string {
	s := strings.ToUpper(string(status))
	switch status {
	case types.StatusSettled:
		return color.GreenString(s)
	case types.StatusPending:
		return color.YellowString(s)
	case types.StatusFailed, types.StatusExpired:
		return color.RedString(s)
	default:
		return s
	}
}

func confirmSwap() bool {
	reader := bufio.NewReader(os.Stdin)
	fmt.Print("\nProceed with swap? (y/N): ")

	response, err := reader.ReadString('\n')
	if err != nil {
		return false
	}

	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}
