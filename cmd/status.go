package cmd

import (
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
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"zcash-near-intents/pkg/client"
	"zcash-near-intents/pkg/store"
	"zcash-near-intents/pkg/types"
)

var (
	watchStatus   bool
	watchInterval int
)

var statusCmd = &cobra.Command{
	Use:   "status <swap-id | intent-hash>",
	Short: "Check the status of a swap",
	Long: `Check a swap by its id from the local history, or any intent by its hash.
The relay is asked for the live settlement status when an intent hash is known.

Examples:
  zcash-near-intents status 3f0c9b1e-...
  zcash-near-intents status 3f0c9b1e-... --watch
  zcash-near-intents status <intent-hash> --watch --interval 10`,
	Args: cobra.ExactArgs(1),
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().BoolVarP(&watchStatus, "watch", "w", false, "Watch status updates until the intent settles")
	statusCmd.Flags().IntVar(&watchInterval, "interval", 5, "Polling interval in seconds (when watching)")
}

func runStatus(cmd *cobra.Command, args []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	a, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := a.openStore(); err != nil {
		return err
	}

	var (
		record     *types.SwapResult
		intentHash = args[0]
	)
	record, err = a.store.Get(args[0])
	switch {
	case err == nil:
		intentHash = record.IntentHash
	case errors.Is(err, store.ErrNotFound):
		record = nil
	default:
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var relay *client.SolverBus
	if intentHash != "" {
		relay, err = client.NewSolverBus(ctx, client.SolverBusConfig{URL: a.cfg.Relay.URL}, a.registry, a.log)
		if err != nil {
			return err
		}
		defer relay.Close()
	}

	if watchStatus {
		if jsonOutput {
			return errors.New("watch mode not supported with JSON output")
		}
		if relay == nil {
			return errors.Errorf("swap %s never reached the relay", args[0])
		}
		return watchIntentStatus(ctx, relay, record, intentHash)
	}

	var live *client.IntentStatus
	if relay != nil {
		s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
		if !jsonOutput {
			s.Suffix = " Checking relay status..."
			s.Start()
		}
		live, err = relay.Status(ctx, intentHash)
		if !jsonOutput {
			s.Stop()
		}
		if err != nil && record == nil {
			return err
		}
		if err != nil {
			color.Yellow("\nRelay status unavailable: %v", err)
		}
	}

	if jsonOutput {
		jsonData, _ := json.MarshalIndent(map[string]interface{}{
			"swap":  record,
			"relay": live,
		}, "", "  ")
		fmt.Println(string(jsonData))
		return nil
	}

	if record != nil {
		displaySwapResult(record)
	}
	if live != nil {
		displayRelayStatus(live)
	}
	return nil
}

func watchIntentStatus(ctx context.Context, relay *client.SolverBus, record *types.SwapResult, intentHash string) error {
	if watchInterval < 1 {
		watchInterval = 1
	}
	fmt.Printf("\nWatching intent %s\n", color.CyanString(intentHash))
	fmt.Printf("Checking every %d seconds. Press Ctrl+C to stop.\n\n", watchInterval)

	if record != nil {
		displaySwapResult(record)
	}

	ticker := time.NewTicker(time.Duration(watchInterval) * time.Second)
	defer ticker.Stop()

	for {
		st, err := relay.Status(ctx, intentHash)
		if err != nil {
			color.Red("Error: %v", err)
		} else {
			displayRelayStatus(st)
			if st.Status == client.RelaySettled || st.Status == client.RelayNotFound {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func displayRelayStatus(st *client.IntentStatus) {
	fmt.Printf("  [%s] Relay: %s", time.Now().Format("15:04:05"), getColoredStatus(st.Status))
	if st.TxHash != "" {
		fmt.Printf("  tx %s", color.HiBlackString(st.TxHash))
	}
	fmt.Println()
}

func getColoredStatus(status client.RelayStatus) string {
	s := strings.ToUpper(string(status))

	switch status {
	case client.RelaySettled:
		return color.GreenString(s)
	case client.RelayPending, client.RelayBroadcasted:
		return color.YellowString(s)
	case client.RelayNotFound:
		return color.RedString(s)
	default:
		return s
	}
}
