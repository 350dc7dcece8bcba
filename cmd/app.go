package cmd

import (
	"context"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"zcash-near-intents/config"
	"zcash-near-intents/pkg/account"
	"zcash-near-intents/pkg/client"
	"zcash-near-intents/pkg/engine"
	"zcash-near-intents/pkg/intent"
	"zcash-near-intents/pkg/portfolio"
	"zcash-near-intents/pkg/store"
	"zcash-near-intents/pkg/types"
	"zcash-near-intents/pkg/zcash"
)

// app holds the wired components a command needs
type app struct {
	cfg      *config.Config
	log      *logrus.Logger
	registry *types.Registry

	keys    *account.KeyStore
	relay   *client.SolverBus
	near    *client.NearRPC
	wallet  *zcash.Wallet
	tracker *portfolio.Tracker
	store   *store.Store
	engine  *engine.Engine
	nonces  *intent.RedisNonces
}

// loadConfig reads the config file and builds the logger and asset registry
func loadConfig(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	log := cfg.NewLogger()
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	registry, err := cfg.Registry()
	if err != nil {
		return nil, err
	}

	return &app{cfg: cfg, log: log, registry: registry}, nil
}

func (a *app) oneClick() *client.OneClickClient {
	return client.NewOneClickClient(a.cfg.OneClick.BaseURL, a.cfg.OneClick.JWTToken)
}

func (a *app) openStore() error {
	if a.store != nil {
		return nil
	}
	s, err := store.New(a.cfg.Store.Path)
	if err != nil {
		return err
	}
	a.store = s
	return nil
}

func (a *app) loadKeys() error {
	if a.keys != nil {
		return nil
	}

	var (
		keys *account.KeyStore
		err  error
	)
	if a.cfg.Account.CredentialsFile != "" {
		keys, err = account.LoadFile(a.cfg.Account.CredentialsFile)
	} else {
		keys, err = account.New(a.cfg.Account.ID, a.cfg.Account.PrivateKey)
	}
	if err != nil {
		return errors.Wrap(err, "failed to load NEAR credentials (set account.credentials_file or ZNI_ACCOUNT_ID/ZNI_ACCOUNT_PRIVATE_KEY)")
	}
	a.keys = keys
	return nil
}

// openPortfolio wires the chain queries and the tracker for the configured account
func (a *app) openPortfolio() error {
	if a.tracker != nil {
		return nil
	}
	if err := a.loadKeys(); err != nil {
		return err
	}

	walletCfg, err := a.cfg.WalletConfig()
	if err != nil {
		return err
	}
	a.near = client.NewNearRPC(a.cfg.Near.RPCURL, a.cfg.Near.Timeout, a.registry)
	a.wallet = zcash.NewWallet(walletCfg, a.log)

	router := portfolio.NewChainRouter().
		Route(types.ChainNEAR, a.near).
		Route(types.ChainZEC, a.wallet)

	trackerCfg, err := a.cfg.TrackerConfig(a.keys.AccountID(), a.registry.Pairs())
	if err != nil {
		return err
	}
	trackerCfg.OnWarning = func(w portfolio.Warning) {
		color.Yellow("\nPortfolio warning: %v", w.Err())
	}
	a.tracker = portfolio.NewTracker(trackerCfg, router, a.log)
	return nil
}

// confirmPortfolio runs the confirming refresh for a settled swap before the tracker is
// closed and returns the assets the chain has not reflected yet
func (a *app) confirmPortfolio(ctx context.Context, result *types.SwapResult) []types.Asset {
	if a.tracker == nil || result == nil || result.Status != types.StatusSettled {
		return nil
	}
	if _, err := a.tracker.Confirm(ctx); err != nil {
		a.log.WithError(err).Warn("Confirming portfolio refresh failed")
	}
	return a.tracker.Pending()
}

// openEngine wires everything a swap needs
func (a *app) openEngine(ctx context.Context, wait bool) error {
	if err := a.openStore(); err != nil {
		return err
	}
	if err := a.openPortfolio(); err != nil {
		return err
	}
	// settled swaps adjust the balances observed here
	if _, err := a.tracker.Refresh(ctx); err != nil {
		a.log.WithError(err).Warn("Portfolio baseline incomplete")
	}

	builderCfg, err := a.cfg.BuilderConfig()
	if err != nil {
		return err
	}
	builder, err := intent.NewBuilder(a.registry, builderCfg)
	if err != nil {
		return err
	}

	relay, err := client.NewSolverBus(ctx, client.SolverBusConfig{
		URL:          a.cfg.Relay.URL,
		QuoteTimeout: a.cfg.Swap.QuoteTimeout,
		MinDeadline:  a.cfg.Swap.SettlementWindow,
	}, a.registry, a.log)
	if err != nil {
		return err
	}
	a.relay = relay

	var nonces intent.NonceAllocator = intent.NewMemoryNonces()
	if a.cfg.Nonce.Backend == config.NonceRedis {
		rn, err := intent.NewRedisNonces(ctx, a.cfg.RedisNonceConfig())
		if err != nil {
			return err
		}
		a.nonces = rn
		nonces = rn
	}

	deps := engine.Deps{
		Registry:  a.registry,
		Builder:   builder,
		Relay:     relay,
		Signer:    a.keys,
		Nonces:    nonces,
		Portfolio: a.tracker,
		Recorder:  a.store,
	}
	if a.cfg.Zcash.ShieldedAddress != "" {
		deps.Shielder = a.wallet
	}

	engineCfg := a.cfg.EngineConfig()
	engineCfg.WaitForSettlement = wait

	e, err := engine.New(engineCfg, deps, a.log)
	if err != nil {
		return err
	}
	a.engine = e
	return nil
}

// detach releases everything except the engine, leaving in-flight swaps untouched
func (a *app) detach() {
	if a.tracker != nil {
		a.tracker.Close()
	}
	if a.nonces != nil {
		_ = a.nonces.Close()
	}
	if a.keys != nil {
		_ = a.keys.Close()
	}
}

func (a *app) close() {
	if a.engine != nil {
		a.engine.Close()
	}
	if a.relay != nil {
		a.relay.Close()
	}
	a.detach()
}
