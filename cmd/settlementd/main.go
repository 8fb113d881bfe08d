// settlementd runs the payout settlement orchestrator as a standalone
// daemon, or as a one-shot demo that provisions a disposable test-network
// deployment and pays it out end to end.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/btcsuite/btclog"
	"github.com/jessevdk/go-flags"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"github.com/ledgerpay/settlement/chain/xrpld"
	"github.com/ledgerpay/settlement/client"
	"github.com/ledgerpay/settlement/preflight"
	"github.com/ledgerpay/settlement/sandbox"
	"github.com/ledgerpay/settlement/submitter"
	"github.com/ledgerpay/settlement/trust"
)

const (
	reconcileInterval  = 30 * time.Second
	demoPayoutAmount   = "25"
	demoEmployeePrefix = "employee-"
)

// options are the daemon's command line and environment options.
type options struct {
	Network    string `long:"network" env:"SETTLEMENT_NETWORK" default:"testnet" description:"Target network (testnet, devnet, mainnet)"`
	NetworkURL string `long:"networkurl" env:"SETTLEMENT_NETWORK_URL" default:"wss://s.altnet.rippletest.net:51233" description:"Websocket endpoint of the ledger node"`
	FaucetURL  string `long:"fauceturl" env:"SETTLEMENT_FAUCET_URL" default:"https://faucet.altnet.rippletest.net/accounts" description:"Test network faucet endpoint"`

	IssuerSeed string `long:"issuerseed" env:"SETTLEMENT_ISSUER_SEED" description:"Family seed of the issuing account"`
	PayoutSeed string `long:"payoutseed" env:"SETTLEMENT_PAYOUT_SEED" description:"Family seed of the treasury account"`

	AssetCode           string `long:"assetcode" env:"SETTLEMENT_ASSET_CODE" default:"USD" description:"Three character code of the issued asset"`
	PerTransactionCap   string `long:"cap" env:"SETTLEMENT_CAP" default:"0" description:"Per transaction payout cap, 0 disables"`
	AllowIssuerPayments bool   `long:"allowissuerpayments" env:"SETTLEMENT_ALLOW_ISSUER_PAYMENTS" description:"Permit payouts drawn directly from the issuing account"`

	DBPath      string `long:"dbpath" env:"SETTLEMENT_DB_PATH" default:"settlement.db" description:"Settlement record database path"`
	MetricsAddr string `long:"metricsaddr" env:"SETTLEMENT_METRICS_ADDR" description:"Listen address for the Prometheus metrics endpoint"`
	DebugLevel  string `long:"debuglevel" env:"SETTLEMENT_DEBUG_LEVEL" default:"info" description:"Logging level (trace, debug, info, warn, error)"`

	Demo          bool `long:"demo" description:"Provision a disposable test network deployment and pay it out"`
	DemoEmployees int  `long:"demoemployees" default:"3" description:"Number of employee wallets to provision in demo mode"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "settlementd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	opts := &options{}
	if _, err := flags.Parse(opts); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) &&
			flagsErr.Type == flags.ErrHelp {

			return nil
		}
		return err
	}

	logger, err := setupLoggers(opts.DebugLevel)
	if err != nil {
		return err
	}

	capAmount, err := decimal.NewFromString(opts.PerTransactionCap)
	if err != nil {
		return fmt.Errorf("invalid cap %q: %w",
			opts.PerTransactionCap, err)
	}

	ctx, stop := signal.NotifyContext(
		context.Background(), os.Interrupt, syscall.SIGTERM,
	)
	defer stop()

	resolver := client.NewStaticResolver(nil)

	cl, err := client.New(&client.Config{
		NetworkURL:          opts.NetworkURL,
		Network:             opts.Network,
		FaucetURL:           opts.FaucetURL,
		IssuerSeed:          opts.IssuerSeed,
		PayoutSeed:          opts.PayoutSeed,
		AssetCode:           opts.AssetCode,
		PerTransactionCap:   capAmount,
		AllowIssuerPayments: opts.AllowIssuerPayments,
		DBPath:              opts.DBPath,
		DBInMemory:          opts.Demo,
		Resolver:            resolver,
	})
	if err != nil {
		return err
	}
	defer func() {
		_ = cl.Stop()
	}()

	if err := cl.Start(ctx); err != nil {
		return err
	}

	if opts.MetricsAddr != "" {
		go serveMetrics(opts.MetricsAddr, logger)
	}

	if opts.Demo {
		return runDemo(ctx, cl, resolver, opts, logger)
	}

	return runDaemon(ctx, cl, logger)
}

// runDaemon reconciles unresolved records periodically until the process is
// signalled to stop.
func runDaemon(ctx context.Context, cl *client.Client,
	logger btclog.Logger) error {

	logger.Infof("Settlement daemon running")

	ticker := time.NewTicker(reconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			n, err := cl.ReconcileAll(ctx)
			if err != nil {
				logger.Warnf("Reconciliation pass failed: %v",
					err)
				continue
			}
			if n > 0 {
				logger.Infof("Reconciled %d records", n)
			}

		case <-ctx.Done():
			logger.Infof("Shutting down")
			return nil
		}
	}
}

// runDemo provisions a sandbox deployment and pays every employee once.
func runDemo(ctx context.Context, cl *client.Client,
	resolver *client.StaticResolver, opts *options,
	logger btclog.Logger) error {

	faucet := xrpld.NewFaucetClient(
		xrpld.DefaultFaucetConfig(opts.FaucetURL),
	)

	sb, err := sandbox.New(&sandbox.Config{
		Network:       opts.Network,
		AssetCode:     opts.AssetCode,
		Ledger:        cl.Ledger(),
		Faucet:        faucet,
		Trust:         cl.Trust(),
		Submitter:     cl.Submitter(),
		Wallets:       cl.Wallets(),
		EmployeeCount: opts.DemoEmployees,
	})
	if err != nil {
		return err
	}

	env, err := sb.Run(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Issuer:   %s (seed %s)\n", env.Issuer.Wallet.Address(),
		env.Issuer.Seed)
	fmt.Printf("Treasury: %s (seed %s)\n", env.Treasury.Wallet.Address(),
		env.Treasury.Seed)

	amount, err := decimal.NewFromString(demoPayoutAmount)
	if err != nil {
		return err
	}

	for i, employee := range env.Employees {
		name := fmt.Sprintf("%s%d", demoEmployeePrefix, i+1)
		resolver.Add(name, employee.Wallet.Address())

		result, err := cl.SubmitPayout(ctx, name, amount)
		if err != nil {
			return fmt.Errorf("payout to %s failed: %w", name, err)
		}

		fmt.Printf("%s -> %s: success=%t %s\n", name,
			employee.Wallet.Address(), result.Success,
			result.Message)
	}

	records, err := cl.History(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("\nSettlement history (%d records):\n", len(records))
	for _, rec := range records {
		fmt.Printf("  #%d %s %s %s status=%s tx=%s\n", rec.ID,
			rec.Beneficiary, rec.Amount, rec.Currency, rec.Status,
			rec.TxHash)
	}

	return nil
}

// serveMetrics exposes the Prometheus registry over HTTP.
func serveMetrics(addr string, logger btclog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	logger.Infof("Metrics listening on %s", addr)

	srv := &http.Server{
		Addr:        addr,
		Handler:     mux,
		ReadTimeout: 5 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		logger.Errorf("Metrics server stopped: %v", err)
	}
}

// setupLoggers initializes one logger per subsystem at the requested level
// and returns the daemon's own logger.
func setupLoggers(level string) (btclog.Logger, error) {
	lvl, ok := btclog.LevelFromString(level)
	if !ok {
		return nil, fmt.Errorf("invalid debug level %q", level)
	}

	backend := btclog.NewBackend(os.Stdout)

	newLogger := func(tag string) btclog.Logger {
		l := backend.Logger(tag)
		l.SetLevel(lvl)
		return l
	}

	xrpld.UseLogger(newLogger("XRPL"))
	submitter.UseLogger(newLogger("SBMT"))
	trust.UseLogger(newLogger("TRST"))
	preflight.UseLogger(newLogger("PFLT"))
	sandbox.UseLogger(newLogger("SBOX"))
	client.UseLogger(newLogger("CLNT"))

	return newLogger("MAIN"), nil
}
