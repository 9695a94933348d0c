package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/tos-network/ledgervault/internal/api"
	"github.com/tos-network/ledgervault/internal/chainstore"
	"github.com/tos-network/ledgervault/internal/config"
	"github.com/tos-network/ledgervault/internal/gossip"
	"github.com/tos-network/ledgervault/internal/mining"
	"github.com/tos-network/ledgervault/internal/verifier"
	"github.com/tos-network/ledgervault/internal/zaplog"
)

// commandMigrate applies internal/chainstore/schema.sql against
// DATABASE_URL and exits, grounded in the teacher's own migrate-then-run
// split for operational commands.
var commandMigrate = &cli.Command{
	Name:  "migrate",
	Usage: "apply the chain store schema and exit",
	Action: func(c *cli.Context) error {
		log := zaplog.New(zaplog.Options{Component: "migrate", Debug: c.Bool(debugFlag.Name), JSON: c.Bool(jsonLogFlag.Name)})
		cfg, err := config.Load(c.String(configFlag.Name))
		if err != nil {
			return err
		}
		store, err := chainstore.Open(cfg.DatabaseURL, log)
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.Migrate(context.Background()); err != nil {
			return err
		}
		log.Info("schema applied")
		return nil
	},
}

// runNode is the default action: it wires C1 (chain store) to C3 (verifier)
// to C2 (mining coordinator) to C4 (peer gossip), starts the HTTP API and
// the P2P acceptor, and blocks until SIGTERM/SIGINT (spec §9's
// process-wide-singleton lifecycle: constructed before the HTTP server
// starts, shut down on signal).
func runNode(c *cli.Context) error {
	log := zaplog.New(zaplog.Options{Component: "node", Debug: c.Bool(debugFlag.Name), JSON: c.Bool(jsonLogFlag.Name)})

	cfg, err := config.Load(c.String(configFlag.Name))
	if err != nil {
		return err
	}

	store, err := chainstore.Open(cfg.DatabaseURL, log)
	if err != nil {
		return fmt.Errorf("ledgernode: open chain store: %w", err)
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := store.LoadChainFromStore(ctx); err != nil {
		return fmt.Errorf("ledgernode: warm chain view: %w", err)
	}

	hub := gossip.New(store, log.Named("gossip"))
	coordinator := mining.New(store, hub, cfg.Difficulty, cfg.MiningTimeoutMs, cfg.GenesisHash, log.Named("mining"))
	v := verifier.New(store, verifier.DefaultPeriod, verifier.DefaultBatchSize, log.Named("verifier"))

	server := api.New(store, coordinator, hub, cfg.MaxDataSize, log.Named("api"))

	v.Start(ctx)
	defer v.Stop()

	hub.Start(ctx, cfg.Peers)
	defer hub.Stop()

	p2pMux := http.NewServeMux()
	p2pMux.Handle("/", hub)
	p2pListener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.P2PPort))
	if err != nil {
		return fmt.Errorf("ledgernode: listen p2p: %w", err)
	}
	p2pServer := &http.Server{Handler: p2pMux}
	go func() {
		if err := p2pServer.Serve(p2pListener); err != nil && err != http.ErrServerClosed {
			log.Error("p2p server stopped", zap.Error(err))
		}
	}()
	defer p2pServer.Close()

	apiServer := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Port), Handler: server}
	go func() {
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("api server stopped", zap.Error(err))
		}
	}()
	defer apiServer.Close()

	log.Info("ledgernode started",
		zap.Int("port", cfg.Port), zap.Int("p2p_port", cfg.P2PPort), zap.Int("difficulty", cfg.Difficulty))

	<-ctx.Done()
	log.Info("ledgernode shutting down")
	return nil
}
