package main

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/spf13/cobra"

	"github.com/Plumbridge/FinP2P-sub003/config"
	"github.com/Plumbridge/FinP2P-sub003/kv"
	"github.com/Plumbridge/FinP2P-sub003/ledger/mock"
	"github.com/Plumbridge/FinP2P-sub003/logging"
	"github.com/Plumbridge/FinP2P-sub003/metrics"
	"github.com/Plumbridge/FinP2P-sub003/peering"
	"github.com/Plumbridge/FinP2P-sub003/router"
	"go.uber.org/zap"
)

func initStartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "validate configuration and run the router until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := cmd.Flags().GetString("config")
			if err != nil {
				return err
			}
			return runStart(path)
		},
	}
	return cmd
}

// runStart wires config, logging, metrics, the kv store and the peering
// host into a Router and blocks until SIGINT/SIGTERM.
func runStart(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log, err := logging.New(cfg.RouterID, logging.ParseLevel(cfg.Monitoring.LogLevel), nil)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("routerd: open kv store: %w", err)
	}
	defer store.Close() //nolint:errcheck

	signKey := deriveSignKey(cfg.Security.EncryptionKey)
	hostKey, err := deriveHostKey(cfg.Security.EncryptionKey)
	if err != nil {
		return fmt.Errorf("routerd: derive libp2p host identity: %w", err)
	}

	peerSpecs := make([]peering.PeerSpec, 0, len(cfg.Network.Peers))
	for _, raw := range cfg.Network.Peers {
		spec, err := peering.ParsePeerURL(raw)
		if err != nil {
			return fmt.Errorf("routerd: network.peers: %w", err)
		}
		peerSpecs = append(peerSpecs, spec)
	}

	peers, err := peering.New(ctx, log.Named("peering"), peering.Config{
		RouterID:   cfg.RouterID,
		ListenPort: cfg.Network.ListenPort,
		HostKey:    hostKey,
		SignKey:    signKey,
		Peers:      peerSpecs,
	})
	if err != nil {
		return fmt.Errorf("routerd: start peering host: %w", err)
	}

	reg := metrics.New()

	r, err := router.New(log, cfg, store, peers, reg, signKey)
	if err != nil {
		return fmt.Errorf("routerd: build router: %w", err)
	}

	for ledgerID, lc := range cfg.Ledgers {
		if lc.Type == "mock" {
			r.RegisterLedgerAdapter(mock.New(ledgerID))
		}
	}

	log.Infow("starting router", "routerId", cfg.RouterID, "ledgers", len(cfg.Ledgers))
	r.Start(ctx)
	defer r.Stop()

	<-ctx.Done()
	log.Infow("shutdown signal received, draining", "routerId", cfg.RouterID)
	return nil
}

const badgerURLPrefix = "badger://"

// openStore picks the kv.Store backing: a real Redis connection in
// production, an embedded badger database for a durable single-node
// deployment (redis.url = "badger://<dir>"), or the in-process store for
// tests and throwaway dev runs (redis.url = "" or "memory").
func openStore(ctx context.Context, cfg config.Config, log *zap.SugaredLogger) (kv.Store, error) {
	switch {
	case cfg.Redis.URL == "" || cfg.Redis.URL == "memory":
		return kv.NewMemoryStore(), nil
	case strings.HasPrefix(cfg.Redis.URL, badgerURLPrefix):
		return kv.NewBadgerStore(strings.TrimPrefix(cfg.Redis.URL, badgerURLPrefix))
	default:
		return kv.NewRedisStore(ctx, cfg.Redis.URL, log)
	}
}

// deriveSignKey turns the configured encryption key into a deterministic
// Ed25519 identity for this router's outgoing envelopes and confirmation
// record signatures, instead of requiring operators to manage a second key
// material file.
func deriveSignKey(encryptionKey string) ed25519.PrivateKey {
	seed := sha256.Sum256([]byte(encryptionKey))
	return ed25519.NewKeyFromSeed(seed[:])
}

// deriveHostKey builds this router's libp2p transport identity.
// Domain-separated from deriveSignKey so the envelope-signing key and the
// host transport key are never the same bytes.
func deriveHostKey(encryptionKey string) (crypto.PrivKey, error) {
	seed := sha256.Sum256([]byte("finp2p-host:" + encryptionKey))
	priv := ed25519.NewKeyFromSeed(seed[:])
	hostKey, err := crypto.UnmarshalEd25519PrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("unmarshal libp2p host key: %w", err)
	}
	return hostKey, nil
}
