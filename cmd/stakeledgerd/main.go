package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"stakeledger/cmd/internal/passphrase"
	"stakeledger/config"
	"stakeledger/core"
	"stakeledger/core/eventstore"
	"stakeledger/crypto"
	"stakeledger/native/staking"
	"stakeledger/observability/logging"
	"stakeledger/observability/otel"
	"stakeledger/rpc"
	"stakeledger/storage"
)

const (
	adminPassEnv = "STAKELEDGER_ADMIN_PASS"
	envVar       = "STAKELEDGER_ENV"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	ephemeral := flag.Bool("ephemeral", false, "Run with an in-memory database; state is discarded on exit")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv(envVar))
	logger := logging.Setup("stakeledgerd", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}
	if err := config.ValidateConfig(cfg); err != nil {
		logger.Error("Invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Telemetry.Enable {
		shutdown, err := otel.Init(ctx, otel.Config{
			ServiceName: "stakeledgerd",
			Environment: cfg.Environment,
			Endpoint:    cfg.Telemetry.Endpoint,
			Insecure:    cfg.Telemetry.Insecure,
			Headers:     otel.ParseHeaders(cfg.Telemetry.Headers),
			Metrics:     cfg.Telemetry.Metrics,
			Traces:      cfg.Telemetry.Traces,
		})
		if err != nil {
			logger.Error("Failed to initialise telemetry", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				logger.Error("Telemetry shutdown failed", slog.Any("error", err))
			}
		}()
	}

	var db storage.Database
	if *ephemeral {
		db = storage.NewMemDB()
	} else {
		persistent, err := storage.NewLevelDB(cfg.DataDir)
		if err != nil {
			panic(fmt.Sprintf("Failed to open database: %v", err))
		}
		db = persistent
	}
	defer db.Close()

	// Ephemeral runs keep events in memory only; a durable journal would
	// replay entries for state that no longer exists.
	var journal *eventstore.Store
	if !*ephemeral {
		eventsDir := filepath.Join(cfg.DataDir, "events")
		if err := os.MkdirAll(eventsDir, 0o755); err != nil {
			panic(fmt.Sprintf("Failed to prepare events directory: %v", err))
		}
		opened, err := eventstore.Open(filepath.Join(eventsDir, "journal.db"), nil)
		if err != nil {
			panic(fmt.Sprintf("Failed to open event journal: %v", err))
		}
		journal = opened
		defer journal.Close()
	}

	node, err := core.NewNode(db)
	if err != nil {
		panic(fmt.Sprintf("Failed to create node: %v", err))
	}
	if journal != nil {
		if err := node.SetJournal(journal); err != nil {
			panic(fmt.Sprintf("Failed to attach event journal: %v", err))
		}
	}

	if len(cfg.Genesis) > 0 {
		if err := node.ApplyGenesis(cfg.Genesis); err != nil {
			panic(fmt.Sprintf("Failed to apply genesis allocations: %v", err))
		}
	}

	passSource := passphrase.NewSource(adminPassEnv)
	adminKey, err := loadAdminKey(cfg, passSource.Get)
	if err != nil {
		panic(fmt.Sprintf("Failed to load admin key: %v", err))
	}
	var admin [20]byte
	copy(admin[:], adminKey.PubKey().Address().Bytes())

	if cfg.Pool.Enabled() {
		if err := ensurePool(node, cfg, admin, logger); err != nil {
			panic(fmt.Sprintf("Failed to bootstrap staking pool: %v", err))
		}
	}

	rpcServer, err := rpc.NewServer(node, rpc.ServerConfig{
		JWT: rpc.JWTConfig{
			Enable:         cfg.JWT.Enable,
			Alg:            cfg.JWT.Alg,
			HSSecretEnv:    cfg.JWT.HSSecretEnv,
			Issuer:         cfg.JWT.Issuer,
			Audience:       append([]string{}, cfg.JWT.Audience...),
			MaxSkewSeconds: cfg.JWT.MaxSkewSeconds,
		},
		RateLimit: rpc.RateLimit{
			RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
			Burst:             cfg.RateLimit.Burst,
		},
	})
	if err != nil {
		logger.Error("Failed to initialise RPC server", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("Stake ledger node initialised and running",
		slog.String("listen", cfg.ListenAddress),
		slog.String("dataDir", cfg.DataDir),
		slog.Bool("ephemeral", *ephemeral),
		slog.Bool("jwt", cfg.JWT.Enable),
		logging.MaskField("rpc_token", os.Getenv(rpc.AuthTokenEnv)),
		slog.String("admin", bech32Address(admin)))

	if err := rpcServer.Start(ctx, cfg.ListenAddress); err != nil {
		logger.Error("RPC server terminated", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("Shutdown complete")
}

// loadAdminKey opens the configured admin keystore. Auto-provisioned
// keystores are written without a passphrase, so the empty passphrase is
// tried before the operator secret is resolved.
func loadAdminKey(cfg *config.Config, resolvePassphrase func() (string, error)) (*crypto.PrivateKey, error) {
	if cfg.AdminKeystorePath == "" {
		return nil, fmt.Errorf("admin keystore path not configured")
	}

	if key, err := crypto.LoadFromKeystore(cfg.AdminKeystorePath, ""); err == nil {
		return key, nil
	}

	if resolvePassphrase == nil {
		return nil, fmt.Errorf("admin keystore passphrase required; set %s or run interactively", adminPassEnv)
	}
	pass, err := resolvePassphrase()
	if err != nil {
		return nil, fmt.Errorf("failed to obtain admin keystore passphrase: %w", err)
	}
	key, err := crypto.LoadFromKeystore(cfg.AdminKeystorePath, pass)
	if err != nil {
		return nil, fmt.Errorf("unable to decrypt keystore %s: %w", cfg.AdminKeystorePath, err)
	}
	return key, nil
}

// ensurePool initialises the staking pool from the config seed unless a pool
// already exists in state.
func ensurePool(node *core.Node, cfg *config.Config, admin [20]byte, logger *slog.Logger) error {
	if _, err := node.StakingPoolInfo(); err == nil {
		return nil
	} else if !errors.Is(err, staking.ErrNotInitialized) {
		return err
	}

	seed, err := cfg.Pool.Seed()
	if err != nil {
		return err
	}
	if err := node.StakingInitialize(admin, seed.Token, seed.RewardRate, seed.BonusMultiplier, seed.MinStake, seed.MaxStake); err != nil {
		return err
	}
	logger.Info("Staking pool created",
		slog.String("token", seed.Token),
		slog.String("rewardRate", seed.RewardRate.String()),
		slog.String("admin", bech32Address(admin)))
	return nil
}

func bech32Address(addr [20]byte) string {
	return crypto.MustNewAddress(crypto.StakePrefix, addr[:]).String()
}
