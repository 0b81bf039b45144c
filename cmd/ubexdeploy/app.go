package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Bidon15/ubexdeploy/internal/config"
	"github.com/Bidon15/ubexdeploy/internal/deploy"
	"github.com/Bidon15/ubexdeploy/internal/directory"
	"github.com/Bidon15/ubexdeploy/internal/logging"
	"github.com/Bidon15/ubexdeploy/internal/metrics"
	"github.com/Bidon15/ubexdeploy/internal/plans"
	"github.com/Bidon15/ubexdeploy/internal/platform/evm"
	"github.com/Bidon15/ubexdeploy/internal/platform/memory"
	"github.com/Bidon15/ubexdeploy/internal/verify"
)

// Platform deploys components and reads their state.
type Platform interface {
	deploy.Deployer
	verify.Reader
	Deployer() common.Address
}

// app holds the collaborators shared by the commands of one invocation.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *metrics.Metrics
	closers []func()
}

// loadConfig merges flags, environment and config file into a validated
// configuration.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	v := viper.New()
	for flag, key := range flagKeys {
		if f := cmd.Flags().Lookup(flag); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("bind flag %s: %w", flag, err)
			}
		}
	}
	return config.Load(v, cfgFile)
}

func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, logger: logger, metrics: metrics.New()}, nil
}

// Close releases every opened connection, newest first.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *app) network() deploy.Selector {
	return deploy.Selector(a.cfg.Network)
}

// openDirectory connects the configured deployment directory.
func (a *app) openDirectory(ctx context.Context) (directory.Directory, error) {
	dc := a.cfg.Directory
	switch dc.Driver {
	case config.DirectoryMemory:
		return directory.NewMemory(), nil

	case config.DirectoryFile:
		return directory.NewFile(dc.Path), nil

	case config.DirectoryPostgres:
		if err := directory.Migrate(dc.DatabaseURL); err != nil {
			return nil, err
		}
		pool, err := pgxpool.New(ctx, dc.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		a.closers = append(a.closers, pool.Close)
		return directory.NewPostgres(pool), nil

	case config.DirectoryRedis:
		client := redis.NewClient(&redis.Options{Addr: dc.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		a.closers = append(a.closers, func() { _ = client.Close() })
		return directory.NewRedis(client), nil

	default:
		return nil, fmt.Errorf("unknown directory driver %q", dc.Driver)
	}
}

// openPlatform connects the configured deployment platform.
func (a *app) openPlatform(ctx context.Context) (Platform, error) {
	if err := a.cfg.ValidatePlatform(); err != nil {
		return nil, err
	}
	switch a.cfg.Platform.Driver {
	case config.PlatformMemory:
		blueprints := memory.WithBlueprints(plans.MemoryBlueprints(memory.DefaultDeployer))
		path := a.cfg.MemoryStatePath()
		if path == "" {
			return memory.New(blueprints), nil
		}
		return memory.Open(path, blueprints)

	case config.PlatformEVM:
		chainID := new(big.Int).SetUint64(a.cfg.RPC.ChainID)
		signer, err := evm.NewKeySigner(a.cfg.Deployer.PrivateKey, chainID)
		if err != nil {
			return nil, err
		}

		artifacts, err := evm.LoadFromDirectory(a.cfg.Artifacts.Dir, componentNames()...)
		if err != nil {
			return nil, fmt.Errorf("load artifacts: %w", err)
		}

		client, err := ethclient.DialContext(ctx, a.cfg.RPC.URL)
		if err != nil {
			return nil, fmt.Errorf("dial rpc: %w", err)
		}
		a.closers = append(a.closers, client.Close)

		return evm.New(client, signer, artifacts, evm.Config{Logger: a.logger}), nil

	default:
		return nil, fmt.Errorf("unknown platform driver %q", a.cfg.Platform.Driver)
	}
}

// componentNames lists every component a plan can deploy.
func componentNames() []string {
	return deploy.Plan{Descriptors: plans.Descriptors()}.Names()
}
