package app

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/zulelabs/marketd/internal/asset/evm"
	assetmem "github.com/zulelabs/marketd/internal/asset/memory"
	s3blob "github.com/zulelabs/marketd/internal/blob/s3"
	"github.com/zulelabs/marketd/internal/bus"
	"github.com/zulelabs/marketd/internal/cache/redis"
	"github.com/zulelabs/marketd/internal/config"
	"github.com/zulelabs/marketd/internal/crypto"
	"github.com/zulelabs/marketd/internal/domain"
	ledgermem "github.com/zulelabs/marketd/internal/ledger/memory"
	"github.com/zulelabs/marketd/internal/server/handler"
	"github.com/zulelabs/marketd/internal/server/ws"
	"github.com/zulelabs/marketd/internal/store/memory"
	"github.com/zulelabs/marketd/internal/store/postgres"
)

// Dependencies bundles every backend the marketplace services need. It is
// constructed by WireServe or WireLocal and torn down by the returned cleanup
// function.
type Dependencies struct {
	Listings domain.ListingStore
	Fees     domain.FeePolicyStore
	Admin    domain.AdminStore
	Ledger   domain.BalanceLedger
	Journal  domain.EventJournal

	Bus  domain.EventBus
	Feed ws.Feed

	Adapters domain.AdapterSet
	Operator common.Address

	// Serve mode only; nil in local mode.
	Locks   domain.LockManager
	Limiter domain.RateLimiter
	Sink    *s3blob.JournalArchiver

	Health map[string]handler.Pinger
}

// WireServe builds the production stack: postgres stores, redis
// coordination, on-chain asset adapters, and the optional S3 journal
// archiver.
func WireServe(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	operatorKey, err := crypto.ResolveOperatorKey(crypto.KeySource{
		RawHex:     cfg.Evm.OperatorKey,
		SealedPath: cfg.Evm.SealedKeyPath,
		Password:   cfg.Evm.KeyPassword,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: %w", err)
	}

	adapters, err := evm.Dial(ctx, evm.Config{
		RPCURL:         cfg.Evm.RPCURL,
		ChainID:        cfg.Evm.ChainID,
		OperatorKeyHex: operatorKey,
		MinedTimeout:   cfg.Evm.MinedTimeout.Duration,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: %w", err)
	}

	pool := pgClient.Pool()
	eventBus := redis.NewEventBus(redisClient)
	deps := &Dependencies{
		Listings: postgres.NewListingStore(pool),
		Fees:     postgres.NewFeePolicyStore(pool),
		Admin:    postgres.NewAdminStore(pool),
		Ledger:   postgres.NewLedgerStore(pool),
		Journal:  postgres.NewEventStore(pool),
		Bus:      eventBus,
		Feed:     eventBus,
		Adapters: adapters.Set(),
		Operator: adapters.Operator,
		Locks:    redis.NewLockManager(redisClient),
		Limiter:  redis.NewRateLimiter(redisClient),
		Health: map[string]handler.Pinger{
			"postgres": pgClient,
			"redis":    redisClient,
		},
	}

	if cfg.Archive.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })
		deps.Sink = s3blob.NewJournalArchiver(s3blob.NewWriter(s3Client), deps.Journal)
	}

	logger.InfoContext(ctx, "serve stack wired",
		slog.String("operator", adapters.Operator.Hex()),
		slog.Bool("archive", cfg.Archive.Enabled),
	)
	return deps, cleanup, nil
}

// localOperator is the marketplace identity in local mode. The in-memory
// registries execute transfers for it once a holder has granted approval.
var localOperator = common.HexToAddress("0x00000000000000000000000000000000000c0de0")

// Demo identities seeded in local mode so listings can be exercised without
// a chain or a mint API.
var (
	localContract = common.HexToAddress("0x0000000000000000000000000000000000000001")
	localSeller   = common.HexToAddress("0x00000000000000000000000000000000000000aa")
)

// WireLocal builds a fully in-process stack: memory stores, the in-memory
// asset registries, and the in-process event bus. Nothing survives a
// restart; local mode exists for development and demos.
func WireLocal(cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	membus := bus.NewMemory()
	single := assetmem.NewSingleUnit(localOperator)
	multi := assetmem.NewMultiUnit(localOperator)
	seedLocalAssets(single, multi)

	deps := &Dependencies{
		Listings: memory.NewListingStore(),
		Fees:     memory.NewFeePolicyStore(),
		Admin:    memory.NewAdminStore(),
		Ledger:   ledgermem.New(),
		Journal:  memory.NewEventJournal(),
		Bus:      membus,
		Feed:     membus,
		Adapters: domain.AdapterSet{
			domain.AssetSingleUnit: single,
			domain.AssetMultiUnit:  multi,
		},
		Operator: localOperator,
		Health:   map[string]handler.Pinger{},
	}

	logger.Info("local stack wired",
		slog.String("operator", localOperator.Hex()),
		slog.String("demo_contract", localContract.Hex()),
		slog.String("demo_seller", localSeller.Hex()),
	)
	return deps, func() {}, nil
}

// seedLocalAssets mints a small demo inventory to the demo seller with
// operator approval already granted: single-unit asset ids 1-3 and 1000
// units of multi-unit asset id 100.
func seedLocalAssets(single *assetmem.SingleUnitRegistry, multi *assetmem.MultiUnitRegistry) {
	for id := int64(1); id <= 3; id++ {
		single.Mint(localContract, big.NewInt(id), localSeller)
	}
	single.SetApprovalForAll(localContract, localSeller, localOperator, true)

	multi.Mint(localContract, big.NewInt(100), localSeller, 1000)
	multi.SetApprovalForAll(localContract, localSeller, localOperator, true)
}
