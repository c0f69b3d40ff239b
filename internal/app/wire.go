package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	s3blob "github.com/alanyoungcy/bondd/internal/blob/s3"
	"github.com/alanyoungcy/bondd/internal/cache/redis"
	"github.com/alanyoungcy/bondd/internal/chain"
	"github.com/alanyoungcy/bondd/internal/config"
	"github.com/alanyoungcy/bondd/internal/crypto"
	"github.com/alanyoungcy/bondd/internal/domain"
	"github.com/alanyoungcy/bondd/internal/notify"
	"github.com/alanyoungcy/bondd/internal/platform/coingecko"
	"github.com/alanyoungcy/bondd/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application modes
// need to operate. It is constructed by Wire and torn down by the returned
// cleanup function.
type Dependencies struct {
	// Stores
	Postgres      *postgres.Client
	BondStore     domain.BondStore
	IssuanceStore domain.IssuanceStore
	AuditStore    domain.AuditStore

	// Caches
	Redis       *redis.Client
	BondCache   domain.BondCache
	PriceCache  domain.PriceCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Chain
	Chain     *ethclient.Client
	Reader    *chain.Reader
	Submitter *chain.Submitter // nil when no operator key is configured

	// Reference prices
	PriceSource domain.EthPriceSource

	// Blob storage, only when archiving is enabled
	S3         *s3blob.Client
	BlobReader domain.BlobReader
	Archiver   domain.Archiver

	// Notifications
	Notifier *notify.Notifier
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(what string, err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, fmt.Errorf("wire: %s: %w", what, err)
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
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
		return fail("postgres", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			return fail("postgres migrations", err)
		}
	}

	pool := pgClient.Pool()
	deps.Postgres = pgClient
	deps.BondStore = postgres.NewBondStore(pool)
	deps.IssuanceStore = postgres.NewIssuanceStore(pool)
	deps.AuditStore = postgres.NewAuditStore(pool)

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		return fail("redis", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.Redis = redisClient
	deps.BondCache = redis.NewBondCache(redisClient, cfg.Redis.CatalogTTL.Duration)
	deps.PriceCache = redis.NewPriceCache(redisClient, cfg.Redis.PriceTTL.Duration)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)

	// --- Ethereum node and vault ---
	ethClient, chainID, err := chain.Dial(ctx, cfg.Chain.RPCURL)
	if err != nil {
		return fail("chain", err)
	}
	closers = append(closers, ethClient.Close)
	if chainID.Int64() != cfg.Chain.ChainID {
		return fail("chain", fmt.Errorf("node reports chain id %s, config expects %d", chainID, cfg.Chain.ChainID))
	}

	vault := common.HexToAddress(cfg.Chain.VaultAddress)
	deps.Chain = ethClient
	deps.Reader = chain.NewReader(ethClient, vault)

	keySrc := crypto.KeySource{
		RawHex:   cfg.Wallet.PrivateKey,
		KeyFile:  cfg.Wallet.EncryptedKeyPath,
		Password: cfg.Wallet.KeyPassword,
	}
	if keySrc.Configured() {
		key, err := crypto.LoadKey(keySrc)
		if err != nil {
			return fail("wallet", err)
		}
		signer, err := crypto.NewSigner(key, chainID)
		if err != nil {
			return fail("wallet", err)
		}
		tx := chain.NewTransactor(ethClient, signer, vault)
		deps.Submitter = chain.NewSubmitter(tx, ethClient, cfg.Chain.ReceiptInterval.Duration)
		logger.InfoContext(ctx, "operator wallet loaded", slog.String("address", signer.Address().Hex()))
	} else if cfg.NeedsWallet() {
		return fail("wallet", fmt.Errorf("mode %s signs transactions but no key is configured", cfg.Mode))
	}

	// --- Reference prices ---
	deps.PriceSource = coingecko.NewClient(cfg.Price.CoinGeckoURL, cfg.Price.CoinGeckoAPIKey)

	// --- S3 blob storage (only when archiving is enabled) ---
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
			return fail("s3", err)
		}
		deps.S3 = s3Client
		deps.BlobReader = s3blob.NewReader(s3Client)
		deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(s3Client), deps.IssuanceStore, deps.AuditStore, logger)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
