package app

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"wcsign/internal/config"
	"wcsign/internal/domain"
	"wcsign/internal/store"
)

// Overrides replace parts of the graph NewWire would otherwise build from
// config. A nil field selects the configured component.
type Overrides struct {
	Relay  domain.Relay
	KV     domain.KeyValueStore
	Caller domain.ContractCaller
	Log    *zerolog.Logger
}

// openKV returns the configured key-value backend and a function releasing it.
func openKV(ctx context.Context, cfg config.StorageConfig) (domain.KeyValueStore, func() error, error) {
	switch cfg.Backend {
	case config.BackendFile:
		fs, err := store.NewFileStore(cfg.Dir)
		if err != nil {
			return nil, nil, err
		}
		return fs, nil, nil
	case config.BackendRedis:
		rdb := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{cfg.RedisAddr}})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, nil, fmt.Errorf("redis %s: %w", cfg.RedisAddr, err)
		}
		return store.NewRedisStore(rdb, cfg.Prefix), rdb.Close, nil
	default:
		return store.NewMemoryStore(), nil, nil
	}
}

// metadataFrom converts the [metadata] section into the app metadata sent
// to peers.
func metadataFrom(cfg config.MetadataConfig) domain.AppMetadata {
	md := domain.AppMetadata{
		Name:        cfg.Name,
		Description: cfg.Description,
		URL:         cfg.URL,
		Icons:       cfg.Icons,
	}
	if md.Icons == nil {
		md.Icons = []string{}
	}
	if cfg.Native != "" || cfg.Universal != "" {
		md.Redirect = &domain.Redirect{Native: cfg.Native, Universal: cfg.Universal, LinkMode: cfg.LinkMode}
	}
	return md
}
