package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/mgpai22/bilingo/internal/audio"
	"github.com/mgpai22/bilingo/internal/cache"
	"github.com/mgpai22/bilingo/internal/config"
	"github.com/mgpai22/bilingo/internal/normalize"
	"github.com/mgpai22/bilingo/internal/pipeline"
	"github.com/mgpai22/bilingo/internal/publish"
	"github.com/mgpai22/bilingo/internal/segment"
	"github.com/mgpai22/bilingo/internal/store"
	"github.com/mgpai22/bilingo/internal/transcribe"
	"github.com/mgpai22/bilingo/internal/translate"
)

// newTranscriber builds the configured backend wrapped so calls are
// serialized and bounded by the media duration.
func newTranscriber(ctx context.Context, c *config.Config) (transcribe.Transcriber, error) {
	provider := transcribe.Provider(c.Transcribe.Provider)
	t, err := transcribe.Factory(ctx, provider, c.APIKey(string(provider)), transcribe.Options{
		Model:         c.Transcribe.Model,
		WhisperBinary: c.Transcribe.WhisperBinary,
	})
	if err != nil {
		return nil, err
	}
	return transcribe.Serialized(transcribe.WithTimeout(t, audio.Duration)), nil
}

func newBackend(ctx context.Context, c *config.Config) (translate.Backend, error) {
	provider := translate.Provider(c.Translate.Provider)
	return translate.Factory(ctx, provider, c.APIKey(string(provider)), translate.Options{
		Model:  c.Translate.Model,
		Prompt: c.Translate.Prompt,
	})
}

func newCache(ctx context.Context, c *config.Config) (cache.Cache, error) {
	switch c.Cache.Driver {
	case "redis":
		return cache.NewRedis(ctx, cache.RedisOptions{
			Addr:     c.Cache.RedisAddr,
			Password: c.Cache.RedisPassword,
			DB:       c.Cache.RedisDB,
			TTL:      c.CacheTTL(),
		})
	case "none":
		return cache.Nop{}, nil
	default:
		return cache.NewMemory(c.Cache.MaxEntries, c.CacheTTL()), nil
	}
}

func openStore(ctx context.Context, c *config.Config) (store.Store, error) {
	return store.Open(ctx, store.Options{
		Driver:  store.Driver(c.Store.Driver),
		DSN:     c.Store.DSN,
		Timeout: c.StoreTimeout(),
	})
}

// newPublisher returns nil when publishing is disabled.
func newPublisher(c *config.Config) (pipeline.Publisher, error) {
	if !c.Publish.Enabled {
		return nil, nil
	}
	p, err := publish.New(publish.Options{
		Endpoint:  c.Publish.Endpoint,
		AccessKey: c.Publish.AccessKey,
		SecretKey: c.Publish.SecretKey,
		Bucket:    c.Publish.Bucket,
		Region:    c.Publish.Region,
		UseSSL:    c.Publish.UseSSL,
		Prefix:    c.Publish.Prefix,
	}, logger)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func engineOptions(c *config.Config, tc cache.Cache) translate.EngineOptions {
	return translate.EngineOptions{
		Mode:        translate.Mode(c.Translate.Mode),
		BatchSize:   c.Translate.BatchSize,
		Concurrency: c.Translate.Concurrency,
		Retry: translate.RetryPolicy{
			MaxAttempts: c.Translate.MaxAttempts,
			Base:        time.Duration(c.Translate.BackoffBaseMS) * time.Millisecond,
			Factor:      2,
		},
		CallTimeout: c.CallTimeout(),
		RunTimeout:  c.RunTimeout(),
		Pacer:       translate.NewPacer(c.Delay()),
		Cache:       tc,
		Logger:      logger,
	}
}

// session holds everything a pipeline run needs; Close releases it.
type session struct {
	runner *pipeline.Runner
	store  store.Store
	cache  cache.Cache
}

func (s *session) Close() {
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			logger.Warnw("Failed to close store", "error", err)
		}
	}
	if s.cache != nil {
		_ = s.cache.Close()
	}
}

func newSession(ctx context.Context, c *config.Config) (*session, error) {
	transcriber, err := newTranscriber(ctx, c)
	if err != nil {
		return nil, err
	}
	backend, err := newBackend(ctx, c)
	if err != nil {
		return nil, err
	}
	publisher, err := newPublisher(c)
	if err != nil {
		return nil, fmt.Errorf("publisher: %w", err)
	}
	tc, err := newCache(ctx, c)
	if err != nil {
		return nil, err
	}
	st, err := openStore(ctx, c)
	if err != nil {
		_ = tc.Close()
		return nil, err
	}

	runner, err := pipeline.New(pipeline.Deps{
		Transcriber: transcriber,
		Backend:     backend,
		Store:       st,
		Publisher:   publisher,
		Logger:      logger,
	}, pipeline.Options{
		WorkDir:    c.Paths.WorkDir,
		SourceLang: c.Transcribe.Language,
		TargetLang: c.Translate.TargetLanguage,
		Tier:       transcribe.Tier(c.Transcribe.Tier),
		Normalize: normalize.Options{
			MinDuration: c.Normalize.MinDurationMS,
			Continuous:  c.Normalize.Continuous,
		},
		Segment: segment.Options{
			MinDuration: c.Segment.MinDurationMS,
			MaxDuration: c.Segment.MaxDurationMS,
		},
		Translate: engineOptions(c, tc),
	})
	if err != nil {
		_ = tc.Close()
		if st != nil {
			_ = st.Close()
		}
		return nil, err
	}
	return &session{runner: runner, store: st, cache: tc}, nil
}
