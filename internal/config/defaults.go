package config

const (
	defaultConfigPath         = "~/.config/bilingo/config.toml"
	defaultWorkDir            = "~/.local/share/bilingo/work"
	defaultTranscribeProvider = "whisper"
	defaultTier               = "small"
	defaultSourceLanguage     = "en"
	defaultWhisperBinary      = "whisper"
	defaultNormalizeMinMS     = 100
	defaultSegmentMinMS       = 800
	defaultSegmentMaxMS       = 6000
	defaultTranslateProvider  = "openai"
	defaultTargetLanguage     = "zh-TW"
	defaultTranslateMode      = "batch"
	defaultBatchSize          = 5
	defaultDelayMS            = 500
	defaultConcurrency        = 1
	defaultMaxAttempts        = 3
	defaultBackoffBaseMS      = 500
	defaultCallTimeoutSeconds = 20
	defaultRunTimeoutMinutes  = 15
	defaultStoreDriver        = "sqlite"
	defaultStoreDSN           = "~/.local/share/bilingo/bilingo.db"
	defaultStoreTimeout       = 10
	defaultCacheDriver        = "memory"
	defaultRedisAddr          = "localhost:6379"
	defaultCacheTTLHours      = 24 * 30
	defaultCacheMaxEntries    = 10000
	defaultPublishRegion      = "us-east-1"
	defaultPublishPrefix      = "subtitles"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WorkDir: defaultWorkDir,
		},
		Transcribe: Transcribe{
			Provider:      defaultTranscribeProvider,
			Tier:          defaultTier,
			Language:      defaultSourceLanguage,
			WhisperBinary: defaultWhisperBinary,
		},
		Normalize: Normalize{
			MinDurationMS: defaultNormalizeMinMS,
		},
		Segment: Segment{
			MinDurationMS: defaultSegmentMinMS,
			MaxDurationMS: defaultSegmentMaxMS,
		},
		Translate: Translate{
			Provider:           defaultTranslateProvider,
			TargetLanguage:     defaultTargetLanguage,
			Mode:               defaultTranslateMode,
			BatchSize:          defaultBatchSize,
			DelayMS:            defaultDelayMS,
			Concurrency:        defaultConcurrency,
			MaxAttempts:        defaultMaxAttempts,
			BackoffBaseMS:      defaultBackoffBaseMS,
			CallTimeoutSeconds: defaultCallTimeoutSeconds,
			RunTimeoutMinutes:  defaultRunTimeoutMinutes,
		},
		Store: Store{
			Driver:         defaultStoreDriver,
			DSN:            defaultStoreDSN,
			TimeoutSeconds: defaultStoreTimeout,
		},
		Cache: Cache{
			Driver:     defaultCacheDriver,
			RedisAddr:  defaultRedisAddr,
			TTLHours:   defaultCacheTTLHours,
			MaxEntries: defaultCacheMaxEntries,
		},
		Publish: Publish{
			Region: defaultPublishRegion,
			UseSSL: true,
			Prefix: defaultPublishPrefix,
		},
	}
}
