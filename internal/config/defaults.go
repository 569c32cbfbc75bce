package config

const (
	defaultLogDir             = "~/.local/share/captionkit/logs"
	defaultCaptionerBaseURL   = "http://127.0.0.1:5000"
	defaultCaptionerTask      = "<CAPTION>"
	defaultCaptionerTimeout   = 120
	defaultReadyAttempts      = 30
	defaultReadyDelaySeconds  = 2
	defaultConcurrency        = 1
	defaultMinTags            = 4
	defaultMaxTags            = 40
	defaultDuplicateThreshold = 0.85
	defaultRegistryBackend    = "json"
	defaultRegistryJSONPath   = "~/.local/share/captionkit/registry.json"
	defaultRegistrySQLitePath = "~/.local/share/captionkit/registry.db"
	defaultReviewHost         = "127.0.0.1"
	defaultReviewPort         = 7860
	defaultReviewName         = "review-ui"
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
	registryBackendJSON       = "json"
	registryBackendSQLite     = "sqlite"
	maxCaptionerConcurrency   = 32
	maxReadyAttempts          = 600
	envCaptionerURL           = "CAPTIONKIT_CAPTIONER_URL"
	envRegistryPath           = "CAPTIONKIT_REGISTRY_PATH"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			LogDir: defaultLogDir,
		},
		Captioner: Captioner{
			BaseURL:           defaultCaptionerBaseURL,
			Task:              defaultCaptionerTask,
			TimeoutSeconds:    defaultCaptionerTimeout,
			ReadyAttempts:     defaultReadyAttempts,
			ReadyDelaySeconds: defaultReadyDelaySeconds,
			Concurrency:       defaultConcurrency,
		},
		Validation: Validation{
			MinTags:            defaultMinTags,
			MaxTags:            defaultMaxTags,
			DuplicateThreshold: defaultDuplicateThreshold,
		},
		Registry: Registry{
			Backend: defaultRegistryBackend,
		},
		Review: Review{
			Host: defaultReviewHost,
			Port: defaultReviewPort,
			Name: defaultReviewName,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}

// RegistryBackends lists the supported registry backends.
func RegistryBackends() []string {
	return []string{registryBackendJSON, registryBackendSQLite}
}
