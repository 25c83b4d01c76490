package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Analysis    AnalysisConfig    `yaml:"analysis" mapstructure:"analysis"`
	Gateway     GatewayConfig     `yaml:"gateway" mapstructure:"gateway"`
	HuggingFace HuggingFaceConfig `yaml:"huggingface" mapstructure:"huggingface"`
	Anthropic   AnthropicConfig   `yaml:"anthropic" mapstructure:"anthropic"`
	Store       StoreConfig       `yaml:"store" mapstructure:"store"`
	OCR         OCRConfig         `yaml:"ocr" mapstructure:"ocr"`
	Server      ServerConfig      `yaml:"server" mapstructure:"server"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
}

// AnalysisConfig tunes chunking, retries and per-component limits.
type AnalysisConfig struct {
	ChunkSizeChars     int `yaml:"chunk_size_chars" mapstructure:"chunk_size_chars"`
	OverlapChars       int `yaml:"overlap_chars" mapstructure:"overlap_chars"`
	MaxInputTokens     int `yaml:"max_input_tokens" mapstructure:"max_input_tokens"`
	MaxOutputTokens    int `yaml:"max_output_tokens" mapstructure:"max_output_tokens"`
	MaxRetries         int `yaml:"max_retries" mapstructure:"max_retries"`
	MaxChunkRetries    int `yaml:"max_chunk_retries" mapstructure:"max_chunk_retries"`
	RequestTimeoutSecs int `yaml:"request_timeout_secs" mapstructure:"request_timeout_secs"`
	RetryBaseDelayMs   int `yaml:"retry_base_delay_ms" mapstructure:"retry_base_delay_ms"`
	Workers            int `yaml:"workers" mapstructure:"workers"`
	TimeoutSecs        int `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MinTextChars       int `yaml:"min_text_chars" mapstructure:"min_text_chars"`
	SentimentChunks    int `yaml:"sentiment_chunks" mapstructure:"sentiment_chunks"`
	EntityChunks       int `yaml:"entity_chunks" mapstructure:"entity_chunks"`
	SummaryChunks      int `yaml:"summary_chunks" mapstructure:"summary_chunks"`
	RiskSampleChars    int `yaml:"risk_sample_chars" mapstructure:"risk_sample_chars"`
	MaxRiskFactors     int `yaml:"max_risk_factors" mapstructure:"max_risk_factors"`
	PrimaryRisks       int `yaml:"primary_risks" mapstructure:"primary_risks"`
	EntityCap          int `yaml:"entity_cap" mapstructure:"entity_cap"`
}

// RequestTimeout returns the per-call timeout.
func (a AnalysisConfig) RequestTimeout() time.Duration {
	return time.Duration(a.RequestTimeoutSecs) * time.Second
}

// Timeout returns the optional whole-analysis deadline. Zero means none.
func (a AnalysisConfig) Timeout() time.Duration {
	return time.Duration(a.TimeoutSecs) * time.Second
}

// RetryBaseDelay returns the base backoff delay.
func (a AnalysisConfig) RetryBaseDelay() time.Duration {
	return time.Duration(a.RetryBaseDelayMs) * time.Millisecond
}

// ModelRoute names the primary and fallback model for one task.
type ModelRoute struct {
	Primary  string `yaml:"primary" mapstructure:"primary"`
	Fallback string `yaml:"fallback" mapstructure:"fallback"`
}

// GatewayConfig configures the inference gateway.
type GatewayConfig struct {
	RequestsPerMinute int                   `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
	BreakerThreshold  int                   `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerResetSecs  int                   `yaml:"breaker_reset_secs" mapstructure:"breaker_reset_secs"`
	Models            map[string]ModelRoute `yaml:"models" mapstructure:"models"`
}

// HuggingFaceConfig holds Hugging Face Inference API settings.
type HuggingFaceConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// OCRConfig configures PDF text extraction.
type OCRConfig struct {
	PdfToTextPath string `yaml:"pdftotext_path" mapstructure:"pdftotext_path"`
}

// ServerConfig configures the analysis job server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	MaxConcurrent  int      `yaml:"max_concurrent" mapstructure:"max_concurrent"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ANALYZER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("analysis.chunk_size_chars", 4000)
	v.SetDefault("analysis.overlap_chars", 200)
	v.SetDefault("analysis.max_input_tokens", 1024)
	v.SetDefault("analysis.max_output_tokens", 512)
	v.SetDefault("analysis.max_retries", 3)
	v.SetDefault("analysis.max_chunk_retries", 2)
	v.SetDefault("analysis.request_timeout_secs", 30)
	v.SetDefault("analysis.retry_base_delay_ms", 2000)
	v.SetDefault("analysis.workers", 4)
	v.SetDefault("analysis.timeout_secs", 0)
	v.SetDefault("analysis.min_text_chars", 20)
	v.SetDefault("analysis.sentiment_chunks", 5)
	v.SetDefault("analysis.entity_chunks", 3)
	v.SetDefault("analysis.summary_chunks", 5)
	v.SetDefault("analysis.risk_sample_chars", 4000)
	v.SetDefault("analysis.max_risk_factors", 20)
	v.SetDefault("analysis.primary_risks", 5)
	v.SetDefault("analysis.entity_cap", 15)
	v.SetDefault("gateway.requests_per_minute", 60)
	v.SetDefault("gateway.breaker_threshold", 5)
	v.SetDefault("gateway.breaker_reset_secs", 30)
	for task, route := range DefaultModels() {
		v.SetDefault("gateway.models."+task+".primary", route.Primary)
		v.SetDefault("gateway.models."+task+".fallback", route.Fallback)
	}
	v.SetDefault("huggingface.base_url", "https://api-inference.huggingface.co/models")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "analyzer.db")
	v.SetDefault("ocr.pdftotext_path", "pdftotext")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.max_concurrent", 2)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// DefaultModels returns the task → model routing table.
func DefaultModels() map[string]ModelRoute {
	return map[string]ModelRoute{
		"sentiment":     {Primary: "ProsusAI/finbert", Fallback: "yiyanghkust/finbert-tone"},
		"ner":           {Primary: "dslim/bert-base-NER", Fallback: "dslim/distilbert-NER"},
		"summarization": {Primary: "facebook/bart-large-cnn", Fallback: "sshleifer/distilbart-cnn-12-6"},
		"generation":    {Primary: "google/flan-t5-xl", Fallback: "google/flan-t5-large"},
	}
}

// Validate checks the fields a command needs before it starts.
func (c *Config) Validate(mode string) error {
	var problems []string

	if c.Analysis.ChunkSizeChars <= 0 {
		problems = append(problems, "analysis.chunk_size_chars must be positive")
	}
	if c.Analysis.OverlapChars < 0 || c.Analysis.OverlapChars >= c.Analysis.ChunkSizeChars {
		problems = append(problems, "analysis.overlap_chars must be in [0, chunk_size_chars)")
	}
	if c.Analysis.MaxInputTokens < 16 {
		problems = append(problems, "analysis.max_input_tokens must be at least 16")
	}
	if c.Analysis.Workers < 1 {
		problems = append(problems, "analysis.workers must be at least 1")
	}

	switch mode {
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			problems = append(problems, "server.port must be between 1 and 65535")
		}
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required")
		}
	case "store":
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required")
		}
		if c.Store.Driver != "sqlite" && c.Store.Driver != "postgres" {
			problems = append(problems, "store.driver must be sqlite or postgres")
		}
	}

	if len(problems) > 0 {
		return eris.Errorf("config: invalid %s configuration: %s", mode, strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
