package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the workspace-relative location of the config file.
const DefaultPath = ".livecast/config.yaml"

// Config holds all livecast configuration.
type Config struct {
	Name string `yaml:"name"`

	// API clients
	LLM       LLMConfig       `yaml:"llm"`
	Speech    SpeechConfig    `yaml:"speech"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Search    SearchConfig    `yaml:"search"`

	// Collection pipeline
	Browser  BrowserConfig  `yaml:"browser"`
	Scrape   ScrapeConfig   `yaml:"scrape"`
	Store    StoreConfig    `yaml:"store"`
	Judge    JudgeConfig    `yaml:"judge"`
	Media    MediaConfig    `yaml:"media"`
	Audio    AudioConfig    `yaml:"audio"`
	Delivery DeliveryConfig `yaml:"delivery"`
	Playback PlaybackConfig `yaml:"playback"`

	// What to stream
	Catalog    Catalog          `yaml:"catalog"`
	Collection CollectionConfig `yaml:"collection"`

	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig configures the chat completion client.
type LLMConfig struct {
	APIKey     string `yaml:"api_key,omitempty"`
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	Timeout    string `yaml:"timeout"`
	MaxRetries int    `yaml:"max_retries"`
	RetryDelay string `yaml:"retry_delay"`
}

// SpeechConfig configures text-to-speech.
type SpeechConfig struct {
	Model        string            `yaml:"model"`
	DefaultVoice string            `yaml:"default_voice"`
	Voices       map[string]string `yaml:"voices"` // language -> voice
}

// EmbeddingConfig configures the embedding engine.
type EmbeddingConfig struct {
	Provider    string `yaml:"provider"` // openai, genai
	OpenAIModel string `yaml:"openai_model"`
	GenAIAPIKey string `yaml:"genai_api_key,omitempty"`
	GenAIModel  string `yaml:"genai_model"`
	TaskType    string `yaml:"task_type,omitempty"` // empty selects per content type
	BatchSize   int    `yaml:"batch_size"`
}

// SearchConfig configures Google Custom Search.
type SearchConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Endpoint     string `yaml:"endpoint"`
	APIKey       string `yaml:"api_key,omitempty"`
	EngineID     string `yaml:"engine_id,omitempty"`
	URLsToReturn int    `yaml:"urls_to_return"`
	DateRestrict string `yaml:"date_restrict"`
}

// BrowserConfig configures headless Chrome.
type BrowserConfig struct {
	Bin                string `yaml:"bin,omitempty"`
	Headless           bool   `yaml:"headless"`
	PageLoadTimeout    string `yaml:"page_load_timeout"`
	SettleDelay        string `yaml:"settle_delay"`
	StartupConcurrency int    `yaml:"startup_concurrency"`
	LaunchRetries      int    `yaml:"launch_retries"`
	UserDataRoot       string `yaml:"user_data_root"`
}

// ImageSource maps a file-name keyword to the base URL its images live under.
type ImageSource struct {
	Keyword string `yaml:"keyword"`
	BaseURL string `yaml:"base_url"`
}

// ScrapeConfig configures page conversion and chunking.
type ScrapeConfig struct {
	SplitterPattern string        `yaml:"splitter_pattern"`
	MaxWords        int           `yaml:"max_words"`
	MinWords        int           `yaml:"min_words"`
	FetchTimeout    string        `yaml:"fetch_timeout"`
	ImageSources    []ImageSource `yaml:"image_sources"`
}

// StoreConfig configures the SQLite vector store.
type StoreConfig struct {
	DatabasePath string `yaml:"database_path"`
	RetrievalK   int    `yaml:"retrieval_k"`
	Retention    string `yaml:"retention"`
}

// JudgeConfig configures script accuracy judging.
type JudgeConfig struct {
	Enabled bool `yaml:"enabled"`
	K       int  `yaml:"k"`
}

// MediaConfig configures saved stream items.
type MediaConfig struct {
	OutputDir       string            `yaml:"output_dir"`
	ImagesDir       string            `yaml:"images_dir"`
	ImageHeaders    map[string]string `yaml:"image_headers"`
	DownloadStagger string            `yaml:"download_stagger"`
	DownloadTimeout string            `yaml:"download_timeout"`
	KeyMessageGap   int               `yaml:"key_message_gap"`
}

// AudioConfig configures narration assembly.
type AudioConfig struct {
	OutputDir  string  `yaml:"output_dir"`
	LeadIn     string  `yaml:"lead_in"`
	MaxSeconds float64 `yaml:"max_seconds"` // 0 = no cap
	FFmpegBin  string  `yaml:"ffmpeg_bin"`
	FFprobeBin string  `yaml:"ffprobe_bin"`
}

// DeliveryConfig configures the overlay hub.
type DeliveryConfig struct {
	Listen           string `yaml:"listen"`
	JitterMinSeconds int    `yaml:"jitter_min_seconds"`
	JitterMaxSeconds int    `yaml:"jitter_max_seconds"` // 0 disables jitter
	JitterGapSeconds int    `yaml:"jitter_gap_seconds"`
}

// PlaybackConfig configures how scene audio is played.
type PlaybackConfig struct {
	Mode    string   `yaml:"mode"` // timed, exec
	Command []string `yaml:"command,omitempty"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Level      string          `yaml:"level"`
	JSONFormat bool            `yaml:"json_format"`
	Categories map[string]bool `yaml:"categories,omitempty"`
}

// envOverrides are secrets and paths read from the environment.
type envOverrides struct {
	OpenAIAPIKey   string `env:"OPENAI_API_KEY"`
	GeminiAPIKey   string `env:"GEMINI_API_KEY"`
	SearchAPIKey   string `env:"GOOGLE_SEARCH_API_KEY"`
	SearchEngineID string `env:"GOOGLE_SEARCH_ENGINE_ID"`
	DatabasePath   string `env:"LIVECAST_DB"`
	Listen         string `env:"LIVECAST_LISTEN"`
}

// Load loads configuration from a YAML file.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() error {
	o, err := env.ParseAs[envOverrides]()
	if err != nil {
		return fmt.Errorf("failed to parse environment: %w", err)
	}

	if o.OpenAIAPIKey != "" {
		c.LLM.APIKey = o.OpenAIAPIKey
	}
	if o.GeminiAPIKey != "" {
		c.Embedding.GenAIAPIKey = o.GeminiAPIKey
	}
	if o.SearchAPIKey != "" {
		c.Search.APIKey = o.SearchAPIKey
	}
	if o.SearchEngineID != "" {
		c.Search.EngineID = o.SearchEngineID
	}
	if o.DatabasePath != "" {
		c.Store.DatabasePath = o.DatabasePath
	}
	if o.Listen != "" {
		c.Delivery.Listen = o.Listen
	}
	return nil
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return fallback
	}
	return d
}

// GetLLMTimeout returns the LLM request timeout.
func (c *Config) GetLLMTimeout() time.Duration {
	return parseDuration(c.LLM.Timeout, 120*time.Second)
}

// GetRetryDelay returns the pause between LLM retries.
func (c *Config) GetRetryDelay() time.Duration {
	return parseDuration(c.LLM.RetryDelay, 2*time.Second)
}

// GetPageLoadTimeout returns the browser navigation timeout.
func (c *Config) GetPageLoadTimeout() time.Duration {
	return parseDuration(c.Browser.PageLoadTimeout, 30*time.Second)
}

// GetSettleDelay returns how long a page is left to render after load.
func (c *Config) GetSettleDelay() time.Duration {
	return parseDuration(c.Browser.SettleDelay, 2*time.Second)
}

// GetFetchTimeout returns the HTTP timeout for PDF downloads.
func (c *Config) GetFetchTimeout() time.Duration {
	return parseDuration(c.Scrape.FetchTimeout, 300*time.Second)
}

// GetRetention returns how long vector databases are kept.
func (c *Config) GetRetention() time.Duration {
	return parseDuration(c.Store.Retention, 24*time.Hour)
}

// GetDownloadStagger returns the delay between image download launches.
func (c *Config) GetDownloadStagger() time.Duration {
	return parseDuration(c.Media.DownloadStagger, time.Second)
}

// GetDownloadTimeout returns the timeout for one image download.
func (c *Config) GetDownloadTimeout() time.Duration {
	return parseDuration(c.Media.DownloadTimeout, 300*time.Second)
}

// GetLeadIn returns the silence prepended to every narration.
func (c *Config) GetLeadIn() time.Duration {
	return parseDuration(c.Audio.LeadIn, 5*time.Second)
}

// ValidEmbeddingProviders lists the supported embedding backends.
var ValidEmbeddingProviders = []string{"openai", "genai"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.LLM.APIKey == "" {
		return fmt.Errorf("LLM API key not configured (set OPENAI_API_KEY)")
	}

	validProvider := false
	for _, p := range ValidEmbeddingProviders {
		if c.Embedding.Provider == p {
			validProvider = true
			break
		}
	}
	if !validProvider {
		return fmt.Errorf("invalid embedding provider: %s (valid: %v)", c.Embedding.Provider, ValidEmbeddingProviders)
	}
	if c.Embedding.Provider == "genai" && c.Embedding.GenAIAPIKey == "" {
		return fmt.Errorf("genai embeddings require GEMINI_API_KEY")
	}

	if c.Search.Enabled && (c.Search.APIKey == "" || c.Search.EngineID == "") {
		return fmt.Errorf("google search enabled but GOOGLE_SEARCH_API_KEY or GOOGLE_SEARCH_ENGINE_ID missing")
	}

	if c.Scrape.MaxWords <= 0 {
		return fmt.Errorf("scrape.max_words must be positive")
	}
	if c.Playback.Mode == "exec" && len(c.Playback.Command) == 0 {
		return fmt.Errorf("playback mode exec requires playback.command")
	}

	return c.Collection.Validate(c.Catalog)
}
