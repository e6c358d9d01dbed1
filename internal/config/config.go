package config

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Sources   Sources   `yaml:"sources"`
	LLM       LLM       `yaml:"llm"`
	TTS       TTS       `yaml:"tts"`
	Pipeline  Pipeline  `yaml:"pipeline"`
	Fetch     Fetch     `yaml:"fetch"`
	Storage   Storage   `yaml:"storage"`
	Retention Retention `yaml:"retention"`
	Schedule  Schedule  `yaml:"schedule"`
	Intro     Intro     `yaml:"intro"`
	Output    Output    `yaml:"output"`
	Server    Server    `yaml:"server"`
	Logging   Logging   `yaml:"logging"`

	// Secrets never come from the YAML file.
	Secrets Secrets `yaml:"-"`
}

type Sources struct {
	Timeout   time.Duration `yaml:"timeout"`
	UserAgent string        `yaml:"user_agent"`
	Feeds     []Feed        `yaml:"feeds"`
	HTML      []HTMLPage    `yaml:"html"`
	ArXiv     ArXiv         `yaml:"arxiv"`
	GNews     GNews         `yaml:"gnews"`
	NewsAPI   NewsAPI       `yaml:"newsapi"`
}

// Feed is an RSS/Atom source. When Fallback is set and the feed yields
// nothing, the HTML page is scraped instead.
type Feed struct {
	Name     string        `yaml:"name"`
	URL      string        `yaml:"url"`
	Category string        `yaml:"category"`
	Window   time.Duration `yaml:"window"`
	Limit    int           `yaml:"limit"`
	Fallback *HTMLPage     `yaml:"fallback"`
}

// HTMLPage describes how to scrape a listing page with CSS selectors.
// The other selectors are evaluated relative to each Item match.
type HTMLPage struct {
	Name       string        `yaml:"name"`
	URL        string        `yaml:"url"`
	Category   string        `yaml:"category"`
	Window     time.Duration `yaml:"window"`
	Limit      int           `yaml:"limit"`
	Item       string        `yaml:"item"`
	Title      string        `yaml:"title"`
	Link       string        `yaml:"link"`
	Body       string        `yaml:"body"`
	Tags       string        `yaml:"tags"`
	Time       string        `yaml:"time"`
	TimeAttr   string        `yaml:"time_attr"`
	TimeLayout string        `yaml:"time_layout"`
	TimeZone   string        `yaml:"time_zone"`
	Match      string        `yaml:"match"` // keep items whose title, body or tags contain it
}

type ArXiv struct {
	Enabled    bool          `yaml:"enabled"`
	BaseURL    string        `yaml:"base_url"`
	Categories []string      `yaml:"categories"`
	MaxResults int           `yaml:"max_results"`
	Category   string        `yaml:"category"`
	Window     time.Duration `yaml:"window"`
}

type GNews struct {
	Enabled    bool          `yaml:"enabled"`
	BaseURL    string        `yaml:"base_url"`
	Categories []string      `yaml:"categories"`
	Countries  []string      `yaml:"countries"`
	Lang       string        `yaml:"lang"`
	Max        int           `yaml:"max"`
	Window     time.Duration `yaml:"window"`
}

type NewsAPI struct {
	Enabled   bool          `yaml:"enabled"`
	BaseURL   string        `yaml:"base_url"`
	Query     string        `yaml:"query"`
	Languages []string      `yaml:"languages"`
	Domains   []string      `yaml:"domains"`
	PageSize  int           `yaml:"page_size"`
	Category  string        `yaml:"category"`
	Window    time.Duration `yaml:"window"`
}

type LLM struct {
	Provider       string        `yaml:"provider"`
	Model          string        `yaml:"model"`
	BaseURL        string        `yaml:"base_url"`
	OllamaURL      string        `yaml:"ollama_url"`
	AnthropicModel string        `yaml:"anthropic_model"`
	Temperature    float64       `yaml:"temperature"`
	Timeout        time.Duration `yaml:"timeout"`
}

type TTS struct {
	Provider          string        `yaml:"provider"`
	BaseURL           string        `yaml:"base_url"`
	Model             string        `yaml:"model"`
	Voice             string        `yaml:"voice"`
	Speed             float64       `yaml:"speed"`
	Volume            float64       `yaml:"volume"`
	Pitch             int           `yaml:"pitch"`
	Emotion           string        `yaml:"emotion"`
	SampleRate        int           `yaml:"sample_rate"`
	Bitrate           int           `yaml:"bitrate"`
	Format            string        `yaml:"format"`
	MaxChars          int           `yaml:"max_chars"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Timeout           time.Duration `yaml:"timeout"`
}

type Pipeline struct {
	Concurrency   int    `yaml:"concurrency"`
	Language      string `yaml:"language"`
	MaxBriefChars int    `yaml:"max_brief_chars"`
	Dedup         bool   `yaml:"dedup"`
	ScratchDir    string `yaml:"scratch_dir"`
}

type Fetch struct {
	Enabled      bool          `yaml:"enabled"`
	MinBodyChars int           `yaml:"min_body_chars"`
	Timeout      time.Duration `yaml:"timeout"`
}

type Storage struct {
	Backend        string `yaml:"backend"`
	Endpoint       string `yaml:"endpoint"`
	Region         string `yaml:"region"`
	Secure         bool   `yaml:"secure"`
	AudioBucket    string `yaml:"audio_bucket"`
	TextBucket     string `yaml:"text_bucket"`
	AudioPublicURL string `yaml:"audio_public_url"`
	TextPublicURL  string `yaml:"text_public_url"`
	Dir            string `yaml:"dir"`
	CatalogKey     string `yaml:"catalog_key"`
	DetailPrefix   string `yaml:"detail_prefix"`
}

type Retention struct {
	Days int `yaml:"days"`
}

type Schedule struct {
	TimeZone string        `yaml:"time_zone"`
	Run      string        `yaml:"run"`
	Cleanup  string        `yaml:"cleanup"`
	Intro    string        `yaml:"intro"`
	LockTTL  time.Duration `yaml:"lock_ttl"`
}

type Intro struct {
	Program  string `yaml:"program"`
	Template string `yaml:"template"`
	TimeZone string `yaml:"time_zone"`
}

type Output struct {
	DataDir string `yaml:"data_dir"`
}

type Server struct {
	Host     string        `yaml:"host"`
	Port     int           `yaml:"port"`
	TimeZone string        `yaml:"time_zone"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Secrets are read from the environment.
type Secrets struct {
	LLMAPIKey          string `env:"LLM_API_KEY"`
	AnthropicAPIKey    string `env:"ANTHROPIC_API_KEY"`
	MiniMaxAPIKey      string `env:"MINIMAX_API_KEY"`
	MiniMaxGroupID     string `env:"MINIMAX_GROUP_ID"`
	OSSAccessKeyID     string `env:"OSS_ACCESS_KEY_ID"`
	OSSAccessKeySecret string `env:"OSS_ACCESS_KEY_SECRET"`
	NewsAPIKey         string `env:"NEWSAPI_KEY"`
	GNewsAPIKey        string `env:"GNEWS_API_KEY"`
}

// ConfigDir returns the XDG config directory for briefcast.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "briefcast")
}

// DataDir returns the XDG data directory for briefcast.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "briefcast")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/briefcast/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'briefcast init' to create a default config",
		xdgConfig,
	)
}

// Load reads a config YAML file and fills Secrets from the environment.
func Load(ctx context.Context, path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg, err := parse(data)
	if err != nil {
		return nil, err
	}
	if err := loadSecrets(ctx, cfg, envconfig.OsLookuper()); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the embedded default configuration without secrets.
func Default() (*Config, error) {
	return parse(DefaultConfigYAML)
}

func loadSecrets(ctx context.Context, cfg *Config, lookuper envconfig.Lookuper) error {
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg.Secrets,
		Lookuper: lookuper,
	}); err != nil {
		return fmt.Errorf("reading secrets from environment: %w", err)
	}
	return nil
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Sources: Sources{
			Timeout:   20 * time.Second,
			UserAgent: "briefcast/1.0 (news briefing)",
			ArXiv: ArXiv{
				BaseURL:    "https://export.arxiv.org/api/query",
				MaxResults: 20,
				Window:     3 * time.Hour,
			},
			GNews: GNews{
				BaseURL: "https://gnews.io/api/v4/top-headlines",
				Lang:    "en",
				Max:     3,
				Window:  time.Hour,
			},
			NewsAPI: NewsAPI{
				BaseURL:  "https://newsapi.org/v2/everything",
				PageSize: 20,
				Window:   2 * time.Hour,
			},
		},
		LLM: LLM{
			Provider:       "openai",
			Model:          "deepseek-chat",
			BaseURL:        "https://api.deepseek.com/v1",
			OllamaURL:      "http://localhost:11434",
			AnthropicModel: "claude-haiku-4-5",
			Temperature:    0.7,
			Timeout:        120 * time.Second,
		},
		TTS: TTS{
			Provider:          "minimax",
			BaseURL:           "https://api.minimax.chat/v1/t2a_v2",
			Model:             "speech-02-turbo",
			Voice:             "Boyan_new_platform",
			Speed:             1.03,
			Volume:            7,
			Emotion:           "neutral",
			SampleRate:        32000,
			Bitrate:           128000,
			Format:            "mp3",
			MaxChars:          512,
			RequestsPerSecond: 2,
			Timeout:           60 * time.Second,
		},
		Pipeline: Pipeline{
			Concurrency:   3,
			Language:      "简体中文",
			MaxBriefChars: 550,
			Dedup:         true,
		},
		Fetch: Fetch{
			Enabled:      true,
			MinBodyChars: 80,
			Timeout:      15 * time.Second,
		},
		Storage: Storage{
			Backend:      "file",
			Secure:       true,
			CatalogKey:   "briefs.json",
			DetailPrefix: "briefs/",
		},
		Retention: Retention{Days: 7},
		Schedule: Schedule{
			TimeZone: "Asia/Shanghai",
			Run:      "0 */2 * * *",
			Cleanup:  "0 3 * * *",
			Intro:    "0 2 * * *",
			LockTTL:  30 * time.Minute,
		},
		Intro: Intro{
			Program:  "摸鱼经济学",
			Template: "今天是北京时间{{.Year}}年{{.Month}}月{{.Day}}日星期{{.Weekday}}，欢迎收听今天的{{.Program}}",
			TimeZone: "Asia/Shanghai",
		},
		Server: Server{
			Host:     "127.0.0.1",
			Port:     8000,
			TimeZone: "Asia/Shanghai",
			CacheTTL: 30 * time.Second,
		},
		Logging: Logging{Level: "info", Format: "console"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch strings.ToLower(c.LLM.Provider) {
	case "openai", "ollama", "anthropic":
	default:
		return fmt.Errorf("llm.provider must be openai, ollama or anthropic, got %q", c.LLM.Provider)
	}
	switch strings.ToLower(c.Storage.Backend) {
	case "s3", "file":
	default:
		return fmt.Errorf("storage.backend must be s3 or file, got %q", c.Storage.Backend)
	}
	if c.Pipeline.Concurrency < 1 {
		return fmt.Errorf("pipeline.concurrency must be at least 1")
	}
	if c.Retention.Days < 1 {
		return fmt.Errorf("retention.days must be at least 1")
	}
	for _, tz := range []string{c.Schedule.TimeZone, c.Intro.TimeZone, c.Server.TimeZone} {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("unknown time zone %q: %w", tz, err)
		}
	}
	return nil
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

// GetScratchDir returns where synthesized audio waits for upload.
func (c *Config) GetScratchDir() string {
	if c.Pipeline.ScratchDir != "" {
		return c.Pipeline.ScratchDir
	}
	return filepath.Join(c.GetDataDir(), "scratch")
}

// GetStorageDir returns the root of the file storage backend.
func (c *Config) GetStorageDir() string {
	if c.Storage.Dir != "" {
		return c.Storage.Dir
	}
	return filepath.Join(c.GetDataDir(), "objects")
}

// Location loads a validated time zone name.
func Location(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
