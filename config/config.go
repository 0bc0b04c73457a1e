package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	MarketView MarketViewConfig `yaml:"marketview"`
	Channels   ChannelsConfig   `yaml:"channels"`
	Stream     StreamConfig     `yaml:"stream"`
	Admission  AdmissionConfig  `yaml:"admission"`
	View       ViewConfig       `yaml:"view"`
	Collector  CollectorConfig  `yaml:"collector"`
	Dashboard  DashboardConfig  `yaml:"dashboard"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type MarketViewConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type ChannelsConfig struct {
	TickerBuffer int `yaml:"ticker_buffer"`
	DepthBuffer  int `yaml:"depth_buffer"`
}

// StreamConfig drives both websocket managers.
type StreamConfig struct {
	TickerURL            string        `yaml:"ticker_url"`
	DepthBaseURL         string        `yaml:"depth_base_url"`
	DepthLevels          int           `yaml:"depth_levels"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
	ReconnectBaseDelay   time.Duration `yaml:"reconnect_base_delay"`
	HandshakeTimeout     time.Duration `yaml:"handshake_timeout"`
	ReadTimeout          time.Duration `yaml:"read_timeout"`
}

type AdmissionConfig struct {
	QuoteSuffix        string   `yaml:"quote_suffix"`
	ExcludedSubstrings []string `yaml:"excluded_substrings"`
	MinQuoteVolume     float64  `yaml:"min_quote_volume"`
	BatchCap           int      `yaml:"batch_cap"`
}

type ViewConfig struct {
	Limit            int     `yaml:"limit"`
	VolumeThreshold  float64 `yaml:"volume_threshold"`
	DefaultSort      string  `yaml:"default_sort"`
	DefaultDirection string  `yaml:"default_direction"`
}

// CollectorConfig covers the request/response collaborators.
type CollectorConfig struct {
	APIURL              string        `yaml:"api_url"`
	NewsURL             string        `yaml:"news_url"`
	SentimentURL        string        `yaml:"sentiment_url"`
	GlobalStatsInterval time.Duration `yaml:"global_stats_interval"`
	ChartInterval       string        `yaml:"chart_interval"`
	ChartLimit          int           `yaml:"chart_limit"`
	Timeout             time.Duration `yaml:"timeout"`
	RequestsPerSecond   float64       `yaml:"requests_per_second"`
	Burst               int           `yaml:"burst"`
}

type DashboardConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Address    string `yaml:"address"`
	LogHistory int    `yaml:"log_history"`
}

type MetricsConfig struct {
	Enabled    bool             `yaml:"enabled"`
	Address    string           `yaml:"address"`
	CloudWatch CloudWatchConfig `yaml:"cloudwatch"`
}

type CloudWatchConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Region    string `yaml:"region"`
	Namespace string `yaml:"namespace"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

// Default returns the configuration used when a key is absent from the file.
func Default() Config {
	return Config{
		MarketView: MarketViewConfig{Name: "marketview", Version: "dev"},
		Channels:   ChannelsConfig{TickerBuffer: 64, DepthBuffer: 64},
		Stream: StreamConfig{
			TickerURL:            "wss://stream.binance.com:9443/ws/!ticker@arr",
			DepthBaseURL:         "wss://stream.binance.com:9443/ws",
			DepthLevels:          10,
			MaxReconnectAttempts: 5,
			ReconnectBaseDelay:   3 * time.Second,
			HandshakeTimeout:     10 * time.Second,
			ReadTimeout:          5 * time.Minute,
		},
		Admission: AdmissionConfig{
			QuoteSuffix:        "USDT",
			ExcludedSubstrings: []string{"UP", "DOWN"},
			MinQuoteVolume:     1_000_000,
			BatchCap:           100,
		},
		View: ViewConfig{
			Limit:            100,
			VolumeThreshold:  50_000_000,
			DefaultSort:      "volume",
			DefaultDirection: "desc",
		},
		Collector: CollectorConfig{
			APIURL:              "https://api.binance.com",
			NewsURL:             "http://localhost:8000/api/news",
			SentimentURL:        "http://localhost:8000/api/sentiment",
			GlobalStatsInterval: 60 * time.Second,
			ChartInterval:       "15m",
			ChartLimit:          100,
			Timeout:             10 * time.Second,
			RequestsPerSecond:   5,
			Burst:               5,
		},
		Dashboard: DashboardConfig{Enabled: true, Address: "0.0.0.0:8080", LogHistory: 200},
		Metrics:   MetricsConfig{Enabled: true, Address: "0.0.0.0:2112"},
		Logging:   LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
	}
}

// LoadConfig reads the YAML file at path on top of Default, applies
// environment overrides and validates the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(resolveEnvSpecificPath(path, DefaultPath, envPaths))
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnvOverrides(&config)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("BINANCE_WS_URL")); v != "" {
		cfg.Stream.TickerURL = strings.TrimRight(v, "/") + "/!ticker@arr"
		cfg.Stream.DepthBaseURL = strings.TrimRight(v, "/")
	}
	if v := strings.TrimSpace(os.Getenv("BINANCE_API_URL")); v != "" {
		cfg.Collector.APIURL = v
	}
	if v := strings.TrimSpace(os.Getenv("DASHBOARD_ADDRESS")); v != "" {
		cfg.Dashboard.Address = v
	}
}

func validateConfig(cfg *Config) error {
	if cfg.MarketView.Name == "" {
		return fmt.Errorf("marketview.name is required")
	}
	if cfg.Channels.TickerBuffer <= 0 {
		return fmt.Errorf("channels.ticker_buffer must be greater than 0")
	}
	if cfg.Channels.DepthBuffer <= 0 {
		return fmt.Errorf("channels.depth_buffer must be greater than 0")
	}

	if cfg.Stream.TickerURL == "" {
		return fmt.Errorf("stream.ticker_url is required")
	}
	if cfg.Stream.DepthBaseURL == "" {
		return fmt.Errorf("stream.depth_base_url is required")
	}
	if cfg.Stream.DepthLevels <= 0 {
		return fmt.Errorf("stream.depth_levels must be greater than 0")
	}
	if cfg.Stream.MaxReconnectAttempts < 0 {
		return fmt.Errorf("stream.max_reconnect_attempts must not be negative")
	}
	if cfg.Stream.ReconnectBaseDelay <= 0 {
		return fmt.Errorf("stream.reconnect_base_delay must be greater than 0")
	}

	if cfg.Admission.QuoteSuffix == "" {
		return fmt.Errorf("admission.quote_suffix is required")
	}
	if cfg.Admission.BatchCap <= 0 {
		return fmt.Errorf("admission.batch_cap must be greater than 0")
	}
	if cfg.Admission.MinQuoteVolume < 0 {
		return fmt.Errorf("admission.min_quote_volume must not be negative")
	}

	if cfg.View.Limit <= 0 {
		return fmt.Errorf("view.limit must be greater than 0")
	}

	if cfg.Collector.GlobalStatsInterval <= 0 {
		return fmt.Errorf("collector.global_stats_interval must be greater than 0")
	}
	if cfg.Collector.ChartLimit <= 0 {
		return fmt.Errorf("collector.chart_limit must be greater than 0")
	}
	if cfg.Collector.RequestsPerSecond <= 0 {
		return fmt.Errorf("collector.requests_per_second must be greater than 0")
	}

	return nil
}
