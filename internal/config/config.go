package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Global configuration structure.
type Global struct {
	Server    Server    `mapstructure:"server" yaml:"server"`
	Plot      Plot      `mapstructure:"plot" yaml:"plot"`
	Analysis  Analysis  `mapstructure:"analysis" yaml:"analysis"`
	HTTP      HTTP      `mapstructure:"http" yaml:"http"`
	LLM       LLM       `mapstructure:"llm" yaml:"llm"`
	Scrape    Scrape    `mapstructure:"scrape" yaml:"scrape"`
	Warehouse Warehouse `mapstructure:"warehouse" yaml:"warehouse"`
	Log       Log       `mapstructure:"log" yaml:"log"`
}

type Server struct {
	Host              string `mapstructure:"host" yaml:"host"`
	Port              int    `mapstructure:"port" yaml:"port"`
	RequestTimeoutSec int    `mapstructure:"request_timeout_sec" yaml:"request_timeout_sec"`
	MaxBodyBytes      int64  `mapstructure:"max_body_bytes" yaml:"max_body_bytes"`
	RenderWorkers     int    `mapstructure:"render_workers" yaml:"render_workers"`
	Compress          bool   `mapstructure:"compress" yaml:"compress"`
}

type Plot struct {
	// MaxChars is the default data URI ceiling when a task names none.
	MaxChars          int    `mapstructure:"max_chars" yaml:"max_chars"`
	Width             int    `mapstructure:"width" yaml:"width"`
	Height            int    `mapstructure:"height" yaml:"height"`
	DPI               int    `mapstructure:"dpi" yaml:"dpi"`
	Format            string `mapstructure:"format" yaml:"format"`
	MinRenderBudgetMs int    `mapstructure:"min_render_budget_ms" yaml:"min_render_budget_ms"`
}

type Analysis struct {
	FallbackAnswers bool   `mapstructure:"fallback_answers" yaml:"fallback_answers"`
	FilmsURL        string `mapstructure:"films_url" yaml:"films_url"`
}

// HTTP holds timeout and retry settings shared by outbound clients.
type HTTP struct {
	TimeoutSec       int `mapstructure:"timeout_sec" yaml:"timeout_sec"`
	RetryMaxAttempts int `mapstructure:"retry_max_attempts" yaml:"retry_max_attempts"`
	RetryBaseDelayMs int `mapstructure:"retry_base_delay_ms" yaml:"retry_base_delay_ms"`
	RetryMaxDelayMs  int `mapstructure:"retry_max_delay_ms" yaml:"retry_max_delay_ms"`
}

type LLM struct {
	APIKey  string `mapstructure:"api_key" yaml:"api_key"`
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
	Model   string `mapstructure:"model" yaml:"model"`
}

type Scrape struct {
	UserAgent string `mapstructure:"user_agent" yaml:"user_agent"`
}

type Warehouse struct {
	// Source is a parquet path or glob; empty uses the public judgments export.
	Source  string `mapstructure:"source" yaml:"source"`
	Hive    bool   `mapstructure:"hive" yaml:"hive"`
	Threads int    `mapstructure:"threads" yaml:"threads"`
}

type Log struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// Addr is the listen address for the HTTP server.
func (s Server) Addr() string { return fmt.Sprintf("%s:%d", s.Host, s.Port) }

// RequestTimeout is the per-request deadline; zero disables it.
func (s Server) RequestTimeout() time.Duration {
	return time.Duration(s.RequestTimeoutSec) * time.Second
}

// MinRenderBudget is the least time left on a deadline for a render to start.
func (p Plot) MinRenderBudget() time.Duration {
	return time.Duration(p.MinRenderBudgetMs) * time.Millisecond
}

func (h HTTP) Timeout() time.Duration   { return time.Duration(h.TimeoutSec) * time.Second }
func (h HTTP) BaseDelay() time.Duration { return time.Duration(h.RetryBaseDelayMs) * time.Millisecond }
func (h HTTP) MaxDelay() time.Duration  { return time.Duration(h.RetryMaxDelayMs) * time.Millisecond }

// Dir returns ~/.analyst.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".analyst"), nil
}

// Save writes the given configuration to the cfgFile path. If cfgFile is empty,
// it writes to ~/.analyst/config.yaml, creating the directory if necessary.
func Save(c *Global, cfgFile string) error {
	path := cfgFile
	if path == "" {
		dir, err := Dir()
		if err != nil {
			return err
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir config dir: %w", err)
		}
		path = filepath.Join(dir, "config.yaml")
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Load loads configuration from file, env, and defaults.
// Precedence: env > config file > defaults. Flags are applied by the caller.
func Load(cfgFile string) (*Global, error) {
	c, _, err := load(cfgFile)
	return c, err
}

// load also reports the config file actually read, "" when none was found.
func load(cfgFile string) (*Global, string, error) {
	v := viper.New()
	v.SetEnvPrefix("ANALYST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	// platform conventions
	_ = v.BindEnv("server.port", "ANALYST_SERVER_PORT", "PORT")
	_ = v.BindEnv("llm.api_key", "ANALYST_LLM_API_KEY", "OPENROUTER_API_KEY", "OPENAI_API_KEY")

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, "", fmt.Errorf("read config %s: %w", cfgFile, err)
		}
	} else {
		dir, err := Dir()
		if err != nil {
			return nil, "", err
		}
		v.AddConfigPath(dir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		// optional read
		_ = v.ReadInConfig()
	}

	var c Global
	if err := v.Unmarshal(&c); err != nil {
		return nil, "", fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, "", err
	}
	return &c, v.ConfigFileUsed(), nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.request_timeout_sec", 170)
	v.SetDefault("server.max_body_bytes", 10<<20)
	v.SetDefault("server.render_workers", 0)
	v.SetDefault("server.compress", true)

	v.SetDefault("plot.max_chars", 100000)
	v.SetDefault("plot.width", 800)
	v.SetDefault("plot.height", 600)
	v.SetDefault("plot.dpi", 100)
	v.SetDefault("plot.format", "png")
	v.SetDefault("plot.min_render_budget_ms", 2000)

	v.SetDefault("analysis.fallback_answers", true)
	v.SetDefault("analysis.films_url", "https://en.wikipedia.org/wiki/List_of_highest-grossing_films")

	v.SetDefault("http.timeout_sec", 60)
	v.SetDefault("http.retry_max_attempts", 3)
	v.SetDefault("http.retry_base_delay_ms", 500)
	v.SetDefault("http.retry_max_delay_ms", 4000)

	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "https://openrouter.ai/api/v1")
	v.SetDefault("llm.model", "openai/gpt-4o-mini")

	v.SetDefault("scrape.user_agent", "")

	v.SetDefault("warehouse.source", "")
	v.SetDefault("warehouse.hive", true)
	v.SetDefault("warehouse.threads", 0)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Validate rejects settings the server cannot start with.
func (c *Global) Validate() error {
	var problems []string
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("server.port %d out of range", c.Server.Port))
	}
	if c.Server.MaxBodyBytes <= 0 {
		problems = append(problems, "server.max_body_bytes must be positive")
	}
	if c.Plot.MaxChars <= 0 {
		problems = append(problems, "plot.max_chars must be positive")
	}
	if c.Plot.Width <= 0 || c.Plot.Height <= 0 || c.Plot.DPI <= 0 {
		problems = append(problems, "plot.width, plot.height and plot.dpi must be positive")
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		problems = append(problems, fmt.Sprintf("log.format %q must be json or text", c.Log.Format))
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}
