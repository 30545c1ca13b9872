package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/signalnine/toolsgen/internal/logging"
	"github.com/signalnine/toolsgen/internal/sampling"
	"github.com/signalnine/toolsgen/internal/telemetry"
)

// EnvPrefix prefixes environment overrides, e.g. TOOLSGEN_GENERATION_NUM_SAMPLES.
const EnvPrefix = "TOOLSGEN"

type Config struct {
	Generation Generation       `mapstructure:"generation"`
	Judge      Judge            `mapstructure:"judge"`
	Retry      Retry            `mapstructure:"retry"`
	RateLimit  RateLimit        `mapstructure:"rate_limit"`
	Models     Models           `mapstructure:"models"`
	Output     Output           `mapstructure:"output"`
	Log        logging.Config   `mapstructure:"log"`
	Tracing    telemetry.Config `mapstructure:"tracing"`
	Secrets    Secrets          `mapstructure:"secrets"`
}

type Generation struct {
	NumSamples int    `mapstructure:"num_samples"`
	Target     int    `mapstructure:"target"`
	Strategy   string `mapstructure:"strategy"`
	// Seed is nil when the config leaves it out; the run then picks one.
	Seed            *int64  `mapstructure:"seed"`
	SubsetSize      int     `mapstructure:"subset_size"`
	SubsetMin       int     `mapstructure:"subset_min"`
	SubsetMax       int     `mapstructure:"subset_max"`
	NumBatches      int     `mapstructure:"num_batches"`
	BatchSize       int     `mapstructure:"batch_size"`
	ShuffleTools    bool    `mapstructure:"shuffle_tools"`
	NumWorkers      int     `mapstructure:"num_workers"`
	WorkerBatchSize int     `mapstructure:"worker_batch_size"`
	TrainSplit      float64 `mapstructure:"train_split"`
	Language        string  `mapstructure:"language"`
	RetryOnReject   int     `mapstructure:"retry_on_reject"`
}

type Judge struct {
	Threshold float64 `mapstructure:"threshold"`
	Votes     int     `mapstructure:"votes"`
}

type Retry struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
	Factor      float64       `mapstructure:"factor"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
	Jitter      float64       `mapstructure:"jitter"`
}

type RateLimit struct {
	Capacity        int     `mapstructure:"capacity"`
	RefillPerSecond float64 `mapstructure:"refill_per_second"`
}

type Models struct {
	BaseURL          string        `mapstructure:"base_url"`
	APIKeyEnv        string        `mapstructure:"api_key_env"`
	Timeout          time.Duration `mapstructure:"timeout"`
	ProblemGenerator Model         `mapstructure:"problem_generator"`
	ToolCaller       Model         `mapstructure:"tool_caller"`
	Judge            Model         `mapstructure:"judge"`
}

type Model struct {
	Model       string  `mapstructure:"model"`
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

type Output struct {
	Dir     string `mapstructure:"dir"`
	Metrics bool   `mapstructure:"metrics"`
}

type Secrets struct {
	EnvFile string `mapstructure:"env_file"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("generation.num_samples", 10)
	v.SetDefault("generation.target", 0)
	v.SetDefault("generation.strategy", sampling.Random)
	v.SetDefault("generation.subset_size", 2)
	v.SetDefault("generation.subset_min", 1)
	v.SetDefault("generation.subset_max", 3)
	v.SetDefault("generation.num_batches", 0)
	v.SetDefault("generation.batch_size", 2)
	v.SetDefault("generation.shuffle_tools", false)
	v.SetDefault("generation.num_workers", 1)
	v.SetDefault("generation.worker_batch_size", 1)
	v.SetDefault("generation.train_split", 1.0)
	v.SetDefault("generation.language", "en")
	v.SetDefault("generation.retry_on_reject", 0)

	v.SetDefault("judge.threshold", 0.7)
	v.SetDefault("judge.votes", 1)

	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.base_delay", time.Second)
	v.SetDefault("retry.factor", 2.0)
	v.SetDefault("retry.max_delay", 30*time.Second)
	v.SetDefault("retry.jitter", 0.1)

	v.SetDefault("rate_limit.capacity", 10)
	v.SetDefault("rate_limit.refill_per_second", 5.0)

	v.SetDefault("models.base_url", "")
	v.SetDefault("models.api_key_env", "OPENAI_API_KEY")
	v.SetDefault("models.timeout", 60*time.Second)
	for role, maxTokens := range map[string]int{"problem_generator": 200, "tool_caller": 500, "judge": 500} {
		temp := 0.7
		if role == "judge" {
			temp = 0.3
		}
		v.SetDefault("models."+role+".model", "gpt-4o-mini")
		v.SetDefault("models."+role+".temperature", temp)
		v.SetDefault("models."+role+".max_tokens", maxTokens)
	}

	v.SetDefault("output.dir", "output")
	v.SetDefault("output.metrics", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("tracing.enable", false)
	v.SetDefault("tracing.endpoint", "localhost:4318")
	v.SetDefault("tracing.insecure", true)
	v.SetDefault("tracing.service_name", "toolsgen")

	v.SetDefault("secrets.env_file", "")
}

// Load reads defaults, then the YAML file at path (if any), then TOOLSGEN_*
// environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// No default exists for the seed, so AutomaticEnv would not see it.
	if err := v.BindEnv("generation.seed"); err != nil {
		return nil, fmt.Errorf("binding seed env: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		if path == "" {
			return nil, fmt.Errorf("invalid config: %w", err)
		}
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

// Validate checks ranges that would otherwise surface mid-run.
func (c *Config) Validate() error {
	g := c.Generation
	known := false
	for _, name := range sampling.Names() {
		if g.Strategy == name {
			known = true
		}
	}
	if !known {
		return fmt.Errorf("unknown strategy %q (want one of %s)", g.Strategy, strings.Join(sampling.Names(), ", "))
	}
	if g.NumSamples < 1 {
		return fmt.Errorf("num_samples must be at least 1")
	}
	if g.Target < 0 {
		return fmt.Errorf("target must not be negative")
	}
	if g.SubsetSize < 0 {
		return fmt.Errorf("subset_size must not be negative")
	}
	if g.SubsetSize == 0 && (g.SubsetMin < 1 || g.SubsetMax < g.SubsetMin) {
		return fmt.Errorf("subset range [%d, %d] is invalid", g.SubsetMin, g.SubsetMax)
	}
	if g.NumBatches < 0 {
		return fmt.Errorf("num_batches must not be negative")
	}
	if g.NumBatches > 0 && g.BatchSize < 1 {
		return fmt.Errorf("batch_size must be at least 1 when batching")
	}
	if g.NumWorkers < 1 {
		return fmt.Errorf("num_workers must be at least 1")
	}
	if g.WorkerBatchSize < 1 {
		return fmt.Errorf("worker_batch_size must be at least 1")
	}
	if g.TrainSplit <= 0 || g.TrainSplit > 1 {
		return fmt.Errorf("train_split must be in (0, 1], got %v", g.TrainSplit)
	}
	if g.RetryOnReject < 0 {
		return fmt.Errorf("retry_on_reject must not be negative")
	}
	if c.Judge.Threshold < 0 || c.Judge.Threshold > 1 {
		return fmt.Errorf("judge threshold must be in [0, 1], got %v", c.Judge.Threshold)
	}
	if c.Judge.Votes < 1 {
		return fmt.Errorf("judge votes must be at least 1")
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry max_attempts must be at least 1")
	}
	if c.Retry.Factor < 1 {
		return fmt.Errorf("retry factor must be at least 1")
	}
	for _, r := range []struct {
		role string
		m    Model
	}{
		{"problem_generator", c.Models.ProblemGenerator},
		{"tool_caller", c.Models.ToolCaller},
		{"judge", c.Models.Judge},
	} {
		if r.m.Model == "" {
			return fmt.Errorf("models.%s.model is required", r.role)
		}
	}
	return nil
}

// SeedOrNow returns the configured seed, or a time-derived one.
func (g Generation) SeedOrNow() int64 {
	if g.Seed != nil {
		return *g.Seed
	}
	return time.Now().UnixNano()
}

// APIKey resolves the key from the configured environment variable.
func (m Models) APIKey() string {
	return os.Getenv(m.APIKeyEnv)
}
