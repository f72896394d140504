package datasource

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"dataengine/pkg/confkit"
)

// Config describes the set of upstream sources available to the application.
type Config struct {
	Default string                   `yaml:"default"`
	Sources map[string]*SourceConfig `yaml:"sources"`
}

// SourceConfig configures a single upstream source instance.
type SourceConfig struct {
	Type  string `yaml:"type"`
	Class string `yaml:"class"`

	BaseURL string `yaml:"base_url"`
	Market  string `yaml:"market"`
	AppKey  string `yaml:"app_key"`
	Secret  string `yaml:"secret"`

	TimeoutRaw     string        `yaml:"timeout"`
	Timeout        time.Duration `yaml:"-"`
	HTTPTimeoutRaw string        `yaml:"http_timeout"`
	HTTPTimeout    time.Duration `yaml:"-"`
	MaxRetries     int           `yaml:"max_retries"`
}

// AssetClass returns the declared class for this source.
func (s *SourceConfig) AssetClass() AssetClass {
	return AssetClass(strings.ToLower(strings.TrimSpace(s.Class)))
}

// SourceBuilder constructs a DataSource from configuration.
type SourceBuilder func(name string, cfg *SourceConfig) (DataSource, error)

var (
	sourceRegistry   = make(map[string]SourceBuilder)
	sourceRegistryMu sync.RWMutex
)

// RegisterSource registers an adapter constructor under a type name.
func RegisterSource(typeName string, builder SourceBuilder) {
	sourceRegistryMu.Lock()
	defer sourceRegistryMu.Unlock()
	sourceRegistry[strings.ToLower(strings.TrimSpace(typeName))] = builder
}

func lookupSourceBuilder(typeName string) (SourceBuilder, bool) {
	sourceRegistryMu.RLock()
	defer sourceRegistryMu.RUnlock()
	builder, ok := sourceRegistry[strings.ToLower(strings.TrimSpace(typeName))]
	return builder, ok
}

// LoadConfig reads source configuration from disk.
func LoadConfig(path string) (*Config, error) {
	confkit.LoadDotenvOnce()
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open sources config: %w", err)
	}
	defer file.Close()
	return LoadConfigFromReader(file)
}

// LoadConfigFromReader constructs a Config from an io.Reader.
func LoadConfigFromReader(r io.Reader) (*Config, error) {
	confkit.LoadDotenvOnce()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read sources config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal sources config: %w", err)
	}
	if err := cfg.normalise(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalise() error {
	if c.Sources == nil {
		c.Sources = make(map[string]*SourceConfig)
	}
	for name, source := range c.Sources {
		if source == nil {
			source = &SourceConfig{}
			c.Sources[name] = source
		}
		source.expandEnv()
		if err := source.parseDurations(name); err != nil {
			return err
		}
	}
	return nil
}

func (s *SourceConfig) expandEnv() {
	s.Type = strings.TrimSpace(os.ExpandEnv(s.Type))
	s.Class = strings.TrimSpace(os.ExpandEnv(s.Class))
	s.BaseURL = strings.TrimSpace(os.ExpandEnv(s.BaseURL))
	s.Market = strings.TrimSpace(os.ExpandEnv(s.Market))
	s.AppKey = strings.TrimSpace(os.ExpandEnv(s.AppKey))
	s.Secret = strings.TrimSpace(os.ExpandEnv(s.Secret))
	s.TimeoutRaw = strings.TrimSpace(os.ExpandEnv(s.TimeoutRaw))
	s.HTTPTimeoutRaw = strings.TrimSpace(os.ExpandEnv(s.HTTPTimeoutRaw))
}

func (s *SourceConfig) parseDurations(name string) error {
	if s.TimeoutRaw != "" {
		d, err := time.ParseDuration(s.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("source %s: invalid timeout %q: %w", name, s.TimeoutRaw, err)
		}
		if d <= 0 {
			return fmt.Errorf("source %s: timeout must be positive, got %s", name, d)
		}
		s.Timeout = d
	}
	if s.HTTPTimeoutRaw != "" {
		d, err := time.ParseDuration(s.HTTPTimeoutRaw)
		if err != nil {
			return fmt.Errorf("source %s: invalid http_timeout %q: %w", name, s.HTTPTimeoutRaw, err)
		}
		if d <= 0 {
			return fmt.Errorf("source %s: http_timeout must be positive, got %s", name, d)
		}
		s.HTTPTimeout = d
	}
	return nil
}

// Validate ensures the configuration is structurally sound.
func (c *Config) Validate() error {
	if len(c.Sources) == 0 {
		return fmt.Errorf("sources config: sources cannot be empty")
	}
	if c.Default != "" {
		if _, ok := c.Sources[c.Default]; !ok {
			return fmt.Errorf("sources config: default source %q not defined", c.Default)
		}
	}
	for name, source := range c.Sources {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("sources config: source name cannot be empty")
		}
		if err := source.validate(name); err != nil {
			return err
		}
	}
	return nil
}

func (s *SourceConfig) validate(name string) error {
	if s == nil {
		return fmt.Errorf("sources config: source %s is nil", name)
	}
	if strings.TrimSpace(s.Type) == "" {
		return fmt.Errorf("sources config: source %s must specify type", name)
	}
	if _, ok := lookupSourceBuilder(s.Type); !ok {
		return fmt.Errorf("sources config: source %s has unsupported type %q", name, s.Type)
	}
	if !s.AssetClass().Valid() {
		return fmt.Errorf("sources config: source %s has unknown asset class %q", name, s.Class)
	}
	return nil
}

// BuildSources instantiates data sources according to configuration.
func (c *Config) BuildSources() (map[string]DataSource, error) {
	result := make(map[string]DataSource, len(c.Sources))
	for name, sourceCfg := range c.Sources {
		builder, ok := lookupSourceBuilder(sourceCfg.Type)
		if !ok {
			return nil, fmt.Errorf("source %s: unsupported type %q", name, sourceCfg.Type)
		}
		source, err := builder(name, sourceCfg)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", name, err)
		}
		result[name] = source
	}
	return result, nil
}

// ByClass groups built sources by their declared asset class. Each class keeps
// its first source in map iteration order when duplicates are configured.
func (c *Config) ByClass(sources map[string]DataSource) map[AssetClass]DataSource {
	out := make(map[AssetClass]DataSource, len(sources))
	for name, src := range sources {
		cfg := c.Sources[name]
		if cfg == nil {
			continue
		}
		class := cfg.AssetClass()
		if _, taken := out[class]; !taken {
			out[class] = src
		}
	}
	return out
}
