// Package config loads the logrelay daemon configuration.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/c2h5oh/datasize"
	"gopkg.in/yaml.v3"

	"github.com/logrelay/logrelay-go/internal/guard"
	"github.com/logrelay/logrelay-go/internal/sink"
	"github.com/logrelay/logrelay-go/pkg/logrelay"
	"github.com/logrelay/logrelay-go/pkg/logrelay/matcher"
	"github.com/logrelay/logrelay-go/pkg/logrelay/pattern"
)

// Environment variables read by Load.
const (
	EnvDiscordToken = "LOGRELAY_DISCORD_TOKEN"
	EnvOTelEndpoint = "LOGRELAY_OTEL_ENDPOINT"
)

// maxConfigSize bounds the configuration file.
const maxConfigSize = 1 << 20

// Config is the daemon configuration.
type Config struct {
	Sources  []logrelay.Source `yaml:"sources"`
	Patterns PatternsConfig    `yaml:"patterns"`
	Tail     TailConfig        `yaml:"tail"`
	Guard    GuardConfig       `yaml:"guard"`
	Metrics  MetricsConfig     `yaml:"metrics"`
	Sinks    SinksConfig       `yaml:"sinks"`
}

// PatternsConfig selects the pattern files and how they are compiled.
type PatternsConfig struct {
	Files           []string          `yaml:"files"`
	Engine          string            `yaml:"engine"` // linear or backtrack
	MatchTimeout    time.Duration     `yaml:"match_timeout"`
	MaxDocumentSize datasize.ByteSize `yaml:"max_document_size"`
	MaxPatterns     int               `yaml:"max_patterns"`
}

// TailConfig tunes how log files are followed.
type TailConfig struct {
	PollInterval    time.Duration     `yaml:"poll_interval"`
	RestartDelay    time.Duration     `yaml:"restart_delay"`
	MaxLineLength   datasize.ByteSize `yaml:"max_line_length"`
	MaxBufferedLine datasize.ByteSize `yaml:"max_buffered_line"`
}

// GuardConfig configures the ban list and malicious-content rules.
type GuardConfig struct {
	Enabled      bool         `yaml:"enabled"`
	DefaultRules bool         `yaml:"default_rules"`
	Bans         []string     `yaml:"bans"`
	Rules        []guard.Rule `yaml:"rules"`
}

// MetricsConfig configures the Prometheus listener.
type MetricsConfig struct {
	Address string `yaml:"address"` // empty disables the listener
}

// SinksConfig holds one section per event sink.
type SinksConfig struct {
	Stdout  StdoutConfig  `yaml:"stdout"`
	Discord DiscordConfig `yaml:"discord"`
	OTel    OTelConfig    `yaml:"otel"`
}

// StdoutConfig configures the console sink.
type StdoutConfig struct {
	Enabled bool     `yaml:"enabled"`
	Format  string   `yaml:"format"`
	Kinds   []string `yaml:"kinds"`
}

// DiscordConfig configures the Discord channel sink. The bot token is read
// from the environment, never from the file.
type DiscordConfig struct {
	Enabled        bool              `yaml:"enabled"`
	Token          string            `yaml:"-"` // from env only
	DefaultChannel string            `yaml:"default_channel"`
	Channels       map[string]string `yaml:"channels"`
	Interval       time.Duration     `yaml:"interval"`
	Kinds          []string          `yaml:"kinds"`
}

// OTelConfig configures the OpenTelemetry log exporter.
type OTelConfig struct {
	Enabled     bool     `yaml:"enabled"`
	Endpoint    string   `yaml:"endpoint"`
	ServiceName string   `yaml:"service_name"`
	Insecure    bool     `yaml:"insecure"`
	Kinds       []string `yaml:"kinds"`
}

// Default returns the configuration used for keys a file leaves out.
func Default() Config {
	return Config{
		Patterns: PatternsConfig{
			Engine:          string(matcher.EngineLinear),
			MatchTimeout:    matcher.DefaultTimeout,
			MaxDocumentSize: datasize.ByteSize(pattern.MaxDocumentSize),
			MaxPatterns:     pattern.MaxPatternsPerDocument,
		},
		Tail: TailConfig{
			PollInterval:    logrelay.DefaultPollInterval,
			RestartDelay:    logrelay.RestartDelay,
			MaxLineLength:   datasize.ByteSize(logrelay.MaxLineLength),
			MaxBufferedLine: datasize.ByteSize(logrelay.MaxBufferedLine),
		},
		Guard: GuardConfig{
			Enabled:      true,
			DefaultRules: true,
		},
		Sinks: SinksConfig{
			Stdout: StdoutConfig{Enabled: true, Format: sink.FormatJSONL},
			Discord: DiscordConfig{
				Interval: time.Second,
			},
			OTel: OTelConfig{
				ServiceName: "logrelay",
			},
		},
	}
}

// Load reads path over Default, applies environment overrides and validates
// the result. Unknown keys are errors. Relative source and pattern paths
// are resolved against the directory of path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxConfigSize+1))
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if len(data) > maxConfigSize {
		return nil, fmt.Errorf("config %s: larger than %d bytes", path, maxConfigSize)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	cfg.resolvePaths(filepath.Dir(path))
	cfg.applyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes data over Default without environment overrides or
// validation.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) resolvePaths(dir string) {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(dir, p)
	}
	for i := range c.Sources {
		if c.Sources[i].ID == "" {
			c.Sources[i].ID = c.Sources[i].Path
		}
		c.Sources[i].Path = abs(c.Sources[i].Path)
	}
	for i, f := range c.Patterns.Files {
		c.Patterns.Files[i] = abs(f)
	}
}

func (c *Config) applyEnv(getenv func(string) string) {
	c.Sinks.Discord.Token = getenv(EnvDiscordToken)
	if v := getenv(EnvOTelEndpoint); v != "" {
		c.Sinks.OTel.Endpoint = v
	}
}

// Validate reports the first configuration problem.
func (c *Config) Validate() error {
	if len(c.Sources) == 0 {
		return errors.New("sources: at least one source is required")
	}
	if len(c.Patterns.Files) == 0 {
		return errors.New("patterns.files: at least one pattern file is required")
	}
	if _, err := matcher.ParseEngine(c.Patterns.Engine); err != nil {
		return fmt.Errorf("patterns.engine: %w", err)
	}
	if c.Patterns.MatchTimeout < 0 {
		return errors.New("patterns.match_timeout: must not be negative")
	}
	if c.Tail.PollInterval <= 0 {
		return errors.New("tail.poll_interval: must be positive")
	}
	if c.Tail.MaxLineLength.Bytes() == 0 {
		return errors.New("tail.max_line_length: must be positive")
	}

	s := c.Sinks
	if !s.Stdout.Enabled && !s.Discord.Enabled && !s.OTel.Enabled {
		return errors.New("sinks: at least one sink must be enabled")
	}
	if s.Stdout.Enabled && !sink.ValidFormats[s.Stdout.Format] {
		return fmt.Errorf("sinks.stdout.format: unknown format %q", s.Stdout.Format)
	}
	if s.Discord.Enabled {
		if s.Discord.Token == "" {
			return fmt.Errorf("sinks.discord: %s is required when discord is enabled", EnvDiscordToken)
		}
		if s.Discord.DefaultChannel == "" && len(s.Discord.Channels) == 0 {
			return errors.New("sinks.discord: default_channel or channels is required")
		}
	}
	return nil
}

// Compiler returns the regex compiler for patterns and guard rules.
func (c *Config) Compiler() matcher.Compiler {
	engine, _ := matcher.ParseEngine(c.Patterns.Engine)
	return matcher.Compiler{Engine: engine, Timeout: c.Patterns.MatchTimeout}
}

// PatternSources returns one source per pattern file.
func (c *Config) PatternSources() []pattern.Source {
	out := make([]pattern.Source, len(c.Patterns.Files))
	for i, f := range c.Patterns.Files {
		out[i] = pattern.NewFileSource(f)
	}
	return out
}

// PatternLimits returns the loader limits.
func (c *Config) PatternLimits() pattern.Limits {
	return pattern.Limits{
		MaxDocumentSize: int(c.Patterns.MaxDocumentSize.Bytes()),
		MaxPatterns:     c.Patterns.MaxPatterns,
	}
}

// TailOptions returns the tailer and parser options from the tail section.
func (c *Config) TailOptions() []logrelay.Option {
	return []logrelay.Option{
		logrelay.WithPollInterval(c.Tail.PollInterval),
		logrelay.WithRestartDelay(c.Tail.RestartDelay),
		logrelay.WithMaxLineLength(int(c.Tail.MaxLineLength.Bytes())),
		logrelay.WithMaxBufferedLine(int(c.Tail.MaxBufferedLine.Bytes())),
		logrelay.WithCompiler(c.Compiler()),
	}
}

// GuardPolicy returns the guard policy, or false when the guard is off.
func (c *Config) GuardPolicy() (guard.Config, bool) {
	if !c.Guard.Enabled {
		return guard.Config{}, false
	}
	rules := append([]guard.Rule(nil), c.Guard.Rules...)
	if c.Guard.DefaultRules {
		rules = append(guard.DefaultRules(), rules...)
	}
	bans := make([]string, 0, len(c.Guard.Bans))
	for _, b := range c.Guard.Bans {
		if strings.TrimSpace(b) != "" {
			bans = append(bans, b)
		}
	}
	return guard.Config{Bans: bans, Rules: rules}, true
}
