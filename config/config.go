// Package config provides YAML configuration loading with validation,
// environment variable substitution, and hot reload for named resilience
// instances. Named base configs can be inherited via base_config; the core
// packages accept only built Config values, never raw YAML.
package config

import (
	"fmt"
	"net"
	"os"
	"regexp"
	"sort"
	"time"

	"github.com/SiftScience/resilience4j/circuitbreaker"
	"github.com/SiftScience/resilience4j/retry"
	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration.
type Config struct {
	Metrics         MetricsConfig  `yaml:"metrics"`
	Logging         LoggingConfig  `yaml:"logging"`
	Admin           AdminConfig    `yaml:"admin"`
	CircuitBreakers BreakerSection `yaml:"circuit_breakers"`
	Retries         RetrySection   `yaml:"retries"`

	// Warnings holds non-fatal config issues detected during loading.
	// Stored on the Config itself (not a package-level var) so it is
	// safe to call Load concurrently from the hot-reload goroutine.
	Warnings []string `yaml:"-"`
}

// MetricsConfig holds Prometheus metrics endpoint settings.
// Enabled defaults to true; set to false to disable metrics.
type MetricsConfig struct {
	Enabled *bool  `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// IsEnabled returns whether metrics are enabled (defaults to true).
func (m MetricsConfig) IsEnabled() bool {
	if m.Enabled == nil {
		return true
	}
	return *m.Enabled
}

// LoggingConfig holds event log output settings.
type LoggingConfig struct {
	Output     string `yaml:"output"`      // "stdout", "stderr", or file path; default: "stdout"
	MaxSizeMB  int    `yaml:"max_size_mb"` // max log file size before rotation; default: 100
	MaxBackups int    `yaml:"max_backups"` // number of rotated files to keep; default: 3
}

// AdminConfig holds admin API settings.
type AdminConfig struct {
	Enabled     bool     `yaml:"enabled"`      // default: false
	IPAllowlist []string `yaml:"ip_allowlist"` // CIDR notation
	JWTSecret   string   `yaml:"jwt_secret"`   // empty disables bearer auth
}

// BreakerSection holds named base configs and per-instance circuit breaker
// properties.
type BreakerSection struct {
	Configs   map[string]BreakerProperties `yaml:"configs"`
	Instances map[string]BreakerProperties `yaml:"instances"`
}

// RetrySection holds named base configs and per-instance retry properties.
type RetrySection struct {
	Configs   map[string]RetryProperties `yaml:"configs"`
	Instances map[string]RetryProperties `yaml:"instances"`
}

// BreakerProperties is the YAML shape of one circuit breaker config. Nil
// fields are unset and inherit from the base config or the core defaults.
type BreakerProperties struct {
	BaseConfig                            string         `yaml:"base_config"`
	FailureRateThreshold                  *float64       `yaml:"failure_rate_threshold"`
	SlowCallRateThreshold                 *float64       `yaml:"slow_call_rate_threshold"`
	SlowCallDurationThreshold             *time.Duration `yaml:"slow_call_duration_threshold"`
	WaitDurationInOpenState               *time.Duration `yaml:"wait_duration_in_open_state"`
	SlidingWindowType                     *string        `yaml:"sliding_window_type"` // "count" or "time"
	SlidingWindowSize                     *int           `yaml:"sliding_window_size"`
	MinimumNumberOfCalls                  *int           `yaml:"minimum_number_of_calls"`
	PermittedNumberOfCallsInHalfOpen      *int           `yaml:"permitted_number_of_calls_in_half_open"`
	AutomaticTransitionFromOpenToHalfOpen *bool          `yaml:"automatic_transition_from_open_to_half_open"`
	WritableStackTrace                    *bool          `yaml:"writable_stack_trace_enabled"`

	// Deprecated aliases, accepted as synonyms for sliding_window_size and
	// permitted_number_of_calls_in_half_open.
	RingBufferSizeInClosedState   *int `yaml:"ring_buffer_size_in_closed_state"`
	RingBufferSizeInHalfOpenState *int `yaml:"ring_buffer_size_in_half_open_state"`
}

// merge fills unset fields from base. Instance values win.
func (p *BreakerProperties) merge(base BreakerProperties) {
	if p.FailureRateThreshold == nil {
		p.FailureRateThreshold = base.FailureRateThreshold
	}
	if p.SlowCallRateThreshold == nil {
		p.SlowCallRateThreshold = base.SlowCallRateThreshold
	}
	if p.SlowCallDurationThreshold == nil {
		p.SlowCallDurationThreshold = base.SlowCallDurationThreshold
	}
	if p.WaitDurationInOpenState == nil {
		p.WaitDurationInOpenState = base.WaitDurationInOpenState
	}
	if p.SlidingWindowType == nil {
		p.SlidingWindowType = base.SlidingWindowType
	}
	if p.SlidingWindowSize == nil {
		p.SlidingWindowSize = base.SlidingWindowSize
	}
	if p.MinimumNumberOfCalls == nil {
		p.MinimumNumberOfCalls = base.MinimumNumberOfCalls
	}
	if p.PermittedNumberOfCallsInHalfOpen == nil {
		p.PermittedNumberOfCallsInHalfOpen = base.PermittedNumberOfCallsInHalfOpen
	}
	if p.AutomaticTransitionFromOpenToHalfOpen == nil {
		p.AutomaticTransitionFromOpenToHalfOpen = base.AutomaticTransitionFromOpenToHalfOpen
	}
	if p.WritableStackTrace == nil {
		p.WritableStackTrace = base.WritableStackTrace
	}
}

// normalize folds the deprecated ring-buffer aliases into the current field
// names, reporting a deprecation warning for each use.
func (p *BreakerProperties) normalize(name string) []string {
	var warnings []string
	if p.RingBufferSizeInClosedState != nil {
		if p.SlidingWindowSize == nil {
			p.SlidingWindowSize = p.RingBufferSizeInClosedState
		}
		warnings = append(warnings, fmt.Sprintf("%s: ring_buffer_size_in_closed_state is deprecated, use sliding_window_size", name))
	}
	if p.RingBufferSizeInHalfOpenState != nil {
		if p.PermittedNumberOfCallsInHalfOpen == nil {
			p.PermittedNumberOfCallsInHalfOpen = p.RingBufferSizeInHalfOpenState
		}
		warnings = append(warnings, fmt.Sprintf("%s: ring_buffer_size_in_half_open_state is deprecated, use permitted_number_of_calls_in_half_open", name))
	}
	return warnings
}

// build converts the merged properties into a core circuit breaker config.
func (p BreakerProperties) build() (circuitbreaker.Config, error) {
	var cfg circuitbreaker.Config
	if p.FailureRateThreshold != nil {
		cfg.FailureRateThreshold = *p.FailureRateThreshold
	}
	if p.SlowCallRateThreshold != nil {
		cfg.SlowCallRateThreshold = *p.SlowCallRateThreshold
	}
	if p.SlowCallDurationThreshold != nil {
		cfg.SlowCallDurationThreshold = *p.SlowCallDurationThreshold
	}
	if p.WaitDurationInOpenState != nil {
		cfg.WaitDurationInOpenState = *p.WaitDurationInOpenState
	}
	if p.SlidingWindowType != nil {
		switch *p.SlidingWindowType {
		case "count":
			cfg.SlidingWindowType = circuitbreaker.CountBased
		case "time":
			cfg.SlidingWindowType = circuitbreaker.TimeBased
		default:
			return cfg, fmt.Errorf("sliding_window_type must be \"count\" or \"time\", got %q", *p.SlidingWindowType)
		}
	}
	if p.SlidingWindowSize != nil {
		cfg.SlidingWindowSize = *p.SlidingWindowSize
	}
	if p.MinimumNumberOfCalls != nil {
		cfg.MinimumNumberOfCalls = *p.MinimumNumberOfCalls
	}
	if p.PermittedNumberOfCallsInHalfOpen != nil {
		cfg.PermittedNumberOfCallsInHalfOpen = *p.PermittedNumberOfCallsInHalfOpen
	}
	if p.AutomaticTransitionFromOpenToHalfOpen != nil {
		cfg.AutomaticTransitionFromOpenToHalfOpen = *p.AutomaticTransitionFromOpenToHalfOpen
	}
	cfg.WritableStackTrace = p.WritableStackTrace
	return cfg, nil
}

// RetryProperties is the YAML shape of one retry config.
type RetryProperties struct {
	BaseConfig          string         `yaml:"base_config"`
	MaxAttempts         *int           `yaml:"max_attempts"`
	Backoff             *string        `yaml:"backoff"` // constant | randomized | exponential | exponential_random
	InitialInterval     *time.Duration `yaml:"initial_interval"`
	Multiplier          *float64       `yaml:"multiplier"`
	RandomizationFactor *float64       `yaml:"randomization_factor"`
}

func (p *RetryProperties) merge(base RetryProperties) {
	if p.MaxAttempts == nil {
		p.MaxAttempts = base.MaxAttempts
	}
	if p.Backoff == nil {
		p.Backoff = base.Backoff
	}
	if p.InitialInterval == nil {
		p.InitialInterval = base.InitialInterval
	}
	if p.Multiplier == nil {
		p.Multiplier = base.Multiplier
	}
	if p.RandomizationFactor == nil {
		p.RandomizationFactor = base.RandomizationFactor
	}
}

// build converts the merged properties into a retry config with a
// constructed interval policy.
func (p RetryProperties) build() (retry.Config, error) {
	var cfg retry.Config
	if p.MaxAttempts != nil {
		cfg.MaxAttempts = *p.MaxAttempts
	}

	initial := retry.DefaultInitialInterval
	if p.InitialInterval != nil {
		initial = *p.InitialInterval
	}
	multiplier := retry.DefaultMultiplier
	if p.Multiplier != nil {
		multiplier = *p.Multiplier
	}
	factor := retry.DefaultRandomizationFactor
	if p.RandomizationFactor != nil {
		factor = *p.RandomizationFactor
	}

	backoff := "constant"
	if p.Backoff != nil {
		backoff = *p.Backoff
	}

	var (
		policy *retry.IntervalPolicy
		err    error
	)
	switch backoff {
	case "constant":
		policy, err = retry.NewConstant(initial)
	case "randomized":
		policy, err = retry.NewRandomized(initial, factor)
	case "exponential":
		policy, err = retry.NewExponential(initial, multiplier)
	case "exponential_random":
		policy, err = retry.NewExponentialRandom(initial, multiplier, factor)
	default:
		return cfg, fmt.Errorf("backoff must be one of constant, randomized, exponential, exponential_random; got %q", backoff)
	}
	if err != nil {
		return cfg, err
	}
	cfg.Interval = policy
	return cfg, nil
}

var envVarRe = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns in s with the corresponding
// environment variable value.
func expandEnvVars(s string) string {
	return envVarRe.ReplaceAllStringFunc(s, func(match string) string {
		key := match[2 : len(match)-1]
		if val, ok := os.LookupEnv(key); ok {
			return val
		}
		return match
	})
}

// Load reads and parses a YAML configuration file, applies environment
// variable substitution, sets defaults, and validates the result.
// Warnings are stored on cfg.Warnings (goroutine-safe, no package-level state).
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	cfg, err := LoadFromBytes(data)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromBytes parses configuration from raw YAML bytes. Useful for testing.
func LoadFromBytes(data []byte) (*Config, error) {
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	applyDefaults(&cfg)
	cfg.Warnings = normalizeAll(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
	if cfg.Logging.MaxSizeMB == 0 {
		cfg.Logging.MaxSizeMB = 100
	}
	if cfg.Logging.MaxBackups == 0 {
		cfg.Logging.MaxBackups = 3
	}
}

// normalizeAll folds deprecated aliases across all sections and collects
// deprecation warnings in deterministic order.
func normalizeAll(cfg *Config) []string {
	var warnings []string
	for _, name := range sortedBreakerNames(cfg.CircuitBreakers.Configs) {
		p := cfg.CircuitBreakers.Configs[name]
		warnings = append(warnings, p.normalize("circuit_breakers.configs."+name)...)
		cfg.CircuitBreakers.Configs[name] = p
	}
	for _, name := range sortedBreakerNames(cfg.CircuitBreakers.Instances) {
		p := cfg.CircuitBreakers.Instances[name]
		warnings = append(warnings, p.normalize("circuit_breakers.instances."+name)...)
		cfg.CircuitBreakers.Instances[name] = p
	}
	return warnings
}

func sortedBreakerNames(m map[string]BreakerProperties) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func validate(cfg *Config) error {
	if cfg.Admin.Enabled {
		if len(cfg.Admin.IPAllowlist) == 0 {
			return fmt.Errorf("admin.ip_allowlist is required when admin is enabled")
		}
		for i, cidr := range cfg.Admin.IPAllowlist {
			if _, _, err := net.ParseCIDR(cidr); err != nil {
				return fmt.Errorf("admin.ip_allowlist[%d]: invalid CIDR %q: %w", i, cidr, err)
			}
		}
	}

	if cfg.Logging.Output != "stdout" && cfg.Logging.Output != "stderr" {
		if cfg.Logging.MaxSizeMB < 1 {
			return fmt.Errorf("logging.max_size_mb must be positive when output is a file path")
		}
	}

	// Every named instance must resolve and build into a valid core config.
	for _, name := range sortedBreakerNames(cfg.CircuitBreakers.Instances) {
		built, err := cfg.BreakerConfig(name)
		if err != nil {
			return fmt.Errorf("circuit_breakers.instances.%s: %w", name, err)
		}
		if err := built.Validate(); err != nil {
			return fmt.Errorf("circuit_breakers.instances.%s: %w", name, err)
		}
	}
	for name := range cfg.Retries.Instances {
		if _, err := cfg.RetryConfig(name); err != nil {
			return fmt.Errorf("retries.instances.%s: %w", name, err)
		}
	}

	return nil
}

// BreakerConfig resolves the named circuit breaker instance into a core
// config. An instance with a base_config inherits its unset fields from the
// named base; a missing base fails with ConfigurationNotFoundError. An
// unknown instance name resolves to the "default" base config if present,
// otherwise to the core defaults.
func (c *Config) BreakerConfig(name string) (circuitbreaker.Config, error) {
	props, ok := c.CircuitBreakers.Instances[name]
	if !ok {
		if def, ok := c.CircuitBreakers.Configs["default"]; ok {
			return def.build()
		}
		return circuitbreaker.Config{}, nil
	}

	if props.BaseConfig != "" {
		base, ok := c.CircuitBreakers.Configs[props.BaseConfig]
		if !ok {
			return circuitbreaker.Config{}, &ConfigurationNotFoundError{Name: props.BaseConfig}
		}
		props.merge(base)
	}
	return props.build()
}

// RetryConfig resolves the named retry instance into a retry config, with
// the same base-config semantics as BreakerConfig.
func (c *Config) RetryConfig(name string) (retry.Config, error) {
	props, ok := c.Retries.Instances[name]
	if !ok {
		if def, ok := c.Retries.Configs["default"]; ok {
			return def.build()
		}
		return retry.Config{}, nil
	}

	if props.BaseConfig != "" {
		base, ok := c.Retries.Configs[props.BaseConfig]
		if !ok {
			return retry.Config{}, &ConfigurationNotFoundError{Name: props.BaseConfig}
		}
		props.merge(base)
	}
	return props.build()
}
