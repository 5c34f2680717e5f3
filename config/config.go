// Package config carrega a configuração do gateway: defaults, arquivo YAML
// opcional (com ${VAR} expandido) e, por último, variáveis de ambiente.
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"classifier-gateway/middleware/gateway/domain"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Listen      string `yaml:"listen"`
	AdminListen string `yaml:"admin_listen"`
	UpstreamURL string `yaml:"upstream_url"`
	TrustXFF    bool   `yaml:"trust_xff"`
	LogLevel    string `yaml:"log_level"`

	Redis       RedisConfig       `yaml:"redis"`
	Cache       CacheConfig       `yaml:"cache"`
	Admission   AdmissionConfig   `yaml:"admission"`
	Analytics   AnalyticsConfig   `yaml:"analytics"`
	Burst       BurstConfig       `yaml:"burst"`
	Concurrency ConcurrencyConfig `yaml:"concurrency"`
}

type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"pool_size"`
	Timeout  time.Duration `yaml:"timeout"`
}

type CacheConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Namespace     string        `yaml:"namespace"`
	Routes        []string      `yaml:"routes"`
	LocalCapacity int           `yaml:"local_capacity"`
	LocalTTL      time.Duration `yaml:"local_ttl"`
	DefaultTTL    time.Duration `yaml:"default_ttl"`
	DashboardTTL  time.Duration `yaml:"dashboard_ttl"`
}

type AdmissionConfig struct {
	Enabled            bool          `yaml:"enabled"`
	RequireAPIKey      bool          `yaml:"require_api_key"`
	Quotas             domain.Quotas `yaml:"quotas"`
	BlockDuration      time.Duration `yaml:"block_duration"`
	SuspicionThreshold int64         `yaml:"suspicion_threshold"`
	SuspicionTTL       time.Duration `yaml:"suspicion_ttl"`
	MaxRequestSize     int           `yaml:"max_request_size"`
	APIKeyTTL          time.Duration `yaml:"api_key_ttl"`
	SweepEvery         time.Duration `yaml:"sweep_every"`
	AdminTier          domain.Tier   `yaml:"admin_tier"`
}

type AnalyticsConfig struct {
	Enabled bool `yaml:"enabled"`
	Async   bool `yaml:"async"`
}

type BurstConfig struct {
	Enabled    bool          `yaml:"enabled"`
	RPS        float64       `yaml:"rps"`
	Burst      int           `yaml:"burst"`
	RetryAfter time.Duration `yaml:"retry_after"`
	AddHeaders bool          `yaml:"add_headers"`
}

type ConcurrencyConfig struct {
	Max            int           `yaml:"max"`
	AcquireTimeout time.Duration `yaml:"acquire_timeout"`
}

func Default() *Config {
	return &Config{
		Listen:      ":8080",
		AdminListen: ":8081",
		LogLevel:    "info",
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 20,
			Timeout:  500 * time.Millisecond,
		},
		Cache: CacheConfig{
			Enabled:       true,
			Namespace:     "scam_detection",
			Routes:        []string{"/honeypot/interact"},
			LocalCapacity: domain.DefaultLocalCapacity,
			LocalTTL:      domain.DefaultLocalTTL,
			DefaultTTL:    domain.DefaultCacheTTL,
			DashboardTTL:  5 * time.Minute,
		},
		Admission: AdmissionConfig{
			Enabled:            true,
			Quotas:             domain.DefaultQuotas(),
			BlockDuration:      time.Hour,
			SuspicionThreshold: 5,
			SuspicionTTL:       time.Hour,
			MaxRequestSize:     10000,
			APIKeyTTL:          30 * 24 * time.Hour,
			SweepEvery:         time.Hour,
			AdminTier:          domain.TierPremium,
		},
		Analytics: AnalyticsConfig{
			Enabled: true,
			Async:   true,
		},
		Burst: BurstConfig{
			Enabled:    true,
			RPS:        10,
			Burst:      20,
			RetryAfter: time.Second,
		},
		Concurrency: ConcurrencyConfig{
			Max: 100,
		},
	}
}

// Load lê o arquivo YAML em cima dos defaults. path vazio retorna só os defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// ApplyEnv sobrescreve os campos com as variáveis de ambiente definidas.
// Valores inválidos são ignorados.
func (c *Config) ApplyEnv() {
	c.Listen = getenvDefault("LISTEN_ADDR", c.Listen)
	if v, ok := os.LookupEnv("ADMIN_LISTEN_ADDR"); ok {
		c.AdminListen = v
	}
	c.UpstreamURL = getenvDefault("UPSTREAM_URL", c.UpstreamURL)
	c.TrustXFF = getenvBoolDefault("TRUST_XFF", c.TrustXFF)
	c.LogLevel = getenvDefault("LOG_LEVEL", c.LogLevel)

	if host := os.Getenv("REDIS_HOST"); host != "" {
		c.Redis.Addr = net.JoinHostPort(host, getenvDefault("REDIS_PORT", "6379"))
	}
	c.Redis.Addr = getenvDefault("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getenvDefault("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = getenvIntDefault("REDIS_DB", c.Redis.DB)
	c.Redis.Timeout = getenvDurationDefault("REDIS_TIMEOUT", c.Redis.Timeout)

	c.Cache.Enabled = getenvBoolDefault("CACHE_ENABLED", c.Cache.Enabled)
	c.Cache.LocalCapacity = getenvIntDefault("CACHE_LOCAL_CAPACITY", c.Cache.LocalCapacity)
	c.Cache.DefaultTTL = getenvDurationDefault("CACHE_TTL", c.Cache.DefaultTTL)
	if routes := os.Getenv("CACHE_ROUTES"); routes != "" {
		c.Cache.Routes = splitList(routes)
	}

	c.Admission.Enabled = getenvBoolDefault("ADMISSION_ENABLED", c.Admission.Enabled)
	c.Admission.RequireAPIKey = getenvBoolDefault("REQUIRE_API_KEY", c.Admission.RequireAPIKey)
	c.Admission.BlockDuration = getenvDurationDefault("BLOCK_DURATION", c.Admission.BlockDuration)

	c.Analytics.Enabled = getenvBoolDefault("ANALYTICS_ENABLED", c.Analytics.Enabled)

	c.Burst.Enabled = getenvBoolDefault("BURST_ENABLED", c.Burst.Enabled)
	c.Burst.RPS = getenvFloatDefault("BURST_RPS", c.Burst.RPS)
	// burst padrão alto com RPS < 1 parece que o limiter não funciona:
	// as primeiras ~20 passam direto
	if burst, ok := getenvInt("BURST_SIZE"); ok {
		c.Burst.Burst = burst
	} else if getenvIsSet("BURST_RPS") && c.Burst.RPS > 0 && c.Burst.RPS < 1 {
		c.Burst.Burst = 1
	}
	c.Burst.RetryAfter = getenvDurationDefault("RETRY_AFTER", c.Burst.RetryAfter)
	c.Burst.AddHeaders = getenvBoolDefault("ADD_RATELIMIT_HEADERS", c.Burst.AddHeaders)

	c.Concurrency.Max = getenvIntDefault("CONCURRENCY_MAX", c.Concurrency.Max)
	c.Concurrency.AcquireTimeout = getenvDurationDefault("CONCURRENCY_TIMEOUT", c.Concurrency.AcquireTimeout)
}

// Validate confere apenas o que o serve precisa; os subcomandos de
// manutenção não exigem upstream.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.UpstreamURL) == "" {
		errs = append(errs, errors.New("upstream_url is required"))
	} else if u, err := url.Parse(c.UpstreamURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("invalid upstream_url %q", c.UpstreamURL))
	}
	if strings.TrimSpace(c.Redis.Addr) == "" {
		errs = append(errs, errors.New("redis.addr is required"))
	}
	if c.Burst.Enabled {
		if c.Burst.RPS <= 0 {
			errs = append(errs, errors.New("burst.rps must be > 0"))
		}
		if c.Burst.Burst <= 0 {
			errs = append(errs, errors.New("burst.burst must be > 0"))
		}
	}
	if c.Concurrency.Max < 0 {
		errs = append(errs, errors.New("concurrency.max must be >= 0"))
	}
	if c.Cache.LocalCapacity <= 0 {
		errs = append(errs, errors.New("cache.local_capacity must be > 0"))
	}
	if _, ok := c.Admission.Quotas[domain.TierDefault]; !ok {
		errs = append(errs, errors.New("admission.quotas must define the default tier"))
	}
	for tier, q := range c.Admission.Quotas {
		if q.Requests <= 0 || q.Window <= 0 {
			errs = append(errs, fmt.Errorf("admission.quotas.%s: requests and window must be > 0", tier))
		}
	}
	if c.Admission.AdminTier != "" && !domain.ValidKeyTier(c.Admission.AdminTier) {
		errs = append(errs, fmt.Errorf("invalid admission.admin_tier %q", c.Admission.AdminTier))
	}
	return errors.Join(errs...)
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvIntDefault(k string, def int) int {
	if i, ok := getenvInt(k); ok {
		return i
	}
	return def
}

func getenvInt(k string) (int, bool) {
	v, ok := os.LookupEnv(k)
	if !ok || v == "" {
		return 0, false
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return i, true
}

func getenvIsSet(k string) bool {
	v, ok := os.LookupEnv(k)
	return ok && v != ""
}

func getenvFloatDefault(k string, def float64) float64 {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getenvBoolDefault(k string, def bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getenvDurationDefault(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
