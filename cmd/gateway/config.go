package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"admission-gateway/middleware/admission"
	"admission-gateway/middleware/admission/domain"

	"github.com/spf13/viper"
)

type config struct {
	listenAddr      string
	upstreamURL     string
	sensitiveRoutes []admission.Route
	keyHeader       string

	profiles           domain.Profiles
	manualBlock        time.Duration
	cleanupEvery       time.Duration
	abusePolicy        domain.AbusePolicy
	secHeaders         bool
	adminPath          string
	adminToken         string
	submitPath         string
	relayURL           string
	relayTimeout       time.Duration
	relayRPS           float64
	relayBurst         int
	relayUA            string
	concurrencyMax     int
	concurrencyTimeout time.Duration

	statsBackend       string
	statsRedisAddr     string
	statsRedisPassword string
	statsRedisDB       int
	statsPrefix        string
	statsTTL           time.Duration
	statsBucket        string
	statsTrackKeys     bool

	metricsEnabled bool
	metricsPath    string

	logLevel  string
	logFormat string
}

const (
	statsMemory = "memory"
	statsRedis  = "redis"
	statsNone   = "none"
)

func setDefaults(v *viper.Viper) {
	def := domain.DefaultProfiles()

	v.SetDefault("LISTEN_ADDR", ":8080")
	v.SetDefault("UPSTREAM_URL", "")
	v.SetDefault("SENSITIVE_ROUTES", "POST /api/submit")
	v.SetDefault("RATE_KEY_HEADER", "")

	v.SetDefault("SENSITIVE_WINDOW", def.Sensitive.Window)
	v.SetDefault("SENSITIVE_MAX_REQUESTS", def.Sensitive.MaxRequests)
	v.SetDefault("SENSITIVE_BLOCK", def.Sensitive.BlockDuration)
	v.SetDefault("SENSITIVE_MESSAGE", def.Sensitive.Message)
	v.SetDefault("GENERAL_WINDOW", def.General.Window)
	v.SetDefault("GENERAL_MAX_REQUESTS", def.General.MaxRequests)
	v.SetDefault("GENERAL_BLOCK", def.General.BlockDuration)
	v.SetDefault("GENERAL_MESSAGE", def.General.Message)
	v.SetDefault("MANUAL_BLOCK_DURATION", 24*time.Hour)
	v.SetDefault("CLEANUP_EVERY", 5*time.Minute)

	v.SetDefault("ABUSE_THRESHOLD", domain.DefaultAbusePolicy().Threshold)
	v.SetDefault("ABUSE_BLOCK_TTL", time.Duration(0))

	v.SetDefault("SECURITY_HEADERS", true)
	v.SetDefault("ADMIN_PATH", "/api/security-status")
	v.SetDefault("ADMIN_TOKEN", "")
	v.SetDefault("SUBMIT_PATH", "/api/submit")

	v.SetDefault("RELAY_URL", "")
	v.SetDefault("RELAY_TIMEOUT", 15*time.Second)
	v.SetDefault("RELAY_RPS", 5)
	v.SetDefault("RELAY_BURST", 10)
	v.SetDefault("RELAY_USER_AGENT", "admission-gateway/1.0")

	v.SetDefault("CONCURRENCY_MAX", 100)
	v.SetDefault("CONCURRENCY_TIMEOUT", time.Duration(0))

	v.SetDefault("STATS_BACKEND", statsMemory)
	v.SetDefault("STATS_REDIS_ADDR", "")
	v.SetDefault("STATS_REDIS_PASSWORD", "")
	v.SetDefault("STATS_REDIS_DB", 0)
	v.SetDefault("STATS_PREFIX", "admission:stats")
	v.SetDefault("STATS_TTL", 24*time.Hour)
	v.SetDefault("STATS_BUCKET", "minute")
	v.SetDefault("STATS_TRACK_KEYS", false)

	v.SetDefault("METRICS_ENABLED", true)
	v.SetDefault("METRICS_PATH", "/metrics")

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
}

// readConfig lê tudo do ambiente (o .env, se existir, já foi carregado em main).
func readConfig() (config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	cfg := config{
		listenAddr:  v.GetString("LISTEN_ADDR"),
		upstreamURL: strings.TrimSpace(v.GetString("UPSTREAM_URL")),
		keyHeader:   strings.TrimSpace(v.GetString("RATE_KEY_HEADER")),
		profiles: domain.Profiles{
			Sensitive: domain.ProfileConfig{
				Window:        v.GetDuration("SENSITIVE_WINDOW"),
				MaxRequests:   v.GetInt("SENSITIVE_MAX_REQUESTS"),
				BlockDuration: v.GetDuration("SENSITIVE_BLOCK"),
				Message:       v.GetString("SENSITIVE_MESSAGE"),
			},
			General: domain.ProfileConfig{
				Window:        v.GetDuration("GENERAL_WINDOW"),
				MaxRequests:   v.GetInt("GENERAL_MAX_REQUESTS"),
				BlockDuration: v.GetDuration("GENERAL_BLOCK"),
				Message:       v.GetString("GENERAL_MESSAGE"),
			},
		},
		manualBlock:  v.GetDuration("MANUAL_BLOCK_DURATION"),
		cleanupEvery: v.GetDuration("CLEANUP_EVERY"),
		abusePolicy: domain.AbusePolicy{
			Threshold: v.GetInt("ABUSE_THRESHOLD"),
			BlockTTL:  v.GetDuration("ABUSE_BLOCK_TTL"),
		},
		secHeaders:         v.GetBool("SECURITY_HEADERS"),
		adminPath:          v.GetString("ADMIN_PATH"),
		adminToken:         v.GetString("ADMIN_TOKEN"),
		submitPath:         v.GetString("SUBMIT_PATH"),
		relayURL:           strings.TrimSpace(v.GetString("RELAY_URL")),
		relayTimeout:       v.GetDuration("RELAY_TIMEOUT"),
		relayRPS:           v.GetFloat64("RELAY_RPS"),
		relayBurst:         v.GetInt("RELAY_BURST"),
		relayUA:            v.GetString("RELAY_USER_AGENT"),
		concurrencyMax:     v.GetInt("CONCURRENCY_MAX"),
		concurrencyTimeout: v.GetDuration("CONCURRENCY_TIMEOUT"),

		statsBackend:       strings.ToLower(strings.TrimSpace(v.GetString("STATS_BACKEND"))),
		statsRedisAddr:     strings.TrimSpace(v.GetString("STATS_REDIS_ADDR")),
		statsRedisPassword: v.GetString("STATS_REDIS_PASSWORD"),
		statsRedisDB:       v.GetInt("STATS_REDIS_DB"),
		statsPrefix:        v.GetString("STATS_PREFIX"),
		statsTTL:           v.GetDuration("STATS_TTL"),
		statsBucket:        v.GetString("STATS_BUCKET"),
		statsTrackKeys:     v.GetBool("STATS_TRACK_KEYS"),

		metricsEnabled: v.GetBool("METRICS_ENABLED"),
		metricsPath:    v.GetString("METRICS_PATH"),

		logLevel:  v.GetString("LOG_LEVEL"),
		logFormat: strings.ToLower(v.GetString("LOG_FORMAT")),
	}

	routes, err := admission.ParseRoutes(v.GetString("SENSITIVE_ROUTES"))
	if err != nil {
		return config{}, fmt.Errorf("SENSITIVE_ROUTES: %w", err)
	}
	cfg.sensitiveRoutes = routes

	if err := cfg.validate(); err != nil {
		return config{}, err
	}
	return cfg, nil
}

func (c config) validate() error {
	for _, p := range []struct {
		name string
		cfg  domain.ProfileConfig
	}{
		{"SENSITIVE", c.profiles.Sensitive},
		{"GENERAL", c.profiles.General},
	} {
		if p.cfg.Window <= 0 {
			return fmt.Errorf("%s_WINDOW must be > 0", p.name)
		}
		if p.cfg.MaxRequests <= 0 {
			return fmt.Errorf("%s_MAX_REQUESTS must be > 0", p.name)
		}
		if p.cfg.BlockDuration <= 0 {
			return fmt.Errorf("%s_BLOCK must be > 0", p.name)
		}
	}
	if c.manualBlock <= 0 {
		return errors.New("MANUAL_BLOCK_DURATION must be > 0")
	}
	if c.cleanupEvery < 0 {
		return errors.New("CLEANUP_EVERY must be >= 0")
	}
	if c.abusePolicy.Threshold < 1 {
		return errors.New("ABUSE_THRESHOLD must be >= 1")
	}
	if c.abusePolicy.BlockTTL < 0 {
		return errors.New("ABUSE_BLOCK_TTL must be >= 0")
	}
	if c.concurrencyMax < 0 {
		return errors.New("CONCURRENCY_MAX must be >= 0")
	}
	if !strings.HasPrefix(c.adminPath, "/") || !strings.HasPrefix(c.submitPath, "/") {
		return errors.New("ADMIN_PATH and SUBMIT_PATH must start with /")
	}

	switch c.statsBackend {
	case statsMemory, statsNone:
	case statsRedis:
		if c.statsRedisAddr == "" {
			return errors.New("STATS_REDIS_ADDR is required when STATS_BACKEND=redis")
		}
	default:
		return fmt.Errorf("STATS_BACKEND must be one of memory, redis, none (got %q)", c.statsBackend)
	}

	if c.metricsEnabled && !strings.HasPrefix(c.metricsPath, "/") {
		return errors.New("METRICS_PATH must start with /")
	}
	return nil
}
