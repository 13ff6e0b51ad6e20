package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kDuration
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "PATHLIGHT_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.token", typ: kString, env: "PATHLIGHT_SERVER_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Server.Token = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.Token },
	},
	{
		key: "log.level", typ: kString, env: "PATHLIGHT_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "engine.host", typ: kString, env: "PATHLIGHT_ENGINE_HOST",
		apply:   func(cfg *Config, v any) { cfg.Engine.Host = v.(string) },
		extract: func(cfg Config) any { return cfg.Engine.Host },
	},
	{
		key: "engine.model", typ: kString, env: "PATHLIGHT_ENGINE_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Engine.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Engine.Model },
	},
	{
		key: "engine.embed_model", typ: kString, env: "PATHLIGHT_ENGINE_EMBED_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Engine.EmbedModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Engine.EmbedModel },
	},
	{
		key: "cache.backend", typ: kString, env: "PATHLIGHT_CACHE_BACKEND",
		apply:   func(cfg *Config, v any) { cfg.Cache.Backend = v.(string) },
		extract: func(cfg Config) any { return cfg.Cache.Backend },
	},
	{
		key: "cache.redis_addr", typ: kString, env: "PATHLIGHT_CACHE_REDIS_ADDR",
		apply:   func(cfg *Config, v any) { cfg.Cache.RedisAddr = v.(string) },
		extract: func(cfg Config) any { return cfg.Cache.RedisAddr },
	},
	{
		key: "cache.coalesce", typ: kBool, env: "PATHLIGHT_CACHE_COALESCE",
		apply:   func(cfg *Config, v any) { cfg.Cache.Coalesce = v.(bool) },
		extract: func(cfg Config) any { return cfg.Cache.Coalesce },
	},
	{
		key: "cache.sweep_interval", typ: kDuration, env: "PATHLIGHT_CACHE_SWEEP_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Cache.SweepInterval = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Cache.SweepInterval },
	},
	{
		key: "cache.ttl.search", typ: kDuration, env: "PATHLIGHT_CACHE_TTL_SEARCH",
		apply:   func(cfg *Config, v any) { cfg.Cache.SearchTTL = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Cache.SearchTTL },
	},
	{
		key: "cache.ttl.trends", typ: kDuration, env: "PATHLIGHT_CACHE_TTL_TRENDS",
		apply:   func(cfg *Config, v any) { cfg.Cache.TrendsTTL = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Cache.TrendsTTL },
	},
	{
		key: "cache.ttl.keywords", typ: kDuration, env: "PATHLIGHT_CACHE_TTL_KEYWORDS",
		apply:   func(cfg *Config, v any) { cfg.Cache.KeywordsTTL = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Cache.KeywordsTTL },
	},
	{
		key: "search.endpoint", typ: kString, env: "PATHLIGHT_SEARCH_ENDPOINT",
		apply:   func(cfg *Config, v any) { cfg.Search.Endpoint = v.(string) },
		extract: func(cfg Config) any { return cfg.Search.Endpoint },
	},
	{
		key: "search.max_results", typ: kInt, env: "PATHLIGHT_SEARCH_MAX_RESULTS",
		apply:   func(cfg *Config, v any) { cfg.Search.MaxResults = v.(int) },
		extract: func(cfg Config) any { return cfg.Search.MaxResults },
	},
	{
		key: "search.rerank", typ: kBool, env: "PATHLIGHT_SEARCH_RERANK",
		apply:   func(cfg *Config, v any) { cfg.Search.Rerank = v.(bool) },
		extract: func(cfg Config) any { return cfg.Search.Rerank },
	},
	{
		key: "storage.path", typ: kString, env: "PATHLIGHT_STORAGE_PATH",
		apply:   func(cfg *Config, v any) { cfg.Storage.Path = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.Path },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kBool:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if bv, err := strconv.ParseBool(v); err == nil {
					s.apply(cfg, bv)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		case kDuration:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if d, err := time.ParseDuration(v); err == nil {
					s.apply(cfg, d)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse duration from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kBool:
			if b, err := strconv.ParseBool(raw); err == nil {
				s.apply(cfg, b)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kDuration:
			if d, err := time.ParseDuration(raw); err == nil {
				s.apply(cfg, d)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse duration from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
