package config

import (
	"fmt"
	"strconv"
)

// Config represents the persistent quorra configuration stored as config.toml
// in the .quorra/ directory. The TOML layout uses sections for logical grouping.
type Config struct {
	Version     int               `toml:"version"`
	Storage     StorageConfig     `toml:"storage"`
	API         APIConfig         `toml:"api"`
	Client      ClientConfig      `toml:"client"`
	VectorStore VectorStoreConfig `toml:"vector_store"`
	Embedding   EmbeddingConfig   `toml:"embedding"`
	Generation  GenerationConfig  `toml:"generation"`
	Context     ContextConfig     `toml:"context"`
	Events      EventsConfig      `toml:"events"`
	Pipeline    PipelineConfig    `toml:"pipeline"`
}

// StorageConfig holds conversation store settings.
type StorageConfig struct {
	Driver      string `toml:"driver,omitempty"`
	SQLitePath  string `toml:"sqlite_path,omitempty"`
	PostgresDSN string `toml:"postgres_dsn,omitempty"`
}

// APIConfig holds API server settings.
type APIConfig struct {
	Listen string `toml:"listen,omitempty"`
}

// ClientConfig holds settings for CLI commands that connect to the running
// API server (e.g. quorra ask). Values are full URLs (scheme + host + port).
type ClientConfig struct {
	APITarget string `toml:"api_target,omitempty"`
}

// VectorStoreConfig holds vector index settings.
type VectorStoreConfig struct {
	Provider   string `toml:"provider,omitempty"`
	Target     string `toml:"target,omitempty"`
	Collection string `toml:"collection,omitempty"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider   string `toml:"provider,omitempty"`
	Target     string `toml:"target,omitempty"`
	Model      string `toml:"model,omitempty"`
	Dimensions uint   `toml:"dimensions,omitempty"`
	APIKey     string `toml:"api_key,omitempty"`
}

// GenerationConfig holds text-generation provider settings.
type GenerationConfig struct {
	Provider       string `toml:"provider,omitempty"`
	Target         string `toml:"target,omitempty"`
	Model          string `toml:"model,omitempty"`
	APIKey         string `toml:"api_key,omitempty"`
	MaxAttempts    int    `toml:"max_attempts,omitempty"`
	TimeoutSeconds int    `toml:"timeout_seconds,omitempty"`
}

// ContextConfig holds context assembly settings.
type ContextConfig struct {
	TotalBudget  int    `toml:"total_budget,omitempty"`
	ChunkFloor   int    `toml:"chunk_floor,omitempty"`
	TopK         int    `toml:"top_k,omitempty"`
	HistoryLimit int    `toml:"history_limit,omitempty"`
	SystemPrompt string `toml:"system_prompt,omitempty"`
}

// EventsConfig holds answer event stream settings.
type EventsConfig struct {
	Provider string   `toml:"provider,omitempty"`
	Brokers  []string `toml:"brokers,omitempty"`
	Topic    string   `toml:"topic,omitempty"`
}

// PipelineConfig holds orchestrator settings.
type PipelineConfig struct {
	MaxConcurrent int  `toml:"max_concurrent,omitempty"`
	DegradedMode  bool `toml:"degraded_mode"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

func intKey(get func(c *Config) int, set func(c *Config, n int), name string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string {
			if get(c) == 0 {
				return ""
			}
			return strconv.Itoa(get(c))
		},
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			set(c, n)
			return nil
		},
	}
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"storage.driver": {
		get: func(c *Config) string { return c.Storage.Driver },
		set: func(c *Config, v string) error { c.Storage.Driver = v; return nil },
	},
	"storage.sqlite_path": {
		get: func(c *Config) string { return c.Storage.SQLitePath },
		set: func(c *Config, v string) error { c.Storage.SQLitePath = v; return nil },
	},
	"storage.postgres_dsn": {
		get: func(c *Config) string { return c.Storage.PostgresDSN },
		set: func(c *Config, v string) error { c.Storage.PostgresDSN = v; return nil },
	},
	"api.listen": {
		get: func(c *Config) string { return c.API.Listen },
		set: func(c *Config, v string) error { c.API.Listen = v; return nil },
	},
	"client.api_target": {
		get: func(c *Config) string { return c.Client.APITarget },
		set: func(c *Config, v string) error { c.Client.APITarget = v; return nil },
	},
	"vector_store.provider": {
		get: func(c *Config) string { return c.VectorStore.Provider },
		set: func(c *Config, v string) error { c.VectorStore.Provider = v; return nil },
	},
	"vector_store.target": {
		get: func(c *Config) string { return c.VectorStore.Target },
		set: func(c *Config, v string) error { c.VectorStore.Target = v; return nil },
	},
	"vector_store.collection": {
		get: func(c *Config) string { return c.VectorStore.Collection },
		set: func(c *Config, v string) error { c.VectorStore.Collection = v; return nil },
	},
	"embedding.provider": {
		get: func(c *Config) string { return c.Embedding.Provider },
		set: func(c *Config, v string) error { c.Embedding.Provider = v; return nil },
	},
	"embedding.target": {
		get: func(c *Config) string { return c.Embedding.Target },
		set: func(c *Config, v string) error { c.Embedding.Target = v; return nil },
	},
	"embedding.model": {
		get: func(c *Config) string { return c.Embedding.Model },
		set: func(c *Config, v string) error { c.Embedding.Model = v; return nil },
	},
	"embedding.dimensions": {
		get: func(c *Config) string {
			if c.Embedding.Dimensions == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(c.Embedding.Dimensions), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for embedding.dimensions: %w", err)
			}
			c.Embedding.Dimensions = uint(n)
			return nil
		},
	},
	"embedding.api_key": {
		get: func(c *Config) string { return c.Embedding.APIKey },
		set: func(c *Config, v string) error { c.Embedding.APIKey = v; return nil },
	},
	"generation.provider": {
		get: func(c *Config) string { return c.Generation.Provider },
		set: func(c *Config, v string) error { c.Generation.Provider = v; return nil },
	},
	"generation.target": {
		get: func(c *Config) string { return c.Generation.Target },
		set: func(c *Config, v string) error { c.Generation.Target = v; return nil },
	},
	"generation.model": {
		get: func(c *Config) string { return c.Generation.Model },
		set: func(c *Config, v string) error { c.Generation.Model = v; return nil },
	},
	"generation.api_key": {
		get: func(c *Config) string { return c.Generation.APIKey },
		set: func(c *Config, v string) error { c.Generation.APIKey = v; return nil },
	},
	"generation.max_attempts": intKey(
		func(c *Config) int { return c.Generation.MaxAttempts },
		func(c *Config, n int) { c.Generation.MaxAttempts = n },
		"generation.max_attempts",
	),
	"generation.timeout_seconds": intKey(
		func(c *Config) int { return c.Generation.TimeoutSeconds },
		func(c *Config, n int) { c.Generation.TimeoutSeconds = n },
		"generation.timeout_seconds",
	),
	"context.total_budget": intKey(
		func(c *Config) int { return c.Context.TotalBudget },
		func(c *Config, n int) { c.Context.TotalBudget = n },
		"context.total_budget",
	),
	"context.chunk_floor": intKey(
		func(c *Config) int { return c.Context.ChunkFloor },
		func(c *Config, n int) { c.Context.ChunkFloor = n },
		"context.chunk_floor",
	),
	"context.top_k": intKey(
		func(c *Config) int { return c.Context.TopK },
		func(c *Config, n int) { c.Context.TopK = n },
		"context.top_k",
	),
	"context.history_limit": intKey(
		func(c *Config) int { return c.Context.HistoryLimit },
		func(c *Config, n int) { c.Context.HistoryLimit = n },
		"context.history_limit",
	),
	"context.system_prompt": {
		get: func(c *Config) string { return c.Context.SystemPrompt },
		set: func(c *Config, v string) error { c.Context.SystemPrompt = v; return nil },
	},
	"events.provider": {
		get: func(c *Config) string { return c.Events.Provider },
		set: func(c *Config, v string) error { c.Events.Provider = v; return nil },
	},
	"events.topic": {
		get: func(c *Config) string { return c.Events.Topic },
		set: func(c *Config, v string) error { c.Events.Topic = v; return nil },
	},
	"pipeline.max_concurrent": intKey(
		func(c *Config) int { return c.Pipeline.MaxConcurrent },
		func(c *Config, n int) { c.Pipeline.MaxConcurrent = n },
		"pipeline.max_concurrent",
	),
	"pipeline.degraded_mode": {
		get: func(c *Config) string { return strconv.FormatBool(c.Pipeline.DegradedMode) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for pipeline.degraded_mode: %w", err)
			}
			c.Pipeline.DegradedMode = b
			return nil
		},
	},
}
