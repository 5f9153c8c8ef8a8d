// Package config loads agentforum settings from an optional YAML file, a .env
// file and the process environment, in that order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/Protocol-Lattice/agentforum/src/swarm"
)

// DefaultFile is read when no path is given and it exists.
const DefaultFile = "agentforum.yml"

// Config is the top-level agentforum.yml document.
type Config struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	LogLevel string `yaml:"log_level,omitempty"`

	Forum   ForumConfig   `yaml:"forum"`
	Planner PlannerConfig `yaml:"planner"`
	Team    TeamConfig    `yaml:"team"`

	// Workers replaces the default forum panel when set.
	Workers []swarm.Profile `yaml:"workers,omitempty"`

	Cache   CacheConfig   `yaml:"cache"`
	Storage StorageConfig `yaml:"storage"`
	Search  SearchConfig  `yaml:"search"`
}

type ForumConfig struct {
	MaxRounds             int     `yaml:"max_rounds"`
	Shuffle               bool    `yaml:"shuffle,omitempty"`
	Seed                  int64   `yaml:"seed,omitempty"`
	SpeakTemperature      float64 `yaml:"speak_temperature"`
	GuidanceTemperature   float64 `yaml:"guidance_temperature"`
	ConclusionTemperature float64 `yaml:"conclusion_temperature"`
}

type PlannerConfig struct {
	MaxIterations int     `yaml:"max_iterations"`
	Temperature   float64 `yaml:"temperature"`
}

type TeamConfig struct {
	Concurrency int `yaml:"concurrency"`
	MaxTopics   int `yaml:"max_topics"`
}

// CacheConfig enables the completion cache when Size is positive.
type CacheConfig struct {
	Size int           `yaml:"size,omitempty"`
	TTL  time.Duration `yaml:"ttl,omitempty"`
	Path string        `yaml:"path,omitempty"`
}

// StorageConfig holds the optional backends. Empty means not used.
type StorageConfig struct {
	RedisAddr   string `yaml:"redis_addr,omitempty"`
	PostgresDSN string `yaml:"postgres_dsn,omitempty"`
	MongoURI    string `yaml:"mongo_uri,omitempty"`
	MongoDB     string `yaml:"mongo_database,omitempty"`
	Neo4jURI    string `yaml:"neo4j_uri,omitempty"`
	Neo4jUser   string `yaml:"neo4j_user,omitempty"`
	Neo4jPass   string `yaml:"neo4j_password,omitempty"`
}

type SearchConfig struct {
	TavilyAPIKey string `yaml:"tavily_api_key,omitempty"`
	UTCPConfig   string `yaml:"utcp_config,omitempty"`
}

func Default() Config {
	return Config{
		Provider: "openai",
		LogLevel: "info",
		Forum: ForumConfig{
			MaxRounds:             3,
			SpeakTemperature:      0.8,
			GuidanceTemperature:   0.7,
			ConclusionTemperature: 0.6,
		},
		Planner: PlannerConfig{MaxIterations: 6, Temperature: 0.3},
		Team:    TeamConfig{Concurrency: 4, MaxTopics: 3},
		Cache:   CacheConfig{TTL: 300 * time.Second, Path: ".agent_cache.json"},
		Storage: StorageConfig{MongoDB: "agentforum", Neo4jUser: "neo4j"},
	}
}

// Load builds a Config from defaults, the YAML file at path (DefaultFile when
// path is empty and that file exists), .env and the environment, then
// validates it.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	case explicit || !errors.Is(err, os.ErrNotExist):
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	// .env is optional
	_ = godotenv.Load()
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from environment variables read through lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	str("AGENTFORUM_PROVIDER", &c.Provider)
	str("AGENTFORUM_MODEL", &c.Model)
	str("AGENTFORUM_LOG_LEVEL", &c.LogLevel)
	str("REDIS_ADDR", &c.Storage.RedisAddr)
	str("POSTGRES_DSN", &c.Storage.PostgresDSN)
	str("MONGO_URI", &c.Storage.MongoURI)
	str("NEO4J_URI", &c.Storage.Neo4jURI)
	str("NEO4J_USER", &c.Storage.Neo4jUser)
	str("NEO4J_PASSWORD", &c.Storage.Neo4jPass)
	str("TAVILY_API_KEY", &c.Search.TavilyAPIKey)
	str("UTCP_CONFIG", &c.Search.UTCPConfig)
	str("AGENT_LLM_CACHE_PATH", &c.Cache.Path)

	if v, ok := lookup("AGENT_LLM_CACHE_SIZE"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("AGENT_LLM_CACHE_SIZE: %w", err)
		}
		c.Cache.Size = n
	}
	if v, ok := lookup("AGENT_LLM_CACHE_TTL"); ok && v != "" {
		sec, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("AGENT_LLM_CACHE_TTL: %w", err)
		}
		c.Cache.TTL = time.Duration(sec) * time.Second
	}
	return nil
}

// Validate rejects settings no run could use.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Provider) == "" {
		return errors.New("provider is required")
	}
	if c.Forum.MaxRounds < 1 {
		return fmt.Errorf("forum.max_rounds must be at least 1, got %d", c.Forum.MaxRounds)
	}
	if c.Planner.MaxIterations < 1 {
		return fmt.Errorf("planner.max_iterations must be at least 1, got %d", c.Planner.MaxIterations)
	}
	if c.Cache.Size < 0 {
		return fmt.Errorf("cache.size must not be negative, got %d", c.Cache.Size)
	}

	seen := make(map[string]bool, len(c.Workers))
	for i, w := range c.Workers {
		id := strings.TrimSpace(w.ID)
		if id == "" {
			return fmt.Errorf("workers[%d]: id is required", i)
		}
		if seen[id] {
			return fmt.Errorf("duplicate worker id '%s'", id)
		}
		seen[id] = true
	}
	return nil
}

// Profiles returns the configured workers, or the default forum panel.
func (c *Config) Profiles() []swarm.Profile {
	if len(c.Workers) == 0 {
		return swarm.ForumPanel()
	}
	return append([]swarm.Profile(nil), c.Workers...)
}
