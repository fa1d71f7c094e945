// Copyright 2025 CascadeFlow
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package router

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"cascadeflow/platform/llm"
	"cascadeflow/platform/llm/anthropic"
	"cascadeflow/platform/llm/healthcache"
	"cascadeflow/platform/llm/ollama"
	"cascadeflow/platform/llm/openrouter"
	"cascadeflow/platform/model"
	"cascadeflow/platform/registry"
	"cascadeflow/platform/registry/cassandra"
	"cascadeflow/platform/registry/mongodb"
	"cascadeflow/platform/registry/mysql"
	"cascadeflow/platform/registry/postgres"

	"github.com/go-redis/redis/v8"
)

// Config holds everything loaded from the environment at startup.
type Config struct {
	Port string

	RegistryBackend string
	DatabaseURL     string
	MySQLDSN        string
	MongoDBURI      string
	MongoDBName     string
	CassandraHosts  []string
	CassandraKeysp  string

	OllamaBaseURL string
	OllamaModel   string

	OpenRouterAPIKey       string
	OpenRouterAPIKeySecret string
	OpenRouterBaseURL      string

	AnthropicAPIKey       string
	AnthropicAPIKeySecret string

	RedisURL string

	AuditArchiveBucket string
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

// LoadConfig reads the gateway's configuration from environment variables.
func LoadConfig() Config {
	cfg := Config{
		Port:                   getEnv("ROUTER_PORT", "8100"),
		RegistryBackend:        getEnv("REGISTRY_BACKEND", "postgres"),
		DatabaseURL:            os.Getenv("DATABASE_URL"),
		MySQLDSN:               os.Getenv("MYSQL_DSN"),
		MongoDBURI:             os.Getenv("MONGODB_URI"),
		MongoDBName:            getEnv("MONGODB_DATABASE", "cascadeflow"),
		CassandraKeysp:         getEnv("CASSANDRA_KEYSPACE", "cascadeflow"),
		OllamaBaseURL:          getEnv("OLLAMA_BASE_URL", ollama.DefaultBaseURL),
		OpenRouterAPIKey:       os.Getenv("OPENROUTER_API_KEY"),
		OpenRouterAPIKeySecret: os.Getenv("OPENROUTER_API_KEY_SECRET_ARN"),
		OpenRouterBaseURL:      getEnv("OPENROUTER_BASE_URL", openrouter.DefaultBaseURL),
		AnthropicAPIKey:        os.Getenv("ANTHROPIC_API_KEY"),
		AnthropicAPIKeySecret:  os.Getenv("ANTHROPIC_API_KEY_SECRET_ARN"),
		RedisURL:               os.Getenv("REDIS_URL"),
		AuditArchiveBucket:     os.Getenv("AUDIT_ARCHIVE_BUCKET"),
	}

	if hosts := os.Getenv("CASSANDRA_HOSTS"); hosts != "" {
		cfg.CassandraHosts = strings.Split(hosts, ",")
	}

	return cfg
}

// BuildRegistry selects and constructs the registry backend named by
// REGISTRY_BACKEND, falling back to postgres.
func BuildRegistry(cfg Config, logger *log.Logger) (registry.Store, error) {
	switch cfg.RegistryBackend {
	case "mysql":
		return mysql.New(cfg.MySQLDSN, logger)
	case "mongodb":
		return mongodb.New(cfg.MongoDBURI, cfg.MongoDBName, logger)
	case "cassandra":
		return cassandra.New(cfg.CassandraHosts, cfg.CassandraKeysp, logger)
	case "postgres", "":
		return postgres.New(cfg.DatabaseURL, logger)
	default:
		return nil, fmt.Errorf("unknown REGISTRY_BACKEND %q", cfg.RegistryBackend)
	}
}

// BuildAdapters constructs the three tier adapters, resolving provider API
// keys from plain env vars or, when set, AWS Secrets Manager ARNs.
func BuildAdapters(ctx context.Context, cfg Config, logger *log.Logger) map[model.Tier]llm.Adapter {
	if logger == nil {
		logger = log.New(log.Writer(), "[router/adapters] ", log.LstdFlags)
	}
	anthropicKey := resolveAPIKey(ctx, cfg.AnthropicAPIKey, cfg.AnthropicAPIKeySecret, logger)
	openrouterKey := resolveAPIKey(ctx, cfg.OpenRouterAPIKey, cfg.OpenRouterAPIKeySecret, logger)

	return map[model.Tier]llm.Adapter{
		model.TierLocal: ollama.NewProvider(ollama.Config{
			BaseURL: cfg.OllamaBaseURL,
		}),
		model.TierMarket: openrouter.NewProvider(openrouter.Config{
			APIKey:  openrouterKey,
			BaseURL: cfg.OpenRouterBaseURL,
		}),
		model.TierPremium: anthropic.NewProvider(anthropic.Config{
			APIKey: anthropicKey,
		}),
	}
}

// BuildHealthCache connects to Redis for tier health-probe smoothing when
// REDIS_URL is set. A nil *healthcache.Cache is safe to use: all its
// methods no-op / miss.
func BuildHealthCache(cfg Config) *healthcache.Cache {
	if cfg.RedisURL == "" {
		return nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Printf("warning: invalid REDIS_URL, health cache disabled: %v", err)
		return nil
	}
	client := redis.NewClient(opts)
	return healthcache.New(client, healthcache.DefaultTTL)
}
