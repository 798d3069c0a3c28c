// Package config handles loading and parsing application configuration.
//
// Values come from, in priority order:
//  1. Process environment (a .env file in the working directory is loaded
//     into the environment first, if present)
//  2. An optional YAML file given by CONFIG_PATH or --config
//  3. The env-default tags below
//
// Without a YAML file the whole configuration is read from the
// environment, which is how containers run the service.
package config

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Storage drivers understood by STORAGE_DRIVER.
const (
	DriverMongo  = "mongo"
	DriverSQLite = "sqlite"
)

// Config is the root configuration structure. Every field maps to a key
// in the YAML file AND to an environment variable (env:"...").
type Config struct {
	// Env controls log format and verbosity: "dev", "staging" or "prod".
	Env string `yaml:"env" env:"ENV" env-default:"dev"`

	// StorageDriver selects the backend: "mongo" or "sqlite".
	StorageDriver string `yaml:"storage_driver" env:"STORAGE_DRIVER" env-default:"mongo"`

	// StoragePath is the SQLite file used when StorageDriver is "sqlite".
	StoragePath string `yaml:"storage_path" env:"STORAGE_PATH" env-default:"storage/usuarios.db"`

	// QueryTimeout bounds every single storage call.
	QueryTimeout time.Duration `yaml:"query_timeout" env:"QUERY_TIMEOUT" env-default:"5s"`

	// CORSAllowedOrigins is a comma-separated list; "*" allows any origin.
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS" env-default:"*" env-separator:","`

	Mongo MongoConfig `yaml:"mongo"`

	HTTPServer `yaml:"http_server"`
}

// MongoConfig holds the document store connection settings.
type MongoConfig struct {
	URI        string `yaml:"uri" env:"MONGO_URI"`
	Database   string `yaml:"database" env:"MONGO_DATABASE" env-default:"usuarios_db"`
	Collection string `yaml:"collection" env:"MONGO_COLLECTION" env-default:"usuarios"`
}

// HTTPServer holds settings specific to the HTTP server.
type HTTPServer struct {
	// Addr is a full listen address such as "localhost:8082". When empty
	// the server listens on all interfaces at Port.
	Addr string `yaml:"address" env:"HTTP_SERVER_ADDR"`
	Port string `yaml:"port" env:"PORT" env-default:"3000"`
}

// ListenAddr is the address handed to http.Server.
func (h HTTPServer) ListenAddr() string {
	if h.Addr != "" {
		return h.Addr
	}
	return ":" + h.Port
}

// Load reads the YAML file at path, or only the environment when path is
// empty, and checks the result.
func Load(path string) (*Config, error) {
	var cfg Config

	var err error
	if path != "" {
		err = cleanenv.ReadConfig(path, &cfg)
	} else {
		err = cleanenv.ReadEnv(&cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.StorageDriver {
	case DriverMongo:
		if c.Mongo.URI == "" {
			return errors.New("MONGO_URI is required when STORAGE_DRIVER is mongo")
		}
	case DriverSQLite:
		if c.StoragePath == "" {
			return errors.New("STORAGE_PATH is required when STORAGE_DRIVER is sqlite")
		}
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q", c.StorageDriver)
	}

	if c.QueryTimeout <= 0 {
		return fmt.Errorf("QUERY_TIMEOUT must be positive, got %s", c.QueryTimeout)
	}

	return nil
}

// MustLoad reads, validates, and returns the application config. It exits
// the process on any failure, so callers never see an invalid config.
func MustLoad() *Config {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		flags := flag.String("config", "", "Path to an optional configuration YAML file")
		flag.Parse()
		configPath = *flags
	}

	if configPath != "" {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			log.Fatalf("config file does not exist: %s", configPath)
		}
	}

	cfg, err := Load(configPath)
	if err != nil {
		log.Fatalf("cannot read config: %s", err.Error())
	}

	return cfg
}
