package configuration

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	BackendMongo  = "mongo"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Duration reads "3s"-style values from both JSON and the environment.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

type MongoConfig struct {
	Uri      string `json:"uri" env:"MONGO_URI"`
	Database string `json:"database" env:"MONGO_DATABASE"`
}

type ServerConfig struct {
	AppPort        int      `json:"app_port" env:"SERVER_APP_PORT"`
	SocketPort     int      `json:"socket_port" env:"SERVER_SOCKET_PORT"`
	SocketRoute    string   `json:"socket_route" env:"SOCKET_ROUTE"`
	AllowedOrigins []string `json:"allowed_origins" env:"ALLOWED_ORIGINS" envSeparator:","`
}

type StorageConfig struct {
	Backend         string `json:"backend" env:"STORAGE_BACKEND"`
	PresenceBackend string `json:"presence_backend" env:"PRESENCE_BACKEND"`
	RedisURL        string `json:"redis_url" env:"REDIS_URL"`
}

type AuthConfig struct {
	JWTSecret string `json:"jwt_secret" env:"JWT_SECRET"`
}

type MediaConfig struct {
	Dir     string `json:"dir" env:"MEDIA_DIR"`
	BaseURL string `json:"base_url" env:"MEDIA_BASE_URL"`
}

type ChatConfig struct {
	TypingTimeout Duration `json:"typing_timeout" env:"TYPING_TIMEOUT"`
	UpdateTTL     Duration `json:"update_ttl" env:"UPDATE_TTL"`
}

type Config struct {
	ChatDatabase MongoConfig   `json:"mongo"`
	Server       ServerConfig  `json:"server"`
	Storage      StorageConfig `json:"storage"`
	Auth         AuthConfig    `json:"auth"`
	Media        MediaConfig   `json:"media"`
	Chat         ChatConfig    `json:"chat"`
	LogLevel     string        `json:"log_level" env:"LOG_LEVEL"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		ChatDatabase: MongoConfig{
			Uri:      "mongodb://localhost:27017",
			Database: "chatify",
		},
		Server: ServerConfig{
			AppPort:        8080,
			SocketPort:     8081,
			SocketRoute:    "ws",
			AllowedOrigins: []string{"http://localhost:5173"},
		},
		Storage: StorageConfig{
			Backend:         BackendMongo,
			PresenceBackend: BackendMongo,
		},
		Media: MediaConfig{
			Dir:     "uploads",
			BaseURL: "/media",
		},
		Chat: ChatConfig{
			TypingTimeout: Duration{3 * time.Second},
			UpdateTTL:     Duration{24 * time.Hour},
		},
		LogLevel: "info",
	}
}

// LoadConfig layers the JSON file at config_path (skipped when empty) and
// then the environment over the defaults.
func LoadConfig(config_path string) (*Config, error) {
	config := Default()

	if config_path != "" {
		file, err := os.ReadFile(config_path)
		if err != nil {
			return nil, err
		}

		if err := json.Unmarshal(file, &config); err != nil {
			return nil, fmt.Errorf("parse %s: %w", config_path, err)
		}
	}

	if err := env.Parse(&config); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	config.Server.SocketRoute = strings.TrimPrefix(config.Server.SocketRoute, "/")
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}

	switch c.Storage.Backend {
	case BackendMongo, BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown STORAGE_BACKEND %q", c.Storage.Backend))
	}

	switch c.Storage.PresenceBackend {
	case BackendMongo, BackendMemory:
	case BackendRedis:
		if c.Storage.RedisURL == "" {
			errs = append(errs, errors.New("REDIS_URL is required for the redis presence backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown PRESENCE_BACKEND %q", c.Storage.PresenceBackend))
	}

	if c.usesMongo() && c.ChatDatabase.Uri == "" {
		errs = append(errs, errors.New("MONGO_URI is required for mongo backends"))
	}
	if c.Server.AppPort <= 0 || c.Server.SocketPort <= 0 {
		errs = append(errs, errors.New("server ports must be positive"))
	}
	if len(c.Server.AllowedOrigins) == 0 {
		errs = append(errs, errors.New("ALLOWED_ORIGINS must list at least one origin"))
	}
	if c.Chat.TypingTimeout.Duration <= 0 {
		errs = append(errs, errors.New("TYPING_TIMEOUT must be positive"))
	}

	return errors.Join(errs...)
}

func (c *Config) usesMongo() bool {
	return c.Storage.Backend == BackendMongo || c.Storage.PresenceBackend == BackendMongo
}
