// Package config loads client configuration from a TOML file, optional
// .env files and WCSIGN_* environment variables, in increasing order of
// precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Storage backends.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendRedis  = "redis"
)

// Config is the full client configuration.
type Config struct {
	Relay    RelayConfig    `toml:"relay"`
	Metadata MetadataConfig `toml:"metadata"`
	Storage  StorageConfig  `toml:"storage"`
	Keychain KeychainConfig `toml:"keychain"`
	Timeouts TimeoutConfig  `toml:"timeouts"`
	Auth     AuthConfig     `toml:"auth"`
	Log      LogConfig      `toml:"log"`
}

type RelayConfig struct {
	URL            string   `toml:"url"`
	ProjectID      string   `toml:"project_id"`
	PublishTimeout Duration `toml:"publish_timeout"`
}

type MetadataConfig struct {
	Name        string   `toml:"name"`
	Description string   `toml:"description"`
	URL         string   `toml:"url"`
	Icons       []string `toml:"icons"`
	Native      string   `toml:"native"`
	Universal   string   `toml:"universal"`
	LinkMode    bool     `toml:"link_mode"`
}

type StorageConfig struct {
	Backend   string `toml:"backend"`
	Dir       string `toml:"dir"`
	RedisAddr string `toml:"redis_addr"`
	Prefix    string `toml:"prefix"`
}

type KeychainConfig struct {
	Passphrase string `toml:"passphrase"`
	ScryptN    int    `toml:"scrypt_n"`
}

type TimeoutConfig struct {
	Request       Duration `toml:"request"`
	Ping          Duration `toml:"ping"`
	Debounce      Duration `toml:"debounce"`
	SweepInterval Duration `toml:"sweep_interval"`
}

type AuthConfig struct {
	Chains    []string `toml:"chains"`
	Methods   []string `toml:"methods"`
	EthRPCURL string   `toml:"eth_rpc_url"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Pretty bool   `toml:"pretty"`
}

// Duration decodes TOML strings such as "30s" or "5m".
type Duration struct{ time.Duration }

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

// Default returns a configuration that runs entirely in memory against a
// local dev relay.
func Default() Config {
	return Config{
		Relay: RelayConfig{
			URL:            "ws://127.0.0.1:8080",
			PublishTimeout: Duration{10 * time.Second},
		},
		Metadata: MetadataConfig{
			Name:  "wcsign",
			URL:   "https://wcsign.local",
			Icons: []string{},
		},
		Storage: StorageConfig{
			Backend: BackendMemory,
			Dir:     defaultDir(),
			Prefix:  "wcsign:",
		},
		Keychain: KeychainConfig{ScryptN: 1 << 15},
		Timeouts: TimeoutConfig{
			Request:       Duration{5 * time.Minute},
			Ping:          Duration{30 * time.Second},
			Debounce:      Duration{time.Second},
			SweepInterval: Duration{30 * time.Second},
		},
		Auth: AuthConfig{
			Chains:  []string{"eip155:1"},
			Methods: []string{"personal_sign", "eth_signTypedData_v4", "eth_sendTransaction"},
		},
		Log: LogConfig{Level: "info"},
	}
}

func defaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".wcsign"
	}
	return home + string(os.PathSeparator) + ".wcsign"
}

// Load is Read followed by Validate.
func Load(path string) (Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Read returns Default overlaid with the TOML file at path (skipped when
// path is empty) and then with the environment, without validating the
// result. Callers that apply their own overrides validate afterwards.
// .env and .env.local in the working directory are loaded first; neither
// overrides variables already set in the process environment.
func Read(path string) (Config, error) {
	loadDotenv()

	cfg := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("config parse failed (%s): %w", path, err)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadDotenv() {
	for _, name := range []string{".env", ".env.local"} {
		if _, err := os.Stat(name); err != nil {
			continue
		}
		if err := godotenv.Load(name); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to load %s: %v\n", name, err)
		}
	}
}

func applyEnv(cfg *Config) error {
	str := map[string]*string{
		"WCSIGN_RELAY_URL":           &cfg.Relay.URL,
		"WCSIGN_PROJECT_ID":          &cfg.Relay.ProjectID,
		"WCSIGN_STORAGE_BACKEND":     &cfg.Storage.Backend,
		"WCSIGN_STORAGE_DIR":         &cfg.Storage.Dir,
		"WCSIGN_REDIS_ADDR":          &cfg.Storage.RedisAddr,
		"WCSIGN_KEYCHAIN_PASSPHRASE": &cfg.Keychain.Passphrase,
		"WCSIGN_ETH_RPC_URL":         &cfg.Auth.EthRPCURL,
		"WCSIGN_LOG_LEVEL":           &cfg.Log.Level,
		"WCSIGN_UNIVERSAL_LINK":      &cfg.Metadata.Universal,
	}
	for key, dst := range str {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}

	if v, ok := os.LookupEnv("WCSIGN_LOG_PRETTY"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid WCSIGN_LOG_PRETTY: %w", err)
		}
		cfg.Log.Pretty = b
	}
	if v, ok := os.LookupEnv("WCSIGN_REQUEST_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid WCSIGN_REQUEST_TIMEOUT: %w", err)
		}
		cfg.Timeouts.Request = Duration{d}
	}
	cfg.Storage.Backend = strings.ToLower(strings.TrimSpace(cfg.Storage.Backend))
	return nil
}

// Validate reports the first inconsistent setting.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Relay.URL) == "" {
		return errors.New("relay url is required")
	}
	if strings.TrimSpace(c.Metadata.Name) == "" {
		return errors.New("metadata name is required")
	}
	if c.Metadata.LinkMode && c.Metadata.Universal == "" {
		return errors.New("link_mode requires a universal link")
	}
	switch c.Storage.Backend {
	case BackendMemory:
	case BackendFile:
		if c.Storage.Dir == "" {
			return errors.New("file storage requires dir")
		}
	case BackendRedis:
		if c.Storage.RedisAddr == "" {
			return errors.New("redis storage requires redis_addr")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if c.Storage.Backend != BackendMemory && c.Keychain.Passphrase == "" {
		return fmt.Errorf("%s storage requires a keychain passphrase", c.Storage.Backend)
	}
	if c.Keychain.ScryptN < 2 || c.Keychain.ScryptN&(c.Keychain.ScryptN-1) != 0 {
		return fmt.Errorf("scrypt_n must be a power of two > 1, got %d", c.Keychain.ScryptN)
	}
	return nil
}
