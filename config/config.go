package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"stakeledger/crypto"

	"github.com/BurntSushi/toml"
)

type Config struct {
	ListenAddress     string            `toml:"ListenAddress"`
	DataDir           string            `toml:"DataDir"`
	Environment       string            `toml:"Environment"`
	AdminKeystorePath string            `toml:"AdminKeystorePath"`
	Genesis           map[string]string `toml:"genesis"`
	Pool              Pool              `toml:"pool"`
	JWT               JWT               `toml:"jwt"`
	RateLimit         RateLimit         `toml:"ratelimit"`
	Telemetry         Telemetry         `toml:"telemetry"`
}

// Load loads the configuration from the given path.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}

	for _, undecoded := range meta.Undecoded() {
		if len(undecoded) == 1 && undecoded[0] == "TokenSymbol" {
			return nil, fmt.Errorf("config file %s uses deprecated TokenSymbol field; set Token under [pool]", path)
		}
	}

	if err := ensureKeystore(path, cfg); err != nil {
		return nil, err
	}

	if strings.TrimSpace(cfg.Environment) == "" {
		cfg.Environment = "local"
	}
	if cfg.Genesis == nil {
		cfg.Genesis = map[string]string{}
	}

	return cfg, nil
}

func ensureKeystore(configPath string, cfg *Config) error {
	keystorePath := cfg.AdminKeystorePath
	if keystorePath == "" {
		keystorePath = defaultKeystorePath(configPath)
	}

	if _, err := os.Stat(keystorePath); os.IsNotExist(err) {
		key, genErr := crypto.GeneratePrivateKey()
		if genErr != nil {
			return genErr
		}
		if err := crypto.SaveToKeystore(keystorePath, key, ""); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	if cfg.AdminKeystorePath != keystorePath {
		cfg.AdminKeystorePath = keystorePath
		return persist(configPath, cfg)
	}

	return nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}

	keystorePath := defaultKeystorePath(path)
	if err := crypto.SaveToKeystore(keystorePath, key, ""); err != nil {
		return nil, err
	}

	cfg := &Config{
		ListenAddress: ":8080",
		DataDir:       "./stakeledger-data",
		Environment:   "local",
		Genesis:       map[string]string{},
		Pool: Pool{
			Token:           "STK",
			RewardRate:      "1000",
			BonusMultiplier: 100,
			MinStake:        "1000",
			MaxStake:        "1000000000000000000",
		},
		RateLimit: RateLimit{RequestsPerMinute: 600, Burst: 20},
	}
	cfg.AdminKeystorePath = keystorePath

	if err := persist(path, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

func defaultKeystorePath(configPath string) string {
	dir := filepath.Dir(configPath)
	if dir == "." || dir == "" {
		dir = ""
	}
	return filepath.Join(dir, "admin.keystore")
}
