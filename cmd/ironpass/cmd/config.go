package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/jmcleod/ironpass/encryptor"
	"github.com/jmcleod/ironpass/passgen"
)

const (
	defaultLength   = 16
	configFileName  = "config.yaml"
	configDirName   = "ironpass"
	envConfigPath   = "IRONPASS_CONFIG"
	envLogLevel     = "IRONPASS_LOG_LEVEL"
	defaultLogLevel = "info"
)

// Config is the optional YAML file read on startup. Flags override it.
type Config struct {
	BaseDir  string                    `yaml:"base_dir"`
	Cipher   string                    `yaml:"cipher"`
	TextMode string                    `yaml:"text_mode"`
	Length   uint8                     `yaml:"length"`
	LogLevel string                    `yaml:"log_level"`
	Argon2id *encryptor.Argon2idParams `yaml:"argon2id"`
}

func defaultConfig() Config {
	return Config{
		Cipher:   encryptor.Current().Name(),
		TextMode: passgen.AlphaNumeric.String(),
		Length:   defaultLength,
		LogLevel: defaultLogLevel,
	}
}

// defaultConfigPath returns $IRONPASS_CONFIG, else config.yaml under the
// user config dir ($XDG_CONFIG_HOME on Linux).
func defaultConfigPath() string {
	if p := os.Getenv(envConfigPath); p != "" {
		return p
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, configDirName, configFileName)
}

// loadConfig reads path over the defaults. A missing file is not an error.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) validate() error {
	if _, err := passgen.ParseTextMode(c.TextMode); err != nil {
		return err
	}
	if c.Length == 0 || c.Length > passgen.MaxLength {
		return fmt.Errorf("length must be between 1 and %d, got %d", passgen.MaxLength, c.Length)
	}
	if _, err := c.cipher(""); err != nil {
		return err
	}
	if _, err := parseLogLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// registry returns the known ciphers, with XChaCha tuned by the configured
// Argon2id parameters.
func (c Config) registry() (*encryptor.Registry, error) {
	r := encryptor.Default()
	if c.Argon2id != nil {
		x, err := encryptor.NewXChaCha(*c.Argon2id)
		if err != nil {
			return nil, err
		}
		r.Register(x)
	}
	return r, nil
}

// cipher resolves name, or the configured cipher when name is empty.
func (c Config) cipher(name string) (encryptor.Encryptor, error) {
	if name == "" {
		name = c.Cipher
	}
	r, err := c.registry()
	if err != nil {
		return nil, err
	}
	return r.ByName(name)
}
