package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"github.com/ulule/limiter/v3"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration.
type Config struct {
	// Banking API OAuth client
	MonzoClientID     string `mapstructure:"MONZO_CLIENT_ID"`
	MonzoClientSecret string `mapstructure:"MONZO_CLIENT_SECRET"`
	MonzoRedirectURI  string `mapstructure:"MONZO_REDIRECT_URI" validate:"required,url"`
	MonzoAuthURL      string `mapstructure:"MONZO_AUTH_URL" validate:"required,url"`
	MonzoAPIRoot      string `mapstructure:"MONZO_API_ROOT" validate:"required,url"`
	MonzoTokenFile    string `mapstructure:"MONZO_TOKEN_FILE" validate:"required"`
	MonzoPageLimit    int    `mapstructure:"MONZO_PAGE_LIMIT" validate:"min=1,max=100"`
	MonzoRateLimit    string `mapstructure:"MONZO_RATE_LIMIT" validate:"required"`

	OutputDirectory string     `mapstructure:"OUTPUT_DIRECTORY"`
	ImportersConfig string     `mapstructure:"IMPORTERS_CONFIG"`
	LogLevel        slog.Level `mapstructure:"-"`
}

// LoadConfig loads configuration from environment variables and the .env file if present.
// Values in the .env file take precedence over the process environment.
func LoadConfig(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		// Attempt to load .env file, ignore error if it doesn't exist
		if err := godotenv.Overload(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	v := viper.New()
	v.SetDefault("MONZO_CLIENT_ID", "")
	v.SetDefault("MONZO_CLIENT_SECRET", "")
	v.SetDefault("MONZO_REDIRECT_URI", "http://localhost:8080/callback")
	v.SetDefault("MONZO_AUTH_URL", "https://auth.monzo.com/")
	v.SetDefault("MONZO_API_ROOT", "https://api.monzo.com/")
	v.SetDefault("MONZO_TOKEN_FILE", ".monzo_token")
	v.SetDefault("MONZO_PAGE_LIMIT", 100)
	v.SetDefault("MONZO_RATE_LIMIT", "100-M")
	v.SetDefault("OUTPUT_DIRECTORY", "beancount_data/beancount_import_data/")
	v.SetDefault("IMPORTERS_CONFIG", "importers.yaml")
	v.SetDefault("LOG_LEVEL", "info")
	v.AutomaticEnv()

	cfg := &Config{
		MonzoClientID:     v.GetString("MONZO_CLIENT_ID"),
		MonzoClientSecret: v.GetString("MONZO_CLIENT_SECRET"),
		MonzoRedirectURI:  v.GetString("MONZO_REDIRECT_URI"),
		MonzoAuthURL:      v.GetString("MONZO_AUTH_URL"),
		MonzoAPIRoot:      v.GetString("MONZO_API_ROOT"),
		MonzoTokenFile:    v.GetString("MONZO_TOKEN_FILE"),
		MonzoPageLimit:    v.GetInt("MONZO_PAGE_LIMIT"),
		MonzoRateLimit:    v.GetString("MONZO_RATE_LIMIT"),
		OutputDirectory:   v.GetString("OUTPUT_DIRECTORY"),
		ImportersConfig:   v.GetString("IMPORTERS_CONFIG"),
	}

	levelStr := v.GetString("LOG_LEVEL")
	if err := cfg.LogLevel.UnmarshalText([]byte(levelStr)); err != nil {
		cfg.LogLevel = slog.LevelInfo
		log.Printf("Warning: Invalid value for LOG_LEVEL ('%s'). Defaulting to %s.\n", levelStr, cfg.LogLevel)
	}

	if !strings.HasSuffix(cfg.MonzoAPIRoot, "/") {
		cfg.MonzoAPIRoot += "/"
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if _, err := limiter.NewRateFromFormatted(cfg.MonzoRateLimit); err != nil {
		return nil, fmt.Errorf("invalid MONZO_RATE_LIMIT %q: %w", cfg.MonzoRateLimit, err)
	}

	return cfg, nil
}

// RequireOAuthClient checks the settings needed to talk to the banking API.
func (c *Config) RequireOAuthClient() error {
	var missing []string
	if c.MonzoClientID == "" {
		missing = append(missing, "MONZO_CLIENT_ID")
	}
	if c.MonzoClientSecret == "" {
		missing = append(missing, "MONZO_CLIENT_SECRET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%s not set, the banking API cannot be used", strings.Join(missing, ", "))
	}
	return nil
}

// ImporterParams are the per-account options handed to the categorizer.
type ImporterParams struct {
	IgnoreBankCategories bool              `yaml:"ignore_bank_categories"`
	ByPayee              map[string]string `yaml:"by_payee"`
}

// ImporterConfig binds a bank source to the ledger account its rows are posted to.
type ImporterConfig struct {
	Source   string         `yaml:"source" validate:"required,oneof=monzo nationwide"`
	Account  string         `yaml:"account" validate:"required,contains=:"`
	Currency string         `yaml:"currency" validate:"required,len=3,uppercase"`
	Params   ImporterParams `yaml:"params"`
}

// ImportersFile is the YAML document describing accounts, payees and importers.
type ImportersFile struct {
	// Accounts maps banking API account ids to the label used for exported files.
	Accounts map[string]string `yaml:"accounts"`
	// Payees maps payee names to ledger accounts for importers that match payees exactly.
	Payees    map[string]string `yaml:"payees"`
	Importers []ImporterConfig  `yaml:"importers" validate:"dive"`
}

// LoadImportersFile reads and validates the importers YAML file.
// A missing file yields an empty configuration.
func LoadImportersFile(path string) (*ImportersFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &ImportersFile{}, nil
		}
		return nil, fmt.Errorf("failed to read importers config %q: %w", path, err)
	}
	return ParseImportersFile(data)
}

// ParseImportersFile decodes and validates an importers YAML document.
func ParseImportersFile(data []byte) (*ImportersFile, error) {
	f := &ImportersFile{}
	if err := yaml.Unmarshal(data, f); err != nil {
		return nil, fmt.Errorf("failed to parse importers config: %w", err)
	}
	if err := validator.New().Struct(f); err != nil {
		return nil, fmt.Errorf("invalid importers config: %w", err)
	}
	return f, nil
}
