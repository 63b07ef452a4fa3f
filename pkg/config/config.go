package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"dario.cat/mergo"
	"github.com/Shopify/ejson"
	"github.com/caarlos0/env/v6"
	"github.com/ghodss/yaml"
	"github.com/joho/godotenv"
	"k8s.io/klog"
)

const (
	EjsonKeyEnv = "PLAIDSYNC_EJSON_SECRET_KEY"
	ejsonKeyDir = "/opt/ejson/keys"

	defaultUpdateFrequency       = "@every 6h"
	defaultInitialWindowDays     = 30
	defaultProviderTimeout       = 30 * time.Second
	defaultMaxConcurrentAccounts = 4
	defaultPlaidPageSize         = 500
	maxPlaidPageSize             = 500
	defaultPlaidEnvironment      = "sandbox"
	defaultClientName            = "BreadAI"
	defaultClassifierBackend     = "rules"
	defaultGeminiModel           = "gemini-2.5-flash"
	defaultInfluxMeasurement     = "spending"
)

// Load reads the config document (from configEnvVar when set, otherwise configFile) and the
// secrets (ejson file merged with the environment). dotenvFile is loaded into the environment
// first when it exists.
func Load(configEnvVar, configFile, secretsFile, dotenvFile string) (*Config, *Secrets, error) {
	conf, err := readConfig(configEnvVar, configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read config: %w", err)
	}

	if dotenvFile != "" {
		if err := godotenv.Load(dotenvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, nil, fmt.Errorf("failed to load %s: %w", dotenvFile, err)
		}
	}

	secrets, err := readSecrets(secretsFile)
	if err != nil {
		return nil, nil, err
	}

	return conf, secrets, nil
}

// Timeout is the bound on a single provider call.
func (c SyncConfig) Timeout() time.Duration {
	d, err := time.ParseDuration(c.ProviderTimeout)
	if err != nil || d <= 0 {
		return defaultProviderTimeout
	}
	return d
}

func (c *Config) Validate() error {
	if c.Sync.ProviderTimeout != "" {
		if _, err := time.ParseDuration(c.Sync.ProviderTimeout); err != nil {
			return fmt.Errorf("invalid sync.providerTimeout %q: %w", c.Sync.ProviderTimeout, err)
		}
	}

	switch c.Classifier.Backend {
	case "rules", "gemini":
	default:
		return fmt.Errorf("unknown classifier backend %q", c.Classifier.Backend)
	}

	for _, rule := range c.Classifier.Rules {
		if rule.Label == "" {
			return fmt.Errorf("classifier rule with keywords %v has no label", rule.Keywords)
		}
	}

	return nil
}

func (c *Config) setDefaults() {
	if c.Sync.UpdateFrequency == "" {
		c.Sync.UpdateFrequency = defaultUpdateFrequency
	}
	if c.Sync.InitialWindowDays <= 0 {
		c.Sync.InitialWindowDays = defaultInitialWindowDays
	}
	if c.Sync.ProviderTimeout == "" {
		c.Sync.ProviderTimeout = defaultProviderTimeout.String()
	}
	if c.Sync.MaxConcurrentAccounts <= 0 {
		c.Sync.MaxConcurrentAccounts = defaultMaxConcurrentAccounts
	}
	if c.Plaid.Environment == "" {
		c.Plaid.Environment = defaultPlaidEnvironment
	}
	if c.Plaid.ClientName == "" {
		c.Plaid.ClientName = defaultClientName
	}
	if len(c.Plaid.CountryCodes) == 0 {
		c.Plaid.CountryCodes = []string{"US"}
	}
	if c.Plaid.PageSize <= 0 || c.Plaid.PageSize > maxPlaidPageSize {
		c.Plaid.PageSize = defaultPlaidPageSize
	}
	if c.Classifier.Backend == "" {
		c.Classifier.Backend = defaultClassifierBackend
	}
	if c.Classifier.Backend == "gemini" && c.Classifier.Model == "" {
		c.Classifier.Model = defaultGeminiModel
	}
	if c.Influx.Measurement == "" {
		c.Influx.Measurement = defaultInfluxMeasurement
	}
}

func readConfig(envName, filename string) (*Config, error) {
	var raw []byte
	var err error

	rawEnv := ""
	if envName != "" {
		rawEnv = os.Getenv(envName)
	}

	if rawEnv != "" {
		klog.Infof("Reading config from environment variable %s\n", envName)
		raw = []byte(rawEnv)
	} else if filename != "" {
		raw, err = os.ReadFile(filename)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		if err != nil {
			klog.Warningf("Config file %s not found, using defaults\n", filename)
		}
	}

	conf := Config{}
	if len(raw) > 0 {
		if err := yaml.Unmarshal(raw, &conf); err != nil {
			return nil, err
		}
	}

	conf.setDefaults()

	return &conf, conf.Validate()
}

func readSecrets(filename string) (*Secrets, error) {
	var secrets Secrets

	ejsonSecrets, ejsonErr := readEjsonSecrets(filename)

	envSecrets, envErr := readEnvSecrets()

	if ejsonErr == nil && envErr == nil {
		err := mergo.Merge(envSecrets, *ejsonSecrets)
		secrets = *envSecrets
		if err != nil {
			return nil, fmt.Errorf("Failed to merge secrets: %v", err)
		}
	} else if ejsonErr != nil && envErr == nil {
		klog.Warningf("Error to parse ejson secret, using environment only. Ejson error: %v\n", ejsonErr)
		secrets = *envSecrets
	} else if ejsonErr == nil && envErr != nil {
		klog.Warningf("Error to parse env secret, using ejson only. Env error: %v\n", envErr)
		secrets = *ejsonSecrets
	} else {
		return nil, fmt.Errorf("Failed to parse secrets. Ejson error: %v. Env error: %v", ejsonErr, envErr)
	}

	return &secrets, nil
}

func readEjsonSecrets(filename string) (*Secrets, error) {
	ejsonSecrets := Secrets{}
	if filename == "" {
		return nil, errors.New("no secrets file configured")
	}

	ejsonKeyFile := os.Getenv(EjsonKeyEnv)
	ejsonKey := []byte{}
	var err error

	if ejsonKeyFile != "" {
		ejsonKey, err = os.ReadFile(ejsonKeyFile)
		if err != nil {
			return nil, err
		}
	}

	raw, err := ejson.DecryptFile(filename, ejsonKeyDir, string(ejsonKey))
	if err != nil {
		return nil, err
	}

	err = json.Unmarshal(raw, &ejsonSecrets)
	return &ejsonSecrets, err
}

func readEnvSecrets() (*Secrets, error) {
	envSecrets := Secrets{}
	err := env.Parse(&envSecrets)
	return &envSecrets, err
}
