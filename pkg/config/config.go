package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

const (
	// DefaultConnectTimeout bounds connection establishment and authentication.
	DefaultConnectTimeout = 5 * time.Second

	defaultDataDir = "./data"
)

// ServerConfig is the persisted settings block of one SMTP server slot.
type ServerConfig struct {
	Enabled       bool   `yaml:"enabled" json:"enabled"`
	Host          string `yaml:"host" json:"host"`
	Port          int    `yaml:"port" json:"port"`
	Encryption    string `yaml:"encryption" json:"encryption"`
	SenderAddress string `yaml:"senderAddress" json:"senderAddress"`
	Password      string `yaml:"password,omitempty" json:"password,omitempty"`
	// PasswordFromKeyring reads the credential from the OS keyring under
	// KeyringService with the sender address as user.
	PasswordFromKeyring bool `yaml:"passwordFromKeyring,omitempty" json:"passwordFromKeyring,omitempty"`
	InsecureSkipVerify  bool `yaml:"insecureSkipVerify,omitempty" json:"insecureSkipVerify,omitempty"`
}

type Config struct {
	Enabled        bool `yaml:"enabled" json:"enabled"`
	SendImage      bool `yaml:"sendImage" json:"sendImage"`
	TestRun        bool `yaml:"testRun" json:"testRun"`
	VerboseLogging bool `yaml:"verboseLogging" json:"verboseLogging"`

	// CustomTemplate renders with the on-disk override instead of the packaged default.
	CustomTemplate bool `yaml:"customTemplate" json:"customTemplate"`
	// TemplateContent caches the override template text so it survives a
	// missing template file.
	TemplateContent string `yaml:"templateContent,omitempty" json:"templateContent,omitempty"`
	// SaveTemplate and RestoreDefaultTemplate are one-shot actions cleared
	// after they have been applied.
	SaveTemplate           bool `yaml:"saveTemplate" json:"saveTemplate"`
	RestoreDefaultTemplate bool `yaml:"restoreDefaultTemplate" json:"restoreDefaultTemplate"`

	Primary   ServerConfig `yaml:"primary" json:"primary"`
	Secondary ServerConfig `yaml:"secondary" json:"secondary"`

	SenderName string `yaml:"senderName,omitempty" json:"senderName,omitempty"`
	// Recipients is a comma-separated address list. Empty sends to the sender itself.
	Recipients string `yaml:"recipients,omitempty" json:"recipients,omitempty"`

	// MessageTypes restricts delivery to the listed notification kinds. Empty allows all.
	MessageTypes           []string `yaml:"messageTypes,omitempty" json:"messageTypes,omitempty"`
	AllowUnrecognizedTypes bool     `yaml:"allowUnrecognizedTypes" json:"allowUnrecognizedTypes"`

	// ConnectTimeout is a duration string such as "5s".
	ConnectTimeout string `yaml:"connectTimeout,omitempty" json:"connectTimeout,omitempty"`
	// DataDir holds the custom template file.
	DataDir string `yaml:"dataDir,omitempty" json:"dataDir,omitempty"`
}

// Defaults returns a configuration with the documented default values.
func Defaults() Config {
	return Config{
		SendImage: true,
		Primary: ServerConfig{
			Enabled:    true,
			Encryption: string(EncryptionNone),
		},
		Secondary: ServerConfig{
			Encryption: string(EncryptionNone),
		},
		ConnectTimeout: DefaultConnectTimeout.String(),
		DataDir:        defaultDataDir,
	}
}

// Load reads a YAML configuration file. Keys absent from the file keep their
// default values.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path == "" {
		return cfg, errors.New("config path is required")
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("trying to open notifier config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return cfg, fmt.Errorf("error unmarshaling YAML %s: %w", path, err)
	}
	return cfg, nil
}

func Save(path string, cfg Config) error {
	if path == "" {
		return errors.New("config path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}
	content, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, content, 0o600)
}

// ServersEnabled reports whether at least one server slot is enabled.
func (c Config) ServersEnabled() bool {
	return c.Primary.Enabled || c.Secondary.Enabled
}

// Timeout parses ConnectTimeout, falling back to DefaultConnectTimeout.
func (c Config) Timeout() (time.Duration, error) {
	if strings.TrimSpace(c.ConnectTimeout) == "" {
		return DefaultConnectTimeout, nil
	}
	d, err := time.ParseDuration(c.ConnectTimeout)
	if err != nil {
		return DefaultConnectTimeout, fmt.Errorf("invalid connectTimeout %q; using default %s: %w", c.ConnectTimeout, DefaultConnectTimeout, err)
	}
	if d <= 0 {
		return DefaultConnectTimeout, fmt.Errorf("connectTimeout must be positive, got %s", d)
	}
	return d, nil
}

// AllowsType reports whether a notification kind passes the MessageTypes filter.
func (c Config) AllowsType(name string) bool {
	if name == "" || len(c.MessageTypes) == 0 {
		return true
	}
	for _, t := range c.MessageTypes {
		if t == name {
			return true
		}
	}
	return false
}

// RecipientList splits the configured recipients. An empty list resolves to
// the sender's own address.
func (c Config) RecipientList(sender string) []string {
	var out []string
	for _, r := range strings.Split(c.Recipients, ",") {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		return []string{sender}
	}
	return out
}

// DisplayName returns the configured sender display name or the sender address.
func (c Config) DisplayName(sender string) string {
	if strings.TrimSpace(c.SenderName) != "" {
		return c.SenderName
	}
	return sender
}

// Redacted returns a copy safe for logging and API output.
func (c Config) Redacted() Config {
	if c.Primary.Password != "" {
		c.Primary.Password = "***"
	}
	if c.Secondary.Password != "" {
		c.Secondary.Password = "***"
	}
	return c
}

// Validate checks fields that can be verified without contacting a server.
func (c Config) Validate() error {
	for _, slot := range []Slot{SlotPrimary, SlotSecondary} {
		sc, _ := c.server(slot)
		if _, err := ParseEncryption(sc.Encryption); err != nil {
			return fmt.Errorf("%s server: %w", slot, err)
		}
		if sc.Port < 0 || sc.Port > 65535 {
			return fmt.Errorf("%s server: port %d out of range", slot, sc.Port)
		}
	}
	if _, err := c.Timeout(); err != nil {
		return err
	}
	return nil
}
