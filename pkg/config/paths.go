package config

import (
	"os"
	"path/filepath"
)

const (
	defaultConfigDirName = "smtp-notifier"
	defaultConfigFile    = "config.yaml"
	customTemplateDir    = "template"
	customTemplateFile   = "custom.html"
)

// DefaultConfigPath honours SMTP_NOTIFIER_CONFIG, then the user config dir.
func DefaultConfigPath() string {
	if env := os.Getenv("SMTP_NOTIFIER_CONFIG"); env != "" {
		return env
	}
	base, err := os.UserConfigDir()
	if err == nil {
		return filepath.Join(base, defaultConfigDirName, defaultConfigFile)
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".smtp-notifier", defaultConfigFile)
}

// CustomTemplatePath is the location of the user template override.
func (c Config) CustomTemplatePath() string {
	dir := c.DataDir
	if dir == "" {
		dir = defaultDataDir
	}
	return filepath.Join(dir, customTemplateDir, customTemplateFile)
}
