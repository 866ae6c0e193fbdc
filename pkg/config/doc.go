// Package config handles the notifier configuration: YAML loading and saving,
// the ConfigStore abstraction over persisted settings, and resolution of the
// primary and secondary SMTP server profiles.
package config
