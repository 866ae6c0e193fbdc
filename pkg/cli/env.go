package cli

import (
	"fmt"
	"os"
	"strings"
	"time"
)

const envPrefix = "SMTP_NOTIFIER_"

// getEnvString returns the value of SMTP_NOTIFIER_<key>, or the provided default if not set.
func getEnvString(key, defaultVal string) string {
	if val, ok := os.LookupEnv(envPrefix + key); ok {
		return val
	}
	return defaultVal
}

// getEnvBool returns SMTP_NOTIFIER_<key> as a bool, or the provided default if
// not set or not a recognised value.
// Valid true values are "true", "1", "yes" (case-insensitive).
func getEnvBool(key string, defaultVal bool) bool {
	if val, ok := os.LookupEnv(envPrefix + key); ok {
		switch strings.ToLower(val) {
		case "true", "1", "yes":
			return true
		case "false", "0", "no":
			return false
		}
	}
	return defaultVal
}

// getEnvList splits a comma-separated SMTP_NOTIFIER_<key>.
func getEnvList(key string, defaultVal []string) []string {
	val, ok := os.LookupEnv(envPrefix + key)
	if !ok {
		return defaultVal
	}
	var out []string
	for _, item := range strings.Split(val, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func parseDuration(name, value string, def time.Duration) (time.Duration, error) {
	duration := def
	if value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			duration = d
		} else {
			return duration, fmt.Errorf("invalid %s %q; using default %s: %w", name, value, def.String(), err)
		}
	}

	return duration, nil
}
