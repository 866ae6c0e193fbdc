package config

import (
	"fmt"

	"github.com/zalando/go-keyring"
)

// KeyringService is the keyring service name under which SMTP credentials are stored.
const KeyringService = "smtp-notifier"

// KeyringPassword returns the stored credential for a sender address.
func KeyringPassword(sender string) (string, error) {
	secret, err := keyring.Get(KeyringService, sender)
	if err != nil {
		return "", fmt.Errorf("keyring lookup for %s: %w", sender, err)
	}
	return secret, nil
}

// StoreKeyringPassword saves a credential for a sender address.
func StoreKeyringPassword(sender, password string) error {
	if err := keyring.Set(KeyringService, sender, password); err != nil {
		return fmt.Errorf("keyring store for %s: %w", sender, err)
	}
	return nil
}
