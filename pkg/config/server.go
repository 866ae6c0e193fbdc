package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/telekom/smtp-notifier/pkg/mailerr"
)

// Slot identifies one of the two SMTP egress profiles.
type Slot string

const (
	SlotPrimary   Slot = "primary"
	SlotSecondary Slot = "secondary"
)

func (s Slot) Valid() bool {
	return s == SlotPrimary || s == SlotSecondary
}

// Encryption is the transport security mode of a server.
type Encryption string

const (
	EncryptionNone Encryption = "not_encrypted"
	EncryptionSSL  Encryption = "ssl"
	EncryptionTLS  Encryption = "tls"
)

// ParseEncryption normalizes a configured encryption mode. An empty value means
// no encryption.
func ParseEncryption(s string) (Encryption, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", string(EncryptionNone):
		return EncryptionNone, nil
	case string(EncryptionSSL):
		return EncryptionSSL, nil
	case string(EncryptionTLS), "starttls":
		return EncryptionTLS, nil
	default:
		return "", fmt.Errorf("unsupported encryption mode %q (valid: not_encrypted, ssl, tls)", s)
	}
}

// ServerProfile is everything needed to open an authenticated SMTP session.
type ServerProfile struct {
	Slot               Slot
	Host               string
	Port               int
	Encryption         Encryption
	SenderAddress      string
	Password           string
	InsecureSkipVerify bool
	ConnectTimeout     time.Duration
}

func (p ServerProfile) Addr() string {
	return fmt.Sprintf("%s:%d", p.Host, p.Port)
}

func (c Config) server(slot Slot) (ServerConfig, error) {
	switch slot {
	case SlotPrimary:
		return c.Primary, nil
	case SlotSecondary:
		return c.Secondary, nil
	default:
		return ServerConfig{}, mailerr.Newf(mailerr.ErrUnknownServerType, mailerr.ReasonUnknownSlot, nil,
			"unknown SMTP server slot %q", slot)
	}
}

// Server returns the stored settings of a slot.
func (c Config) Server(slot Slot) (ServerConfig, error) {
	return c.server(slot)
}

// ResolveServer assembles the connection profile for a slot. Every required
// field is checked here so an incomplete slot never reaches the network.
func (c Config) ResolveServer(slot Slot) (ServerProfile, error) {
	sc, err := c.server(slot)
	if err != nil {
		return ServerProfile{}, err
	}

	var missing []string
	if strings.TrimSpace(sc.Host) == "" {
		missing = append(missing, "host")
	}
	if sc.Port <= 0 {
		missing = append(missing, "port")
	}
	if strings.TrimSpace(sc.SenderAddress) == "" {
		missing = append(missing, "senderAddress")
	}

	password := sc.Password
	if sc.PasswordFromKeyring && sc.SenderAddress != "" {
		secret, kerr := KeyringPassword(sc.SenderAddress)
		if kerr != nil {
			return ServerProfile{}, mailerr.Newf(mailerr.ErrConfigIncomplete, mailerr.ReasonConfigIncomplete, kerr,
				"%s server credential not found in keyring", slot)
		}
		password = secret
	}
	if password == "" {
		missing = append(missing, "password")
	}
	if len(missing) > 0 {
		return ServerProfile{}, mailerr.Newf(mailerr.ErrConfigIncomplete, mailerr.ReasonConfigIncomplete, nil,
			"%s server configuration incomplete: missing %s", slot, strings.Join(missing, ", "))
	}

	enc, err := ParseEncryption(sc.Encryption)
	if err != nil {
		return ServerProfile{}, mailerr.New(mailerr.ErrConfigIncomplete, mailerr.ReasonConfigIncomplete,
			fmt.Sprintf("%s server encryption invalid", slot), err)
	}
	// An unparsable timeout was already reported by Validate; fall back silently here.
	timeout, _ := c.Timeout()

	return ServerProfile{
		Slot:               slot,
		Host:               strings.TrimSpace(sc.Host),
		Port:               sc.Port,
		Encryption:         enc,
		SenderAddress:      strings.TrimSpace(sc.SenderAddress),
		Password:           password,
		InsecureSkipVerify: sc.InsecureSkipVerify,
		ConnectTimeout:     timeout,
	}, nil
}
