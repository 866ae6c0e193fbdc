package mail

import (
	"errors"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/telekom/smtp-notifier/pkg/mailerr"
)

// Mechanisms in order of preference.
var authPreference = []string{"CRAM-MD5", "PLAIN", "LOGIN"}

// plainAuth is PLAIN without the TLS requirement of smtp.PlainAuth: servers
// configured for no encryption must still be able to log in.
type plainAuth struct {
	username, password string
}

func (a *plainAuth) Start(*smtp.ServerInfo) (string, []byte, error) {
	return "PLAIN", []byte("\x00" + a.username + "\x00" + a.password), nil
}

func (a *plainAuth) Next(_ []byte, more bool) ([]byte, error) {
	if more {
		return nil, errors.New("unexpected server challenge during PLAIN auth")
	}
	return nil, nil
}

type loginAuth struct {
	username, password string
}

func (a *loginAuth) Start(*smtp.ServerInfo) (string, []byte, error) {
	return "LOGIN", nil, nil
}

func (a *loginAuth) Next(fromServer []byte, more bool) ([]byte, error) {
	if !more {
		return nil, nil
	}
	switch prompt := strings.ToLower(strings.TrimSpace(string(fromServer))); {
	case strings.Contains(prompt, "username"):
		return []byte(a.username), nil
	case strings.Contains(prompt, "password"):
		return []byte(a.password), nil
	default:
		return nil, fmt.Errorf("unexpected LOGIN challenge %q", fromServer)
	}
}

// selectAuth picks a mechanism from the server's AUTH advertisement.
func selectAuth(advertised, username, password string) (smtp.Auth, error) {
	offered := map[string]bool{}
	for _, m := range strings.Fields(advertised) {
		offered[strings.ToUpper(m)] = true
	}
	for _, mech := range authPreference {
		if !offered[mech] {
			continue
		}
		switch mech {
		case "CRAM-MD5":
			return smtp.CRAMMD5Auth(username, password), nil
		case "PLAIN":
			return &plainAuth{username: username, password: password}, nil
		case "LOGIN":
			return &loginAuth{username: username, password: password}, nil
		}
	}
	return nil, mailerr.Newf(mailerr.ErrAuthentication, mailerr.ReasonAuthUnsupported, nil,
		"no supported authentication mechanism in %q (supported: %s)", advertised, strings.Join(authPreference, ", "))
}
