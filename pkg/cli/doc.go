// Package cli implements the smtp-notifier command tree: the long-running
// serve command, one-shot test and send commands, custom template management
// and keyring credentials. Flags fall back to SMTP_NOTIFIER_* environment
// variables.
package cli
