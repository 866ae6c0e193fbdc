// Package mail builds and transmits notification emails: SMTP sessions in
// plaintext, STARTTLS or implicit TLS mode, HTML template rendering with the
// packaged or an override template, and inline image embedding.
package mail
