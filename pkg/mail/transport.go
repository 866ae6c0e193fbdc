package mail

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"net/smtp"
	"net/textproto"
	"os"
	"syscall"
	"time"

	"github.com/telekom/smtp-notifier/pkg/config"
	"github.com/telekom/smtp-notifier/pkg/mailerr"
)

// Session is an open, authenticated SMTP session. It has the shape of
// gomail.SendCloser so a *gomail.Message can be passed as msg.
type Session interface {
	Send(from string, to []string, msg io.WriterTo) error
	Close() error
}

// Dialer opens sessions against a server profile.
type Dialer interface {
	Dial(ctx context.Context, p config.ServerProfile) (Session, error)
}

// SMTPDialer connects over TCP with the encryption mode of the profile:
// plaintext, STARTTLS upgrade or implicit TLS. Login happens right after the
// transport is up. The profile's connect timeout bounds dial, greeting,
// STARTTLS and login; once the session is returned no deadline applies.
type SMTPDialer struct {
	// LocalName is sent in EHLO. Defaults to "localhost".
	LocalName string
	// TLSConfig is cloned for each connection. ServerName defaults to the
	// profile host.
	TLSConfig *tls.Config
}

func (d *SMTPDialer) tlsConfig(p config.ServerProfile) *tls.Config {
	var cfg *tls.Config
	if d.TLSConfig != nil {
		cfg = d.TLSConfig.Clone()
	} else {
		cfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	if cfg.ServerName == "" {
		cfg.ServerName = p.Host
	}
	if p.InsecureSkipVerify {
		cfg.InsecureSkipVerify = true // #nosec G402 -- opt-in per server
	}
	return cfg
}

func (d *SMTPDialer) Dial(ctx context.Context, p config.ServerProfile) (Session, error) {
	timeout := p.ConnectTimeout
	if timeout <= 0 {
		timeout = config.DefaultConnectTimeout
	}
	deadline := time.Now().Add(timeout)
	dctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	tlsCfg := d.tlsConfig(p)
	netDialer := &net.Dialer{}

	var conn net.Conn
	var err error
	if p.Encryption == config.EncryptionSSL {
		conn, err = (&tls.Dialer{NetDialer: netDialer, Config: tlsCfg}).DialContext(dctx, "tcp", p.Addr())
	} else {
		conn, err = netDialer.DialContext(dctx, "tcp", p.Addr())
	}
	if err != nil {
		return nil, classifyConnect(p, stageConnect, err)
	}
	_ = conn.SetDeadline(deadline)

	client, err := smtp.NewClient(conn, p.Host)
	if err != nil {
		_ = conn.Close()
		return nil, classifyConnect(p, stageGreeting, err)
	}
	fail := func(stage string, err error) (Session, error) {
		_ = client.Close()
		return nil, classifyConnect(p, stage, err)
	}

	localName := d.LocalName
	if localName == "" {
		localName = "localhost"
	}
	if err := client.Hello(localName); err != nil {
		return fail(stageGreeting, err)
	}

	if p.Encryption == config.EncryptionTLS {
		ok, _ := client.Extension("STARTTLS")
		if !ok {
			_ = client.Close()
			return nil, mailerr.Newf(mailerr.ErrConnection, mailerr.ReasonUnknownTransport, nil,
				"%s server %s does not offer STARTTLS", p.Slot, p.Addr())
		}
		if err := client.StartTLS(tlsCfg); err != nil {
			return fail(stageStartTLS, err)
		}
	}

	ok, mechs := client.Extension("AUTH")
	if !ok {
		_ = client.Close()
		return nil, mailerr.Newf(mailerr.ErrAuthentication, mailerr.ReasonAuthUnsupported, nil,
			"%s server %s does not offer authentication", p.Slot, p.Addr())
	}
	auth, err := selectAuth(mechs, p.SenderAddress, p.Password)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	if err := client.Auth(auth); err != nil {
		return fail(stageAuth, err)
	}

	_ = conn.SetDeadline(time.Time{})
	return &smtpSession{client: client, profile: p}, nil
}

type smtpSession struct {
	client  *smtp.Client
	profile config.ServerProfile
	closed  bool
}

func (s *smtpSession) Send(from string, to []string, msg io.WriterTo) error {
	if err := s.client.Mail(from); err != nil {
		return classifySend(s.profile, stageMail, err)
	}
	for _, rcpt := range to {
		if err := s.client.Rcpt(rcpt); err != nil {
			return classifySend(s.profile, stageRcpt, err)
		}
	}
	w, err := s.client.Data()
	if err != nil {
		return classifySend(s.profile, stageData, err)
	}
	if _, err := msg.WriteTo(w); err != nil {
		_ = w.Close()
		return classifySend(s.profile, stageData, err)
	}
	if err := w.Close(); err != nil {
		return classifySend(s.profile, stageData, err)
	}
	return nil
}

// Close says QUIT and releases the connection. Calling it twice is a no-op.
func (s *smtpSession) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.client.Quit(); err != nil {
		_ = s.client.Close()
		return err
	}
	return nil
}

const (
	stageConnect  = "connect"
	stageGreeting = "greeting"
	stageStartTLS = "starttls"
	stageAuth     = "auth"
	stageMail     = "MAIL FROM"
	stageRcpt     = "RCPT TO"
	stageData     = "DATA"
)

func isTimeout(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded)
}

func isDisconnect(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, net.ErrClosed)
}

func classifyConnect(p config.ServerProfile, stage string, err error) error {
	var dnsErr *net.DNSError
	var tpErr *textproto.Error
	switch {
	case errors.As(err, &dnsErr):
		return mailerr.Newf(mailerr.ErrConnection, mailerr.ReasonHostResolution, err,
			"%s server host %q could not be resolved", p.Slot, p.Host)
	case isTimeout(err):
		return mailerr.Newf(mailerr.ErrConnection, mailerr.ReasonTimeout, err,
			"%s server %s timed out during %s", p.Slot, p.Addr(), stage)
	case errors.Is(err, syscall.ECONNREFUSED):
		return mailerr.Newf(mailerr.ErrConnection, mailerr.ReasonConnectionRefused, err,
			"%s server %s refused the connection", p.Slot, p.Addr())
	case errors.As(err, &tpErr) && stage == stageAuth && isAuthCode(tpErr.Code):
		return mailerr.Newf(mailerr.ErrAuthentication, mailerr.ReasonAuthRejected, err,
			"%s server %s rejected the credentials of %s", p.Slot, p.Addr(), p.SenderAddress)
	case errors.As(err, &tpErr):
		return mailerr.Newf(mailerr.ErrConnection, mailerr.ReasonUnexpectedResponse, err,
			"%s server %s answered %d during %s", p.Slot, p.Addr(), tpErr.Code, stage)
	case isDisconnect(err):
		return mailerr.Newf(mailerr.ErrConnection, mailerr.ReasonDisconnected, err,
			"%s server %s closed the connection during %s", p.Slot, p.Addr(), stage)
	case stage == stageAuth:
		return mailerr.Newf(mailerr.ErrAuthentication, mailerr.ReasonAuthRejected, err,
			"%s server %s authentication failed", p.Slot, p.Addr())
	default:
		return mailerr.Newf(mailerr.ErrConnection, mailerr.ReasonUnknownTransport, err,
			"%s server %s failed during %s", p.Slot, p.Addr(), stage)
	}
}

func classifySend(p config.ServerProfile, stage string, err error) error {
	var tpErr *textproto.Error
	switch {
	case isTimeout(err):
		return mailerr.Newf(mailerr.ErrTransmission, mailerr.ReasonTimeout, err,
			"%s server %s timed out during %s", p.Slot, p.Addr(), stage)
	case errors.As(err, &tpErr) && isAuthCode(tpErr.Code):
		return mailerr.Newf(mailerr.ErrAuthentication, mailerr.ReasonSendAuth, err,
			"%s server %s requires authentication for %s", p.Slot, p.Addr(), stage)
	case errors.As(err, &tpErr) && (tpErr.Code == 502 || tpErr.Code == 504):
		return mailerr.Newf(mailerr.ErrTransmission, mailerr.ReasonUnsupportedFeature, err,
			"%s server %s does not support %s", p.Slot, p.Addr(), stage)
	case errors.As(err, &tpErr) && (stage == stageMail || stage == stageRcpt):
		return mailerr.Newf(mailerr.ErrTransmission, mailerr.ReasonAddressRefused, err,
			"%s server %s refused address at %s", p.Slot, p.Addr(), stage)
	case errors.As(err, &tpErr) && stage == stageData:
		return mailerr.Newf(mailerr.ErrTransmission, mailerr.ReasonDataRejected, err,
			"%s server %s rejected the message data", p.Slot, p.Addr())
	case isDisconnect(err):
		return mailerr.Newf(mailerr.ErrTransmission, mailerr.ReasonConnectionLost, err,
			"%s server %s connection lost during %s", p.Slot, p.Addr(), stage)
	default:
		return mailerr.Newf(mailerr.ErrTransmission, mailerr.ReasonUnknownSMTP, err,
			"%s server %s failed during %s", p.Slot, p.Addr(), stage)
	}
}

func isAuthCode(code int) bool {
	return code == 530 || code == 534 || code == 535
}
