// Package mailtest runs an in-process SMTP server for tests. Failures are
// scripted through Options and accepted messages are recorded.
package mailtest

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"fmt"
	"math/big"
	"net"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"
)

// Options script the server behaviour. The zero value accepts everything
// and advertises AUTH PLAIN LOGIN.
type Options struct {
	// AuthMechanisms advertised in EHLO. Nil means PLAIN and LOGIN.
	AuthMechanisms []string
	// NoAuth omits the AUTH extension.
	NoAuth bool
	// RejectAuth answers every login with 535.
	RejectAuth bool

	// StartTLS advertises and serves STARTTLS with a self-signed certificate.
	StartTLS bool
	// ImplicitTLS wraps the listener in TLS from the first byte.
	ImplicitTLS bool

	// GreetingCode replaces the 220 greeting and ends the session.
	GreetingCode int
	// SilentGreeting never sends a greeting.
	SilentGreeting bool
	// HangUpOnHello closes the connection when EHLO arrives.
	HangUpOnHello bool

	// MailCode, RcptCode and DataCode override the 250 replies to MAIL FROM,
	// RCPT TO and the end of DATA.
	MailCode int
	RcptCode int
	DataCode int
}

// Message is one accepted mail transaction.
type Message struct {
	From string
	To   []string
	Data []byte
}

type Server struct {
	ln   net.Listener
	opts Options
	tls  *tls.Config

	mu       sync.Mutex
	messages []Message
	logins   []string
	accepted int
	conns    map[net.Conn]struct{}
	closed   bool

	wg sync.WaitGroup
}

// NewServer starts a server on a loopback port. It is stopped on test cleanup.
func NewServer(t testing.TB, opts Options) *Server {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	s := &Server{ln: ln, opts: opts, conns: map[net.Conn]struct{}{}}
	if opts.StartTLS || opts.ImplicitTLS {
		cfg, err := selfSignedTLS()
		if err != nil {
			_ = ln.Close()
			t.Fatalf("failed to create certificate: %v", err)
		}
		s.tls = cfg
		if opts.ImplicitTLS {
			s.ln = tls.NewListener(ln, cfg)
		}
	}
	s.wg.Add(1)
	go s.serve()
	t.Cleanup(s.Close)
	return s
}

func (s *Server) Host() string {
	return "127.0.0.1"
}

func (s *Server) Port() int {
	return s.ln.Addr().(*net.TCPAddr).Port
}

func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Messages returns the accepted messages in arrival order.
func (s *Server) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.messages...)
}

// Logins returns the usernames of successful logins.
func (s *Server) Logins() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.logins...)
}

// Connections returns the number of accepted connections.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accepted
}

// Close stops the listener, drops open connections and waits for handlers.
func (s *Server) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	_ = s.ln.Close()
	for c := range s.conns {
		_ = c.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Server) serve() {
	defer s.wg.Done()
	for {
		c, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			_ = c.Close()
			return
		}
		s.accepted++
		s.conns[c] = struct{}{}
		s.wg.Add(1)
		s.mu.Unlock()
		go s.handle(c)
	}
}

func (s *Server) track(old, c net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, old)
	s.conns[c] = struct{}{}
}

func (s *Server) handle(c net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, c)
		s.mu.Unlock()
		_ = c.Close()
	}()

	tp := textproto.NewConn(c)
	switch {
	case s.opts.SilentGreeting:
		// Block until the client gives up or the server closes.
		_, _ = tp.ReadLine()
		return
	case s.opts.GreetingCode != 0:
		_ = tp.PrintfLine("%d mailtest unavailable", s.opts.GreetingCode)
		return
	}
	_ = tp.PrintfLine("220 mailtest ESMTP ready")

	tlsActive := s.opts.ImplicitTLS
	var from string
	var to []string
	for {
		line, err := tp.ReadLine()
		if err != nil {
			return
		}
		verb, arg, _ := strings.Cut(line, " ")
		switch strings.ToUpper(verb) {
		case "EHLO":
			if s.opts.HangUpOnHello {
				return
			}
			ext := []string{"mailtest greets " + arg}
			if s.opts.StartTLS && !tlsActive {
				ext = append(ext, "STARTTLS")
			}
			if !s.opts.NoAuth {
				mechs := s.opts.AuthMechanisms
				if mechs == nil {
					mechs = []string{"PLAIN", "LOGIN"}
				}
				ext = append(ext, "AUTH "+strings.Join(mechs, " "))
			}
			for i, e := range ext {
				sep := "-"
				if i == len(ext)-1 {
					sep = " "
				}
				_ = tp.PrintfLine("250%s%s", sep, e)
			}
		case "HELO":
			_ = tp.PrintfLine("250 mailtest")
		case "STARTTLS":
			if !s.opts.StartTLS || tlsActive {
				_ = tp.PrintfLine("502 5.5.1 STARTTLS not available")
				continue
			}
			_ = tp.PrintfLine("220 2.0.0 Ready to start TLS")
			tc := tls.Server(c, s.tls)
			if err := tc.Handshake(); err != nil {
				return
			}
			s.track(c, tc)
			c = tc
			tp = textproto.NewConn(tc)
			tlsActive = true
		case "AUTH":
			s.auth(tp, arg)
		case "*":
			_ = tp.PrintfLine("501 5.0.0 AUTH aborted")
		case "MAIL":
			if code := orDefault(s.opts.MailCode, 250); code != 250 {
				_ = tp.PrintfLine("%d 5.7.0 sender refused", code)
				continue
			}
			from = extractPath(arg)
			to = nil
			_ = tp.PrintfLine("250 2.1.0 OK")
		case "RCPT":
			if code := orDefault(s.opts.RcptCode, 250); code != 250 {
				_ = tp.PrintfLine("%d 5.1.1 recipient refused", code)
				continue
			}
			to = append(to, extractPath(arg))
			_ = tp.PrintfLine("250 2.1.5 OK")
		case "DATA":
			_ = tp.PrintfLine("354 End data with <CR><LF>.<CR><LF>")
			data, err := tp.ReadDotBytes()
			if err != nil {
				return
			}
			if code := orDefault(s.opts.DataCode, 250); code != 250 {
				_ = tp.PrintfLine("%d 5.6.0 message rejected", code)
				continue
			}
			s.mu.Lock()
			s.messages = append(s.messages, Message{From: from, To: to, Data: data})
			s.mu.Unlock()
			_ = tp.PrintfLine("250 2.0.0 OK: queued")
		case "RSET", "NOOP":
			_ = tp.PrintfLine("250 2.0.0 OK")
		case "QUIT":
			_ = tp.PrintfLine("221 2.0.0 Bye")
			return
		default:
			_ = tp.PrintfLine("502 5.5.2 command not recognized")
		}
	}
}

// auth runs one AUTH exchange and reports whether it succeeded.
func (s *Server) auth(tp *textproto.Conn, arg string) bool {
	fields := strings.Fields(arg)
	if len(fields) == 0 {
		_ = tp.PrintfLine("501 5.5.4 mechanism required")
		return false
	}
	challenge := func(prompt string) (string, bool) {
		_ = tp.PrintfLine("334 %s", base64.StdEncoding.EncodeToString([]byte(prompt)))
		line, err := tp.ReadLine()
		if err != nil || line == "*" {
			return "", false
		}
		b, err := base64.StdEncoding.DecodeString(line)
		return string(b), err == nil
	}

	var user string
	switch strings.ToUpper(fields[0]) {
	case "PLAIN":
		var resp string
		if len(fields) > 1 {
			b, err := base64.StdEncoding.DecodeString(fields[1])
			if err != nil {
				_ = tp.PrintfLine("501 5.5.2 cannot decode response")
				return false
			}
			resp = string(b)
		} else {
			var ok bool
			if resp, ok = challenge(""); !ok {
				_ = tp.PrintfLine("501 5.0.0 AUTH aborted")
				return false
			}
		}
		parts := strings.Split(resp, "\x00")
		if len(parts) == 3 {
			user = parts[1]
		}
	case "LOGIN":
		var ok bool
		if user, ok = challenge("Username:"); !ok {
			_ = tp.PrintfLine("501 5.0.0 AUTH aborted")
			return false
		}
		if _, ok = challenge("Password:"); !ok {
			_ = tp.PrintfLine("501 5.0.0 AUTH aborted")
			return false
		}
	case "CRAM-MD5":
		resp, ok := challenge(fmt.Sprintf("<%d.mailtest@127.0.0.1>", time.Now().UnixNano()))
		if !ok {
			_ = tp.PrintfLine("501 5.0.0 AUTH aborted")
			return false
		}
		user, _, _ = strings.Cut(resp, " ")
	default:
		_ = tp.PrintfLine("504 5.5.4 mechanism not supported")
		return false
	}

	if s.opts.RejectAuth {
		_ = tp.PrintfLine("535 5.7.8 Authentication credentials invalid")
		return false
	}
	s.mu.Lock()
	s.logins = append(s.logins, user)
	s.mu.Unlock()
	_ = tp.PrintfLine("235 2.7.0 Authentication successful")
	return true
}

func extractPath(arg string) string {
	if i := strings.IndexByte(arg, '<'); i >= 0 {
		if j := strings.IndexByte(arg[i:], '>'); j >= 0 {
			return arg[i+1 : i+j]
		}
	}
	return arg
}

func orDefault(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

func selfSignedTLS() (*tls.Config, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "mailtest"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
		DNSNames:     []string{"localhost"},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		Certificates: []tls.Certificate{{Certificate: [][]byte{der}, PrivateKey: key}},
		MinVersion:   tls.VersionTLS12,
	}, nil
}
