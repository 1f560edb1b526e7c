package dispatch

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"

	"mailpilot/internal/apperr"
)

const implicitTLSPort = 465

// ServerConfig holds one account's outgoing server and credentials
type ServerConfig struct {
	Host     string
	Port     int
	User     string
	Password string
}

// Mailer delivers a composed message through an account's SMTP server
type Mailer interface {
	Send(ctx context.Context, server ServerConfig, from string, to []string, data []byte) error
}

// SMTPTransport opens one connection per send: implicit TLS on 465, STARTTLS elsewhere
type SMTPTransport struct {
	Timeout   time.Duration
	TLSConfig *tls.Config
	// AllowPlaintext permits servers without STARTTLS, such as a local development relay
	AllowPlaintext bool
}

// NewSMTPTransport creates a transport whose connection and commands are bounded by timeout
func NewSMTPTransport(timeout time.Duration) *SMTPTransport {
	return &SMTPTransport{Timeout: timeout}
}

// Send delivers data to every recipient in one SMTP transaction
func (t *SMTPTransport) Send(ctx context.Context, server ServerConfig, from string, to []string, data []byte) error {
	addr := net.JoinHostPort(server.Host, strconv.Itoa(server.Port))
	fail := func(err error, auth bool) error {
		return &apperr.ConnectionError{Protocol: "smtp", Host: addr, Auth: auth, Err: err}
	}

	c, stop, err := t.connect(ctx, server, addr)
	if err != nil {
		return fail(err, false)
	}
	defer stop()
	defer c.Close()

	if server.User != "" {
		if err := c.Auth(sasl.NewPlainClient("", server.User, server.Password)); err != nil {
			return fail(err, true)
		}
	}

	if err := c.SendMail(from, to, bytes.NewReader(data)); err != nil {
		var smtpErr *smtp.SMTPError
		if errors.As(err, &smtpErr) {
			return err
		}
		return fail(err, false)
	}

	// the message is accepted once DATA completes
	_ = c.Quit()
	return nil
}

// connect returns a client past the greeting: implicit TLS on 465, STARTTLS
// elsewhere. With AllowPlaintext a server that does not offer STARTTLS is
// used as is.
func (t *SMTPTransport) connect(ctx context.Context, server ServerConfig, addr string) (*smtp.Client, func(), error) {
	tlsConfig := t.tlsConfig(server.Host)
	conn, stop, err := t.dial(ctx, addr)
	if err != nil {
		return nil, nil, err
	}

	if server.Port == implicitTLSPort {
		tlsConn := tls.Client(conn, tlsConfig)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			stop()
			conn.Close()
			return nil, nil, err
		}
		return t.hello(smtp.NewClient(tlsConn), stop)
	}

	if t.AllowPlaintext {
		c, _, err := t.hello(smtp.NewClient(conn), stop)
		if err != nil {
			return nil, nil, err
		}
		if ok, _ := c.Extension("STARTTLS"); !ok {
			return c, stop, nil
		}
		// go-smtp upgrades only right after the greeting, so start over on a new connection
		stop()
		c.Close()
		if conn, stop, err = t.dial(ctx, addr); err != nil {
			return nil, nil, err
		}
	}

	c, err := smtp.NewClientStartTLS(conn, tlsConfig)
	if err != nil {
		stop()
		return nil, nil, err
	}
	// EHLO over the upgraded connection runs the handshake, keeping certificate errors apart from AUTH
	return t.hello(c, stop)
}

func (t *SMTPTransport) hello(c *smtp.Client, stop func()) (*smtp.Client, func(), error) {
	c.CommandTimeout = t.timeout()
	c.SubmissionTimeout = t.timeout()
	if err := c.Hello("localhost"); err != nil {
		stop()
		c.Close()
		return nil, nil, err
	}
	return c, stop, nil
}

// dial opens a TCP connection whose deadline follows ctx. stop releases the ctx watch.
func (t *SMTPTransport) dial(ctx context.Context, addr string) (net.Conn, func(), error) {
	nd := net.Dialer{Timeout: t.timeout()}
	conn, err := nd.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, nil, err
	}
	deadline := time.Now().Add(t.timeout())
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)
	after := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	return conn, func() { after() }, nil
}

func (t *SMTPTransport) timeout() time.Duration {
	if t.Timeout <= 0 {
		return 30 * time.Second
	}
	return t.Timeout
}

func (t *SMTPTransport) tlsConfig(host string) *tls.Config {
	if t.TLSConfig != nil {
		cfg := t.TLSConfig.Clone()
		if cfg.ServerName == "" {
			cfg.ServerName = host
		}
		return cfg
	}
	return &tls.Config{ServerName: host, MinVersion: tls.VersionTLS12}
}
