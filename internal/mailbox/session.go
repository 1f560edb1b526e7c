// Package mailbox pulls new mail from an account's IMAP inbox into the ledger.
package mailbox

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"mailpilot/internal/apperr"
)

const implicitTLSPort = 993

// ServerConfig is what a Dialer needs to open an authenticated session
type ServerConfig struct {
	Host     string
	Port     int
	User     string
	Password string
}

// RawMessage is one fetched message before MIME parsing
type RawMessage struct {
	UID          uint32
	Flags        []string
	InternalDate time.Time
	Body         []byte
}

// Session is an authenticated IMAP connection
type Session interface {
	// SelectInbox opens INBOX read-only and returns its UIDVALIDITY
	SelectInbox(ctx context.Context) (uint32, error)
	// SearchUIDs lists UIDs above after, limited to messages received since the given day when it is not zero
	SearchUIDs(ctx context.Context, after uint32, since time.Time) ([]uint32, error)
	Fetch(ctx context.Context, uids []uint32) ([]RawMessage, error)
	Close() error
}

// Dialer opens sessions
type Dialer interface {
	Dial(ctx context.Context, cfg ServerConfig) (Session, error)
}

// IMAPDialer connects with go-imap, using implicit TLS on 993 and STARTTLS elsewhere
type IMAPDialer struct {
	Timeout   time.Duration
	TLSConfig *tls.Config
}

// NewIMAPDialer creates a dialer whose every network operation is bounded by timeout
func NewIMAPDialer(timeout time.Duration) *IMAPDialer {
	return &IMAPDialer{Timeout: timeout}
}

// Dial connects and logs in
func (d *IMAPDialer) Dial(ctx context.Context, cfg ServerConfig) (Session, error) {
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	fail := func(err error, auth bool) error {
		return &apperr.ConnectionError{Protocol: "imap", Host: addr, Auth: auth, Err: interrupted(ctx, err)}
	}

	nd := net.Dialer{Timeout: d.timeout()}
	conn, err := nd.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fail(err, false)
	}

	s := &imapSession{conn: conn, timeout: d.timeout()}
	release := s.arm(ctx)
	defer release()

	tlsConfig := d.tlsConfig(cfg.Host)
	if cfg.Port == implicitTLSPort {
		tlsConn := tls.Client(conn, tlsConfig)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			conn.Close()
			return nil, fail(err, false)
		}
		s.client = imapclient.New(tlsConn, nil)
	} else {
		client, err := imapclient.NewStartTLS(conn, &imapclient.Options{TLSConfig: tlsConfig})
		if err != nil {
			conn.Close()
			return nil, fail(err, false)
		}
		s.client = client
	}

	if err := s.client.Login(cfg.User, cfg.Password).Wait(); err != nil {
		s.client.Close()
		var imapErr *imap.Error
		return nil, fail(err, errors.As(err, &imapErr))
	}

	return s, nil
}

func (d *IMAPDialer) timeout() time.Duration {
	if d.Timeout <= 0 {
		return 30 * time.Second
	}
	return d.Timeout
}

func (d *IMAPDialer) tlsConfig(host string) *tls.Config {
	if d.TLSConfig != nil {
		cfg := d.TLSConfig.Clone()
		if cfg.ServerName == "" {
			cfg.ServerName = host
		}
		return cfg
	}
	return &tls.Config{ServerName: host, MinVersion: tls.VersionTLS12}
}

type imapSession struct {
	conn    net.Conn
	client  *imapclient.Client
	timeout time.Duration
}

// arm bounds the next operation by the session timeout and the context,
// and returns a func that clears the deadline again
func (s *imapSession) arm(ctx context.Context) func() {
	deadline := time.Now().Add(s.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = s.conn.SetDeadline(deadline)
	stop := context.AfterFunc(ctx, func() {
		_ = s.conn.SetDeadline(time.Now())
	})
	return func() {
		stop()
		_ = s.conn.SetDeadline(time.Time{})
	}
}

func (s *imapSession) SelectInbox(ctx context.Context) (uint32, error) {
	release := s.arm(ctx)
	defer release()

	data, err := s.client.Select("INBOX", &imap.SelectOptions{ReadOnly: true}).Wait()
	if err != nil {
		return 0, fmt.Errorf("selecting INBOX: %w", interrupted(ctx, err))
	}
	return data.UIDValidity, nil
}

func (s *imapSession) SearchUIDs(ctx context.Context, after uint32, since time.Time) ([]uint32, error) {
	release := s.arm(ctx)
	defer release()

	uidSet := imap.UIDSet{}
	uidSet.AddRange(imap.UID(after+1), 0)
	criteria := &imap.SearchCriteria{UID: []imap.UIDSet{uidSet}}
	if !since.IsZero() {
		criteria.Since = since
	}

	data, err := s.client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("searching INBOX: %w", interrupted(ctx, err))
	}

	all := data.AllUIDs()
	uids := make([]uint32, 0, len(all))
	for _, uid := range all {
		uids = append(uids, uint32(uid))
	}
	return uids, nil
}

func (s *imapSession) Fetch(ctx context.Context, uids []uint32) ([]RawMessage, error) {
	if len(uids) == 0 {
		return nil, nil
	}
	release := s.arm(ctx)
	defer release()

	set := make([]imap.UID, 0, len(uids))
	for _, uid := range uids {
		set = append(set, imap.UID(uid))
	}

	bodySection := &imap.FetchItemBodySection{Peek: true}
	fetchOpts := &imap.FetchOptions{
		UID:          true,
		Flags:        true,
		InternalDate: true,
		BodySection:  []*imap.FetchItemBodySection{bodySection},
	}

	bufs, err := s.client.Fetch(imap.UIDSetNum(set...), fetchOpts).Collect()
	if err != nil {
		return nil, fmt.Errorf("fetching %d message(s): %w", len(uids), interrupted(ctx, err))
	}

	msgs := make([]RawMessage, 0, len(bufs))
	for _, buf := range bufs {
		flags := make([]string, 0, len(buf.Flags))
		for _, f := range buf.Flags {
			flags = append(flags, string(f))
		}
		msgs = append(msgs, RawMessage{
			UID:          uint32(buf.UID),
			Flags:        flags,
			InternalDate: buf.InternalDate,
			Body:         buf.FindBodySection(bodySection),
		})
	}
	return msgs, nil
}

func (s *imapSession) Close() error {
	release := s.arm(context.Background())
	defer release()

	_ = s.client.Logout().Wait()
	return s.client.Close()
}

// interrupted reports cancellations and socket timeouts as context errors
func interrupted(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %v", ctxErr, err)
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
	}
	return err
}
