package imap

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	imapv2 "github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
)

// DefaultTimeout bounds connect, search and fetch calls when Options.Timeout is unset.
const DefaultTimeout = 15 * time.Second

// DefaultFolder is selected when SelectFolder is called with an empty name.
const DefaultFolder = "INBOX"

type Options struct {
	Host               string
	Port               int
	Username           string
	Password           string
	UseTLS             bool
	InsecureSkipVerify bool
	Timeout            time.Duration
}

// State is the protocol state of a Session.
type State int

const (
	StateDisconnected State = iota
	StateConnected
	StateSelected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnected:
		return "connected"
	case StateSelected:
		return "folder-selected"
	default:
		return "state(" + strconv.Itoa(int(s)) + ")"
	}
}

// Session is a single stateful IMAP connection bound to one folder.
// It is not safe for concurrent use.
type Session struct {
	opts   Options
	logger *slog.Logger

	client *imapclient.Client
	state  State
	folder string
	// broken is set once the connection was torn down by a deadline or cancellation.
	broken bool
}

func NewSession(opts Options, logger *slog.Logger) (*Session, error) {
	if opts.Host == "" {
		return nil, fmt.Errorf("imap host is empty")
	}
	if opts.Port <= 0 {
		return nil, fmt.Errorf("imap port must be positive")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Session{opts: opts, logger: logger}, nil
}

func (s *Session) State() State {
	return s.state
}

func (s *Session) addr() string {
	return net.JoinHostPort(s.opts.Host, strconv.Itoa(s.opts.Port))
}

// Connect dials the server and logs in. Network, TLS and timeout failures are
// returned as *ConnectionError, rejected credentials as *AuthError.
func (s *Session) Connect(ctx context.Context) error {
	if s.state != StateDisconnected {
		return &StateError{Op: "connect", State: s.state}
	}

	conn, err := s.dial(ctx)
	if err != nil {
		return err
	}

	s.client = imapclient.New(conn, &imapclient.Options{})
	s.state = StateConnected
	s.broken = false

	err = s.guard(ctx, "login", func() error {
		return s.client.Login(s.opts.Username, s.opts.Password).Wait()
	})
	if err != nil {
		_ = s.client.Close()
		s.client = nil
		s.state = StateDisconnected

		var (
			connErr *ConnectionError
			respErr *imapv2.Error
		)
		switch {
		case errors.As(err, &connErr), ctx.Err() != nil:
			return err
		case errors.As(err, &respErr):
			return &AuthError{User: s.opts.Username, Err: err}
		default:
			return &ConnectionError{Op: "login", Addr: s.addr(), Err: err}
		}
	}

	if s.logger != nil {
		s.logger.Debug("imap connection established", "address", s.addr(), "user", s.opts.Username, "tls", s.opts.UseTLS)
	}
	return nil
}

func (s *Session) dial(ctx context.Context) (net.Conn, error) {
	address := s.addr()
	netDialer := &net.Dialer{Timeout: s.opts.Timeout}

	var (
		conn net.Conn
		err  error
	)
	if s.opts.UseTLS {
		dialer := &tls.Dialer{
			NetDialer: netDialer,
			Config: &tls.Config{
				ServerName:         s.opts.Host,
				InsecureSkipVerify: s.opts.InsecureSkipVerify,
			},
		}
		conn, err = dialer.DialContext(ctx, "tcp", address)
	} else {
		conn, err = netDialer.DialContext(ctx, "tcp", address)
	}
	if err != nil {
		if ctx.Err() == nil && isTimeout(err) {
			err = fmt.Errorf("%w: %w", ErrTimeout, err)
		}
		return nil, &ConnectionError{Op: "dial", Addr: address, Err: err}
	}
	return conn, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// guard runs fn with the session timeout. When the deadline elapses or ctx is
// cancelled the connection is closed so that the blocked command returns.
func (s *Session) guard(ctx context.Context, op string, fn func() error) error {
	opCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	client := s.client
	stop := context.AfterFunc(opCtx, func() {
		_ = client.Close()
	})

	err := fn()
	if stop() {
		return err
	}

	s.broken = true
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("imap %s: %w", op, ctxErr)
	}
	return &ConnectionError{Op: op, Addr: s.addr(), Err: ErrTimeout}
}

// SelectFolder opens name read-only; an empty name selects INBOX.
func (s *Session) SelectFolder(ctx context.Context, name string) error {
	if s.state == StateDisconnected {
		return &StateError{Op: "select", State: s.state}
	}
	if name == "" {
		name = DefaultFolder
	}

	var data *imapv2.SelectData
	err := s.guard(ctx, "select", func() error {
		var err error
		data, err = s.client.Select(name, &imapv2.SelectOptions{ReadOnly: true}).Wait()
		return err
	})
	if err != nil {
		return fmt.Errorf("select %s: %w", name, err)
	}

	s.state = StateSelected
	s.folder = name
	if s.logger != nil {
		s.logger.Debug("imap folder selected", "folder", name, "messages", data.NumMessages)
	}
	return nil
}

// Search returns the UIDs of the messages in the selected folder matching q.
func (s *Session) Search(ctx context.Context, q Query) ([]uint32, error) {
	if s.state != StateSelected {
		return nil, &StateError{Op: "search", State: s.state}
	}

	var data *imapv2.SearchData
	err := s.guard(ctx, "search", func() error {
		var err error
		data, err = s.client.UIDSearch(q.criteria(), nil).Wait()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", q, err)
	}

	uids := data.AllUIDs()
	ids := make([]uint32, 0, len(uids))
	for _, uid := range uids {
		ids = append(ids, uint32(uid))
	}

	if s.logger != nil {
		s.logger.Debug("imap search completed", "folder", s.folder, "query", q.String(), "matches", len(ids))
	}
	return ids, nil
}

// Fetch returns the full raw message stored under uid without setting \Seen.
func (s *Session) Fetch(ctx context.Context, uid uint32) ([]byte, error) {
	if s.state != StateSelected {
		return nil, &StateError{Op: "fetch", State: s.state}
	}

	section := &imapv2.FetchItemBodySection{Peek: true}
	options := &imapv2.FetchOptions{
		UID:         true,
		BodySection: []*imapv2.FetchItemBodySection{section},
	}

	var raw []byte
	err := s.guard(ctx, "fetch", func() error {
		msgs, err := s.client.Fetch(imapv2.UIDSetNum(imapv2.UID(uid)), options).Collect()
		if err != nil {
			return err
		}
		if len(msgs) == 0 {
			return fmt.Errorf("message UID %d not found", uid)
		}
		raw = msgs[0].FindBodySection(section)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetch UID %d: %w", uid, err)
	}
	return raw, nil
}

// Close logs out when the connection is still healthy and releases it.
// It is safe to call Close more than once.
func (s *Session) Close() error {
	if s.client == nil {
		s.state = StateDisconnected
		return nil
	}

	client := s.client
	s.client = nil
	s.state = StateDisconnected
	s.folder = ""

	if !s.broken {
		done := make(chan error, 1)
		go func() {
			done <- client.Logout().Wait()
		}()
		select {
		case err := <-done:
			if err != nil && s.logger != nil {
				s.logger.Warn("imap logout failed", "err", err)
			}
		case <-time.After(s.opts.Timeout):
			if s.logger != nil {
				s.logger.Warn("imap logout timed out", "address", s.addr())
			}
		}
	}

	if err := client.Close(); err != nil && s.logger != nil {
		s.logger.Debug("imap connection closed", "err", err)
	}
	return nil
}
