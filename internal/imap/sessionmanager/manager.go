// Package sessionmanager opens and tears down the single IMAP session the gateway uses.
package sessionmanager

import (
	"context"
	"crypto/tls"
	"net"
	"strings"
	"time"

	"aaronromeo.com/inboxsweep/internal/imap/base"
	giimapclient "github.com/emersion/go-imap/v2/imapclient"
	"github.com/pkg/errors"
)

const DefaultDialTimeout = 30 * time.Second

var (
	ErrMissingAddr  = errors.New("IMAP address is required")
	ErrMissingCreds = errors.New("IMAP credentials are required")
)

type Option func(*IMAPConnector)

var _ ServerConnector = (*IMAPConnector)(nil)

type ServerConnector interface {
	Connect(ctx context.Context) error
	Close() error
	Connected() bool

	IMAPClient() *giimapclient.Client
}

type IMAPConnector struct {
	Addr        string
	Username    string
	Password    string
	TLSConfig   *tls.Config
	DialTimeout time.Duration

	// opened counts successful logins, so a reconnect after Drop is visible.
	opened int

	base.State
}

func WithAddr(a string) Option {
	return func(c *IMAPConnector) {
		c.Addr = a
	}
}

func WithCreds(username string, password string) Option {
	return func(c *IMAPConnector) {
		c.Username = username
		c.Password = password
	}
}

func WithTLSConfig(config *tls.Config) Option {
	return func(c *IMAPConnector) {
		c.TLSConfig = config
	}
}

// WithDialTimeout bounds the dial, handshake and login together. Zero keeps the default.
func WithDialTimeout(d time.Duration) Option {
	return func(c *IMAPConnector) {
		if d > 0 {
			c.DialTimeout = d
		}
	}
}

func NewServerConnector(opts ...Option) *IMAPConnector {
	c := &IMAPConnector{DialTimeout: DefaultDialTimeout}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

func (c *IMAPConnector) IMAPClient() *giimapclient.Client {
	return c.Client
}

func (c *IMAPConnector) Connected() bool {
	return c.Client != nil
}

// Sessions reports how many logins have succeeded since the connector was built.
func (c *IMAPConnector) Sessions() int {
	return c.opened
}

// Connect dials over TLS and logs in. A cancelled ctx or an elapsed dial timeout aborts
// the attempt even when the server accepts the socket and then goes quiet.
func (c *IMAPConnector) Connect(ctx context.Context) error {
	if err := c.validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, c.DialTimeout)
	defer cancel()

	dialer := &tls.Dialer{Config: c.TLSConfig}
	conn, err := dialer.DialContext(ctx, "tcp", c.Addr)
	if err != nil {
		return errors.Wrapf(err, "dial %s", c.Addr)
	}

	// Login has no ctx of its own, so the socket deadline carries it.
	deadline, _ := ctx.Deadline()
	if err := conn.SetDeadline(deadline); err != nil {
		_ = conn.Close()
		return errors.Wrap(err, "set login deadline")
	}
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})

	client := giimapclient.New(conn, nil)
	err = client.Login(c.Username, c.Password).Wait()
	if !stop() || err != nil {
		_ = client.Close()
		if err == nil {
			err = ctx.Err()
		}
		return errors.Wrap(err, "login")
	}
	if err := conn.SetDeadline(time.Time{}); err != nil {
		_ = client.Close()
		return errors.Wrap(err, "clear login deadline")
	}

	c.Client = client
	c.opened++
	return nil
}

// Close logs out and clears the connection.
func (c *IMAPConnector) Close() error {
	if c.Client == nil {
		return nil
	}
	err := c.Client.Logout().Wait()
	c.Client = nil
	return err
}

// Drop discards a connection that is known to be broken without logging out.
func (c *IMAPConnector) Drop() {
	if c.Client == nil {
		return
	}
	_ = c.Client.Close()
	c.Client = nil
}

func (c *IMAPConnector) validate() error {
	if strings.TrimSpace(c.Addr) == "" {
		return ErrMissingAddr
	}
	if _, _, err := net.SplitHostPort(c.Addr); err != nil {
		return errors.Wrapf(err, "IMAP address %q", c.Addr)
	}
	if strings.TrimSpace(c.Username) == "" || strings.TrimSpace(c.Password) == "" {
		return ErrMissingCreds
	}

	return nil
}
