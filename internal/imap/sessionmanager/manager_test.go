package sessionmanager

import (
	"context"
	"crypto/tls"
	"net"
	"sync"
	"testing"
	"time"

	"aaronromeo.com/inboxsweep/ftest"
	"github.com/emersion/go-imap/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testTLS = &tls.Config{InsecureSkipVerify: true} //nolint:gosec

// silentServer accepts connections and never writes to them.
func silentServer(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	var (
		mu    sync.Mutex
		conns []net.Conn
	)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, conn)
			mu.Unlock()
		}
	}()
	t.Cleanup(func() {
		_ = ln.Close()
		mu.Lock()
		defer mu.Unlock()
		for _, conn := range conns {
			_ = conn.Close()
		}
	})
	return ln.Addr().String()
}

func TestConnectValidatesSettings(t *testing.T) {
	tests := []struct {
		name string
		opts []Option
		want error
	}{
		{name: "no addr", opts: []Option{WithCreds("u", "p")}, want: ErrMissingAddr},
		{name: "no creds", opts: []Option{WithAddr("127.0.0.1:993")}, want: ErrMissingCreds},
		{name: "blank password", opts: []Option{WithAddr("127.0.0.1:993"), WithCreds("u", "  ")}, want: ErrMissingCreds},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewServerConnector(tt.opts...)
			assert.ErrorIs(t, c.Connect(context.Background()), tt.want)
			assert.False(t, c.Connected())
		})
	}

	c := NewServerConnector(WithAddr("imap.example.com"), WithCreds("u", "p"))
	assert.ErrorContains(t, c.Connect(context.Background()), "imap.example.com")
}

func TestDialTimeoutOption(t *testing.T) {
	assert.Equal(t, DefaultDialTimeout, NewServerConnector().DialTimeout)
	assert.Equal(t, DefaultDialTimeout, NewServerConnector(WithDialTimeout(0)).DialTimeout)
	assert.Equal(t, time.Second, NewServerConnector(WithDialTimeout(time.Second)).DialTimeout)
}

func TestConnectDropAndReconnect(t *testing.T) {
	srv := ftest.SetupIMAPServer(t, imap.CapSet{imap.CapIMAP4rev1: {}}, nil)
	c := NewServerConnector(
		WithAddr(srv.Addr),
		WithCreds(ftest.DefaultUser, ftest.DefaultPass),
		WithTLSConfig(testTLS))
	ctx := context.Background()

	require.NoError(t, c.Connect(ctx))
	assert.True(t, c.Connected())
	assert.NotNil(t, c.IMAPClient())
	assert.Equal(t, 1, c.Sessions())

	c.Drop()
	assert.False(t, c.Connected())
	c.Drop()

	require.NoError(t, c.Connect(ctx))
	assert.Equal(t, 2, c.Sessions())

	require.NoError(t, c.Close())
	assert.False(t, c.Connected())
	assert.NoError(t, c.Close(), "closing twice is a no-op")
}

func TestConnectRejectedLogin(t *testing.T) {
	srv := ftest.SetupIMAPServer(t, imap.CapSet{imap.CapIMAP4rev1: {}}, nil)
	c := NewServerConnector(
		WithAddr(srv.Addr),
		WithCreds(ftest.DefaultUser, "wrong"),
		WithTLSConfig(testTLS))

	err := c.Connect(context.Background())
	assert.ErrorContains(t, err, "login")
	assert.False(t, c.Connected())
	assert.Zero(t, c.Sessions())
}

func TestConnectGivesUpOnSilentServer(t *testing.T) {
	c := NewServerConnector(
		WithAddr(silentServer(t)),
		WithCreds(ftest.DefaultUser, ftest.DefaultPass),
		WithTLSConfig(testTLS),
		WithDialTimeout(200*time.Millisecond))

	start := time.Now()
	err := c.Connect(context.Background())
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.False(t, c.Connected())
}

func TestConnectStopsWhenContextCancelled(t *testing.T) {
	c := NewServerConnector(
		WithAddr(silentServer(t)),
		WithCreds(ftest.DefaultUser, ftest.DefaultPass),
		WithTLSConfig(testTLS))

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	start := time.Now()
	err := c.Connect(ctx)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.False(t, c.Connected())
}
