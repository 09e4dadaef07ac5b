package cli

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"os"
	"strings"

	"aaronromeo.com/inboxsweep/internal/announcer"
	"aaronromeo.com/inboxsweep/internal/config"
	"aaronromeo.com/inboxsweep/internal/connectivity"
	"aaronromeo.com/inboxsweep/internal/credential"
	"aaronromeo.com/inboxsweep/internal/gateway"
	"aaronromeo.com/inboxsweep/internal/gateway/gmail"
	"aaronromeo.com/inboxsweep/internal/imap"
	"aaronromeo.com/inboxsweep/internal/imap/sessionmanager"
	"aaronromeo.com/inboxsweep/internal/optimistic"
	"aaronromeo.com/inboxsweep/internal/queue"
	"aaronromeo.com/inboxsweep/internal/scheduler"
	"aaronromeo.com/inboxsweep/internal/store"
	"aaronromeo.com/inboxsweep/pkg/base"
	pkgerrors "github.com/pkg/errors"
	"go.opentelemetry.io/otel"
)

// Graph is one process worth of wired components.
type Graph struct {
	Config      config.Config
	Logger      *slog.Logger
	Provider    gateway.Provider
	Scheduler   *scheduler.Scheduler
	Queue       *queue.Queue
	Watcher     *connectivity.Watcher
	Coordinator *optimistic.Coordinator
	Announcer   announcer.Service

	closers []func() error
}

// BuildOption overrides parts of the graph, mostly for tests.
type BuildOption func(*buildOptions)

type buildOptions struct {
	provider gateway.Provider
	store    queue.Store
	keyring  *credential.Store
}

func WithProvider(p gateway.Provider) BuildOption {
	return func(o *buildOptions) {
		o.provider = p
	}
}

func WithStore(s queue.Store) BuildOption {
	return func(o *buildOptions) {
		o.store = s
	}
}

func WithKeyring(s *credential.Store) BuildOption {
	return func(o *buildOptions) {
		o.keyring = s
	}
}

// Build wires every component from cfg. The durable queue is initialized; a store that
// cannot be opened leaves it unavailable rather than failing the build.
func Build(ctx context.Context, cfg config.Config, logger *slog.Logger, opts ...BuildOption) (*Graph, error) {
	var o buildOptions
	for _, opt := range opts {
		opt(&o)
	}

	g := &Graph{Config: cfg, Logger: logger}

	provider := o.provider
	if provider == nil {
		var err error
		provider, err = g.newProvider(ctx, o.keyring)
		if err != nil {
			return nil, err
		}
	}
	g.Provider = provider

	announce, err := g.newAnnouncer()
	if err != nil {
		_ = g.Close()
		return nil, err
	}
	g.Announcer = announce

	st := o.store
	if st == nil {
		st, err = newStore(cfg.Store)
		if err != nil {
			_ = g.Close()
			return nil, err
		}
	}

	meter := otel.Meter(base.ServiceName)
	g.Scheduler = scheduler.New(cfg.Scheduler.Config(),
		scheduler.WithLogger(logger),
		scheduler.WithMeter(meter))
	g.Queue = queue.New(st, g.Scheduler, provider, cfg.Queue.Config(),
		queue.WithLogger(logger),
		queue.WithAnnouncer(announce),
		queue.WithMeter(meter))
	g.closers = append(g.closers, g.Queue.Close)

	if err := g.Queue.Init(ctx); err != nil {
		_ = g.Close()
		return nil, err
	}

	g.Watcher = connectivity.NewWatcher(true, connectivity.WithLogger(logger))
	g.Coordinator = optimistic.New(optimistic.NewCollection(), g.Scheduler, provider, cfg.Undo.Config(),
		optimistic.WithLogger(logger),
		optimistic.WithQueue(g.Queue),
		optimistic.WithConnectivity(g.Watcher))
	return g, nil
}

func (g *Graph) newProvider(ctx context.Context, ring *credential.Store) (gateway.Provider, error) {
	p := g.Config.Provider
	switch p.Kind {
	case config.ProviderGmail:
		svc, err := gmail.NewService(ctx, p.Gmail.CredentialsFile, p.Gmail.TokenFile)
		if err != nil {
			return nil, err
		}
		return gmail.New(svc, g.Logger), nil
	case config.ProviderIMAP:
		pass, err := imapPassword(p.IMAP, ring)
		if err != nil {
			return nil, err
		}
		client := imap.New(p.IMAP.Folders, g.Logger,
			sessionmanager.WithAddr(p.IMAP.Addr()),
			sessionmanager.WithCreds(p.IMAP.User, pass),
			sessionmanager.WithTLSConfig(&tls.Config{
				ServerName:         p.IMAP.Host,
				InsecureSkipVerify: p.IMAP.InsecureSkipVerify, //nolint:gosec
			}))
		g.closers = append(g.closers, client.Close)
		return client, nil
	}
	return nil, base.Validationf("unknown provider %q", p.Kind)
}

func imapPassword(cfg config.IMAP, ring *credential.Store) (string, error) {
	if ring == nil && strings.TrimSpace(os.Getenv(config.EnvIMAPPass)) == "" {
		opened, err := credential.Open(cfg.KeyringDir)
		if err != nil {
			return "", pkgerrors.Wrapf(err, "%s is unset", config.EnvIMAPPass)
		}
		ring = opened
	}
	pass, err := ring.Resolve(config.EnvIMAPPass, credential.IMAPPasswordKey)
	if err != nil {
		return "", pkgerrors.Wrap(err, "imap password")
	}
	return pass, nil
}

func (g *Graph) newAnnouncer() (announcer.Service, error) {
	a := g.Config.Announcer
	var sinks announcer.Fanout
	if a.WebhookURL != "" {
		sinks = append(sinks, announcer.New(announcer.WithWebhookURL(a.WebhookURL)))
	}
	if a.AMQPURL != "" {
		pub, err := announcer.DialAMQP(a.AMQPURL, a.AMQPExchange)
		if err != nil {
			return nil, err
		}
		g.closers = append(g.closers, pub.Close)
		sinks = append(sinks, pub)
	}
	return announcer.Logged(sinks, g.Logger), nil
}

func newStore(cfg config.Store) (queue.Store, error) {
	switch cfg.Backend {
	case config.StoreMemory:
		return store.NewMemory(), nil
	case config.StoreSQLite:
		return store.NewSQLite(cfg.SQLitePath), nil
	case config.StoreRedis:
		return store.NewRedisFromURL(cfg.RedisURL, cfg.RedisPrefix)
	case config.StorePostgres:
		return store.NewPostgres(cfg.PostgresDSN), nil
	}
	return nil, base.Validationf("unknown store backend %q", cfg.Backend)
}

// Close releases the graph in reverse construction order.
func (g *Graph) Close() error {
	if g.Scheduler != nil {
		g.Scheduler.Clear()
	}
	var err error
	for i := len(g.closers) - 1; i >= 0; i-- {
		err = errors.Join(err, g.closers[i]())
	}
	g.closers = nil
	return err
}
