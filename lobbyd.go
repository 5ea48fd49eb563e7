// Package lobbyd assembles the lobby server process: logger, plugins, the lobby server,
// transports and configuration reload.
package lobbyd

import (
	"context"
	"errors"
	"fmt"

	"github.com/linchenxuan/lobbyd/config"
	"github.com/linchenxuan/lobbyd/event"
	"github.com/linchenxuan/lobbyd/log"
	"github.com/linchenxuan/lobbyd/metrics/prometheus"
	"github.com/linchenxuan/lobbyd/network/transport"
	"github.com/linchenxuan/lobbyd/network/transport/kcp"
	"github.com/linchenxuan/lobbyd/network/transport/tcp"
	"github.com/linchenxuan/lobbyd/network/transport/ws"
	"github.com/linchenxuan/lobbyd/plugin"
	"github.com/linchenxuan/lobbyd/server"
	"github.com/linchenxuan/lobbyd/utils/file"
)

// ErrNoTransport is returned by Start when no configured plugin is a transport.
var ErrNoTransport = errors.New("no transport started")

// PortPrompt asks for a new listen address after a transport failed to bind. Returning
// false gives up.
type PortPrompt func(transportName string, bindErr error) (addr string, ok bool)

// Lobbyd is the core application struct, holding all major components.
type Lobbyd struct {
	PluginManager *plugin.Manager
	Events        *event.Publisher
	Server        *server.Server

	cfg        *config.Config
	pidLock    *file.PIDLock
	transports []transport.Transport
}

// New initializes the logger from cfg, builds the server and sets up the configured
// plugins. A nil cfg uses config.Default.
func New(cfg *config.Config) (*Lobbyd, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := log.Initialize(&cfg.Log); err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	app := &Lobbyd{
		PluginManager: plugin.NewManager(),
		Events:        event.NewPublisher(),
		cfg:           cfg,
	}
	if cfg.PIDFile != "" {
		lock, err := file.Acquire(cfg.PIDFile)
		if err != nil {
			return nil, err
		}
		app.pidLock = lock
	}

	srv, err := server.New(server.Options{
		Session:    &cfg.Session,
		Lobby:      &cfg.Lobby,
		Dispatcher: &cfg.Dispatcher,
		Broadcast:  &cfg.Broadcast,
	})
	if err != nil {
		app.release()
		return nil, err
	}
	app.Server = srv

	for _, f := range []plugin.Factory{tcp.NewFactory(), kcp.NewFactory(), ws.NewFactory(), prometheus.NewFactory()} {
		app.PluginManager.RegisterFactory(f)
	}
	if err := app.PluginManager.SetupPlugins(cfg.Plugin); err != nil {
		app.PluginManager.DestroyPlugins()
		app.release()
		return nil, err
	}

	if err := app.Events.RegisterSubscriber(event.ReloadConfig, app.onReload); err != nil {
		app.PluginManager.DestroyPlugins()
		app.release()
		return nil, err
	}

	log.Info().Msg("lobbyd initialized")
	return app, nil
}

// Start binds every transport plugin. When a bind fails and the transport can be re-bound,
// prompt is asked for another address; a nil prompt fails immediately.
func (app *Lobbyd) Start(prompt PortPrompt) error {
	opt := transport.TransportOption{Handler: app.Server.ConnHandler()}
	for _, p := range app.PluginManager.GetPlugins(plugin.Transport) {
		t, ok := p.(transport.Transport)
		if !ok {
			continue
		}
		if err := startTransport(p.FactoryName(), t, opt, prompt); err != nil {
			app.stopTransports()
			return err
		}
		app.transports = append(app.transports, t)
	}
	if len(app.transports) == 0 {
		return ErrNoTransport
	}
	return nil
}

func startTransport(name string, t transport.Transport, opt transport.TransportOption, prompt PortPrompt) error {
	for {
		err := t.Start(opt)
		if err == nil {
			return nil
		}
		log.Warn().Str("transport", name).Err(err).Msg("transport failed to start")

		r, ok := t.(transport.Rebinder)
		if !ok || prompt == nil {
			return err
		}
		addr, ok := prompt(name, err)
		if !ok {
			return err
		}
		r.SetAddr(addr)
	}
}

// Transports returns the started transports.
func (app *Lobbyd) Transports() []transport.Transport {
	return app.transports
}

// Watch republishes configuration changes of envFile until ctx is done.
func (app *Lobbyd) Watch(ctx context.Context, envFile string) error {
	w, err := config.NewWatcher(envFile, app.Events)
	if err != nil {
		return err
	}
	return w.Run(ctx)
}

// onReload applies the hot-reloadable settings of a new configuration.
func (app *Lobbyd) onReload(v any) {
	cfg, ok := v.(*config.Config)
	if !ok {
		return
	}
	log.SetLevel(cfg.Log.LogLevel)
	if err := app.Server.Reload(&cfg.Dispatcher, &cfg.Broadcast); err != nil {
		log.Warn().Err(err).Msg("config reload not applied")
		return
	}
	log.Info().Str("level", cfg.Log.LogLevel.String()).Int("recv_rate_limit", cfg.Dispatcher.RecvRateLimit).
		Int("listing_qps", cfg.Broadcast.ListingQPS).Msg("config applied")
}

// Stop stops accepting, closes every session and releases the plugins.
func (app *Lobbyd) Stop() {
	log.Info().Msg("lobbyd shutting down")
	app.stopTransports()
	app.Server.Shutdown()
	app.PluginManager.DestroyPlugins()
	app.release()
}

func (app *Lobbyd) stopTransports() {
	for _, t := range app.transports {
		if err := t.StopRecv(); err != nil {
			log.Warn().Err(err).Msg("stop accepting failed")
		}
	}
}

func (app *Lobbyd) release() {
	if app.pidLock == nil {
		return
	}
	if err := app.pidLock.Release(); err != nil {
		log.Warn().Err(err).Str("file", app.pidLock.Path()).Msg("release pid file failed")
	}
	app.pidLock = nil
}
