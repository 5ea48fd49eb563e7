// Package config assembles the process configuration from component defaults, an optional
// dotenv file and the LOBBYD_* environment.
package config

import (
	"errors"
	"fmt"

	"github.com/linchenxuan/lobbyd/broadcast"
	"github.com/linchenxuan/lobbyd/lobby"
	"github.com/linchenxuan/lobbyd/log"
	"github.com/linchenxuan/lobbyd/network/dispatcher"
	"github.com/linchenxuan/lobbyd/network/session"
	"github.com/linchenxuan/lobbyd/plugin"
)

// DefaultAddr is the listen address of the default TCP transport.
const DefaultAddr = ":5555"

// ErrNoTransport is returned by Validate when no transport plugin is configured.
var ErrNoTransport = errors.New("no transport plugin configured")

// Config is the whole process configuration.
type Config struct {
	Log        log.LogCfg                  `mapstructure:"log"`
	Lobby      lobby.Config                `mapstructure:"lobby"`
	Session    session.Config              `mapstructure:"session"`
	Dispatcher dispatcher.DispatcherConfig `mapstructure:"dispatcher"`
	Broadcast  broadcast.Config            `mapstructure:"broadcast"`

	// PIDFile is locked for the life of the process. Empty disables the lock.
	PIDFile string `mapstructure:"pidFile"`

	// Plugin is laid out as plugin type -> implementation name -> settings and handed to
	// plugin.Manager.SetupPlugins.
	Plugin map[string]any `mapstructure:"plugin"`
}

// Default returns the built-in configuration: console logging and one TCP transport on
// DefaultAddr.
func Default() *Config {
	return &Config{
		Log:        *log.DefaultCfg(),
		Lobby:      *lobby.DefaultConfig(),
		Session:    *session.DefaultConfig(),
		Dispatcher: *dispatcher.DefaultConfig(),
		Broadcast:  *broadcast.DefaultConfig(),
		Plugin: map[string]any{
			string(plugin.Transport): map[string]any{
				"tcp": map[string]any{
					"tag":     plugin.DefaultInsName,
					"addr":    DefaultAddr,
					"noDelay": true,
				},
			},
		},
	}
}

// Validate checks every section. Component validators may fill defaults in place.
func (c *Config) Validate() error {
	sections := []interface {
		GetName() string
		Validate() error
	}{&c.Log, &c.Lobby, &c.Session, &c.Dispatcher, &c.Broadcast}

	var errs []error
	for _, s := range sections {
		if err := s.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.GetName(), err))
		}
	}

	transports, _ := c.Plugin[string(plugin.Transport)].(map[string]any)
	if len(transports) == 0 {
		errs = append(errs, ErrNoTransport)
	}
	return errors.Join(errs...)
}
