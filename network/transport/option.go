package transport

import "errors"

// ErrNoHandler is returned by Start when the option carries no handler.
var ErrNoHandler = errors.New("transport option has no connection handler")

// TransportOption carries the dependencies a transport needs to run.
type TransportOption struct {
	// Handler receives every accepted connection, typically the session manager.
	Handler ConnHandler
}

// Validate checks the option.
func (o TransportOption) Validate() error {
	if o.Handler == nil {
		return ErrNoHandler
	}
	return nil
}
