package handler

import (
	"github.com/linchenxuan/lobbyd/network/message"
)

// Session is the view of a client connection that message layers work with.
// *session.Session implements it.
type Session interface {
	ID() uint32
	Username() string
	SetUsername(name string)
	LobbyID() (uint64, bool)
	SetLobby(id uint64)
	ClearLobby(id uint64) bool
	// Send queues a record for the client without blocking.
	Send(rec message.Record) bool
	Close(reason error)
}

// Delivery defines the abstract interface for a record delivery object.
// This abstraction is used to decouple the record processing layers from the
// concrete dispatcher implementation, breaking circular dependencies.
type Delivery interface {
	GetProtoInfo() *message.MsgProtoInfo // Returns the descriptor of the record type.
	GetRecord() message.Record           // Returns the decoded record.
	GetSession() Session                 // Returns the session the record arrived on.
}

// MsgLayerReceiver defines the contract for application-level record handlers.
// Each layer of the application (session, lobby) implements this interface to process
// records dispatched by the central Dispatcher.
type MsgLayerReceiver interface {
	// OnRecvDispatcherPkg processes a dispatched record delivery.
	OnRecvDispatcherPkg(delivery Delivery) error
}

// MsgLayer combines the record handling of a MsgLayerReceiver with lifecycle management.
type MsgLayer interface {
	MsgLayerReceiver

	// Init is called during server startup to initialize the layer.
	Init() error

	// Shutdown is called before the server shuts down.
	Shutdown()
}
