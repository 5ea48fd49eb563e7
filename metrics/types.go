// Package metrics records counters, gauges and stopwatches and fans them out to the
// registered reporters.
package metrics

// Policy defines how values of one metric combine over time.
type Policy int

const (
	Policy_None      Policy = iota // Policy_None marks an unknown metric.
	Policy_Set                     // Policy_Set keeps the last reported value.
	Policy_Sum                     // Policy_Sum accumulates reported values.
	Policy_Stopwatch               // Policy_Stopwatch records durations in milliseconds.
)

// Value is a metric value.
type Value float64

// Dimension labels a metric value.
type Dimension map[string]string

// Groups.
const (
	// GroupLobbyd holds process level metrics (pools, plugins).
	GroupLobbyd = "lobbyd"
	// GroupNet holds transport, session and dispatch metrics.
	GroupNet = "net"
	// GroupLobby holds lobby lifecycle metrics.
	GroupLobby = "lobby"
)

// Metric names. The comment lists group and dimensions.
const (
	// NamePoolCreateTotal: objects allocated because a pool was empty.
	// group:lobbyd dimension:poolname
	NamePoolCreateTotal = "pool_create_total"

	// NameTransportStartTotal: transports that started listening.
	// group:net dimension:transport
	NameTransportStartTotal = "transport_start_total"

	// NameTransportAcceptTotal: accepted connections.
	// group:net dimension:transport
	NameTransportAcceptTotal = "transport_accept_total"

	// NameSessionOpenTotal: sessions opened.
	// group:net
	NameSessionOpenTotal = "session_open_total"

	// NameSessionCloseTotal: sessions closed.
	// group:net dimension:reason
	NameSessionCloseTotal = "session_close_total"

	// NameSessionCurrent: live sessions.
	// group:net
	NameSessionCurrent = "session_current"

	// NameRecordRecvTotal: records decoded from clients.
	// group:net dimension:msgid
	NameRecordRecvTotal = "record_recv_total"

	// NameRecordSendTotal: records queued to clients.
	// group:net dimension:msgid
	NameRecordSendTotal = "record_send_total"

	// NameRecordSendDropTotal: records that could not be queued.
	// group:net dimension:msgid,reason
	NameRecordSendDropTotal = "record_send_drop_total"

	// NameDecodeErrorTotal: malformed records.
	// group:net dimension:resync
	NameDecodeErrorTotal = "decode_error_total"

	// NameDispatchFilteredTotal: records blocked by the record filter.
	// group:net dimension:msgid
	NameDispatchFilteredTotal = "dispatch_filtered_total"

	// NameDispatchErrorTotal: handler failures.
	// group:net dimension:msgid
	NameDispatchErrorTotal = "dispatch_error_total"

	// NameDispatchDurationMS: handler latency.
	// group:net dimension:msgid
	NameDispatchDurationMS = "dispatch_duration_ms"

	// NameLobbyCurrent: live lobbies.
	// group:lobby
	NameLobbyCurrent = "lobby_current"

	// NameLobbyCreateTotal: lobbies created.
	// group:lobby
	NameLobbyCreateTotal = "lobby_create_total"

	// NameLobbyDestroyTotal: lobbies destroyed because they emptied.
	// group:lobby
	NameLobbyDestroyTotal = "lobby_destroy_total"

	// NameBarrierTotal: readiness barrier outcomes.
	// group:lobby dimension:outcome
	NameBarrierTotal = "barrier_total"

	// NameListingBroadcastTotal: listing fan-outs.
	// group:lobby
	NameListingBroadcastTotal = "listing_broadcast_total"
)

// Dimensions.
const (
	DimMsgID     = "msgid"
	DimPoolName  = "poolname"
	DimTransport = "transport"
	DimReason    = "reason"
	DimResync    = "resync"
	DimOutcome   = "outcome"
)
