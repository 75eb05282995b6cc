// Package events contains the events emitted by the backend besides the
// uplink and tx acknowledgement frames.
package events

import "github.com/brocaar/lorawan"

// Connection is emitted when a station registers or releases its Mux
// session.
type Connection struct {
	GatewayID lorawan.EUI64

	// Connected is false when the session has been closed.
	Connected bool

	// RemoteAddr of the station websocket.
	RemoteAddr string
}
