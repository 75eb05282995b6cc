package basicstation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/brocaar/lorawan"

	"github.com/brocaar/basicstation-testserver/internal/backend/events"
)

func TestGatewaysConnectionEvents(t *testing.T) {
	assert := require.New(t)

	id := lorawan.EUI64{1, 2, 3, 4, 5, 6, 7, 8}
	s := &session{gatewayID: id, remoteAddr: "127.0.0.1:1234"}

	var received []events.Connection
	var lookupErrs []error
	g := gateways{gateways: make(map[lorawan.EUI64]*session)}

	// the callback reads the registry, which must not block
	g.connectionEventFunc = func(ev events.Connection) {
		_, err := g.get(ev.GatewayID)
		lookupErrs = append(lookupErrs, err)
		received = append(received, ev)
	}

	var setErr, dupErr error
	done := make(chan struct{})
	go func() {
		defer close(done)

		setErr = g.set(id, s)
		dupErr = g.set(id, &session{gatewayID: id})

		// a stale session does not remove the registered one
		g.remove(id, &session{gatewayID: id})
		g.remove(id, s)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("connection callback blocked on the gateway registry")
	}

	assert.NoError(setErr)
	assert.Equal(errGatewayConnected, dupErr)
	assert.Equal([]events.Connection{
		{GatewayID: id, Connected: true, RemoteAddr: "127.0.0.1:1234"},
		{GatewayID: id, Connected: false, RemoteAddr: "127.0.0.1:1234"},
	}, received)
	assert.Equal([]error{nil, errGatewayDoesNotExist}, lookupErrs)
	assert.Len(g.all(), 0)
}
