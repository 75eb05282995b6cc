package basicstation

import (
	"errors"
	"sync"

	"github.com/brocaar/lorawan"

	"github.com/brocaar/basicstation-testserver/internal/backend/events"
)

var (
	errGatewayDoesNotExist = errors.New("gateway does not exist")
	errGatewayConnected    = errors.New("gateway is already connected")
)

// gateways holds the sessions of the connected gateways.
type gateways struct {
	sync.RWMutex
	gateways map[lorawan.EUI64]*session

	connectionEventFunc func(events.Connection)
}

func (g *gateways) get(id lorawan.EUI64) (*session, error) {
	g.RLock()
	defer g.RUnlock()

	s, ok := g.gateways[id]
	if !ok {
		return nil, errGatewayDoesNotExist
	}
	return s, nil
}

func (g *gateways) set(id lorawan.EUI64, s *session) error {
	g.Lock()
	if _, ok := g.gateways[id]; ok {
		g.Unlock()
		return errGatewayConnected
	}
	g.gateways[id] = s
	f := g.connectionEventFunc
	g.Unlock()

	// the callback may block on the integration, it runs outside the lock
	if f != nil {
		f(events.Connection{
			GatewayID:  id,
			Connected:  true,
			RemoteAddr: s.remoteAddr,
		})
	}

	return nil
}

// remove removes the session, unless the gateway has reconnected in the
// meantime.
func (g *gateways) remove(id lorawan.EUI64, s *session) {
	g.Lock()
	if cur, ok := g.gateways[id]; !ok || cur != s {
		g.Unlock()
		return
	}
	delete(g.gateways, id)
	f := g.connectionEventFunc
	g.Unlock()

	if f != nil {
		f(events.Connection{
			GatewayID:  id,
			Connected:  false,
			RemoteAddr: s.remoteAddr,
		})
	}
}

func (g *gateways) all() []*session {
	g.RLock()
	defer g.RUnlock()

	out := make([]*session, 0, len(g.gateways))
	for _, s := range g.gateways {
		out = append(out, s)
	}
	return out
}
