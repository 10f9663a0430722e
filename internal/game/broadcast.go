package game

// Broadcaster delivers named events to connections. Implementations must
// not block the caller; the engine invokes them from its own goroutine.
type Broadcaster interface {
	// Send delivers to a single connection.
	Send(connID, event string, data any)
	// Broadcast delivers to every connection except the one named by except
	// (empty for all).
	Broadcast(event string, data any, except string)
	// BroadcastLatest delivers full-state frames that supersede earlier ones.
	// Slow connections may drop them instead of queueing.
	BroadcastLatest(event string, data any)
}

type nopBroadcaster struct{}

func (nopBroadcaster) Send(string, string, any)      {}
func (nopBroadcaster) Broadcast(string, any, string) {}
func (nopBroadcaster) BroadcastLatest(string, any)   {}
