package livesync

import "github.com/m-saito/nsbuild/internal/eventbus"

// SubscribeRemoteEvents wires an eventbus.Client's published file
// events into c.HandlePartialSync, so a file watcher running in a
// separate process can drive the same partial-sync path as an
// in-process watcher. The returned unsubscribe func stops delivery.
func (c *Coordinator) SubscribeRemoteEvents(bus *eventbus.Client) (func() error, error) {
	return bus.SubscribeFileEvents(func(fe eventbus.FileEvent) {
		ev, ok := fromWireEvent(fe)
		if !ok {
			c.logger.Warn("discarding file event with unknown kind", "path", fe.Path, "kind", fe.Kind)
			return
		}
		if err := c.HandlePartialSync(ev); err != nil {
			c.logger.Error("handling remote file event", "path", fe.Path, "err", err)
		}
	})
}

func fromWireEvent(fe eventbus.FileEvent) (Event, bool) {
	switch fe.Kind {
	case "add":
		return Event{Path: fe.Path, Kind: EventAdd}, true
	case "change":
		return Event{Path: fe.Path, Kind: EventChange}, true
	case "unlink":
		return Event{Path: fe.Path, Kind: EventUnlink}, true
	default:
		return Event{}, false
	}
}
