// Package eventbus implements the process-wide fan-out channel between the
// notification store and streaming connections.
//
// Publish serializes the event payload exactly once and delivers the
// envelope synchronously to every listener in registration order. Listener
// panics are caught and logged so one faulty consumer never starves the
// rest.
//
//	bus := eventbus.New()
//	unsubscribe := bus.Subscribe(func(ev eventbus.Event) {
//		// write ev.Payload to a transport
//	})
//	defer unsubscribe()
//
//	bus.Publish("~/projects/api", notify.EventUpdated, n)
package eventbus
