package runtime

import (
	"time"

	"github.com/neatsys-bench/neatcore/identity"
	"github.com/neatsys-bench/neatcore/message"
	"github.com/neatsys-bench/neatcore/timer"
)

// Context is the handle a Receiver callback uses to act: send
// messages, set/cancel timers, and read the current time and local
// identity. Dispatch constructs one fresh Context per callback
// invocation; it must not be retained by the Receiver past the call
// that received it. This is a documented hazard, not one the type
// system forbids (see spec design notes) — a Receiver that stores a
// *Context and calls into it later will observe whichever Dispatch
// state was live at the time of that later call, not a frozen
// snapshot of the call that handed it out.
type Context struct {
	d *Dispatch
}

// SendTo sends env to the peer identified by idx.
func (c *Context) SendTo(idx identity.Index, env message.Envelope) error {
	return c.d.sendTo(idx, env)
}

// Broadcast sends env to every participant except self.
func (c *Context) Broadcast(env message.Envelope) {
	c.d.broadcast(env)
}

// Loopback delivers env to the local Dispatch through the normal
// ingress path, as though it had arrived over the network from self.
func (c *Context) Loopback(env message.Envelope) {
	c.d.loopback(env)
}

// SetTimer arms a one-shot timer firing after d, carrying token, and
// returns its ID.
func (c *Context) SetTimer(d time.Duration, token any) timer.ID {
	return c.d.setTimer(d, token)
}

// UnsetTimer cancels a previously armed timer. Cancelling an
// already-fired or unknown ID is a no-op.
func (c *Context) UnsetTimer(id timer.ID) {
	c.d.unsetTimer(id)
}

// Now returns the Dispatch's current time, via its configured Clock.
func (c *Context) Now() time.Time {
	return c.d.clock.Now()
}

// Self returns the local participant's identity index.
func (c *Context) Self() identity.Index {
	return c.d.table.Self()
}
