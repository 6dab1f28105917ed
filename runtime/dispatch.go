package runtime

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/neatsys-bench/neatcore/crypto"
	"github.com/neatsys-bench/neatcore/identity"
	"github.com/neatsys-bench/neatcore/ingress"
	"github.com/neatsys-bench/neatcore/ingress/transport"
	"github.com/neatsys-bench/neatcore/message"
	"github.com/neatsys-bench/neatcore/timer"
)

// state values for Dispatch's atomic lifecycle flag.
const (
	stateIdle int32 = iota
	stateRunning
	stateStopped
)

// fallbackPoll bounds how long Run's select ever blocks with no armed
// timer or pace deadline, so a Stop() arriving between ingress items is
// never left waiting indefinitely.
const fallbackPoll = 200 * time.Millisecond

// Config bundles everything a Dispatch needs beyond its Receiver.
type Config struct {
	Table     *identity.Table
	Manager   *crypto.Manager
	Transport transport.Transport
	Registry  *message.Registry
	Codec     message.Codec
	Clock     Clock
	MinPace   time.Duration
	PaceSeed  time.Duration

	// LocalX25519 is required only when the identity table contains any
	// KeyTypeHMACPairwise member; Dispatch uses it to re-derive the
	// pairwise MAC key per peer.
	LocalX25519 crypto.KeyPair

	Logger  Logger
	Metrics DropRecorder
}

// Dispatch drives one Receiver's event loop: it owns the ingress
// queue, the timer wheel, and the transport, and is the single
// goroutine that ever calls into the Receiver. Everything else
// (transport reads, egress writes) may run concurrently with the
// dispatch loop, but Receiver callbacks themselves are always
// sequential and single-threaded, matching the two-OS-thread model:
// one goroutine reads off the wire into the ingress Queue, and this
// loop is the other.
type Dispatch struct {
	receiver Receiver

	table    *identity.Table
	mgr      *crypto.Manager
	tr       transport.Transport
	registry *message.Registry
	codec    message.Codec
	clock    Clock

	localX25519 crypto.KeyPair

	queue *ingress.Queue
	wheel *timer.Wheel
	pace  *paceState

	logger  Logger
	metrics DropRecorder

	state   int32
	stopped chan struct{}
}

// New constructs a Dispatch for receiver from cfg. It does not start
// the event loop; call Run to do that.
func New(receiver Receiver, cfg Config) (*Dispatch, error) {
	if cfg.Table == nil {
		return nil, fmt.Errorf("runtime: Config.Table is required")
	}
	if cfg.Manager == nil {
		return nil, fmt.Errorf("runtime: Config.Manager is required")
	}
	if cfg.Transport == nil {
		return nil, fmt.Errorf("runtime: Config.Transport is required")
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("runtime: Config.Registry is required")
	}

	codec := cfg.Codec
	if codec == nil {
		codec = message.NewBinaryCodec()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = SystemClock{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = NopLogger{}
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = NopDropRecorder{}
	}
	minPace := cfg.MinPace
	if minPace <= 0 {
		minPace = time.Millisecond
	}

	return &Dispatch{
		receiver:    receiver,
		table:       cfg.Table,
		mgr:         cfg.Manager,
		tr:          cfg.Transport,
		registry:    cfg.Registry,
		codec:       codec,
		clock:       clock,
		localX25519: cfg.LocalX25519,
		queue:       ingress.NewQueue(),
		wheel:       timer.NewWheel(),
		pace:        newPaceState(minPace, cfg.PaceSeed),
		logger:      logger,
		metrics:     metrics,
		stopped:     make(chan struct{}),
	}, nil
}

// State reports the Dispatch's current lifecycle state.
func (d *Dispatch) State() string {
	switch atomic.LoadInt32(&d.state) {
	case stateRunning:
		return "running"
	case stateStopped:
		return "stopped"
	default:
		return "idle"
	}
}

// Stop signals Run's loop to exit after its current iteration. Safe to
// call from any goroutine, any number of times.
func (d *Dispatch) Stop() {
	if atomic.CompareAndSwapInt32(&d.state, stateRunning, stateStopped) {
		close(d.stopped)
	}
}

// Run is the dispatch loop: it services at most one event per
// iteration — a due timer, then a due pace interval, then one ingress
// item — falling back to a bounded select when none is ready. It
// blocks until ctx is cancelled, Stop is called, or the Receiver
// panics. A Receiver panic is recovered here (errgroup does not
// recover goroutine panics on its own) and converted into the
// returned error so the caller sees a clean abort rather than a
// crashed process; the externally visible effect — this Dispatch
// instance never makes progress again — matches an unrecovered panic.
func (d *Dispatch) Run(ctx context.Context) (err error) {
	if !atomic.CompareAndSwapInt32(&d.state, stateIdle, stateRunning) {
		return fmt.Errorf("runtime: Dispatch already run")
	}

	defer func() {
		if r := recover(); r != nil {
			d.logger.Fatal("dispatch: receiver panicked", "panic", r)
			err = fmt.Errorf("runtime: receiver panicked: %v", r)
		}
		atomic.StoreInt32(&d.state, stateStopped)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-d.stopped:
			return nil
		default:
		}

		now := d.clock.Now()

		if id, token, ok := d.wheel.Poll(now); ok {
			d.handleTimer(id, token)
			continue
		}

		if d.pace.due(now) {
			d.handlePace(now)
			continue
		}

		if item, ok := d.queue.Pop(); ok {
			d.handleIngress(now, item)
			continue
		}

		if d.waitForWork(ctx) {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

// RunWithTransport is the production entry point realizing the
// two-OS-thread model (spec §5): one goroutine runs the transport
// reader, pushing datagrams into this Dispatch's ingress queue, the
// other runs the dispatch loop itself. errgroup.WithContext ties their
// lifetimes together — either one returning (cleanly or with an error)
// cancels the shared context and Wait returns the first non-nil error,
// so a transport I/O failure stops the dispatch loop and a Receiver
// panic (surfaced as Run's returned error) stops the reader.
func (d *Dispatch) RunWithTransport(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	runCtx, cancel := context.WithCancel(gctx)
	defer cancel()
	g.Go(func() error { defer cancel(); return d.tr.Run(runCtx, d.queue) })
	g.Go(func() error { defer cancel(); return d.Run(runCtx) })
	return g.Wait()
}

// waitForWork blocks until the next event might be ready: ctx
// cancellation, an explicit Stop, a queue notification, or the
// earliest known timer/pace deadline (bounded by fallbackPoll so Stop
// is never missed for long). Returns true if the caller should return
// from Run immediately (Stop or ctx cancellation was observed).
func (d *Dispatch) waitForWork(ctx context.Context) bool {
	wait := fallbackPoll
	now := d.clock.Now()

	if deadline, ok := d.wheel.NextDeadline(); ok {
		if until := deadline.Sub(now); until < wait {
			wait = until
		}
	}
	if d.pace.armed {
		if until := d.pace.nextDeadline.Sub(now); until < wait {
			wait = until
		}
	}
	if wait < 0 {
		wait = 0
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return true
	case <-d.stopped:
		return true
	case <-d.queue.Notify():
		return false
	case <-timer.C:
		return false
	}
}

func (d *Dispatch) handleTimer(id timer.ID, token any) {
	start := d.clock.Now()
	ctx := &Context{d: d}
	d.receiver.OnTimer(ctx, token)
	d.pace.observe(d.clock.Now().Sub(start))
	_ = id
}

func (d *Dispatch) handlePace(now time.Time) {
	if qd, ok := d.metrics.(queueDepthObserver); ok {
		qd.ObserveQueueDepth(d.queue.Len())
	}
	if d.pace.armed {
		if pi, ok := d.metrics.(paceIntervalObserver); ok {
			pi.ObservePaceInterval(now.Sub(d.pace.lastFire))
		}
	}
	d.pace.lastFire = now

	if pa, ok := d.receiver.(PaceAware); ok {
		ctx := &Context{d: d}
		pa.OnPace(ctx)
	}
	d.pace.rearm(now, d.queue.Len())
}

// handleIngress decodes, applies the Receiver's verify policy, and
// delivers one ingress item to the Receiver.
func (d *Dispatch) handleIngress(now time.Time, item ingress.Item) {
	start := now

	// spec §4.6: the next pace is armed on the next ingress arrival,
	// not polled. item has already been popped off d.queue, so the
	// backlog this arrival represents is the remaining queue length
	// plus item itself.
	if !d.pace.armed {
		d.pace.rearm(now, d.queue.Len()+1)
	}

	env, err := message.DecodeMessage(item.Bytes)
	if err != nil {
		d.logger.Warn("dispatch: decode failed", "source", item.Source, "err", err)
		d.metrics.IncDropped("decode")
		return
	}

	policy := d.receiver.VerifyPolicy(env.Kind)

	switch policy.kind {
	case policyDrop:
		d.metrics.IncDropped("policy")
		return

	case policySkip:
		ctx := &Context{d: d}
		d.receiver.OnMessage(ctx, env.Kind, env.Opaque, 0, false)

	case policyVerify:
		payload, err := d.registry.New(env.Kind)
		if err != nil {
			d.logger.Warn("dispatch: unknown kind", "kind", env.Kind, "err", err)
			d.metrics.IncDropped("unknown-kind")
			return
		}
		if err := d.codec.Decode(env.Opaque, payload); err != nil {
			d.logger.Warn("dispatch: payload decode failed", "kind", env.Kind, "err", err)
			d.metrics.IncDropped("decode")
			return
		}
		signable, ok := payload.(message.Signable)
		if !ok {
			d.logger.Warn("dispatch: kind has verify policy but payload is not Signable", "kind", env.Kind)
			d.metrics.IncDropped("policy-mismatch")
			return
		}

		signer := policy.extractor(payload)
		id, ok := d.table.Lookup(signer)
		if !ok {
			d.metrics.IncDropped("unknown-signer")
			return
		}

		verifier, err := d.verifierFor(id)
		if err != nil {
			d.logger.Warn("dispatch: no verifier for signer", "signer", signer, "err", err)
			d.metrics.IncDropped("no-verifier")
			return
		}

		canonical, err := signable.CanonicalBytes(d.codec)
		if err != nil {
			d.logger.Warn("dispatch: canonical bytes failed", "kind", env.Kind, "err", err)
			d.metrics.IncDropped("decode")
			return
		}
		verifyStart := d.clock.Now()
		verifyErr := verifier.Verify(canonical, signable.Signature())
		if vd, ok := d.metrics.(verifyDurationObserver); ok {
			vd.ObserveVerifyDuration(d.clock.Now().Sub(verifyStart))
		}
		if verifyErr != nil {
			d.metrics.IncDropped("bad-signature")
			return
		}

		ctx := &Context{d: d}
		d.receiver.OnMessage(ctx, env.Kind, env.Opaque, signer, true)
	}

	d.pace.observe(d.clock.Now().Sub(start))
}

func (d *Dispatch) sendTo(idx identity.Index, env message.Envelope) error {
	id, ok := d.table.Lookup(idx)
	if !ok {
		return fmt.Errorf("runtime: unknown identity index %d", idx)
	}
	return d.tr.Send(id.Address, message.EncodeMessage(env))
}

func (d *Dispatch) broadcast(env message.Envelope) {
	bytes := message.EncodeMessage(env)
	d.table.Each(func(id identity.Identity) {
		if err := d.tr.Send(id.Address, bytes); err != nil {
			d.logger.Warn("dispatch: broadcast send failed", "to", id.Address, "err", err)
		}
	})
}

// loopback delivers env to this Dispatch's own ingress queue, as
// though it had arrived over the network from self, skipping the
// transport entirely.
func (d *Dispatch) loopback(env message.Envelope) {
	self := d.table.SelfIdentity()
	d.queue.Push(ingress.Item{
		Source: self.Address,
		Bytes:  message.EncodeMessage(env),
	})
}

func (d *Dispatch) setTimer(dur time.Duration, token any) timer.ID {
	return d.wheel.Set(d.clock.Now(), dur, token)
}

func (d *Dispatch) unsetTimer(id timer.ID) {
	d.wheel.Cancel(id)
}
