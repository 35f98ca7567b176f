package export

import "sync/atomic"

// Ring is the GPU-visible export stream: a single atomic counter plus
// a bounded message array (spec §4.6). Instrumented shaders call
// Append, the host-side counterpart of the device sequence:
//
//	idx = AtomicIAdd(counter, 1, scope=Device)
//	idx = UMin(idx, limit)
//	Store(messages[idx], v)
//
// Once the counter reaches limit, every further Append is dropped: the
// counter still counts it (the pump reports it as latent overshoot),
// but no record is stored and the records in [0, limit) are left as
// they were.
type Ring struct {
	counter  uint32
	limit    uint32
	messages []Message
}

// NewRing creates a Ring holding up to limit messages.
func NewRing(limit uint32) *Ring {
	return &Ring{limit: limit, messages: make([]Message, limit)}
}

// Append atomically reserves the next slot and writes msg into it.
func (r *Ring) Append(msg Message) {
	if r.limit == 0 {
		atomic.AddUint32(&r.counter, 1)
		return
	}
	idx := atomic.AddUint32(&r.counter, 1) - 1
	if idx >= r.limit {
		return
	}
	r.messages[idx] = msg
}

// snapshotAndReset atomically reads the counter and resets it to 0,
// per the host pump's drain sequence.
func (r *Ring) snapshotAndReset() uint32 {
	return atomic.SwapUint32(&r.counter, 0)
}

// Listener receives decoded messages routed to the feature that owns
// their ExportID (spec §4.5 CollectExports / §4.6 "dispatches the
// record to the owning feature's listener").
type Listener interface {
	CollectExports(Message)
}

// ListenerFunc adapts a function to the Listener interface.
type ListenerFunc func(Message)

func (f ListenerFunc) CollectExports(m Message) { f(m) }

// DrainStats summarizes one Pump.Drain call.
type DrainStats struct {
	Decoded          uint32
	LatentOvershoot  uint32
}

// Pump is the host-side thread draining a Ring: it snapshots, clamps,
// resets the counter, decodes each record, deduplicates, and dispatches
// to feature listeners (spec §4.6).
type Pump struct {
	ring *Ring

	listeners map[ExportID]Listener
	dedup     *Dedup

	exportedMessages uint64
	latentOvershoots uint64
}

// NewPump creates a Pump draining ring.
func NewPump(ring *Ring) *Pump {
	return &Pump{
		ring:      ring,
		listeners: make(map[ExportID]Listener),
		dedup:     NewDedup(),
	}
}

// Register binds a feature's listener to the ExportID it was assigned
// at Install.
func (p *Pump) Register(id ExportID, l Listener) {
	p.listeners[id] = l
}

// Drain performs one pump cycle, routing every decoded, deduplicated
// message to its listener.
func (p *Pump) Drain() DrainStats {
	count := p.ring.snapshotAndReset()
	clamped := count
	var overshoot uint32
	if clamped > p.ring.limit {
		overshoot = clamped - p.ring.limit
		clamped = p.ring.limit
	}
	for i := uint32(0); i < clamped; i++ {
		msg := p.ring.messages[i]
		if !p.dedup.Observe(msg) {
			continue // merged into an existing fingerprint, not re-dispatched
		}
		if l, ok := p.listeners[msg.ExportID]; ok {
			l.CollectExports(msg)
		}
	}
	p.exportedMessages += uint64(clamped)
	p.latentOvershoots += uint64(overshoot)
	return DrainStats{Decoded: clamped, LatentOvershoot: overshoot}
}

// ExportedMessages returns the running total of decoded messages
// across every Drain call.
func (p *Pump) ExportedMessages() uint64 { return p.exportedMessages }

// LatentOvershoots returns the running total of messages discarded by
// the ring's UMin clamp.
func (p *Pump) LatentOvershoots() uint64 { return p.latentOvershoots }

// Dedup exposes the pump's deduplication store (so report aggregation
// can read merged counts without re-decoding).
func (p *Pump) DedupStore() *Dedup { return p.dedup }
