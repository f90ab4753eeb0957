// Package diagnostics holds the fixed set of monotonic counters the engine
// exposes to its host, plus a Prometheus collector over them for hosts
// that want them scraped rather than polled.
package diagnostics

import "sync/atomic"

// Counters is the fixed diagnostic counter set. Every field saturates at
// math.MaxUint32 instead of wrapping. Values are updated with atomic
// operations so a Collector can be scraped from a goroutine other than the
// one driving the stack without additional locking.
type Counters struct {
	InboundComplete               uint32
	InboundRetry                  uint32
	InboundErrorControlCRC        uint32
	InboundErrorPacketAckID       uint32
	InboundErrorPacketCRC         uint32
	InboundErrorIllegalCharacter  uint32
	InboundErrorGeneral           uint32
	InboundErrorPacketUnsupported uint32

	OutboundComplete        uint32
	OutboundRetry            uint32
	OutboundLinkLatencyMax   uint32
	OutboundErrorTimeout     uint32
	OutboundErrorPacketAccepted uint32
	OutboundErrorPacketRetry    uint32

	PartnerLinkRequest           uint32
	PartnerErrorControlCRC       uint32
	PartnerErrorPacketAckID      uint32
	PartnerErrorPacketCRC        uint32
	PartnerErrorIllegalCharacter uint32
	PartnerErrorGeneral          uint32
}

const maxUint32 = ^uint32(0)

// incSaturating atomically adds one to *counter, holding at maxUint32
// instead of wrapping around to zero.
func incSaturating(counter *uint32) {
	for {
		old := atomic.LoadUint32(counter)
		if old == maxUint32 {
			return
		}
		if atomic.CompareAndSwapUint32(counter, old, old+1) {
			return
		}
	}
}

// setMaxSaturating atomically raises *counter to v if v is larger.
func setMaxSaturating(counter *uint32, v uint32) {
	for {
		old := atomic.LoadUint32(counter)
		if v <= old {
			return
		}
		if atomic.CompareAndSwapUint32(counter, old, v) {
			return
		}
	}
}

func (c *Counters) IncInboundComplete()               { incSaturating(&c.InboundComplete) }
func (c *Counters) IncInboundRetry()                  { incSaturating(&c.InboundRetry) }
func (c *Counters) IncInboundErrorControlCRC()        { incSaturating(&c.InboundErrorControlCRC) }
func (c *Counters) IncInboundErrorPacketAckID()       { incSaturating(&c.InboundErrorPacketAckID) }
func (c *Counters) IncInboundErrorPacketCRC()         { incSaturating(&c.InboundErrorPacketCRC) }
func (c *Counters) IncInboundErrorIllegalCharacter()  { incSaturating(&c.InboundErrorIllegalCharacter) }
func (c *Counters) IncInboundErrorGeneral()           { incSaturating(&c.InboundErrorGeneral) }
func (c *Counters) IncInboundErrorPacketUnsupported() { incSaturating(&c.InboundErrorPacketUnsupported) }

func (c *Counters) IncOutboundComplete()           { incSaturating(&c.OutboundComplete) }
func (c *Counters) IncOutboundRetry()              { incSaturating(&c.OutboundRetry) }
func (c *Counters) SetOutboundLinkLatencyMax(v uint32) { setMaxSaturating(&c.OutboundLinkLatencyMax, v) }
func (c *Counters) IncOutboundErrorTimeout()          { incSaturating(&c.OutboundErrorTimeout) }
func (c *Counters) IncOutboundErrorPacketAccepted()   { incSaturating(&c.OutboundErrorPacketAccepted) }
func (c *Counters) IncOutboundErrorPacketRetry()      { incSaturating(&c.OutboundErrorPacketRetry) }

func (c *Counters) IncPartnerLinkRequest()           { incSaturating(&c.PartnerLinkRequest) }
func (c *Counters) IncPartnerErrorControlCRC()       { incSaturating(&c.PartnerErrorControlCRC) }
func (c *Counters) IncPartnerErrorPacketAckID()      { incSaturating(&c.PartnerErrorPacketAckID) }
func (c *Counters) IncPartnerErrorPacketCRC()        { incSaturating(&c.PartnerErrorPacketCRC) }
func (c *Counters) IncPartnerErrorIllegalCharacter() { incSaturating(&c.PartnerErrorIllegalCharacter) }
func (c *Counters) IncPartnerErrorGeneral()          { incSaturating(&c.PartnerErrorGeneral) }

// Snapshot is a point-in-time copy of every counter, handy for assertions
// and for the Collector.
type Snapshot = Counters

// Load returns a Snapshot of the current counter values.
func (c *Counters) Load() Snapshot {
	return Snapshot{
		InboundComplete:               atomic.LoadUint32(&c.InboundComplete),
		InboundRetry:                  atomic.LoadUint32(&c.InboundRetry),
		InboundErrorControlCRC:        atomic.LoadUint32(&c.InboundErrorControlCRC),
		InboundErrorPacketAckID:       atomic.LoadUint32(&c.InboundErrorPacketAckID),
		InboundErrorPacketCRC:         atomic.LoadUint32(&c.InboundErrorPacketCRC),
		InboundErrorIllegalCharacter:  atomic.LoadUint32(&c.InboundErrorIllegalCharacter),
		InboundErrorGeneral:           atomic.LoadUint32(&c.InboundErrorGeneral),
		InboundErrorPacketUnsupported: atomic.LoadUint32(&c.InboundErrorPacketUnsupported),
		OutboundComplete:              atomic.LoadUint32(&c.OutboundComplete),
		OutboundRetry:                 atomic.LoadUint32(&c.OutboundRetry),
		OutboundLinkLatencyMax:        atomic.LoadUint32(&c.OutboundLinkLatencyMax),
		OutboundErrorTimeout:          atomic.LoadUint32(&c.OutboundErrorTimeout),
		OutboundErrorPacketAccepted:   atomic.LoadUint32(&c.OutboundErrorPacketAccepted),
		OutboundErrorPacketRetry:      atomic.LoadUint32(&c.OutboundErrorPacketRetry),
		PartnerLinkRequest:            atomic.LoadUint32(&c.PartnerLinkRequest),
		PartnerErrorControlCRC:        atomic.LoadUint32(&c.PartnerErrorControlCRC),
		PartnerErrorPacketAckID:       atomic.LoadUint32(&c.PartnerErrorPacketAckID),
		PartnerErrorPacketCRC:         atomic.LoadUint32(&c.PartnerErrorPacketCRC),
		PartnerErrorIllegalCharacter:  atomic.LoadUint32(&c.PartnerErrorIllegalCharacter),
		PartnerErrorGeneral:           atomic.LoadUint32(&c.PartnerErrorGeneral),
	}
}
