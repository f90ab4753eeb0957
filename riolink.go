// Package riolink is the engine facade: a single opaque handle pairing a
// receiver and a transmitter state machine over their own ring queues.
// Host code drives it with PortAddSymbol/PortGetSymbol on the wire side
// and SetOutboundPacket/GetInboundPacket on the application side;
// everything else is diagnostics and configuration.
package riolink

import (
	"time"

	"github.com/charmbracelet/log"
	"github.com/rs/xid"

	"github.com/mfkiwl/OpenRIO/diagnostics"
	"github.com/mfkiwl/OpenRIO/packet"
	"github.com/mfkiwl/OpenRIO/queue"
	"github.com/mfkiwl/OpenRIO/rx"
	"github.com/mfkiwl/OpenRIO/tx"
	"github.com/mfkiwl/OpenRIO/wire"
)

// Stack is one endpoint of the link-layer engine: a plain value owned by
// the caller, carrying no process-wide state, so a host can run any
// number of Stacks concurrently without sharing or locking anything
// between them.
type Stack struct {
	id xid.ID

	rxQueue queue.Queue
	txQueue queue.Queue
	rx      *rx.Machine
	tx      *tx.Machine
	diag    diagnostics.Counters

	log *log.Logger

	linkWasUp bool // edge-detects LINK_INITIALIZED transitions for logging
}

// Open allocates both ring queues and both state machines for a new Stack.
// The buffers backing each queue are sized from cfg and owned by the Stack;
// after Open, the only allocation on the symbol/packet paths is the copy
// GetInboundPacket returns.
func Open(cfg Config) (*Stack, error) {
	if err := cfg.Check(); err != nil {
		return nil, err
	}

	s := &Stack{id: xid.New()}
	s.log = log.Default().With("stack", s.id.String())

	s.rxQueue.Init(make([]uint32, cfg.InboundSlots*packet.SlotWords))
	s.txQueue.Init(make([]uint32, cfg.OutboundSlots*packet.SlotWords))

	s.rx = rx.New(&s.rxQueue, &s.diag)
	s.tx = tx.New(&s.txQueue, &s.diag)
	s.tx.SetStatusCadence(cfg.StatusBurst, cfg.StatusIdleTail)
	s.tx.PortSetTimeout(cfg.PortTimeout)

	return s, nil
}

// PortSetTime updates the stack's notion of the current port time, used by
// the transmitter's retransmission timeout comparisons.
func (s *Stack) PortSetTime(t time.Time) { s.tx.PortSetTime(t) }

// PortSetTimeout overrides the retransmission timeout set at Open.
func (s *Stack) PortSetTimeout(d time.Duration) { s.tx.PortSetTimeout(d) }

// PortSetStatus drives both machines' UNINITIALIZED <-> PORT_INITIALIZED
// edge. true requests bring-up; false forces a hard link drop.
func (s *Stack) PortSetStatus(up bool) {
	s.rx.PortSetStatus(up)
	s.tx.PortSetStatus(up)
	if !up {
		s.log.Info("port down, link reset")
		s.linkWasUp = false
	} else {
		s.log.Info("port up, awaiting status handshake")
	}
}

// PortAddSymbol feeds one inbound symbol to the receiver, forwarding any
// resulting cross-machine signal to the transmitter.
func (s *Stack) PortAddSymbol(sym wire.Symbol) {
	ev := s.rx.AddSymbol(sym)
	s.tx.HandleRxEvent(ev)
	s.logTransition()
}

// PortGetSymbol asks the transmitter to choose exactly one symbol to emit.
func (s *Stack) PortGetSymbol() wire.Symbol {
	sym := s.tx.GetSymbol(s.rx)
	s.logTransition()
	return sym
}

func (s *Stack) logTransition() {
	up := s.GetLinkIsInitialized()
	if up && !s.linkWasUp {
		s.log.Info("link initialized")
	} else if !up && s.linkWasUp {
		s.log.Warn("link dropped out of initialized state", "rx_state", s.rx.State(), "tx_state", s.tx.State())
	}
	s.linkWasUp = up
}

// SetOutboundPacket enqueues an application packet for transmission. It
// fails with queue.ErrFull when the outbound queue has no free slot, or
// packet.ErrTooLong when p exceeds packet.SizeMax words.
func (s *Stack) SetOutboundPacket(p packet.Words) error {
	return s.txQueue.PushBack(p)
}

// GetInboundPacket returns the oldest undelivered inbound packet and
// removes it from the inbound queue. It fails with queue.ErrEmpty when
// nothing has been delivered. Freeing a slot this way can release a
// receiver stalled on a full queue, so the removal is reported back to
// the receiver, which may in turn ask the transmitter to tell the peer
// it may resume.
func (s *Stack) GetInboundPacket() (packet.Words, error) {
	p, err := s.rxQueue.FrontPacket()
	if err != nil {
		return nil, err
	}
	out := make(packet.Words, len(p))
	copy(out, p)
	if err := s.rxQueue.PopFront(); err != nil {
		return nil, err
	}

	ev := s.rx.PacketConsumed()
	s.tx.HandleRxEvent(ev)
	s.logTransition()
	return out, nil
}

// InboundQueueUsed returns the number of undelivered inbound packets.
func (s *Stack) InboundQueueUsed() int { return s.rxQueue.Used() }

// InboundQueueAvailable returns the number of free inbound slots.
func (s *Stack) InboundQueueAvailable() int { return s.rxQueue.Available() }

// OutboundQueueUsed returns the number of outbound packets queued or
// in flight.
func (s *Stack) OutboundQueueUsed() int { return s.txQueue.Used() }

// OutboundQueueAvailable returns the number of free outbound slots.
func (s *Stack) OutboundQueueAvailable() int { return s.txQueue.Available() }

// GetLinkIsInitialized reports whether both the receiver and the
// transmitter have reached LINK_INITIALIZED.
func (s *Stack) GetLinkIsInitialized() bool {
	return s.rx.State() == rx.LinkInitialized && s.tx.State() == tx.LinkInitialized
}

// GetStatus is a deprecated alias for GetLinkIsInitialized, kept for
// callers migrating off the name used by earlier drafts of this facade.
//
// Deprecated: use GetLinkIsInitialized.
func (s *Stack) GetStatus() bool { return s.GetLinkIsInitialized() }

// Diagnostics returns a point-in-time snapshot of every counter.
func (s *Stack) Diagnostics() diagnostics.Snapshot { return s.diag.Load() }

// Collector returns a prometheus.Collector over this Stack's counters,
// labelled with its instance ID.
func (s *Stack) Collector() *diagnostics.Collector {
	return diagnostics.NewCollector(&s.diag, map[string]string{"instance": s.id.String()})
}

// ID returns the Stack's process-unique instance tag.
func (s *Stack) ID() xid.ID { return s.id }
