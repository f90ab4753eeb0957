// Package tx implements the transmitter half of the link-layer protocol
// engine: idle/status/data/control symbol selection, the unacknowledged
// window, and per-ackID retransmission timeouts.
package tx

import (
	"fmt"
	"time"

	"github.com/mfkiwl/OpenRIO/diagnostics"
	"github.com/mfkiwl/OpenRIO/packet"
	"github.com/mfkiwl/OpenRIO/queue"
	"github.com/mfkiwl/OpenRIO/rx"
	"github.com/mfkiwl/OpenRIO/wire"
)

// State is the transmitter's lifecycle state. The mailbox states
// (SEND_PACKET_RETRY, SEND_PACKET_NOT_ACCEPTED, SEND_LINK_RESPONSE) are
// not persistent states here; they are one-shot pending emissions
// layered on top of whichever state they interrupt.
type State int

const (
	Uninitialized State = iota
	PortInitialized
	LinkInitialized
	OutputRetryStopped
	OutputErrorStopped
)

// String names the state for logging.
func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case PortInitialized:
		return "port_initialized"
	case LinkInitialized:
		return "link_initialized"
	case OutputRetryStopped:
		return "output_retry_stopped"
	case OutputErrorStopped:
		return "output_error_stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// AckSource is the slice of the receiver's state the transmitter polls
// each GetSymbol call: the piggyback-ack latch, the local inbound queue's
// free-slot count advertised to the peer as buf_status, and the error
// cause to quote in a tx-initiated LINK_REQUEST. *rx.Machine satisfies it.
type AckSource interface {
	RxAckIDAcked() (ackID uint8, pending bool)
	AckPublished(ackID uint8)
	InboundAvailable() int
	ErrorCause() wire.Cause
}

type frameState int

const (
	frameIdle frameState = iota
	frameStreaming
)

// Machine is the transmitter state machine. It owns no goroutines and
// performs bounded work per GetSymbol/HandleRxEvent call.
type Machine struct {
	queue *queue.Queue
	diag  *diagnostics.Counters

	state State

	statusBurst    int
	statusIdleTail int
	statusSent     int
	idleSent       int

	txAckID       uint8 // oldest unacknowledged ackID
	txAckIDWindow uint8 // next ackID due for (re)transmission
	bufStatus     uint8 // peer's advertised free slots, clamped to 31

	frameState frameState
	frameWords packet.Words
	frameIndex int
	frameAckID uint8

	portTime    time.Time
	portTimeout time.Duration
	txTimeout   [32]time.Time

	pending      pendingKind
	pendingCause wire.Cause
	pendingAckID uint8

	wantLinkRequest bool
	lrCause         wire.Cause

	lastInboundAvail int // most recent AckSource.InboundAvailable() reading, clamped to 31
}

type pendingKind int

const (
	pendingNone pendingKind = iota
	pendingRetry
	pendingNotAccepted
	pendingLinkResponse
	pendingRestart
)

// New returns a transmitter bound to q for outbound packet retrieval and
// diag for counter updates, with the conventional 15-status/15-idle
// bring-up cadence.
func New(q *queue.Queue, diag *diagnostics.Counters) *Machine {
	return &Machine{
		queue:          q,
		diag:           diag,
		statusBurst:    15,
		statusIdleTail: 15,
		bufStatus:      31,
	}
}

// SetStatusCadence overrides the bring-up STATUS burst/idle-tail counts,
// for tests that want to accelerate past PORT_INITIALIZED.
func (m *Machine) SetStatusCadence(burst, idleTail int) {
	m.statusBurst = burst
	m.statusIdleTail = idleTail
}

// State returns the current transmitter state.
func (m *Machine) State() State { return m.state }

// PortSetTime updates the transmitter's notion of the current port time,
// used for retransmission timeout comparisons.
func (m *Machine) PortSetTime(t time.Time) { m.portTime = t }

// PortSetTimeout sets the retransmission timeout duration.
func (m *Machine) PortSetTimeout(d time.Duration) { m.portTimeout = d }

// PortSetStatus drives the UNINITIALIZED <-> PORT_INITIALIZED edge.
// true requests bring-up; false forces a hard reset.
func (m *Machine) PortSetStatus(up bool) {
	if !up {
		m.reset(Uninitialized)
		return
	}
	if m.state == Uninitialized {
		m.reset(PortInitialized)
	}
}

func (m *Machine) reset(to State) {
	m.state = to
	m.statusSent = 0
	m.idleSent = 0
	m.txAckID = 0
	m.txAckIDWindow = 0
	m.bufStatus = 31
	m.frameState = frameIdle
	m.frameWords = nil
	m.frameIndex = 0
	m.pending = pendingNone
	m.wantLinkRequest = false
	m.queue.WindowReset()
}

// HandleRxEvent applies a receiver-produced Event: the inter-machine
// mailbox collapsed here to a direct call from the engine facade right
// after rx.AddSymbol (or rx.PacketConsumed) returns.
func (m *Machine) HandleRxEvent(ev rx.Event) {
	switch ev.Command {
	case rx.SendRetry:
		m.pending = pendingRetry
		m.pendingAckID = ev.AckID
	case rx.SendNotAccepted:
		m.pending = pendingNotAccepted
		m.pendingCause = ev.Cause
		m.pendingAckID = ev.AckID
	case rx.SendLinkResponse:
		m.pending = pendingLinkResponse
		m.pendingAckID = ev.AckID
	case rx.SendRestart:
		m.pending = pendingRestart
		m.pendingAckID = ev.AckID
	case rx.ReleaseOutputRetry:
		if m.state == OutputRetryStopped {
			m.state = LinkInitialized
		}
	}

	if ev.Peer != nil {
		m.handlePeerAck(*ev.Peer)
	}
}

func (m *Machine) handlePeerAck(p rx.PeerAck) {
	switch p.Kind {
	case wire.PacketAccepted:
		if p.AckID != m.txAckID {
			m.diag.IncOutboundErrorPacketAccepted()
			m.requestResync(wire.CauseUnexpectedAckID)
			return
		}
		if err := m.queue.PopFront(); err == nil {
			latency := m.portTime.Sub(m.txTimeout[m.txAckID])
			if latency > 0 {
				m.diag.SetOutboundLinkLatencyMax(uint32(latency.Milliseconds()))
			}
		}
		m.diag.IncOutboundComplete()
		m.txAckID = (m.txAckID + 1) & 31
		m.bufStatus = clamp31(p.BufStatus)
		if m.state == OutputErrorStopped || m.state == OutputRetryStopped {
			m.state = LinkInitialized
		}

	case wire.PacketRetry:
		if p.AckID != m.txAckID {
			m.diag.IncOutboundErrorPacketRetry()
			m.requestResync(wire.CauseUnexpectedAckID)
			return
		}
		m.txAckIDWindow = m.txAckID
		m.queue.WindowReset()
		m.state = OutputRetryStopped
		m.diag.IncOutboundRetry()

	case wire.PacketNotAccepted:
		m.requestResync(p.Cause)

	case wire.LinkResponse:
		if m.state != OutputErrorStopped {
			return
		}
		m.txAckIDWindow = p.AckID
		m.queue.WindowReset()
		m.diag.IncOutboundRetry()
		m.state = LinkInitialized
	}
}

func (m *Machine) requestResync(cause wire.Cause) {
	m.state = OutputErrorStopped
	m.wantLinkRequest = true
	m.lrCause = cause
}

func clamp31(v uint8) uint8 {
	if v > 31 {
		return 31
	}
	return v
}

// dist32 returns the forward modular distance from a to b over a 32-value
// ackID space.
func dist32(a, b uint8) uint8 {
	if b >= a {
		return b - a
	}
	return 32 - a + b
}

// GetSymbol chooses exactly one symbol to emit, in priority order:
// a one-shot receiver-requested mailbox symbol, a piggyback ack, a
// resync or retransmission-timeout request, STATUS bring-up, data, or
// idle.
func (m *Machine) GetSymbol(ack AckSource) wire.Symbol {
	if sym, ok := m.emitPending(); ok {
		return sym
	}
	if sym, ok := m.emitPiggybackAck(ack); ok {
		return sym
	}
	if sym, ok := m.emitResyncOrTimeout(ack); ok {
		return sym
	}
	if m.state == PortInitialized {
		return m.emitStatus(ack)
	}
	if m.state == LinkInitialized {
		if sym, ok := m.emitData(); ok {
			return sym
		}
	}
	return wire.IdleSymbol
}

func (m *Machine) emitPending() (wire.Symbol, bool) {
	switch m.pending {
	case pendingRetry:
		m.pending = pendingNone
		// The inbound queue was full at SOP, so buf_status is 0 by
		// construction; no need to consult AckSource for it.
		return wire.AckSymbol(wire.PacketRetry, m.pendingAckID, 0), true
	case pendingNotAccepted:
		m.pending = pendingNone
		return wire.NotAcceptedSymbol(m.pendingAckID, m.pendingCause), true
	case pendingLinkResponse:
		m.pending = pendingNone
		return wire.AckSymbol(wire.LinkResponse, m.pendingAckID, uint8(m.lastInboundAvail)), true
	case pendingRestart:
		m.pending = pendingNone
		return wire.FrameSymbol(wire.RestartFromRetry, m.pendingAckID), true
	}
	return wire.Symbol{}, false
}

func clampAvail(n int) int {
	if n > 31 {
		return 31
	}
	if n < 0 {
		return 0
	}
	return n
}

func (m *Machine) emitPiggybackAck(ack AckSource) (wire.Symbol, bool) {
	ackID, pending := ack.RxAckIDAcked()
	if !pending {
		return wire.Symbol{}, false
	}
	ack.AckPublished(ackID)
	m.lastInboundAvail = clampAvail(ack.InboundAvailable())
	return wire.AckSymbol(wire.PacketAccepted, ackID, uint8(m.lastInboundAvail)), true
}

func (m *Machine) emitResyncOrTimeout(ack AckSource) (wire.Symbol, bool) {
	if m.wantLinkRequest {
		m.wantLinkRequest = false
		return wire.EncodeControl(wire.Fields{STYPE0: wire.StypeStatus, Param1: uint8(m.lrCause), STYPE1: wire.LinkRequest}), true
	}

	if m.state != LinkInitialized && m.state != OutputRetryStopped {
		return wire.Symbol{}, false
	}
	if m.queue.WindowUsed() == 0 {
		return wire.Symbol{}, false
	}
	if m.portTimeout <= 0 {
		return wire.Symbol{}, false
	}
	if m.portTime.Sub(m.txTimeout[m.txAckID]) <= m.portTimeout {
		return wire.Symbol{}, false
	}

	m.diag.IncOutboundErrorTimeout()
	m.state = OutputErrorStopped
	cause := ack.ErrorCause()
	return wire.EncodeControl(wire.Fields{STYPE0: wire.StypeStatus, Param1: uint8(cause), STYPE1: wire.LinkRequest}), true
}

func (m *Machine) emitStatus(ack AckSource) wire.Symbol {
	if m.statusSent < m.statusBurst {
		m.statusSent++
		m.lastInboundAvail = clampAvail(ack.InboundAvailable())
		return wire.AckSymbol(wire.StypeStatus, m.txAckID, uint8(m.lastInboundAvail))
	}
	if m.idleSent < m.statusIdleTail {
		m.idleSent++
		if m.idleSent == m.statusIdleTail {
			m.state = LinkInitialized
		}
		return wire.IdleSymbol
	}
	m.state = LinkInitialized
	return wire.IdleSymbol
}

func (m *Machine) emitData() (wire.Symbol, bool) {
	if m.frameState == frameStreaming {
		if m.frameIndex < len(m.frameWords) {
			w := m.frameWords[m.frameIndex]
			m.frameIndex++
			return wire.NewData(w), true
		}
		m.frameState = frameIdle
		m.txTimeout[m.frameAckID] = m.portTime
		m.queue.WindowAdvance()
		m.txAckIDWindow = (m.txAckIDWindow + 1) & 31
		return wire.FrameSymbol(wire.EndOfPacket, m.frameAckID), true
	}

	limit := clamp31(m.bufStatus)
	if dist32(m.txAckID, m.txAckIDWindow) >= limit {
		return wire.Symbol{}, false
	}
	words, err := m.queue.WindowPacket()
	if err != nil {
		return wire.Symbol{}, false
	}

	m.frameWords = words
	m.frameIndex = 0
	m.frameAckID = m.txAckIDWindow
	m.frameState = frameStreaming
	return wire.FrameSymbol(wire.StartOfPacket, m.frameAckID), true
}
