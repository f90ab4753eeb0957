// Package rx implements the receiver half of the link-layer protocol
// engine: inbound symbol reassembly, sequence and CRC validation, the
// acknowledgement latch, and error-recovery signalling toward the
// transmitter.
package rx

import (
	"fmt"

	"github.com/mfkiwl/OpenRIO/diagnostics"
	"github.com/mfkiwl/OpenRIO/packet"
	"github.com/mfkiwl/OpenRIO/queue"
	"github.com/mfkiwl/OpenRIO/wire"
)

// State is the receiver's lifecycle state.
type State int

const (
	Uninitialized State = iota
	PortInitialized
	LinkInitialized
	InputRetryStopped
	InputErrorStopped
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
	case InputRetryStopped:
		return "input_retry_stopped"
	case InputErrorStopped:
		return "input_error_stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// TxCommand is a message dropped into the transmitter's mailbox by the
// receiver: a small set of cross-machine requests standing in for the
// inter-machine flags a combined rx/tx pair would otherwise share.
type TxCommand int

const (
	// None means no cross-machine request is pending.
	None TxCommand = iota
	// SendRetry asks tx to emit PACKET_RETRY once, then resume its
	// prior state. Raised when an inbound SOP arrives with no free
	// inbound slot to receive it into.
	SendRetry
	// SendNotAccepted asks tx to emit PACKET_NOT_ACCEPTED(Cause) once.
	SendNotAccepted
	// SendLinkResponse asks tx to emit LINK_RESPONSE(rx_ackid) once.
	SendLinkResponse
	// SendRestart asks tx to emit RESTART_FROM_RETRY once. Raised when
	// a previously full inbound queue has drained a packet, releasing
	// the peer's stalled transmitter.
	SendRestart
	// ReleaseOutputRetry asks tx to leave OUTPUT_RETRY_STOPPED and
	// resume ordinary transmission; it emits no symbol of its own.
	// Raised when an inbound RESTART_FROM_RETRY tells the local
	// transmitter its own retry request has been serviced.
	ReleaseOutputRetry
)

// PeerAck is forwarded to the transmitter when the receiver decodes a
// control symbol that concerns the local transmitter's outbound window:
// PACKET_ACCEPTED, PACKET_RETRY, PACKET_NOT_ACCEPTED, or LINK_RESPONSE.
type PeerAck struct {
	Kind      wire.STYPE0
	AckID     uint8
	BufStatus uint8
	Cause     wire.Cause // valid when Kind == wire.PacketNotAccepted
}

// Event is the result of processing one inbound symbol: at most one
// cross-machine command for the transmitter, and/or at most one PeerAck.
type Event struct {
	Command TxCommand
	Cause   wire.Cause // valid when Command == SendNotAccepted
	AckID   uint8      // valid for SendRetry, SendNotAccepted, SendLinkResponse, and SendRestart (rx_ackid)
	Peer    *PeerAck
}

// Machine is the receiver state machine. It owns no goroutines and
// performs bounded work per AddSymbol call.
type Machine struct {
	queue *queue.Queue
	diag  *diagnostics.Counters

	state State

	rxAckID          uint8 // expected ackID of next SOP, 0..31
	rxAckIDAcked     uint8 // ackID to publish on next opportunity
	ackPending       bool  // rxAckIDAcked holds an unpublished value
	rxStatusReceived bool
	rxErrorCause     wire.Cause

	receiving bool         // mid-packet: between SOP and EOP
	rxCounter int          // words consumed of the current packet
	rxBuf     packet.Words // scratch accumulation buffer for the current packet
}

// New returns a receiver bound to q for inbound packet storage and diag
// for counter updates. Both must outlive the Machine.
func New(q *queue.Queue, diag *diagnostics.Counters) *Machine {
	return &Machine{queue: q, diag: diag, rxBuf: make(packet.Words, 0, packet.SizeMax)}
}

// State returns the current receiver state.
func (m *Machine) State() State { return m.state }

// RxAckIDAcked reports the ackID pending publication and whether one is
// pending at all, for the transmitter's piggyback-ack check.
func (m *Machine) RxAckIDAcked() (ackID uint8, pending bool) { return m.rxAckIDAcked, m.ackPending }

// AckPublished tells the receiver that ackID has been emitted by the
// transmitter, clearing the pending latch if it still matches.
func (m *Machine) AckPublished(ackID uint8) {
	if m.ackPending && m.rxAckIDAcked == ackID {
		m.ackPending = false
	}
}

// ErrorCause returns the cause recorded for the current INPUT_ERROR_STOPPED
// state.
func (m *Machine) ErrorCause() wire.Cause { return m.rxErrorCause }

// InboundAvailable returns the number of free slots in the inbound ring
// queue, the buf_status the transmitter piggybacks to the peer.
func (m *Machine) InboundAvailable() int { return m.queue.Available() }

// PacketConsumed tells the receiver that the host has just removed a
// packet from the inbound queue, freeing a slot. If a full queue had
// stalled the receiver in INPUT_RETRY_STOPPED, this resumes it and asks
// the transmitter to tell the peer's stalled transmitter it may retry.
func (m *Machine) PacketConsumed() Event {
	if m.state != InputRetryStopped {
		return Event{}
	}
	m.state = LinkInitialized
	return Event{Command: SendRestart, AckID: m.rxAckID}
}

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
	m.rxAckID = 0
	m.rxAckIDAcked = 0
	m.ackPending = false
	m.rxStatusReceived = false
	m.rxErrorCause = wire.CauseReserved
	m.receiving = false
	m.rxCounter = 0
	m.rxBuf = m.rxBuf[:0]
}

// AddSymbol consumes exactly one inbound symbol and returns any
// cross-machine signalling it provokes.
func (m *Machine) AddSymbol(sym wire.Symbol) Event {
	switch sym.Kind {
	case wire.ErrorKind:
		return m.fail(wire.CauseIllegalCharacter)

	case wire.Idle:
		return Event{}

	case wire.DataKind:
		return m.addData(sym.Value)

	case wire.ControlKind:
		f, ok := wire.DecodeControl(sym)
		if !ok {
			m.diag.IncInboundErrorControlCRC()
			if m.state == LinkInitialized {
				return m.fail(wire.CauseControlCRC)
			}
			return Event{}
		}
		return m.addControl(f)

	default:
		m.diag.IncInboundErrorPacketUnsupported()
		return Event{}
	}
}

func (m *Machine) addControl(f wire.Fields) Event {
	switch f.STYPE0 {
	case wire.PacketAccepted, wire.PacketRetry, wire.PacketNotAccepted, wire.LinkResponse:
		peer := &PeerAck{Kind: f.STYPE0, AckID: f.Param0, BufStatus: f.Param1}
		if f.STYPE0 == wire.PacketNotAccepted {
			peer.Cause = wire.Cause(f.Param1)
			peer.BufStatus = 0
		}
		return Event{Peer: peer}
	}

	switch f.STYPE1 {
	case wire.Nop:
		return m.addStatus(f)
	case wire.StartOfPacket:
		return m.addSOP(f.Param0)
	case wire.EndOfPacket:
		return m.addEOP()
	case wire.Stomp:
		return m.fail(wire.CauseGeneral)
	case wire.RestartFromRetry:
		return m.addRestart()
	case wire.LinkRequest:
		return m.addLinkRequest(f)
	case wire.MulticastEvent:
		return Event{} // out of scope, acknowledged only by ignoring it
	default:
		return Event{}
	}
}

// addStatus handles a pure STATUS control symbol (STYPE1==Nop), the
// bring-up handshake's matching-ackID transition into LINK_INITIALIZED.
func (m *Machine) addStatus(f wire.Fields) Event {
	if m.state == PortInitialized && f.Param0 == m.rxAckID {
		m.rxStatusReceived = true
		m.state = LinkInitialized
	}
	return Event{}
}

func (m *Machine) addSOP(ackID uint8) Event {
	if m.state != LinkInitialized {
		return Event{}
	}

	if ackID != m.rxAckID {
		m.diag.IncInboundErrorPacketAckID()
		m.rxErrorCause = wire.CauseUnexpectedAckID
		m.state = InputErrorStopped
		return Event{Command: SendNotAccepted, Cause: wire.CauseUnexpectedAckID, AckID: m.rxAckID}
	}

	if m.queue.Available() == 0 {
		m.diag.IncInboundRetry()
		m.state = InputRetryStopped
		return Event{Command: SendRetry, AckID: m.rxAckID}
	}

	m.receiving = true
	m.rxCounter = 0
	m.rxBuf = m.rxBuf[:0]
	return Event{}
}

func (m *Machine) addData(word uint32) Event {
	if !m.receiving {
		return Event{}
	}

	if m.rxCounter >= packet.SizeMax {
		m.receiving = false
		m.diag.IncInboundErrorGeneral()
		m.rxErrorCause = wire.CauseGeneral
		m.state = InputErrorStopped
		return Event{Command: SendNotAccepted, Cause: wire.CauseGeneral, AckID: m.rxAckID}
	}

	m.rxBuf = append(m.rxBuf, word)
	m.rxCounter++
	return Event{}
}

func (m *Machine) addEOP() Event {
	if !m.receiving {
		return Event{}
	}
	m.receiving = false

	if !packet.Verify(m.rxBuf) {
		m.diag.IncInboundErrorPacketCRC()
		m.rxErrorCause = wire.CausePacketCRC
		m.state = InputErrorStopped
		return Event{Command: SendNotAccepted, Cause: wire.CausePacketCRC, AckID: m.rxAckID}
	}

	if err := m.queue.PushBack(m.rxBuf); err != nil {
		// Lost the race with the host draining GetInboundPacket slower
		// than symbols arrive; availability was checked at SOP, so this
		// is unreachable under the engine's single-threaded contract.
		m.diag.IncInboundErrorGeneral()
		m.rxErrorCause = wire.CauseGeneral
		m.state = InputErrorStopped
		return Event{Command: SendNotAccepted, Cause: wire.CauseGeneral, AckID: m.rxAckID}
	}

	m.diag.IncInboundComplete()
	m.rxAckIDAcked = m.rxAckID
	m.rxAckID = (m.rxAckID + 1) & 31
	m.ackPending = true
	return Event{}
}

// addRestart handles an inbound RESTART_FROM_RETRY: it clears a local
// retry stall on the receive side, and tells the local transmitter its
// own OUTPUT_RETRY_STOPPED wait (entered on an earlier inbound
// PACKET_RETRY) has been serviced by the peer.
func (m *Machine) addRestart() Event {
	if m.state == InputRetryStopped {
		m.state = LinkInitialized
	}
	return Event{Command: ReleaseOutputRetry}
}

func (m *Machine) addLinkRequest(f wire.Fields) Event {
	m.diag.IncPartnerLinkRequest()
	switch wire.Cause(f.Param1) {
	case wire.CauseControlCRC:
		m.diag.IncPartnerErrorControlCRC()
	case wire.CauseUnexpectedAckID:
		m.diag.IncPartnerErrorPacketAckID()
	case wire.CausePacketCRC:
		m.diag.IncPartnerErrorPacketCRC()
	case wire.CauseIllegalCharacter:
		m.diag.IncPartnerErrorIllegalCharacter()
	case wire.CauseGeneral:
		m.diag.IncPartnerErrorGeneral()
	}

	if m.state == InputErrorStopped {
		m.rxCounter = 0
		m.receiving = false
		m.state = LinkInitialized
	}
	return Event{Command: SendLinkResponse, AckID: m.rxAckID}
}

func (m *Machine) fail(cause wire.Cause) Event {
	if cause == wire.CauseIllegalCharacter {
		m.diag.IncInboundErrorIllegalCharacter()
	}
	m.receiving = false
	m.rxErrorCause = cause
	m.state = InputErrorStopped
	return Event{Command: SendNotAccepted, Cause: cause, AckID: m.rxAckID}
}
