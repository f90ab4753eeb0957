package tx

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mfkiwl/OpenRIO/diagnostics"
	"github.com/mfkiwl/OpenRIO/packet"
	"github.com/mfkiwl/OpenRIO/queue"
	"github.com/mfkiwl/OpenRIO/rx"
	"github.com/mfkiwl/OpenRIO/wire"
)

// fakeAck is a minimal AckSource double, independent of the rx package,
// so tx's unit tests can drive exact ack-latch/buf-status sequences.
type fakeAck struct {
	ackID     uint8
	pending   bool
	available int
	cause     wire.Cause
}

func (f *fakeAck) RxAckIDAcked() (uint8, bool) { return f.ackID, f.pending }
func (f *fakeAck) AckPublished(ackID uint8) {
	if f.pending && f.ackID == ackID {
		f.pending = false
	}
}
func (f *fakeAck) InboundAvailable() int  { return f.available }
func (f *fakeAck) ErrorCause() wire.Cause { return f.cause }

func newMachine(t *testing.T, slots int) (*Machine, *queue.Queue, *diagnostics.Counters) {
	t.Helper()
	var q queue.Queue
	q.Init(make([]uint32, slots*packet.SlotWords))
	var diag diagnostics.Counters
	m := New(&q, &diag)
	m.SetStatusCadence(2, 2) // accelerate bring-up for tests
	return m, &q, &diag
}

func bringUp(t *testing.T, m *Machine, ack *fakeAck) {
	t.Helper()
	m.PortSetStatus(true)
	require.Equal(t, PortInitialized, m.State())
	for i := 0; i < m.statusBurst+m.statusIdleTail+1; i++ {
		m.GetSymbol(ack)
		if m.State() == LinkInitialized {
			return
		}
	}
	t.Fatal("did not reach LinkInitialized within expected symbol count")
}

func TestBringUpEmitsStatusThenIdlesThenLinkInitialized(t *testing.T) {
	m, _, _ := newMachine(t, 4)
	ack := &fakeAck{available: 4}
	m.PortSetStatus(true)

	sym := m.GetSymbol(ack)
	f, ok := wire.DecodeControl(sym)
	require.True(t, ok)
	require.Equal(t, wire.StypeStatus, f.STYPE0)

	sym = m.GetSymbol(ack) // second status
	_, ok = wire.DecodeControl(sym)
	require.True(t, ok)

	sym = m.GetSymbol(ack) // first idle
	require.Equal(t, wire.Idle, sym.Kind)

	sym = m.GetSymbol(ack) // second idle, transitions
	require.Equal(t, wire.Idle, sym.Kind)
	require.Equal(t, LinkInitialized, m.State())
}

func TestDataTransmissionEmitsSOPDataEOP(t *testing.T) {
	m, q, _ := newMachine(t, 4)
	ack := &fakeAck{available: 4}
	bringUp(t, m, ack)

	pkt := packet.Seal(packet.Words{0xaaaa1111, 0xbbbb2222})
	require.NoError(t, q.PushBack(pkt))

	sop := m.GetSymbol(ack)
	f, ok := wire.DecodeControl(sop)
	require.True(t, ok)
	require.Equal(t, wire.StartOfPacket, f.STYPE1)
	require.EqualValues(t, 0, f.Param0)

	d1 := m.GetSymbol(ack)
	require.Equal(t, wire.DataKind, d1.Kind)
	require.EqualValues(t, pkt[0], d1.Value)

	d2 := m.GetSymbol(ack)
	require.Equal(t, wire.DataKind, d2.Kind)
	require.EqualValues(t, pkt[1], d2.Value)

	d3 := m.GetSymbol(ack)
	require.Equal(t, wire.DataKind, d3.Kind)
	require.EqualValues(t, pkt[2], d3.Value)

	eop := m.GetSymbol(ack)
	f, ok = wire.DecodeControl(eop)
	require.True(t, ok)
	require.Equal(t, wire.EndOfPacket, f.STYPE1)
}

func TestPiggybackAckTakesPriorityOverData(t *testing.T) {
	m, q, _ := newMachine(t, 4)
	ack := &fakeAck{available: 4}
	bringUp(t, m, ack)
	require.NoError(t, q.PushBack(packet.Seal(packet.Words{0x1})))

	ack.ackID = 7
	ack.pending = true

	sym := m.GetSymbol(ack)
	f, ok := wire.DecodeControl(sym)
	require.True(t, ok)
	require.Equal(t, wire.PacketAccepted, f.STYPE0)
	require.EqualValues(t, 7, f.Param0)
	require.False(t, ack.pending, "GetSymbol should have published the ack")
}

func TestPacketAcceptedAdvancesWindowAndPopsQueue(t *testing.T) {
	m, q, diag := newMachine(t, 4)
	ack := &fakeAck{available: 4}
	bringUp(t, m, ack)
	require.NoError(t, q.PushBack(packet.Seal(packet.Words{0x1})))

	m.GetSymbol(ack) // SOP
	m.GetSymbol(ack) // data
	m.GetSymbol(ack) // CRC word appended by Seal
	m.GetSymbol(ack) // EOP

	m.HandleRxEvent(rx.Event{Peer: &rx.PeerAck{Kind: wire.PacketAccepted, AckID: 0, BufStatus: 4}})

	require.EqualValues(t, 1, m.txAckID)
	require.EqualValues(t, 1, diag.Load().OutboundComplete)
	require.Equal(t, 0, q.Used())
}

func TestUnexpectedPacketAcceptedTriggersResync(t *testing.T) {
	m, q, diag := newMachine(t, 4)
	ack := &fakeAck{available: 4}
	bringUp(t, m, ack)
	require.NoError(t, q.PushBack(packet.Seal(packet.Words{0x1})))
	m.GetSymbol(ack)
	m.GetSymbol(ack)
	m.GetSymbol(ack)

	m.HandleRxEvent(rx.Event{Peer: &rx.PeerAck{Kind: wire.PacketAccepted, AckID: 5}})
	require.Equal(t, OutputErrorStopped, m.State())
	require.EqualValues(t, 1, diag.Load().OutboundErrorPacketAccepted)

	sym := m.GetSymbol(ack)
	f, ok := wire.DecodeControl(sym)
	require.True(t, ok)
	require.Equal(t, wire.LinkRequest, f.STYPE1)
}

func TestPacketRetryRewindsWindow(t *testing.T) {
	m, q, diag := newMachine(t, 4)
	ack := &fakeAck{available: 4}
	bringUp(t, m, ack)
	require.NoError(t, q.PushBack(packet.Seal(packet.Words{0x1})))
	m.GetSymbol(ack)
	m.GetSymbol(ack)
	m.GetSymbol(ack)
	m.GetSymbol(ack) // EOP puts the packet in flight

	m.HandleRxEvent(rx.Event{Peer: &rx.PeerAck{Kind: wire.PacketRetry, AckID: 0}})
	require.Equal(t, OutputRetryStopped, m.State())
	require.Equal(t, 1, q.WindowAvailable())
	require.EqualValues(t, 1, diag.Load().OutboundRetry)
}

// TestReleaseOutputRetryResumesAfterPeerRestart exercises the direct
// recovery path out of OUTPUT_RETRY_STOPPED: once the peer's receiver has
// drained a packet and asks its own transmitter to emit RESTART_FROM_RETRY,
// the inbound symbol releases this side's stalled transmitter without
// waiting on the timeout/LINK_REQUEST fallback.
func TestReleaseOutputRetryResumesAfterPeerRestart(t *testing.T) {
	m, q, _ := newMachine(t, 4)
	ack := &fakeAck{available: 4}
	bringUp(t, m, ack)
	require.NoError(t, q.PushBack(packet.Seal(packet.Words{0x1})))
	m.GetSymbol(ack)
	m.GetSymbol(ack)
	m.GetSymbol(ack)
	m.GetSymbol(ack) // EOP

	m.HandleRxEvent(rx.Event{Peer: &rx.PeerAck{Kind: wire.PacketRetry, AckID: 0}})
	require.Equal(t, OutputRetryStopped, m.State())

	m.HandleRxEvent(rx.Event{Command: rx.ReleaseOutputRetry})
	require.Equal(t, LinkInitialized, m.State())

	sop := m.GetSymbol(ack)
	f, ok := wire.DecodeControl(sop)
	require.True(t, ok)
	require.Equal(t, wire.StartOfPacket, f.STYPE1)
}

func TestLinkResponseResynchronizesAfterNotAccepted(t *testing.T) {
	m, q, _ := newMachine(t, 4)
	ack := &fakeAck{available: 4}
	bringUp(t, m, ack)
	require.NoError(t, q.PushBack(packet.Seal(packet.Words{0x1})))
	m.GetSymbol(ack)
	m.GetSymbol(ack)
	m.GetSymbol(ack)

	m.HandleRxEvent(rx.Event{Peer: &rx.PeerAck{Kind: wire.PacketNotAccepted, Cause: wire.CausePacketCRC}})
	require.Equal(t, OutputErrorStopped, m.State())

	m.HandleRxEvent(rx.Event{Peer: &rx.PeerAck{Kind: wire.LinkResponse, AckID: 0}})
	require.Equal(t, LinkInitialized, m.State())
}

func TestRetransmitTimeoutEmitsLinkRequest(t *testing.T) {
	m, q, diag := newMachine(t, 4)
	ack := &fakeAck{available: 4}
	bringUp(t, m, ack)
	require.NoError(t, q.PushBack(packet.Seal(packet.Words{0x1})))

	base := time.Unix(1000, 0)
	m.PortSetTime(base)
	m.PortSetTimeout(5 * time.Second)

	m.GetSymbol(ack) // SOP
	m.GetSymbol(ack) // data
	m.GetSymbol(ack) // CRC word appended by Seal
	m.GetSymbol(ack) // EOP, stamps txTimeout[0] = base

	m.PortSetTime(base.Add(10 * time.Second))
	sym := m.GetSymbol(ack)
	f, ok := wire.DecodeControl(sym)
	require.True(t, ok)
	require.Equal(t, wire.LinkRequest, f.STYPE1)
	require.Equal(t, OutputErrorStopped, m.State())
	require.EqualValues(t, 1, diag.Load().OutboundErrorTimeout)
}

func TestSendRetryEventEmitsPacketRetryOnce(t *testing.T) {
	m, _, _ := newMachine(t, 4)
	ack := &fakeAck{available: 4}
	bringUp(t, m, ack)

	m.HandleRxEvent(rx.Event{Command: rx.SendRetry, AckID: 3})
	sym := m.GetSymbol(ack)
	f, ok := wire.DecodeControl(sym)
	require.True(t, ok)
	require.Equal(t, wire.PacketRetry, f.STYPE0)
	require.EqualValues(t, 3, f.Param0)

	sym = m.GetSymbol(ack)
	require.NotEqual(t, wire.ControlKind, sym.Kind) // pending consumed, back to idle/data
}

func TestSendRestartEventEmitsRestartFromRetryOnce(t *testing.T) {
	m, _, _ := newMachine(t, 4)
	ack := &fakeAck{available: 4}
	bringUp(t, m, ack)

	m.HandleRxEvent(rx.Event{Command: rx.SendRestart, AckID: 5})
	sym := m.GetSymbol(ack)
	f, ok := wire.DecodeControl(sym)
	require.True(t, ok)
	require.Equal(t, wire.RestartFromRetry, f.STYPE1)

	sym = m.GetSymbol(ack)
	require.NotEqual(t, wire.ControlKind, sym.Kind) // pending consumed, back to idle/data
}

func TestSendNotAcceptedEventCarriesRxAckIDAndCause(t *testing.T) {
	m, _, _ := newMachine(t, 4)
	ack := &fakeAck{available: 4}
	bringUp(t, m, ack)

	m.HandleRxEvent(rx.Event{Command: rx.SendNotAccepted, Cause: wire.CauseGeneral, AckID: 9})
	sym := m.GetSymbol(ack)
	f, ok := wire.DecodeControl(sym)
	require.True(t, ok)
	require.Equal(t, wire.PacketNotAccepted, f.STYPE0)
	require.EqualValues(t, 9, f.Param0)
	require.Equal(t, wire.CauseGeneral, wire.Cause(f.Param1))
}

func TestPortSetStatusDownResetsToUninitialized(t *testing.T) {
	m, _, _ := newMachine(t, 4)
	ack := &fakeAck{available: 4}
	bringUp(t, m, ack)
	m.PortSetStatus(false)
	require.Equal(t, Uninitialized, m.State())
}
