// Package queue implements the bounded ring queue shared by the receiver
// and transmitter state machines: a fixed-capacity set of packet slots
// carved out of a caller-supplied word buffer, with no internal
// allocation and no locking — callers serialize access themselves, per
// the engine's single-threaded cooperative model.
package queue

import (
	"errors"

	"github.com/mfkiwl/OpenRIO/packet"
)

// ErrFull signals an attempt to push into a queue with no free slots.
var ErrFull = errors.New("riolink: ring queue full")

// ErrEmpty signals an attempt to read or remove from a queue with no
// occupied slots.
var ErrEmpty = errors.New("riolink: ring queue empty")

// ErrNoWindowSlot signals WindowPacket/WindowAdvance called with nothing
// left in the queue to (re)transmit.
var ErrNoWindowSlot = errors.New("riolink: transmission window exhausted")

// Queue is a fixed-capacity ring of packet slots over a caller-owned word
// buffer. It serves both the inbound delivery path and the outbound
// transmission path; the window fields (windowIndex, windowSize) are
// meaningful only on the transmit side, where they track packets handed to
// the wire but not yet acknowledged.
type Queue struct {
	buf []uint32 // caller-owned, len >= size*packet.SlotWords

	size      uint8 // fixed slot count, <= 255
	available uint8 // free slots

	frontIndex  uint8 // next to dequeue/remove on ack
	windowIndex uint8 // tx only: next to (re)transmit
	backIndex   uint8 // next free slot to fill
	windowSize  uint8 // tx only: slots handed out but not yet acknowledged
}

// Init partitions buffer into equal packet.SlotWords slots, clamped to at
// most 255 slots, and resets all indices to an empty queue.
func (q *Queue) Init(buffer []uint32) {
	slots := len(buffer) / packet.SlotWords
	if slots > 255 {
		slots = 255
	}

	q.buf = buffer
	q.size = uint8(slots)
	q.available = uint8(slots)
	q.frontIndex = 0
	q.windowIndex = 0
	q.backIndex = 0
	q.windowSize = 0
}

// Size returns the fixed slot count.
func (q *Queue) Size() int { return int(q.size) }

// Available returns the number of free slots.
func (q *Queue) Available() int { return int(q.available) }

// Used returns the number of occupied slots (front to back distance).
func (q *Queue) Used() int { return int(q.size - q.available) }

// WindowUsed returns the number of slots handed out for transmission but
// not yet acknowledged (front to window distance).
func (q *Queue) WindowUsed() int { return int(q.windowSize) }

// WindowAvailable returns the number of occupied, queued slots that have
// not yet entered the transmission window (window to back distance).
func (q *Queue) WindowAvailable() int { return q.Used() - int(q.windowSize) }

// dist returns the forward modular distance from a to b.
func (q *Queue) dist(a, b uint8) uint8 {
	if q.size == 0 {
		return 0
	}
	if b >= a {
		return b - a
	}
	return q.size - a + b
}

func (q *Queue) slot(i uint8) []uint32 {
	off := int(i) * packet.SlotWords
	return q.buf[off : off+packet.SlotWords]
}

// PushBack copies p into the slot at backIndex and advances it. It fails
// with ErrFull when there is no free slot, and ErrTooLong when p exceeds
// packet.SizeMax words.
func (q *Queue) PushBack(p packet.Words) error {
	if q.available == 0 {
		return ErrFull
	}
	if len(p) > packet.SizeMax {
		return packet.ErrTooLong
	}

	s := q.slot(q.backIndex)
	s[0] = uint32(len(p))
	copy(s[1:], p)

	q.backIndex = q.advance(q.backIndex)
	q.available--
	return nil
}

// FrontPacket returns an immutable view of the slot at frontIndex. It
// fails with ErrEmpty when the queue holds no packet.
func (q *Queue) FrontPacket() (packet.Words, error) {
	if q.Used() == 0 {
		return nil, ErrEmpty
	}
	return q.view(q.frontIndex), nil
}

// WindowPacket returns an immutable view of the slot at windowIndex, the
// next packet due for (re)transmission. It fails with ErrNoWindowSlot
// when every queued packet is already in flight.
func (q *Queue) WindowPacket() (packet.Words, error) {
	if q.WindowAvailable() == 0 {
		return nil, ErrNoWindowSlot
	}
	return q.view(q.windowIndex), nil
}

func (q *Queue) view(i uint8) packet.Words {
	s := q.slot(i)
	n := s[0]
	return packet.Words(s[1 : 1+n])
}

// WindowAdvance promotes the packet at windowIndex into flight, moving
// windowIndex to the next queued slot. It fails with ErrNoWindowSlot when
// nothing is queued to transmit.
func (q *Queue) WindowAdvance() error {
	if q.WindowAvailable() == 0 {
		return ErrNoWindowSlot
	}
	q.windowIndex = q.advance(q.windowIndex)
	q.windowSize++
	return nil
}

// WindowReset rewinds windowIndex back to frontIndex, so that every
// in-flight packet becomes due for retransmission again. Used when a peer
// signals PACKET_RETRY or when a link-request/link-response handshake
// resynchronizes the transmitter.
func (q *Queue) WindowReset() {
	q.windowIndex = q.frontIndex
	q.windowSize = 0
}

// PopFront removes the slot at frontIndex, freeing it. It fails with
// ErrEmpty when the queue holds no packet. If frontIndex had advanced
// ahead of windowIndex (it should not under normal operation) windowIndex
// is pulled along so it never trails frontIndex.
func (q *Queue) PopFront() error {
	if q.Used() == 0 {
		return ErrEmpty
	}
	q.frontIndex = q.advance(q.frontIndex)
	q.available++
	if q.windowSize > 0 {
		q.windowSize--
	} else {
		q.windowIndex = q.frontIndex
	}
	return nil
}

func (q *Queue) advance(i uint8) uint8 {
	i++
	if i >= q.size {
		i = 0
	}
	return i
}
