// Package packet stands in for the RapidIO packet layer, which the link
// engine treats as an external collaborator. It only provides the sliver
// of the packet layer the engine calls into directly: word-buffer framing
// and the packet CRC-16, not field parsing, routing, or transaction
// semantics.
package packet

import "errors"

// SizeMax is the largest packet payload size in 32-bit words, excluding the
// length prefix. RapidIO bounds a packet to 276 bytes of payload, which is
// 69 words once the trailing CRC-16 is folded into the last word.
const SizeMax = 69

// SlotWords is the number of words a ring queue slot reserves per packet:
// one word for the length prefix, SizeMax words for payload.
const SlotWords = SizeMax + 1

// ErrTooLong signals a packet exceeding SizeMax words.
var ErrTooLong = errors.New("riolink: packet exceeds RIOPACKET_SIZE_MAX words")

// crc16Poly is the CCITT polynomial used for RapidIO packet CRC-16.
const crc16Poly = 0x1021
const crc16Init = 0xffff

var crc16Table = buildCRC16Table()

func buildCRC16Table() [256]uint16 {
	var table [256]uint16
	for i := 0; i < 256; i++ {
		crc := uint16(i) << 8
		for bit := 0; bit < 8; bit++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ crc16Poly
			} else {
				crc <<= 1
			}
		}
		table[i] = crc
	}
	return table
}

// UpdateCRC16 folds one 32-bit data word (big-endian byte order, as it
// appears on the wire) into a running CRC-16 accumulator.
func UpdateCRC16(crc uint16, word uint32) uint16 {
	bytes := [4]byte{byte(word >> 24), byte(word >> 16), byte(word >> 8), byte(word)}
	for _, b := range bytes {
		crc = crc<<8 ^ crc16Table[byte(crc>>8)^b]
	}
	return crc
}

// InitCRC16 returns the seed value for a new running packet CRC-16.
func InitCRC16() uint16 { return crc16Init }

// Words is an opaque packet payload: a word-aligned buffer as staged by the
// ring queue, CRC-16 included in the trailing word(s) per the packet layer's
// own framing. The engine neither parses fields inside Words nor recomputes
// the application CRC when enqueueing; it only validates the running CRC
// accumulated while data words stream past during reception.
type Words []uint32

// Len returns the word count.
func (w Words) Len() int { return len(w) }

// Equal reports whether two packets carry identical words.
func (w Words) Equal(other Words) bool {
	if len(w) != len(other) {
		return false
	}
	for i := range w {
		if w[i] != other[i] {
			return false
		}
	}
	return true
}

// Seal appends a trailing CRC-16 word to data, as the packet layer would
// before handing a packet to the link engine for transmission. The engine
// itself never calls Seal; it is provided so callers assembling test
// packets (or a future real packet layer) can produce wire-compatible
// fixtures.
func Seal(data Words) Words {
	crc := InitCRC16()
	for _, w := range data {
		crc = UpdateCRC16(crc, w)
	}
	sealed := make(Words, len(data)+1)
	copy(sealed, data)
	sealed[len(data)] = uint32(crc)
	return sealed
}

// Verify recomputes the CRC-16 over all but the last word of words and
// compares it against the low 16 bits of the last word, mirroring how the
// FT1.2 codec in the example pack recomputes its additive checksum and
// compares it to the trailing byte.
func Verify(words Words) bool {
	if len(words) == 0 {
		return false
	}
	data := words[:len(words)-1]
	trailer := words[len(words)-1]

	crc := InitCRC16()
	for _, w := range data {
		crc = UpdateCRC16(crc, w)
	}
	return uint16(trailer) == crc
}
