// Package wire translates between the engine's typed Symbol value and its
// on-wire form: control-symbol bit packing plus CRC-5. The running packet
// CRC-16 over data words lives in package packet. The physical 8b/10b encoding itself stays
// with the (external) symbol codec; this package only sees and produces
// typed symbols.
package wire

import "fmt"

// Kind distinguishes the four symbol shapes the codec hands to (or takes
// from) the engine.
type Kind uint8

const (
	Idle Kind = iota
	ControlKind
	DataKind
	ErrorKind
)

// String returns a short tag for logging.
func (k Kind) String() string {
	switch k {
	case Idle:
		return "idle"
	case ControlKind:
		return "control"
	case DataKind:
		return "data"
	case ErrorKind:
		return "error"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Symbol is the quantum of exchange with the symbol codec: an idle, a
// 24-bit control word (C0 first on the wire), a 32-bit data word (D0
// first), or a codec-signalled unrecoverable decode event.
type Symbol struct {
	Kind  Kind
	Value uint32 // low 24 bits for ControlKind, all 32 for DataKind
}

// IdleSymbol is the singleton idle value.
var IdleSymbol = Symbol{Kind: Idle}

// ErrorSymbol is the singleton codec-error value.
var ErrorSymbol = Symbol{Kind: ErrorKind}

// NewData wraps a 32-bit data word.
func NewData(word uint32) Symbol { return Symbol{Kind: DataKind, Value: word} }

// String describes the symbol compactly.
func (s Symbol) String() string {
	switch s.Kind {
	case Idle:
		return "IDLE"
	case DataKind:
		return fmt.Sprintf("DATA[%#08x]", s.Value)
	case ErrorKind:
		return "ERROR"
	case ControlKind:
		if f, ok := DecodeControl(s); ok {
			return f.String()
		}
		return fmt.Sprintf("CONTROL[%#06x bad-crc]", s.Value&0xffffff)
	default:
		return "?"
	}
}
