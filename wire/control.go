package wire

import "fmt"

// STYPE0 is the body/ack type of a control symbol.
type STYPE0 uint8

const (
	PacketAccepted    STYPE0 = 0
	PacketRetry       STYPE0 = 1
	PacketNotAccepted STYPE0 = 2
	StypeStatus       STYPE0 = 4
	LinkResponse      STYPE0 = 5
)

// String names the STYPE0 value.
func (s STYPE0) String() string {
	switch s {
	case PacketAccepted:
		return "packet_accepted"
	case PacketRetry:
		return "packet_retry"
	case PacketNotAccepted:
		return "packet_not_accepted"
	case StypeStatus:
		return "status"
	case LinkResponse:
		return "link_response"
	default:
		return fmt.Sprintf("stype0(%d)", uint8(s))
	}
}

// STYPE1 is the trailing/framing type of a control symbol.
type STYPE1 uint8

const (
	StartOfPacket    STYPE1 = 0
	Stomp            STYPE1 = 1
	EndOfPacket      STYPE1 = 2
	RestartFromRetry STYPE1 = 3
	LinkRequest      STYPE1 = 4
	MulticastEvent   STYPE1 = 5
	Nop              STYPE1 = 7
)

// String names the STYPE1 value.
func (s STYPE1) String() string {
	switch s {
	case StartOfPacket:
		return "sop"
	case Stomp:
		return "stomp"
	case EndOfPacket:
		return "eop"
	case RestartFromRetry:
		return "restart_from_retry"
	case LinkRequest:
		return "link_request"
	case MulticastEvent:
		return "multicast_event"
	case Nop:
		return "nop"
	default:
		return fmt.Sprintf("stype1(%d)", uint8(s))
	}
}

// Cause is the 5-bit packet-not-accepted reason code. The companion
// standard's control-symbol layout only reserves 3 bits for "cmd"
// alongside a 5-bit causes list (0..31, including general=31); that is
// only representable by widening the field. This implementation carries
// the cause in the Param1 slot of a PacketNotAccepted symbol instead of
// Cmd, since Param1 (buf_status on every other control symbol) carries
// no meaning on a not-accepted symbol.
type Cause uint8

const (
	CauseReserved         Cause = 0
	CauseUnexpectedAckID  Cause = 1
	CauseControlCRC       Cause = 2
	CauseNonMaintenance   Cause = 3
	CausePacketCRC        Cause = 4
	CauseIllegalCharacter Cause = 5
	CauseNoResource       Cause = 6
	CauseDescrambler      Cause = 7
	CauseGeneral          Cause = 31
)

// String names the Cause value.
func (c Cause) String() string {
	switch c {
	case CauseReserved:
		return "reserved"
	case CauseUnexpectedAckID:
		return "unexpected_ackid"
	case CauseControlCRC:
		return "control_crc"
	case CauseNonMaintenance:
		return "non_maintenance"
	case CausePacketCRC:
		return "packet_crc"
	case CauseIllegalCharacter:
		return "illegal_character"
	case CauseNoResource:
		return "no_resource"
	case CauseDescrambler:
		return "descrambler"
	case CauseGeneral:
		return "general"
	default:
		return fmt.Sprintf("cause(%d)", uint8(c))
	}
}

// Fields is the decoded content of a control symbol, per the control
// symbol's bit layout: stype0[3] | param0[5] | param1[5] | stype1[3] |
// cmd[3] | crc5[5]. Param0 typically carries an ackID, Param1 typically
// carries buf_status (clamped to 31).
type Fields struct {
	STYPE0 STYPE0
	Param0 uint8
	Param1 uint8
	STYPE1 STYPE1
	Cmd    uint8
}

// String renders the fields compactly for logging.
func (f Fields) String() string {
	return fmt.Sprintf("CTRL[%s/%s ack=%d buf=%d cmd=%d]", f.STYPE0, f.STYPE1, f.Param0, f.Param1, f.Cmd)
}

// body packs the 19 meaningful bits (everything but the trailing CRC-5):
// stype0[3] param0[5] param1[5] stype1[3] cmd[3].
func (f Fields) body() uint32 {
	return uint32(f.STYPE0&0x7)<<16 |
		uint32(f.Param0&0x1f)<<11 |
		uint32(f.Param1&0x1f)<<6 |
		uint32(f.STYPE1&0x7)<<3 |
		uint32(f.Cmd&0x7)
}

// EncodeControl packs Fields into a 24-bit control Symbol with a trailing
// CRC-5 appended over the 19-bit body.
func EncodeControl(f Fields) Symbol {
	body := f.body()
	check := crc5(body, 19)
	return Symbol{Kind: ControlKind, Value: body<<5 | uint32(check)}
}

// DecodeControl validates the CRC-5 of a control Symbol and unpacks its
// fields. ok is false on CRC mismatch, in which case the caller must
// discard the symbol and count it as a control CRC error.
func DecodeControl(sym Symbol) (f Fields, ok bool) {
	word := sym.Value & 0xffffff
	body := word >> 5
	got := uint8(word & 0x1f)
	want := crc5(body, 19)
	if got != want {
		return Fields{}, false
	}

	f.STYPE0 = STYPE0(body >> 16 & 0x7)
	f.Param0 = uint8(body >> 11 & 0x1f)
	f.Param1 = uint8(body >> 6 & 0x1f)
	f.STYPE1 = STYPE1(body >> 3 & 0x7)
	f.Cmd = uint8(body & 0x7)
	return f, true
}

// AckSymbol builds a piggybacked acknowledgement/handshake control symbol
// (PACKET_ACCEPTED, PACKET_RETRY, PACKET_NOT_ACCEPTED, STATUS or
// LINK_RESPONSE), carrying ackID in Param0 and buf_status in Param1.
func AckSymbol(stype0 STYPE0, ackID, bufStatus uint8) Symbol {
	return EncodeControl(Fields{STYPE0: stype0, Param0: ackID & 0x1f, Param1: bufStatus & 0x1f, STYPE1: Nop})
}

// NotAcceptedSymbol builds a PACKET_NOT_ACCEPTED symbol carrying cause in
// Param1 (see Cause doc comment).
func NotAcceptedSymbol(ackID uint8, cause Cause) Symbol {
	return EncodeControl(Fields{STYPE0: PacketNotAccepted, Param0: ackID & 0x1f, Param1: uint8(cause), STYPE1: Nop})
}

// FrameSymbol builds a frame-delimiter control symbol carrying ackID in
// Param0 whatever its STYPE1 tag; the receiver reads that ackID only on
// SOP.
func FrameSymbol(stype1 STYPE1, ackID uint8) Symbol {
	return EncodeControl(Fields{STYPE0: StypeStatus, Param0: ackID & 0x1f, STYPE1: stype1})
}
