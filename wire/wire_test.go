package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestControlRoundTrip(t *testing.T) {
	cases := []Fields{
		{STYPE0: PacketAccepted, Param0: 7, Param1: 31, STYPE1: Nop},
		{STYPE0: PacketRetry, Param0: 0, Param1: 0, STYPE1: Nop},
		{STYPE0: StypeStatus, Param0: 3, Param1: 5, STYPE1: Nop},
		{STYPE0: LinkResponse, Param0: 12, Param1: 1, STYPE1: Nop},
		{STYPE0: StypeStatus, Param0: 9, STYPE1: StartOfPacket},
		{STYPE0: StypeStatus, STYPE1: EndOfPacket},
		{STYPE0: StypeStatus, STYPE1: LinkRequest},
		{STYPE0: StypeStatus, STYPE1: RestartFromRetry},
	}
	for _, f := range cases {
		sym := EncodeControl(f)
		require.Equal(t, ControlKind, sym.Kind)
		got, ok := DecodeControl(sym)
		require.True(t, ok)
		require.Equal(t, f, got)
	}
}

func TestCRC5DetectsSingleBitErrors(t *testing.T) {
	f := Fields{STYPE0: PacketAccepted, Param0: 17, Param1: 9, STYPE1: Nop}
	sym := EncodeControl(f)

	for bit := 0; bit < 24; bit++ {
		flipped := Symbol{Kind: ControlKind, Value: sym.Value ^ (1 << uint(bit))}
		_, ok := DecodeControl(flipped)
		require.False(t, ok, "bit %d flip should be detected", bit)
	}
}

func TestAckSymbolHelpers(t *testing.T) {
	sym := AckSymbol(PacketAccepted, 5, 20)
	f, ok := DecodeControl(sym)
	require.True(t, ok)
	require.Equal(t, PacketAccepted, f.STYPE0)
	require.EqualValues(t, 5, f.Param0)
	require.EqualValues(t, 20, f.Param1)

	na := NotAcceptedSymbol(2, CauseGeneral)
	f, ok = DecodeControl(na)
	require.True(t, ok)
	require.Equal(t, PacketNotAccepted, f.STYPE0)
	require.EqualValues(t, 2, f.Param0)
	require.Equal(t, CauseGeneral, Cause(f.Param1))
}

func TestFrameSymbolHelper(t *testing.T) {
	sop := FrameSymbol(StartOfPacket, 13)
	f, ok := DecodeControl(sop)
	require.True(t, ok)
	require.Equal(t, StartOfPacket, f.STYPE1)
	require.EqualValues(t, 13, f.Param0)
}

func TestSymbolString(t *testing.T) {
	require.Equal(t, "IDLE", IdleSymbol.String())
	require.Equal(t, "ERROR", ErrorSymbol.String())
	require.Contains(t, NewData(0xdeadbeef).String(), "deadbeef")
}
