package packet

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCRC16Deterministic(t *testing.T) {
	crc := InitCRC16()
	crc = UpdateCRC16(crc, 0x00010002)
	crc = UpdateCRC16(crc, 0xaabbccdd)

	crc2 := InitCRC16()
	crc2 = UpdateCRC16(crc2, 0x00010002)
	crc2 = UpdateCRC16(crc2, 0xaabbccdd)

	require.Equal(t, crc, crc2)
}

func TestCRC16DiffersOnChange(t *testing.T) {
	a := UpdateCRC16(InitCRC16(), 0x00010002)
	b := UpdateCRC16(InitCRC16(), 0x00010003)
	require.NotEqual(t, a, b)
}

func TestSealVerify(t *testing.T) {
	p := Seal(Words{0x00010002, 0xaabbccdd})
	require.Len(t, p, 3)
	require.True(t, Verify(p))

	corrupt := append(Words{}, p...)
	corrupt[1] ^= 1
	require.False(t, Verify(corrupt))
}

func TestWordsEqual(t *testing.T) {
	a := Words{1, 2, 3}
	b := Words{1, 2, 3}
	c := Words{1, 2}
	require.True(t, a.Equal(b))
	require.False(t, a.Equal(c))
}
