package bitvec_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/emberpc/gatecore/pkg/gatecore/bitvec"
)

func TestXorAndNot(t *testing.T) {
	a, err := bitvec.FromBytes([]byte{0b1100_0000}, 8)
	require.NoError(t, err)
	b, err := bitvec.FromBytes([]byte{0b1010_0000}, 8)
	require.NoError(t, err)

	x := a.Xor(b)
	want, err := bitvec.FromBytes([]byte{0b0110_0000}, 8)
	require.NoError(t, err)
	require.True(t, x.Equal(want))

	and := a.And(b)
	wantAnd, err := bitvec.FromBytes([]byte{0b1000_0000}, 8)
	require.NoError(t, err)
	require.True(t, and.Equal(wantAnd))

	notA := a.Not()
	wantNot, err := bitvec.FromBytes([]byte{0b0011_1111}, 8)
	require.NoError(t, err)
	require.True(t, notA.Equal(wantNot))
}

func TestNotMasksTailBits(t *testing.T) {
	v, err := bitvec.FromBytes([]byte{0b1010_0000}, 3)
	require.NoError(t, err)
	notV := v.Not()
	require.Equal(t, byte(0b0100_0000), notV.Bytes()[0])
}

func TestSubsetAndAppend(t *testing.T) {
	v, err := bitvec.FromBytes([]byte{0b1101_0011}, 8)
	require.NoError(t, err)

	lo := v.Subset(0, 4)
	hi := v.Subset(4, 8)
	require.Equal(t, 4, lo.Size())
	require.True(t, lo.Get(0))
	require.True(t, lo.Get(1))
	require.False(t, lo.Get(2))
	require.True(t, lo.Get(3))

	rejoined := lo.Append(hi)
	require.True(t, rejoined.Equal(v))
}

func TestGetSet(t *testing.T) {
	v := bitvec.New(5)
	v.Set(0, true)
	v.Set(4, true)
	require.True(t, v.Get(0))
	require.False(t, v.Get(1))
	require.True(t, v.Get(4))
}

func TestRandomSizeAndDeterminism(t *testing.T) {
	v := bitvec.Random(17)
	require.Equal(t, 17, v.Size())
	// Only the sizes of two independent draws are checked; their contents
	// are not compared.
	w := bitvec.Random(17)
	require.Equal(t, 17, w.Size())
}

func TestConcat(t *testing.T) {
	a, _ := bitvec.FromBytes([]byte{0xFF}, 4)
	b, _ := bitvec.FromBytes([]byte{0x00}, 4)
	c := bitvec.Concat(a, b)
	require.Equal(t, 8, c.Size())
}

func TestFromBytesLengthMismatch(t *testing.T) {
	_, err := bitvec.FromBytes([]byte{0x00}, 100)
	require.Error(t, err)
}
