package ir

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLocationDescriptorHashLayout(t *testing.T) {
	tests := []struct {
		name string
		loc  LocationDescriptor
		want uint64
	}{
		{"pc only", NewLocationDescriptor(0x12345678, false, false, 0), 0x12345678},
		{"thumb bit lands at 35", NewLocationDescriptor(0, true, false, 0), 1 << 35},
		{"endian bit lands at 39", NewLocationDescriptor(0, false, true, 0), 1 << 39},
		{"fpscr mode fills the upper word", NewLocationDescriptor(0, false, false, 0x07F70000),
			uint64(0x07F70000) << 32},
		{"everything at once", NewLocationDescriptor(0xDEADBEEF, true, true, 0x00C00000),
			(uint64(0x00C00000)|1<<3|1<<7)<<32 | 0xDEADBEEF},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, tc.loc.Hash())
		})
	}
}

func TestLocationDescriptorMasksFpscr(t *testing.T) {
	loc := NewLocationDescriptor(0, false, false, 0xFFFFFFFF)
	require.Equal(t, FpscrModeMask, loc.FpscrMode())

	// Bits outside the mode mask never influence the cache key.
	a := NewLocationDescriptor(0x100, false, false, 0x0000001F)
	b := NewLocationDescriptor(0x100, false, false, 0)
	require.Equal(t, b, a)
	require.Equal(t, b.Hash(), a.Hash())
}

func TestLocationDescriptorFpscrFields(t *testing.T) {
	loc := NewLocationDescriptor(0, false, false, 3<<22|1<<24|1<<25)
	require.Equal(t, uint32(3), loc.FpscrRMode())
	require.True(t, loc.FpscrFTZ())
	require.True(t, loc.FpscrDN())

	loc = NewLocationDescriptor(0, false, false, 1<<22)
	require.Equal(t, uint32(1), loc.FpscrRMode())
	require.False(t, loc.FpscrFTZ())
	require.False(t, loc.FpscrDN())
}

func TestLocationDescriptorSetPC(t *testing.T) {
	loc := NewLocationDescriptor(0x1000, true, true, 1<<24)
	moved := loc.SetPC(0x2000)
	require.Equal(t, uint32(0x2000), moved.PC())
	require.Equal(t, uint32(0x1000), loc.PC())
	require.True(t, moved.TFlag())
	require.True(t, moved.EFlag())
	require.Equal(t, loc.FpscrMode(), moved.FpscrMode())
}

func TestLocationDescriptorAdvancePC(t *testing.T) {
	loc := NewLocationDescriptor(0x1000, false, false, 0)
	require.Equal(t, uint32(0x1004), loc.AdvancePC(4).PC())
	require.Equal(t, uint32(0x0FFE), loc.AdvancePC(-2).PC())

	wrap := NewLocationDescriptor(0xFFFFFFFE, false, false, 0)
	require.Equal(t, uint32(2), wrap.AdvancePC(4).PC())
}

func TestLocationDescriptorHashDistinguishes(t *testing.T) {
	locs := []LocationDescriptor{
		NewLocationDescriptor(0x1000, false, false, 0),
		NewLocationDescriptor(0x1004, false, false, 0),
		NewLocationDescriptor(0x1000, true, false, 0),
		NewLocationDescriptor(0x1000, false, true, 0),
		NewLocationDescriptor(0x1000, false, false, 1<<24),
	}
	seen := map[uint64]LocationDescriptor{}
	for _, loc := range locs {
		prev, dup := seen[loc.Hash()]
		require.False(t, dup, "%s and %s collide", prev, loc)
		seen[loc.Hash()] = loc
	}
}
