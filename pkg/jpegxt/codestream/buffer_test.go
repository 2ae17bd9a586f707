package codestream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlockBufferRows(t *testing.T) {
	f, err := NewFrame(20, 20, 1)
	require.NoError(t, err)
	b := NewBlockBuffer(f)
	require.Len(t, b.Quantized(0), 3)
	require.Len(t, b.Quantized(0)[0], 3)

	s, err := NewScan(f, Sequential)
	require.NoError(t, err)
	b.ResetToStartOfScan(s)
	for y := 0; y < 3; y++ {
		require.True(t, b.StartMCUQuantizerRow(s))
		rows := b.CurrentQuantizedRows(0)
		require.Len(t, rows, 1)
		rows[0][0][0] = int32(y)
	}
	assert.False(t, b.StartMCUQuantizerRow(s))
	assert.Equal(t, int32(2), b.Quantized(0)[2][0][0])
}

func TestBlockBufferGrowsUntilHeightIsKnown(t *testing.T) {
	f, err := NewFrame(16, 0, 1)
	require.NoError(t, err)
	b := NewBlockBuffer(f)
	assert.Empty(t, b.Quantized(0))

	s, err := NewScan(f, Sequential)
	require.NoError(t, err)
	b.ResetToStartOfScan(s)
	for i := 0; i < 3; i++ {
		require.True(t, b.StartMCUQuantizerRow(s))
	}
	assert.Len(t, b.Quantized(0), 3)

	f.PostImageHeight(9)
	assert.Len(t, b.Quantized(0), 2)
	assert.False(t, b.StartMCUQuantizerRow(s))
}

func TestInterleavedSampling(t *testing.T) {
	f, err := NewFrame(32, 32, 3)
	require.NoError(t, err)
	f.Components[0].MCUWidth, f.Components[0].MCUHeight = 2, 2
	assert.Equal(t, 32, f.SampleWidth(0))
	assert.Equal(t, 16, f.SampleWidth(1))
	assert.Equal(t, 2, f.BlocksDown(2))

	b := NewBlockBuffer(f)
	s, err := NewScan(f, Sequential)
	require.NoError(t, err)
	b.ResetToStartOfScan(s)
	require.True(t, b.StartMCUQuantizerRow(s))
	assert.Len(t, b.CurrentQuantizedRows(0), 2)
	assert.Len(t, b.CurrentQuantizedRows(1), 1)
	require.True(t, b.StartMCUQuantizerRow(s))
	assert.False(t, b.StartMCUQuantizerRow(s))
}

func TestLineBuffer(t *testing.T) {
	f, err := NewFrame(10, 0, 1)
	require.NoError(t, err)
	b := NewLineBuffer(f)
	s, err := NewScan(f, DifferentialLossless)
	require.NoError(t, err)
	b.ResetToStartOfScan(s)
	require.True(t, b.StartMCUQuantizerRow(s))
	assert.Len(t, b.CurrentLines(0), 8)
	assert.Nil(t, b.PreviousLine(0))
	b.CurrentLines(0)[7][0] = 42
	require.True(t, b.StartMCUQuantizerRow(s))
	assert.Equal(t, 8, b.CurrentY(0))
	assert.Equal(t, int32(42), b.PreviousLine(0)[0])
	assert.Len(t, b.Lines(0), 16)

	f.PostImageHeight(11)
	assert.Len(t, b.Lines(0), 11)
	assert.False(t, b.StartMCUQuantizerRow(s))
}
