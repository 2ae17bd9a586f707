package codestream

import (
	"testing"

	"github.com/jpfielding/jpegxt.go/pkg/compress/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBiasEstimator(t *testing.T) {
	var e biasEstimator
	for i := 0; i < 64; i++ {
		e.adapt(10)
	}
	assert.Equal(t, biasEstimator{DC: 10, N: 64, B: 640}, e)
	e.adapt(10)
	assert.Equal(t, biasEstimator{DC: 10, N: 32, B: 325}, e)
	e.adapt(-10)
	assert.Equal(t, int32(33), e.N)
	assert.Equal(t, int32(315), e.B)
	assert.Equal(t, int32(9), e.DC)

	var neg biasEstimator
	for i := 0; i < 65; i++ {
		neg.adapt(-3)
	}
	assert.Equal(t, biasEstimator{DC: -3, N: 32, B: -97}, neg)
}

func TestNeighbourClass(t *testing.T) {
	var r Block
	assert.Equal(t, 0, neighbourClass(&r, 0))
	r[8], r[0], r[1] = 5, 5, -5
	// left, top-left and top of position 9
	assert.Equal(t, 1, neighbourClass(&r, 9))
	r[1] = 5
	assert.Equal(t, 5, neighbourClass(&r, 9))
	r[8], r[0], r[1] = -2, -2, -2
	assert.Equal(t, 6, neighbourClass(&r, 9))
	// small values are treated as zero
	r[8], r[0], r[1] = 1, 1, 1
	assert.Equal(t, 0, neighbourClass(&r, 9))
}

func TestResidualRestartPanics(t *testing.T) {
	f, err := NewFrame(16, 16, 1)
	require.NoError(t, err)
	s, err := NewScan(f, Residual)
	require.NoError(t, err)
	assert.Panics(t, func() { _ = NewResidualScan(s).Restart() })
}

func TestSideChannelMissing(t *testing.T) {
	for _, kind := range []Kind{Residual, ResidualHuffman, HiddenRefinement, HiddenACRefinement, HiddenResidual, HiddenACResidual} {
		t.Run(kind.String(), func(t *testing.T) {
			f, err := NewFrame(16, 16, 1)
			require.NoError(t, err)
			scans, err := Plan(f, kind)
			require.NoError(t, err)
			err = DecodeScan(scans[1], nil, NewBlockBuffer(f))
			assert.ErrorIs(t, err, stream.ErrMalformedStream)
		})
	}
}

func TestSideChannelFrameType(t *testing.T) {
	f, err := NewFrame(16, 16, 1)
	require.NoError(t, err)
	s, err := NewScan(f, Residual)
	require.NoError(t, err)
	c, err := s.Coder()
	require.NoError(t, err)
	assert.ErrorIs(t, c.WriteFrameType(stream.NewMemoryStream(2)), stream.ErrInvalidParameter)

	legacy, err := NewScan(f, Sequential)
	require.NoError(t, err)
	s.Next = legacy
	out := stream.NewMemoryStream(2)
	require.NoError(t, c.WriteFrameType(out))
	assert.Equal(t, []byte{0xff, 0xc1}, out.Bytes())
}

func TestSideChannelSegments(t *testing.T) {
	fs := frameSetup{width: 32, height: 16, components: 1}
	_, _, data := encodeContainer(t, fs, HiddenRefinement, false, true)
	// frame type, then the refinement side channel
	require.Greater(t, len(data), 10)
	assert.Equal(t, []byte{0xff, 0xe9}, data[2:4])
	assert.Equal(t, "JPFINE", string(data[6:12]))
}

func TestResidualSequentialOverflow(t *testing.T) {
	f, err := NewFrame(8, 8, 1)
	require.NoError(t, err)
	src := NewBlockBuffer(f)
	res := &src.Residual(0)[0][0]
	for k := range res {
		res[k] = int32(k%7) - 3
		if res[k] == 0 {
			res[k] = 9
		}
	}
	scan, err := NewScan(f, ResidualSequential)
	require.NoError(t, err)
	err = EncodeScan(scan, stream.NewMemoryStream(256), src, false)
	assert.ErrorIs(t, err, stream.ErrOverflow)
}
