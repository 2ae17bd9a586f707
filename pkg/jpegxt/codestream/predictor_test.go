package codestream

import (
	"testing"

	"github.com/jpfielding/jpegxt.go/pkg/compress/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPredictorChain(t *testing.T) {
	mode := PredictLinear
	first := mode.start()
	assert.Equal(t, predictNeutral, first)
	assert.Equal(t, PredictLeft, first.right(mode), "first line")
	assert.Equal(t, PredictTop, first.down(mode), "first column")
	assert.Equal(t, mode, PredictLeft.down(mode))
	assert.Equal(t, mode, PredictTop.right(mode))
	assert.Equal(t, PredictLeft, PredictLeft.right(mode))
	assert.Equal(t, PredictTop, PredictTop.down(mode))
	assert.Equal(t, mode, mode.right(mode))
	assert.Equal(t, mode, mode.down(mode))
	assert.Equal(t, PredictNone, PredictNone.start())
}

func TestPredict(t *testing.T) {
	// a = 10, b = 40, c = 30
	ln, pp := []int32{10, 20}, []int32{30, 40}
	tests := []struct {
		p    Predictor
		want int32
	}{
		{PredictNone, 0},
		{PredictLeft, 10},
		{PredictTop, 40},
		{PredictLeftTop, 30},
		{PredictLinear, 20},
		{PredictWeightA, 15},
		{PredictWeightB, 30},
		{PredictDiagonal, 25},
		{predictNeutral, 128},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.p.predict(ln, pp, 1, 0, 128), "predictor %d", tt.p)
	}
	assert.Equal(t, int32(5), PredictLeft.predict([]int32{11, 0}, nil, 1, 1, 128), "point transformed")
}

func TestPredictorDifference(t *testing.T) {
	tests := []struct {
		name     string
		p        Predictor
		v, pred  int32
		preshift int
		want     int32
		err      error
	}{
		{"largest difference", PredictNone, 0x7fff, 0, 0, 0x7fff, nil},
		{"smallest difference", PredictNone, -0x8000, 0, 0, -0x8000, nil},
		{"difference too large", PredictNone, 0x8000, 0, 0, 0, stream.ErrOverflow},
		{"difference too small", PredictNone, -0x8001, 0, 0, 0, stream.ErrOverflow},
		{"shifted difference too large", PredictNone, 0x10000, 0, 1, 0, stream.ErrOverflow},
		{"wraps down", PredictLeft, 0xffff, 0, 0, -1, nil},
		{"wraps up", PredictLeft, 0, 0xffff, 0, 1, nil},
		{"plain", PredictTop, 100, 90, 0, 10, nil},
		{"negative sample", PredictLeft, -1, 0, 0, 0, stream.ErrOverflow},
		{"sample too large", PredictLeft, 0x10000, 0, 0, 0, stream.ErrOverflow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := tt.p.difference(tt.v, tt.pred, tt.preshift)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, d)
			assert.Equal(t, tt.v, tt.p.reconstruct(d, tt.pred, tt.preshift))
		})
	}
}

func TestLosslessSampleRange(t *testing.T) {
	tests := []struct {
		kind   Kind
		sample int32
	}{
		{DifferentialLossless, 0x8000},
		{DifferentialLossless, -0x8001},
		{Lossless, -1},
		{ACLossless, 0x10000},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			f, err := NewFrame(8, 8, 1)
			require.NoError(t, err)
			b := NewLineBuffer(f)
			b.Lines(0)[3][2] = tt.sample
			scan, err := NewScan(f, tt.kind)
			require.NoError(t, err)
			err = EncodeScan(scan, stream.NewMemoryStream(256), b, false)
			assert.ErrorIs(t, err, stream.ErrOverflow)
		})
	}
}
