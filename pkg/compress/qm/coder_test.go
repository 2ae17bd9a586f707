package qm

import (
	"math/rand/v2"
	"testing"

	"github.com/jpfielding/jpegxt.go/pkg/compress/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// decisions draws n decisions over four contexts, each with its own skew
func decisions(seed uint64, n int) ([]int, []bool) {
	rng := rand.New(rand.NewPCG(seed, 7))
	skew := []float64{0.5, 0.9, 0.05, 0.99}
	ctx := make([]int, n)
	bits := make([]bool, n)
	for i := range bits {
		ctx[i] = rng.IntN(len(skew))
		bits[i] = rng.Float64() < skew[ctx[i]]
	}
	return ctx, bits
}

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		seed uint64
		n    int
	}{
		{"empty", 1, 0},
		{"single", 2, 1},
		{"short", 3, 17},
		{"long", 4, 20000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctxIdx, bits := decisions(tt.seed, tt.n)
			out := stream.NewMemoryStream(1024)
			enc := NewCoder()
			enc.OpenForWrite(out)
			var ctx [4]Context
			for i, b := range bits {
				enc.Put(&ctx[ctxIdx[i]], b)
			}
			require.NoError(t, enc.Flush())

			// a marker behind the data must read as zero bits
			require.NoError(t, out.PutWord(0xffd9))
			in := out.ReadBack()
			dec := NewCoder()
			dec.OpenForRead(in)
			ctx = [4]Context{}
			for i, b := range bits {
				require.Equal(t, b, dec.Get(&ctx[ctxIdx[i]]), "decision %d", i)
			}
			assert.Equal(t, 0xffd9, in.PeekWord())
		})
	}
}

func TestCompresses(t *testing.T) {
	out := stream.NewMemoryStream(1024)
	enc := NewCoder()
	enc.OpenForWrite(out)
	var ctx Context
	for i := 0; i < 8000; i++ {
		enc.Put(&ctx, i%100 == 0)
	}
	require.NoError(t, enc.Flush())
	assert.Less(t, out.Len(), 200)
}

func TestUniformContext(t *testing.T) {
	var ctx Context
	ctx.InitUniform()
	enc := NewCoder()
	enc.OpenForWrite(stream.NewMemoryStream(64))
	for i := 0; i < 50; i++ {
		enc.Put(&ctx, i%3 == 0)
	}
	assert.EqualValues(t, UniformState, ctx.Index)
	assert.False(t, ctx.MPS)
}

func TestZeroContextIsInit(t *testing.T) {
	ctx := Context{Index: 20, MPS: true}
	ctx.Init()
	assert.Equal(t, Context{}, ctx)
}

func TestOverflow(t *testing.T) {
	enc := NewCoder()
	enc.OpenForWrite(stream.NewStaticWriter(make([]byte, 2)))
	ctx := Context{}
	ctx.InitUniform()
	for i := 0; i < 200; i++ {
		enc.Put(&ctx, i*7%3 == 0)
	}
	assert.ErrorIs(t, enc.Flush(), stream.ErrOverflow)
}
