package codestream

import (
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/jpfielding/jpegxt.go/pkg/compress/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type frameSetup struct {
	name       string
	width      int
	height     int
	components int
	restart    int
	hadamard   bool
}

func (fs frameSetup) frame(t *testing.T, height int) *Frame {
	f, err := NewFrame(fs.width, height, fs.components)
	require.NoError(t, err)
	f.RestartInterval = fs.restart
	f.Hadamard = fs.hadamard
	return f
}

func newBuffer(f *Frame, kind Kind) BufferCtrl {
	if kind.LineBased() {
		return NewLineBuffer(f)
	}
	return NewBlockBuffer(f)
}

// fill writes pseudo random coefficients shaped like a quantized image
func fill(ctrl BufferCtrl, f *Frame, kind Kind, seed uint64) {
	rng := rand.New(rand.NewPCG(seed, uint64(kind)))
	switch b := ctrl.(type) {
	case *LineBuffer:
		for i := range f.Components {
			for _, line := range b.Lines(i) {
				for x := range line {
					if kind.Differential() {
						line[x] = rng.Int32N(121) - 60
					} else {
						line[x] = rng.Int32N(256)
					}
				}
			}
		}
	case *BlockBuffer:
		density := 3
		if kind == ResidualSequential {
			density = 40
		}
		for i := range f.Components {
			dc := int32(0)
			for _, row := range b.Quantized(i) {
				for x := range row {
					dc = max(-100, min(100, dc+rng.Int32N(21)-10))
					row[x][0] = dc
					for k := 1; k < 64; k++ {
						if rng.IntN(k+2) == 0 {
							amp := int32(1 + 40/k)
							row[x][ScanOrder[k]] = rng.Int32N(2*amp+1) - amp
						}
					}
				}
			}
			if !kind.ResidualRows() {
				continue
			}
			for _, row := range b.Residual(i) {
				for x := range row {
					for k := range row[x] {
						if rng.IntN(density) == 0 {
							row[x][k] = rng.Int32N(5) - 2
						}
					}
				}
			}
		}
	}
}

func assertSameData(t *testing.T, f *Frame, kind Kind, want, got BufferCtrl) {
	t.Helper()
	switch w := want.(type) {
	case *LineBuffer:
		g := got.(*LineBuffer)
		for i := range f.Components {
			assert.Equal(t, w.Lines(i), g.Lines(i), "component %d", i)
		}
	case *BlockBuffer:
		g := got.(*BlockBuffer)
		for i := range f.Components {
			assert.Equal(t, w.Quantized(i), g.Quantized(i), "component %d", i)
			if kind.ResidualRows() {
				assert.Equal(t, w.Residual(i), g.Residual(i), "residual of component %d", i)
			}
		}
	}
}

// encodeContainer plans, fills and writes a frame of kind
func encodeContainer(t *testing.T, fs frameSetup, kind Kind, dnl, optimize bool) (*Frame, BufferCtrl, []byte) {
	t.Helper()
	f := fs.frame(t, fs.height)
	f.WriteDNL = dnl
	scans, err := Plan(f, kind)
	require.NoError(t, err)
	src := newBuffer(f, kind)
	fill(src, f, kind, 7)
	out := stream.NewMemoryStream(1 << 14)
	require.NoError(t, WriteContainer(out, scans, src, optimize))
	return f, src, out.Bytes()
}

func decodeContainer(t *testing.T, fs frameSetup, kind Kind, height int, data []byte) (*Frame, BufferCtrl, int) {
	t.Helper()
	f := fs.frame(t, height)
	scans, err := Plan(f, kind)
	require.NoError(t, err)
	dst := newBuffer(f, kind)
	frameType, err := ReadContainer(stream.NewMemoryStreamFrom(data), scans, dst)
	require.NoError(t, err)
	return f, dst, frameType
}

func TestRoundTrip(t *testing.T) {
	setups := []frameSetup{
		{name: "gray", width: 40, height: 24, components: 1},
		{name: "color with restarts", width: 24, height: 16, components: 3, restart: 2},
		{name: "odd size", width: 21, height: 13, components: 2},
	}
	for _, kind := range Kinds() {
		for _, fs := range setups {
			t.Run(kind.String()+"/"+fs.name, func(t *testing.T) {
				f, src, data := encodeContainer(t, fs, kind, false, true)
				_, dst, _ := decodeContainer(t, fs, kind, fs.height, data)
				assertSameData(t, f, kind, src, dst)
			})
		}
	}
}

func TestRoundTripHadamard(t *testing.T) {
	fs := frameSetup{name: "hadamard", width: 32, height: 16, components: 2, hadamard: true}
	for _, kind := range []Kind{Residual, ResidualHuffman} {
		t.Run(kind.String(), func(t *testing.T) {
			f, src, data := encodeContainer(t, fs, kind, false, true)
			_, dst, _ := decodeContainer(t, fs, kind, fs.height, data)
			assertSameData(t, f, kind, src, dst)
		})
	}
}

func TestRoundTripDefaultTables(t *testing.T) {
	fs := frameSetup{width: 32, height: 24, components: 3, restart: 3}
	for _, kind := range []Kind{Sequential, Refinement, Lossless, DifferentialLossless, HiddenResidual} {
		t.Run(kind.String(), func(t *testing.T) {
			f, src, data := encodeContainer(t, fs, kind, false, false)
			_, dst, _ := decodeContainer(t, fs, kind, fs.height, data)
			assertSameData(t, f, kind, src, dst)
		})
	}
}

func TestRoundTripDNL(t *testing.T) {
	setups := []frameSetup{
		{name: "gray", width: 24, height: 20, components: 1},
		{name: "color", width: 16, height: 24, components: 3},
		{name: "restarts", width: 40, height: 12, components: 1, restart: 3},
	}
	for _, kind := range []Kind{Sequential, Refinement, Lossless, DifferentialLossless, ResidualSequential} {
		for _, fs := range setups {
			t.Run(kind.String()+"/"+fs.name, func(t *testing.T) {
				f, src, data := encodeContainer(t, fs, kind, true, true)
				g, dst, _ := decodeContainer(t, fs, kind, 0, data)
				assert.Equal(t, fs.height, g.Height)
				assertSameData(t, f, kind, src, dst)
			})
		}
	}
}

// the DNL marker is found at the first MCU of the row below the image, the
// rest of that row must not read past it
func TestDNLEndsMCURow(t *testing.T) {
	for _, kind := range []Kind{Sequential, Refinement, Lossless} {
		for _, height := range []int{8, 16, 20, 24} {
			fs := frameSetup{width: 24, height: height, components: 1}
			t.Run(fmt.Sprintf("%s/%d", kind, height), func(t *testing.T) {
				f, src, data := encodeContainer(t, fs, kind, true, true)
				g, dst, _ := decodeContainer(t, fs, kind, 0, data)
				assert.Equal(t, height, g.Height)
				assertSameData(t, f, kind, src, dst)
			})
		}
	}
}

func TestFrameType(t *testing.T) {
	fs := frameSetup{width: 16, height: 16, components: 1}
	tests := []struct {
		kind Kind
		want int
	}{
		{Sequential, 0xffc1},
		{Refinement, 0xffc2},
		{Lossless, 0xffc3},
		{DifferentialLossless, 0xffc7},
		{ACLossless, 0xffcb},
		{ACDifferentialLossless, 0xffcf},
		{ResidualSequential, 0xffc1},
		{ResidualHuffman, 0xffc1},
		{HiddenRefinement, 0xffc2},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			_, _, data := encodeContainer(t, fs, tt.kind, false, true)
			require.GreaterOrEqual(t, len(data), 2)
			assert.Equal(t, tt.want, int(data[0])<<8|int(data[1]))
			_, _, frameType := decodeContainer(t, fs, tt.kind, fs.height, data)
			assert.Equal(t, tt.want, frameType)
		})
	}
}

func TestTablesAreDeterministic(t *testing.T) {
	f, err := NewFrame(24, 16, 1)
	require.NoError(t, err)
	src := NewBlockBuffer(f)
	fill(src, f, Sequential, 3)
	scan, err := NewScan(f, Sequential)
	require.NoError(t, err)

	first := stream.NewMemoryStream(1024)
	require.NoError(t, EncodeScan(scan, first, src, true))
	second := stream.NewMemoryStream(1024)
	require.NoError(t, EncodeScan(scan, second, src, true))
	assert.Equal(t, first.Bytes(), second.Bytes())
}

func TestContainerErrors(t *testing.T) {
	f, err := NewFrame(16, 16, 1)
	require.NoError(t, err)
	scan, err := NewScan(f, Sequential)
	require.NoError(t, err)

	err = WriteContainer(stream.NewMemoryStream(16), nil, NewBlockBuffer(f), true)
	assert.ErrorIs(t, err, stream.ErrInvalidParameter)

	_, err = ReadContainer(stream.NewMemoryStreamFrom([]byte{0x12, 0x34}), []*Scan{scan}, NewBlockBuffer(f))
	assert.ErrorIs(t, err, stream.ErrMalformedStream)

	// frame type followed by EOI instead of a scan
	_, err = ReadContainer(stream.NewMemoryStreamFrom([]byte{0xff, 0xc1, 0xff, 0xd9}), []*Scan{scan}, NewBlockBuffer(f))
	assert.ErrorIs(t, err, stream.ErrMalformedStream)
}

func TestKinds(t *testing.T) {
	kinds := Kinds()
	assert.Len(t, kinds, 15)
	for _, k := range kinds {
		got, err := ParseKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}
	_, err := ParseKind("jpeg2000")
	assert.ErrorIs(t, err, stream.ErrInvalidParameter)
	assert.Equal(t, "kind(99)", Kind(99).String())
}
