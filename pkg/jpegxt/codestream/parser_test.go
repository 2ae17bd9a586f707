package codestream

import (
	"bytes"
	"testing"

	"github.com/jpfielding/jpegxt.go/pkg/compress/huffman"
	"github.com/jpfielding/jpegxt.go/pkg/compress/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blockFrame returns a single component frame of n blocks in one row with the given DC values
func blockFrame(t *testing.T, restart int, dcs ...int32) (*Frame, *BlockBuffer) {
	t.Helper()
	f, err := NewFrame(8*len(dcs), 8, 1)
	require.NoError(t, err)
	f.RestartInterval = restart
	b := NewBlockBuffer(f)
	for x, dc := range dcs {
		blk := &b.Quantized(0)[0][x]
		blk[0] = dc
		blk[1] = int32(x + 1)
		blk[8] = -2
	}
	return f, b
}

func TestRestartMarkers(t *testing.T) {
	f, err := NewFrame(16, 16, 1)
	require.NoError(t, err)
	f.RestartInterval = 2
	src := NewBlockBuffer(f)
	fill(src, f, Sequential, 1)
	scan, err := NewScan(f, Sequential)
	require.NoError(t, err)

	out := stream.NewMemoryStream(512)
	require.NoError(t, EncodeScan(scan, out, src, false))
	// four MCUs in segments of two
	assert.Equal(t, 1, bytes.Count(out.Bytes(), []byte{0xff, 0xd0}))
	assert.Equal(t, 0, bytes.Count(out.Bytes(), []byte{0xff, 0xd1}))

	g, err := NewFrame(16, 16, 1)
	require.NoError(t, err)
	g.RestartInterval = 2
	dst := NewBlockBuffer(g)
	rscan, err := NewScan(g, Sequential)
	require.NoError(t, err)
	require.NoError(t, DecodeScan(rscan, stream.NewMemoryStreamFrom(out.Bytes()), dst))
	assert.Equal(t, src.Quantized(0), dst.Quantized(0))
}

func TestCorruptRestartMarker(t *testing.T) {
	_, src := blockFrame(t, 1, 5, 6, 7, 8)
	scan, err := NewScan(src.frame, Sequential)
	require.NoError(t, err)
	out := stream.NewMemoryStream(256)
	require.NoError(t, EncodeScan(scan, out, src, false))

	data := append([]byte(nil), out.Bytes()...)
	at := bytes.Index(data, []byte{0xff, 0xd0})
	require.GreaterOrEqual(t, at, 0)
	data[at+1] = 0xd4

	g, dst := blockFrame(t, 1, 0, 0, 0, 0)
	rscan, err := NewScan(g, Sequential)
	require.NoError(t, err)
	require.NoError(t, DecodeScan(rscan, stream.NewMemoryStreamFrom(data), dst))

	want, got := src.Quantized(0)[0], dst.Quantized(0)[0]
	assert.Equal(t, want[0], got[0])
	assert.Equal(t, Block{}, got[1], "lost segment reads as zero")
	assert.Equal(t, want[2], got[2])
	assert.Equal(t, want[3], got[3])
}

func TestMissingRestartMarkerAtEnd(t *testing.T) {
	_, src := blockFrame(t, 1, 5, 6)
	scan, err := NewScan(src.frame, Sequential)
	require.NoError(t, err)
	out := stream.NewMemoryStream(256)
	require.NoError(t, EncodeScan(scan, out, src, false))

	// cut the second segment and its restart marker
	data := out.Bytes()
	at := bytes.Index(data, []byte{0xff, 0xd0})
	require.GreaterOrEqual(t, at, 0)
	data = append(append([]byte(nil), data[:at]...), 0xff, 0xd9)

	g, dst := blockFrame(t, 1, 0, 0)
	rscan, err := NewScan(g, Sequential)
	require.NoError(t, err)
	require.NoError(t, DecodeScan(rscan, stream.NewMemoryStreamFrom(data), dst))
	assert.Equal(t, src.Quantized(0)[0][0], dst.Quantized(0)[0][0])
	assert.Equal(t, Block{}, dst.Quantized(0)[0][1])
}

func TestDCPrediction(t *testing.T) {
	tests := []struct {
		name    string
		restart int
		want    map[byte]uint32 // category counts of the DC differences
	}{
		// differences 10, 2, -4
		{"predicted", 0, map[byte]uint32{4: 1, 2: 1, 3: 1}},
		// every block restarts the prediction
		{"restarted", 1, map[byte]uint32{4: 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, src := blockFrame(t, tt.restart, 10, 12, 8)
			scan, err := NewScan(src.frame, Sequential)
			require.NoError(t, err)
			require.NoError(t, MeasureScan(scan, src))
			st := scan.Statistics(huffman.DC, 0)
			for symbol := 0; symbol < 16; symbol++ {
				assert.Equal(t, tt.want[byte(symbol)], st.Count(byte(symbol)), "category %d", symbol)
			}
			// one EOB per block
			assert.Equal(t, uint32(3), scan.Statistics(huffman.AC, 0).Count(0x00))
		})
	}
}

func TestWriteDNLMarker(t *testing.T) {
	out := stream.NewMemoryStream(8)
	require.NoError(t, WriteDNLMarker(out, 0x1234))
	assert.Equal(t, []byte{0xff, 0xdc, 0x00, 0x04, 0x12, 0x34}, out.Bytes())
	assert.ErrorIs(t, WriteDNLMarker(out, 0), stream.ErrInvalidParameter)
	assert.ErrorIs(t, WriteDNLMarker(out, 0x10000), stream.ErrInvalidParameter)
}

func TestParseDNLMarker(t *testing.T) {
	tests := []struct {
		name   string
		data   []byte
		found  bool
		height int
		err    error
	}{
		{"marker", []byte{0xff, 0xdc, 0x00, 0x04, 0x00, 0x30}, true, 48, nil},
		{"fill bytes", []byte{0xff, 0xff, 0xdc, 0x00, 0x04, 0x00, 0x11}, true, 17, nil},
		{"other marker", []byte{0xff, 0xd9}, false, 0, nil},
		{"bad length", []byte{0xff, 0xdc, 0x00, 0x05, 0x00, 0x30, 0x00}, false, 0, stream.ErrMalformedStream},
		{"zero height", []byte{0xff, 0xdc, 0x00, 0x04, 0x00, 0x00}, false, 0, stream.ErrMalformedStream},
		{"truncated", []byte{0xff, 0xdc, 0x00, 0x04, 0x01}, false, 0, stream.ErrUnexpectedEOF},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := NewFrame(8, 0, 1)
			require.NoError(t, err)
			scan, err := NewScan(f, Sequential)
			require.NoError(t, err)
			p := newParser(f, scan, nil)
			found, err := p.ParseDNLMarker(stream.NewMemoryStreamFrom(tt.data))
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.found, found)
			assert.Equal(t, tt.found, p.DNLFound())
			assert.Equal(t, tt.height, f.Height)
		})
	}
}

func TestUnknownHeightWithoutDNL(t *testing.T) {
	f, err := NewFrame(16, 16, 1)
	require.NoError(t, err)
	src := NewBlockBuffer(f)
	fill(src, f, Sequential, 2)
	scan, err := NewScan(f, Sequential)
	require.NoError(t, err)
	out := stream.NewMemoryStream(256)
	require.NoError(t, EncodeScan(scan, out, src, false))
	require.NoError(t, out.PutWord(markerEOI))

	g, err := NewFrame(16, 0, 1)
	require.NoError(t, err)
	rscan, err := NewScan(g, Sequential)
	require.NoError(t, err)
	err = DecodeScan(rscan, stream.NewMemoryStreamFrom(out.Bytes()), NewBlockBuffer(g))
	assert.Error(t, err)
}

// restartMarkers returns the offsets of the RST markers behind offset from
func restartMarkers(data []byte, from int) []int {
	var at []int
	for i := from; i+1 < len(data); i++ {
		if data[i] == 0xff && data[i+1] >= 0xd0 && data[i+1] <= 0xd7 {
			at = append(at, i)
		}
	}
	return at
}

func TestCorruptRestartMarkerAfterWrap(t *testing.T) {
	// eleven MCUs, the ninth marker is RST0 again
	fs := frameSetup{width: 88, height: 8, components: 1, restart: 1}
	for _, kind := range []Kind{Sequential, ACSequential, Refinement} {
		t.Run(kind.String(), func(t *testing.T) {
			_, src, data := encodeContainer(t, fs, kind, false, true)
			data = append([]byte(nil), data...)
			sos := bytes.LastIndex(data, []byte{0xff, 0xda})
			require.GreaterOrEqual(t, sos, 0)
			rst := restartMarkers(data, sos+2)
			require.Len(t, rst, 10)
			for i, at := range rst {
				assert.Equal(t, byte(0xd0+i%8), data[at+1], "marker %d", i)
			}
			data[rst[8]+1] = 0xd4

			_, dst, _ := decodeContainer(t, fs, kind, fs.height, data)
			want := src.(*BlockBuffer).Quantized(0)[0]
			got := dst.(*BlockBuffer).Quantized(0)[0]
			require.Len(t, got, 11)
			for x := range want {
				if x != 9 {
					assert.Equal(t, want[x], got[x], "block %d", x)
				}
			}
			var lost Block
			if kind == Refinement {
				// the refined DC and the coarse AC data survive
				lost[0] = want[9][0]
				for k := 1; k < 64; k++ {
					lost[k] = pointTransform(want[9][k], 1) << 1
				}
			}
			assert.Equal(t, lost, got[9])
		})
	}
}
