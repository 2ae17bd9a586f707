package huffman

import (
	"testing"

	"github.com/jpfielding/jpegxt.go/pkg/compress/bitio"
	"github.com/jpfielding/jpegxt.go/pkg/compress/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func roundTrip(t *testing.T, table *Table, symbols []byte) {
	t.Helper()
	out := stream.NewMemoryStream(256)
	bs := bitio.New(bitio.ByteStuffing)
	bs.OpenForWrite(out)
	for _, s := range symbols {
		require.NoError(t, table.Coder().Put(bs, s))
	}
	require.NoError(t, bs.Flush())

	bs.OpenForRead(out.ReadBack())
	for i, want := range symbols {
		got, err := table.Decoder().Get(bs)
		require.NoError(t, err, "symbol %d", i)
		require.Equal(t, want, got, "symbol %d", i)
	}
}

func TestDefaultTables(t *testing.T) {
	tests := []struct {
		name  string
		table *Table
	}{
		{"dc luminance", DCLuminance},
		{"dc chrominance", DCChrominance},
		{"ac luminance", ACLuminance},
		{"residual", Residual},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// every symbol, forwards and backwards
			symbols := append([]byte(nil), tt.table.Values...)
			for i := len(tt.table.Values) - 1; i >= 0; i-- {
				symbols = append(symbols, tt.table.Values[i])
			}
			roundTrip(t, tt.table, symbols)
		})
	}
}

func TestNewTableRejectsOverfull(t *testing.T) {
	_, err := NewTable([16]uint8{3}, []byte{0, 1, 2})
	assert.ErrorIs(t, err, stream.ErrMalformedStream)
	_, err = NewTable([16]uint8{1}, []byte{0, 1})
	assert.ErrorIs(t, err, stream.ErrMalformedStream)
}

func TestMissingSymbol(t *testing.T) {
	bs := bitio.New(bitio.ByteStuffing)
	bs.OpenForWrite(stream.NewMemoryStream(4))
	assert.False(t, DCLuminance.Coder().Has(12))
	assert.ErrorIs(t, DCLuminance.Coder().Put(bs, 12), stream.ErrInvalidParameter)
}

func TestDecodeAtMarker(t *testing.T) {
	bs := bitio.New(bitio.ByteStuffing)
	bs.OpenForRead(stream.NewMemoryStreamFrom([]byte{0xff, 0xd9}))
	// the zero padding decodes as the 2 bit code of symbol 0, then the marker blocks
	s, err := DCLuminance.Decoder().Get(bs)
	require.NoError(t, err)
	assert.Zero(t, s)
	for i := 0; i < 3; i++ {
		_, err = DCLuminance.Decoder().Get(bs)
		require.NoError(t, err)
	}
	_, err = DCLuminance.Decoder().Get(bs)
	assert.ErrorIs(t, err, stream.ErrUnexpectedMarker)
}

func TestStatistics(t *testing.T) {
	st := NewStatistics()
	assert.True(t, st.Empty())
	symbols := []byte{}
	for i := 0; i < 100; i++ {
		symbols = append(symbols, 0x00)
	}
	for i := 0; i < 10; i++ {
		symbols = append(symbols, 0x11, 0x22)
	}
	symbols = append(symbols, 0xf0)
	for _, s := range symbols {
		st.Put(s)
	}
	assert.False(t, st.Empty())
	assert.EqualValues(t, 100, st.Count(0x00))

	sizes := st.CodeSizes()
	assert.Less(t, sizes[0x00], sizes[0x11])
	assert.LessOrEqual(t, sizes[0x11], sizes[0xf0])
	assert.Zero(t, sizes[0x33])

	table, err := st.Table()
	require.NoError(t, err)
	assert.Equal(t, 4, table.Len())
	roundTrip(t, table, symbols)

	st.Reset()
	assert.True(t, st.Empty())
}

func TestStatisticsSingleSymbol(t *testing.T) {
	st := NewStatistics()
	st.Put(7)
	table, err := st.Table()
	require.NoError(t, err)
	roundTrip(t, table, []byte{7, 7, 7})
}

func TestStatisticsLengthLimit(t *testing.T) {
	// fibonacci counts make the unconstrained code far deeper than 16 bits
	st := NewStatistics()
	a, b := uint32(1), uint32(1)
	for s := 0; s < 30; s++ {
		for i := uint32(0); i < a; i++ {
			st.Put(byte(s))
		}
		a, b = b, a+b
	}
	for _, size := range st.CodeSizes() {
		assert.LessOrEqual(t, size, uint8(16))
	}
	table, err := st.Table()
	require.NoError(t, err)
	symbols := make([]byte, 30)
	for i := range symbols {
		symbols[i] = byte(i)
	}
	roundTrip(t, table, symbols)
}

func TestSetMarker(t *testing.T) {
	set := &Set{}
	set.SetTable(DC, 0, DCLuminance)
	set.SetTable(AC, 1, ACLuminance)
	set.SetTable(DC, 3, Residual)

	out := stream.NewMemoryStream(512)
	require.NoError(t, set.WriteMarker(out))

	parsed := &Set{}
	require.NoError(t, parsed.ParseMarker(out.ReadBack()))
	for _, c := range []struct {
		class Class
		id    int
		want  *Table
	}{{DC, 0, DCLuminance}, {AC, 1, ACLuminance}, {DC, 3, Residual}} {
		got := parsed.Table(c.class, c.id)
		require.NotNil(t, got)
		assert.Equal(t, c.want.Bits, got.Bits)
		assert.Equal(t, c.want.Values, got.Values)
	}
	assert.Nil(t, parsed.Table(AC, 0))
}

func TestSetMarkerTruncated(t *testing.T) {
	set := DefaultSet()
	out := stream.NewMemoryStream(512)
	require.NoError(t, set.WriteMarker(out))
	data := out.Bytes()
	parsed := &Set{}
	err := parsed.ParseMarker(stream.NewMemoryStreamFrom(data[:len(data)-5]))
	assert.ErrorIs(t, err, stream.ErrUnexpectedEOF)
}
