package bitio

import (
	"testing"

	"github.com/jpfielding/jpegxt.go/pkg/compress/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestByteStuffing(t *testing.T) {
	out := stream.NewMemoryStream(8)
	bs := New(ByteStuffing)
	bs.OpenForWrite(out)
	bs.Put(8, 0xff)
	bs.Put(4, 0x3)
	require.NoError(t, bs.Flush())
	// 0xff is escaped, the partial byte is padded with ones
	assert.Equal(t, []byte{0xff, 0x00, 0x3f}, out.Bytes())

	bs.OpenForRead(out.ReadBack())
	v, err := bs.Get(8)
	require.NoError(t, err)
	assert.EqualValues(t, 0xff, v)
	v, err = bs.Get(4)
	require.NoError(t, err)
	assert.EqualValues(t, 0x3, v)
}

func TestFlushStuffsPaddedFF(t *testing.T) {
	out := stream.NewMemoryStream(8)
	bs := New(ByteStuffing)
	bs.OpenForWrite(out)
	bs.Put(3, 0x7)
	require.NoError(t, bs.Flush())
	assert.Equal(t, []byte{0xff, 0x00}, out.Bytes())
}

func TestBitStuffing(t *testing.T) {
	out := stream.NewMemoryStream(8)
	bs := New(BitStuffing)
	bs.OpenForWrite(out)
	bs.Put(8, 0xff)
	bs.Put(7, 0x7f)
	bs.Put(8, 0xa5)
	require.NoError(t, bs.Flush())
	// the byte after 0xff carries seven bits with a zero MSB
	assert.Equal(t, byte(0xff), out.Bytes()[0])
	assert.Less(t, out.Bytes()[1], byte(0x80))

	bs.OpenForRead(out.ReadBack())
	for _, want := range []struct {
		n uint
		v uint32
	}{{8, 0xff}, {7, 0x7f}, {8, 0xa5}} {
		v, err := bs.Get(want.n)
		require.NoError(t, err)
		assert.Equal(t, want.v, v)
	}
}

func TestSkipStuffing(t *testing.T) {
	in := stream.NewMemoryStreamFrom([]byte{0x12, 0x34, 0x56, 0xff, 0x7f, 0xff, 0xd0})
	bs := New(BitStuffing)
	bs.OpenForRead(in)
	v, err := bs.Get(8)
	require.NoError(t, err)
	assert.EqualValues(t, 0x12, v)
	v, err = bs.Get(24)
	require.NoError(t, err)
	assert.EqualValues(t, 0x3456ff, v)
	// the stuffing byte behind the consumed 0xff hides the marker
	assert.Equal(t, 0x7fff, in.PeekWord())
	bs.SkipStuffing()
	assert.Equal(t, 0xffd0, in.PeekWord())
	v, err = bs.Get(7)
	require.NoError(t, err)
	assert.EqualValues(t, 0x7f, v)
	assert.True(t, bs.IsMarker())
}

func TestMarkerStopsReading(t *testing.T) {
	in := stream.NewMemoryStreamFrom([]byte{0xa5, 0xff, 0xd0, 0x12})
	bs := New(ByteStuffing)
	bs.OpenForRead(in)
	v, err := bs.Get(8)
	require.NoError(t, err)
	assert.EqualValues(t, 0xa5, v)
	assert.True(t, bs.IsMarker())
	// one byte of zero padding, then the marker blocks
	v, err = bs.Get(8)
	require.NoError(t, err)
	assert.Zero(t, v)
	_, err = bs.Get(1)
	assert.ErrorIs(t, err, stream.ErrUnexpectedMarker)
	assert.Equal(t, 0xffd0, in.PeekWord())
}

func TestEOF(t *testing.T) {
	bs := New(ByteStuffing)
	bs.OpenForRead(stream.NewMemoryStreamFrom([]byte{0x80}))
	_, err := bs.Get(16)
	require.NoError(t, err)
	assert.True(t, bs.IsEOF())
	_, err = bs.Get(1)
	assert.ErrorIs(t, err, stream.ErrUnexpectedEOF)
}

func TestPending(t *testing.T) {
	bs := New(ByteStuffing)
	bs.OpenForRead(stream.NewMemoryStreamFrom([]byte{0x12, 0x34, 0xff, 0xdc}))
	assert.Zero(t, bs.Pending())
	_, err := bs.Get(4)
	require.NoError(t, err)
	// both data bytes are buffered, the padding behind the marker does not count
	assert.EqualValues(t, 12, bs.Pending())
	_, err = bs.Get(8)
	require.NoError(t, err)
	assert.EqualValues(t, 4, bs.Pending())
}

func TestGetBits(t *testing.T) {
	out := stream.NewMemoryStream(8)
	bs := New(ByteStuffing)
	bs.OpenForWrite(out)
	bs.Put(32, 0x12345678)
	require.NoError(t, bs.Flush())

	bs.OpenForRead(out.ReadBack())
	v, err := bs.GetBits(32)
	require.NoError(t, err)
	assert.EqualValues(t, 0x12345678, v)
}

func TestPeekAndSkip(t *testing.T) {
	bs := New(ByteStuffing)
	bs.OpenForRead(stream.NewMemoryStreamFrom([]byte{0xab, 0xcd}))
	assert.EqualValues(t, 0xabcd, bs.PeekWord())
	require.NoError(t, bs.SkipBits(4))
	assert.EqualValues(t, 0xbcd0, bs.PeekWord())
}

func TestStickyWriteError(t *testing.T) {
	bs := New(ByteStuffing)
	bs.OpenForWrite(stream.NewStaticWriter(make([]byte, 1)))
	bs.Put(24, 0x123456)
	assert.ErrorIs(t, bs.Err(), stream.ErrOverflow)
	assert.ErrorIs(t, bs.Flush(), stream.ErrOverflow)
}
