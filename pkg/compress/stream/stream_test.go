package stream

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStream(t *testing.T) {
	m := NewMemoryStream(4)
	require.NoError(t, m.PutWord(0xffd8))
	require.NoError(t, m.Put(0x12))
	assert.Equal(t, 3, m.Len())

	assert.Equal(t, 0xffd8, m.PeekWord())
	assert.Equal(t, 0xffd8, m.GetWord())
	assert.Equal(t, 0x12, m.Get())
	m.LastUnDo()
	assert.Equal(t, 0x12, m.Get())
	assert.Equal(t, EOF, m.Get())
	assert.Equal(t, EOF, m.GetWord())
	assert.Equal(t, EOF, m.PeekWord())
}

func TestMemoryStreamReadBack(t *testing.T) {
	m := NewMemoryStream(0)
	_, err := m.Write([]byte{1, 2, 3, 4})
	require.NoError(t, err)
	rd := m.ReadBack()
	assert.Equal(t, 1, rd.Get())

	var out MemoryStream
	require.NoError(t, rd.PushTo(&out, 2))
	assert.Equal(t, []byte{2, 3}, out.Bytes())
	assert.Equal(t, 1, rd.Len())
	assert.ErrorIs(t, rd.PushTo(&out, 2), ErrUnexpectedEOF)
}

func TestMemoryStreamAppend(t *testing.T) {
	m := NewMemoryStreamFrom([]byte{9})
	require.NoError(t, m.Append(bytes.NewReader([]byte{1, 2, 3}), 2))
	assert.Equal(t, []byte{9, 1, 2}, m.Bytes())
	assert.ErrorIs(t, m.Append(bytes.NewReader([]byte{1}), 2), ErrUnexpectedEOF)
	assert.Equal(t, []byte{9, 1, 2}, m.Bytes())
}

func TestStaticStream(t *testing.T) {
	buf := make([]byte, 3)
	w := NewStaticWriter(buf)
	require.NoError(t, w.PutWord(0xff00))
	require.NoError(t, w.Put(0x7f))
	assert.ErrorIs(t, w.Put(0), ErrOverflow)
	assert.Equal(t, 3, w.Written())

	r := NewStaticStream(buf)
	assert.Equal(t, 0xff00, r.GetWord())
	assert.Equal(t, EOF, r.PeekWord())
	assert.Equal(t, 0x7f, r.Get())
	assert.Equal(t, EOF, r.Get())
}
