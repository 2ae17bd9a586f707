package marker

import (
	"bytes"
	"testing"

	"github.com/jpfielding/jpegxt.go/pkg/compress/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteAndCollect(t *testing.T) {
	tests := []struct {
		name     string
		t        Type
		size     int
		segments int
	}{
		{"empty", Residual, 0, 0},
		{"one segment", Refinement, 100, 1},
		{"full segment", Residual, 0xffff - segmentOverhead, 1},
		{"split", Residual, 0xffff - segmentOverhead + 1, 2},
		{"three", Refinement, 150000, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := make([]byte, tt.size)
			for i := range payload {
				payload[i] = byte(i * 31)
			}
			staged := stream.NewMemoryStream(tt.size)
			_, err := staged.Write(payload)
			require.NoError(t, err)

			out := stream.NewMemoryStream(tt.size + 64)
			m := NewResidualMarker(tt.t)
			require.NoError(t, m.WriteMarker(out, staged))
			assert.Equal(t, tt.segments, bytes.Count(out.Bytes(), []byte("JP"+tt.t.ID())))

			got, err := Collect(out.Bytes(), tt.t)
			require.NoError(t, err)
			if tt.size == 0 {
				assert.Nil(t, got.Stream())
				return
			}
			assert.Equal(t, payload, got.Payload())

			// the other channel stays empty
			other := Residual
			if tt.t == Residual {
				other = Refinement
			}
			none, err := Collect(out.Bytes(), other)
			require.NoError(t, err)
			assert.Nil(t, none.Payload())
		})
	}
}

func TestParseMarker(t *testing.T) {
	m := NewResidualMarker(Residual)
	body := []byte{1, 2, 3, 4, 5}
	require.NoError(t, m.ParseMarker(bytes.NewReader(body), len(body)+segmentOverhead))
	require.NoError(t, m.ParseMarker(bytes.NewReader([]byte{6}), 1+segmentOverhead))
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6}, m.Payload())

	io := m.Stream()
	require.NotNil(t, io)
	assert.Same(t, io, m.Stream())
	assert.Equal(t, 0x0102, io.GetWord())

	assert.ErrorIs(t, m.ParseMarker(bytes.NewReader(nil), 3), stream.ErrMalformedStream)
	assert.ErrorIs(t, m.ParseMarker(bytes.NewReader([]byte{1}), 2+segmentOverhead), stream.ErrUnexpectedEOF)
}

func TestCollectSkipsOtherSegments(t *testing.T) {
	data := []byte{
		0xff, 0xe0, 0x00, 0x04, 'J', 'F',
		0xff, 0xe9, 0x00, 0x0a, 'J', 'P', 'F', 'I', 'N', 'E', 0xaa, 0xbb,
		0xff, 0xe9, 0x00, 0x09, 'J', 'P', 'R', 'E', 'S', 'I', 0xcc,
	}
	fine, err := Collect(data, Refinement)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xaa, 0xbb}, fine.Payload())
	resi, err := Collect(data, Residual)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xcc}, resi.Payload())
}

func TestCollectMalformed(t *testing.T) {
	_, err := Collect([]byte{0x12, 0x34, 0x00, 0x02}, Residual)
	assert.ErrorIs(t, err, stream.ErrMalformedStream)
	_, err = Collect([]byte{0xff, 0xe9, 0x00, 0x20, 'J'}, Residual)
	assert.ErrorIs(t, err, stream.ErrUnexpectedEOF)
}
