package marker

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/jpfielding/jpegxt.go/pkg/compress/stream"
)

// APP9 carries the JPEG XT side channels
const APP9 = 0xffe9

// Type tells which side channel a residual marker carries
type Type int

const (
	// Refinement carries hidden refinement scans
	Refinement Type = iota
	// Residual carries residual scans
	Residual
)

// overhead of one segment: length, "JP" and the four byte identifier
const segmentOverhead = 2 + 2 + 4

// ID returns the four byte identifier following "JP"
func (t Type) ID() string {
	if t == Residual {
		return "RESI"
	}
	return "FINE"
}

func (t Type) String() string {
	if t == Residual {
		return "residual"
	}
	return "refinement"
}

// ResidualMarker collects the payload of a side channel that is split over
// a sequence of APP9 segments.
type ResidualMarker struct {
	Type   Type
	buffer *stream.MemoryStream
	read   *stream.MemoryStream
}

// NewResidualMarker creates an empty side channel of the given type
func NewResidualMarker(t Type) *ResidualMarker {
	return &ResidualMarker{Type: t}
}

// ParseMarker appends the payload of one APP9 segment. Marker, length field and
// identifier are consumed already, length is the value of the length field.
func (m *ResidualMarker) ParseMarker(r io.Reader, length int) error {
	if length < segmentOverhead {
		return fmt.Errorf("APP9 %s segment length %d too short: %w", m.Type, length, stream.ErrMalformedStream)
	}
	if m.buffer == nil {
		m.buffer = stream.NewMemoryStream(4096)
	}
	return m.buffer.Append(r, length-segmentOverhead)
}

// Append adds payload bytes without segment framing
func (m *ResidualMarker) Append(p []byte) {
	if m.buffer == nil {
		m.buffer = stream.NewMemoryStream(len(p))
	}
	m.buffer.Write(p)
}

// Stream returns the reader over the collected payload, nil if nothing was collected.
// Repeated calls return the same reader.
func (m *ResidualMarker) Stream() stream.ByteStream {
	if m.buffer == nil {
		return nil
	}
	if m.read == nil {
		m.read = m.buffer.ReadBack()
	}
	return m.read
}

// Payload returns the collected payload
func (m *ResidualMarker) Payload() []byte {
	if m.buffer == nil {
		return nil
	}
	return m.buffer.Bytes()
}

// WriteMarker splits the staged buffer into APP9 segments written to target
func (m *ResidualMarker) WriteMarker(target stream.ByteStream, staged *stream.MemoryStream) error {
	rd := staged.ReadBack()
	segments := 0
	for rd.Len() > 0 {
		n := rd.Len()
		if n > 0xffff-segmentOverhead {
			n = 0xffff - segmentOverhead
		}
		if err := target.PutWord(APP9); err != nil {
			return err
		}
		if err := target.PutWord(uint16(n + segmentOverhead)); err != nil {
			return err
		}
		for _, b := range []byte("JP" + m.Type.ID()) {
			if err := target.Put(b); err != nil {
				return err
			}
		}
		if err := rd.PushTo(target, n); err != nil {
			return err
		}
		segments++
	}
	slog.Debug("wrote side channel", slog.String("type", m.Type.String()),
		slog.Int("bytes", len(staged.Bytes())), slog.Int("segments", segments))
	return nil
}

// Collect walks a sequence of marker segments and gathers the payload of every
// APP9 segment of type t. Other segments with a length field are skipped.
func Collect(data []byte, t Type) (*ResidualMarker, error) {
	m := NewResidualMarker(t)
	id := "JP" + t.ID()
	for pos := 0; pos+4 <= len(data); {
		if data[pos] != 0xff {
			return nil, fmt.Errorf("no marker at offset %d: %w", pos, stream.ErrMalformedStream)
		}
		code := uint16(data[pos])<<8 | uint16(data[pos+1])
		length := int(data[pos+2])<<8 | int(data[pos+3])
		if length < 2 {
			return nil, fmt.Errorf("segment 0x%04x length %d: %w", code, length, stream.ErrMalformedStream)
		}
		if pos+2+length > len(data) {
			return nil, fmt.Errorf("segment 0x%04x at offset %d overruns data: %w", code, pos, stream.ErrUnexpectedEOF)
		}
		body := data[pos+4 : pos+2+length]
		if code == APP9 && len(body) >= len(id) && string(body[:len(id)]) == id {
			m.Append(body[len(id):])
		}
		pos += 2 + length
	}
	return m, nil
}
