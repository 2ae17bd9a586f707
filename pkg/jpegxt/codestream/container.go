package codestream

import (
	"fmt"
	"io"

	"github.com/jpfielding/jpegxt.go/pkg/compress/huffman"
	"github.com/jpfielding/jpegxt.go/pkg/compress/stream"
	"github.com/jpfielding/jpegxt.go/pkg/jpegxt/marker"
)

const markerEOI = 0xffd9

// The container is the minimal framing the command line tools exchange. It
// carries no frame or scan headers, both sides must agree on the scans:
//
//	frame type | APP9 side channel segments | ([DHT] SOS [entropy data] [DNL])* | EOI
//
// Side channel scans are written first. Every scan keeps its place in the
// sequence of SOS markers, a side channel scan with an empty entropy coded
// segment. Huffman scans carry their tables in a DHT segment.

// WriteContainer encodes scans in the container format. The first scan names
// the frame type.
func WriteContainer(io stream.ByteStream, scans []*Scan, ctrl BufferCtrl, optimize bool) error {
	if len(scans) == 0 {
		return fmt.Errorf("container without scans: %w", stream.ErrInvalidParameter)
	}
	first, err := scans[0].Coder()
	if err != nil {
		return err
	}
	if err := first.WriteFrameType(io); err != nil {
		return err
	}
	for _, s := range scans {
		if !s.Kind.SideChannel() {
			continue
		}
		if err := EncodeScan(s, io, ctrl, optimize); err != nil {
			return err
		}
	}
	for _, s := range scans {
		if s.Kind.SideChannel() {
			if err := writeTables(io, s); err != nil {
				return err
			}
			if err := io.PutWord(markerSOS); err != nil {
				return err
			}
			continue
		}
		if optimize && !s.Kind.Arithmetic() {
			if err := MeasureScan(s, ctrl); err != nil {
				return err
			}
			if err := s.OptimizeTables(); err != nil {
				return err
			}
		}
		if err := writeTables(io, s); err != nil {
			return err
		}
		if err := io.PutWord(markerSOS); err != nil {
			return err
		}
		if err := EncodeScan(s, io, ctrl, false); err != nil {
			return err
		}
	}
	return io.PutWord(markerEOI)
}

// ReadContainer decodes the scans of a container in order and returns its
// frame type. All scans must belong to the same frame.
func ReadContainer(io stream.ByteStream, scans []*Scan, ctrl BufferCtrl) (int, error) {
	if len(scans) == 0 {
		return 0, fmt.Errorf("container without scans: %w", stream.ErrInvalidParameter)
	}
	frameType := io.GetWord()
	if frameType < 0xffb1 || frameType > 0xffcf {
		return 0, fmt.Errorf("frame type 0x%04x: %w", frameType, stream.ErrMalformedStream)
	}
	if err := readSideChannels(io, scans[0].Frame); err != nil {
		return 0, err
	}
	for _, s := range scans {
		skipDNL(io)
		if io.PeekWord() == markerDHT {
			io.GetWord()
			s.Huffman = &huffman.Set{}
			if err := s.Huffman.ParseMarker(io); err != nil {
				return 0, fmt.Errorf("tables of the %s scan: %w", s.Kind, err)
			}
		}
		if w := io.GetWord(); w != markerSOS {
			return 0, fmt.Errorf("expected SOS in front of the %s scan, found 0x%04x: %w", s.Kind, w, stream.ErrMalformedStream)
		}
		var data stream.ByteStream
		if !s.Kind.SideChannel() {
			data = io
		}
		if err := DecodeScan(s, data, ctrl); err != nil {
			return 0, err
		}
	}
	skipDNL(io)
	if w := io.GetWord(); w != markerEOI {
		return 0, fmt.Errorf("expected EOI, found 0x%04x: %w", w, stream.ErrMalformedStream)
	}
	return frameType, nil
}

// writeTables writes the DHT segment of a Huffman scan. The Huffman residual
// scan keeps its tables in the side channel.
func writeTables(io stream.ByteStream, s *Scan) error {
	if s.Kind.Arithmetic() || s.Kind == ResidualHuffman {
		return nil
	}
	if err := io.PutWord(markerDHT); err != nil {
		return err
	}
	return s.Huffman.WriteMarker(io)
}

// readSideChannels hands every leading APP9 segment to its side channel
func readSideChannels(io stream.ByteStream, frame *Frame) error {
	for io.PeekWord() == marker.APP9 {
		io.GetWord()
		length := io.GetWord()
		if length < 8 {
			return fmt.Errorf("APP9 length %d: %w", length, stream.ErrMalformedStream)
		}
		var id [6]byte
		for i := range id {
			b := io.Get()
			if b == stream.EOF {
				return fmt.Errorf("APP9 identifier: %w", stream.ErrUnexpectedEOF)
			}
			id[i] = byte(b)
		}
		var t marker.Type
		switch string(id[:]) {
		case "JP" + marker.Residual.ID():
			t = marker.Residual
		case "JP" + marker.Refinement.ID():
			t = marker.Refinement
		default:
			return fmt.Errorf("APP9 segment %q: %w", id[:], stream.ErrMalformedStream)
		}
		if err := frame.SideChannel(t).ParseMarker(byteReader{io}, length); err != nil {
			return err
		}
	}
	return nil
}

// skipDNL steps over a DNL segment the parser had no reason to consume
func skipDNL(io stream.ByteStream) {
	if io.PeekWord() == markerDNL {
		io.GetWord()
		io.GetWord()
		io.GetWord()
	}
}

// byteReader reads a ByteStream as an io.Reader
type byteReader struct {
	bs stream.ByteStream
}

func (r byteReader) Read(p []byte) (int, error) {
	for i := range p {
		b := r.bs.Get()
		if b == stream.EOF {
			if i == 0 {
				return 0, io.EOF
			}
			return i, nil
		}
		p[i] = byte(b)
	}
	return len(p), nil
}
