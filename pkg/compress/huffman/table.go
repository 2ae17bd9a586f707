package huffman

import (
	"fmt"

	"github.com/jpfielding/jpegxt.go/pkg/compress/stream"
)

// Class distinguishes DC and AC (or lossless) tables
type Class int

const (
	DC Class = 0
	AC Class = 1
)

// Table is a JPEG Huffman table specification: code counts per length and the
// symbols in code order.
type Table struct {
	// Number of codes of each length (1-16 bits)
	Bits [16]uint8
	// Symbols, in order of increasing code length
	Values []byte

	coder   *Coder
	decoder *Decoder
}

// NewTable validates and wraps a table specification
func NewTable(bits [16]uint8, values []byte) (*Table, error) {
	n := 0
	code := 0
	for l := 0; l < 16; l++ {
		n += int(bits[l])
		code += int(bits[l])
		if code > 1<<(l+1) {
			return nil, fmt.Errorf("huffman table overfull at length %d: %w", l+1, stream.ErrMalformedStream)
		}
		code <<= 1
	}
	if n != len(values) || n > 256 {
		return nil, fmt.Errorf("huffman table with %d codes and %d symbols: %w", n, len(values), stream.ErrMalformedStream)
	}
	t := &Table{Bits: bits, Values: append([]byte(nil), values...)}
	t.coder = newCoder(t)
	t.decoder = newDecoder(t)
	return t, nil
}

// MustTable is NewTable for the compiled in defaults
func MustTable(bits [16]uint8, values []byte) *Table {
	t, err := NewTable(bits, values)
	if err != nil {
		panic(err)
	}
	return t
}

// Len returns the number of coded symbols
func (t *Table) Len() int {
	return len(t.Values)
}

// codes generates the canonical code of every symbol, T.81 Annex C
func (t *Table) codes(fn func(symbol byte, code uint16, size uint8)) {
	code := uint16(0)
	p := 0
	for l := 0; l < 16; l++ {
		for i := 0; i < int(t.Bits[l]); i++ {
			fn(t.Values[p], code, uint8(l+1))
			code++
			p++
		}
		code <<= 1
	}
}

// Coder returns the encoder of this table
func (t *Table) Coder() *Coder {
	return t.coder
}

// Decoder returns the decoder of this table
func (t *Table) Decoder() *Decoder {
	return t.decoder
}

// Set holds the four DC and four AC tables a frame may reference
type Set struct {
	DC [4]*Table
	AC [4]*Table
}

// Table returns the table of the given class and destination
func (s *Set) Table(class Class, id int) *Table {
	if class == DC {
		return s.DC[id&3]
	}
	return s.AC[id&3]
}

// SetTable installs a table of the given class and destination
func (s *Set) SetTable(class Class, id int, t *Table) {
	if class == DC {
		s.DC[id&3] = t
	} else {
		s.AC[id&3] = t
	}
}

// WriteMarker writes the length and body of a DHT segment holding all installed tables.
// The caller writes the 0xFFC4 marker itself.
func (s *Set) WriteMarker(io stream.ByteStream) error {
	length := 2
	s.each(func(_ Class, _ int, t *Table) {
		length += 17 + len(t.Values)
	})
	if length > 0xffff {
		return fmt.Errorf("DHT segment of %d bytes: %w", length, stream.ErrOverflow)
	}
	if err := io.PutWord(uint16(length)); err != nil {
		return err
	}
	var err error
	s.each(func(class Class, id int, t *Table) {
		if err != nil {
			return
		}
		if err = io.Put(byte(class)<<4 | byte(id)); err != nil {
			return
		}
		for _, b := range t.Bits {
			if err = io.Put(b); err != nil {
				return
			}
		}
		for _, v := range t.Values {
			if err = io.Put(v); err != nil {
				return
			}
		}
	})
	return err
}

func (s *Set) each(fn func(class Class, id int, t *Table)) {
	for i, t := range s.DC {
		if t != nil {
			fn(DC, i, t)
		}
	}
	for i, t := range s.AC {
		if t != nil {
			fn(AC, i, t)
		}
	}
}

// ParseMarker reads the length and body of a DHT segment, the marker is already consumed
func (s *Set) ParseMarker(io stream.ByteStream) error {
	length := io.GetWord()
	if length == stream.EOF {
		return fmt.Errorf("DHT length: %w", stream.ErrUnexpectedEOF)
	}
	if length < 2 {
		return fmt.Errorf("DHT length %d: %w", length, stream.ErrMalformedStream)
	}
	length -= 2
	for length > 0 {
		if length < 17 {
			return fmt.Errorf("DHT segment truncated: %w", stream.ErrMalformedStream)
		}
		tcth := io.Get()
		if tcth == stream.EOF {
			return fmt.Errorf("DHT table id: %w", stream.ErrUnexpectedEOF)
		}
		class, id := Class(tcth>>4), tcth&0x0f
		if class > AC || id > 3 {
			return fmt.Errorf("DHT table class %d id %d: %w", class, id, stream.ErrMalformedStream)
		}
		var bits [16]uint8
		total := 0
		for l := range bits {
			b := io.Get()
			if b == stream.EOF {
				return fmt.Errorf("DHT code counts: %w", stream.ErrUnexpectedEOF)
			}
			bits[l] = uint8(b)
			total += b
		}
		length -= 17
		if total > length {
			return fmt.Errorf("DHT table with %d symbols in %d bytes: %w", total, length, stream.ErrMalformedStream)
		}
		values := make([]byte, total)
		for i := range values {
			v := io.Get()
			if v == stream.EOF {
				return fmt.Errorf("DHT symbols: %w", stream.ErrUnexpectedEOF)
			}
			values[i] = byte(v)
		}
		length -= total
		t, err := NewTable(bits, values)
		if err != nil {
			return err
		}
		s.SetTable(class, id, t)
	}
	return nil
}
