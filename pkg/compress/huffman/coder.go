package huffman

import (
	"fmt"

	"github.com/jpfielding/jpegxt.go/pkg/compress/bitio"
	"github.com/jpfielding/jpegxt.go/pkg/compress/stream"
)

// Coder maps symbols to code words
type Coder struct {
	code [256]uint16
	size [256]uint8
}

func newCoder(t *Table) *Coder {
	c := &Coder{}
	t.codes(func(symbol byte, code uint16, size uint8) {
		c.code[symbol] = code
		c.size[symbol] = size
	})
	return c
}

// Put writes the code word of symbol
func (c *Coder) Put(bs *bitio.BitStream, symbol byte) error {
	size := c.size[symbol]
	if size == 0 {
		return fmt.Errorf("symbol 0x%02x has no code: %w", symbol, stream.ErrInvalidParameter)
	}
	bs.Put(uint(size), uint32(c.code[symbol]))
	return nil
}

// Has reports whether symbol has a code word
func (c *Coder) Has(symbol byte) bool {
	return c.size[symbol] != 0
}

// Decoder maps code words back to symbols with an 8 bit lookahead table
// and a canonical search for longer codes.
type Decoder struct {
	// (size << 8) | symbol for codes of at most 8 bits, 0 if none
	lookup  [256]uint16
	minCode [16]int32
	maxCode [16]int32
	valPtr  [16]int32
	values  []byte
}

func newDecoder(t *Table) *Decoder {
	d := &Decoder{values: t.Values}
	t.codes(func(symbol byte, code uint16, size uint8) {
		if size <= 8 {
			shift := 8 - size
			base := int(code) << shift
			for j := 0; j < 1<<shift; j++ {
				d.lookup[base+j] = uint16(size)<<8 | uint16(symbol)
			}
		}
	})
	code := int32(0)
	p := int32(0)
	for l := 0; l < 16; l++ {
		if t.Bits[l] == 0 {
			d.maxCode[l] = -1
		} else {
			d.valPtr[l] = p
			d.minCode[l] = code
			p += int32(t.Bits[l])
			code += int32(t.Bits[l])
			d.maxCode[l] = code - 1
		}
		code <<= 1
	}
	return d
}

// Get decodes the next symbol
func (d *Decoder) Get(bs *bitio.BitStream) (byte, error) {
	data := bs.PeekWord()
	if e := d.lookup[data>>8]; e != 0 {
		if err := bs.SkipBits(uint(e >> 8)); err != nil {
			return 0, err
		}
		return byte(e), nil
	}
	for l := 8; l < 16; l++ {
		code := int32(data >> (15 - l))
		if d.maxCode[l] >= 0 && code <= d.maxCode[l] && code >= d.minCode[l] {
			if err := bs.SkipBits(uint(l + 1)); err != nil {
				return 0, err
			}
			return d.values[d.valPtr[l]+code-d.minCode[l]], nil
		}
	}
	// no code matches; blame the marker or EOF that starved the lookahead if there is one
	switch {
	case bs.IsEOF():
		return 0, fmt.Errorf("huffman code 0x%04x: %w", data, stream.ErrUnexpectedEOF)
	case bs.IsMarker():
		return 0, fmt.Errorf("huffman code 0x%04x: %w", data, stream.ErrUnexpectedMarker)
	}
	return 0, fmt.Errorf("invalid huffman code 0x%04x: %w", data, stream.ErrMalformedStream)
}
