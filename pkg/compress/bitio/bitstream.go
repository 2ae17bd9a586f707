package bitio

import (
	"fmt"

	"github.com/jpfielding/jpegxt.go/pkg/compress/stream"
)

// Mode selects the marker escaping rule of the entropy coded segment
type Mode int

const (
	// ByteStuffing escapes a 0xFF data byte with a following 0x00 (Huffman coding)
	ByteStuffing Mode = iota
	// BitStuffing follows a 0xFF data byte with a byte carrying 7 bits, MSB forced to zero
	BitStuffing
)

func (m Mode) String() string {
	if m == BitStuffing {
		return "bitstuffing"
	}
	return "bytestuffing"
}

// BitStream reads or writes individual bits over a stream.ByteStream.
// Reading keeps up to 32 bits MSB aligned in buf, writing assembles one byte at a time.
type BitStream struct {
	mode Mode
	io   stream.ByteStream

	// read state
	buf      uint32
	bits     uint // valid bits in buf
	nextBits uint // significant bits of the next byte, 7 after a stuffed 0xFF
	marker   bool
	eof      bool
	padded   bool

	// write state
	b    byte
	free uint // free bits in b
	err  error
}

// New creates a bit stream with the given escaping rule
func New(mode Mode) *BitStream {
	return &BitStream{mode: mode, nextBits: 8, free: 8}
}

// Mode returns the escaping rule
func (s *BitStream) Mode() Mode {
	return s.mode
}

// ByteStream returns the underlying byte stream
func (s *BitStream) ByteStream() stream.ByteStream {
	return s.io
}

// OpenForRead binds the stream for reading, with no bits buffered
func (s *BitStream) OpenForRead(io stream.ByteStream) {
	s.io = io
	s.buf = 0
	s.bits = 0
	s.nextBits = 8
	s.marker = false
	s.eof = false
	s.padded = false
}

// OpenForWrite binds the stream for writing with 8 free bits in the byte buffer
func (s *BitStream) OpenForWrite(io stream.ByteStream) {
	s.io = io
	s.b = 0
	s.free = 8
	s.marker = false
	s.eof = false
	s.err = nil
}

// IsMarker reports whether a refill ran into a genuine marker
func (s *BitStream) IsMarker() bool {
	return s.marker
}

// IsEOF reports whether a refill ran into the end of data
func (s *BitStream) IsEOF() bool {
	return s.eof
}

// Pending returns the number of read ahead bits that came from the byte stream,
// not counting the zero padding behind a marker
func (s *BitStream) Pending() uint {
	if s.padded {
		return s.bits - min(s.bits, 8)
	}
	return s.bits
}

// fill pulls bytes until more than 24 bits are buffered, a marker blocks or data ends.
// A marker or the end of data contributes one byte of zero bits, once.
func (s *BitStream) fill() {
	for s.bits <= 24 {
		if s.marker || s.eof {
			if !s.padded {
				s.padded = true
				s.bits += 8
			}
			return
		}
		dt := s.io.Get()
		switch {
		case dt == 0xff:
			s.io.LastUnDo()
			w := s.io.PeekWord()
			if s.mode == BitStuffing {
				if w >= 0 && w < 0xff80 {
					s.io.Get()
					s.nextBits = 7
					s.buf |= uint32(dt) << (24 - s.bits)
					s.bits += 8
					continue
				}
			} else if w == 0xff00 {
				s.io.GetWord()
				s.buf |= uint32(dt) << (24 - s.bits)
				s.bits += 8
				continue
			}
			// a genuine marker stays in the byte stream for the layers above
			s.marker = true
		case dt == stream.EOF:
			s.eof = true
		case s.mode == BitStuffing:
			s.buf |= uint32(dt) << (32 - s.nextBits - s.bits)
			s.bits += s.nextBits
			s.nextBits = 8
		default:
			s.buf |= uint32(dt) << (24 - s.bits)
			s.bits += 8
		}
	}
}

func (s *BitStream) exhausted(want uint) error {
	switch {
	case s.eof:
		return fmt.Errorf("need %d bits, %d buffered: found EOF within entropy coded segment: %w", want, s.bits, stream.ErrUnexpectedEOF)
	case s.marker:
		return fmt.Errorf("need %d bits, %d buffered: found marker in entropy coded segment: %w", want, s.bits, stream.ErrUnexpectedMarker)
	}
	return fmt.Errorf("need %d bits, %d buffered: invalid code in entropy coded segment: %w", want, s.bits, stream.ErrMalformedStream)
}

// Get returns the next n bits, MSB first (1 <= n <= 24)
func (s *BitStream) Get(n uint) (uint32, error) {
	if n > s.bits {
		s.fill()
		if n > s.bits {
			return 0, s.exhausted(n)
		}
	}
	v := s.buf >> (32 - n)
	s.buf <<= n
	s.bits -= n
	return v, nil
}

// GetBits returns the next n bits for 1 <= n <= 32
func (s *BitStream) GetBits(n uint) (uint32, error) {
	if n <= 24 {
		return s.Get(n)
	}
	hi, err := s.Get(n - 16)
	if err != nil {
		return 0, err
	}
	lo, err := s.Get(16)
	if err != nil {
		return 0, err
	}
	return hi<<16 | lo, nil
}

// Get1 returns a single bit
func (s *BitStream) Get1() (bool, error) {
	v, err := s.Get(1)
	return v != 0, err
}

// PeekWord returns the next 16 bits without removing them; bits beyond
// the available data read as zero and the error surfaces on SkipBits.
func (s *BitStream) PeekWord() uint16 {
	if s.bits < 16 {
		s.fill()
	}
	return uint16(s.buf >> 16)
}

// SkipBits drops n bits that a prior PeekWord made available
func (s *BitStream) SkipBits(n uint) error {
	if n > s.bits {
		return s.exhausted(n)
	}
	s.buf <<= n
	s.bits -= n
	return nil
}

// SkipStuffing triggers the refill behind a fully consumed, bit stuffed 0xFF so the
// stuffing byte the encoder wrote is removed before the layers above look for a marker.
func (s *BitStream) SkipStuffing() {
	if s.mode == BitStuffing && s.bits == 0 && s.nextBits == 7 {
		s.fill()
	}
}

func (s *BitStream) emit(b byte) {
	if s.err != nil {
		return
	}
	s.err = s.io.Put(b)
}

// Put writes the low n bits of v, MSB first (1 <= n <= 32).
// Write errors are sticky and reported by Flush and Err.
func (s *BitStream) Put(n uint, v uint32) {
	for n > s.free {
		n -= s.free
		s.b |= byte((v >> n) & (1<<s.free - 1))
		s.emit(s.b)
		s.free = 8
		if s.b == 0xff {
			if s.mode == BitStuffing {
				s.free = 7
			} else {
				s.emit(0x00)
			}
		}
		s.b = 0
	}
	s.free -= n
	s.b |= byte((uint64(v) & (1<<n - 1)) << s.free)
}

// Put1 writes a single bit
func (s *BitStream) Put1(bit bool) {
	if bit {
		s.Put(1, 1)
	} else {
		s.Put(1, 0)
	}
}

// Flush pads and writes a partially filled byte. Byte stuffing pads with ones;
// a resulting 0xFF is always followed by a stuffed zero byte.
func (s *BitStream) Flush() error {
	if s.free < 8 {
		if s.mode == ByteStuffing {
			s.b |= 1<<s.free - 1
		}
		s.emit(s.b)
		s.free = 8
		if s.b == 0xff {
			s.emit(0x00)
		}
		s.b = 0
	}
	return s.err
}

// Err returns the first write error
func (s *BitStream) Err() error {
	return s.err
}
