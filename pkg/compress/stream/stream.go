package stream

import (
	"fmt"
	"io"
)

// EOF is returned by the byte level reads once the stream is exhausted.
const EOF = -1

// ByteStream is the byte level source/sink the bit and arithmetic coders run on.
// Reads never fail, they return EOF instead. Writes report errors.
type ByteStream interface {
	// Get reads one byte, or EOF
	Get() int
	// GetWord reads a big endian word, or EOF if less than two bytes remain
	GetWord() int
	// PeekWord returns the next big endian word without consuming it, or EOF
	PeekWord() int
	// LastUnDo pushes back the byte returned by the last Get
	LastUnDo()
	Put(b byte) error
	PutWord(w uint16) error
}

// MemoryStream is a growable in-memory ByteStream with independent read and write positions.
// It stages side channel data before it is split into marker segments.
type MemoryStream struct {
	buf []byte
	pos int
}

// NewMemoryStream creates an empty stream with the given capacity hint
func NewMemoryStream(capacity int) *MemoryStream {
	return &MemoryStream{buf: make([]byte, 0, capacity)}
}

// NewMemoryStreamFrom creates a stream reading the given bytes
func NewMemoryStreamFrom(data []byte) *MemoryStream {
	return &MemoryStream{buf: data}
}

func (m *MemoryStream) Get() int {
	if m.pos >= len(m.buf) {
		return EOF
	}
	b := m.buf[m.pos]
	m.pos++
	return int(b)
}

func (m *MemoryStream) GetWord() int {
	if m.pos+1 >= len(m.buf) {
		m.pos = len(m.buf)
		return EOF
	}
	w := int(m.buf[m.pos])<<8 | int(m.buf[m.pos+1])
	m.pos += 2
	return w
}

func (m *MemoryStream) PeekWord() int {
	if m.pos+1 >= len(m.buf) {
		return EOF
	}
	return int(m.buf[m.pos])<<8 | int(m.buf[m.pos+1])
}

func (m *MemoryStream) LastUnDo() {
	if m.pos > 0 {
		m.pos--
	}
}

func (m *MemoryStream) Put(b byte) error {
	m.buf = append(m.buf, b)
	return nil
}

func (m *MemoryStream) PutWord(w uint16) error {
	m.buf = append(m.buf, byte(w>>8), byte(w))
	return nil
}

// Write implements io.Writer
func (m *MemoryStream) Write(p []byte) (int, error) {
	m.buf = append(m.buf, p...)
	return len(p), nil
}

// Append copies n bytes from r to the end of the stream
func (m *MemoryStream) Append(r io.Reader, n int) error {
	start := len(m.buf)
	m.buf = append(m.buf, make([]byte, n)...)
	if _, err := io.ReadFull(r, m.buf[start:]); err != nil {
		m.buf = m.buf[:start]
		return fmt.Errorf("append %d bytes: %w", n, ErrUnexpectedEOF)
	}
	return nil
}

// Bytes returns everything written so far
func (m *MemoryStream) Bytes() []byte {
	return m.buf
}

// Len returns the number of bytes not yet read
func (m *MemoryStream) Len() int {
	return len(m.buf) - m.pos
}

// Tell returns the read position
func (m *MemoryStream) Tell() int {
	return m.pos
}

// Reset drops all data
func (m *MemoryStream) Reset() {
	m.buf = m.buf[:0]
	m.pos = 0
}

// ReadBack returns a new stream reading the data written to this one from its beginning
func (m *MemoryStream) ReadBack() *MemoryStream {
	return &MemoryStream{buf: m.buf}
}

// PushTo moves the next n unread bytes to target
func (m *MemoryStream) PushTo(target ByteStream, n int) error {
	if n > m.Len() {
		return fmt.Errorf("push %d of %d buffered bytes: %w", n, m.Len(), ErrUnexpectedEOF)
	}
	for _, b := range m.buf[m.pos : m.pos+n] {
		if err := target.Put(b); err != nil {
			return err
		}
	}
	m.pos += n
	return nil
}

// StaticStream is a ByteStream over a fixed slice. Reads past the written data
// return EOF, writes past the end fail with ErrOverflow.
type StaticStream struct {
	buf []byte
	rd  int
	wr  int
}

// NewStaticStream wraps buf for reading and writing
func NewStaticStream(buf []byte) *StaticStream {
	return &StaticStream{buf: buf, wr: len(buf)}
}

// NewStaticWriter wraps buf as an empty stream to be written
func NewStaticWriter(buf []byte) *StaticStream {
	return &StaticStream{buf: buf}
}

func (s *StaticStream) Get() int {
	if s.rd >= s.wr {
		return EOF
	}
	b := s.buf[s.rd]
	s.rd++
	return int(b)
}

func (s *StaticStream) GetWord() int {
	if s.rd+1 >= s.wr {
		s.rd = s.wr
		return EOF
	}
	w := int(s.buf[s.rd])<<8 | int(s.buf[s.rd+1])
	s.rd += 2
	return w
}

func (s *StaticStream) PeekWord() int {
	if s.rd+1 >= s.wr {
		return EOF
	}
	return int(s.buf[s.rd])<<8 | int(s.buf[s.rd+1])
}

func (s *StaticStream) LastUnDo() {
	if s.rd > 0 {
		s.rd--
	}
}

func (s *StaticStream) Put(b byte) error {
	if s.wr >= len(s.buf) {
		return fmt.Errorf("static stream of %d bytes: %w", len(s.buf), ErrOverflow)
	}
	s.buf[s.wr] = b
	s.wr++
	return nil
}

func (s *StaticStream) PutWord(w uint16) error {
	if err := s.Put(byte(w >> 8)); err != nil {
		return err
	}
	return s.Put(byte(w))
}

// Written returns the number of bytes written
func (s *StaticStream) Written() int {
	return s.wr
}
