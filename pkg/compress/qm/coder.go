package qm

import (
	"github.com/jpfielding/jpegxt.go/pkg/compress/stream"
)

// Context is one adaptive probability state: estimation index and MPS sense.
// Contexts belong to the caller, the coder only updates them.
type Context struct {
	Index uint8
	MPS   bool
}

// Init resets the context to the initial state, index 0 and MPS zero
func (c *Context) Init() {
	c.Index = 0
	c.MPS = false
}

// InitUniform puts the context into the non-adapting uniform state
func (c *Context) InitUniform() {
	c.Index = UniformState
	c.MPS = false
}

// Coder is the T.81 Annex D QM arithmetic coder. One instance either encodes
// or decodes, selected by OpenForWrite / OpenForRead.
type Coder struct {
	io stream.ByteStream
	a  uint32 // interval
	c  uint32 // code register
	ct uint8  // bits until the next byte in/out

	// encoder output pipeline
	b  byte   // buffered byte the carry may still run into
	f  bool   // b holds a valid byte
	st uint32 // stacked 0xff bytes
	sz uint32 // delayed 0x00 bytes
	// first write error, sticky
	err error
}

// NewCoder creates an unbound coder
func NewCoder() *Coder {
	return &Coder{}
}

// ByteStream returns the bound byte stream
func (q *Coder) ByteStream() stream.ByteStream {
	return q.io
}

// OpenForWrite resets the encoder and binds it to io
func (q *Coder) OpenForWrite(io stream.ByteStream) {
	q.io = io
	q.st = 0
	q.sz = 0
	q.c = 0
	q.a = 0x10000
	q.ct = 11
	q.b = 0
	q.f = false
	q.err = nil
}

// OpenForRead resets the decoder, binds it to io and primes the code register
func (q *Coder) OpenForRead(io stream.ByteStream) {
	q.io = io
	q.a = 0x10000
	q.c = 0
	q.byteIn()
	q.c <<= 8
	q.byteIn()
	q.c <<= 8
	q.ct = 0
}

func (q *Coder) put(b byte) {
	if q.err == nil {
		q.err = q.io.Put(b)
	}
}

func (q *Coder) putZeros() {
	for ; q.sz > 0; q.sz-- {
		q.put(0x00)
	}
}

// byteOut moves the top bits of c into the output pipeline. 0xff bytes stack
// until a carry decision is possible, zero bytes are delayed so that trailing
// zeros never reach the stream.
func (q *Coder) byteOut() {
	t := q.c >> 19
	switch {
	case t > 0xff:
		// carry
		if q.f {
			q.putZeros()
			q.b++
			q.put(q.b)
			if q.b == 0xff {
				q.put(0x00)
			}
		}
		// the stacked 0xff bytes overflow into zeros
		q.sz += q.st
		q.st = 0
		q.b = byte(t)
		q.f = true
	case t == 0xff:
		q.st++
	default:
		if q.f {
			if q.b == 0 {
				q.sz++
			} else {
				q.putZeros()
				q.put(q.b)
			}
		}
		if q.st > 0 {
			q.putZeros()
			for ; q.st > 0; q.st-- {
				q.put(0xff)
				q.put(0x00)
			}
		}
		q.b = byte(t)
		q.f = true
	}
	q.c &= 0x7ffff
}

// byteIn feeds the next byte into the code register. End of data and markers
// contribute zero bits; a marker is left in the stream.
func (q *Coder) byteIn() {
	b := q.io.Get()
	switch b {
	case stream.EOF:
	case 0xff:
		q.io.LastUnDo()
		if q.io.PeekWord() == 0xff00 {
			q.io.GetWord()
			q.c |= 0xff00
		}
	default:
		q.c += uint32(b) << 8
	}
}

// Put encodes one decision in ctx
func (q *Coder) Put(ctx *Context, bit bool) {
	qe := qeValue[ctx.Index]
	q.a -= qe
	if bit == ctx.MPS {
		if q.a&0x8000 != 0 {
			return
		}
		if q.a < qe {
			q.c += q.a
			q.a = qe
		}
		ctx.Index = qeNextMPS[ctx.Index]
	} else {
		if q.a >= qe {
			q.c += q.a
			q.a = qe
		}
		if qeSwitch[ctx.Index] {
			ctx.MPS = !ctx.MPS
		}
		ctx.Index = qeNextLPS[ctx.Index]
	}
	for {
		q.a <<= 1
		q.c <<= 1
		q.ct--
		if q.ct == 0 {
			q.byteOut()
			q.ct = 8
		}
		if q.a&0x8000 != 0 {
			break
		}
	}
}

// Get decodes one decision in ctx
func (q *Coder) Get(ctx *Context) bool {
	qe := qeValue[ctx.Index]
	var lps bool
	q.a -= qe
	if q.c>>16 < q.a {
		if q.a&0x8000 != 0 {
			return ctx.MPS
		}
		lps = q.a < qe
	} else {
		lps = q.a >= qe
		q.c -= q.a << 16
		q.a = qe
	}
	var d bool
	if lps {
		d = !ctx.MPS
		if qeSwitch[ctx.Index] {
			ctx.MPS = d
		}
		ctx.Index = qeNextLPS[ctx.Index]
	} else {
		d = ctx.MPS
		ctx.Index = qeNextMPS[ctx.Index]
	}
	for {
		if q.ct == 0 {
			q.byteIn()
			q.ct = 8
		}
		q.a <<= 1
		q.c <<= 1
		q.ct--
		if q.a&0x8000 != 0 {
			break
		}
	}
	return d
}

// Flush terminates the code (T.81 D.1.8) and reports the first write error.
// Trailing zero bytes are dropped.
func (q *Coder) Flush() error {
	t := q.c + q.a - 1
	t &= 0xffff0000
	if t < q.c {
		t += 0x8000
	}
	q.c = t
	q.c <<= q.ct
	q.byteOut()
	q.c <<= 8
	q.byteOut()
	q.c <<= 8
	q.byteOut()
	return q.err
}

// Err returns the first write error
func (q *Coder) Err() error {
	return q.err
}
