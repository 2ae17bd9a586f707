package codestream

import (
	"fmt"
	"math/bits"

	"github.com/jpfielding/jpegxt.go/pkg/compress/bitio"
	"github.com/jpfielding/jpegxt.go/pkg/compress/huffman"
	"github.com/jpfielding/jpegxt.go/pkg/compress/stream"
)

// maxSkip is the longest EOB run counted before it must be coded
const maxSkip = 0x7fff

// blockScan is the part all block based scans share: the parser state, the
// components, the block source and the position within the MCU row.
type blockScan struct {
	parser
	comps []*Component
	ctrl  BlockSource
	x     [4]int

	// all codes every frame component with its full MCU, as the residual scans do
	all bool
	// residualRows reads the residual instead of the quantized blocks
	residualRows bool
	measure      bool
	rowStart     bool
	// MCU row of the scan, counting from zero
	row int
}

func newBlockScan(scan *Scan, self segmenter) blockScan {
	return blockScan{
		parser: newParser(scan.Frame, scan, self),
		comps:  scan.Components,
	}
}

func (b *blockScan) useResidualRows() {
	b.residualRows = true
}

func (b *blockScan) measuring() bool {
	return b.measure
}

func (b *blockScan) bind(ctrl BufferCtrl) error {
	src, ok := ctrl.(BlockSource)
	if !ok {
		return fmt.Errorf("%s scan needs a block source, got %T: %w", b.scan.Kind, ctrl, stream.ErrInvalidParameter)
	}
	b.ctrl = src
	b.x = [4]int{}
	b.row = -1
	src.ResetToStartOfScan(b.rowScan())
	return nil
}

func (b *blockScan) rowScan() *Scan {
	if b.all {
		return nil
	}
	return b.scan
}

// startRow advances the block source by one MCU row
func (b *blockScan) startRow() bool {
	var more bool
	if b.residualRows || b.all {
		more = b.ctrl.StartMCUResidualRow(b.rowScan())
	} else {
		more = b.ctrl.StartMCUQuantizerRow(b.rowScan())
	}
	b.x = [4]int{}
	b.row++
	b.rowStart = true
	return more
}

func (b *blockScan) insideImage() bool {
	c := b.comps[0]
	_, h := b.mcuSize(c)
	return b.row*h < b.frame.BlocksDown(c.Index)
}

// huffmanPending is the DNL gate of the Huffman scans: the marker can only
// follow a complete MCU row, and less than a byte of read ahead data is padding.
func (b *blockScan) huffmanPending(bs *bitio.BitStream) func() bool {
	return func() bool {
		return !b.rowStart || bs.Pending() >= 8
	}
}

func (b *blockScan) rows(idx int) [][]Block {
	if b.residualRows || b.all {
		return b.ctrl.CurrentResidualRows(idx)
	}
	return b.ctrl.CurrentQuantizedRows(idx)
}

func (b *blockScan) mcuSize(c *Component) (int, int) {
	if b.all || len(b.comps) > 1 {
		return c.MCUWidth, c.MCUHeight
	}
	return 1, 1
}

// mcu visits the blocks of the next MCU, component by component. Blocks outside
// the image are passed as nil. It reports whether the row holds more MCUs.
func (b *blockScan) mcu(fn func(c int, blk *Block) error) (bool, error) {
	return b.walk(func(c, idx, x, y int) error {
		return fn(c, blockAt(b.rows(idx), x, y))
	})
}

// mcuPair is mcu over the quantized and the residual block at each position
func (b *blockScan) mcuPair(fn func(c int, blk, res *Block) error) (bool, error) {
	return b.walk(func(c, idx, x, y int) error {
		return fn(c, blockAt(b.ctrl.CurrentQuantizedRows(idx), x, y), blockAt(b.ctrl.CurrentResidualRows(idx), x, y))
	})
}

func (b *blockScan) walk(fn func(c, idx, x, y int) error) (bool, error) {
	more := true
	for c, comp := range b.comps {
		w, h := b.mcuSize(comp)
		xmin := b.x[c]
		xmax := xmin + w
		if xmax >= b.frame.BlocksAcross(comp.Index) {
			more = false
		}
		for y := 0; y < h; y++ {
			for x := xmin; x < xmax; x++ {
				if err := fn(c, comp.Index, x, y); err != nil {
					return false, err
				}
			}
		}
		b.x[c] = xmax
	}
	b.rowStart = false
	return more, nil
}

func blockAt(rows [][]Block, x, y int) *Block {
	if y < len(rows) && x < len(rows[y]) {
		return &rows[y][x]
	}
	return nil
}

// symbolWriter sends symbols to a Huffman coder, or only counts them while measuring
type symbolWriter struct {
	bits  *bitio.BitStream
	coder *huffman.Coder
	stats *huffman.Statistics
}

func (w symbolWriter) put(symbol byte) error {
	if w.stats != nil {
		w.stats.Put(symbol)
		return nil
	}
	return w.coder.Put(w.bits, symbol)
}

// raw appends n bits of v behind a symbol, nothing while measuring
func (w symbolWriter) raw(n uint, v uint32) {
	if w.stats == nil && n > 0 {
		w.bits.Put(n, v)
	}
}

// writers binds the Huffman coders of class for every scan component, or the
// statistics when measuring
func (b *blockScan) writers(bs *bitio.BitStream, class huffman.Class) ([4]symbolWriter, error) {
	var out [4]symbolWriter
	for i, c := range b.comps {
		id := c.DCTable
		if class == huffman.AC {
			id = c.ACTable
		}
		w := symbolWriter{bits: bs}
		if b.measure {
			w.stats = b.scan.Statistics(class, id)
		} else {
			t := b.scan.Huffman.Table(class, id)
			if t == nil {
				return out, fmt.Errorf("no Huffman table %d/%d for component %d: %w", class, id, c.ID, stream.ErrInvalidParameter)
			}
			w.coder = t.Coder()
		}
		out[i] = w
	}
	return out, nil
}

func (b *blockScan) decoders(class huffman.Class) ([4]*huffman.Decoder, error) {
	var out [4]*huffman.Decoder
	for i, c := range b.comps {
		id := c.DCTable
		if class == huffman.AC {
			id = c.ACTable
		}
		t := b.scan.Huffman.Table(class, id)
		if t == nil {
			return out, fmt.Errorf("no Huffman table %d/%d for component %d: %w", class, id, c.ID, stream.ErrMalformedStream)
		}
		out[i] = t.Decoder()
	}
	return out, nil
}

// category is the number of bits of |v|
func category(v int32) uint {
	if v < 0 {
		v = -v
	}
	return uint(bits.Len32(uint32(v)))
}

// valueBits returns the low bits appended behind a category symbol
func valueBits(v int32) uint32 {
	if v < 0 {
		return uint32(v - 1)
	}
	return uint32(v)
}

// extend reconstructs the signed value of n appended bits
func extend(v uint32, n uint) int32 {
	d := int32(v)
	if d < 1<<(n-1) {
		d += (-1 << n) + 1
	}
	return d
}

// pointTransform divides by 2^shift rounding toward zero
func pointTransform(v int32, shift int) int32 {
	if v >= 0 {
		return v >> shift
	}
	return -((-v) >> shift)
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}
