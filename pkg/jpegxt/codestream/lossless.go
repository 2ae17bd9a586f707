package codestream

import (
	"fmt"
	"log/slog"

	"github.com/jpfielding/jpegxt.go/pkg/compress/bitio"
	"github.com/jpfielding/jpegxt.go/pkg/compress/huffman"
	"github.com/jpfielding/jpegxt.go/pkg/compress/stream"
)

// linesPerCall is the number of MCU lines one WriteMCU or ParseMCU call covers
const linesPerCall = 8

// predictiveScan is the part the line based scans share: the line source, the
// predictor chain of every component and the walk over the MCU lines. An MCU
// is a group of samples here, one per component in a non-interleaved scan.
type predictiveScan struct {
	parser
	ctrl LineSource

	mode     Predictor
	preshift int
	neutral  int32
	// predictor of the next MCU and of the start of the current MCU line
	pred, linePred [4]Predictor
	x              [4]int
	// first line of the current MCU line of the first component
	ypos    int
	measure bool
}

func newPredictiveScan(scan *Scan, self segmenter) predictiveScan {
	mode := Predictor(scan.Predictor)
	if scan.Kind.Differential() {
		mode = PredictNone
	}
	return predictiveScan{
		parser:   newParser(scan.Frame, scan, self),
		mode:     mode,
		preshift: scan.LowBit,
		neutral:  int32(1) << (max(scan.Frame.Precision, 1) - 1),
	}
}

func (s *predictiveScan) bind(ctrl BufferCtrl) error {
	src, ok := ctrl.(LineSource)
	if !ok {
		return fmt.Errorf("%s scan needs a line source, got %T: %w", s.scan.Kind, ctrl, stream.ErrInvalidParameter)
	}
	s.ctrl = src
	src.ResetToStartOfScan(s.scan)
	s.x = [4]int{}
	s.resetPredictors()
	return nil
}

// resetPredictors restarts prediction from the top left sample
func (s *predictiveScan) resetPredictors() {
	for i := range s.scan.Components {
		if s.x[i] != 0 {
			slog.Warn("restart marker in the middle of a line, expect corrupt results",
				slog.Int("component", i), slog.Int("x", s.x[i]))
		}
		s.pred[i] = s.mode.start()
		s.linePred[i] = s.pred[i]
	}
}

// lineGroup is the position of one component within the current lines
type lineGroup struct {
	lines      [][]int32
	prev       []int32 // the line above the group
	row, ypos  int
	mcuw, mcuh int
	width      int
}

func (s *predictiveScan) groups() []lineGroup {
	out := make([]lineGroup, len(s.scan.Components))
	for i, c := range s.scan.Components {
		g := lineGroup{
			lines: s.ctrl.CurrentLines(c.Index),
			prev:  s.ctrl.PreviousLine(c.Index),
			ypos:  s.ctrl.CurrentY(c.Index),
			mcuw:  1,
			mcuh:  1,
			width: s.frame.SampleWidth(c.Index),
		}
		if len(s.scan.Components) > 1 {
			g.mcuw, g.mcuh = c.MCUWidth, c.MCUHeight
		}
		out[i] = g
	}
	return out
}

// line returns line y of the MCU line, the last available line past the end
func (g *lineGroup) line(y int) []int32 {
	if len(g.lines) == 0 {
		return nil
	}
	return g.lines[min(g.row+y, len(g.lines)-1)]
}

// above returns the line above line y of the MCU line
func (g *lineGroup) above(y int) []int32 {
	if g.row+y == 0 {
		return g.prev
	}
	return g.line(y - 1)
}

// advanceGroups moves all groups to the next MCU line, false when the image is done
func (s *predictiveScan) advanceGroups(gs []lineGroup) bool {
	more := true
	for i := range gs {
		g := &gs[i]
		g.ypos += g.mcuh
		g.row += g.mcuh
		// a DNL marker may have posted the height within the group
		if s.frame.Height > 0 && g.ypos >= s.frame.SampleHeight(s.scan.Components[i].Index) {
			more = false
		}
		if g.row >= len(g.lines) {
			more = false
		}
	}
	return more
}

// sample is one sample of the walk and its prediction
type sample struct {
	comp int
	// line within the MCU and column within the line
	y, x int
	ln   []int32
	p    Predictor
	pred int32
}

// walk visits up to linesPerCall MCU lines of the current group. begin runs
// in front of every MCU and reports whether it carries data, fn gets every
// sample of it. lineDone follows every MCU line.
func (s *predictiveScan) walk(begin func() (bool, error), fn func(sm sample, valid bool) error, lineDone func()) error {
	gs := s.groups()
	for n := 0; n < linesPerCall; n++ {
		s.x = [4]int{}
		s.ypos = gs[0].ypos
		for more := true; more; {
			valid, err := begin()
			if err != nil {
				return err
			}
			for i := range gs {
				g := &gs[i]
				mcupred := s.pred[i]
				for ym := 0; ym < g.mcuh; ym++ {
					ln, pp := g.line(ym), g.above(ym)
					p := mcupred
					for xm := 0; xm < g.mcuw; xm++ {
						x := s.x[i] + xm
						sm := sample{comp: i, y: ym, x: x, ln: ln, p: p}
						if valid {
							sm.pred = p.predict(ln, pp, x, s.preshift, s.neutral)
						}
						if err := fn(sm, valid); err != nil {
							return err
						}
						p = p.right(s.mode)
					}
					mcupred = mcupred.down(s.mode)
				}
				s.pred[i] = s.pred[i].right(s.mode)
				s.x[i] += g.mcuw
				if s.x[i] >= g.width {
					more = false
				}
			}
		}
		if lineDone != nil {
			lineDone()
		}
		for i := range gs {
			s.linePred[i] = s.linePred[i].down(s.mode)
			s.pred[i] = s.linePred[i]
		}
		s.x = [4]int{}
		if !s.advanceGroups(gs) {
			break
		}
	}
	return nil
}

func (s *predictiveScan) insideImage() bool {
	return s.ypos < s.frame.SampleHeight(s.scan.Components[0].Index)
}

// lost is the sample that replaces one of a lost segment: mid grey, or no
// difference for the differential scans
func (s *predictiveScan) lost() int32 {
	if s.mode == PredictNone {
		return 0
	}
	return s.neutral << s.preshift
}

func (s *predictiveScan) StartMCURow() (bool, error) {
	return s.ctrl.StartMCUQuantizerRow(s.scan), nil
}

// LosslessScan is the Huffman coded lossless scan. It codes the differences
// between the samples and their prediction line by line. The differential
// flavour codes the sample differences of a hierarchical level, the prediction
// from the lower level is already part of the sample values.
type LosslessScan struct {
	predictiveScan
	bits *bitio.BitStream
	io   stream.ByteStream

	dc    [4]symbolWriter
	dcDec [4]*huffman.Decoder
}

// NewLosslessScan creates the line based Huffman coder of scan
func NewLosslessScan(scan *Scan) *LosslessScan {
	s := &LosslessScan{
		bits: bitio.New(bitio.ByteStuffing),
	}
	s.predictiveScan = newPredictiveScan(scan, s)
	s.pending = func() bool {
		return s.bits.Pending() >= 8
	}
	return s
}

func (s *LosslessScan) StartParseScan(io stream.ByteStream, ctrl BufferCtrl) error {
	if err := s.bind(ctrl); err != nil {
		return err
	}
	for i, c := range s.scan.Components {
		t := s.scan.Huffman.Table(huffman.DC, c.DCTable)
		if t == nil {
			return fmt.Errorf("no Huffman table for component %d: %w", c.ID, stream.ErrMalformedStream)
		}
		s.dcDec[i] = t.Decoder()
	}
	s.measure = false
	s.io = io
	s.bits.OpenForRead(io)
	s.startParse()
	return nil
}

func (s *LosslessScan) StartWriteScan(io stream.ByteStream, ctrl BufferCtrl) error {
	s.measure = false
	return s.startWriting(io, ctrl)
}

func (s *LosslessScan) StartMeasureScan(ctrl BufferCtrl) error {
	s.measure = true
	return s.startWriting(nil, ctrl)
}

func (s *LosslessScan) startWriting(io stream.ByteStream, ctrl BufferCtrl) error {
	if err := s.bind(ctrl); err != nil {
		return err
	}
	for i, c := range s.scan.Components {
		w := symbolWriter{bits: s.bits}
		if s.measure {
			w.stats = s.scan.Statistics(huffman.DC, c.DCTable)
		} else {
			t := s.scan.Huffman.Table(huffman.DC, c.DCTable)
			if t == nil {
				return fmt.Errorf("no Huffman table for component %d: %w", c.ID, stream.ErrInvalidParameter)
			}
			w.coder = t.Coder()
		}
		s.dc[i] = w
	}
	s.io = io
	s.bits.OpenForWrite(io)
	s.startWrite()
	return nil
}

func (s *LosslessScan) WriteMCU() (bool, error) {
	begin := func() (bool, error) {
		return true, s.BeginWriteMCU(s.io)
	}
	err := s.walk(begin, func(sm sample, _ bool) error {
		d, err := sm.p.difference(sm.ln[sm.x], sm.pred, s.preshift)
		if err != nil {
			return err
		}
		return s.encodeDifference(sm.comp, d)
	}, nil)
	return false, err
}

func (s *LosslessScan) encodeDifference(i int, v int32) error {
	w := s.dc[i]
	switch {
	case v == 0:
		return w.put(0)
	case v == -0x8000:
		return w.put(16)
	}
	symbol := category(v)
	if err := w.put(byte(symbol)); err != nil {
		return err
	}
	w.raw(symbol, valueBits(v))
	return nil
}

func (s *LosslessScan) ParseMCU() (bool, error) {
	begin := func() (bool, error) {
		return s.BeginReadMCU(s.bits.ByteStream())
	}
	err := s.walk(begin, func(sm sample, valid bool) error {
		if !valid {
			sm.ln[sm.x] = s.lost()
			return nil
		}
		d, err := s.decodeDifference(sm.comp)
		if err != nil {
			return err
		}
		sm.ln[sm.x] = sm.p.reconstruct(d, sm.pred, s.preshift)
		return nil
	}, nil)
	return false, err
}

func (s *LosslessScan) decodeDifference(i int) (int32, error) {
	symbol, err := s.dcDec[i].Get(s.bits)
	if err != nil {
		return 0, fmt.Errorf("lossless difference symbol: %w", err)
	}
	switch {
	case symbol == 0:
		return 0, nil
	case symbol == 16:
		return -0x8000, nil
	case symbol > 16:
		return 0, fmt.Errorf("lossless difference category %d: %w", symbol, stream.ErrMalformedStream)
	}
	v, err := s.bits.Get(uint(symbol))
	if err != nil {
		return 0, err
	}
	return extend(v, uint(symbol)), nil
}

func (s *LosslessScan) Flush(bool) error {
	s.resetPredictors()
	if s.measure {
		return nil
	}
	return s.bits.Flush()
}

func (s *LosslessScan) Restart() error {
	s.resetPredictors()
	s.bits.OpenForRead(s.bits.ByteStream())
	return nil
}

func (s *LosslessScan) WriteFrameType(io stream.ByteStream) error {
	if s.mode == PredictNone {
		return io.PutWord(0xffc7)
	}
	return io.PutWord(0xffc3)
}
