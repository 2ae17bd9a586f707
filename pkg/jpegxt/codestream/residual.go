package codestream

import (
	"fmt"

	"github.com/jpfielding/jpegxt.go/pkg/compress/hadamard"
	"github.com/jpfielding/jpegxt.go/pkg/compress/qm"
	"github.com/jpfielding/jpegxt.go/pkg/compress/stream"
	"github.com/jpfielding/jpegxt.go/pkg/jpegxt/marker"
)

// codingClass maps a Hadamard band to its magnitude class
var codingClass = [64]uint8{
	0, 1, 1, 1, 1, 1, 1, 1,
	1, 1, 1, 2, 2, 2, 3, 3,
	1, 1, 1, 2, 2, 2, 3, 3,
	1, 2, 2, 3, 3, 3, 3, 3,
	1, 2, 2, 3, 3, 3, 3, 3,
	1, 2, 2, 3, 3, 3, 3, 3,
	1, 3, 3, 3, 3, 3, 3, 3,
	1, 3, 3, 3, 3, 3, 3, 3,
}

// fineClass maps a Hadamard band to its zero and sign class
var fineClass = [64]uint8{
	0, 1, 1, 2, 2, 2, 3, 3,
	4, 7, 7, 8, 8, 8, 11, 11,
	4, 7, 7, 8, 8, 8, 11, 11,
	5, 9, 9, 10, 10, 10, 11, 11,
	5, 9, 9, 10, 10, 10, 11, 11,
	5, 9, 9, 10, 10, 10, 11, 11,
	6, 12, 12, 12, 12, 12, 13, 13,
	6, 12, 12, 12, 12, 12, 13, 13,
}

// neighbourClass classifies the sign pattern of the left, top and top-left
// residuals of raster position k into 0-6
func neighbourClass(r *Block, k int) int {
	var left, top, ltop int32
	if k&7 != 0 {
		left = r[k-1]
	}
	if k>>3 != 0 {
		top = r[k-8]
	}
	if k&7 != 0 && k>>3 != 0 {
		ltop = r[k-9]
	}
	const delta = 1
	switch {
	case left > delta && ltop > delta && top < -delta:
		return 1
	case left < -delta && ltop < -delta && top > delta:
		return 2
	case left > delta && ltop < -delta && top < -delta:
		return 3
	case left < -delta && ltop > delta && top > delta:
		return 4
	case left > delta && top > delta && ltop > delta:
		return 5
	case left < -delta && top < -delta && ltop < -delta:
		return 6
	}
	return 0
}

func componentClass(c int) int {
	if c > 0 {
		return 1
	}
	return 0
}

// biasEstimator tracks the mean DC error of a component in Hadamard mode.
// The sum and count halve once more than 64 samples were seen.
type biasEstimator struct {
	DC, N, B int32
}

func (e *biasEstimator) adapt(dc int32) {
	e.B += dc
	e.N++
	e.DC = e.B / e.N
	if e.N > 64 {
		e.N >>= 1
		if e.B >= 0 {
			e.B >>= 1
		} else {
			e.B = -((-e.B) >> 1)
		}
	}
}

type residualContextSet struct {
	M  [16][24][4]qm.Context
	X  [16][24]qm.Context
	S0 [16][2]qm.Context
	SP [16]qm.Context
	SS [16]qm.Context
}

// sideChannel is the staging of a scan whose data travels in APP9 segments
type sideChannel struct {
	marker *marker.ResidualMarker
	target stream.ByteStream
	staged *stream.MemoryStream
}

func (sc *sideChannel) stage(target stream.ByteStream) *stream.MemoryStream {
	sc.target = target
	sc.staged = stream.NewMemoryStream(4096)
	return sc.staged
}

func (sc *sideChannel) source() (stream.ByteStream, error) {
	io := sc.marker.Stream()
	if io == nil {
		return nil, fmt.Errorf("no %s side channel data: %w", sc.marker.Type, stream.ErrMalformedStream)
	}
	return io, nil
}

// commit splits the staged data into APP9 segments behind the target
func (sc *sideChannel) commit() error {
	if sc.staged == nil {
		return nil
	}
	err := sc.marker.WriteMarker(sc.target, sc.staged)
	sc.staged = nil
	return err
}

// residualBlocks is the part the residual scans share: every frame component,
// the optional Hadamard transform and its DC bias estimators.
type residualBlocks struct {
	blockScan
	sideChannel
	hadamard bool
	bias     [4]biasEstimator
}

func newResidualBlocks(scan *Scan, self segmenter) residualBlocks {
	r := residualBlocks{
		blockScan: newBlockScan(scan, self),
		hadamard:  scan.Frame.Hadamard,
	}
	r.all = true
	r.comps = scan.Frame.Components
	r.marker = scan.Frame.SideChannel(marker.Residual)
	return r
}

func (r *residualBlocks) resetBias() {
	r.bias = [4]biasEstimator{}
}

// forward returns the block to code, transformed in Hadamard mode with the
// DC bias removed
func (r *residualBlocks) forward(blk *Block, c int) Block {
	if !r.hadamard {
		return *blk
	}
	var out Block
	hadamard.Forward((*[64]int32)(blk), (*[64]int32)(&out), 0)
	dc := out[0]
	out[0] -= r.bias[c].DC
	r.bias[c].adapt(dc)
	return out
}

// inverse restores the residual block of decoded coefficients
func (r *residualBlocks) inverse(coded *Block, blk *Block, c int) {
	if !r.hadamard {
		*blk = *coded
		return
	}
	coded[0] += r.bias[c].DC
	r.bias[c].adapt(coded[0])
	hadamard.Inverse((*[64]int32)(coded), (*[64]int32)(blk), 0)
}

// ResidualScan codes the residual of every frame component with the QM coder
// into the APP9 residual side channel. It knows no restart markers.
type ResidualScan struct {
	residualBlocks
	coder    *qm.Coder
	contexts residualContextSet
}

// NewResidualScan creates the arithmetic residual coder of scan
func NewResidualScan(scan *Scan) *ResidualScan {
	s := &ResidualScan{coder: qm.NewCoder()}
	s.residualBlocks = newResidualBlocks(scan, s)
	return s
}

func (s *ResidualScan) init() {
	s.contexts = residualContextSet{}
	s.resetBias()
}

func (s *ResidualScan) StartParseScan(_ stream.ByteStream, ctrl BufferCtrl) error {
	if err := s.bind(ctrl); err != nil {
		return err
	}
	io, err := s.source()
	if err != nil {
		return err
	}
	s.init()
	s.measure = false
	s.coder.OpenForRead(io)
	return nil
}

func (s *ResidualScan) StartWriteScan(io stream.ByteStream, ctrl BufferCtrl) error {
	if err := s.bind(ctrl); err != nil {
		return err
	}
	s.init()
	s.measure = false
	s.coder.OpenForWrite(s.stage(io))
	return nil
}

func (s *ResidualScan) StartMeasureScan(ctrl BufferCtrl) error {
	if err := s.bind(ctrl); err != nil {
		return err
	}
	s.init()
	s.measure = true
	return nil
}

func (s *ResidualScan) StartMCURow() (bool, error) {
	return s.startRow(), nil
}

func (s *ResidualScan) WriteMCU() (bool, error) {
	return s.mcu(func(c int, blk *Block) error {
		if s.measure {
			return nil
		}
		var dummy Block
		if blk == nil {
			blk = &dummy
		}
		return s.encodeBlock(blk, c)
	})
}

func (s *ResidualScan) ParseMCU() (bool, error) {
	return s.mcu(func(c int, blk *Block) error {
		var dummy Block
		if blk == nil {
			blk = &dummy
		}
		return s.decodeBlock(blk, c)
	})
}

// putMagnitude codes sz >= 1 with the category contexts x and the bit contexts m
func (s *ResidualScan) putMagnitude(sz int32, x *[24]qm.Context, m *[24][4]qm.Context) error {
	i, lim := 0, int32(2)
	for sz >= lim {
		if i >= len(x)-1 {
			return fmt.Errorf("residual magnitude %d: %w", sz+1, stream.ErrOverflow)
		}
		s.coder.Put(&x[i], true)
		lim <<= 1
		i++
	}
	s.coder.Put(&x[i], false)
	l := 0
	lim >>= 1
	for lim >>= 1; lim != 0; lim >>= 1 {
		s.coder.Put(&m[i][l], sz&lim != 0)
		if l < 2 {
			l++
		}
	}
	return nil
}

func (s *ResidualScan) getMagnitude(x *[24]qm.Context, m *[24][4]qm.Context) (int32, error) {
	i, lim := 0, int32(2)
	for s.coder.Get(&x[i]) {
		lim <<= 1
		i++
		if i >= len(x) {
			return 0, fmt.Errorf("residual magnitude, QM coder out of sync: %w", stream.ErrMalformedStream)
		}
	}
	l := 0
	lim >>= 1
	sz := lim
	for lim >>= 1; lim != 0; lim >>= 1 {
		if s.coder.Get(&m[i][l]) {
			sz |= lim
		}
		if l < 2 {
			l++
		}
	}
	return sz, nil
}

func (s *ResidualScan) encodeBlock(blk *Block, c int) error {
	coded := s.forward(blk, c)
	cc := componentClass(c)
	ctx := &s.contexts
	for k := 0; k < 64; k++ {
		data := coded[k]
		// zero and sign class, magnitude class
		var s0 *qm.Context
		var ss, sp *qm.Context
		var mc int
		if s.hadamard {
			p := fineClass[k]
			s0, ss, sp = &ctx.S0[p][cc], &ctx.SS[p], &ctx.SP[p]
			mc = int(codingClass[k])
		} else {
			s0, ss, sp = &ctx.S0[0][cc], &ctx.SS[neighbourClass(&coded, k)], &ctx.SP[cc]
			mc = cc
		}
		if data == 0 {
			s.coder.Put(s0, false)
			continue
		}
		s.coder.Put(s0, true)
		s.coder.Put(ss, data < 0)
		sz := abs32(data) - 1
		if sz < 1 {
			s.coder.Put(sp, false)
			continue
		}
		s.coder.Put(sp, true)
		if err := s.putMagnitude(sz, &ctx.X[mc], &ctx.M[mc]); err != nil {
			return err
		}
	}
	return s.coder.Err()
}

func (s *ResidualScan) decodeBlock(blk *Block, c int) error {
	var coded Block
	cc := componentClass(c)
	ctx := &s.contexts
	for k := 0; k < 64; k++ {
		var s0, ss, sp *qm.Context
		var mc int
		if s.hadamard {
			p := fineClass[k]
			s0, ss, sp = &ctx.S0[p][cc], &ctx.SS[p], &ctx.SP[p]
			mc = int(codingClass[k])
		} else {
			s0, ss, sp = &ctx.S0[0][cc], &ctx.SS[neighbourClass(&coded, k)], &ctx.SP[cc]
			mc = cc
		}
		if !s.coder.Get(s0) {
			continue
		}
		negative := s.coder.Get(ss)
		var sz int32
		if s.coder.Get(sp) {
			var err error
			if sz, err = s.getMagnitude(&ctx.X[mc], &ctx.M[mc]); err != nil {
				return err
			}
		}
		if negative {
			coded[k] = -sz - 1
		} else {
			coded[k] = sz + 1
		}
	}
	s.inverse(&coded, blk, c)
	return nil
}

func (s *ResidualScan) Flush(bool) error {
	if s.measure {
		return nil
	}
	if err := s.coder.Flush(); err != nil {
		return err
	}
	return s.commit()
}

// Restart is a contract violation, residual scans carry no restart markers
func (s *ResidualScan) Restart() error {
	panic("codestream: residual scans are not restartable")
}

func (s *ResidualScan) WriteFrameType(io stream.ByteStream) error {
	return writeNextFrameType(s.scan, io)
}

// writeNextFrameType lets the scan behind a side channel scan name the frame type
func writeNextFrameType(scan *Scan, io stream.ByteStream) error {
	if scan.Next == nil {
		return fmt.Errorf("%s scan without a following scan: %w", scan.Kind, stream.ErrInvalidParameter)
	}
	next, err := scan.Next.Coder()
	if err != nil {
		return err
	}
	return next.WriteFrameType(io)
}
