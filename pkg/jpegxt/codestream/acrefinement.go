package codestream

import (
	"fmt"

	"github.com/jpfielding/jpegxt.go/pkg/compress/qm"
	"github.com/jpfielding/jpegxt.go/pkg/compress/stream"
)

type refinementZeroSet struct {
	S0, SE, SC qm.Context
}

type refinementContextSet struct {
	acZero  [64]refinementZeroSet
	uniform qm.Context
}

func (r *refinementContextSet) init() {
	*r = refinementContextSet{}
	r.uniform.InitUniform()
}

// ACRefinementScan is the QM coded successive approximation scan
type ACRefinementScan struct {
	blockScan
	coder    *qm.Coder
	contexts [4]refinementContextSet

	start, stop     int
	lowBit, highBit int
	residual        bool
}

// NewACRefinementScan creates the arithmetic refinement coder of scan
func NewACRefinementScan(scan *Scan) *ACRefinementScan {
	s := &ACRefinementScan{
		coder:    qm.NewCoder(),
		start:    scan.Start,
		stop:     scan.Stop,
		lowBit:   scan.LowBit,
		highBit:  scan.HighBit,
		residual: scan.Residual,
	}
	s.blockScan = newBlockScan(scan, s)
	return s
}

func (s *ACRefinementScan) init() {
	for i := range s.contexts {
		s.contexts[i].init()
	}
}

func (s *ACRefinementScan) StartParseScan(io stream.ByteStream, ctrl BufferCtrl) error {
	if err := s.bind(ctrl); err != nil {
		return err
	}
	s.measure = false
	s.init()
	s.coder.OpenForRead(io)
	s.startParse()
	return nil
}

func (s *ACRefinementScan) StartWriteScan(io stream.ByteStream, ctrl BufferCtrl) error {
	if err := s.bind(ctrl); err != nil {
		return err
	}
	s.measure = false
	s.init()
	s.coder.OpenForWrite(io)
	s.startWrite()
	return nil
}

// StartMeasureScan does nothing, the arithmetic coder adapts by itself
func (s *ACRefinementScan) StartMeasureScan(BufferCtrl) error {
	return nil
}

func (s *ACRefinementScan) StartMCURow() (bool, error) {
	return s.startRow(), nil
}

func (s *ACRefinementScan) WriteMCU() (bool, error) {
	if err := s.BeginWriteMCU(s.coder.ByteStream()); err != nil {
		return false, err
	}
	return s.mcu(func(c int, blk *Block) error {
		if blk == nil {
			var dummy Block
			blk = &dummy
		}
		s.encodeBlock(blk, c)
		return s.coder.Err()
	})
}

func (s *ACRefinementScan) ParseMCU() (bool, error) {
	valid, err := s.BeginReadMCU(s.coder.ByteStream())
	if err != nil {
		return false, err
	}
	return s.mcu(func(c int, blk *Block) error {
		if blk == nil {
			var dummy Block
			blk = &dummy
		}
		if !valid {
			return nil
		}
		return s.decodeBlock(blk, c)
	})
}

func (s *ACRefinementScan) encodeBlock(blk *Block, c int) {
	ctx := &s.contexts[s.scan.acTable(c)]
	if s.start == 0 && !s.residual {
		s.coder.Put(&ctx.uniform, (blk[0]>>s.lowBit)&1 != 0)
	}
	if s.stop == 0 && !s.residual {
		return
	}
	k := s.start
	eob := s.stop
	for eob >= k && pointTransform(blk[ScanOrder[eob]], s.lowBit) == 0 {
		eob--
	}
	eob++
	// coefficients before eobx were significant already
	eobx := eob - 1
	for eobx >= k && pointTransform(blk[ScanOrder[eobx]], s.highBit) == 0 {
		eobx--
	}
	eobx++
	for k <= s.stop {
		if k >= eobx {
			if k == eob {
				s.coder.Put(&ctx.acZero[k].SE, true)
				return
			}
			s.coder.Put(&ctx.acZero[k].SE, false)
		}
		var data int32
		for {
			data = pointTransform(blk[ScanOrder[k]], s.lowBit)
			if data != 0 {
				break
			}
			s.coder.Put(&ctx.acZero[k].S0, false)
			k++
		}
		if data > 1 || data < -1 {
			s.coder.Put(&ctx.acZero[k].SC, data&1 != 0)
		} else {
			s.coder.Put(&ctx.acZero[k].S0, true)
			s.coder.Put(&ctx.uniform, data < 0)
		}
		k++
	}
}

func (s *ACRefinementScan) decodeBlock(blk *Block, c int) error {
	ctx := &s.contexts[s.scan.acTable(c)]
	if s.start == 0 && !s.residual {
		if s.coder.Get(&ctx.uniform) {
			blk[0] |= 1 << s.lowBit
		}
	}
	if s.stop == 0 && !s.residual {
		return nil
	}
	k := s.start
	eobx := s.stop
	for eobx >= k && blk[ScanOrder[eobx]] == 0 {
		eobx--
	}
	eobx++
	for k < eobx || (k <= s.stop && !s.coder.Get(&ctx.acZero[k].SE)) {
		for blk[ScanOrder[k]] == 0 && !s.coder.Get(&ctx.acZero[k].S0) {
			k++
			if k > s.stop {
				return fmt.Errorf("refinement zero run, QM coder out of sync: %w", stream.ErrMalformedStream)
			}
		}
		idx := ScanOrder[k]
		switch data := blk[idx]; {
		case data != 0:
			if s.coder.Get(&ctx.acZero[k].SC) {
				if data > 0 {
					blk[idx] += 1 << s.lowBit
				} else {
					blk[idx] -= 1 << s.lowBit
				}
			}
		case s.coder.Get(&ctx.uniform):
			blk[idx] = -1 << s.lowBit
		default:
			blk[idx] = 1 << s.lowBit
		}
		k++
	}
	return nil
}

func (s *ACRefinementScan) Flush(bool) error {
	err := s.coder.Flush()
	s.init()
	s.coder.OpenForWrite(s.coder.ByteStream())
	return err
}

func (s *ACRefinementScan) Restart() error {
	s.init()
	s.coder.OpenForRead(s.coder.ByteStream())
	return nil
}

func (s *ACRefinementScan) WriteFrameType(io stream.ByteStream) error {
	if s.residual {
		return io.PutWord(0xffba)
	}
	return io.PutWord(0xffca)
}
