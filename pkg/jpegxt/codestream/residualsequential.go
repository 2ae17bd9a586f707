package codestream

import (
	"fmt"

	"github.com/jpfielding/jpegxt.go/pkg/compress/qm"
	"github.com/jpfielding/jpegxt.go/pkg/compress/stream"
)

// residualBytes holds two bits for each of the 64 coefficients
const residualBytes = 16

type injectContextSet struct {
	M, X   [17]qm.Context
	S0, SP qm.Context
	SS     [7]qm.Context
}

// ResidualSequentialScan is a sequential Huffman scan that carries the residual
// of each block in two extra low bits of every coefficient. The residual is QM
// coded into exactly 16 bytes first.
type ResidualSequentialScan struct {
	*SequentialScan
	rcoder   *qm.Coder
	contexts injectContextSet
}

// NewResidualSequentialScan creates the coder of scan
func NewResidualSequentialScan(scan *Scan) *ResidualSequentialScan {
	seq := NewSequentialScan(scan)
	seq.differential = false
	seq.residual = false
	seq.largeRange = false
	s := &ResidualSequentialScan{SequentialScan: seq, rcoder: qm.NewCoder()}
	seq.self = s
	return s
}

func (s *ResidualSequentialScan) StartParseScan(io stream.ByteStream, ctrl BufferCtrl) error {
	s.contexts = injectContextSet{}
	return s.SequentialScan.StartParseScan(io, ctrl)
}

func (s *ResidualSequentialScan) StartWriteScan(io stream.ByteStream, ctrl BufferCtrl) error {
	s.contexts = injectContextSet{}
	return s.SequentialScan.StartWriteScan(io, ctrl)
}

func (s *ResidualSequentialScan) StartMeasureScan(ctrl BufferCtrl) error {
	s.contexts = injectContextSet{}
	return s.SequentialScan.StartMeasureScan(ctrl)
}

// StartMCURow advances the quantized and the residual rows in step
func (s *ResidualSequentialScan) StartMCURow() (bool, error) {
	more := s.ctrl.StartMCUQuantizerRow(s.scan)
	if !s.ctrl.StartMCUResidualRow(s.scan) {
		more = false
	}
	s.x = [4]int{}
	s.rowStart = true
	return more, nil
}

func (s *ResidualSequentialScan) WriteMCU() (bool, error) {
	if err := s.BeginWriteMCU(s.io); err != nil {
		return false, err
	}
	return s.mcuPair(func(c int, blk, res *Block) error {
		var coded, rdummy Block
		if blk == nil || res == nil {
			coded[0] = s.prevDC[c] >> 2
			res = &rdummy
		} else {
			coded = *blk
		}
		if err := s.inject(&coded, res); err != nil {
			return err
		}
		return s.encodeBlock(&coded, c)
	})
}

func (s *ResidualSequentialScan) ParseMCU() (bool, error) {
	valid, err := s.BeginReadMCU(s.bits.ByteStream())
	if err != nil {
		return false, err
	}
	return s.mcuPair(func(c int, blk, res *Block) error {
		var dummy, rdummy Block
		if blk == nil || res == nil {
			blk, res = &dummy, &rdummy
		}
		if !valid {
			*blk, *res = Block{}, Block{}
			return nil
		}
		if err := s.decodeBlock(blk, c); err != nil {
			return err
		}
		return s.extract(blk, res)
	})
}

// Flush ends the segment; the residual statistics restart with it
func (s *ResidualSequentialScan) Flush(final bool) error {
	s.contexts = injectContextSet{}
	return s.SequentialScan.Flush(final)
}

func (s *ResidualSequentialScan) Restart() error {
	s.contexts = injectContextSet{}
	return s.SequentialScan.Restart()
}

// inject appends the QM coded residual as two low bits to every coefficient
func (s *ResidualSequentialScan) inject(blk, res *Block) error {
	var buf [residualBytes]byte
	side := stream.NewStaticWriter(buf[:])
	if err := s.encodeResidual(res, side); err != nil {
		return err
	}
	for k := 0; k < 64; k++ {
		shift := 6 - 2*(k&3)
		blk[k] = blk[k]<<2 | int32(buf[k>>2]>>shift)&3
	}
	return nil
}

// extract strips the two low bits of every coefficient and decodes the residual from them
func (s *ResidualSequentialScan) extract(blk, res *Block) error {
	var buf [residualBytes]byte
	for k := 0; k < 64; k++ {
		shift := 6 - 2*(k&3)
		buf[k>>2] |= byte(blk[k]&3) << shift
		blk[k] >>= 2
	}
	return s.decodeResidual(res, stream.NewStaticStream(buf[:]))
}

func (s *ResidualSequentialScan) encodeResidual(res *Block, side *stream.StaticStream) error {
	ctx := &s.contexts
	s.rcoder.OpenForWrite(side)
	for k := 0; k < 64; k++ {
		data := res[k]
		if data == 0 {
			s.rcoder.Put(&ctx.S0, false)
			continue
		}
		s.rcoder.Put(&ctx.S0, true)
		s.rcoder.Put(&ctx.SS[neighbourClass(res, k)], data < 0)
		sz := abs32(data) - 1
		if sz < 1 {
			s.rcoder.Put(&ctx.SP, false)
			continue
		}
		s.rcoder.Put(&ctx.SP, true)
		i, m := 0, int32(2)
		for sz >= m {
			if i >= len(ctx.X)-1 {
				return fmt.Errorf("residual %d: %w", data, stream.ErrOverflow)
			}
			s.rcoder.Put(&ctx.X[i], true)
			m <<= 1
			i++
		}
		s.rcoder.Put(&ctx.X[i], false)
		m >>= 1
		for m >>= 1; m != 0; m >>= 1 {
			s.rcoder.Put(&ctx.M[i], sz&m != 0)
		}
	}
	if err := s.rcoder.Flush(); err != nil {
		return fmt.Errorf("residual does not fit into %d bytes: %w", residualBytes, err)
	}
	return nil
}

func (s *ResidualSequentialScan) decodeResidual(res *Block, side *stream.StaticStream) error {
	ctx := &s.contexts
	s.rcoder.OpenForRead(side)
	for k := 0; k < 64; k++ {
		res[k] = 0
		if !s.rcoder.Get(&ctx.S0) {
			continue
		}
		negative := s.rcoder.Get(&ctx.SS[neighbourClass(res, k)])
		var sz int32
		if s.rcoder.Get(&ctx.SP) {
			i, m := 0, int32(2)
			for s.rcoder.Get(&ctx.X[i]) {
				m <<= 1
				i++
				if i >= len(ctx.X) {
					return fmt.Errorf("residual magnitude, QM coder out of sync: %w", stream.ErrMalformedStream)
				}
			}
			m >>= 1
			sz = m
			for m >>= 1; m != 0; m >>= 1 {
				if s.rcoder.Get(&ctx.M[i]) {
					sz |= m
				}
			}
		}
		if negative {
			res[k] = -sz - 1
		} else {
			res[k] = sz + 1
		}
	}
	return nil
}

func (s *ResidualSequentialScan) WriteFrameType(io stream.ByteStream) error {
	if s.progressive {
		return io.PutWord(0xffc2)
	}
	return io.PutWord(0xffc1)
}
