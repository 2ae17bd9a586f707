package codestream

import (
	"fmt"

	"github.com/jpfielding/jpegxt.go/pkg/compress/qm"
	"github.com/jpfielding/jpegxt.go/pkg/compress/stream"
)

// dcZeroSet is the DC decision tree of one difference class
type dcZeroSet struct {
	S0, SS, SP, SN qm.Context
}

type acZeroSet struct {
	SE, S0, SP qm.Context
}

type dcMagnitudeSet struct {
	X, M [19]qm.Context
}

type acMagnitudeSet struct {
	X, M [18]qm.Context
}

// acContextSet holds the statistics bins of one conditioning table
type acContextSet struct {
	dcZero, dcSmallPos, dcSmallNeg, dcLargePos, dcLargeNeg dcZeroSet
	dcMagnitude                                            dcMagnitudeSet
	acZero                                                 [64]acZeroSet
	acLow, acHigh                                          acMagnitudeSet
	uniform                                                qm.Context
}

func (a *acContextSet) init() {
	*a = acContextSet{}
	a.uniform.InitUniform()
}

// classify picks the DC decision tree from the previous difference
func (a *acContextSet) classify(diff int32, l, u int) *dcZeroSet {
	v := abs32(diff)
	switch {
	case v <= int32((1<<l)>>1):
		return &a.dcZero
	case v <= int32(1<<u):
		if diff < 0 {
			return &a.dcSmallNeg
		}
		return &a.dcSmallPos
	case diff < 0:
		return &a.dcLargeNeg
	}
	return &a.dcLargePos
}

// ACSequentialScan is the QM coded sequential or first progressive scan
type ACSequentialScan struct {
	blockScan
	coder *qm.Coder

	contexts [4]acContextSet
	prevDC   [4]int32
	prevDiff [4]int32

	start, stop, lowBit int
	differential        bool
	residual            bool
	largeRange          bool
	progressive         bool
}

// NewACSequentialScan creates the arithmetic scan coder of scan
func NewACSequentialScan(scan *Scan) *ACSequentialScan {
	s := &ACSequentialScan{
		coder:        qm.NewCoder(),
		start:        scan.Start,
		stop:         scan.Stop,
		lowBit:       scan.LowBit,
		differential: scan.Frame.Differential,
		residual:     scan.Residual,
		largeRange:   scan.Frame.LargeRange,
		progressive:  scan.Progressive(),
	}
	s.blockScan = newBlockScan(scan, s)
	return s
}

func (s *ACSequentialScan) resetState() {
	for i := range s.contexts {
		s.contexts[i].init()
	}
	s.prevDC = [4]int32{}
	s.prevDiff = [4]int32{}
}

func (s *ACSequentialScan) StartParseScan(io stream.ByteStream, ctrl BufferCtrl) error {
	if err := s.bind(ctrl); err != nil {
		return err
	}
	s.measure = false
	s.resetState()
	s.coder.OpenForRead(io)
	s.startParse()
	return nil
}

func (s *ACSequentialScan) StartWriteScan(io stream.ByteStream, ctrl BufferCtrl) error {
	if err := s.bind(ctrl); err != nil {
		return err
	}
	s.measure = false
	s.resetState()
	s.coder.OpenForWrite(io)
	s.startWrite()
	return nil
}

// StartMeasureScan does nothing, the arithmetic coder adapts by itself
func (s *ACSequentialScan) StartMeasureScan(BufferCtrl) error {
	return nil
}

func (s *ACSequentialScan) StartMCURow() (bool, error) {
	return s.startRow(), nil
}

func (s *ACSequentialScan) WriteMCU() (bool, error) {
	if err := s.BeginWriteMCU(s.coder.ByteStream()); err != nil {
		return false, err
	}
	return s.mcu(func(c int, blk *Block) error {
		if blk == nil {
			var dummy Block
			dummy[0] = s.prevDC[c] << s.lowBit
			blk = &dummy
		}
		return s.encodeBlock(blk, c)
	})
}

func (s *ACSequentialScan) ParseMCU() (bool, error) {
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
			for k := s.start; k <= s.stop; k++ {
				blk[ScanOrder[k]] = 0
			}
			return nil
		}
		return s.decodeBlock(blk, c)
	})
}

func (s *ACSequentialScan) firstAC() int {
	switch {
	case s.start > 0:
		return s.start
	case s.residual:
		return 0
	}
	return 1
}

func (s *ACSequentialScan) encodeBlock(blk *Block, c int) error {
	if s.start == 0 && !s.residual {
		dcIdx := s.scan.dcTable(c)
		ctx := &s.contexts[dcIdx]
		cond := s.scan.DC[dcIdx]
		v := blk[0] >> s.lowBit
		diff := v - s.prevDC[c]
		if s.differential {
			s.prevDC[c] = 0
		} else {
			s.prevDC[c] = v
		}
		zs := ctx.classify(s.prevDiff[c], cond.L, cond.U)
		if diff != 0 {
			s.coder.Put(&zs.S0, true)
			sz := abs32(diff) - 1
			sp := &zs.SP
			if diff < 0 {
				s.coder.Put(&zs.SS, true)
				sp = &zs.SN
			} else {
				s.coder.Put(&zs.SS, false)
			}
			if sz >= 1 {
				s.coder.Put(sp, true)
				i, m := 0, int32(2)
				for sz >= m {
					if i >= len(ctx.dcMagnitude.X)-1 {
						return fmt.Errorf("DC difference %d: %w", diff, stream.ErrOverflow)
					}
					s.coder.Put(&ctx.dcMagnitude.X[i], true)
					m <<= 1
					i++
				}
				s.coder.Put(&ctx.dcMagnitude.X[i], false)
				m >>= 1
				for m >>= 1; m != 0; m >>= 1 {
					s.coder.Put(&ctx.dcMagnitude.M[i], sz&m != 0)
				}
			} else {
				s.coder.Put(sp, false)
			}
		} else {
			s.coder.Put(&zs.S0, false)
		}
		s.prevDiff[c] = diff
	}
	if s.stop == 0 {
		return nil
	}
	acIdx := s.scan.acTable(c)
	ctx := &s.contexts[acIdx]
	kx := s.scan.Kx[acIdx]
	k := s.firstAC()
	eob := s.stop
	for eob >= k && pointTransform(blk[ScanOrder[eob]], s.lowBit) == 0 {
		eob--
	}
	eob++
	for {
		if k == eob {
			s.coder.Put(&ctx.acZero[k].SE, true)
			break
		}
		s.coder.Put(&ctx.acZero[k].SE, false)
		var data int32
		for {
			data = pointTransform(blk[ScanOrder[k]], s.lowBit)
			if data != 0 {
				break
			}
			s.coder.Put(&ctx.acZero[k].S0, false)
			k++
		}
		s.coder.Put(&ctx.acZero[k].S0, true)
		s.coder.Put(&ctx.uniform, data < 0)
		sz := abs32(data) - 1
		if sz >= 1 {
			s.coder.Put(&ctx.acZero[k].SP, true)
			if sz >= 2 {
				s.coder.Put(&ctx.acZero[k].SP, true)
				acm := &ctx.acLow
				if k > kx {
					acm = &ctx.acHigh
				}
				i, m := 0, int32(4)
				for sz >= m {
					if i >= len(acm.X)-1 {
						return fmt.Errorf("AC coefficient %d: %w", data, stream.ErrOverflow)
					}
					s.coder.Put(&acm.X[i], true)
					m <<= 1
					i++
				}
				s.coder.Put(&acm.X[i], false)
				m >>= 1
				for m >>= 1; m != 0; m >>= 1 {
					s.coder.Put(&acm.M[i], sz&m != 0)
				}
			} else {
				s.coder.Put(&ctx.acZero[k].SP, false)
			}
		} else {
			s.coder.Put(&ctx.acZero[k].SP, false)
		}
		k++
		if k > s.stop {
			break
		}
	}
	return s.coder.Err()
}

func (s *ACSequentialScan) decodeBlock(blk *Block, c int) error {
	if s.start == 0 && !s.residual {
		dcIdx := s.scan.dcTable(c)
		ctx := &s.contexts[dcIdx]
		cond := s.scan.DC[dcIdx]
		zs := ctx.classify(s.prevDiff[c], cond.L, cond.U)
		var diff int32
		if s.coder.Get(&zs.S0) {
			sp := &zs.SP
			negative := s.coder.Get(&zs.SS)
			if negative {
				sp = &zs.SN
			}
			var sz int32
			if s.coder.Get(sp) {
				i, m := 0, int32(2)
				for s.coder.Get(&ctx.dcMagnitude.X[i]) {
					m <<= 1
					i++
					if i >= len(ctx.dcMagnitude.X) {
						return fmt.Errorf("DC magnitude, QM coder out of sync: %w", stream.ErrMalformedStream)
					}
				}
				m >>= 1
				sz = m
				for m >>= 1; m != 0; m >>= 1 {
					if s.coder.Get(&ctx.dcMagnitude.M[i]) {
						sz |= m
					}
				}
			}
			diff = sz + 1
			if negative {
				diff = -diff
			}
		}
		s.prevDiff[c] = diff
		if s.differential {
			s.prevDC[c] = diff
		} else {
			s.prevDC[c] += diff
		}
		blk[0] = s.prevDC[c] << s.lowBit
	}
	if s.stop == 0 {
		return nil
	}
	acIdx := s.scan.acTable(c)
	ctx := &s.contexts[acIdx]
	kx := s.scan.Kx[acIdx]
	k := s.firstAC()
	for k <= s.stop && !s.coder.Get(&ctx.acZero[k].SE) {
		for !s.coder.Get(&ctx.acZero[k].S0) {
			k++
			if k > s.stop {
				return fmt.Errorf("AC zero run, QM coder out of sync: %w", stream.ErrMalformedStream)
			}
		}
		negative := s.coder.Get(&ctx.uniform)
		var sz int32
		if s.coder.Get(&ctx.acZero[k].SP) {
			if s.coder.Get(&ctx.acZero[k].SP) {
				acm := &ctx.acLow
				if k > kx {
					acm = &ctx.acHigh
				}
				i, m := 0, int32(4)
				for s.coder.Get(&acm.X[i]) {
					m <<= 1
					i++
					if i >= len(acm.X) {
						return fmt.Errorf("AC magnitude, QM coder out of sync: %w", stream.ErrMalformedStream)
					}
				}
				m >>= 1
				sz = m
				for m >>= 1; m != 0; m >>= 1 {
					if s.coder.Get(&acm.M[i]) {
						sz |= m
					}
				}
			} else {
				sz = 1
			}
		}
		sz++
		if negative {
			sz = -sz
		}
		blk[ScanOrder[k]] = sz << s.lowBit
		k++
	}
	return nil
}

func (s *ACSequentialScan) Flush(bool) error {
	if s.measure {
		return nil
	}
	err := s.coder.Flush()
	s.resetState()
	s.coder.OpenForWrite(s.coder.ByteStream())
	return err
}

func (s *ACSequentialScan) Restart() error {
	s.resetState()
	s.coder.OpenForRead(s.coder.ByteStream())
	return nil
}

func (s *ACSequentialScan) WriteFrameType(io stream.ByteStream) error {
	var t uint16
	switch {
	case s.progressive && s.residual:
		t = 0xffba
	case s.progressive && s.differential:
		t = 0xffce
	case s.progressive:
		t = 0xffca
	case s.residual:
		t = 0xffb9
	case s.differential:
		t = 0xffcd
	case s.largeRange:
		t = 0xffbb
	default:
		t = 0xffc9
	}
	return io.PutWord(t)
}
