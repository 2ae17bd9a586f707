package codestream

import (
	"fmt"

	"github.com/jpfielding/jpegxt.go/pkg/compress/qm"
	"github.com/jpfielding/jpegxt.go/pkg/compress/stream"
)

// losslessMagnitudeSet codes the magnitude of a difference
type losslessMagnitudeSet struct {
	X, M [15]qm.Context
}

// losslessContextSet holds the statistics bins of one conditioning table:
// the sign and zero decisions are conditioned on the differences to the left
// and above, five classes each.
type losslessContextSet struct {
	signZero  [5][5]dcZeroSet
	low, high losslessMagnitudeSet
}

// differenceClass sorts a neighbouring difference into one of five classes
func differenceClass(diff int32, l, u int) int {
	v := abs32(diff)
	switch {
	case v <= int32((1<<l)>>1):
		return 2
	case v <= int32(1<<u) && diff < 0:
		return 1
	case v <= int32(1<<u):
		return 3
	case diff < 0:
		return 0
	}
	return 4
}

func (l *losslessContextSet) signZeroSet(da, db int32, lo, up int) *dcZeroSet {
	return &l.signZero[differenceClass(da, lo, up)][differenceClass(db, lo, up)]
}

func (l *losslessContextSet) magnitude(db int32, up int) *losslessMagnitudeSet {
	if abs32(db) > int32(1<<up) {
		return &l.high
	}
	return &l.low
}

// ACLosslessScan is the QM coded lossless scan, with the same prediction
// as the Huffman lossless scan. The differential flavour codes the sample
// differences of a hierarchical level.
type ACLosslessScan struct {
	predictiveScan
	coder    *qm.Coder
	contexts [4]losslessContextSet

	// differences left of and above the current sample, per MCU line and column
	da [4][]int32
	db [4][]int32
}

// NewACLosslessScan creates the line based arithmetic coder of scan
func NewACLosslessScan(scan *Scan) *ACLosslessScan {
	s := &ACLosslessScan{
		coder: qm.NewCoder(),
	}
	s.predictiveScan = newPredictiveScan(scan, s)
	return s
}

// resetState clears the conditioning of a scan or restart interval
func (s *ACLosslessScan) resetState() {
	s.contexts = [4]losslessContextSet{}
	for i, c := range s.scan.Components {
		h, w := 1, s.frame.SampleWidth(c.Index)
		if len(s.scan.Components) > 1 {
			h = c.MCUHeight
			w = (w + c.MCUWidth - 1) / c.MCUWidth * c.MCUWidth
		}
		s.da[i] = make([]int32, h)
		s.db[i] = make([]int32, w)
	}
}

// resetLeft clears the differences to the left at the start of a line
func (s *ACLosslessScan) resetLeft() {
	for i := range s.scan.Components {
		clear(s.da[i])
	}
}

func (s *ACLosslessScan) StartParseScan(io stream.ByteStream, ctrl BufferCtrl) error {
	if err := s.bind(ctrl); err != nil {
		return err
	}
	s.measure = false
	s.resetState()
	s.coder.OpenForRead(io)
	s.startParse()
	return nil
}

func (s *ACLosslessScan) StartWriteScan(io stream.ByteStream, ctrl BufferCtrl) error {
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
func (s *ACLosslessScan) StartMeasureScan(BufferCtrl) error {
	return nil
}

func (s *ACLosslessScan) conditioning(i int) (*losslessContextSet, int, int) {
	t := s.scan.dcTable(i)
	return &s.contexts[t], s.scan.DC[t].L, s.scan.DC[t].U
}

func (s *ACLosslessScan) WriteMCU() (bool, error) {
	begin := func() (bool, error) {
		return true, s.BeginWriteMCU(s.coder.ByteStream())
	}
	err := s.walk(begin, func(sm sample, _ bool) error {
		v, err := sm.p.difference(sm.ln[sm.x], sm.pred, s.preshift)
		if err != nil {
			return err
		}
		s.encodeDifference(sm, v)
		return s.coder.Err()
	}, s.resetLeft)
	return false, err
}

func (s *ACLosslessScan) encodeDifference(sm sample, v int32) {
	ctx, l, u := s.conditioning(sm.comp)
	da, db := &s.da[sm.comp][sm.y], &s.db[sm.comp][sm.x]
	zs := ctx.signZeroSet(*da, *db, l, u)
	mag := ctx.magnitude(*db, u)
	*da, *db = v, v
	if v == 0 {
		s.coder.Put(&zs.S0, false)
		return
	}
	s.coder.Put(&zs.S0, true)
	sign, sz := &zs.SP, v-1
	if v < 0 {
		sign, sz = &zs.SN, -(v + 1)
	}
	s.coder.Put(&zs.SS, v < 0)
	if sz == 0 {
		s.coder.Put(sign, false)
		return
	}
	s.coder.Put(sign, true)
	i, m := 0, int32(2)
	for sz >= m {
		s.coder.Put(&mag.X[i], true)
		m <<= 1
		i++
	}
	s.coder.Put(&mag.X[i], false)
	// the top bit is implied by the magnitude category
	for m >>= 2; m > 0; m >>= 1 {
		s.coder.Put(&mag.M[i], sz&m != 0)
	}
}

func (s *ACLosslessScan) ParseMCU() (bool, error) {
	begin := func() (bool, error) {
		return s.BeginReadMCU(s.coder.ByteStream())
	}
	err := s.walk(begin, func(sm sample, valid bool) error {
		if !valid {
			sm.ln[sm.x] = s.lost()
			return nil
		}
		v, err := s.decodeDifference(sm)
		if err != nil {
			return err
		}
		sm.ln[sm.x] = sm.p.reconstruct(v, sm.pred, s.preshift)
		return nil
	}, s.resetLeft)
	return false, err
}

func (s *ACLosslessScan) decodeDifference(sm sample) (int32, error) {
	ctx, l, u := s.conditioning(sm.comp)
	da, db := &s.da[sm.comp][sm.y], &s.db[sm.comp][sm.x]
	zs := ctx.signZeroSet(*da, *db, l, u)
	mag := ctx.magnitude(*db, u)
	var v int32
	if s.coder.Get(&zs.S0) {
		negative := s.coder.Get(&zs.SS)
		sign := &zs.SP
		if negative {
			sign = &zs.SN
		}
		var sz int32
		if s.coder.Get(sign) {
			i, m := 0, int32(2)
			for s.coder.Get(&mag.X[i]) {
				m <<= 1
				i++
				if i >= len(mag.X) {
					return 0, fmt.Errorf("lossless magnitude category out of range: %w", stream.ErrMalformedStream)
				}
			}
			m >>= 1
			sz = m
			for m >>= 1; m > 0; m >>= 1 {
				if s.coder.Get(&mag.M[i]) {
					sz |= m
				}
			}
		}
		v = sz + 1
		if negative {
			v = -sz - 1
		}
	}
	*da, *db = v, v
	return v, nil
}

func (s *ACLosslessScan) Flush(bool) error {
	err := s.coder.Flush()
	s.resetState()
	s.resetPredictors()
	s.coder.OpenForWrite(s.coder.ByteStream())
	return err
}

func (s *ACLosslessScan) Restart() error {
	s.resetState()
	s.resetPredictors()
	s.coder.OpenForRead(s.coder.ByteStream())
	return nil
}

func (s *ACLosslessScan) WriteFrameType(io stream.ByteStream) error {
	if s.mode == PredictNone {
		return io.PutWord(0xffcf)
	}
	return io.PutWord(0xffcb)
}
