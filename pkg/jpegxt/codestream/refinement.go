package codestream

import (
	"fmt"
	"log/slog"
	"math/bits"

	"github.com/jpfielding/jpegxt.go/pkg/compress/bitio"
	"github.com/jpfielding/jpegxt.go/pkg/compress/huffman"
	"github.com/jpfielding/jpegxt.go/pkg/compress/stream"
)

// RefinementScan is the Huffman coded successive approximation scan that adds
// one bit of precision to coefficients coded before.
type RefinementScan struct {
	blockScan
	bits *bitio.BitStream
	io   stream.ByteStream

	ac    [4]symbolWriter
	acDec [4]*huffman.Decoder

	skip [4]int
	// correction bits of the blocks inside the pending EOB run
	acBuffer []byte

	start, stop     int
	lowBit, highBit int
	residual        bool
}

// NewRefinementScan creates the Huffman refinement coder of scan
func NewRefinementScan(scan *Scan) *RefinementScan {
	s := &RefinementScan{
		bits:     bitio.New(bitio.ByteStuffing),
		start:    scan.Start,
		stop:     scan.Stop,
		lowBit:   scan.LowBit,
		highBit:  scan.HighBit,
		residual: scan.Residual,
	}
	s.blockScan = newBlockScan(scan, s)
	s.pending = s.huffmanPending(s.bits)
	return s
}

func (s *RefinementScan) codesAC() bool {
	return s.stop > 0 || s.residual
}

func (s *RefinementScan) codesDC() bool {
	return s.start == 0 && !s.residual
}

func (s *RefinementScan) StartParseScan(io stream.ByteStream, ctrl BufferCtrl) error {
	if err := s.bind(ctrl); err != nil {
		return err
	}
	if s.codesAC() {
		dec, err := s.decoders(huffman.AC)
		if err != nil {
			return err
		}
		s.acDec = dec
	}
	s.measure = false
	s.skip = [4]int{}
	s.acBuffer = s.acBuffer[:0]
	s.io = io
	s.bits.OpenForRead(io)
	s.startParse()
	return nil
}

func (s *RefinementScan) StartWriteScan(io stream.ByteStream, ctrl BufferCtrl) error {
	s.measure = false
	return s.startWriting(io, ctrl)
}

func (s *RefinementScan) StartMeasureScan(ctrl BufferCtrl) error {
	s.measure = true
	return s.startWriting(nil, ctrl)
}

func (s *RefinementScan) startWriting(io stream.ByteStream, ctrl BufferCtrl) error {
	if err := s.bind(ctrl); err != nil {
		return err
	}
	if s.codesAC() {
		w, err := s.writers(s.bits, huffman.AC)
		if err != nil {
			return err
		}
		s.ac = w
	}
	s.skip = [4]int{}
	s.acBuffer = s.acBuffer[:0]
	s.io = io
	s.bits.OpenForWrite(io)
	s.startWrite()
	return nil
}

func (s *RefinementScan) StartMCURow() (bool, error) {
	return s.startRow(), nil
}

func (s *RefinementScan) WriteMCU() (bool, error) {
	if err := s.BeginWriteMCU(s.io); err != nil {
		return false, err
	}
	return s.mcu(func(c int, blk *Block) error {
		if blk == nil {
			var dummy Block
			blk = &dummy
		}
		return s.encodeBlock(blk, c)
	})
}

func (s *RefinementScan) ParseMCU() (bool, error) {
	valid, err := s.BeginReadMCU(s.bits.ByteStream())
	if err != nil {
		return false, err
	}
	return s.mcu(func(c int, blk *Block) error {
		if blk == nil {
			var dummy Block
			blk = &dummy
		}
		if !valid {
			// a lost refinement leaves the coarser data in place
			return nil
		}
		return s.decodeBlock(blk, c)
	})
}

func (s *RefinementScan) encodeBlock(blk *Block, c int) error {
	if s.codesDC() && !s.measure {
		s.bits.Put(1, uint32(blk[0]>>s.lowBit)&1)
	}
	if !s.codesAC() {
		return nil
	}
	ac := s.ac[c]
	var refinement [64]byte
	br, run, group := 0, 0, 0
	for k := s.start; k <= s.stop; k++ {
		v := blk[ScanOrder[k]]
		prev := pointTransform(v, s.highBit)
		data := pointTransform(v, s.lowBit)
		switch {
		case prev != 0:
			// coded before, only the correction bit goes out
			group += (run >> 4) << 1
			run &= 15
			refinement[br] = byte(data&1) | byte(group)
			br++
		case data == 0:
			run++
		default:
			if err := s.codeBlockSkip(c); err != nil {
				return err
			}
			b := 0
			for g := 0; g < group; g += 2 {
				if err := ac.put(0xf0); err != nil {
					return err
				}
				for ; b < br && (int(refinement[b])^g)&^1 == 0; b++ {
					ac.raw(1, uint32(refinement[b]&1))
				}
			}
			for run > 15 {
				if err := ac.put(0xf0); err != nil {
					return err
				}
				for ; b < br; b++ {
					ac.raw(1, uint32(refinement[b]&1))
				}
				run -= 16
			}
			if err := ac.put(byte(1 | run<<4)); err != nil {
				return err
			}
			if data > 0 {
				ac.raw(1, 1)
			} else {
				ac.raw(1, 0)
			}
			for ; b < br; b++ {
				ac.raw(1, uint32(refinement[b]&1))
			}
			br, group, run = 0, 0, 0
		}
	}
	if run > 0 || br > 0 {
		s.skip[c]++
		s.acBuffer = append(s.acBuffer, refinement[:br]...)
		if s.skip[c] == maxSkip || s.codesDC() {
			return s.codeBlockSkip(c)
		}
	}
	return nil
}

// codeBlockSkip writes the pending EOB run of component c followed by the
// correction bits buffered for the blocks inside the run
func (s *RefinementScan) codeBlockSkip(c int) error {
	skip := s.skip[c]
	if skip == 0 {
		return nil
	}
	ac := s.ac[c]
	symbol := uint(bits.Len(uint(skip)) - 1)
	if err := ac.put(byte(symbol << 4)); err != nil {
		return err
	}
	ac.raw(symbol, uint32(skip))
	for _, b := range s.acBuffer {
		ac.raw(1, uint32(b&1))
	}
	s.acBuffer = s.acBuffer[:0]
	s.skip[c] = 0
	return nil
}

func (s *RefinementScan) decodeBlock(blk *Block, c int) error {
	if s.codesDC() {
		bit, err := s.bits.Get(1)
		if err != nil {
			return err
		}
		blk[0] |= int32(bit) << s.lowBit
	}
	if !s.codesAC() {
		return nil
	}
	run := 0
	var value int32
	fetch := s.skip[c] == 0
	if !fetch {
		run = s.stop - s.start + 1
		s.skip[c]--
	}
	for k := s.start; k <= s.stop; k++ {
		if fetch {
			fetch = false
			rs, err := s.acDec[c].Get(s.bits)
			if err != nil {
				return fmt.Errorf("AC refinement symbol: %w", err)
			}
			r, size := int(rs>>4), rs&0x0f
			value = 0
			switch {
			case size == 0 && r == 15:
				run = 15
			case size == 0:
				skip := 1 << r
				if r > 0 {
					v, err := s.bits.Get(uint(r))
					if err != nil {
						return err
					}
					skip |= int(v)
				}
				s.skip[c] = skip - 1
				run = s.stop - k + 1
			case size != 1:
				slog.Warn("invalid refinement symbol, coefficient set to zero", slog.Int("symbol", int(rs)))
				run = 0
			default:
				sign, err := s.bits.Get(1)
				if err != nil {
					return err
				}
				value = 1
				if sign == 0 {
					value = -1
				}
				run = r
			}
		}
		idx := ScanOrder[k]
		switch {
		case blk[idx] != 0:
			bit, err := s.bits.Get(1)
			if err != nil {
				return err
			}
			if bit != 0 {
				if blk[idx] > 0 {
					blk[idx] += 1 << s.lowBit
				} else {
					blk[idx] -= 1 << s.lowBit
				}
			}
		case run > 0:
			run--
		default:
			blk[idx] = value << s.lowBit
			fetch = true
		}
	}
	return nil
}

func (s *RefinementScan) Flush(bool) error {
	if !s.codesDC() {
		for c := range s.comps {
			if err := s.codeBlockSkip(c); err != nil {
				return err
			}
		}
	}
	if s.measure {
		return nil
	}
	return s.bits.Flush()
}

func (s *RefinementScan) Restart() error {
	s.skip = [4]int{}
	s.bits.OpenForRead(s.bits.ByteStream())
	return nil
}

func (s *RefinementScan) WriteFrameType(io stream.ByteStream) error {
	if s.residual {
		return io.PutWord(0xffb2)
	}
	return io.PutWord(0xffc2)
}
