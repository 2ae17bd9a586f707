package codestream

import (
	"fmt"
	"math/bits"

	"github.com/jpfielding/jpegxt.go/pkg/compress/bitio"
	"github.com/jpfielding/jpegxt.go/pkg/compress/huffman"
	"github.com/jpfielding/jpegxt.go/pkg/compress/stream"
)

// SequentialScan is the Huffman coded sequential or first progressive scan.
// It also covers the differential, residual and large range flavours.
type SequentialScan struct {
	blockScan
	bits *bitio.BitStream
	io   stream.ByteStream

	dc, ac       [4]symbolWriter
	dcDec, acDec [4]*huffman.Decoder

	prevDC [4]int32
	skip   [4]int

	start, stop, lowBit int
	differential        bool
	residual            bool
	largeRange          bool
	progressive         bool
}

// NewSequentialScan creates the Huffman scan coder of scan
func NewSequentialScan(scan *Scan) *SequentialScan {
	s := &SequentialScan{
		bits:         bitio.New(bitio.ByteStuffing),
		start:        scan.Start,
		stop:         scan.Stop,
		lowBit:       scan.LowBit,
		differential: scan.Frame.Differential,
		residual:     scan.Residual,
		largeRange:   scan.Frame.LargeRange,
		progressive:  scan.Progressive(),
	}
	s.blockScan = newBlockScan(scan, s)
	s.pending = s.huffmanPending(s.bits)
	return s
}

func (s *SequentialScan) resetState() {
	s.prevDC = [4]int32{}
	s.skip = [4]int{}
}

func (s *SequentialScan) StartParseScan(io stream.ByteStream, ctrl BufferCtrl) error {
	if err := s.bind(ctrl); err != nil {
		return err
	}
	dec, err := s.decoders(huffman.DC)
	if err != nil {
		return err
	}
	s.dcDec = dec
	if dec, err = s.decoders(huffman.AC); err != nil {
		return err
	}
	s.acDec = dec
	s.resetState()
	s.measure = false
	s.io = io
	s.bits.OpenForRead(io)
	s.startParse()
	return nil
}

func (s *SequentialScan) StartWriteScan(io stream.ByteStream, ctrl BufferCtrl) error {
	s.measure = false
	return s.startWriting(io, ctrl)
}

func (s *SequentialScan) StartMeasureScan(ctrl BufferCtrl) error {
	s.measure = true
	return s.startWriting(nil, ctrl)
}

func (s *SequentialScan) startWriting(io stream.ByteStream, ctrl BufferCtrl) error {
	if err := s.bind(ctrl); err != nil {
		return err
	}
	var err error
	if s.dc, err = s.writers(s.bits, huffman.DC); err != nil {
		return err
	}
	if s.ac, err = s.writers(s.bits, huffman.AC); err != nil {
		return err
	}
	s.resetState()
	s.io = io
	s.bits.OpenForWrite(io)
	s.startWrite()
	return nil
}

func (s *SequentialScan) StartMCURow() (bool, error) {
	return s.startRow(), nil
}

func (s *SequentialScan) WriteMCU() (bool, error) {
	if err := s.BeginWriteMCU(s.io); err != nil {
		return false, err
	}
	return s.mcu(func(c int, blk *Block) error {
		if blk == nil {
			// padding block repeats the DC prediction
			var dummy Block
			dummy[0] = s.prevDC[c] << s.lowBit
			blk = &dummy
		}
		return s.encodeBlock(blk, c)
	})
}

func (s *SequentialScan) ParseMCU() (bool, error) {
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
			s.clear(blk)
			return nil
		}
		return s.decodeBlock(blk, c)
	})
}

// clear replaces the band of a lost segment by zeros
func (s *SequentialScan) clear(blk *Block) {
	for k := s.start; k <= s.stop; k++ {
		blk[ScanOrder[k]] = 0
	}
}

func (s *SequentialScan) firstAC() int {
	switch {
	case s.start > 0:
		return s.start
	case s.residual:
		return 0
	}
	return 1
}

func (s *SequentialScan) codesDC() bool {
	return s.start == 0 && !s.residual
}

func (s *SequentialScan) encodeBlock(blk *Block, c int) error {
	dc, ac := s.dc[c], s.ac[c]
	if s.codesDC() {
		v := blk[0] >> s.lowBit
		diff := v - s.prevDC[c]
		if s.differential {
			s.prevDC[c] = 0
		} else {
			s.prevDC[c] = v
		}
		symbol := category(diff)
		if err := dc.put(byte(symbol)); err != nil {
			return fmt.Errorf("DC difference %d: %w", diff, err)
		}
		dc.raw(symbol, valueBits(diff))
	}
	if s.stop == 0 {
		return nil
	}
	limit := uint(16)
	if s.largeRange {
		limit = 22
	}
	run := 0
	for k := s.firstAC(); k <= s.stop; k++ {
		data := pointTransform(blk[ScanOrder[k]], s.lowBit)
		if data == 0 {
			run++
			continue
		}
		if s.skip[c] > 0 {
			if err := s.codeBlockSkip(c); err != nil {
				return err
			}
		}
		for run > 15 {
			if err := ac.put(0xf0); err != nil {
				return err
			}
			run -= 16
		}
		if data == -0x8000 && s.residual && !s.progressive {
			if err := ac.put(0x10); err != nil {
				return err
			}
			ac.raw(4, uint32(run))
			run = 0
			continue
		}
		symbol := category(data)
		if symbol >= limit {
			return fmt.Errorf("AC coefficient %d exceeds the coding range, enable refinement coding: %w", data, stream.ErrOverflow)
		}
		if symbol >= 16 {
			if err := ac.put(byte((symbol - 15) << 4)); err != nil {
				return err
			}
			ac.raw(4, uint32(run))
		} else if err := ac.put(byte(symbol) | byte(run<<4)); err != nil {
			return err
		}
		ac.raw(symbol, valueBits(data))
		run = 0
	}
	if run > 0 {
		if !s.progressive || s.codesDC() {
			// an EOB run never spans blocks with DC data in between
			return ac.put(0x00)
		}
		s.skip[c]++
		if s.skip[c] == maxSkip {
			return s.codeBlockSkip(c)
		}
	}
	return nil
}

// codeBlockSkip writes the pending EOB run of component c
func (s *SequentialScan) codeBlockSkip(c int) error {
	skip := s.skip[c]
	if skip == 0 {
		return nil
	}
	symbol := uint(bits.Len(uint(skip)) - 1)
	if err := s.ac[c].put(byte(symbol << 4)); err != nil {
		return err
	}
	s.ac[c].raw(symbol, uint32(skip))
	s.skip[c] = 0
	return nil
}

func (s *SequentialScan) decodeBlock(blk *Block, c int) error {
	if s.codesDC() {
		symbol, err := s.dcDec[c].Get(s.bits)
		if err != nil {
			return fmt.Errorf("DC symbol: %w", err)
		}
		var diff int32
		if symbol > 0 {
			if symbol > 16 {
				return fmt.Errorf("DC category %d: %w", symbol, stream.ErrMalformedStream)
			}
			v, err := s.bits.Get(uint(symbol))
			if err != nil {
				return err
			}
			diff = extend(v, uint(symbol))
		}
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
	if s.skip[c] > 0 {
		s.skip[c]--
		return nil
	}
	for k := s.firstAC(); k <= s.stop; {
		rs, err := s.acDec[c].Get(s.bits)
		if err != nil {
			return fmt.Errorf("AC symbol: %w", err)
		}
		r, size := int(rs>>4), uint(rs&0x0f)
		if size == 0 {
			switch {
			case r == 15:
				k += 16
				continue
			case r == 0 || s.progressive:
				skip := 1 << r
				if r > 0 {
					v, err := s.bits.Get(uint(r))
					if err != nil {
						return err
					}
					skip |= int(v)
				}
				s.skip[c] = skip - 1
				return nil
			case s.residual && rs == 0x10:
				v, err := s.bits.Get(4)
				if err != nil {
					return err
				}
				k += int(v)
				if k >= 64 {
					return fmt.Errorf("AC run beyond the block: %w", stream.ErrMalformedStream)
				}
				blk[ScanOrder[k]] = -0x8000 << s.lowBit
				k++
				continue
			case s.largeRange:
				size = uint(r) + 15
				v, err := s.bits.Get(4)
				if err != nil {
					return err
				}
				r = int(v)
			default:
				return fmt.Errorf("AC symbol 0x%02x: %w", rs, stream.ErrMalformedStream)
			}
		}
		k += r
		v, err := s.bits.GetBits(size)
		if err != nil {
			return err
		}
		if k >= 64 {
			return fmt.Errorf("AC run beyond the block: %w", stream.ErrMalformedStream)
		}
		blk[ScanOrder[k]] = extend(v, size) << s.lowBit
		k++
	}
	return nil
}

func (s *SequentialScan) Flush(final bool) error {
	if s.stop > 0 && s.progressive {
		for c := range s.comps {
			if err := s.codeBlockSkip(c); err != nil {
				return err
			}
		}
	}
	s.resetState()
	if s.measure {
		return nil
	}
	return s.bits.Flush()
}

func (s *SequentialScan) Restart() error {
	s.resetState()
	s.bits.OpenForRead(s.bits.ByteStream())
	return nil
}

func (s *SequentialScan) WriteFrameType(io stream.ByteStream) error {
	var t uint16
	switch {
	case s.progressive && s.residual:
		t = 0xffb2
	case s.progressive && s.differential:
		t = 0xffc6
	case s.progressive:
		t = 0xffc2
	case s.residual:
		t = 0xffb1
	case s.differential:
		t = 0xffc5
	case s.largeRange:
		t = 0xffb3
	default:
		t = 0xffc1
	}
	return io.PutWord(t)
}
