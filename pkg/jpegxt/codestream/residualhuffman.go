package codestream

import (
	"fmt"
	"math/bits"

	"github.com/jpfielding/jpegxt.go/pkg/compress/bitio"
	"github.com/jpfielding/jpegxt.go/pkg/compress/huffman"
	"github.com/jpfielding/jpegxt.go/pkg/compress/stream"
)

const (
	markerDHT = 0xffc4
	markerSOS = 0xffda
)

// ResidualHuffmanScan codes the residual of every frame component with eight
// Huffman tables. The side channel starts with a private DHT segment.
type ResidualHuffmanScan struct {
	residualBlocks
	bits *bitio.BitStream
	// tables 0-3 are the DC, 4-7 the AC destinations of the set
	tables  *huffman.Set
	writers [8]symbolWriter
	decs    [8]*huffman.Decoder
}

// NewResidualHuffmanScan creates the Huffman residual coder of scan
func NewResidualHuffmanScan(scan *Scan) *ResidualHuffmanScan {
	s := &ResidualHuffmanScan{bits: bitio.New(bitio.ByteStuffing)}
	s.residualBlocks = newResidualBlocks(scan, s)
	return s
}

func tableClass(i int) (huffman.Class, int) {
	if i < 4 {
		return huffman.DC, i
	}
	return huffman.AC, i - 4
}

func (s *ResidualHuffmanScan) StartParseScan(_ stream.ByteStream, ctrl BufferCtrl) error {
	if err := s.bind(ctrl); err != nil {
		return err
	}
	io, err := s.source()
	if err != nil {
		return err
	}
	if w := io.GetWord(); w != markerDHT {
		return fmt.Errorf("expected a DHT marker in the residual side channel, found 0x%04x: %w", w, stream.ErrMalformedStream)
	}
	s.tables = &huffman.Set{}
	if err := s.tables.ParseMarker(io); err != nil {
		return fmt.Errorf("residual side channel: %w", err)
	}
	if w := io.GetWord(); w != markerSOS {
		return fmt.Errorf("expected a SOS marker in front of the residual data, found 0x%04x: %w", w, stream.ErrMalformedStream)
	}
	for i := range s.decs {
		s.decs[i] = nil
		if t := s.tables.Table(tableClass(i)); t != nil {
			s.decs[i] = t.Decoder()
		}
	}
	s.resetBias()
	s.measure = false
	s.bits.OpenForRead(io)
	return nil
}

func (s *ResidualHuffmanScan) StartWriteScan(io stream.ByteStream, ctrl BufferCtrl) error {
	if err := s.bind(ctrl); err != nil {
		return err
	}
	s.tables = s.scan.Huffman
	for i := range s.writers {
		t := s.tables.Table(tableClass(i))
		if t == nil {
			return fmt.Errorf("residual Huffman table %d missing: %w", i, stream.ErrInvalidParameter)
		}
		s.writers[i] = symbolWriter{bits: s.bits, coder: t.Coder()}
	}
	staged := s.stage(io)
	if err := staged.PutWord(markerDHT); err != nil {
		return err
	}
	if err := s.tables.WriteMarker(staged); err != nil {
		return err
	}
	if err := staged.PutWord(markerSOS); err != nil {
		return err
	}
	s.resetBias()
	s.measure = false
	s.bits.OpenForWrite(staged)
	return nil
}

func (s *ResidualHuffmanScan) StartMeasureScan(ctrl BufferCtrl) error {
	if err := s.bind(ctrl); err != nil {
		return err
	}
	for i := range s.writers {
		s.writers[i] = symbolWriter{stats: s.scan.Statistics(tableClass(i))}
	}
	s.resetBias()
	s.measure = true
	return nil
}

func (s *ResidualHuffmanScan) StartMCURow() (bool, error) {
	return s.startRow(), nil
}

func (s *ResidualHuffmanScan) WriteMCU() (bool, error) {
	return s.mcu(func(c int, blk *Block) error {
		var dummy Block
		if blk == nil {
			blk = &dummy
		}
		return s.encodeBlock(blk, c)
	})
}

func (s *ResidualHuffmanScan) ParseMCU() (bool, error) {
	return s.mcu(func(c int, blk *Block) error {
		var dummy Block
		if blk == nil {
			blk = &dummy
		}
		return s.decodeBlock(blk, c)
	})
}

// table picks the Huffman table of position k
func (s *ResidualHuffmanScan) table(coded *Block, k, c int) int {
	if s.hadamard {
		return int(codingClass[k])<<1 + componentClass(c)
	}
	return neighbourClass(coded, k)
}

func (s *ResidualHuffmanScan) encodeBlock(blk *Block, c int) error {
	coded := s.forward(blk, c)
	for k := 0; k < 64; k++ {
		data := coded[k]
		w := s.writers[s.table(&coded, k, c)]
		mag := abs32(data)
		symbol := byte(2 * bits.Len32(uint32(mag)))
		if symbol > 32 {
			return fmt.Errorf("residual %d: %w", data, stream.ErrOverflow)
		}
		if data > 0 {
			symbol--
		}
		if err := w.put(symbol); err != nil {
			return err
		}
		if symbol >= 3 {
			w.raw(uint(symbol-1)>>1, uint32(mag))
		}
	}
	return s.bits.Err()
}

func (s *ResidualHuffmanScan) decodeBlock(blk *Block, c int) error {
	var coded Block
	for k := 0; k < 64; k++ {
		t := s.table(&coded, k, c)
		dec := s.decs[t]
		if dec == nil {
			return fmt.Errorf("residual Huffman table %d not defined: %w", t, stream.ErrMalformedStream)
		}
		symbol, err := dec.Get(s.bits)
		if err != nil {
			return fmt.Errorf("residual symbol: %w", err)
		}
		if symbol == 0 {
			continue
		}
		if symbol > 32 {
			return fmt.Errorf("residual symbol %d: %w", symbol, stream.ErrMalformedStream)
		}
		n := uint(symbol-1) >> 1
		mag := int32(1) << n
		if n > 0 {
			v, err := s.bits.Get(n)
			if err != nil {
				return err
			}
			mag |= int32(v)
		}
		if symbol&1 == 0 {
			mag = -mag
		}
		coded[k] = mag
	}
	s.inverse(&coded, blk, c)
	return nil
}

func (s *ResidualHuffmanScan) Flush(bool) error {
	if s.measure {
		return nil
	}
	if err := s.bits.Flush(); err != nil {
		return err
	}
	return s.commit()
}

// Restart is a contract violation, residual scans carry no restart markers
func (s *ResidualHuffmanScan) Restart() error {
	panic("codestream: residual scans are not restartable")
}

func (s *ResidualHuffmanScan) WriteFrameType(io stream.ByteStream) error {
	return writeNextFrameType(s.scan, io)
}
