package codestream

import (
	"fmt"
	"log/slog"

	"github.com/jpfielding/jpegxt.go/pkg/compress/stream"
)

// SideChannel reports whether the kind keeps its data in APP9 segments
func (k Kind) SideChannel() bool {
	switch k {
	case Residual, ResidualHuffman, HiddenRefinement, HiddenACRefinement, HiddenResidual, HiddenACResidual:
		return true
	}
	return false
}

// eachMCU drives fn over every MCU of every MCU row
func eachMCU(coder EntropyCoder, fn func() (bool, error)) error {
	for {
		more, err := coder.StartMCURow()
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
		for {
			next, err := fn()
			if err != nil {
				return err
			}
			if !next {
				break
			}
		}
	}
}

// MeasureScan runs a measurement pass that collects the symbol statistics of
// the scan. Arithmetic coded scans have nothing to measure.
func MeasureScan(scan *Scan, ctrl BufferCtrl) error {
	if scan.Kind.Arithmetic() {
		return nil
	}
	coder, err := scan.Coder()
	if err != nil {
		return err
	}
	if err := coder.StartMeasureScan(ctrl); err != nil {
		return err
	}
	if err := eachMCU(coder, coder.WriteMCU); err != nil {
		return fmt.Errorf("measure %s scan: %w", scan.Kind, err)
	}
	return coder.Flush(true)
}

// EncodeScan writes the entropy coded data of scan to io. With optimize the
// Huffman tables are replaced by the optimal tables of a measurement pass.
func EncodeScan(scan *Scan, io stream.ByteStream, ctrl BufferCtrl, optimize bool) error {
	if optimize && !scan.Kind.Arithmetic() {
		if err := MeasureScan(scan, ctrl); err != nil {
			return err
		}
		if err := scan.OptimizeTables(); err != nil {
			return err
		}
	}
	coder, err := scan.Coder()
	if err != nil {
		return err
	}
	if err := coder.StartWriteScan(io, ctrl); err != nil {
		return err
	}
	if err := eachMCU(coder, coder.WriteMCU); err != nil {
		return fmt.Errorf("write %s scan: %w", scan.Kind, err)
	}
	if err := coder.Flush(true); err != nil {
		return err
	}
	if scan.Frame.WriteDNL && !scan.Kind.SideChannel() {
		if err := WriteDNLMarker(io, scan.Frame.Height); err != nil {
			return err
		}
	}
	slog.Debug("encoded scan", slog.String("kind", scan.Kind.String()),
		slog.Int("components", len(scan.Components)),
		slog.Int("start", scan.Start), slog.Int("stop", scan.Stop))
	return nil
}

// DecodeScan parses the entropy coded data of scan from io into ctrl. A frame
// of unknown height must end the scan with a DNL marker.
func DecodeScan(scan *Scan, io stream.ByteStream, ctrl BufferCtrl) error {
	coder, err := scan.Coder()
	if err != nil {
		return err
	}
	unknown := scan.Frame.Height == 0
	if err := coder.StartParseScan(io, ctrl); err != nil {
		return err
	}
	if err := eachMCU(coder, coder.ParseMCU); err != nil {
		return fmt.Errorf("parse %s scan: %w", scan.Kind, err)
	}
	if unknown && scan.Frame.Height == 0 {
		return fmt.Errorf("%s scan of unknown height ends without DNL marker: %w", scan.Kind, stream.ErrMalformedStream)
	}
	slog.Debug("decoded scan", slog.String("kind", scan.Kind.String()),
		slog.Int("height", scan.Frame.Height))
	return nil
}
