package codestream

import (
	"fmt"

	"github.com/jpfielding/jpegxt.go/pkg/compress/stream"
	"github.com/jpfielding/jpegxt.go/pkg/jpegxt/marker"
)

// NewEntropyCoder validates scan and builds the entropy coder of its kind
func NewEntropyCoder(scan *Scan) (EntropyCoder, error) {
	if err := validate(scan); err != nil {
		return nil, err
	}
	switch scan.Kind {
	case Sequential:
		return NewSequentialScan(scan), nil
	case ACSequential:
		return NewACSequentialScan(scan), nil
	case Refinement:
		return NewRefinementScan(scan), nil
	case ACRefinement:
		return NewACRefinementScan(scan), nil
	case Lossless, DifferentialLossless:
		return NewLosslessScan(scan), nil
	case ACLossless, ACDifferentialLossless:
		return NewACLosslessScan(scan), nil
	case Residual:
		return NewResidualScan(scan), nil
	case ResidualHuffman:
		return NewResidualHuffmanScan(scan), nil
	case ResidualSequential:
		return NewResidualSequentialScan(scan), nil
	case HiddenRefinement:
		fine := scan.Frame.SideChannel(marker.Refinement)
		return NewHiddenScan(scan, NewRefinementScan(scan), fine, false), nil
	case HiddenACRefinement:
		fine := scan.Frame.SideChannel(marker.Refinement)
		return NewHiddenScan(scan, NewACRefinementScan(scan), fine, false), nil
	case HiddenResidual:
		scan.Residual = true
		resi := scan.Frame.SideChannel(marker.Residual)
		return NewHiddenScan(scan, NewSequentialScan(scan), resi, true), nil
	case HiddenACResidual:
		scan.Residual = true
		resi := scan.Frame.SideChannel(marker.Residual)
		return NewHiddenScan(scan, NewACSequentialScan(scan), resi, true), nil
	}
	return nil, fmt.Errorf("%s: %w", scan.Kind, stream.ErrInvalidParameter)
}

func validate(scan *Scan) error {
	if scan.Frame == nil {
		return fmt.Errorf("scan without frame: %w", stream.ErrInvalidParameter)
	}
	n := len(scan.Components)
	if n < 1 || n > 4 {
		return fmt.Errorf("scan with %d components: %w", n, stream.ErrInvalidParameter)
	}
	if scan.Start < 0 || scan.Stop > 63 || scan.Start > scan.Stop {
		return fmt.Errorf("spectral selection %d-%d: %w", scan.Start, scan.Stop, stream.ErrInvalidParameter)
	}
	if scan.LowBit < 0 || scan.LowBit > 15 {
		return fmt.Errorf("low bit %d: %w", scan.LowBit, stream.ErrInvalidParameter)
	}
	switch scan.Kind {
	case Refinement, ACRefinement, HiddenRefinement, HiddenACRefinement:
		if scan.HighBit != scan.LowBit+1 {
			return fmt.Errorf("refinement of bit %d after bit %d: %w", scan.LowBit, scan.HighBit, stream.ErrInvalidParameter)
		}
		// DC and AC bits are refined in separate scans
		if scan.Start == 0 && scan.Stop > 0 && !scan.Residual {
			return fmt.Errorf("refinement of band %d-%d mixes DC and AC: %w", scan.Start, scan.Stop, stream.ErrInvalidParameter)
		}
	}
	if scan.Kind.LineBased() {
		if scan.Kind.Differential() {
			return nil
		}
		if scan.Predictor < int(PredictLeft) || scan.Predictor > int(PredictDiagonal) {
			return fmt.Errorf("lossless predictor %d: %w", scan.Predictor, stream.ErrInvalidParameter)
		}
		if scan.Frame.Precision < 2 || scan.Frame.Precision > 16 {
			return fmt.Errorf("lossless precision %d: %w", scan.Frame.Precision, stream.ErrInvalidParameter)
		}
		return nil
	}
	if scan.Start > 0 && n > 1 {
		return fmt.Errorf("progressive AC scan over %d components: %w", n, stream.ErrInvalidParameter)
	}
	return nil
}
