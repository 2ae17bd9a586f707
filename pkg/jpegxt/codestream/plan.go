package codestream

import (
	"fmt"

	"github.com/jpfielding/jpegxt.go/pkg/compress/stream"
)

// Plan returns the scans that code a frame with the given kind of scan. Kinds
// that refine or extend other data are preceded by the base scan they need:
// refinements by a scan at half precision, whose DC bits are then refined in
// one scan and whose AC bits in one scan per component. Residual scans follow
// the sequential scan that names the frame type.
func Plan(frame *Frame, kind Kind) ([]*Scan, error) {
	base := Sequential
	if kind.Arithmetic() {
		base = ACSequential
	}
	switch kind {
	case Sequential, ACSequential, ResidualSequential,
		Lossless, ACLossless, DifferentialLossless, ACDifferentialLossless:
		s, err := NewScan(frame, kind)
		if err != nil {
			return nil, err
		}
		return []*Scan{s}, nil
	case Refinement, ACRefinement, HiddenRefinement, HiddenACRefinement:
		coarse, err := NewScan(frame, base)
		if err != nil {
			return nil, err
		}
		coarse.LowBit = 1
		dc, err := refine(frame, kind, coarse, 0, 0)
		if err != nil {
			return nil, err
		}
		scans := []*Scan{coarse, dc}
		// AC refinements code one component each
		for c := range frame.Components {
			ac, err := refine(frame, kind, coarse, 1, 63, c)
			if err != nil {
				return nil, err
			}
			scans = append(scans, ac)
		}
		return scans, nil
	case Residual, ResidualHuffman, HiddenResidual, HiddenACResidual:
		legacy, err := NewScan(frame, base)
		if err != nil {
			return nil, err
		}
		res, err := NewScan(frame, kind)
		if err != nil {
			return nil, err
		}
		res.Next = legacy
		return []*Scan{legacy, res}, nil
	}
	return nil, fmt.Errorf("%s: %w", kind, stream.ErrInvalidParameter)
}

// refine creates the scan that adds the lowest bit of band start-stop to coarse
func refine(frame *Frame, kind Kind, coarse *Scan, start, stop int, comps ...int) (*Scan, error) {
	s, err := NewScan(frame, kind, comps...)
	if err != nil {
		return nil, err
	}
	s.Start, s.Stop = start, stop
	s.HighBit = coarse.LowBit
	s.LowBit = coarse.LowBit - 1
	s.Next = coarse
	return s, nil
}

// ResidualRows reports whether the kind codes the residual blocks
func (k Kind) ResidualRows() bool {
	switch k {
	case Residual, ResidualHuffman, ResidualSequential, HiddenResidual, HiddenACResidual:
		return true
	}
	return false
}
