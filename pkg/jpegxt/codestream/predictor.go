package codestream

import (
	"fmt"

	"github.com/jpfielding/jpegxt.go/pkg/compress/stream"
)

// Predictor is the prediction mode of the lossless scans. A sample is predicted
// from its left neighbour a, the one above b and the one above left c.
type Predictor int

const (
	// PredictNone predicts zero, the differential scans code the samples as they are
	PredictNone     Predictor = iota
	PredictLeft               // a
	PredictTop                // b
	PredictLeftTop            // c
	PredictLinear             // a + b - c
	PredictWeightA            // a + (b - c) / 2
	PredictWeightB            // b + (a - c) / 2
	PredictDiagonal           // (a + b) / 2
	// predictNeutral predicts mid grey, for the first sample behind a restart
	predictNeutral
)

// start is the predictor of the first sample of a scan or restart interval
func (p Predictor) start() Predictor {
	if p == PredictNone {
		return PredictNone
	}
	return predictNeutral
}

// right is the predictor of the next sample of the line. The first line
// predicts from the left.
func (p Predictor) right(mode Predictor) Predictor {
	switch p {
	case predictNeutral:
		return PredictLeft
	case PredictTop:
		return mode
	}
	return p
}

// down is the predictor of the sample below. The first column predicts from above.
func (p Predictor) down(mode Predictor) Predictor {
	switch p {
	case predictNeutral:
		return PredictTop
	case PredictLeft:
		return mode
	}
	return p
}

// predict returns the prediction of sample x of line ln, with pp the line
// above. All values are point transformed by preshift.
func (p Predictor) predict(ln, pp []int32, x, preshift int, neutral int32) int32 {
	a := func() int32 { return ln[x-1] >> preshift }
	b := func() int32 { return pp[x] >> preshift }
	c := func() int32 { return pp[x-1] >> preshift }
	switch p {
	case PredictLeft:
		return a()
	case PredictTop:
		return b()
	case PredictLeftTop:
		return c()
	case PredictLinear:
		return a() + b() - c()
	case PredictWeightA:
		return a() + (b()-c())>>1
	case PredictWeightB:
		return b() + (a()-c())>>1
	case PredictDiagonal:
		return (a() + b()) >> 1
	case predictNeutral:
		return neutral
	}
	return 0
}

// difference returns the 16 bit difference coded for sample v. Differential
// scans code signed 16 bit samples, the predictive modes unsigned 16 bit
// samples modulo 2^16.
func (p Predictor) difference(v, pred int32, preshift int) (int32, error) {
	x := v >> preshift
	if p == PredictNone {
		if x < -0x8000 || x > 0x7fff {
			return 0, fmt.Errorf("sample difference %d exceeds 16 bits: %w", x, stream.ErrOverflow)
		}
		return x, nil
	}
	if x < 0 || x > 0xffff {
		return 0, fmt.Errorf("sample %d exceeds 16 bits: %w", x, stream.ErrOverflow)
	}
	return int32(int16(x - pred)), nil
}

// reconstruct is the inverse of difference
func (p Predictor) reconstruct(d, pred int32, preshift int) int32 {
	if p == PredictNone {
		return int32(int16(d)) << preshift
	}
	return int32(uint16(d+pred)) << preshift
}
