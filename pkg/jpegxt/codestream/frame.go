package codestream

import (
	"fmt"
	"log/slog"

	"github.com/jpfielding/jpegxt.go/pkg/compress/stream"
	"github.com/jpfielding/jpegxt.go/pkg/jpegxt/marker"
)

// Block is one 8x8 block of coefficients in natural raster order
type Block [64]int32

// ScanOrder maps the zig-zag position to the raster index
var ScanOrder = [64]int{
	0, 1, 8, 16, 9, 2, 3, 10,
	17, 24, 32, 25, 18, 11, 4, 5,
	12, 19, 26, 33, 40, 48, 41, 34,
	27, 20, 13, 6, 7, 14, 21, 28,
	35, 42, 49, 56, 57, 50, 43, 36,
	29, 22, 15, 23, 30, 37, 44, 51,
	58, 59, 52, 45, 38, 31, 39, 46,
	53, 60, 61, 54, 47, 55, 62, 63,
}

// Component is one sample plane of a frame
type Component struct {
	// position in the frame, 0-3
	Index int
	// component identifier of the frame header
	ID byte
	// sampling factors, i.e. blocks per MCU horizontally and vertically
	MCUWidth  int
	MCUHeight int
	// Huffman or conditioning table selectors
	DCTable int
	ACTable int
}

// Frame describes the image all scans of a frame share
type Frame struct {
	Width  int
	// Height is zero when the height follows in a DNL marker
	Height     int
	Components []*Component
	// Precision is the sample precision in bits, mid grey seeds the lossless prediction
	Precision int
	// MCUs between restart markers, zero disables them
	RestartInterval int
	Differential    bool
	// LargeRange enables the 12+ bit coefficient range of the sequential scans
	LargeRange bool
	// Hadamard selects the transform based residual coding
	Hadamard bool
	// WriteDNL emits the image height in a DNL marker behind the first scan
	WriteDNL bool
	// side channels carried in APP9
	Residual   *marker.ResidualMarker
	Refinement *marker.ResidualMarker
}

// NewFrame creates a frame with n components, all 1x1 sampled
func NewFrame(width, height, n int) (*Frame, error) {
	if n < 1 || n > 4 {
		return nil, fmt.Errorf("frame with %d components: %w", n, stream.ErrInvalidParameter)
	}
	if width <= 0 || height < 0 {
		return nil, fmt.Errorf("frame of %dx%d: %w", width, height, stream.ErrInvalidParameter)
	}
	f := &Frame{Width: width, Height: height, Precision: 8}
	for i := 0; i < n; i++ {
		f.Components = append(f.Components, &Component{
			Index:     i,
			ID:        byte(i + 1),
			MCUWidth:  1,
			MCUHeight: 1,
			DCTable:   min(i, 1),
			ACTable:   min(i, 1),
		})
	}
	return f, nil
}

// Depth returns the number of components
func (f *Frame) Depth() int {
	return len(f.Components)
}

func (f *Frame) maxSampling() (h, v int) {
	h, v = 1, 1
	for _, c := range f.Components {
		h = max(h, c.MCUWidth)
		v = max(v, c.MCUHeight)
	}
	return h, v
}

// SampleWidth returns the width of component idx in samples
func (f *Frame) SampleWidth(idx int) int {
	h, _ := f.maxSampling()
	c := f.Components[idx]
	return (f.Width*c.MCUWidth + h - 1) / h
}

// SampleHeight returns the height of component idx in samples, zero while unknown
func (f *Frame) SampleHeight(idx int) int {
	_, v := f.maxSampling()
	c := f.Components[idx]
	return (f.Height*c.MCUHeight + v - 1) / v
}

// BlocksAcross returns the number of blocks in one block row of component idx
func (f *Frame) BlocksAcross(idx int) int {
	return (f.SampleWidth(idx) + 7) / 8
}

// BlocksDown returns the number of block rows of component idx, zero while unknown
func (f *Frame) BlocksDown(idx int) int {
	return (f.SampleHeight(idx) + 7) / 8
}

// PostImageHeight installs the height found in a DNL marker
func (f *Frame) PostImageHeight(height int) {
	slog.Debug("image height from DNL", slog.Int("height", height))
	f.Height = height
}

// SideChannel returns the APP9 channel of type t, creating it on demand
func (f *Frame) SideChannel(t marker.Type) *marker.ResidualMarker {
	if t == marker.Residual {
		if f.Residual == nil {
			f.Residual = marker.NewResidualMarker(marker.Residual)
		}
		return f.Residual
	}
	if f.Refinement == nil {
		f.Refinement = marker.NewResidualMarker(marker.Refinement)
	}
	return f.Refinement
}
