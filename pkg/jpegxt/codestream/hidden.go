package codestream

import (
	"fmt"

	"github.com/jpfielding/jpegxt.go/pkg/compress/stream"
	"github.com/jpfielding/jpegxt.go/pkg/jpegxt/marker"
)

// hiddenInner is what the hidden wrapper needs from the scan it hides
type hiddenInner interface {
	EntropyCoder
	useResidualRows()
	measuring() bool
}

// HiddenScan runs another scan against an APP9 side channel instead of the
// entropy coded segment, invisible to legacy decoders. The wrapped scan keeps
// its own restart markers inside the side channel. Several hidden scans share
// one side channel, each one opened by a SOS marker.
type HiddenScan struct {
	inner hiddenInner
	scan  *Scan
	sideChannel
}

// NewHiddenScan hides inner in the side channel m. With residualRows the
// inner scan codes the residual instead of the quantized blocks.
func NewHiddenScan(scan *Scan, inner hiddenInner, m *marker.ResidualMarker, residualRows bool) *HiddenScan {
	if residualRows {
		inner.useResidualRows()
	}
	h := &HiddenScan{inner: inner, scan: scan}
	h.marker = m
	return h
}

func (h *HiddenScan) StartParseScan(_ stream.ByteStream, ctrl BufferCtrl) error {
	io, err := h.source()
	if err != nil {
		return err
	}
	if err := seekScan(io); err != nil {
		return fmt.Errorf("%s side channel: %w", h.marker.Type, err)
	}
	return h.inner.StartParseScan(io, ctrl)
}

func (h *HiddenScan) StartWriteScan(io stream.ByteStream, ctrl BufferCtrl) error {
	staged := h.stage(io)
	if err := staged.PutWord(markerSOS); err != nil {
		return err
	}
	return h.inner.StartWriteScan(staged, ctrl)
}

// seekScan moves io behind the SOS marker of the next hidden scan. Bytes the
// previous scan left unread in front of it are skipped; entropy coded data
// never holds a SOS marker.
func seekScan(io stream.ByteStream) error {
	for io.PeekWord() != markerSOS {
		if io.Get() == stream.EOF {
			return fmt.Errorf("no hidden scan left: %w", stream.ErrMalformedStream)
		}
	}
	io.GetWord()
	return nil
}

func (h *HiddenScan) StartMeasureScan(ctrl BufferCtrl) error {
	return h.inner.StartMeasureScan(ctrl)
}

func (h *HiddenScan) StartMCURow() (bool, error) {
	return h.inner.StartMCURow()
}

func (h *HiddenScan) ParseMCU() (bool, error) {
	return h.inner.ParseMCU()
}

func (h *HiddenScan) WriteMCU() (bool, error) {
	return h.inner.WriteMCU()
}

// Flush terminates the inner scan; the final flush moves the staged data into
// APP9 segments in front of the entropy coded data.
func (h *HiddenScan) Flush(final bool) error {
	if err := h.inner.Flush(final); err != nil {
		return err
	}
	if !final || h.inner.measuring() {
		return nil
	}
	if err := h.commit(); err != nil {
		return fmt.Errorf("%s side channel: %w", h.marker.Type, err)
	}
	return nil
}

func (h *HiddenScan) Restart() error {
	return h.inner.Restart()
}

func (h *HiddenScan) WriteFrameType(io stream.ByteStream) error {
	return writeNextFrameType(h.scan, io)
}
