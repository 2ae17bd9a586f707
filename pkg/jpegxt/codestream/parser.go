package codestream

import (
	"fmt"
	"log/slog"

	"github.com/jpfielding/jpegxt.go/pkg/compress/stream"
)

// EntropyCoder is the protocol every scan kind implements. A scan is started
// once for parsing, writing or measuring, then driven an MCU row at a time:
//
//	for more := StartMCURow(); more; more = StartMCURow() {
//		for ParseMCU() { }
//	}
//
// and finally flushed.
type EntropyCoder interface {
	StartParseScan(io stream.ByteStream, ctrl BufferCtrl) error
	StartWriteScan(io stream.ByteStream, ctrl BufferCtrl) error
	StartMeasureScan(ctrl BufferCtrl) error
	// StartMCURow returns false when all rows are done
	StartMCURow() (bool, error)
	// ParseMCU and WriteMCU return false after the last MCU of the row
	ParseMCU() (bool, error)
	WriteMCU() (bool, error)
	// Flush terminates the entropy coded segment; final is set at the end of the scan
	Flush(final bool) error
	// Restart reopens the coder behind a restart marker
	Restart() error
	WriteFrameType(io stream.ByteStream) error
}

// segmenter is called back by the parser at segment boundaries
type segmenter interface {
	Flush(final bool) error
	Restart() error
}

// imageBounds is implemented by scans that know whether their current MCU
// lies within the image height
type imageBounds interface {
	insideImage() bool
}

const (
	markerRST0 = 0xffd0
	markerDNL  = 0xffdc
)

// parser keeps the restart and DNL bookkeeping shared by all scans
type parser struct {
	frame *Frame
	scan  *Scan
	self  segmenter

	restartInterval int
	nextRestart     uint16
	mcusToGo        int
	segmentValid    bool
	scanForDNL      bool
	dnlFound        bool

	// pending reports whether the coder still holds data read ahead of the
	// byte stream, a DNL marker behind it is not due yet
	pending func() bool
}

func newParser(frame *Frame, scan *Scan, self segmenter) parser {
	return parser{
		frame:           frame,
		scan:            scan,
		self:            self,
		restartInterval: frame.RestartInterval,
		nextRestart:     markerRST0,
		mcusToGo:        frame.RestartInterval,
		segmentValid:    true,
		scanForDNL:      frame.Height == 0,
	}
}

// startWrite rewinds the restart bookkeeping of a writing or measuring pass
func (p *parser) startWrite() {
	p.restartInterval = p.frame.RestartInterval
	p.nextRestart = markerRST0
	p.mcusToGo = p.restartInterval
}

// startParse rewinds the restart bookkeeping of a parsing pass
func (p *parser) startParse() {
	p.startWrite()
	p.segmentValid = true
	p.scanForDNL = p.frame.Height == 0
	p.dnlFound = false
}

// BeginWriteMCU emits a restart marker when the interval is used up.
// A nil io writes nothing, as in a measurement pass.
func (p *parser) BeginWriteMCU(io stream.ByteStream) error {
	if p.restartInterval == 0 {
		return nil
	}
	if p.mcusToGo == 0 {
		if err := p.WriteRestartMarker(io); err != nil {
			return err
		}
	}
	p.mcusToGo--
	return nil
}

// WriteRestartMarker flushes the segment and writes the next RST marker
func (p *parser) WriteRestartMarker(io stream.ByteStream) error {
	if err := p.self.Flush(false); err != nil {
		return err
	}
	if io != nil {
		if err := io.PutWord(p.nextRestart); err != nil {
			return err
		}
		p.nextRestart = (p.nextRestart + 1) & 0xfff7
	}
	p.mcusToGo = p.restartInterval
	return nil
}

// BeginReadMCU expects a restart marker when the interval is used up and
// reports whether the MCU carries valid data. Behind a DNL marker only the
// MCUs within the posted height carry data, none of the rows below.
func (p *parser) BeginReadMCU(io stream.ByteStream) (bool, error) {
	if p.dnlFound {
		return p.insideImage(), nil
	}
	if p.scanForDNL && (p.pending == nil || !p.pending()) {
		found, err := p.ParseDNLMarker(io)
		if err != nil {
			return false, err
		}
		if found {
			return p.insideImage(), nil
		}
	}
	if p.restartInterval != 0 {
		if p.mcusToGo == 0 {
			if err := p.ParseRestartMarker(io); err != nil {
				return false, err
			}
			if p.dnlFound {
				return p.insideImage(), nil
			}
		}
		p.mcusToGo--
	}
	return p.segmentValid, nil
}

// insideImage reports whether the current MCU lies within the height a DNL
// marker posted. The coder may run into the marker while it still buffers
// the data of the last MCUs, those remain valid.
func (p *parser) insideImage() bool {
	b, ok := p.self.(imageBounds)
	return ok && b.insideImage()
}

// DNLFound reports whether the DNL marker was parsed
func (p *parser) DNLFound() bool {
	return p.dnlFound
}

func (p *parser) advanceRestart() {
	p.nextRestart = (p.nextRestart + 1) & 0xfff7
	p.mcusToGo = p.restartInterval
}

func (p *parser) acceptRestart(io stream.ByteStream) error {
	io.GetWord()
	if err := p.self.Restart(); err != nil {
		return err
	}
	p.advanceRestart()
	p.segmentValid = true
	return nil
}

// ParseRestartMarker consumes the expected restart marker. A missing or wrong
// marker is not fatal: the data is searched for the next restart marker, and
// the MCUs up to it are flagged invalid unless it is the expected one.
// A DNL marker in place of the restart marker ends the scan, DNLFound
// reports it.
func (p *parser) ParseRestartMarker(io stream.ByteStream) error {
	dt := io.PeekWord()
	for dt == 0xffff {
		// fill byte
		io.Get()
		dt = io.PeekWord()
	}
	if dt == markerDNL && p.scanForDNL {
		_, err := p.ParseDNLMarker(io)
		return err
	}
	if dt == int(p.nextRestart) {
		return p.acceptRestart(io)
	}

	slog.Warn("entropy coded segment is not terminated by the expected restart marker, resynchronizing",
		slog.String("expected", fmt.Sprintf("0x%04x", p.nextRestart)),
		slog.String("found", fmt.Sprintf("0x%04x", dt)))
	for {
		b := io.Get()
		if b == stream.EOF {
			return fmt.Errorf("searching for restart marker 0x%04x: %w", p.nextRestart, stream.ErrUnexpectedEOF)
		}
		if b != 0xff {
			continue
		}
		io.LastUnDo()
		dt = io.PeekWord()
		switch {
		case dt >= markerRST0 && dt <= markerRST0+7:
			if dt == int(p.nextRestart) {
				return p.acceptRestart(io)
			}
			if (dt-int(p.nextRestart))&7 >= 4 {
				// a marker from the past, skip it
				io.GetWord()
				continue
			}
			// a marker from the future: the segments in between are lost
			p.segmentValid = false
			p.advanceRestart()
			slog.Warn("restart marker out of sequence, segment replaced by neutral data",
				slog.String("found", fmt.Sprintf("0x%04x", dt)))
			return nil
		case dt >= 0xffc0 && dt <= 0xffef:
			// some other marker, probably the end of the scan
			p.segmentValid = false
			p.advanceRestart()
			slog.Warn("scan ends without the expected restart marker",
				slog.String("found", fmt.Sprintf("0x%04x", dt)))
			return nil
		default:
			io.Get()
		}
	}
}

// ParseDNLMarker consumes a DNL marker if one follows and posts the image
// height to the frame. It reports whether the marker was found.
func (p *parser) ParseDNLMarker(io stream.ByteStream) (bool, error) {
	if p.dnlFound {
		return true, nil
	}
	dt := io.PeekWord()
	for dt == 0xffff {
		io.Get()
		dt = io.PeekWord()
	}
	if dt != markerDNL {
		return false, nil
	}
	io.GetWord()
	if l := io.GetWord(); l != 4 {
		return false, fmt.Errorf("DNL marker length %d, must be 4: %w", l, stream.ErrMalformedStream)
	}
	h := io.GetWord()
	if h == stream.EOF {
		return false, fmt.Errorf("truncated DNL marker: %w", stream.ErrUnexpectedEOF)
	}
	if h == 0 {
		return false, fmt.Errorf("DNL marker height 0: %w", stream.ErrMalformedStream)
	}
	p.frame.PostImageHeight(h)
	p.dnlFound = true
	return true, nil
}

// WriteDNLMarker writes the DNL marker with the frame height
func WriteDNLMarker(io stream.ByteStream, height int) error {
	if height <= 0 || height > 0xffff {
		return fmt.Errorf("DNL height %d: %w", height, stream.ErrInvalidParameter)
	}
	for _, w := range []uint16{markerDNL, 4, uint16(height)} {
		if err := io.PutWord(w); err != nil {
			return err
		}
	}
	return nil
}
