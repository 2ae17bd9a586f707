package codestream

import (
	"fmt"

	"github.com/jpfielding/jpegxt.go/pkg/compress/huffman"
	"github.com/jpfielding/jpegxt.go/pkg/compress/stream"
)

// Kind selects the entropy coder of a scan
type Kind int

const (
	Sequential Kind = iota
	ACSequential
	Refinement
	ACRefinement
	// the lossless kinds code sample lines instead of blocks
	Lossless
	ACLossless
	DifferentialLossless
	ACDifferentialLossless
	Residual
	ResidualHuffman
	ResidualSequential
	// hidden variants carry their data in an APP9 side channel
	HiddenRefinement
	HiddenACRefinement
	HiddenResidual
	HiddenACResidual
)

var kindNames = map[Kind]string{
	Sequential:             "sequential",
	ACSequential:           "ac-sequential",
	Refinement:             "refinement",
	ACRefinement:           "ac-refinement",
	Lossless:               "lossless",
	ACLossless:             "ac-lossless",
	DifferentialLossless:   "differential-lossless",
	ACDifferentialLossless: "ac-differential-lossless",
	Residual:               "residual",
	ResidualHuffman:        "residual-huffman",
	ResidualSequential:     "residual-sequential",
	HiddenRefinement:       "hidden-refinement",
	HiddenACRefinement:     "hidden-ac-refinement",
	HiddenResidual:         "hidden-residual",
	HiddenACResidual:       "hidden-ac-residual",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind maps a kind name back to the kind
func ParseKind(name string) (Kind, error) {
	for k, n := range kindNames {
		if n == name {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown scan kind %q: %w", name, stream.ErrInvalidParameter)
}

// Kinds lists all scan kinds
func Kinds() []Kind {
	out := make([]Kind, 0, len(kindNames))
	for k := Sequential; k <= HiddenACResidual; k++ {
		out = append(out, k)
	}
	return out
}

// Arithmetic reports whether the kind codes with the QM coder
func (k Kind) Arithmetic() bool {
	switch k {
	case ACSequential, ACRefinement, ACLossless, ACDifferentialLossless, Residual, HiddenACRefinement, HiddenACResidual:
		return true
	}
	return false
}

// LineBased reports whether the kind codes sample lines and needs a LineSource
func (k Kind) LineBased() bool {
	switch k {
	case Lossless, ACLossless, DifferentialLossless, ACDifferentialLossless:
		return true
	}
	return false
}

// Differential reports whether the kind codes the differences of a
// hierarchical level without prediction
func (k Kind) Differential() bool {
	return k == DifferentialLossless || k == ACDifferentialLossless
}

// DCConditioner holds the DC thresholds of one arithmetic conditioning table
type DCConditioner struct {
	L, U int
}

// Scan is the descriptor of one scan: its components, the spectral and bit range,
// and the tables the entropy coder works with.
type Scan struct {
	Frame      *Frame
	Components []*Component
	Kind       Kind

	Start, Stop     int
	LowBit, HighBit int
	// Residual codes coefficients as residuals: no DC prediction, AC from position 0
	Residual bool
	// Predictor is the prediction mode of the lossless scans, 1-7
	Predictor int

	Huffman *huffman.Set
	// arithmetic conditioning per table destination
	DC [4]DCConditioner
	Kx [4]int

	// Next is the scan a residual scan hands the frame type to
	Next *Scan

	dcStats [4]*huffman.Statistics
	acStats [4]*huffman.Statistics
	coder   EntropyCoder
}

// NewScan creates a scan over the listed frame components with the default
// tables and conditioning
func NewScan(frame *Frame, kind Kind, comps ...int) (*Scan, error) {
	if len(comps) == 0 {
		for i := range frame.Components {
			comps = append(comps, i)
		}
	}
	if len(comps) > 4 {
		return nil, fmt.Errorf("scan with %d components: %w", len(comps), stream.ErrInvalidParameter)
	}
	s := &Scan{Frame: frame, Kind: kind, Stop: 63}
	if kind == Lossless || kind == ACLossless {
		s.Predictor = int(PredictLeft)
	}
	for _, c := range comps {
		if c < 0 || c >= len(frame.Components) {
			return nil, fmt.Errorf("scan component %d of %d: %w", c, len(frame.Components), stream.ErrInvalidParameter)
		}
		s.Components = append(s.Components, frame.Components[c])
	}
	switch kind {
	case ResidualHuffman:
		s.Huffman = huffman.ResidualSet()
	default:
		s.Huffman = huffman.DefaultSet()
	}
	for i := range s.DC {
		s.DC[i] = DCConditioner{L: 0, U: 1}
		s.Kx[i] = 5
	}
	return s, nil
}

// Progressive reports whether the scan codes only part of the spectrum or bits
func (s *Scan) Progressive() bool {
	return s.Start > 0 || s.Stop < 63 || s.LowBit > 0
}

// Statistics returns the statistics collectors of a measurement pass
func (s *Scan) Statistics(class huffman.Class, id int) *huffman.Statistics {
	set := &s.dcStats
	if class == huffman.AC {
		set = &s.acStats
	}
	if set[id&3] == nil {
		set[id&3] = huffman.NewStatistics()
	}
	return set[id&3]
}

// OptimizeTables replaces every table a measurement pass collected symbols for
// with the optimal table of those statistics.
func (s *Scan) OptimizeTables() error {
	for id := 0; id < 4; id++ {
		for _, class := range []huffman.Class{huffman.DC, huffman.AC} {
			st := s.Statistics(class, id)
			if st.Empty() {
				continue
			}
			t, err := st.Table()
			if err != nil {
				return fmt.Errorf("optimize %d/%d: %w", class, id, err)
			}
			s.Huffman.SetTable(class, id, t)
			st.Reset()
		}
	}
	return nil
}

// Coder returns the entropy coder of the scan, built on first use
func (s *Scan) Coder() (EntropyCoder, error) {
	if s.coder == nil {
		c, err := NewEntropyCoder(s)
		if err != nil {
			return nil, err
		}
		s.coder = c
	}
	return s.coder, nil
}

func (s *Scan) dcTable(i int) int {
	return s.Components[i].DCTable & 3
}

func (s *Scan) acTable(i int) int {
	return s.Components[i].ACTable & 3
}
