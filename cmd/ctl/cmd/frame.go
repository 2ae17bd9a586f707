package cmd

import (
	"fmt"
	"math/rand/v2"

	"github.com/jpfielding/jpegxt.go/pkg/jpegxt/codestream"
	"github.com/jpfielding/jpegxt.go/pkg/util"
	"github.com/spf13/cobra"
)

// frameOptions are the flags that describe the frame and its scans. Encoder
// and decoder must be given the same options.
type frameOptions struct {
	kind       string
	width      int
	height     int
	components int
	restart    int
	dnl        bool
	hadamard   bool
	largeRange bool
	seed       uint64
}

func (o *frameOptions) bind(cmd *cobra.Command) {
	pf := cmd.PersistentFlags()
	pf.StringVarP(&o.kind, "kind", "k", codestream.Sequential.String(), "scan kind, see the kinds command")
	pf.IntVar(&o.width, "width", 64, "frame width in samples")
	pf.IntVar(&o.height, "height", 48, "frame height in samples")
	pf.IntVarP(&o.components, "components", "c", 1, "number of components (1-4)")
	pf.IntVarP(&o.restart, "restart", "r", 0, "MCUs between restart markers, 0 disables them")
	pf.BoolVar(&o.dnl, "dnl", false, "signal the frame height in a DNL marker")
	pf.BoolVar(&o.hadamard, "hadamard", false, "transform based residual coding")
	pf.BoolVar(&o.largeRange, "large-range", false, "extended coefficient range of the sequential scans")
	pf.Uint64Var(&o.seed, "seed", 1, "seed of the synthetic coefficients")
}

// id names the options so the logs of encoder and decoder can be matched
func (o *frameOptions) id() string {
	return util.HashUUID(struct {
		Kind                      string
		Width, Height, Components int
		Restart                   int
		DNL, Hadamard, LargeRange bool
		Seed                      uint64
	}{o.kind, o.width, o.height, o.components, o.restart, o.dnl, o.hadamard, o.largeRange, o.seed})
}

// frame builds the frame; decoding a DNL frame starts with an unknown height
func (o *frameOptions) frame(decoding bool) (*codestream.Frame, error) {
	height := o.height
	if decoding && o.dnl {
		height = 0
	}
	f, err := codestream.NewFrame(o.width, height, o.components)
	if err != nil {
		return nil, err
	}
	f.RestartInterval = o.restart
	f.WriteDNL = o.dnl && !decoding
	f.Hadamard = o.hadamard
	f.LargeRange = o.largeRange
	return f, nil
}

func (o *frameOptions) plan(decoding bool) (*codestream.Frame, codestream.Kind, []*codestream.Scan, error) {
	kind, err := codestream.ParseKind(o.kind)
	if err != nil {
		return nil, 0, nil, err
	}
	f, err := o.frame(decoding)
	if err != nil {
		return nil, 0, nil, err
	}
	scans, err := codestream.Plan(f, kind)
	if err != nil {
		return nil, 0, nil, err
	}
	return f, kind, scans, nil
}

// buffer returns the buffer the scans of kind work on
func buffer(f *codestream.Frame, kind codestream.Kind) codestream.BufferCtrl {
	if kind.LineBased() {
		return codestream.NewLineBuffer(f)
	}
	return codestream.NewBlockBuffer(f)
}

// synthesize fills the buffer with coefficients that look like a quantized
// photograph: a wandering DC, AC energy falling off along the zig-zag order,
// and a sparse residual of small values. Line based kinds get 8 bit samples
// that wander along the line, or small signed differences.
func synthesize(ctrl codestream.BufferCtrl, f *codestream.Frame, kind codestream.Kind, seed uint64) {
	rng := rand.New(rand.NewPCG(seed, uint64(kind)))
	switch b := ctrl.(type) {
	case *codestream.LineBuffer:
		for i := range f.Components {
			for _, line := range b.Lines(i) {
				v := rng.Int32N(256)
				for x := range line {
					if kind.Differential() {
						line[x] = rng.Int32N(121) - 60
						continue
					}
					v = max(0, min(255, v+rng.Int32N(17)-8))
					line[x] = v
				}
			}
		}
	case *codestream.BlockBuffer:
		density := 3
		if kind == codestream.ResidualSequential {
			// the residual must fit 16 bytes per block
			density = 40
		}
		for i := range f.Components {
			dc := int32(0)
			for _, row := range b.Quantized(i) {
				for x := range row {
					dc += rng.Int32N(21) - 10
					dc = max(-100, min(100, dc))
					row[x][0] = dc
					for k := 1; k < 64; k++ {
						if rng.IntN(k+2) == 0 {
							amp := int32(1 + 40/k)
							row[x][codestream.ScanOrder[k]] = rng.Int32N(2*amp+1) - amp
						}
					}
				}
			}
			if !kind.ResidualRows() {
				continue
			}
			for _, row := range b.Residual(i) {
				for x := range row {
					for k := range row[x] {
						if rng.IntN(density) == 0 {
							row[x][k] = rng.Int32N(5) - 2
						}
					}
				}
			}
		}
	}
}

// compare reports the first difference between the data of two buffers
func compare(a, b codestream.BufferCtrl, f *codestream.Frame, kind codestream.Kind) error {
	switch x := a.(type) {
	case *codestream.LineBuffer:
		y := b.(*codestream.LineBuffer)
		for i := range f.Components {
			la, lb := x.Lines(i), y.Lines(i)
			if len(la) != len(lb) {
				return fmt.Errorf("component %d: %d lines, decoded %d", i, len(la), len(lb))
			}
			for r := range la {
				for c := range la[r] {
					if la[r][c] != lb[r][c] {
						return fmt.Errorf("component %d sample %d,%d: %d, decoded %d", i, c, r, la[r][c], lb[r][c])
					}
				}
			}
		}
	case *codestream.BlockBuffer:
		y := b.(*codestream.BlockBuffer)
		for i := range f.Components {
			if err := compareBlocks(i, "quantized", x.Quantized(i), y.Quantized(i)); err != nil {
				return err
			}
			if !kind.ResidualRows() {
				continue
			}
			if err := compareBlocks(i, "residual", x.Residual(i), y.Residual(i)); err != nil {
				return err
			}
		}
	}
	return nil
}

func compareBlocks(i int, what string, a, b [][]codestream.Block) error {
	if len(a) != len(b) {
		return fmt.Errorf("component %d: %d %s block rows, decoded %d", i, len(a), what, len(b))
	}
	for r := range a {
		for c := range a[r] {
			if a[r][c] != b[r][c] {
				return fmt.Errorf("component %d %s block %d,%d differs", i, what, c, r)
			}
		}
	}
	return nil
}
