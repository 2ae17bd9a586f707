package codestream

// BufferCtrl is the image buffer a scan pulls data from when writing and
// pushes data into when parsing. Block based scans require a BlockSource,
// the lossless scan a LineSource.
type BufferCtrl interface {
	// ResetToStartOfScan rewinds the components of scan, all components for nil
	ResetToStartOfScan(scan *Scan)
}

// BlockSource hands out the block rows of the current MCU row
type BlockSource interface {
	BufferCtrl
	// StartMCUQuantizerRow advances the quantized data of the scan components by one
	// MCU row, false when the image is exhausted
	StartMCUQuantizerRow(scan *Scan) bool
	// StartMCUResidualRow does the same for the residual data, all components for nil
	StartMCUResidualRow(scan *Scan) bool
	// CurrentQuantizedRows returns the block rows of the current MCU row of component idx
	CurrentQuantizedRows(idx int) [][]Block
	// CurrentResidualRows returns the residual block rows of the current MCU row
	CurrentResidualRows(idx int) [][]Block
}

// LineSource hands out sample lines for the line based scans
type LineSource interface {
	BufferCtrl
	// StartMCUQuantizerRow advances the components of scan by eight MCU lines
	StartMCUQuantizerRow(scan *Scan) bool
	// CurrentLines returns the lines of the current group of component idx
	CurrentLines(idx int) [][]int32
	// PreviousLine returns the line above the current group, nil at the top
	PreviousLine(idx int) []int32
	// CurrentY returns the first line of the current group
	CurrentY(idx int) int
}

// plane is one block grid that is handed out an MCU row at a time
type plane struct {
	rows  [][]Block
	width int
	next  int // first block row of the next MCU row
	cur   int
	n     int
}

func (p *plane) reset() {
	p.next, p.cur, p.n = 0, 0, 0
}

// advance moves to the next MCU row of height block rows; limit caps the number
// of block rows, a negative limit lets the plane grow.
func (p *plane) advance(height, limit int) bool {
	ymin := p.next
	ymax := ymin + height
	if limit >= 0 && ymax > limit {
		ymax = limit
	}
	p.next = ymax
	if ymin >= ymax {
		p.n = 0
		return false
	}
	for len(p.rows) < ymax {
		p.rows = append(p.rows, make([]Block, p.width))
	}
	p.cur, p.n = ymin, ymax-ymin
	return true
}

func (p *plane) current() [][]Block {
	return p.rows[p.cur : p.cur+p.n]
}

// BlockBuffer is an in-memory BlockSource holding the quantized and the
// residual blocks of every component of a frame.
type BlockBuffer struct {
	frame     *Frame
	quantized []*plane
	residual  []*plane
}

// NewBlockBuffer allocates the block grids of frame. With an unknown frame
// height the grids grow as rows are requested.
func NewBlockBuffer(frame *Frame) *BlockBuffer {
	b := &BlockBuffer{frame: frame}
	for i := range frame.Components {
		q := &plane{width: frame.BlocksAcross(i)}
		r := &plane{width: frame.BlocksAcross(i)}
		for y := 0; y < frame.BlocksDown(i); y++ {
			q.rows = append(q.rows, make([]Block, q.width))
			r.rows = append(r.rows, make([]Block, r.width))
		}
		b.quantized = append(b.quantized, q)
		b.residual = append(b.residual, r)
	}
	return b
}

// Quantized returns all block rows of component idx
func (b *BlockBuffer) Quantized(idx int) [][]Block {
	return b.trim(idx, b.quantized[idx].rows)
}

// Residual returns all residual block rows of component idx
func (b *BlockBuffer) Residual(idx int) [][]Block {
	return b.trim(idx, b.residual[idx].rows)
}

// trim drops the rows a scan of unknown height decoded past the DNL height
func (b *BlockBuffer) trim(idx int, rows [][]Block) [][]Block {
	if n := b.limit(idx); n >= 0 && len(rows) > n {
		return rows[:n]
	}
	return rows
}

func (b *BlockBuffer) limit(idx int) int {
	if b.frame.Height == 0 {
		return -1
	}
	return b.frame.BlocksDown(idx)
}

func (b *BlockBuffer) each(scan *Scan, fn func(c *Component, mcuHeight int)) {
	if scan == nil {
		for _, c := range b.frame.Components {
			fn(c, c.MCUHeight)
		}
		return
	}
	for _, c := range scan.Components {
		h := 1
		if len(scan.Components) > 1 {
			h = c.MCUHeight
		}
		fn(c, h)
	}
}

func (b *BlockBuffer) ResetToStartOfScan(scan *Scan) {
	b.each(scan, func(c *Component, _ int) {
		b.quantized[c.Index].reset()
		b.residual[c.Index].reset()
	})
}

func (b *BlockBuffer) StartMCUQuantizerRow(scan *Scan) bool {
	more := true
	b.each(scan, func(c *Component, h int) {
		if !b.quantized[c.Index].advance(h, b.limit(c.Index)) {
			more = false
		}
	})
	return more
}

func (b *BlockBuffer) StartMCUResidualRow(scan *Scan) bool {
	more := true
	b.each(scan, func(c *Component, h int) {
		if !b.residual[c.Index].advance(h, b.limit(c.Index)) {
			more = false
		}
	})
	return more
}

func (b *BlockBuffer) CurrentQuantizedRows(idx int) [][]Block {
	return b.quantized[idx].current()
}

func (b *BlockBuffer) CurrentResidualRows(idx int) [][]Block {
	return b.residual[idx].current()
}

// LineBuffer is an in-memory LineSource of sample lines, one set per component
type LineBuffer struct {
	frame *Frame
	lines [][][]int32
	y     []int // first line of the current group
	n     []int // lines in the current group
	next  []int
}

// NewLineBuffer allocates the sample lines of frame. Lines are padded to a
// multiple of the MCU width.
func NewLineBuffer(frame *Frame) *LineBuffer {
	b := &LineBuffer{frame: frame}
	for i, c := range frame.Components {
		w := frame.SampleWidth(i)
		w = (w + c.MCUWidth - 1) / c.MCUWidth * c.MCUWidth
		rows := make([][]int32, frame.SampleHeight(i))
		for y := range rows {
			rows[y] = make([]int32, w)
		}
		b.lines = append(b.lines, rows)
	}
	b.y = make([]int, len(frame.Components))
	b.n = make([]int, len(frame.Components))
	b.next = make([]int, len(frame.Components))
	return b
}

// Lines returns all sample lines of component idx
func (b *LineBuffer) Lines(idx int) [][]int32 {
	if h := b.frame.SampleHeight(idx); b.frame.Height > 0 && len(b.lines[idx]) > h {
		return b.lines[idx][:h]
	}
	return b.lines[idx]
}

func (b *LineBuffer) ResetToStartOfScan(scan *Scan) {
	for i := range b.lines {
		b.y[i], b.n[i], b.next[i] = 0, 0, 0
	}
}

func (b *LineBuffer) StartMCUQuantizerRow(scan *Scan) bool {
	more := true
	for _, c := range scan.Components {
		i := c.Index
		h := 1
		if len(scan.Components) > 1 {
			h = c.MCUHeight
		}
		ymin := b.next[i]
		ymax := ymin + h<<3
		if height := b.frame.SampleHeight(i); b.frame.Height > 0 && ymax > height {
			ymax = height
		}
		for len(b.lines[i]) < ymax {
			w := b.frame.SampleWidth(i)
			b.lines[i] = append(b.lines[i], make([]int32, (w+c.MCUWidth-1)/c.MCUWidth*c.MCUWidth))
		}
		b.next[i] = ymax
		if ymin >= ymax {
			more = false
			b.n[i] = 0
			continue
		}
		b.y[i], b.n[i] = ymin, ymax-ymin
	}
	return more
}

func (b *LineBuffer) CurrentLines(idx int) [][]int32 {
	return b.lines[idx][b.y[idx] : b.y[idx]+b.n[idx]]
}

func (b *LineBuffer) PreviousLine(idx int) []int32 {
	if b.y[idx] == 0 {
		return nil
	}
	return b.lines[idx][b.y[idx]-1]
}

func (b *LineBuffer) CurrentY(idx int) int {
	return b.y[idx]
}
