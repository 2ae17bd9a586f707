package huffman

import "math"

// Statistics counts symbol frequencies during a measurement pass and derives
// an optimal, JPEG compliant table from them.
type Statistics struct {
	count [256]uint32
}

// NewStatistics creates empty statistics
func NewStatistics() *Statistics {
	return &Statistics{}
}

// Put counts one occurrence of symbol
func (s *Statistics) Put(symbol byte) {
	s.count[symbol]++
}

// Count returns the occurrences of symbol
func (s *Statistics) Count(symbol byte) uint32 {
	return s.count[symbol]
}

// Empty reports whether nothing was counted yet
func (s *Statistics) Empty() bool {
	for _, n := range s.count {
		if n > 0 {
			return false
		}
	}
	return true
}

// Reset clears all counts
func (s *Statistics) Reset() {
	s.count = [256]uint32{}
}

// CodeSizes computes the code length of every symbol of the optimal Huffman code
// (T.81 K.2) with a reserved symbol that keeps the all-ones code unused. Whenever
// a length exceeds 16 bits, the low frequency end is flattened and the tree rebuilt.
func (s *Statistics) CodeSizes() [256]uint8 {
	var out [256]uint8
	mstt := s.count
	for {
		var freq [257]uint64
		var next [257]int
		var size [257]uint8
		for i := 0; i < 256; i++ {
			freq[i] = uint64(mstt[i])
			next[i] = -1
		}
		freq[256] = 1
		next[256] = -1
		for {
			min1, min2 := uint64(math.MaxUint64), uint64(math.MaxUint64)
			arg1, arg2 := 0, 0
			for i := 0; i <= 256; i++ {
				if freq[i] == 0 {
					continue
				}
				if freq[i] < min1 {
					min2, arg2 = min1, arg1
					min1, arg1 = freq[i], i
				} else if freq[i] < min2 {
					min2, arg2 = freq[i], i
				}
			}
			if min2 == math.MaxUint64 {
				break
			}
			// merge the second least frequent subtree into the least frequent one
			freq[arg1] += freq[arg2]
			freq[arg2] = 0
			i := arg1
			for ; arg1 >= 0; arg1 = next[arg1] {
				i = arg1
				size[arg1]++
			}
			next[i] = arg2
			for ; arg2 >= 0; arg2 = next[arg2] {
				size[arg2]++
			}
		}
		valid := true
		for i := 0; i < 256; i++ {
			if size[i] > 16 {
				valid = false
				break
			}
			out[i] = size[i]
		}
		if valid {
			return out
		}
		// find the two smallest distinct counts and lift everything below the second one
		min1, min2 := uint32(math.MaxUint32), uint32(math.MaxUint32)
		for i := 0; i < 256; i++ {
			if mstt[i] == 0 {
				continue
			}
			if mstt[i] < min1 {
				min2 = min1
				min1 = mstt[i]
			} else if mstt[i] < min2 && mstt[i] > min1 {
				min2 = mstt[i]
			}
		}
		for i := 0; i < 256; i++ {
			if mstt[i] > 0 && mstt[i] < min2 {
				mstt[i] = min2
			}
		}
	}
}

// Table builds the optimal table for the counted symbols
func (s *Statistics) Table() (*Table, error) {
	sizes := s.CodeSizes()
	var bits [16]uint8
	var values []byte
	for l := 1; l <= 16; l++ {
		for sym := 0; sym < 256; sym++ {
			if sizes[sym] == uint8(l) {
				bits[l-1]++
				values = append(values, byte(sym))
			}
		}
	}
	return NewTable(bits, values)
}
