// Package hadamard implements the integer 8x8 lifting Hadamard transform used to
// decorrelate residual blocks before they are entropy coded. Every lifting step
// is exactly invertible, so Inverse(Forward(x)) == x for all inputs.
package hadamard

// Forward transforms the 8x8 block in src (raster order) into dst. Rows are
// transformed first, then columns. dcOffset is removed from the DC band.
func Forward(src *[64]int32, dst *[64]int32, dcOffset int32) {
	var tmp [64]int32
	for r := 0; r < 8; r++ {
		var in, out [8]int32
		copy(in[:], src[r*8:r*8+8])
		forward8(&in, &out)
		copy(tmp[r*8:r*8+8], out[:])
	}
	for c := 0; c < 8; c++ {
		var in, out [8]int32
		for r := 0; r < 8; r++ {
			in[r] = tmp[r*8+c]
		}
		forward8(&in, &out)
		for r := 0; r < 8; r++ {
			dst[r*8+c] = out[r]
		}
	}
	dst[0] -= dcOffset << 3
}

// Inverse reconstructs the block in dst from the coefficients in src
func Inverse(src *[64]int32, dst *[64]int32, dcOffset int32) {
	var tmp [64]int32
	coef := *src
	coef[0] += dcOffset << 3
	for c := 0; c < 8; c++ {
		var in, out [8]int32
		for r := 0; r < 8; r++ {
			in[r] = coef[r*8+c]
		}
		inverse8(&in, &out)
		for r := 0; r < 8; r++ {
			tmp[r*8+c] = out[r]
		}
	}
	for r := 0; r < 8; r++ {
		var in, out [8]int32
		copy(in[:], tmp[r*8:r*8+8])
		inverse8(&in, &out)
		copy(dst[r*8:r*8+8], out[:])
	}
}

// forward8 runs three lifting stages and stores the bands low to high
func forward8(s *[8]int32, d *[8]int32) {
	a0 := s[0] + s[4]
	a1 := s[1] + s[5]
	a2 := s[2] + s[6]
	a3 := s[3] + s[7]
	a4 := a0>>1 - s[4]
	a5 := a1>>1 - s[5]
	a6 := a2>>1 - s[6]
	a7 := a3>>1 - s[7]

	b0 := a0 + a2
	b1 := a1 + a3
	b2 := b0>>1 - a2
	b3 := b1>>1 - a3
	b4 := a4 + a6
	b5 := a5 + a7
	b6 := b4>>1 - a6
	b7 := b5>>1 - a7

	c0 := b0 + b1
	c1 := c0>>1 - b1
	c2 := b2 + b3
	c3 := c2>>1 - b3
	c4 := b4 + b5
	c5 := c4>>1 - b5
	c6 := b6 + b7
	c7 := c6>>1 - b7

	d[0] = c0
	d[1] = c4
	d[2] = c6
	d[3] = c2
	d[4] = c3
	d[5] = c7
	d[6] = c5
	d[7] = c1
}

func inverse8(s *[8]int32, d *[8]int32) {
	c0, c4, c6, c2 := s[0], s[1], s[2], s[3]
	c3, c7, c5, c1 := s[4], s[5], s[6], s[7]

	b1 := c0>>1 - c1
	b0 := c0 - b1
	b3 := c2>>1 - c3
	b2 := c2 - b3
	b5 := c4>>1 - c5
	b4 := c4 - b5
	b7 := c6>>1 - c7
	b6 := c6 - b7

	a2 := b0>>1 - b2
	a3 := b1>>1 - b3
	a0 := b0 - a2
	a1 := b1 - a3
	a6 := b4>>1 - b6
	a7 := b5>>1 - b7
	a4 := b4 - a6
	a5 := b5 - a7

	d[4] = a0>>1 - a4
	d[5] = a1>>1 - a5
	d[6] = a2>>1 - a6
	d[7] = a3>>1 - a7
	d[0] = a0 - d[4]
	d[1] = a1 - d[5]
	d[2] = a2 - d[6]
	d[3] = a3 - d[7]
}
