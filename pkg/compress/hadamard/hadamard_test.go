package hadamard

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReversible(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 5))
	tests := []struct {
		name   string
		limit  int32
		offset int32
	}{
		{"small", 4, 0},
		{"residual range", 512, 0},
		{"large", 1 << 15, 0},
		{"dc offset", 64, 17},
		{"negative offset", 64, -9},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for n := 0; n < 200; n++ {
				var src, coef, back [64]int32
				for i := range src {
					src[i] = rng.Int32N(2*tt.limit+1) - tt.limit
				}
				Forward(&src, &coef, tt.offset)
				Inverse(&coef, &back, tt.offset)
				assert.Equal(t, src, back)
			}
		})
	}
}

func TestConstantBlock(t *testing.T) {
	var src, coef [64]int32
	for i := range src {
		src[i] = 3
	}
	Forward(&src, &coef, 0)
	assert.EqualValues(t, 64*3, coef[0])
	for i := 1; i < 64; i++ {
		assert.Zero(t, coef[i], "band %d", i)
	}

	// the offset removes the DC of a block of that value
	Forward(&src, &coef, 24)
	assert.Zero(t, coef[0])
}
