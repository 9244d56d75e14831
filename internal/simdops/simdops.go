// Package simdops implements the fixed-width batched integer/float
// kernels the Mix8 accumulator is built from: a saturating rounded
// high-multiply ("mulhrs"), PReLU, int16->int32 widening, and a small
// float32 linear-layer primitive. An optimized build would select real
// SIMD registers behind build tags; this package always takes the
// portable scalar path but keeps the same lane-width and alignment
// vocabulary so the accumulator code above it reads the same regardless
// of what eventually backs these calls.
package simdops

// Alignment is the byte alignment SIMD-accessed accumulator arrays are
// allocated to. Go slices from make() are not guaranteed to start on an
// Alignment boundary; AlignedInt16/AlignedInt32 below pad the backing
// array so that the returned slice's data pointer can be rounded up to
// this alignment by the caller if the target ever requires it.
const Alignment = 32

// RegWidth16 and RegWidth32 are the number of int16/int32 lanes a single
// native vector register would hold at Alignment (256-bit AVX2).
// Batched loops below process this many
// elements per notional "vector op" even though the scalar path just
// iterates — keeping the stride named makes the correspondence to the
// original SIMD code legible.
const (
	RegWidth16 = Alignment / 2
	RegWidth32 = Alignment / 4
)

// AlignedInt16 allocates a []int16 of length n padded so a caller that
// wants to hand the backing array to a real SIMD backend can round the
// base pointer up to Alignment without running off the end.
func AlignedInt16(n int) []int16 {
	pad := RegWidth16
	return make([]int16, n, n+pad)[:n]
}

// AlignedInt32 is AlignedInt16's int32 counterpart.
func AlignedInt32(n int) []int32 {
	pad := RegWidth32
	return make([]int32, n, n+pad)[:n]
}

// MulHRS16 computes the saturating rounded high 16 bits of a 16x16-bit
// signed multiply: round((a*b) / 32768), clamped to int16 range. This is
// the scalar definition of x86's PMULHRSW, the primitive the depthwise
// convolution and PReLU steps are built from. Evaluation must match it
// bit-exactly across platforms.
func MulHRS16(a, b int16) int16 {
	prod := int32(a) * int32(b)
	rounded := (prod + (1 << 14)) >> 15
	if rounded > 32767 {
		rounded = 32767
	} else if rounded < -32768 {
		rounded = -32768
	}
	return int16(rounded)
}

// PReLU16 applies a parametric ReLU with a quantized per-channel slope:
// y = max(x, mulhrs(x, alpha)).
func PReLU16(x, alpha int16) int16 {
	neg := MulHRS16(x, alpha)
	if x > neg {
		return x
	}
	return neg
}

// Widen16to32 widens a single int16 lane to int32, used right before
// values are folded into the int32 value-sum accumulators.
func Widen16to32(x int16) int32 {
	return int32(x)
}

// Relu32 clamps a widened int32 lane to [0, +inf), used when folding
// the post-convolution feature map into the value sums.
func Relu32(x int32) int32 {
	if x < 0 {
		return 0
	}
	return x
}

// AddBatch16 adds src into dst lane-wise: dst[i] += src[i]. Ported from
// sfnnue's SIMDAddInt16 scalar fallback.
func AddBatch16(dst, src []int16) {
	for i := range dst {
		dst[i] += src[i]
	}
}

// SubBatch16 subtracts src from dst lane-wise: dst[i] -= src[i].
func SubBatch16(dst, src []int16) {
	for i := range dst {
		dst[i] -= src[i]
	}
}

// AddBatch32 adds src into dst lane-wise for int32 batches.
func AddBatch32(dst, src []int32) {
	for i := range dst {
		dst[i] += src[i]
	}
}

// SubBatch32 subtracts src from dst lane-wise for int32 batches.
func SubBatch32(dst, src []int32) {
	for i := range dst {
		dst[i] -= src[i]
	}
}

// ZeroInt16 zeros a batch in place.
func ZeroInt16(dst []int16) {
	for i := range dst {
		dst[i] = 0
	}
}

// ZeroInt32 zeros a batch in place.
func ZeroInt32(dst []int32) {
	for i := range dst {
		dst[i] = 0
	}
}

// Activation selects the nonlinearity LinearLayer applies after the
// affine transform, mirroring simd::Activation as used by
// mix8nnue.cpp's evaluateValue/evaluatePolicy.
type Activation int

const (
	ActivationNone Activation = iota
	ActivationRelu
)

// LinearLayer computes dst = activation(weight*src + bias) for a dense
// float32 layer, where weight is stored as weight[outIdx][inIdx].
// Ported from sfnnue/layers/affine_transform.go, generalized from
// Stockfish's int8 affine transform to Mix8's float32 head layers.
func LinearLayer(dst, src []float32, weight [][]float32, bias []float32, act Activation) {
	for o := range dst {
		sum := bias[o]
		row := weight[o]
		for i, v := range src {
			sum += row[i] * v
		}
		if act == ActivationRelu && sum < 0 {
			sum = 0
		}
		dst[o] = sum
	}
}

// PReLULayer32 applies a per-channel PReLU to a float32 vector in place
// semantics (dst may alias src): y = max(x, alpha*x).
func PReLULayer32(dst, src, alpha []float32) {
	for i, x := range src {
		neg := x * alpha[i]
		if x > neg {
			dst[i] = x
		} else {
			dst[i] = neg
		}
	}
}
