package simdops

import "testing"

func TestMulHRS16Saturates(t *testing.T) {
	got := MulHRS16(32767, 32767)
	if got > 32767 || got < -32768 {
		t.Fatalf("MulHRS16 overflowed range: %d", got)
	}
}

func TestMulHRS16ReferenceValue(t *testing.T) {
	// round(20000*10000/32768) = round(6103.515625) = 6104
	got := MulHRS16(20000, 10000)
	want := int16(6104)
	if got != want {
		t.Fatalf("MulHRS16(20000, 10000) = %d, want %d", got, want)
	}
}

func TestPReLU16PositivePassesThrough(t *testing.T) {
	got := PReLU16(1000, 16384) // alpha ~ 0.5
	if got != 1000 {
		t.Fatalf("PReLU16 on positive input = %d, want passthrough 1000", got)
	}
}

func TestPReLU16NegativeScaled(t *testing.T) {
	x := int16(-1000)
	alpha := int16(16384) // ~0.5 in Q15
	got := PReLU16(x, alpha)
	want := MulHRS16(x, alpha)
	if got != want {
		t.Fatalf("PReLU16 on negative input = %d, want %d", got, want)
	}
}

func TestAddSubBatch16RoundTrip(t *testing.T) {
	dst := []int16{1, 2, 3, 4}
	src := []int16{10, 20, 30, 40}
	orig := append([]int16{}, dst...)

	AddBatch16(dst, src)
	SubBatch16(dst, src)

	for i := range dst {
		if dst[i] != orig[i] {
			t.Fatalf("AddBatch16/SubBatch16 round trip mismatch at %d: got %d, want %d", i, dst[i], orig[i])
		}
	}
}

func TestRelu32(t *testing.T) {
	if Relu32(-5) != 0 {
		t.Fatalf("Relu32(-5) should clamp to 0")
	}
	if Relu32(5) != 5 {
		t.Fatalf("Relu32(5) should pass through")
	}
}

func TestLinearLayer(t *testing.T) {
	weight := [][]float32{
		{1, 2},
		{3, 4},
	}
	bias := []float32{0.5, -1}
	src := []float32{1, 1}
	dst := make([]float32, 2)

	LinearLayer(dst, src, weight, bias, ActivationNone)

	if dst[0] != 3.5 || dst[1] != 6 {
		t.Fatalf("LinearLayer mismatch: got %v", dst)
	}
}

func TestLinearLayerReluClamps(t *testing.T) {
	weight := [][]float32{{1}}
	bias := []float32{-10}
	src := []float32{1}
	dst := make([]float32, 1)

	LinearLayer(dst, src, weight, bias, ActivationRelu)

	if dst[0] != 0 {
		t.Fatalf("LinearLayer with ActivationRelu should clamp negative to 0, got %v", dst[0])
	}
}
