// Package mix8 implements the incremental Mix8 NNUE evaluator: a
// four-direction, eleven-cell shape index feeding a depthwise 3x3
// convolution, folded into per-group and global value sums that a small
// float32 head network turns into a win/loss/draw estimate and a policy
// score per empty cell. All arithmetic below is scalar, but is written
// batch-at-a-time against internal/simdops so it reads the same way the
// SIMD-backed reference implementation does.
package mix8

// FeatureDim is the width of a single shape's mapped feature row.
// FeatureDWConvDim of those channels are routed through the depthwise
// convolution before folding into the value sums; the remaining
// FeatureDim-FeatureDWConvDim channels are PReLU'd and folded in
// directly (scaled by ValueSumScaleDirect instead of
// ValueSumScaleAfterConv).
const (
	FeatureDim       = 48
	FeatureDWConvDim = 32
	ValueGroupDim    = 16
	ValueDim         = 32
	PolicyDim        = 16
	MaxNumBuckets    = 4
	NGroup           = 3
	// ShapeNum is 3^12: eleven line cells plus the wall/no-stone slot,
	// each taking one of {empty, black, white}.
	ShapeNum = 531441
)

// valueL3OutputDim is the width of the final value head layer; only the
// first three lanes (win, loss, draw logits) are used, the rest exist to
// keep the layer a round SIMD width in the reference implementation.
const valueL3OutputDim = 16

// power3 is Power3[i] = 3^i for i in [0,16), used to compute additive
// shape-index deltas as a stone is placed or removed along a line.
var power3 = func() [16]int32 {
	var t [16]int32
	t[0] = 1
	for i := 1; i < len(t); i++ {
		t[i] = t[i-1] * 3
	}
	return t
}()

// dx and dy are the four line directions a shape index is computed
// over: horizontal, vertical, and the two diagonals.
var dx = [4]int{1, 0, 1, 1}
var dy = [4]int{0, 1, 1, -1}
