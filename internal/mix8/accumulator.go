package mix8

import (
	"github.com/nguyencongminh090/Rapfi-engine/internal/board"
	"github.com/nguyencongminh090/Rapfi-engine/internal/simdops"
)

// ValueSum holds the int32 feature accumulators the head network reads
// from: one global sum over the whole board and one sum per (row group,
// column group) cell of the 3x3 group partition described by groupIndex.
type ValueSum struct {
	Global [FeatureDim]int32
	Group  [NGroup][NGroup][FeatureDim]int32
}

func (v *ValueSum) clear() {
	simdops.ZeroInt32(v.Global[:])
	for i := range v.Group {
		for j := range v.Group[i] {
			simdops.ZeroInt32(v.Group[i][j][:])
		}
	}
}

// onePointChange records one shape-index update at a touched line cell,
// mirroring OnePointChange in mix8nnue.cpp::update.
type onePointChange struct {
	x, y     int
	dir      int
	innerIdx int
	oldShape uint32
	newShape uint32
}

// Accumulator is per-color incremental evaluation state for one board of
// a fixed size: the four-direction shape index per cell, the mapped
// feature sum per cell, the depthwise-convolved feature per padded cell,
// and the folded value sums the head network consumes.
type Accumulator struct {
	boardSize      int
	fullBoardSize  int
	boardSizeScale float32

	// indexTable[cell][dir] is the current 12-trit shape index for the
	// line through cell in direction dir.
	indexTable [][4]uint32
	// mapSum[cell] is the pre-PReLU sum of the four directions' mapped
	// feature rows for cell (boardSize x boardSize, unpadded).
	mapSum [][FeatureDim]int16
	// mapAfterDWConv[outerCell] is the depthwise-conv accumulator for a
	// padded (fullBoardSize x fullBoardSize) cell, seeded to the conv
	// bias and updated as neighboring inner cells change.
	mapAfterDWConv [][FeatureDWConvDim]int16

	valueSum ValueSum

	// groupIndex[i] maps board coordinate i to its group (0,1,2) in the
	// row/column partition used for ValueSum.Group.
	groupIndex [64]int
	// groupSizeScale[i][j] is 1/(cell count of group (i,j)), used to turn
	// a group's raw sum into a mean.
	groupSizeScale [NGroup][NGroup]float32

	// ply counts moves applied since the last Clear, used to select a
	// weight file's head bucket (see BucketIndex).
	ply int
}

// NewAccumulator allocates accumulator state for a boardSize x boardSize
// board. Ported from Mix8Accumulator's constructor: cell/group counts
// come from splitting the board into thirds (the middle third takes the
// extra cell when boardSize%3==1, the two outer thirds take one each
// when boardSize%3==2), matching the reference's size1/size2 split.
func NewAccumulator(boardSize int) *Accumulator {
	a := &Accumulator{
		boardSize:      boardSize,
		fullBoardSize:  boardSize + 2,
		boardSizeScale: 1.0 / float32(boardSize*boardSize),
	}
	nCells := boardSize * boardSize
	a.indexTable = make([][4]uint32, nCells)
	a.mapSum = make([][FeatureDim]int16, nCells)
	a.mapAfterDWConv = make([][FeatureDWConvDim]int16, a.fullBoardSize*a.fullBoardSize)

	size1 := boardSize/3 + boolToInt(boardSize%3 == 2)
	size2 := (boardSize/3)*2 + boolToInt(boardSize%3 > 0)
	for i := 0; i < boardSize; i++ {
		a.groupIndex[i] = boolToInt(i >= size1) + boolToInt(i >= size2)
	}

	var groupSize [NGroup][NGroup]int
	for y := 0; y < boardSize; y++ {
		for x := 0; x < boardSize; x++ {
			groupSize[a.groupIndex[y]][a.groupIndex[x]]++
		}
	}
	for i := 0; i < NGroup; i++ {
		for j := 0; j < NGroup; j++ {
			a.groupSizeScale[i][j] = 1.0 / float32(groupSize[i][j])
		}
	}
	return a
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (a *Accumulator) cellIndex(x, y int) int { return y*a.boardSize + x }
func (a *Accumulator) outerIndex(x, y int) int {
	return (y+1)*a.fullBoardSize + (x + 1)
}

// initIndexTable analytically fills every cell's shape index for an
// empty board: interior cells sit at index 0 (no stones, no wall) in all
// four directions, while cells near an edge carry the wall's
// contribution pre-baked in. Ported from Mix8Accumulator::initIndexTable
// — the three nested-loop blocks correspond to a lone near edge, a lone
// far edge, and the two-edge corner overlap respectively.
func (a *Accumulator) initIndexTable() {
	bs := a.boardSize
	for i := range a.indexTable {
		a.indexTable[i] = [4]uint32{}
	}
	get := func(x, y int) *[4]uint32 { return &a.indexTable[x+y*bs] }

	for thick := 1; thick <= 5; thick++ {
		for i := 0; i < bs; i++ {
			c := int32(0)
			for j := 0; j < thick; j++ {
				c += power3[11-j]
			}
			get(bs-6+thick, i)[0] = uint32(c)
			get(i, bs-6+thick)[1] = uint32(c)
			get(bs-6+thick, i)[2] = uint32(c)
			get(i, bs-6+thick)[2] = uint32(c)
			get(bs-6+thick, i)[3] = uint32(c)
			get(i, 6-1-thick)[3] = uint32(c)
		}
	}

	for thick := 1; thick <= 5; thick++ {
		for i := 0; i < bs; i++ {
			c := 2 * power3[11]
			for j := 0; j < thick-1; j++ {
				c += power3[j]
			}
			get(6-1-thick, i)[0] = uint32(c)
			get(i, 6-1-thick)[1] = uint32(c)
			get(6-1-thick, i)[2] = uint32(c)
			get(i, 6-1-thick)[2] = uint32(c)
			get(6-1-thick, i)[3] = uint32(c)
			get(i, bs-6+thick)[3] = uint32(c)
		}
	}

	for aa := 1; aa <= 5; aa++ {
		for bb := 1; bb <= 5; bb++ {
			c := 3 * power3[11]
			for i := 0; i < aa-1; i++ {
				c += power3[10-i]
			}
			for i := 0; i < bb-1; i++ {
				c += power3[i]
			}
			get(bs-6+aa, 5-bb)[2] = uint32(c)
			get(5-bb, bs-6+aa)[2] = uint32(c)
			get(5-bb, 5-aa)[3] = uint32(c)
			get(bs-6+aa, bs-6+bb)[3] = uint32(c)
		}
	}
}

// Clear resets the accumulator to the empty-board state under weight w:
// recomputes indexTable analytically, seeds mapAfterDWConv to the conv
// bias, then does the same two-pass fold as Mix8Accumulator::clear — the
// first pass builds mapSum/PReLU per inner cell and folds the depthwise
// convolution's neighboring contributions plus the direct (non-conv)
// channels' PReLU'd value into valueSum, the second pass relu's the fully
// accumulated conv output per outer cell and folds that in too.
func (a *Accumulator) Clear(w *Weight) {
	a.ply = 0
	a.initIndexTable()

	for i := range a.mapAfterDWConv {
		copy(a.mapAfterDWConv[i][:], w.FeatureDWConvBias[:])
	}
	a.valueSum.clear()

	for y := 0; y < a.boardSize; y++ {
		for x := 0; x < a.boardSize; x++ {
			innerIdx := a.cellIndex(x, y)

			var sum [FeatureDim]int16
			for dir := 0; dir < 4; dir++ {
				row := w.MappingRow(a.indexTable[innerIdx][dir])
				for c := 0; c < FeatureDim; c++ {
					sum[c] += row[c]
				}
			}
			a.mapSum[innerIdx] = sum

			feature := prelu(sum, &w.MapPReluWeight)

			for dyi := 0; dyi <= 2; dyi++ {
				yi := y + dyi
				for dxi := 0; dxi <= 2; dxi++ {
					xi := x + dxi
					outerIdx := xi + yi*a.fullBoardSize
					weightRow := &w.FeatureDWConvWeight[8-dyi*3-dxi]
					dst := &a.mapAfterDWConv[outerIdx]
					for c := 0; c < FeatureDWConvDim; c++ {
						dst[c] += simdops.MulHRS16(feature[c], weightRow[c])
					}
				}
			}

			gi, gj := a.groupIndex[y], a.groupIndex[x]
			for c := FeatureDWConvDim; c < FeatureDim; c++ {
				v := simdops.Widen16to32(feature[c])
				a.valueSum.Global[c] += v
				a.valueSum.Group[gi][gj][c] += v
			}
		}
	}

	for y := 0; y < a.boardSize; y++ {
		gi := a.groupIndex[y]
		for x := 0; x < a.boardSize; x++ {
			gj := a.groupIndex[x]
			outerIdx := a.outerIndex(x, y)
			conv := &a.mapAfterDWConv[outerIdx]
			for c := 0; c < FeatureDWConvDim; c++ {
				v := simdops.Relu32(simdops.Widen16to32(conv[c]))
				a.valueSum.Global[c] += v
				a.valueSum.Group[gi][gj][c] += v
			}
		}
	}
}

func prelu(sum [FeatureDim]int16, alpha *[FeatureDim]int16) [FeatureDim]int16 {
	var out [FeatureDim]int16
	for c := range sum {
		out[c] = simdops.PReLU16(sum[c], alpha[c])
	}
	return out
}

// UpdateType selects whether Update is applying a move (accumulating
// into valueSum incrementally) or undoing one (restoring valueSum from a
// caller-supplied snapshot instead of recomputing it).
type UpdateType int

const (
	Move UpdateType = iota
	Undo
)

// Update applies placing (Move) or removing (Undo) a stone of color at
// (x, y). For Move it incrementally maintains valueSum by subtracting
// the conv-dirty rectangle's old relu'd contribution, applying every
// touched line cell's shape-index delta, and adding the rectangle's new
// contribution back. For Undo it skips all of that arithmetic and simply
// restores valueSum from backup, which the caller (Evaluator) is
// responsible for having snapshotted before the matching Move. Ported
// from Mix8Accumulator::update<UT>.
func (a *Accumulator) Update(w *Weight, color board.Color, x, y int, ut UpdateType, backup *ValueSum) {
	bs := a.boardSize
	var x0, y0, x1, y1 int

	if ut == Move {
		if x-6+1 > 1 {
			x0 = x - 6 + 1
		} else {
			x0 = 1
		}
		if y-6+1 > 1 {
			y0 = y - 6 + 1
		} else {
			y0 = 1
		}
		if x+6+1 < bs {
			x1 = x + 6 + 1
		} else {
			x1 = bs
		}
		if y+6+1 < bs {
			y1 = y + 6 + 1
		} else {
			y1 = bs
		}

		for yi := y0; yi <= y1; yi++ {
			gi := a.groupIndex[yi-1]
			for xi := x0; xi <= x1; xi++ {
				gj := a.groupIndex[xi-1]
				outerIdx := xi + yi*a.fullBoardSize
				conv := &a.mapAfterDWConv[outerIdx]
				for c := 0; c < FeatureDWConvDim; c++ {
					v := simdops.Relu32(simdops.Widen16to32(conv[c]))
					a.valueSum.Global[c] -= v
					a.valueSum.Group[gi][gj][c] -= v
				}
			}
		}
	}

	var changes [4 * 11]onePointChange
	changeCount := 0
	dPower3 := int32(color) + 1
	if ut == Undo {
		dPower3 = -1 - int32(color)
	}

	bsSub1 := bs - 1
	for dir := 0; dir < 4; dir++ {
		for dist := -5; dist <= 5; dist++ {
			xi := x - dist*dx[dir]
			yi := y - dist*dy[dir]
			// single-branch test for xi < 0 || xi >= bs || yi < 0 || yi >= bs
			if (xi | (bsSub1 - xi) | yi | (bsSub1 - yi)) < 0 {
				continue
			}
			innerIdx := bs*yi + xi
			oldShape := a.indexTable[innerIdx][dir]
			newShape := uint32(int32(oldShape) + dPower3*power3[dist+5])
			a.indexTable[innerIdx][dir] = newShape
			changes[changeCount] = onePointChange{x: xi, y: yi, dir: dir, innerIdx: innerIdx, oldShape: oldShape, newShape: newShape}
			changeCount++
		}
	}

	for i := 0; i < changeCount; i++ {
		c := changes[i]

		newRow := w.MappingRow(c.newShape)
		oldRow := w.MappingRow(c.oldShape)
		mapSumPtr := &a.mapSum[c.innerIdx]

		var oldFeat, newFeat [FeatureDim]int16
		for ch := 0; ch < FeatureDim; ch++ {
			oldFeat[ch] = mapSumPtr[ch]
			newFeat[ch] = mapSumPtr[ch] - oldRow[ch] + newRow[ch]
		}
		*mapSumPtr = newFeat

		oldFeatPRelu := prelu(oldFeat, &w.MapPReluWeight)
		newFeatPRelu := prelu(newFeat, &w.MapPReluWeight)

		for dyi := 0; dyi <= 2; dyi++ {
			for dxi := 0; dxi <= 2; dxi++ {
				outerIdx := (c.y+dyi)*a.fullBoardSize + (c.x + dxi)
				weightRow := &w.FeatureDWConvWeight[8-dyi*3-dxi]
				dst := &a.mapAfterDWConv[outerIdx]
				for ch := 0; ch < FeatureDWConvDim; ch++ {
					dst[ch] = dst[ch] - simdops.MulHRS16(oldFeatPRelu[ch], weightRow[ch]) + simdops.MulHRS16(newFeatPRelu[ch], weightRow[ch])
				}
			}
		}

		if ut == Move {
			gi, gj := a.groupIndex[c.y], a.groupIndex[c.x]
			for ch := FeatureDWConvDim; ch < FeatureDim; ch++ {
				ov := simdops.Widen16to32(oldFeatPRelu[ch])
				nv := simdops.Widen16to32(newFeatPRelu[ch])
				a.valueSum.Global[ch] += nv - ov
				a.valueSum.Group[gi][gj][ch] += nv - ov
			}
		}
	}

	if ut == Move {
		for yi := y0; yi <= y1; yi++ {
			gi := a.groupIndex[yi-1]
			for xi := x0; xi <= x1; xi++ {
				gj := a.groupIndex[xi-1]
				outerIdx := xi + yi*a.fullBoardSize
				conv := &a.mapAfterDWConv[outerIdx]
				for c := 0; c < FeatureDWConvDim; c++ {
					v := simdops.Relu32(simdops.Widen16to32(conv[c]))
					a.valueSum.Global[c] += v
					a.valueSum.Group[gi][gj][c] += v
				}
			}
		}
	} else {
		a.valueSum = *backup
	}

	if ut == Move {
		a.ply++
	} else {
		a.ply--
	}
}

// Snapshot returns a copy of the current value sum, for the evaluator to
// stash before a Move so a later Undo can restore it directly.
func (a *Accumulator) Snapshot() ValueSum {
	return a.valueSum
}

// BucketIndex selects which of a weight's head buckets this accumulator
// currently reads from. The reference implementation's mapping from game
// state to bucket is not present in the retrieved source (it lives in a
// header file outside the filtered set); this module implements it as
// ply modulo the weight's bucket count, documented as a placeholder that
// only needs to be consistent within one weight file, not to match the
// original training-time assignment (see DESIGN.md).
func (a *Accumulator) BucketIndex(numHeadBuckets int32) int {
	if numHeadBuckets <= 0 {
		return 0
	}
	return a.ply % int(numHeadBuckets)
}

func valueSumToFloat(dst []float32, vSum *[FeatureDim]int32, sizeScale, scaleAfterConv, scaleDirect float32) {
	conv := sizeScale * scaleAfterConv
	direct := sizeScale * scaleDirect
	for c := 0; c < FeatureDWConvDim; c++ {
		dst[c] = float32(vSum[c]) * conv
	}
	for c := FeatureDWConvDim; c < FeatureDim; c++ {
		dst[c] = float32(vSum[c]) * direct
	}
}

func linearRow(dst []float32, src []float32, weight [][]float32, bias []float32) {
	simdops.LinearLayer(dst, src, weight, bias, simdops.ActivationNone)
}

func rowsValueGroupByFeature(a *[ValueGroupDim][FeatureDim]float32) [][]float32 {
	out := make([][]float32, ValueGroupDim)
	for i := range out {
		out[i] = a[i][:]
	}
	return out
}

func rowsValueGroupByValueGroup(a *[ValueGroupDim][ValueGroupDim]float32) [][]float32 {
	out := make([][]float32, ValueGroupDim)
	for i := range out {
		out[i] = a[i][:]
	}
	return out
}

func rowsValueDimByLayer0(a *[ValueDim][FeatureDim + 4*ValueGroupDim]float32) [][]float32 {
	out := make([][]float32, ValueDim)
	for i := range out {
		out[i] = a[i][:]
	}
	return out
}

func rowsValueDimByValueDim(a *[ValueDim][ValueDim]float32) [][]float32 {
	out := make([][]float32, ValueDim)
	for i := range out {
		out[i] = a[i][:]
	}
	return out
}

func rowsL3(a *[valueL3OutputDim][ValueDim]float32) [][]float32 {
	out := make([][]float32, valueL3OutputDim)
	for i := range out {
		out[i] = a[i][:]
	}
	return out
}

func rowsPolicyDimByFeature(a *[PolicyDim][FeatureDim]float32) [][]float32 {
	out := make([][]float32, PolicyDim)
	for i := range out {
		out[i] = a[i][:]
	}
	return out
}

func rowsPolicyOutByPolicyDim(a *[4 * PolicyDim][PolicyDim]float32) [][]float32 {
	out := make([][]float32, 4*PolicyDim)
	for i := range out {
		out[i] = a[i][:]
	}
	return out
}

// EvaluateValue runs the float32 value head against the current value
// sums, returning the (win, loss, draw) logits the caller turns into a
// ValueType. Ported from Mix8Accumulator::evaluateValue.
func (a *Accumulator) EvaluateValue(w *Weight) (win, loss, draw float32) {
	bucket := &w.Buckets[a.BucketIndex(w.NumHeadBuckets)]

	var layer0 [FeatureDim + 4*ValueGroupDim]float32
	var group0 [NGroup][NGroup][FeatureDim]float32
	valueSumToFloat(layer0[:FeatureDim], &a.valueSum.Global, a.boardSizeScale, w.ValueSumScaleAfterConv, w.ValueSumScaleDirect)
	for i := 0; i < NGroup; i++ {
		for j := 0; j < NGroup; j++ {
			valueSumToFloat(group0[i][j][:], &a.valueSum.Group[i][j], a.groupSizeScale[i][j], w.ValueSumScaleAfterConv, w.ValueSumScaleDirect)
		}
	}

	var group1 [NGroup][NGroup][ValueGroupDim]float32
	cornerRows := rowsValueGroupByFeature(&bucket.ValueCornerWeight)
	edgeRows := rowsValueGroupByFeature(&bucket.ValueEdgeWeight)
	centerRows := rowsValueGroupByFeature(&bucket.ValueCenterWeight)

	corners := [][2]int{{0, 0}, {0, 2}, {2, 0}, {2, 2}}
	for _, p := range corners {
		i, j := p[0], p[1]
		linearRow(group1[i][j][:], group0[i][j][:], cornerRows, bucket.ValueCornerBias[:])
		simdops.PReLULayer32(group1[i][j][:], group1[i][j][:], bucket.ValueCornerPRelu[:])
	}
	edges := [][2]int{{0, 1}, {1, 0}, {1, 2}, {2, 1}}
	for _, p := range edges {
		i, j := p[0], p[1]
		linearRow(group1[i][j][:], group0[i][j][:], edgeRows, bucket.ValueEdgeBias[:])
		simdops.PReLULayer32(group1[i][j][:], group1[i][j][:], bucket.ValueEdgePRelu[:])
	}
	linearRow(group1[1][1][:], group0[1][1][:], centerRows, bucket.ValueCenterBias[:])
	simdops.PReLULayer32(group1[1][1][:], group1[1][1][:], bucket.ValueCenterPRelu[:])

	quadRows := rowsValueGroupByValueGroup(&bucket.ValueQuadWeight)
	var quad0, quad1 [2][2][ValueGroupDim]float32
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			for c := 0; c < ValueGroupDim; c++ {
				quad0[i][j][c] = group1[i][j][c] + group1[i][j+1][c] + group1[i+1][j][c] + group1[i+1][j+1][c]
			}
			linearRow(quad1[i][j][:], quad0[i][j][:], quadRows, bucket.ValueQuadBias[:])
			simdops.PReLULayer32(quad1[i][j][:], quad1[i][j][:], bucket.ValueQuadPRelu[:])
		}
	}
	copy(layer0[FeatureDim+0*ValueGroupDim:], quad1[0][0][:])
	copy(layer0[FeatureDim+1*ValueGroupDim:], quad1[0][1][:])
	copy(layer0[FeatureDim+2*ValueGroupDim:], quad1[1][0][:])
	copy(layer0[FeatureDim+3*ValueGroupDim:], quad1[1][1][:])

	var layer1, layer2 [ValueDim]float32
	simdops.LinearLayer(layer1[:], layer0[:], rowsValueDimByLayer0(&bucket.ValueL1Weight), bucket.ValueL1Bias[:], simdops.ActivationRelu)
	simdops.LinearLayer(layer2[:], layer1[:], rowsValueDimByValueDim(&bucket.ValueL2Weight), bucket.ValueL2Bias[:], simdops.ActivationRelu)

	var value [valueL3OutputDim]float32
	simdops.LinearLayer(value[:], layer2[:], rowsL3(&bucket.ValueL3Weight), bucket.ValueL3Bias[:], simdops.ActivationNone)

	return value[0], value[1], value[2]
}

// EvaluatePolicy fills every cell pb has flagged for computation with a
// raw policy score. Ported from Mix8Accumulator::evaluatePolicy.
func (a *Accumulator) EvaluatePolicy(w *Weight, pb *PolicyBuffer) {
	bucket := &w.Buckets[a.BucketIndex(w.NumHeadBuckets)]

	var globalValueMean [FeatureDim]float32
	valueSumToFloat(globalValueMean[:], &a.valueSum.Global, a.boardSizeScale, w.ValueSumScaleAfterConv, w.ValueSumScaleDirect)

	var pwconv1 [PolicyDim]float32
	simdops.LinearLayer(pwconv1[:], globalValueMean[:], rowsPolicyDimByFeature(&bucket.PolicyPWConvL1Weight), bucket.PolicyPWConvL1Bias[:], simdops.ActivationNone)
	simdops.PReLULayer32(pwconv1[:], pwconv1[:], bucket.PolicyPWConvL1PRelu[:])

	var pwconv2 [4 * PolicyDim]float32
	simdops.LinearLayer(pwconv2[:], pwconv1[:], rowsPolicyOutByPolicyDim(&bucket.PolicyPWConvL2Weight), bucket.PolicyPWConvL2Bias[:], simdops.ActivationNone)

	for y := 0; y < a.boardSize; y++ {
		for x := 0; x < a.boardSize; x++ {
			innerIdx := a.cellIndex(x, y)
			if !pb.GetComputeFlagIndex(innerIdx) {
				continue
			}
			outerIdx := a.outerIndex(x, y)
			conv := &a.mapAfterDWConv[outerIdx]

			var feat [PolicyDim]float32
			for c := 0; c < PolicyDim; c++ {
				v := conv[c]
				if v < 0 {
					v = 0
				}
				feat[c] = float32(v)
			}

			var policy [4]float32
			for i := 0; i < 4; i++ {
				row := pwconv2[i*PolicyDim : (i+1)*PolicyDim]
				var dot float32
				for c := 0; c < PolicyDim; c++ {
					dot += row[c] * feat[c]
				}
				policy[i] = dot
			}
			for i := 0; i < 4; i++ {
				var weight float32
				if policy[i] < 0 {
					weight = bucket.PolicyOutputNegWeight[i]
				} else {
					weight = bucket.PolicyOutputPosWeight[i]
				}
				policy[i] *= weight
			}
			pb.SetIndex(innerIdx, policy[0]+policy[1]+policy[2]+policy[3]+bucket.PolicyOutputBias)
		}
	}
}
