package mix8

import "math"

// ValueNone marks a ValueType whose integer value was never computed,
// one past the negative end of the legal search-value domain.
const ValueNone int32 = -30001

// ValueEvalMax and ValueEvalMin bound the integer value a static
// evaluation may produce, keeping it well inside the mate-score range so
// a converted win rate can never be mistaken for a forced win.
const (
	ValueEvalMax int32 = 20000
	ValueEvalMin int32 = -20000
)

// valueScalingFactor converts between the win-loss rate in (-1, 1) and
// the integer value domain via a scaled log-odds transform.
const valueScalingFactor = 200.0

// ValueType carries an evaluated position's integer value and, when
// computed from the network head, its win/loss/draw rates. Ported from
// Evaluation::ValueType: softmax over (win, loss, draw) logits yields
// rates in [0,1] that sum to 1; a negative rate means "not computed".
type ValueType struct {
	val                         int32
	winRate, lossRate, drawRate float32
}

// ValueTypeFromValue wraps a bare integer value with no win/loss/draw
// rates attached, the Go analogue of ValueType's Value-only constructor.
func ValueTypeFromValue(v int32) ValueType {
	return ValueType{val: v, winRate: -1, lossRate: -1, drawRate: -1}
}

// NewValueType builds a ValueType from the head network's three logits.
// When applySoftmax is true (the normal case), the logits are turned
// into a probability distribution; when false they are used as already
// being rates (useful for tests feeding in exact values). The integer
// value is derived from the resulting win-loss rate.
func NewValueType(winLogit, lossLogit, drawLogit float32, applySoftmax bool) ValueType {
	v := ValueType{winRate: winLogit, lossRate: lossLogit, drawRate: drawLogit}
	if applySoftmax {
		m := max3(winLogit, lossLogit, drawLogit)
		ew := float32(math.Exp(float64(winLogit - m)))
		el := float32(math.Exp(float64(lossLogit - m)))
		ed := float32(math.Exp(float64(drawLogit - m)))
		sum := ew + el + ed
		v.winRate, v.lossRate, v.drawRate = ew/sum, el/sum, ed/sum
	}
	v.val = winLossRateToValue(v.winRate - v.lossRate)
	return v
}

// winLossRateToValue converts a win-loss rate in (-1, 1) into the
// integer value domain: value = ScalingFactor * ln((1+wlr)/(1-wlr)),
// clamped to the static-eval bounds.
func winLossRateToValue(wlr float32) int32 {
	if wlr >= 1 {
		return ValueEvalMax
	}
	if wlr <= -1 {
		return ValueEvalMin
	}
	v := int32(valueScalingFactor * math.Log(float64(1+wlr)/float64(1-wlr)))
	if v > ValueEvalMax {
		return ValueEvalMax
	}
	if v < ValueEvalMin {
		return ValueEvalMin
	}
	return v
}

func max3(a, b, c float32) float32 {
	m := a
	if b > m {
		m = b
	}
	if c > m {
		m = c
	}
	return m
}

// HasWinLossRate reports whether Win/Loss were computed.
func (v ValueType) HasWinLossRate() bool { return v.winRate >= 0 && v.lossRate >= 0 }

// HasDrawRate reports whether Draw was computed.
func (v ValueType) HasDrawRate() bool { return v.drawRate >= 0 }

// Value returns the integer search value this evaluation converted to.
func (v ValueType) Value() int32 { return v.val }

// Win, Loss, Draw return the three rates.
func (v ValueType) Win() float32  { return v.winRate }
func (v ValueType) Loss() float32 { return v.lossRate }
func (v ValueType) Draw() float32 { return v.drawRate }

// WinLossRate returns the net win-loss rate, win()-loss().
func (v ValueType) WinLossRate() float32 { return v.winRate - v.lossRate }

// ValueOfDrawWinRate folds a separately-estimated draw outcome's winning
// rate into this value, redistributing drawRate's mass between win and
// loss according to drawWinRate while shrinking drawRate to the given
// residual. Ported from ValueType::valueOfDrawWinRate.
func (v ValueType) ValueOfDrawWinRate(drawWinRate float32, newDrawRate float32) ValueType {
	shifted := v.drawRate - newDrawRate
	if shifted < 0 {
		shifted = 0
	}
	out := ValueType{
		winRate:  v.winRate + shifted*drawWinRate,
		lossRate: v.lossRate + shifted*(1-drawWinRate),
		drawRate: newDrawRate,
	}
	out.val = winLossRateToValue(out.winRate - out.lossRate)
	return out
}

// PolicyScoreScale and PolicyScoreBias convert a float policy value into
// the integer score space move ordering uses, matching
// PolicyBuffer::ScoreScale/ScoreBias.
const (
	PolicyScoreScale float32 = 32
	PolicyScoreBias  int32   = 300
)

// PolicyBuffer holds one float32 policy value per board cell plus a
// per-cell compute flag, so evaluatePolicy only has to fill in cells the
// caller actually cares about (candidate moves, or every empty cell).
// Ported from Evaluation::PolicyBuffer.
type PolicyBuffer struct {
	width, height int
	scoreBias     int32
	computeFlag   []bool
	policy        []float32
}

// NewPolicyBuffer allocates a policy buffer sized for a width x height
// board, all compute flags cleared.
func NewPolicyBuffer(width, height int) *PolicyBuffer {
	n := width * height
	return &PolicyBuffer{
		width:       width,
		height:      height,
		scoreBias:   PolicyScoreBias,
		computeFlag: make([]bool, n),
		policy:      make([]float32, n),
	}
}

func (p *PolicyBuffer) index(x, y int) int { return p.width*y + x }

// At returns the policy value at (x, y).
func (p *PolicyBuffer) At(x, y int) float32 { return p.policy[p.index(x, y)] }

// Set writes the policy value at (x, y).
func (p *PolicyBuffer) Set(x, y int, v float32) { p.policy[p.index(x, y)] = v }

// AtIndex/SetIndex access the buffer by flat cell index, used by the
// evaluator's inner loops which already track a running index.
func (p *PolicyBuffer) AtIndex(i int) float32     { return p.policy[i] }
func (p *PolicyBuffer) SetIndex(i int, v float32) { p.policy[i] = v }

// SetComputeFlag marks whether (x, y) should be filled in by
// evaluatePolicy.
func (p *PolicyBuffer) SetComputeFlag(x, y int, enabled bool) {
	p.computeFlag[p.index(x, y)] = enabled
}

// SetComputeFlagIndex is SetComputeFlag by flat cell index.
func (p *PolicyBuffer) SetComputeFlagIndex(i int, enabled bool) { p.computeFlag[i] = enabled }

// GetComputeFlag reports whether (x, y) is marked for computation.
func (p *PolicyBuffer) GetComputeFlag(x, y int) bool { return p.computeFlag[p.index(x, y)] }

// GetComputeFlagIndex is GetComputeFlag by flat cell index.
func (p *PolicyBuffer) GetComputeFlagIndex(i int) bool { return p.computeFlag[i] }

// SetComputeFlagForAll marks every cell in the buffer for computation, the
// simplified Go analogue of setComputeFlagForAllEmptyCell/
// setComputeFlagForAllCandidateCell (board-aware candidate filtering is a
// search-layer concern outside this module's scope; callers that need it
// filter with SetComputeFlag per cell themselves).
func (p *PolicyBuffer) SetComputeFlagForAll(enabled bool) {
	for i := range p.computeFlag {
		p.computeFlag[i] = enabled
	}
}

// SetScoreBias sets the integer score bias added on top of PolicyScoreBias.
func (p *PolicyBuffer) SetScoreBias(bias int32) { p.scoreBias = PolicyScoreBias + bias }

// Score converts the policy value at flat index i into the integer score
// space: value*ScoreScale truncated toward zero, plus scoreBias.
func (p *PolicyBuffer) Score(i int) int32 {
	return int32(p.policy[i]*PolicyScoreScale) + p.scoreBias
}

// ApplySoftmax normalizes every computed policy value into a probability
// distribution over the computed cells, matching PolicyBuffer::applySoftmax.
func (p *PolicyBuffer) ApplySoftmax() {
	m := float32(math.Inf(-1))
	any := false
	for i, flag := range p.computeFlag {
		if flag {
			any = true
			if p.policy[i] > m {
				m = p.policy[i]
			}
		}
	}
	if !any {
		return
	}
	var sum float32
	for i, flag := range p.computeFlag {
		if flag {
			e := float32(math.Exp(float64(p.policy[i] - m)))
			p.policy[i] = e
			sum += e
		}
	}
	if sum == 0 {
		return
	}
	for i, flag := range p.computeFlag {
		if flag {
			p.policy[i] /= sum
		}
	}
}
