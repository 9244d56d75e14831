package mix8

import (
	"fmt"

	"github.com/nguyencongminh090/Rapfi-engine/internal/board"
	weightpkg "github.com/nguyencongminh090/Rapfi-engine/internal/weight"
)

// archHashBase seeds the architecture hash every weight file's header is
// checked against; it is XORed with the bit-packed layer dimensions the
// same way Mix8Evaluator's header validator does, so a weight file built
// for different FeatureDim/FeatureDWConvDim/etc. is rejected outright
// rather than silently misinterpreted.
const archHashBase uint32 = 0xa3f17c00

func archHash() uint32 {
	return archHashBase ^ uint32((FeatureDWConvDim/8)<<26|(ValueGroupDim/8)<<20|(ValueDim/8)<<14|(PolicyDim/8)<<8|(FeatureDim/8))
}

// moveCache records one pending board change — a stone appearing or
// disappearing at (x, y) — that has not yet been folded into an
// accumulator. Ported from Mix8Evaluator::MoveCache.
type moveCache struct {
	oldColor, newColor board.Color
	x, y               int
}

func isContraryMove(a, b moveCache) bool {
	return a.x == b.x && a.y == b.y && a.oldColor == b.newColor && a.newColor == b.oldColor
}

// opponentColor swaps Black/White and leaves Empty/Wall unchanged,
// mirroring the reference's opponentMap lookup (reindexed to this
// module's board.Color ordering).
func opponentColor(c board.Color) board.Color {
	switch c {
	case board.Black:
		return board.White
	case board.White:
		return board.Black
	default:
		return c
	}
}

// Evaluator is a Mix8 evaluation session for one fixed board size and
// rule: two perspective accumulators (one computed from BLACK's feature
// mapping, one from WHITE's), each fed through a deferred move cache so
// that a move immediately followed by its own undo cancels out and costs
// no accumulator update; every other pending change is still applied as
// one incremental update when the next evaluation drains the cache.
// Ported from Mix8Evaluator.
type Evaluator struct {
	boardSize int
	rule      board.Rule

	weight [2]*Weight // indexed by board.Color (Black, White)
	reg    *weightpkg.Registry[Weight]

	accumulator [2]*Accumulator
	moveCache   [2][]moveCache
	// valueSumHistory[side] is a stack of ValueSum snapshots taken just
	// before each pending MOVE update for side was applied, so the
	// matching UNDO can restore exactly instead of recomputing.
	valueSumHistory [2][]ValueSum
}

// HeaderValidator builds the weight.HeaderValidator this evaluator's
// weight files must satisfy: matching architecture hash, and support for
// rule and boardSize.
func HeaderValidator(rule board.Rule, boardSize int) weightpkg.HeaderValidator {
	want := archHash()
	return func(h weightpkg.StandardHeader) error {
		if h.ArchHash != want {
			return &weightpkg.IncompatibleWeightError{Message: "mix8 architecture mismatch"}
		}
		if !h.SupportsRule(rule) {
			return &weightpkg.UnsupportedRuleError{Rule: rule}
		}
		if !h.SupportsBoardSize(boardSize) {
			return &weightpkg.UnsupportedBoardSizeError{BoardSize: boardSize}
		}
		return nil
	}
}

// NewLoader composes the standard Mix8 weight file loader: zstd envelope,
// standard header + validation, then the raw Mix8 binary body.
func NewLoader(rule board.Rule, boardSize int) weightpkg.Loader[Weight] {
	headerLoader := &weightpkg.StandardHeaderWrapper[Weight]{
		Inner:    mix8BinaryLoader{},
		Validate: HeaderValidator(rule, boardSize),
	}
	return &weightpkg.CompressedWrapper[Weight]{Inner: headerLoader}
}

// NewEvaluator opens blackWeightPath/whiteWeightPath through reg (sharing
// already-loaded weights across evaluators the way the reference's
// process-wide Mix8WeightRegistry does) and builds an Evaluator for
// boardSize under rule. boardSize must be at least 6, the smallest size
// the four-direction eleven-cell shape index can be computed for without
// every cell colliding with the opposite wall.
func NewEvaluator(reg *weightpkg.Registry[Weight], boardSize int, rule board.Rule, blackWeightPath, whiteWeightPath string) (*Evaluator, error) {
	if boardSize < 6 {
		return nil, fmt.Errorf("mix8: board size %d is below the minimum supported size 6: %w", boardSize,
			&weightpkg.UnsupportedBoardSizeError{BoardSize: boardSize})
	}

	loader := NewLoader(rule, boardSize)
	blackWeight, err := reg.Load(blackWeightPath, loader)
	if err != nil {
		return nil, fmt.Errorf("mix8: loading black weight: %w", err)
	}
	whiteWeight, err := reg.Load(whiteWeightPath, loader)
	if err != nil {
		reg.Unload(blackWeight)
		return nil, fmt.Errorf("mix8: loading white weight: %w", err)
	}

	e := &Evaluator{
		boardSize: boardSize,
		rule:      rule,
		reg:       reg,
	}
	e.weight[board.Black] = blackWeight
	e.weight[board.White] = whiteWeight
	e.accumulator[board.Black] = NewAccumulator(boardSize)
	e.accumulator[board.White] = NewAccumulator(boardSize)

	nCells := boardSize * boardSize
	e.moveCache[board.Black] = make([]moveCache, 0, nCells)
	e.moveCache[board.White] = make([]moveCache, 0, nCells)
	e.valueSumHistory[board.Black] = make([]ValueSum, 0, nCells)
	e.valueSumHistory[board.White] = make([]ValueSum, 0, nCells)

	e.InitEmptyBoard()
	return e, nil
}

// Close releases this evaluator's reference on its two weight files.
func (e *Evaluator) Close() {
	e.reg.Unload(e.weight[board.Black])
	e.reg.Unload(e.weight[board.White])
}

// InitEmptyBoard resets both accumulators and drops any pending cache
// entries, matching Mix8Evaluator::initEmptyBoard.
func (e *Evaluator) InitEmptyBoard() {
	e.moveCache[board.Black] = e.moveCache[board.Black][:0]
	e.moveCache[board.White] = e.moveCache[board.White][:0]
	e.valueSumHistory[board.Black] = e.valueSumHistory[board.Black][:0]
	e.valueSumHistory[board.White] = e.valueSumHistory[board.White][:0]
	e.accumulator[board.Black].Clear(e.weight[board.Black])
	e.accumulator[board.White].Clear(e.weight[board.White])
}

// BeforeMove records that stm is about to place a stone at (x, y).
// Ported from Mix8Evaluator::beforeMove.
func (e *Evaluator) BeforeMove(stm board.Color, x, y int) {
	e.addCache(stm, x, y, false)
}

// AfterMove is a no-op: Mix8 folds a placed stone into the accumulator
// lazily, from the cache BeforeMove recorded, the next time the board is
// evaluated — not eagerly when the move is made.
func (e *Evaluator) AfterMove(board.Color, int, int) {}

// BeforeUndo is a no-op for the same reason AfterMove is: undoing a
// pending (never-evaluated) move cancels its cache entry instead.
func (e *Evaluator) BeforeUndo(board.Color, int, int) {}

// AfterUndo records that stm's stone at (x, y) has just been removed from
// the board. Ported from Mix8Evaluator::afterUndo.
func (e *Evaluator) AfterUndo(stm board.Color, x, y int) {
	e.addCache(stm, x, y, true)
}

// SyncWithBoard resets the evaluator and replays b's current contents.
// Shape-index contributions are purely additive per stone, so unlike the
// reference's move-history replay this can add every occupied cell in
// any order and reach the same accumulator state.
func (e *Evaluator) SyncWithBoard(b board.Board) {
	e.InitEmptyBoard()
	size := b.BoardSize()
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			c := b.At(x, y)
			if c == board.Black || c == board.White {
				e.BeforeMove(c, x, y)
			}
		}
	}
}

// addCache appends a pending change to both color's move caches (the
// opponent's cache is kept in sync too since its accumulator also needs
// to eventually see the change, just color-flipped when drained — see
// clearCache), cancelling the previous entry at the same cell if this one
// exactly reverses it. Ported from Mix8Evaluator::addCache.
func (e *Evaluator) addCache(stm board.Color, x, y int, isUndo bool) {
	oldColor, newColor := board.Empty, stm
	if isUndo {
		oldColor, newColor = stm, board.Empty
	}
	entry := moveCache{oldColor: oldColor, newColor: newColor, x: x, y: y}

	for _, side := range [2]board.Color{board.Black, board.White} {
		q := e.moveCache[side]
		if len(q) == 0 || !isContraryMove(entry, q[len(q)-1]) {
			e.moveCache[side] = append(q, entry)
		} else {
			e.moveCache[side] = q[:len(q)-1]
		}
	}
}

// clearCache drains side's pending move cache into its accumulator,
// remapping colors for WHITE's perspective (its accumulator is built
// from WHITE's own point of view, so BLACK/WHITE swap relative to the
// cache entries, which are always recorded from BLACK's perspective
// naming). Ported from Mix8Evaluator::clearCache.
func (e *Evaluator) clearCache(side board.Color) {
	weight := e.weight[side]
	acc := e.accumulator[side]

	for _, mc := range e.moveCache[side] {
		if side == board.White {
			mc.oldColor = opponentColor(mc.oldColor)
			mc.newColor = opponentColor(mc.newColor)
		}

		if mc.oldColor == board.Empty {
			e.valueSumHistory[side] = append(e.valueSumHistory[side], acc.Snapshot())
			acc.Update(weight, mc.newColor, mc.x, mc.y, Move, nil)
		} else {
			n := len(e.valueSumHistory[side])
			backup := &e.valueSumHistory[side][n-1]
			acc.Update(weight, mc.oldColor, mc.x, mc.y, Undo, backup)
			e.valueSumHistory[side] = e.valueSumHistory[side][:n-1]
		}
	}
	e.moveCache[side] = e.moveCache[side][:0]
}

// EvaluateValue drains the pending cache for stm's perspective and
// returns the resulting win/loss/draw estimate. Ported from
// Mix8Evaluator::evaluateValue.
func (e *Evaluator) EvaluateValue(stm board.Color) ValueType {
	e.clearCache(stm)
	win, loss, draw := e.accumulator[stm].EvaluateValue(e.weight[stm])
	return NewValueType(win, loss, draw, true)
}

// EvaluatePolicy drains the pending cache for stm's perspective and fills
// every flagged cell of pb with a policy score. Ported from
// Mix8Evaluator::evaluatePolicy.
func (e *Evaluator) EvaluatePolicy(stm board.Color, pb *PolicyBuffer) {
	e.clearCache(stm)
	e.accumulator[stm].EvaluatePolicy(e.weight[stm], pb)
}
