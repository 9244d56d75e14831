package weight

import (
	"fmt"

	"github.com/nguyencongminh090/Rapfi-engine/internal/board"
)

// IncompatibleWeightError is raised when a weight file's architecture
// hash does not match the evaluator that is trying to load it.
type IncompatibleWeightError struct {
	Message string
}

func (e *IncompatibleWeightError) Error() string {
	if e.Message != "" {
		return "incompatible weight file: " + e.Message
	}
	return "incompatible weight file"
}

// UnsupportedRuleError is raised when a weight file does not support the
// rule the evaluator was constructed for.
type UnsupportedRuleError struct {
	Rule board.Rule
}

func (e *UnsupportedRuleError) Error() string {
	return fmt.Sprintf("unsupported rule: %v", e.Rule)
}

// UnsupportedBoardSizeError is raised when a weight file does not
// support the board size the evaluator was constructed for.
type UnsupportedBoardSizeError struct {
	BoardSize int
}

func (e *UnsupportedBoardSizeError) Error() string {
	return fmt.Sprintf("unsupported board size: %d", e.BoardSize)
}
