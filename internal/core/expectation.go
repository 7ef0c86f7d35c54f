package core

import "fmt"

// DefaultUnitAmount is the monthly saving expected per child.
var DefaultUnitAmount = Units(1000)

// ExpectedSavings returns unit × numChildren.
func ExpectedSavings(unit Money, numChildren int) (Money, error) {
	if numChildren < 0 {
		return Money{}, fmt.Errorf("%w: number of children must be a non-negative integer, got %d", ErrInvalidInput, numChildren)
	}
	return unit.Times(numChildren), nil
}

// MilestoneFlag is 1 when saved meets or exceeds expected, else 0.
func MilestoneFlag(saved, expected Money) int {
	if saved.Cents >= expected.Cents {
		return 1
	}
	return 0
}
