package core

import (
	"fmt"
	"time"
)

// YearMonth identifies a calendar month.
type YearMonth struct {
	Year  int
	Month time.Month
}

// NewYearMonth normalises year and month, so NewYearMonth(2025, 13) is 2026-01.
func NewYearMonth(year, month int) YearMonth {
	t := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	return YearMonth{Year: t.Year(), Month: t.Month()}
}

// YearMonthOf returns the calendar month containing t.
func YearMonthOf(t time.Time) YearMonth {
	return YearMonth{Year: t.Year(), Month: t.Month()}
}

// ParseYearMonth parses a "YYYY-MM" month key.
func ParseYearMonth(s string) (YearMonth, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return YearMonth{}, fmt.Errorf("%w: month %q must be YYYY-MM", ErrInvalidFormat, s)
	}
	return YearMonthOf(t), nil
}

// Key returns the "YYYY-MM" document key for the month.
func (ym YearMonth) Key() string {
	return fmt.Sprintf("%04d-%02d", ym.Year, int(ym.Month))
}

func (ym YearMonth) String() string {
	return ym.Key()
}

// AddMonths returns the month n months after ym (n may be negative).
func (ym YearMonth) AddMonths(n int) YearMonth {
	return NewYearMonth(ym.Year, int(ym.Month)+n)
}

func (ym YearMonth) ordinal() int {
	return ym.Year*12 + int(ym.Month) - 1
}

// MarshalText lets YearMonth travel as "YYYY-MM" in JSON and TOML.
func (ym YearMonth) MarshalText() ([]byte, error) {
	return []byte(ym.Key()), nil
}

func (ym *YearMonth) UnmarshalText(b []byte) error {
	parsed, err := ParseYearMonth(string(b))
	if err != nil {
		return err
	}
	*ym = parsed
	return nil
}

// Window is the bounded run of months the program operates over. Months
// inside it are addressed by 1-based position: position 1 is Start and
// position Len() is End.
type Window struct {
	Start YearMonth
	End   YearMonth
}

// DefaultWindow is the pilot period: January to April 2025.
func DefaultWindow() Window {
	return Window{Start: NewYearMonth(2025, 1), End: NewYearMonth(2025, 4)}
}

// NewWindow validates that end is not before start.
func NewWindow(start, end YearMonth) (Window, error) {
	w := Window{Start: start, End: end}
	if err := w.Validate(); err != nil {
		return Window{}, err
	}
	return w, nil
}

func (w Window) Validate() error {
	if w.Start.Month < time.January || w.Start.Month > time.December ||
		w.End.Month < time.January || w.End.Month > time.December {
		return fmt.Errorf("%w: window months must be between 1 and 12", ErrInvalidInput)
	}
	if w.End.ordinal() < w.Start.ordinal() {
		return fmt.Errorf("%w: window end %s is before start %s", ErrInvalidInput, w.End, w.Start)
	}
	return nil
}

// Len is the number of months in the window, both ends included.
func (w Window) Len() int {
	return w.End.ordinal() - w.Start.ordinal() + 1
}

// Contains reports whether pos addresses a month inside the window.
func (w Window) Contains(pos int) bool {
	return pos >= 1 && pos <= w.Len()
}

// At returns the calendar month at position pos. Callers validate pos first.
func (w Window) At(pos int) YearMonth {
	return w.Start.AddMonths(pos - 1)
}

// Key is shorthand for w.At(pos).Key().
func (w Window) Key(pos int) string {
	return w.At(pos).Key()
}

// Clamp caps pos at the window end.
func (w Window) Clamp(pos int) int {
	if pos > w.Len() {
		return w.Len()
	}
	return pos
}

// Current returns the clamped position of now: months past the end clamp
// to the end, months before the start clamp to position 1.
func (w Window) Current(now time.Time) int {
	pos := YearMonthOf(now).ordinal() - w.Start.ordinal() + 1
	if pos < 1 {
		return 1
	}
	return w.Clamp(pos)
}

// Previous returns the month before the current clamped month, wrapping to
// the window end when the current month is the first one.
func (w Window) Previous(now time.Time) int {
	cur := w.Current(now)
	if cur > 1 {
		return cur - 1
	}
	return w.Len()
}
