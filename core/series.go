package core

import "golang.org/x/exp/constraints"

// Series is a time-ordered sequence of values.
type Series[T constraints.Ordered] []T

// Values returns the underlying slice.
func (s Series[T]) Values() []T { return s }

// Length returns the number of values in the series.
func (s Series[T]) Length() int { return len(s) }

// Last returns the value at a position from the end; position 0 is the
// most recent value.
func (s Series[T]) Last(position int) T {
	return s[len(s)-1-position]
}

// LastValues returns the trailing 'size' values, or the whole series if
// it is shorter.
func (s Series[T]) LastValues(size int) Series[T] {
	if l := len(s); l > size {
		return s[l-size:]
	}
	return s
}
