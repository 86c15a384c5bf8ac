package core

import "golang.org/x/exp/constraints"

// Mask returns a value with the low width bits set
func Mask[T constraints.Unsigned](width uint) T {
	return T(1)<<width - 1
}

// Field extracts width bits of v starting at shift
func Field[T constraints.Unsigned](v T, shift, width uint) T {
	return (v >> shift) & Mask[T](width)
}

// SetField replaces width bits of v at shift with field
func SetField[T constraints.Unsigned](v T, shift, width uint, field T) T {
	m := Mask[T](width) << shift
	return v&^m | (field<<shift)&m
}

// Bit returns a value with only bit n set
func Bit[T constraints.Unsigned](n uint) T {
	return T(1) << n
}

// DivCeil divides rounding up
func DivCeil[T constraints.Integer](a, b T) T {
	return (a + b - 1) / b
}
