package credits

// cmpOr returns the first of its arguments that is not equal to the zero
// value, or the zero value if none is. It mirrors cmp.Or from Go 1.22.
func cmpOr[T comparable](vals ...T) T {
	var zero T
	for _, v := range vals {
		if v != zero {
			return v
		}
	}
	return zero
}
