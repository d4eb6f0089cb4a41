package procedure

// Number is any type Sum can add.
type Number interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uintptr |
		~float32 | ~float64
}

// All is logical AND.
func All(a, b bool) bool { return a && b }

// Any is logical OR.
func Any(a, b bool) bool { return a || b }

func Sum[N Number](a, b N) N { return a + b }

// Concat appends b to a copy of a, so no response slice is ever aliased.
func Concat[T any](a, b []T) []T {
	out := make([]T, 0, len(a)+len(b))
	out = append(out, a...)
	return append(out, b...)
}

// First keeps the response of the earliest member.
func First[R any](a, _ R) R { return a }

// Last keeps the response of the latest member.
func Last[R any](_, b R) R { return b }
