package containers

import "fmt"

// DrainChan discards every value currently buffered in ch, without
// blocking.
func DrainChan[T any](ch chan T) int {
	n := 0
	for {
		select {
		case <-ch:
			n++
		default:
			return n
		}
	}
}

func MapFn[S interface{ ~[]E }, E any, T any](set S, fn func(E) T) []T {
	res := make([]T, 0, len(set))
	for _, item := range set {
		res = append(res, fn(item))
	}
	return res
}

func StringerStr[T fmt.Stringer](i T) string { return i.String() }

func StrMapper[S interface{ ~[]E }, E fmt.Stringer](set S) []string {
	return MapFn(set, StringerStr[E])
}
