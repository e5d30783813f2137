// Package util collects small helpers shared by the engine packages.
package util

import (
	"fmt"
	"strings"

	"k8s.io/apimachinery/pkg/util/json"
)

// Map applies f to every element: (a -> b) -> [a] -> [b].
func Map[T, U any](f func(T) U, s []T) []U {
	result := make([]U, len(s))
	for i, v := range s {
		result[i] = f(v)
	}
	return result
}

// Canonical returns a deterministic encoding of v. Values that marshal to JSON use the JSON form
// (object keys are sorted by the encoder). Anything else, and structs whose fields are all
// unexported, which JSON would flatten to "{}", use the Go-syntax form.
func Canonical(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil || string(b) == "{}" {
		return []byte(fmt.Sprintf("%#v", v))
	}
	return b
}

// Stringify renders v for logs.
func Stringify(v any) string { return string(Canonical(v)) }

// Join renders a slice of values separated by sep.
func Join[T any](s []T, sep string) string {
	return strings.Join(Map(func(v T) string { return fmt.Sprint(v) }, s), sep)
}
