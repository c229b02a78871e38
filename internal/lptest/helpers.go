// Package lptest holds small test assertion helpers, in the shape used
// throughout the teacher corpus (OK/Equals/Assert) rather than a third-party
// assertion library.
package lptest

import (
	"path/filepath"
	"reflect"
	"runtime"
	"testing"
)

// Assert fails the test if the condition is false.
func Assert(tb testing.TB, condition bool, msg string, v ...interface{}) {
	tb.Helper()
	if !condition {
		_, file, line, _ := runtime.Caller(1)
		file = filepath.Base(file)
		tb.Fatalf("%s:%d: "+msg, append([]interface{}{file, line}, v...)...)
	}
}

// OK fails the test if an err is not nil.
func OK(tb testing.TB, err error) {
	tb.Helper()
	if err != nil {
		_, file, line, _ := runtime.Caller(1)
		file = filepath.Base(file)
		tb.Fatalf("%s:%d: unexpected error: %v", file, line, err)
	}
}

// Equals fails the test if want is not equal to got.
func Equals(tb testing.TB, want, got interface{}) {
	tb.Helper()
	if !reflect.DeepEqual(want, got) {
		_, file, line, _ := runtime.Caller(1)
		file = filepath.Base(file)
		tb.Fatalf("%s:%d: want %#v, got %#v", file, line, want, got)
	}
}
