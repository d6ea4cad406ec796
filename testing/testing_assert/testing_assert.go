// this code is from https://github.com/brunocalza/go-bustub
// there is license and copyright notice in licenses/go-bustub dir

package testing_assert

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// Assert fails the test if the condition is false.
func Assert(tb testing.TB, condition bool, msg string, v ...interface{}) {
	tb.Helper()
	if !assert.Truef(tb, condition, msg, v...) {
		tb.FailNow()
	}
}

// AssertFalse fails the test if the condition is true.
func AssertFalse(tb testing.TB, condition bool, msg string, v ...interface{}) {
	tb.Helper()
	if !assert.Falsef(tb, condition, msg, v...) {
		tb.FailNow()
	}
}

// Ok fails the test if an err is not nil.
func Ok(tb testing.TB, err error) {
	tb.Helper()
	if !assert.NoError(tb, err) {
		tb.FailNow()
	}
}

// Nok fails the test if an err is nil.
func Nok(tb testing.TB, err error, msg string) {
	tb.Helper()
	if !assert.Error(tb, err, msg) {
		tb.FailNow()
	}
}

// ErrIs fails the test if err does not wrap target.
func ErrIs(tb testing.TB, err error, target error) {
	tb.Helper()
	if !assert.ErrorIs(tb, err, target) {
		tb.FailNow()
	}
}

// Equals fails the test if exp is not equal to act.
func Equals(tb testing.TB, exp, act interface{}) {
	tb.Helper()
	if !assert.Equal(tb, exp, act) {
		tb.FailNow()
	}
}
