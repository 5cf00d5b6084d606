// Package mock contains a recording implementation of the assertion
// testing interface, used to test the assertion helpers themselves.
package mock

import "fmt"

// TBMock records assertion failures instead of failing a real test.
type TBMock struct {
	ErrMsg    string
	FatalfMsg string
}

// Errorf records the formatted message.
func (tb *TBMock) Errorf(format string, args ...interface{}) {
	tb.ErrMsg = fmt.Sprintf(format, args...)
}

// Fatalf records the formatted message.
func (tb *TBMock) Fatalf(format string, args ...interface{}) {
	tb.FatalfMsg = fmt.Sprintf(format, args...)
}
