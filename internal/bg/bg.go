// Package bg runs functions in the background. Production code uses Async;
// tests and one-shot commands use Sync so every scheduled function has run by
// the time the caller returns.
package bg

// Runner executes fn, either in the calling goroutine or in a new one.
type Runner interface {
	Do(fn func())
}

// Async spawns a goroutine per call.
type Async struct{}

func (Async) Do(fn func()) {
	go fn()
}

// Sync runs fn before returning.
type Sync struct{}

func (Sync) Do(fn func()) {
	fn()
}
