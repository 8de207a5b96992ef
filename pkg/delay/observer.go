package delay

import "time"

// Observer receives the outcome of every capture and replay.
// pkg/metrics provides a Prometheus implementation.
type Observer interface {
	ObserveCapture(target, method string, elapsed time.Duration, err error)
	ObservePerform(target, method string, elapsed time.Duration, err error)
}

type nopObserver struct{}

func (nopObserver) ObserveCapture(string, string, time.Duration, error) {}
func (nopObserver) ObservePerform(string, string, time.Duration, error) {}
