package core

import "time"

// Event is anything published on a queue's event channel.
type Event interface {
	eventMarker()
}

// JobStarted is emitted when a job starts processing.
type JobStarted struct {
	Job       *Job
	Timestamp time.Time
}

func (*JobStarted) eventMarker() {}

// JobCompleted is emitted when a job completes successfully.
type JobCompleted struct {
	Job       *Job
	Duration  time.Duration
	Timestamp time.Time
}

func (*JobCompleted) eventMarker() {}

// JobFailed is emitted when a job fails permanently.
type JobFailed struct {
	Job       *Job
	Error     error
	Timestamp time.Time
}

func (*JobFailed) eventMarker() {}

// JobRetrying is emitted when a job is retried.
type JobRetrying struct {
	Job       *Job
	Attempt   int
	Error     error
	NextRunAt time.Time
	Timestamp time.Time
}

func (*JobRetrying) eventMarker() {}

// CallDeferred is emitted once a captured method call has been submitted.
// RunAt is nil for calls that run as soon as a worker is free.
type CallDeferred struct {
	JobID     string
	Target    string
	Method    string
	RunAt     *time.Time
	Timestamp time.Time
}

func (*CallDeferred) eventMarker() {}

// Call renders the captured call as Target.method.
func (e *CallDeferred) Call() string {
	return e.Target + "." + e.Method
}

// Scheduled reports whether the call was deferred to a later time.
func (e *CallDeferred) Scheduled() bool {
	return e.RunAt != nil
}
