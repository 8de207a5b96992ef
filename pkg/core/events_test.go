package core

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEvents_TypeSwitch(t *testing.T) {
	runAt := time.Now().Add(time.Hour)
	job := &Job{ID: "job-1", Type: "DelayedClass"}

	events := []Event{
		&JobStarted{Job: job},
		&JobCompleted{Job: job, Duration: time.Second},
		&JobRetrying{Job: job, Attempt: 1, Error: errors.New("smtp timeout"), NextRunAt: runAt},
		&JobFailed{Job: job, Error: errors.New("bounced")},
		&CallDeferred{JobID: "job-1", Target: "UserMailer", Method: "welcome", RunAt: &runAt},
	}

	var kinds []string
	for _, e := range events {
		switch ev := e.(type) {
		case *JobStarted:
			kinds = append(kinds, "started:"+ev.Job.ID)
		case *JobCompleted:
			kinds = append(kinds, "completed:"+ev.Job.ID)
		case *JobRetrying:
			kinds = append(kinds, "retrying:"+ev.Error.Error())
		case *JobFailed:
			kinds = append(kinds, "failed:"+ev.Error.Error())
		case *CallDeferred:
			kinds = append(kinds, "deferred:"+ev.Call())
		}
	}
	assert.Equal(t, []string{
		"started:job-1",
		"completed:job-1",
		"retrying:smtp timeout",
		"failed:bounced",
		"deferred:UserMailer.welcome",
	}, kinds)
}

func TestCallDeferred_Scheduled(t *testing.T) {
	at := time.Now().Add(time.Minute)
	assert.False(t, (&CallDeferred{}).Scheduled())
	assert.True(t, (&CallDeferred{RunAt: &at}).Scheduled())
}
