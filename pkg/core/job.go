package core

import (
	"encoding/json"
	"time"
)

// JobStatus is a job's position in its lifecycle.
type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
	StatusRetrying  JobStatus = "retrying"
)

// Finished reports whether no worker will touch a job in this status again.
func (s JobStatus) Finished() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Job is one stored unit of work. A deferred call is a job whose Args is a
// JSON array holding exactly one YAML call record.
type Job struct {
	ID              string    `gorm:"primaryKey;size:36"`
	Type            string    `gorm:"index;size:255;not null"`
	Args            []byte    `gorm:"type:bytes"`
	Queue           string    `gorm:"index;size:255;default:'default'"`
	Priority        int       `gorm:"index;default:0"`
	Status          JobStatus `gorm:"index;size:20;default:'pending'"`
	Attempt         int       `gorm:"default:0"`
	MaxRetries      int
	LastError       string     `gorm:"type:text"`
	RunAt           *time.Time `gorm:"index"`
	StartedAt       *time.Time
	CompletedAt     *time.Time
	CreatedAt       time.Time  `gorm:"autoCreateTime"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime"`
	LockedBy        string     `gorm:"size:255"`
	LockedUntil     *time.Time `gorm:"index"`
	LastHeartbeatAt *time.Time
	UniqueKey       string `gorm:"index;size:255"`
}

// Payload returns the call record of a deferred-call job. ok is false when
// Args is not a one-element string array.
func (j *Job) Payload() (payload string, ok bool) {
	var args []string
	if err := json.Unmarshal(j.Args, &args); err != nil || len(args) != 1 {
		return "", false
	}
	return args[0], true
}

// Due reports whether a pending job may be picked up at now.
func (j *Job) Due(now time.Time) bool {
	return j.Status == StatusPending && (j.RunAt == nil || !j.RunAt.After(now))
}
