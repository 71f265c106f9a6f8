package domain

import "math/big"

// JobState is the lifecycle stage of a posted job.
type JobState string

const (
	JobStateAvailable JobState = "available"
	JobStateTaken     JobState = "taken"
	JobStateFinished  JobState = "finished"
)

// jobNext maps each state to the only state it may move to.
var jobNext = map[JobState]JobState{
	JobStateAvailable: JobStateTaken,
	JobStateTaken:     JobStateFinished,
}

// CanAdvance reports whether a job may move from one state to another.
// Jobs only move forward: Available -> Taken -> Finished.
func (s JobState) CanAdvance(to JobState) bool {
	next, ok := jobNext[s]
	return ok && next == to
}

// Job is the projected state of one job posting.
type Job struct {
	ID          string   `json:"id"`
	Author      Address  `json:"author"`
	Description string   `json:"description"`
	Price       *big.Int `json:"price"`
	State       JobState `json:"state"`
	Worker      Address  `json:"worker,omitempty"`
	PricePaid   *big.Int `json:"price_paid,omitempty"`

	AddedAt    Position  `json:"added_at"`
	TakenAt    *Position `json:"taken_at,omitempty"`
	FinishedAt *Position `json:"finished_at,omitempty"`
}

// HasWorker reports whether a worker has been recorded for the job.
func (j Job) HasWorker() bool {
	return j.Worker != ""
}
