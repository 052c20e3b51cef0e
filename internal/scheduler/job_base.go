package scheduler

import "github.com/rs/zerolog"

// JobBase provides the logger plumbing shared by jobs
type JobBase struct {
	log zerolog.Logger
}

// SetLogger sets the logger for the job
func (j *JobBase) SetLogger(log zerolog.Logger) {
	j.log = log
}
