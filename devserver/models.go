package devserver

import (
	"time"

	"github.com/lectio/lectio/client"
)

// backendTime mimics the backend's naive UTC timestamps.
const backendTime = "2006-01-02T15:04:05.000000"

func now() string { return time.Now().UTC().Format(backendTime) }

type user struct {
	client.User
	passwordHash []byte
}

// Stage is one observable processing state of a lecture. Every GET of the
// lecture advances it by one stage until the last one.
type Stage struct {
	Status   client.LectureStatus
	Progress int
	Error    string
}

// DefaultScript is the progression given to uploaded lectures.
var DefaultScript = []Stage{
	{Status: client.StatusPending, Progress: 0},
	{Status: client.StatusProcessing, Progress: 50},
	{Status: client.StatusDone, Progress: 100},
}

type lecture struct {
	ownerID  string
	record   client.Lecture
	script   []Stage
	cursor   int
	lag      int
	analysis *client.Analysis
}

// advance returns the record for the current stage and moves to the next.
func (l *lecture) advance() client.Lecture {
	stage := l.script[min(l.cursor, len(l.script)-1)]
	if l.cursor < len(l.script) {
		l.cursor++
	}
	l.record.Status = stage.Status
	l.record.Progress = stage.Progress
	l.record.ErrorMessage = nil
	if stage.Error != "" {
		msg := stage.Error
		l.record.ErrorMessage = &msg
	}
	return l.record
}

func (l *lecture) done() bool {
	return l.record.Status == client.StatusDone
}
