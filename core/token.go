package core

import "github.com/google/uuid"

// TaskToken is the single-use capability handed out with a claimed task. Reporting a result
// with it retires the task; afterwards the token is rejected.
type TaskToken string

func NewTaskToken() TaskToken {
	return TaskToken(uuid.NewString())
}

func (t TaskToken) String() string {
	return string(t)
}
