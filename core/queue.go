package core

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"regexp"
)

// Queue is the name of a task list activity workers poll from.
type Queue string

var (
	_ sql.Scanner   = (*Queue)(nil)
	_ driver.Valuer = Queue("")
)

func (q Queue) Value() (driver.Value, error) {
	return string(q), nil
}

func (q *Queue) Scan(value interface{}) error {
	switch v := value.(type) {
	case string:
		*q = Queue(v)
	case []byte:
		*q = Queue(v)
	default:
		return fmt.Errorf("cannot scan %T into queue", value)
	}

	return nil
}

var validQueueName = regexp.MustCompile(`^[a-zA-Z0-9_-]{4,63}$`)

// ValidQueue ensures that the queue name is valid.
func ValidQueue(q Queue) error {
	if !validQueueName.MatchString(string(q)) {
		return errors.New("invalid queue name")
	}

	return nil
}
