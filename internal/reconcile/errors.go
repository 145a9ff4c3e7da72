package reconcile

import "fmt"

// CommandError is returned when the server rejects a start or stop command.
// The desired tailing state is left unchanged.
type CommandError struct {
	Op  string // "start" or "stop"
	Err error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s tailing: %v", e.Op, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}
