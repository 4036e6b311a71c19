package lifecycle

import (
	"fmt"
	"strings"
)

// ConnectionError reports that the bridge could not spawn or reach the
// editor (§7 taxonomy). Causes lists the likely-cause bullets required
// by §8's boundary-behavior test ("ConnectionError with a four-bullet
// diagnostic").
type ConnectionError struct {
	Op     string
	Causes []string
	Err    error
}

func (e *ConnectionError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "lifecycle: %s", e.Op)
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	for _, c := range e.Causes {
		fmt.Fprintf(&b, "\n  - %s", c)
	}
	return b.String()
}

func (e *ConnectionError) Unwrap() error { return e.Err }

func debugPortTimeoutError(port int, err error) *ConnectionError {
	return &ConnectionError{
		Op:  fmt.Sprintf("remote-debug port %d never opened", port),
		Err: err,
		Causes: []string{
			"the editor executable path is wrong or not installed",
			"another process is already bound to the allocated port",
			"the editor crashed during startup (check stderr capture)",
			"a security policy (sandbox, AV) is blocking the child process",
		},
	}
}
