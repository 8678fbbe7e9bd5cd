package attendance

import "fmt"

// InvariantViolation reports malformed input to the reconciliation core,
// such as a roster carrying the same student id twice.
type InvariantViolation struct {
	Rule   string
	Detail string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("attendance invariant violated (%s): %s", e.Rule, e.Detail)
}

func violation(rule, format string, args ...any) error {
	return &InvariantViolation{Rule: rule, Detail: fmt.Sprintf(format, args...)}
}
