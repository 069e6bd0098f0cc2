package repositories

import (
	"fmt"
	"strings"
)

// UserError is one user-facing rejection the platform reports for a mutation.
type UserError struct {
	Field   []string
	Message string
}

// UserErrorList is returned when the platform accepts the request transport
// but rejects the mutation itself. Op names the remote operation so engine
// logs stay attributable.
type UserErrorList struct {
	Op     string
	Errors []UserError
}

// Error implements error.
func (e *UserErrorList) Error() string {
	if e == nil {
		return "platform rejected request"
	}
	return fmt.Sprintf("%s rejected: %s", e.Op, strings.Join(e.Messages(), "; "))
}

// Messages flattens the rejections into human-readable strings ready for a
// response error list.
func (e *UserErrorList) Messages() []string {
	if e == nil || len(e.Errors) == 0 {
		return nil
	}
	out := make([]string, 0, len(e.Errors))
	for _, ue := range e.Errors {
		msg := strings.TrimSpace(ue.Message)
		if msg == "" {
			continue
		}
		if len(ue.Field) > 0 {
			msg = fmt.Sprintf("%s: %s", strings.Join(ue.Field, "."), msg)
		}
		out = append(out, msg)
	}
	return out
}
