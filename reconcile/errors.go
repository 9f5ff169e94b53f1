package reconcile

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidParameter  = errors.New("invalid parameter")
	ErrResourceNotFound  = errors.New("resource not found")
	ErrParentNotResolved = errors.New("parent not resolved")
	ErrDuplicateEntity   = errors.New("duplicate entity")
)

// ActionError is a failure of one resource in a pass. It names the resource and
// the action that was attempted; Action is empty when the resource could not be
// resolved.
type ActionError struct {
	Kind          string
	FullName      string
	QualifiedName string
	Action        Action
	Err           error
}

func (e *ActionError) Error() string {
	step := "resolve"
	if e.Action != "" {
		step = string(e.Action)
	}
	if e.QualifiedName != "" {
		return fmt.Sprintf("%s %s (%s): %s: %v", e.Kind, e.FullName, e.QualifiedName, step, e.Err)
	}
	return fmt.Sprintf("%s %s: %s: %v", e.Kind, e.FullName, step, e.Err)
}

func (e *ActionError) Unwrap() error {
	return e.Err
}
