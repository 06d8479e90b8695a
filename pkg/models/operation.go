package models

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownOperation is returned when a string is not one of the six kinds.
var ErrUnknownOperation = errors.New("unknown operation")

// OperationKind is the single bulk operation an uploaded table represents.
type OperationKind string

const (
	OpCreateUser       OperationKind = "CREATE_USER"
	OpEnrollUser       OperationKind = "ENROLL_USER"
	OpCreateCourse     OperationKind = "CREATE_COURSE"
	OpDeleteCourse     OperationKind = "DELETE_COURSE"
	OpDeleteUser       OperationKind = "DELETE_USER"
	OpUpdateVisibility OperationKind = "UPDATE_VISIBILITY"
)

// OperationKinds lists every kind in classifier priority order.
var OperationKinds = []OperationKind{
	OpCreateCourse,
	OpEnrollUser,
	OpCreateUser,
	OpDeleteCourse,
	OpDeleteUser,
	OpUpdateVisibility,
}

// Valid reports whether k is one of the enumerated kinds.
func (k OperationKind) Valid() bool {
	for _, known := range OperationKinds {
		if k == known {
			return true
		}
	}
	return false
}

func (k OperationKind) String() string { return string(k) }

// ParseOperationKind accepts the literal kind name, case-insensitively.
func ParseOperationKind(s string) (OperationKind, error) {
	k := OperationKind(strings.ToUpper(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownOperation, s)
	}
	return k, nil
}
