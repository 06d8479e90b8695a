package ingest

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/kiranshivaraju/lmsbridge/pkg/models"
	"github.com/kiranshivaraju/lmsbridge/pkg/naming"
)

var (
	ErrUnrecognizedColumns = errors.New("could not detect operation from columns")
	ErrMissingColumns      = errors.New("missing required columns")
)

// Column names read by the classifier and the executor.
const (
	ColUsername         = "username"
	ColFirstname        = "firstname"
	ColLastname         = "lastname"
	ColEmail            = "email"
	ColPassword         = "password"
	ColShortname        = "shortname"
	ColFullname         = "fullname"
	ColRole             = "role"
	ColDelete           = "delete"
	ColVisible          = "visible"
	ColCategoryID       = "category_id"
	ColCategoryIDNumber = "category_idnumber"
	ColFormat           = "format"
	ColTemplateCourse   = "templatecourse"
)

// UnrecognizedColumnsError is returned when no rule matches the column set.
type UnrecognizedColumnsError struct {
	Found    []string
	Expected []string
}

func (e *UnrecognizedColumnsError) Error() string {
	return fmt.Sprintf("could not detect operation: found columns [%s]; course creation expects [%s]",
		strings.Join(e.Found, ", "), strings.Join(e.Expected, ", "))
}

func (e *UnrecognizedColumnsError) Unwrap() error { return ErrUnrecognizedColumns }

// MissingColumnsError names the required columns absent for an operation.
type MissingColumnsError struct {
	Kind    models.OperationKind
	Missing []string
}

func (e *MissingColumnsError) Error() string {
	return fmt.Sprintf("operation %s is missing columns: %s", e.Kind, strings.Join(e.Missing, ", "))
}

func (e *MissingColumnsError) Unwrap() error { return ErrMissingColumns }

var createUserColumns = []string{ColUsername, ColFirstname, ColLastname, ColEmail, ColPassword}

// courseCreationColumns is what an unrecognized table is told to provide:
// either the raw academic export or the already-derived LMS columns.
var courseCreationColumns = append(append([]string{}, naming.AcademicColumns...),
	ColShortname, ColFullname, ColCategoryIDNumber)

// Classify decides the single operation a column set represents. Rules are
// checked in priority order and the first match wins.
func Classify(columns []string) (models.OperationKind, error) {
	set := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		set[c] = struct{}{}
	}
	has := func(cols ...string) bool {
		for _, c := range cols {
			if _, ok := set[c]; !ok {
				return false
			}
		}
		return true
	}

	switch {
	case has(ColShortname, ColFullname):
		if !has(ColCategoryIDNumber) && !has(ColCategoryID) {
			return "", &MissingColumnsError{Kind: models.OpCreateCourse, Missing: []string{ColCategoryIDNumber}}
		}
		return models.OpCreateCourse, nil
	case has(ColUsername, ColShortname) && !has(ColDelete) && !has(ColVisible):
		return models.OpEnrollUser, nil
	case has(createUserColumns...):
		return models.OpCreateUser, nil
	case has(ColShortname, ColDelete):
		return models.OpDeleteCourse, nil
	case has(ColUsername, ColDelete):
		return models.OpDeleteUser, nil
	case has(ColShortname, ColVisible):
		return models.OpUpdateVisibility, nil
	}

	if has(ColUsername, ColEmail) {
		var missing []string
		for _, c := range createUserColumns {
			if !has(c) {
				missing = append(missing, c)
			}
		}
		return "", &MissingColumnsError{Kind: models.OpCreateUser, Missing: missing}
	}

	found := append([]string{}, columns...)
	sort.Strings(found)
	return "", &UnrecognizedColumnsError{Found: found, Expected: courseCreationColumns}
}
