package batch

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/kiranshivaraju/lmsbridge/internal/ingest"
	"github.com/kiranshivaraju/lmsbridge/internal/moodle"
	"github.com/kiranshivaraju/lmsbridge/pkg/models"
)

// ErrInvalidRecord is returned when a row cannot be decoded into the record
// its operation requires.
var ErrInvalidRecord = errors.New("invalid record")

// Optional course columns passed through to the LMS as-is.
const (
	colIDNumber  = "idnumber"
	colSummary   = "summary"
	colStartDate = "startdate"
	colEndDate   = "enddate"
)

// Record is one decoded row. Each operation kind has its own record type.
type Record interface {
	Kind() models.OperationKind
	// Identifier is the row's natural key as written to the audit trail.
	Identifier() string
}

type CreateUserRecord struct {
	Username  string
	Password  string
	Firstname string
	Lastname  string
	Email     string
}

func (r CreateUserRecord) Kind() models.OperationKind { return models.OpCreateUser }
func (r CreateUserRecord) Identifier() string         { return r.Username }

type EnrollUserRecord struct {
	Username  string
	Shortname string
	// Role is a Moodle role archetype such as "student".
	Role string
}

func (r EnrollUserRecord) Kind() models.OperationKind { return models.OpEnrollUser }
func (r EnrollUserRecord) Identifier() string         { return r.Username + " -> " + r.Shortname }

type CreateCourseRecord struct {
	Shortname      string
	Fullname       string
	Category       moodle.CategoryRef
	Format         string
	IDNumber       string
	Summary        string
	TemplateCourse string
	StartDate      *time.Time
	EndDate        *time.Time
}

func (r CreateCourseRecord) Kind() models.OperationKind { return models.OpCreateCourse }
func (r CreateCourseRecord) Identifier() string         { return r.Shortname }

type DeleteCourseRecord struct {
	Shortname string
	Delete    int
}

func (r DeleteCourseRecord) Kind() models.OperationKind { return models.OpDeleteCourse }
func (r DeleteCourseRecord) Identifier() string         { return r.Shortname }

type DeleteUserRecord struct {
	Username string
	Delete   int
}

func (r DeleteUserRecord) Kind() models.OperationKind { return models.OpDeleteUser }
func (r DeleteUserRecord) Identifier() string         { return r.Username }

type UpdateVisibilityRecord struct {
	Shortname string
	Visible   int
}

func (r UpdateVisibilityRecord) Kind() models.OperationKind { return models.OpUpdateVisibility }
func (r UpdateVisibilityRecord) Identifier() string         { return r.Shortname }

// DecodeRecord converts a table row into the record for op. hasRole reports
// whether the table carries a role column at all.
func DecodeRecord(op models.OperationKind, row ingest.Row, hasRole bool) (Record, error) {
	switch op {
	case models.OpCreateUser:
		r := CreateUserRecord{
			Username:  row[ingest.ColUsername],
			Password:  row[ingest.ColPassword],
			Firstname: row[ingest.ColFirstname],
			Lastname:  row[ingest.ColLastname],
			Email:     row[ingest.ColEmail],
		}
		return r, requireFields(map[string]string{
			ingest.ColUsername: r.Username, ingest.ColFirstname: r.Firstname,
			ingest.ColLastname: r.Lastname, ingest.ColEmail: r.Email,
		})

	case models.OpEnrollUser:
		role := moodle.RoleStudent
		if hasRole {
			role = moodle.ResolveRole(row[ingest.ColRole])
		}
		r := EnrollUserRecord{
			Username:  row[ingest.ColUsername],
			Shortname: row[ingest.ColShortname],
			Role:      role,
		}
		return r, requireFields(map[string]string{ingest.ColUsername: r.Username, ingest.ColShortname: r.Shortname})

	case models.OpCreateCourse:
		return decodeCreateCourse(row)

	case models.OpDeleteCourse:
		r := DeleteCourseRecord{Shortname: row[ingest.ColShortname], Delete: flag(row[ingest.ColDelete], 0)}
		return r, requireFields(map[string]string{ingest.ColShortname: r.Shortname})

	case models.OpDeleteUser:
		r := DeleteUserRecord{Username: row[ingest.ColUsername], Delete: flag(row[ingest.ColDelete], 0)}
		return r, requireFields(map[string]string{ingest.ColUsername: r.Username})

	case models.OpUpdateVisibility:
		r := UpdateVisibilityRecord{Shortname: row[ingest.ColShortname], Visible: flag(row[ingest.ColVisible], 1)}
		return r, requireFields(map[string]string{ingest.ColShortname: r.Shortname})
	}
	return nil, fmt.Errorf("%w: %q", models.ErrUnknownOperation, op)
}

func decodeCreateCourse(row ingest.Row) (Record, error) {
	r := CreateCourseRecord{
		Shortname:      row[ingest.ColShortname],
		Fullname:       row[ingest.ColFullname],
		Format:         row[ingest.ColFormat],
		IDNumber:       row[colIDNumber],
		Summary:        row[colSummary],
		TemplateCourse: row[ingest.ColTemplateCourse],
	}
	if err := requireFields(map[string]string{ingest.ColShortname: r.Shortname, ingest.ColFullname: r.Fullname}); err != nil {
		return r, err
	}

	if raw := row[ingest.ColCategoryID]; raw != "" {
		id, err := parseWholeNumber(raw)
		if err != nil || id <= 0 {
			return r, fmt.Errorf("%w: category_id %q is not a positive integer", ErrInvalidRecord, raw)
		}
		r.Category.ID = id
	} else if idnumber := row[ingest.ColCategoryIDNumber]; idnumber != "" {
		r.Category.IDNumber = idnumber
	} else {
		return r, fmt.Errorf("%w: missing category", ErrInvalidRecord)
	}

	var err error
	if r.StartDate, err = parseDate(row[colStartDate]); err != nil {
		return r, fmt.Errorf("%w: startdate: %v", ErrInvalidRecord, err)
	}
	if r.EndDate, err = parseDate(row[colEndDate]); err != nil {
		return r, fmt.Errorf("%w: enddate: %v", ErrInvalidRecord, err)
	}
	return r, nil
}

// rowIdentifier is the best-effort natural key of a row that failed to decode.
func rowIdentifier(op models.OperationKind, row ingest.Row) string {
	switch op {
	case models.OpEnrollUser:
		return row[ingest.ColUsername] + " -> " + row[ingest.ColShortname]
	case models.OpCreateUser, models.OpDeleteUser:
		return row[ingest.ColUsername]
	default:
		return row[ingest.ColShortname]
	}
}

func requireFields(fields map[string]string) error {
	var missing []string
	for name, v := range fields {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return fmt.Errorf("%w: empty %s", ErrInvalidRecord, strings.Join(missing, ", "))
}

func flag(s string, def int) int {
	n, err := parseWholeNumber(s)
	if err != nil {
		return def
	}
	return int(n)
}

func parseWholeNumber(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != float64(int64(f)) {
		return 0, fmt.Errorf("not a whole number: %q", s)
	}
	return int64(f), nil
}

var dateLayouts = []string{"2006-01-02", "02/01/2006", "2006-01-02 15:04:05", time.RFC3339}

// parseDate accepts a unix timestamp or one of dateLayouts. Blank is nil.
func parseDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if n, err := parseWholeNumber(s); err == nil {
		t := time.Unix(n, 0).UTC()
		return &t, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("unrecognised date %q", s)
}
