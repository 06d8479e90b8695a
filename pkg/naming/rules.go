// Package naming derives LMS identifiers for courses from raw academic fields.
package naming

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// FallbackTemplate is used when a template reference cannot be built from the
// row's program code, course code and semester.
const FallbackTemplate = "PORTAFOLIO_BASE"

// DefaultFormat is the course format set on every derived course.
const DefaultFormat = "topics"

// regionalCampus is special-cased: any category containing it maps to "URA".
const (
	regionalCampus       = "APARTADO"
	regionalCampusPrefix = "URA"
)

// Raw column names of the academic-records export.
const (
	ColCategoryName = "nombre_cat"
	ColProgramCode  = "cod_programa"
	ColCourseCode   = "cod_curso"
	ColSemester     = "semestre"
	ColGroup        = "grupo"
	ColCourseName   = "nombre_curso"
)

// AcademicColumns is the full raw column set that triggers derivation.
var AcademicColumns = []string{
	ColCategoryName, ColProgramCode, ColCourseCode, ColSemester, ColGroup, ColCourseName,
}

// AcademicRow holds the raw academic fields of one row.
type AcademicRow struct {
	CategoryName string
	ProgramCode  string
	CourseCode   string
	Semester     string
	Group        string
	CourseName   string
}

// AcademicRowFrom reads the academic fields out of a normalized row.
func AcademicRowFrom(row map[string]string) AcademicRow {
	return AcademicRow{
		CategoryName: row[ColCategoryName],
		ProgramCode:  row[ColProgramCode],
		CourseCode:   row[ColCourseCode],
		Semester:     row[ColSemester],
		Group:        row[ColGroup],
		CourseName:   row[ColCourseName],
	}
}

// Derived is the set of LMS fields computed for a course row.
type Derived struct {
	Shortname        string
	Fullname         string
	CategoryIDNumber string
	Format           string
	TemplateCourse   string
}

// Rules implements the course naming scheme.
// All methods are pure functions with no side effects.
// Zero value is ready to use.
type Rules struct{}

// Derive computes every derived field for r.
func (n Rules) Derive(r AcademicRow) Derived {
	return Derived{
		Shortname:        n.Shortname(r),
		Fullname:         n.Fullname(r),
		CategoryIDNumber: n.CategoryIDNumber(r),
		Format:           DefaultFormat,
		TemplateCourse:   n.TemplateReference(r),
	}
}

// CategoryPrefix returns the three-letter code for a category name.
// Names with fewer than three letters return what is available.
func (n Rules) CategoryPrefix(categoryName string) string {
	name := strings.ToUpper(strings.TrimSpace(StripDiacritics(categoryName)))
	if strings.Contains(name, regionalCampus) {
		return regionalCampusPrefix
	}

	var b strings.Builder
	for _, r := range name {
		if r >= 'A' && r <= 'Z' {
			b.WriteRune(r)
			if b.Len() == 3 {
				break
			}
		}
	}
	return b.String()
}

// ProgramCode zero-pads a numeric program code to at least two digits.
// Spreadsheet float artifacts such as "4.0" are accepted.
func (n Rules) ProgramCode(raw string) string {
	raw = strings.TrimSpace(raw)
	if v, ok := parseWhole(raw); ok {
		return fmt.Sprintf("%02d", v)
	}
	if len(raw) < 2 {
		return strings.Repeat("0", 2-len(raw)) + raw
	}
	return raw
}

// Shortname is the LMS course identifier, unique per course, group and semester.
func (n Rules) Shortname(r AcademicRow) string {
	return n.CategoryPrefix(r.CategoryName) +
		n.ProgramCode(r.ProgramCode) +
		trimNumeric(r.CourseCode) +
		"_s" + trimNumeric(r.Semester) +
		"G-" + strings.TrimSpace(r.Group)
}

// Fullname is the human-readable course title.
func (n Rules) Fullname(r AcademicRow) string {
	return fmt.Sprintf("%s - Grupo %s", strings.TrimSpace(r.CourseName), strings.TrimSpace(r.Group))
}

// CategoryIDNumber identifies the pre-existing LMS category for the course.
func (n Rules) CategoryIDNumber(r AcademicRow) string {
	return n.CategoryPrefix(r.CategoryName) + "_" + n.ProgramCode(r.ProgramCode) + "_s" + trimNumeric(r.Semester)
}

// TemplateReference names the template course whose content is copied into
// the new course. Blank or non-numeric inputs yield FallbackTemplate.
func (n Rules) TemplateReference(r AcademicRow) string {
	course := trimNumeric(r.CourseCode)
	semester := trimNumeric(r.Semester)
	if course == "" || semester == "" {
		return FallbackTemplate
	}
	if _, ok := parseWhole(strings.TrimSpace(r.ProgramCode)); !ok {
		return FallbackTemplate
	}
	return "PORTAFOLIO" + n.ProgramCode(r.ProgramCode) + "_" + course + "s" + semester
}

// StripDiacritics removes combining marks, so "Bogotá" becomes "Bogota".
func StripDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// parseWhole parses s as a number and returns its integer part.
func parseWhole(s string) (int64, bool) {
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return int64(f), true
}

// trimNumeric trims s and drops a trailing ".0" left by spreadsheet float coercion.
func trimNumeric(s string) string {
	s = strings.TrimSpace(s)
	if whole, ok := strings.CutSuffix(s, ".0"); ok && whole != "" && isDigits(whole) {
		return whole
	}
	return s
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
