package ingest

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/kiranshivaraju/lmsbridge/pkg/naming"
)

var (
	reSeparators = regexp.MustCompile(`[\s.\-]+`)
	reNonWord    = regexp.MustCompile(`[^a-z0-9_]+`)
	reUnderscore = regexp.MustCompile(`_{2,}`)
)

// canonicalColumns are single-word column names the LMS operations read.
// A header whose underscore-free form matches one of these is collapsed to it,
// so "User Name" and "user_name" both become "username".
var canonicalColumns = map[string]struct{}{
	"username":       {},
	"firstname":      {},
	"lastname":       {},
	"email":          {},
	"password":       {},
	"shortname":      {},
	"fullname":       {},
	"role":           {},
	"delete":         {},
	"visible":        {},
	"format":         {},
	"templatecourse": {},
	"startdate":      {},
	"enddate":        {},
	"idnumber":       {},
	"summary":        {},
}

// headerAliases maps common export spellings to canonical column names.
var headerAliases = map[string]string{
	"usuario":             "username",
	"login":               "username",
	"nombre":              "firstname",
	"nombres":             "firstname",
	"apellido":            "lastname",
	"apellidos":           "lastname",
	"correo":              "email",
	"correo_electronico":  "email",
	"e_mail":              "email",
	"mail":                "email",
	"contrasena":          "password",
	"clave":               "password",
	"rol":                 "role",
	"nombre_corto":        "shortname",
	"nombre_completo":     "fullname",
	"visibilidad":         "visible",
	"eliminar":            "delete",
	"borrar":              "delete",
	"categoryid":          "category_id",
	"id_categoria":        "category_id",
	"categoryidnumber":    "category_idnumber",
	"category_id_number":  "category_idnumber",
	"plantilla":           "templatecourse",
	"template_course":     "templatecourse",
	"fecha_inicio":        "startdate",
	"fecha_fin":           "enddate",
}

// NormalizeHeader lowercases a header, folds diacritics and collapses
// separators to a single underscore.
func NormalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(naming.StripDiacritics(h)))
	h = reSeparators.ReplaceAllString(h, "_")
	h = reNonWord.ReplaceAllString(h, "")
	h = reUnderscore.ReplaceAllString(h, "_")
	h = strings.Trim(h, "_")

	if alias, ok := headerAliases[h]; ok {
		return alias
	}
	compact := strings.ReplaceAll(h, "_", "")
	if _, ok := canonicalColumns[compact]; ok {
		return compact
	}
	if alias, ok := headerAliases[compact]; ok {
		return alias
	}
	return h
}

// NormalizeHeaders normalizes every header. Blank headers become column_N and
// repeated names get a numeric suffix.
func NormalizeHeaders(headers []string) []string {
	out := make([]string, len(headers))
	seen := make(map[string]int, len(headers))
	for i, h := range headers {
		name := NormalizeHeader(h)
		if name == "" {
			name = fmt.Sprintf("column_%d", i+1)
		}
		seen[name]++
		if n := seen[name]; n > 1 {
			name = fmt.Sprintf("%s_%d", name, n)
		}
		out[i] = name
	}
	return out
}
