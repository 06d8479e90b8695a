package moodle

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kiranshivaraju/lmsbridge/pkg/naming"
)

// Moodle role archetypes.
const (
	RoleManager        = "manager"
	RoleEditingTeacher = "editingteacher"
	RoleTeacher        = "teacher"
	RoleStudent        = "student"
	RoleGuest          = "guest"
)

// DefaultRoleIDs are the role ids of a stock Moodle install.
var DefaultRoleIDs = map[string]int{
	RoleManager:        1,
	RoleEditingTeacher: 3,
	RoleTeacher:        4,
	RoleStudent:        5,
	RoleGuest:          6,
}

var roleAliases = map[string]string{
	"profesor":       RoleEditingTeacher,
	"docente":        RoleEditingTeacher,
	"teacher":        RoleEditingTeacher,
	"editingteacher": RoleEditingTeacher,
	"estudiante":     RoleStudent,
	"alumno":         RoleStudent,
	"student":        RoleStudent,
	"invitado":       RoleGuest,
	"guest":          RoleGuest,
	"gestor":         RoleManager,
	"manager":        RoleManager,
}

// ResolveRole maps a spreadsheet role label to a Moodle role archetype.
// Blank and unrecognised labels resolve to editingteacher.
func ResolveRole(label string) string {
	key := strings.ToLower(strings.TrimSpace(naming.StripDiacritics(label)))
	if role, ok := roleAliases[key]; ok {
		return role
	}
	return RoleEditingTeacher
}

// RoleIDs maps role archetypes to the numeric ids of a particular site.
type RoleIDs map[string]int

// ID returns the id for role, falling back to the stock Moodle ids.
func (r RoleIDs) ID(role string) (int, error) {
	if id, ok := r[role]; ok {
		return id, nil
	}
	if id, ok := DefaultRoleIDs[role]; ok {
		return id, nil
	}
	return 0, fmt.Errorf("unknown role %q", role)
}

// ParseRoleIDs parses overrides of the form "student=5,editingteacher=3".
func ParseRoleIDs(s string) (RoleIDs, error) {
	ids := RoleIDs{}
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("invalid role id %q: expected name=id", pair)
		}
		name = strings.ToLower(strings.TrimSpace(name))
		if _, known := DefaultRoleIDs[name]; !known {
			return nil, fmt.Errorf("invalid role id %q: unknown role %q", pair, name)
		}
		id, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid role id %q: id must be a positive integer", pair)
		}
		ids[name] = id
	}
	return ids, nil
}
