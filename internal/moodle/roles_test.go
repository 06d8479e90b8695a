package moodle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveRole(t *testing.T) {
	tests := []struct {
		label string
		want  string
	}{
		{"Profesor", RoleEditingTeacher},
		{"DOCENTE", RoleEditingTeacher},
		{"teacher", RoleEditingTeacher},
		{"Estudiante", RoleStudent},
		{"alumno", RoleStudent},
		{" student ", RoleStudent},
		{"Invitado", RoleGuest},
		{"gestor", RoleManager},
		{"Gestór", RoleManager},
		{"", RoleEditingTeacher},
		{"rector", RoleEditingTeacher},
	}
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveRole(tt.label))
		})
	}
}

func TestRoleIDs_FallsBackToDefaults(t *testing.T) {
	ids := RoleIDs{RoleStudent: 9}

	id, err := ids.ID(RoleStudent)
	require.NoError(t, err)
	assert.Equal(t, 9, id)

	id, err = ids.ID(RoleEditingTeacher)
	require.NoError(t, err)
	assert.Equal(t, 3, id)

	_, err = ids.ID("rector")
	assert.Error(t, err)
}

func TestParseRoleIDs(t *testing.T) {
	ids, err := ParseRoleIDs("student=10, editingteacher = 11,")
	require.NoError(t, err)
	assert.Equal(t, RoleIDs{RoleStudent: 10, RoleEditingTeacher: 11}, ids)

	ids, err = ParseRoleIDs("")
	require.NoError(t, err)
	assert.Empty(t, ids)

	_, err = ParseRoleIDs("student")
	assert.Error(t, err)
	_, err = ParseRoleIDs("rector=2")
	assert.Error(t, err)
	_, err = ParseRoleIDs("student=-1")
	assert.Error(t, err)
}
