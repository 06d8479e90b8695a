package naming

import "testing"

func TestCategoryPrefix(t *testing.T) {
	n := Rules{}

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "regional campus exact", input: "APARTADO", expected: "URA"},
		{name: "regional campus lowercase in middle", input: "sede apartado norte", expected: "URA"},
		{name: "regional campus padded", input: "  Apartado  ", expected: "URA"},
		{name: "first three letters", input: "Medellin", expected: "MED"},
		{name: "non letters stripped first", input: "1-Bo g3ota", expected: "BOG"},
		{name: "diacritics folded", input: "Ñ Álamo", expected: "NAL"},
		{name: "two letter name not padded", input: "Ur", expected: "UR"},
		{name: "empty", input: "", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := n.CategoryPrefix(tt.input)
			if got != tt.expected {
				t.Errorf("CategoryPrefix(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestProgramCode(t *testing.T) {
	n := Rules{}

	tests := []struct {
		input    string
		expected string
	}{
		{"4", "04"},
		{"4.0", "04"},
		{" 7 ", "07"},
		{"12", "12"},
		{"123", "123"},
		{"12.0", "12"},
		{"A", "0A"},
		{"ABC", "ABC"},
		{"", "00"},
		{"NaN", "NaN"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := n.ProgramCode(tt.input)
			if got != tt.expected {
				t.Errorf("ProgramCode(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestDerive_RegionalCampusRow(t *testing.T) {
	n := Rules{}
	row := AcademicRow{
		CategoryName: "APARTADO",
		ProgramCode:  "4",
		CourseCode:   "101",
		Semester:     "1",
		Group:        "A",
		CourseName:   "Calculo I",
	}

	d := n.Derive(row)

	if d.Shortname != "URA04101_s1G-A" {
		t.Errorf("Shortname = %q", d.Shortname)
	}
	if d.Fullname != "Calculo I - Grupo A" {
		t.Errorf("Fullname = %q", d.Fullname)
	}
	if d.CategoryIDNumber != "URA_04_s1" {
		t.Errorf("CategoryIDNumber = %q", d.CategoryIDNumber)
	}
	if d.TemplateCourse != "PORTAFOLIO04_101s1" {
		t.Errorf("TemplateCourse = %q", d.TemplateCourse)
	}
	if d.Format != DefaultFormat {
		t.Errorf("Format = %q", d.Format)
	}
}

func TestDerive_FloatArtifacts(t *testing.T) {
	n := Rules{}
	row := AcademicRow{
		CategoryName: "Medellin",
		ProgramCode:  "12.0",
		CourseCode:   "305.0",
		Semester:     "2.0",
		Group:        " B ",
		CourseName:   " Fisica ",
	}

	d := n.Derive(row)

	if d.Shortname != "MED12305_s2G-B" {
		t.Errorf("Shortname = %q", d.Shortname)
	}
	if d.Fullname != "Fisica - Grupo B" {
		t.Errorf("Fullname = %q", d.Fullname)
	}
	if d.CategoryIDNumber != "MED_12_s2" {
		t.Errorf("CategoryIDNumber = %q", d.CategoryIDNumber)
	}
}

func TestDerive_Idempotent(t *testing.T) {
	n := Rules{}
	row := AcademicRow{CategoryName: "Bogota", ProgramCode: "3", CourseCode: "77", Semester: "4", Group: "C", CourseName: "Quimica"}

	first := n.Derive(row)
	second := n.Derive(row)
	if first != second {
		t.Errorf("Derive not idempotent: %+v vs %+v", first, second)
	}
	if (Rules{}).Derive(row) != first {
		t.Error("fresh Rules value produced different output")
	}
}

func TestTemplateReference_Fallback(t *testing.T) {
	n := Rules{}

	tests := []struct {
		name string
		row  AcademicRow
	}{
		{name: "blank program", row: AcademicRow{CourseCode: "101", Semester: "1"}},
		{name: "non numeric program", row: AcademicRow{ProgramCode: "X1", CourseCode: "101", Semester: "1"}},
		{name: "blank course", row: AcademicRow{ProgramCode: "4", Semester: "1"}},
		{name: "blank semester", row: AcademicRow{ProgramCode: "4", CourseCode: "101", Semester: "  "}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := n.TemplateReference(tt.row); got != FallbackTemplate {
				t.Errorf("TemplateReference = %q, want %q", got, FallbackTemplate)
			}
		})
	}
}

func TestAcademicRowFrom(t *testing.T) {
	row := map[string]string{
		ColCategoryName: "APARTADO",
		ColProgramCode:  "4",
		ColCourseCode:   "101",
		ColSemester:     "1",
		ColGroup:        "A",
		ColCourseName:   "Calculo I",
		"other":         "ignored",
	}

	got := AcademicRowFrom(row)
	want := AcademicRow{CategoryName: "APARTADO", ProgramCode: "4", CourseCode: "101", Semester: "1", Group: "A", CourseName: "Calculo I"}
	if got != want {
		t.Errorf("AcademicRowFrom = %+v, want %+v", got, want)
	}
}

func TestStripDiacritics(t *testing.T) {
	if got := StripDiacritics("Código Ñandú"); got != "Codigo Nandu" {
		t.Errorf("StripDiacritics = %q", got)
	}
}
