package batch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/kiranshivaraju/lmsbridge/internal/moodle"
	"github.com/kiranshivaraju/lmsbridge/pkg/models"
	"github.com/kiranshivaraju/lmsbridge/pkg/naming"
)

// MinPasswordLength is checked locally before any user is sent to the LMS.
const MinPasswordLength = 8

// outcome describes a successful row.
type outcome struct {
	Message string
	Details map[string]any
}

// rowError is a row-level failure. Its text is the audit message.
type rowError struct {
	msg   string
	cause error
}

func (e *rowError) Error() string { return e.msg }
func (e *rowError) Unwrap() error { return e.cause }

func rowErrorf(cause error, format string, args ...any) error {
	return &rowError{msg: fmt.Sprintf(format, args...), cause: cause}
}

// dispatch runs the remote calls for one decoded row.
func (e *Executor) dispatch(ctx context.Context, rec Record) (outcome, error) {
	switch r := rec.(type) {
	case CreateUserRecord:
		return e.createUser(ctx, r)
	case EnrollUserRecord:
		return e.enrollUser(ctx, r)
	case CreateCourseRecord:
		return e.createCourse(ctx, r)
	case DeleteCourseRecord:
		return e.deleteCourse(ctx, r)
	case DeleteUserRecord:
		return e.deleteUser(ctx, r)
	case UpdateVisibilityRecord:
		return e.updateVisibility(ctx, r)
	}
	return outcome{}, fmt.Errorf("%w: %T", models.ErrUnknownOperation, rec)
}

func (e *Executor) createUser(ctx context.Context, r CreateUserRecord) (outcome, error) {
	if n := utf8.RuneCountInString(r.Password); n < MinPasswordLength {
		return outcome{}, rowErrorf(nil, "password too short: must be at least %d characters (got %d)", MinPasswordLength, n)
	}

	id, err := e.lms.CreateUser(ctx, moodle.NewUser{
		Username:  r.Username,
		Password:  r.Password,
		Firstname: r.Firstname,
		Lastname:  r.Lastname,
		Email:     r.Email,
	})
	if err != nil {
		return outcome{}, translateUserError(err)
	}
	return outcome{
		Message: fmt.Sprintf("user created (id %d)", id),
		Details: map[string]any{"user_id": id},
	}, nil
}

// translateUserError rewrites well-known LMS rejections into plain messages.
func translateUserError(err error) error {
	text := strings.ToLower(err.Error())
	switch {
	case strings.Contains(text, "password") && strings.Contains(text, "policy"):
		return rowErrorf(err, "password does not satisfy the LMS password policy: %s", err.Error())
	case strings.Contains(text, "username") && strings.Contains(text, "already exists"):
		return rowErrorf(err, "username already exists in the LMS")
	}
	return err
}

func (e *Executor) enrollUser(ctx context.Context, r EnrollUserRecord) (outcome, error) {
	userID, err := e.lms.UserID(ctx, r.Username)
	if err != nil {
		return outcome{}, lookupError(err, "user", r.Username)
	}
	courseID, err := e.lms.CourseID(ctx, r.Shortname)
	if err != nil {
		return outcome{}, lookupError(err, "course", r.Shortname)
	}
	roleID, err := e.roles.ID(r.Role)
	if err != nil {
		return outcome{}, err
	}

	err = e.lms.EnrollUser(ctx, moodle.Enrolment{UserID: userID, CourseID: courseID, RoleID: roleID})
	if err != nil {
		return outcome{}, err
	}
	return outcome{
		Message: fmt.Sprintf("enrolled as %s", r.Role),
		Details: map[string]any{"user_id": userID, "course_id": courseID, "role_id": roleID},
	}, nil
}

func (e *Executor) createCourse(ctx context.Context, r CreateCourseRecord) (outcome, error) {
	categoryID, err := e.lms.CategoryID(ctx, r.Category)
	if err != nil {
		return outcome{}, lookupError(err, "category", r.Category.String())
	}

	format := r.Format
	if format == "" {
		format = naming.DefaultFormat
	}
	courseID, err := e.lms.CreateCourse(ctx, moodle.NewCourse{
		Shortname:  r.Shortname,
		Fullname:   r.Fullname,
		CategoryID: categoryID,
		Format:     format,
		IDNumber:   r.IDNumber,
		Summary:    r.Summary,
		StartDate:  r.StartDate,
		EndDate:    r.EndDate,
	})
	if err != nil {
		return outcome{}, err
	}

	out := outcome{
		Message: fmt.Sprintf("course created (id %d)", courseID),
		Details: map[string]any{"course_id": courseID, "category_id": categoryID},
	}
	if r.TemplateCourse == "" {
		return out, nil
	}

	// The course exists at this point; a failed import only adds a warning.
	if err := e.lms.ImportCourseContent(ctx, courseID, r.TemplateCourse); err != nil {
		out.Message += "; warning: template import failed: " + err.Error()
		out.Details["template_error"] = err.Error()
	} else {
		out.Message += "; content imported from " + r.TemplateCourse
	}
	out.Details["template"] = r.TemplateCourse
	return out, nil
}

func (e *Executor) deleteCourse(ctx context.Context, r DeleteCourseRecord) (outcome, error) {
	if r.Delete != 1 {
		return outcome{}, rowErrorf(nil, "flag not set")
	}
	if err := e.lms.DeleteCourse(ctx, r.Shortname); err != nil {
		return outcome{}, lookupError(err, "course", r.Shortname)
	}
	return outcome{Message: "course deleted"}, nil
}

func (e *Executor) deleteUser(ctx context.Context, r DeleteUserRecord) (outcome, error) {
	if r.Delete != 1 {
		return outcome{}, rowErrorf(nil, "flag not set")
	}
	if err := e.lms.DeleteUser(ctx, r.Username); err != nil {
		return outcome{}, lookupError(err, "user", r.Username)
	}
	return outcome{Message: "user deleted"}, nil
}

func (e *Executor) updateVisibility(ctx context.Context, r UpdateVisibilityRecord) (outcome, error) {
	if err := e.lms.UpdateCourseVisibility(ctx, r.Shortname, r.Visible); err != nil {
		return outcome{}, lookupError(err, "course", r.Shortname)
	}
	state := "visible"
	if r.Visible == 0 {
		state = "hidden"
	}
	return outcome{
		Message: "course " + state,
		Details: map[string]any{"visible": r.Visible},
	}, nil
}

// lookupError names the missing entity when err is a lookup miss.
func lookupError(err error, entity, key string) error {
	if errors.Is(err, moodle.ErrNotFound) {
		return rowErrorf(err, "%s '%s' not found in LMS", entity, key)
	}
	return err
}

// remoteDetails extracts the LMS error payload for the audit trail.
func remoteDetails(err error) map[string]any {
	var remoteErr *moodle.RemoteError
	if !errors.As(err, &remoteErr) {
		return nil
	}
	return map[string]any{
		"function":  remoteErr.Function,
		"errorcode": remoteErr.ErrorCode,
		"message":   remoteErr.Message,
	}
}
