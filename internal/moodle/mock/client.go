// Package mock provides a scriptable moodle.Client for tests.
package mock

import (
	"context"
	"sync"

	"github.com/kiranshivaraju/lmsbridge/internal/moodle"
)

// Client satisfies moodle.Client for testing. Unset funcs succeed with zero values.
type Client struct {
	CreateUserFunc             func(ctx context.Context, u moodle.NewUser) (int64, error)
	UserIDFunc                 func(ctx context.Context, username string) (int64, error)
	DeleteUserFunc             func(ctx context.Context, username string) error
	CreateCourseFunc           func(ctx context.Context, c moodle.NewCourse) (int64, error)
	CourseIDFunc               func(ctx context.Context, shortname string) (int64, error)
	CategoryIDFunc             func(ctx context.Context, ref moodle.CategoryRef) (int64, error)
	ImportCourseContentFunc    func(ctx context.Context, courseID int64, templateShortname string) error
	UpdateCourseVisibilityFunc func(ctx context.Context, shortname string, visible int) error
	DeleteCourseFunc           func(ctx context.Context, shortname string) error
	EnrollUserFunc             func(ctx context.Context, e moodle.Enrolment) error
	SiteInfoFunc               func(ctx context.Context) (*moodle.SiteInfo, error)

	mu    sync.Mutex
	calls []string
}

// Calls returns the names of the methods invoked so far, in order.
func (m *Client) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	copy(out, m.calls)
	return out
}

func (m *Client) record(name string) {
	m.mu.Lock()
	m.calls = append(m.calls, name)
	m.mu.Unlock()
}

func (m *Client) CreateUser(ctx context.Context, u moodle.NewUser) (int64, error) {
	m.record("CreateUser")
	if m.CreateUserFunc != nil {
		return m.CreateUserFunc(ctx, u)
	}
	return 1, nil
}

func (m *Client) UserID(ctx context.Context, username string) (int64, error) {
	m.record("UserID")
	if m.UserIDFunc != nil {
		return m.UserIDFunc(ctx, username)
	}
	return 1, nil
}

func (m *Client) DeleteUser(ctx context.Context, username string) error {
	m.record("DeleteUser")
	if m.DeleteUserFunc != nil {
		return m.DeleteUserFunc(ctx, username)
	}
	return nil
}

func (m *Client) CreateCourse(ctx context.Context, c moodle.NewCourse) (int64, error) {
	m.record("CreateCourse")
	if m.CreateCourseFunc != nil {
		return m.CreateCourseFunc(ctx, c)
	}
	return 1, nil
}

func (m *Client) CourseID(ctx context.Context, shortname string) (int64, error) {
	m.record("CourseID")
	if m.CourseIDFunc != nil {
		return m.CourseIDFunc(ctx, shortname)
	}
	return 1, nil
}

func (m *Client) CategoryID(ctx context.Context, ref moodle.CategoryRef) (int64, error) {
	m.record("CategoryID")
	if m.CategoryIDFunc != nil {
		return m.CategoryIDFunc(ctx, ref)
	}
	return 1, nil
}

func (m *Client) ImportCourseContent(ctx context.Context, courseID int64, templateShortname string) error {
	m.record("ImportCourseContent")
	if m.ImportCourseContentFunc != nil {
		return m.ImportCourseContentFunc(ctx, courseID, templateShortname)
	}
	return nil
}

func (m *Client) UpdateCourseVisibility(ctx context.Context, shortname string, visible int) error {
	m.record("UpdateCourseVisibility")
	if m.UpdateCourseVisibilityFunc != nil {
		return m.UpdateCourseVisibilityFunc(ctx, shortname, visible)
	}
	return nil
}

func (m *Client) DeleteCourse(ctx context.Context, shortname string) error {
	m.record("DeleteCourse")
	if m.DeleteCourseFunc != nil {
		return m.DeleteCourseFunc(ctx, shortname)
	}
	return nil
}

func (m *Client) EnrollUser(ctx context.Context, e moodle.Enrolment) error {
	m.record("EnrollUser")
	if m.EnrollUserFunc != nil {
		return m.EnrollUserFunc(ctx, e)
	}
	return nil
}

func (m *Client) SiteInfo(ctx context.Context) (*moodle.SiteInfo, error) {
	m.record("SiteInfo")
	if m.SiteInfoFunc != nil {
		return m.SiteInfoFunc(ctx)
	}
	return &moodle.SiteInfo{SiteName: "mock"}, nil
}

var _ moodle.Client = (*Client)(nil)
