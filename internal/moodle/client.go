// Package moodle is a client for the Moodle web-service REST API.
package moodle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultTimeout bounds every remote call. Calls are never retried.
const DefaultTimeout = 30 * time.Second

const (
	restPath         = "/webservice/rest/server.php"
	maxResponseBytes = 4 << 20
)

// Sentinel errors for Moodle client failures.
var (
	ErrUnreachable = errors.New("lms unreachable")
	ErrTimeout     = errors.New("lms request timeout")
	ErrRemote      = errors.New("lms rejected request")
	ErrNotFound    = errors.New("not found in lms")
)

// RemoteError is an application-level failure reported by Moodle, usually
// inside an HTTP 200 response.
type RemoteError struct {
	Function  string
	ErrorCode string
	Message   string
}

func (e *RemoteError) Error() string {
	if e.ErrorCode != "" {
		return fmt.Sprintf("%s (%s)", e.Message, e.ErrorCode)
	}
	return e.Message
}

func (e *RemoteError) Unwrap() error { return ErrRemote }

// Client is the set of LMS operations the batch executor drives.
type Client interface {
	CreateUser(ctx context.Context, u NewUser) (int64, error)
	UserID(ctx context.Context, username string) (int64, error)
	DeleteUser(ctx context.Context, username string) error
	CreateCourse(ctx context.Context, c NewCourse) (int64, error)
	CourseID(ctx context.Context, shortname string) (int64, error)
	CategoryID(ctx context.Context, ref CategoryRef) (int64, error)
	ImportCourseContent(ctx context.Context, courseID int64, templateShortname string) error
	UpdateCourseVisibility(ctx context.Context, shortname string, visible int) error
	DeleteCourse(ctx context.Context, shortname string) error
	EnrollUser(ctx context.Context, e Enrolment) error
	SiteInfo(ctx context.Context) (*SiteInfo, error)
}

// NewUser is a manual-auth account to create.
type NewUser struct {
	Username  string
	Password  string
	Firstname string
	Lastname  string
	Email     string
}

// NewCourse is a course to create under an existing category.
type NewCourse struct {
	Shortname  string
	Fullname   string
	CategoryID int64
	Format     string
	IDNumber   string
	Summary    string
	StartDate  *time.Time
	EndDate    *time.Time
}

// CategoryRef identifies a category either by numeric id or by idnumber.
type CategoryRef struct {
	ID       int64
	IDNumber string
}

func (r CategoryRef) String() string {
	if r.ID > 0 {
		return strconv.FormatInt(r.ID, 10)
	}
	return r.IDNumber
}

// Enrolment enrols a user in a course with a role.
type Enrolment struct {
	UserID   int64
	CourseID int64
	RoleID   int
}

// SiteInfo is the subset of core_webservice_get_site_info used for health checks.
type SiteInfo struct {
	SiteName string `json:"sitename"`
	Release  string `json:"release"`
	Username string `json:"username"`
}

// HTTPClient implements Client using Moodle's REST protocol.
type HTTPClient struct {
	endpoint string
	token    string
	client   *http.Client
}

// NewHTTPClient creates a new Moodle client. baseURL may be the site root or
// the full server.php endpoint.
func NewHTTPClient(baseURL, token string, timeout time.Duration) *HTTPClient {
	endpoint := strings.TrimRight(baseURL, "/")
	if !strings.HasSuffix(endpoint, "server.php") {
		endpoint += restPath
	}
	return &HTTPClient{
		endpoint: endpoint,
		token:    token,
		client:   &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) CreateUser(ctx context.Context, u NewUser) (int64, error) {
	params := url.Values{
		"users[0][username]":  {u.Username},
		"users[0][password]":  {u.Password},
		"users[0][firstname]": {u.Firstname},
		"users[0][lastname]":  {u.Lastname},
		"users[0][email]":     {u.Email},
		"users[0][auth]":      {"manual"},
	}

	var created []struct {
		ID       int64  `json:"id"`
		Username string `json:"username"`
	}
	if err := c.call(ctx, "core_user_create_users", params, &created); err != nil {
		return 0, err
	}
	if len(created) == 0 {
		return 0, fmt.Errorf("%w: core_user_create_users returned no user", ErrRemote)
	}
	return created[0].ID, nil
}

func (c *HTTPClient) UserID(ctx context.Context, username string) (int64, error) {
	params := url.Values{
		"field":     {"username"},
		"values[0]": {username},
	}

	var users []struct {
		ID int64 `json:"id"`
	}
	if err := c.call(ctx, "core_user_get_users_by_field", params, &users); err != nil {
		return 0, err
	}
	if len(users) == 0 {
		return 0, fmt.Errorf("user %q: %w", username, ErrNotFound)
	}
	return users[0].ID, nil
}

func (c *HTTPClient) DeleteUser(ctx context.Context, username string) error {
	id, err := c.UserID(ctx, username)
	if err != nil {
		return err
	}
	params := url.Values{"userids[0]": {strconv.FormatInt(id, 10)}}
	return c.call(ctx, "core_user_delete_users", params, nil)
}

func (c *HTTPClient) CreateCourse(ctx context.Context, nc NewCourse) (int64, error) {
	params := url.Values{
		"courses[0][fullname]":   {nc.Fullname},
		"courses[0][shortname]":  {nc.Shortname},
		"courses[0][categoryid]": {strconv.FormatInt(nc.CategoryID, 10)},
		"courses[0][visible]":    {"1"},
	}
	if nc.Format != "" {
		params.Set("courses[0][format]", nc.Format)
	}
	if nc.IDNumber != "" {
		params.Set("courses[0][idnumber]", nc.IDNumber)
	}
	if nc.Summary != "" {
		params.Set("courses[0][summary]", nc.Summary)
	}
	if nc.StartDate != nil {
		params.Set("courses[0][startdate]", strconv.FormatInt(nc.StartDate.Unix(), 10))
	}
	if nc.EndDate != nil {
		params.Set("courses[0][enddate]", strconv.FormatInt(nc.EndDate.Unix(), 10))
	}

	var created []struct {
		ID        int64  `json:"id"`
		Shortname string `json:"shortname"`
	}
	if err := c.call(ctx, "core_course_create_courses", params, &created); err != nil {
		return 0, err
	}
	if len(created) == 0 {
		return 0, fmt.Errorf("%w: core_course_create_courses returned no course", ErrRemote)
	}
	return created[0].ID, nil
}

func (c *HTTPClient) CourseID(ctx context.Context, shortname string) (int64, error) {
	params := url.Values{
		"field": {"shortname"},
		"value": {shortname},
	}

	var resp struct {
		Courses []struct {
			ID int64 `json:"id"`
		} `json:"courses"`
	}
	if err := c.call(ctx, "core_course_get_courses_by_field", params, &resp); err != nil {
		return 0, err
	}
	if len(resp.Courses) == 0 {
		return 0, fmt.Errorf("course %q: %w", shortname, ErrNotFound)
	}
	return resp.Courses[0].ID, nil
}

func (c *HTTPClient) CategoryID(ctx context.Context, ref CategoryRef) (int64, error) {
	params := url.Values{"addsubcategories": {"0"}}
	if ref.ID > 0 {
		params.Set("criteria[0][key]", "id")
		params.Set("criteria[0][value]", strconv.FormatInt(ref.ID, 10))
	} else {
		params.Set("criteria[0][key]", "idnumber")
		params.Set("criteria[0][value]", ref.IDNumber)
	}

	var categories []struct {
		ID int64 `json:"id"`
	}
	if err := c.call(ctx, "core_course_get_categories", params, &categories); err != nil {
		return 0, err
	}
	if len(categories) == 0 {
		return 0, fmt.Errorf("category %q: %w", ref.String(), ErrNotFound)
	}
	return categories[0].ID, nil
}

func (c *HTTPClient) ImportCourseContent(ctx context.Context, courseID int64, templateShortname string) error {
	templateID, err := c.CourseID(ctx, templateShortname)
	if err != nil {
		return fmt.Errorf("template: %w", err)
	}
	params := url.Values{
		"importfrom":    {strconv.FormatInt(templateID, 10)},
		"importto":      {strconv.FormatInt(courseID, 10)},
		"deletecontent": {"0"},
	}
	return c.call(ctx, "core_course_import_course", params, nil)
}

func (c *HTTPClient) UpdateCourseVisibility(ctx context.Context, shortname string, visible int) error {
	id, err := c.CourseID(ctx, shortname)
	if err != nil {
		return err
	}
	params := url.Values{
		"courses[0][id]":      {strconv.FormatInt(id, 10)},
		"courses[0][visible]": {strconv.Itoa(visible)},
	}

	var resp warningsResponse
	if err := c.call(ctx, "core_course_update_courses", params, &resp); err != nil {
		return err
	}
	return resp.err("core_course_update_courses")
}

func (c *HTTPClient) DeleteCourse(ctx context.Context, shortname string) error {
	id, err := c.CourseID(ctx, shortname)
	if err != nil {
		return err
	}
	params := url.Values{"courseids[0]": {strconv.FormatInt(id, 10)}}

	var resp warningsResponse
	if err := c.call(ctx, "core_course_delete_courses", params, &resp); err != nil {
		return err
	}
	return resp.err("core_course_delete_courses")
}

func (c *HTTPClient) EnrollUser(ctx context.Context, e Enrolment) error {
	params := url.Values{
		"enrolments[0][roleid]":   {strconv.Itoa(e.RoleID)},
		"enrolments[0][userid]":   {strconv.FormatInt(e.UserID, 10)},
		"enrolments[0][courseid]": {strconv.FormatInt(e.CourseID, 10)},
	}
	return c.call(ctx, "enrol_manual_enrol_users", params, nil)
}

func (c *HTTPClient) SiteInfo(ctx context.Context) (*SiteInfo, error) {
	var info SiteInfo
	if err := c.call(ctx, "core_webservice_get_site_info", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// call POSTs one web-service function and decodes the JSON reply into out.
// A reply carrying an exception payload is returned as *RemoteError even
// when the HTTP status is 200.
func (c *HTTPClient) call(ctx context.Context, function string, params url.Values, out any) error {
	form := url.Values{
		"wstoken":            {c.token},
		"wsfunction":         {function},
		"moodlewsrestformat": {"json"},
	}
	for k, v := range params {
		form[k] = v
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return classifyError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return classifyError(err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s returned status %d", ErrRemote, function, resp.StatusCode)
	}

	body = bytes.TrimSpace(body)
	if remoteErr := parseException(function, body); remoteErr != nil {
		return remoteErr
	}

	if out == nil || len(body) == 0 || bytes.Equal(body, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decoding %s response: %w", function, err)
	}
	return nil
}

// parseException detects Moodle's {"exception", "errorcode", "message"} payload.
func parseException(function string, body []byte) *RemoteError {
	if len(body) == 0 || body[0] != '{' {
		return nil
	}
	var payload struct {
		Exception string `json:"exception"`
		ErrorCode string `json:"errorcode"`
		Message   string `json:"message"`
		DebugInfo string `json:"debuginfo"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil
	}
	if payload.Exception == "" && payload.ErrorCode == "" && payload.DebugInfo == "" {
		return nil
	}
	msg := payload.Message
	if msg == "" {
		msg = "unknown LMS error"
	}
	return &RemoteError{Function: function, ErrorCode: payload.ErrorCode, Message: msg}
}

// warningsResponse is returned by functions that report per-item failures as
// warnings rather than exceptions.
type warningsResponse struct {
	Warnings []struct {
		Item        string `json:"item"`
		ItemID      int64  `json:"itemid"`
		WarningCode string `json:"warningcode"`
		Message     string `json:"message"`
	} `json:"warnings"`
}

func (w warningsResponse) err(function string) error {
	if len(w.Warnings) == 0 {
		return nil
	}
	first := w.Warnings[0]
	return &RemoteError{Function: function, ErrorCode: first.WarningCode, Message: first.Message}
}

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	return fmt.Errorf("%w: %v", ErrUnreachable, err)
}

// Compile-time check that HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)
