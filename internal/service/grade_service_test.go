package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusworks/records-api/internal/models"
	appErrors "github.com/campusworks/records-api/pkg/errors"
)

type mockGradeRepo struct {
	grades map[string]models.Grade
}

func (m *mockGradeRepo) FindByEnrollment(ctx context.Context, enrollmentID string) (*models.Grade, error) {
	grade, ok := m.grades[enrollmentID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &grade, nil
}

func (m *mockGradeRepo) UpsertWithCompletion(ctx context.Context, grade *models.Grade) error {
	if m.grades == nil {
		m.grades = make(map[string]models.Grade)
	}
	m.grades[grade.EnrollmentID] = *grade
	return nil
}

type mockEnrollmentDetails struct {
	details map[string]models.EnrollmentDetail
}

func (m *mockEnrollmentDetails) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	detail, ok := m.details[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &detail, nil
}

type mockCourseByCode struct {
	courses map[string]models.Course
}

func (m *mockCourseByCode) FindByCode(ctx context.Context, code string) (*models.Course, error) {
	course, ok := m.courses[code]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &course, nil
}

type mockInstructorByUser struct {
	instructors map[string]models.Instructor
}

func (m *mockInstructorByUser) FindByUserID(ctx context.Context, userID string) (*models.Instructor, error) {
	instructor, ok := m.instructors[userID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &instructor, nil
}

func gradeFixture() (*mockGradeRepo, *mockEnrollmentDetails, *mockCourseByCode, *mockInstructorByUser, *recordingMetrics) {
	repo := &mockGradeRepo{}
	instructorID := "ins-1"
	enrollments := &mockEnrollmentDetails{details: map[string]models.EnrollmentDetail{
		"enr-1": {
			Enrollment: models.Enrollment{ID: "enr-1", StudentID: "stu-1", CourseID: "crs-1", Status: models.EnrollmentStatusActive},
			CourseCode: "MATH101",
		},
		"enr-gone": {
			Enrollment: models.Enrollment{ID: "enr-gone", Status: models.EnrollmentStatusWithdrawn},
			CourseCode: "MATH101",
		},
	}}
	courses := &mockCourseByCode{courses: map[string]models.Course{
		"MATH101": {ID: "crs-1", Code: "MATH101", InstructorID: &instructorID, Status: models.CourseStatusActive},
	}}
	instructors := &mockInstructorByUser{instructors: map[string]models.Instructor{
		"usr-ins": {ID: "ins-1", UserID: "usr-ins"},
	}}
	return repo, enrollments, courses, instructors, &recordingMetrics{}
}

func instructorSession() *models.Session {
	return &models.Session{UserID: "usr-ins", Role: models.RoleInstructor}
}

func TestSubmitGradeAsAssignedInstructor(t *testing.T) {
	repo, enrollments, courses, instructors, metrics := gradeFixture()
	svc := NewGradeService(repo, enrollments, courses, instructors, nil, metrics, nil, nil)

	grade, err := svc.Submit(context.Background(), instructorSession(), SubmitGradeRequest{EnrollmentID: "enr-1", Score: 85})
	require.NoError(t, err)
	assert.Equal(t, "A+", grade.Letter)
	assert.Equal(t, 5.00, grade.Points)
	assert.Equal(t, "First Class", grade.Band)
	assert.Equal(t, "usr-ins", grade.SubmittedBy)
	assert.Equal(t, []string{"A+"}, metrics.grades)
}

func TestSubmitGradeResubmissionReplaces(t *testing.T) {
	repo, enrollments, courses, instructors, metrics := gradeFixture()
	svc := NewGradeService(repo, enrollments, courses, instructors, nil, metrics, nil, nil)

	_, err := svc.Submit(context.Background(), instructorSession(), SubmitGradeRequest{EnrollmentID: "enr-1", Score: 55})
	require.NoError(t, err)
	_, err = svc.Submit(context.Background(), instructorSession(), SubmitGradeRequest{EnrollmentID: "enr-1", Score: 72})
	require.NoError(t, err)

	stored, err := svc.Get(context.Background(), "enr-1")
	require.NoError(t, err)
	assert.Equal(t, 72, stored.NumericScore)
	assert.Equal(t, "A-", stored.Letter)
}

func TestSubmitGradeAsAdmin(t *testing.T) {
	repo, enrollments, courses, instructors, metrics := gradeFixture()
	svc := NewGradeService(repo, enrollments, courses, instructors, nil, metrics, nil, nil)

	admin := &models.Session{UserID: "usr-admin", Role: models.RoleAdmin}
	_, err := svc.Submit(context.Background(), admin, SubmitGradeRequest{EnrollmentID: "enr-1", Score: 60})
	require.NoError(t, err)
}

func TestSubmitGradeUnassignedInstructor(t *testing.T) {
	repo, enrollments, courses, instructors, metrics := gradeFixture()
	instructors.instructors["usr-other"] = models.Instructor{ID: "ins-2", UserID: "usr-other"}
	svc := NewGradeService(repo, enrollments, courses, instructors, nil, metrics, nil, nil)

	other := &models.Session{UserID: "usr-other", Role: models.RoleInstructor}
	_, err := svc.Submit(context.Background(), other, SubmitGradeRequest{EnrollmentID: "enr-1", Score: 60})
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrUnauthorizedGradeChange)
	assert.Empty(t, repo.grades)
}

func TestSubmitGradeStudentForbidden(t *testing.T) {
	repo, enrollments, courses, instructors, metrics := gradeFixture()
	svc := NewGradeService(repo, enrollments, courses, instructors, nil, metrics, nil, nil)

	student := &models.Session{UserID: "usr-stu", Role: models.RoleStudent}
	_, err := svc.Submit(context.Background(), student, SubmitGradeRequest{EnrollmentID: "enr-1", Score: 60})
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrUnauthorizedGradeChange)
}

func TestSubmitGradeInvalidScore(t *testing.T) {
	repo, enrollments, courses, instructors, metrics := gradeFixture()
	svc := NewGradeService(repo, enrollments, courses, instructors, nil, metrics, nil, nil)

	for _, score := range []int{-5, 101} {
		_, err := svc.Submit(context.Background(), instructorSession(), SubmitGradeRequest{EnrollmentID: "enr-1", Score: score})
		require.Error(t, err, "score %d", score)
		assert.ErrorIs(t, err, appErrors.ErrInvalidGrade, "score %d", score)
	}
	assert.Empty(t, repo.grades)
}

func TestSubmitGradeWithdrawnEnrollment(t *testing.T) {
	repo, enrollments, courses, instructors, metrics := gradeFixture()
	svc := NewGradeService(repo, enrollments, courses, instructors, nil, metrics, nil, nil)

	_, err := svc.Submit(context.Background(), instructorSession(), SubmitGradeRequest{EnrollmentID: "enr-gone", Score: 60})
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrConflict)
}

func TestSubmitGradeUnknownEnrollment(t *testing.T) {
	repo, enrollments, courses, instructors, metrics := gradeFixture()
	svc := NewGradeService(repo, enrollments, courses, instructors, nil, metrics, nil, nil)

	_, err := svc.Submit(context.Background(), instructorSession(), SubmitGradeRequest{EnrollmentID: "nope", Score: 60})
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestGetGradeMissing(t *testing.T) {
	repo, enrollments, courses, instructors, metrics := gradeFixture()
	svc := NewGradeService(repo, enrollments, courses, instructors, nil, metrics, nil, nil)

	_, err := svc.Get(context.Background(), "enr-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}
