package service

import (
	"context"
	"database/sql"
	"path"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusworks/records-api/internal/models"
	appErrors "github.com/campusworks/records-api/pkg/errors"
)

type mockEnrollmentRepo struct {
	enrollments  map[string]models.Enrollment
	activeByKey  map[string]bool
	activeCounts map[string]int
	insertErr    error
	inserted     *models.Enrollment
}

func (m *mockEnrollmentRepo) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	return nil, 0, nil
}

func (m *mockEnrollmentRepo) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	e, ok := m.enrollments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &e, nil
}

func (m *mockEnrollmentRepo) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	e, ok := m.enrollments[id]
	if !ok {
		if m.inserted != nil && m.inserted.ID == id {
			return &models.EnrollmentDetail{Enrollment: *m.inserted}, nil
		}
		return nil, sql.ErrNoRows
	}
	return &models.EnrollmentDetail{Enrollment: e}, nil
}

func (m *mockEnrollmentRepo) ExistsActive(ctx context.Context, studentID, courseID string, year int, semester string) (bool, error) {
	return m.activeByKey[studentID+courseID], nil
}

func (m *mockEnrollmentRepo) CountActive(ctx context.Context, courseID string) (int, error) {
	return m.activeCounts[courseID], nil
}

func (m *mockEnrollmentRepo) InsertAtomic(ctx context.Context, enrollment *models.Enrollment) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	if enrollment.ID == "" {
		enrollment.ID = "enr-new"
	}
	m.inserted = enrollment
	return nil
}

func (m *mockEnrollmentRepo) UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus) error {
	e, ok := m.enrollments[id]
	if !ok {
		return sql.ErrNoRows
	}
	e.Status = status
	m.enrollments[id] = e
	return nil
}

type mockCourseReader struct {
	courses map[string]models.Course
}

func (m *mockCourseReader) FindActiveByCode(ctx context.Context, code string) (*models.Course, error) {
	course, ok := m.courses[code]
	if !ok || course.Status != models.CourseStatusActive {
		return nil, sql.ErrNoRows
	}
	return &course, nil
}

type mockStudentReader struct {
	students map[string]models.Student
}

func (m *mockStudentReader) FindByID(ctx context.Context, id string) (*models.Student, error) {
	student, ok := m.students[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &student, nil
}

type mockPassingGrades struct {
	passed map[string]bool
}

func (m *mockPassingGrades) HasPassingGrade(ctx context.Context, studentID, courseCode string) (bool, error) {
	return m.passed[studentID+courseCode], nil
}

type recordingInvalidator struct {
	patterns []string
}

func (m *recordingInvalidator) DeleteByPattern(ctx context.Context, pattern string) error {
	m.patterns = append(m.patterns, pattern)
	return nil
}

func (m *recordingInvalidator) covers(key string) bool {
	for _, pattern := range m.patterns {
		if ok, _ := path.Match(pattern, key); ok {
			return true
		}
	}
	return false
}

type recordingMetrics struct {
	rejections map[string]int
	created    int
	grades     []string
}

func (m *recordingMetrics) RecordEnrollmentRejection(reason string) {
	if m.rejections == nil {
		m.rejections = make(map[string]int)
	}
	m.rejections[reason]++
}

func (m *recordingMetrics) RecordEnrollmentCreated() { m.created++ }

func (m *recordingMetrics) RecordGradeSubmission(letter string) {
	m.grades = append(m.grades, letter)
}

func enrollmentFixture() (*mockEnrollmentRepo, *mockCourseReader, *mockStudentReader, *mockPassingGrades, *recordingMetrics) {
	repo := &mockEnrollmentRepo{
		enrollments:  make(map[string]models.Enrollment),
		activeByKey:  make(map[string]bool),
		activeCounts: make(map[string]int),
	}
	courses := &mockCourseReader{courses: map[string]models.Course{
		"MATH101": {ID: "crs-1", Code: "MATH101", MaxEnrollment: 2, Status: models.CourseStatusActive},
		"MATH201": {
			ID: "crs-2", Code: "MATH201", MaxEnrollment: 30,
			Prerequisites: pq.StringArray{"MATH101"},
			Status:        models.CourseStatusActive,
		},
	}}
	students := &mockStudentReader{students: map[string]models.Student{
		"stu-1": {ID: "stu-1", UserID: "usr-stu-1", Status: models.StudentStatusActive},
	}}
	grades := &mockPassingGrades{passed: make(map[string]bool)}
	metrics := &recordingMetrics{}
	return repo, courses, students, grades, metrics
}

func validEnrollRequest(courseCode string) EnrollRequest {
	return EnrollRequest{StudentID: "stu-1", CourseCode: courseCode, Year: 2026, Semester: "FALL"}
}

func adminSession() *models.Session {
	return &models.Session{UserID: "usr-adm", Role: models.RoleAdmin}
}

func studentSession(userID string) *models.Session {
	return &models.Session{UserID: userID, Role: models.RoleStudent}
}

func TestEnrollSuccess(t *testing.T) {
	repo, courses, students, grades, metrics := enrollmentFixture()
	svc := NewEnrollmentService(repo, courses, students, grades, nil, metrics, nil, nil)

	detail, err := svc.Enroll(context.Background(), adminSession(), validEnrollRequest("MATH101"))
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusActive, detail.Status)
	assert.Equal(t, "crs-1", detail.CourseID)
	assert.Equal(t, 1, metrics.created)
}

func TestEnrollCourseNotFound(t *testing.T) {
	repo, courses, students, grades, metrics := enrollmentFixture()
	svc := NewEnrollmentService(repo, courses, students, grades, nil, metrics, nil, nil)

	_, err := svc.Enroll(context.Background(), adminSession(), validEnrollRequest("NOPE999"))
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrCourseNotFound)
	assert.Equal(t, 1, metrics.rejections["course_not_found"])
}

func TestEnrollDuplicate(t *testing.T) {
	repo, courses, students, grades, metrics := enrollmentFixture()
	repo.activeByKey["stu-1crs-1"] = true
	svc := NewEnrollmentService(repo, courses, students, grades, nil, metrics, nil, nil)

	_, err := svc.Enroll(context.Background(), adminSession(), validEnrollRequest("MATH101"))
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrDuplicateEnrollment)
	assert.Nil(t, repo.inserted)
}

func TestEnrollCapacityReached(t *testing.T) {
	repo, courses, students, grades, metrics := enrollmentFixture()
	repo.activeCounts["crs-1"] = 2
	svc := NewEnrollmentService(repo, courses, students, grades, nil, metrics, nil, nil)

	_, err := svc.Enroll(context.Background(), adminSession(), validEnrollRequest("MATH101"))
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrEnrollmentLimit)
	assert.Equal(t, 1, metrics.rejections["capacity"])
	assert.Nil(t, repo.inserted)
}

func TestEnrollPrerequisiteNotMet(t *testing.T) {
	repo, courses, students, grades, metrics := enrollmentFixture()
	svc := NewEnrollmentService(repo, courses, students, grades, nil, metrics, nil, nil)

	_, err := svc.Enroll(context.Background(), adminSession(), validEnrollRequest("MATH201"))
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrPrerequisiteNotMet)
	assert.Equal(t, 1, metrics.rejections["prerequisite"])
}

func TestEnrollPrerequisiteSatisfied(t *testing.T) {
	repo, courses, students, grades, metrics := enrollmentFixture()
	grades.passed["stu-1MATH101"] = true
	svc := NewEnrollmentService(repo, courses, students, grades, nil, metrics, nil, nil)

	detail, err := svc.Enroll(context.Background(), adminSession(), validEnrollRequest("MATH201"))
	require.NoError(t, err)
	assert.Equal(t, "crs-2", detail.CourseID)
}

func TestEnrollAtomicInsertLosesRace(t *testing.T) {
	// The advisory pre-checks pass but the atomic insert reports the course
	// full, as when a concurrent enrollment takes the last slot.
	repo, courses, students, grades, metrics := enrollmentFixture()
	repo.insertErr = appErrors.ErrEnrollmentLimit
	svc := NewEnrollmentService(repo, courses, students, grades, nil, metrics, nil, nil)

	_, err := svc.Enroll(context.Background(), adminSession(), validEnrollRequest("MATH101"))
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrEnrollmentLimit)
	assert.Equal(t, 1, metrics.rejections["capacity"])
}

func TestEnrollValidation(t *testing.T) {
	repo, courses, students, grades, metrics := enrollmentFixture()
	svc := NewEnrollmentService(repo, courses, students, grades, nil, metrics, nil, nil)

	_, err := svc.Enroll(context.Background(), adminSession(), EnrollRequest{CourseCode: "MATH101"})
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrInvalidInput)
}

func TestWithdraw(t *testing.T) {
	repo, courses, students, grades, metrics := enrollmentFixture()
	repo.enrollments["enr-1"] = models.Enrollment{ID: "enr-1", Status: models.EnrollmentStatusActive}
	svc := NewEnrollmentService(repo, courses, students, grades, nil, metrics, nil, nil)

	detail, err := svc.Withdraw(context.Background(), adminSession(), "enr-1")
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusWithdrawn, detail.Status)
}

func TestWithdrawNotActive(t *testing.T) {
	repo, courses, students, grades, metrics := enrollmentFixture()
	repo.enrollments["enr-1"] = models.Enrollment{ID: "enr-1", Status: models.EnrollmentStatusCompleted}
	svc := NewEnrollmentService(repo, courses, students, grades, nil, metrics, nil, nil)

	_, err := svc.Withdraw(context.Background(), adminSession(), "enr-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrConflict)
}

func TestEnrollInvalidatesAllCoursesStatistics(t *testing.T) {
	// The all-courses aggregate is cached under its own key, so a successful
	// enrollment must drop it along with the per-course entries.
	repo, courses, students, grades, metrics := enrollmentFixture()
	cache := &recordingInvalidator{}
	svc := NewEnrollmentService(repo, courses, students, grades, cache, metrics, nil, nil)

	_, err := svc.Enroll(context.Background(), adminSession(), validEnrollRequest("MATH101"))
	require.NoError(t, err)
	assert.True(t, cache.covers("stats:enrollment:all"),
		"invalidation patterns %v must cover the all-courses key", cache.patterns)
	assert.True(t, cache.covers("stats:enrollment:MATH101"))
}

func TestWithdrawInvalidatesStatistics(t *testing.T) {
	repo, courses, students, grades, metrics := enrollmentFixture()
	repo.enrollments["enr-1"] = models.Enrollment{ID: "enr-1", StudentID: "stu-1", Status: models.EnrollmentStatusActive}
	cache := &recordingInvalidator{}
	svc := NewEnrollmentService(repo, courses, students, grades, cache, metrics, nil, nil)

	_, err := svc.Withdraw(context.Background(), adminSession(), "enr-1")
	require.NoError(t, err)
	assert.True(t, cache.covers("stats:enrollment:all"))
}

func TestEnrollStudentSessionOwnRecord(t *testing.T) {
	repo, courses, students, grades, metrics := enrollmentFixture()
	svc := NewEnrollmentService(repo, courses, students, grades, nil, metrics, nil, nil)

	detail, err := svc.Enroll(context.Background(), studentSession("usr-stu-1"), validEnrollRequest("MATH101"))
	require.NoError(t, err)
	assert.Equal(t, "stu-1", detail.StudentID)
}

func TestEnrollStudentSessionOtherStudent(t *testing.T) {
	repo, courses, students, grades, metrics := enrollmentFixture()
	svc := NewEnrollmentService(repo, courses, students, grades, nil, metrics, nil, nil)

	_, err := svc.Enroll(context.Background(), studentSession("usr-other"), validEnrollRequest("MATH101"))
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrInsufficientPermissions)
	assert.Nil(t, repo.inserted)
}

func TestWithdrawStudentSessionOwnEnrollment(t *testing.T) {
	repo, courses, students, grades, metrics := enrollmentFixture()
	repo.enrollments["enr-1"] = models.Enrollment{ID: "enr-1", StudentID: "stu-1", Status: models.EnrollmentStatusActive}
	svc := NewEnrollmentService(repo, courses, students, grades, nil, metrics, nil, nil)

	detail, err := svc.Withdraw(context.Background(), studentSession("usr-stu-1"), "enr-1")
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusWithdrawn, detail.Status)
}

func TestWithdrawStudentSessionOtherStudent(t *testing.T) {
	repo, courses, students, grades, metrics := enrollmentFixture()
	repo.enrollments["enr-1"] = models.Enrollment{ID: "enr-1", StudentID: "stu-1", Status: models.EnrollmentStatusActive}
	svc := NewEnrollmentService(repo, courses, students, grades, nil, metrics, nil, nil)

	_, err := svc.Withdraw(context.Background(), studentSession("usr-other"), "enr-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrInsufficientPermissions)
	assert.Equal(t, models.EnrollmentStatusActive, repo.enrollments["enr-1"].Status)
}
