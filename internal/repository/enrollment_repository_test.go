package repository

import (
	"context"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusworks/records-api/internal/models"
	appErrors "github.com/campusworks/records-api/pkg/errors"
)

type countingRetryRecorder struct {
	retries int
}

func (r *countingRetryRecorder) RecordEnrollmentRetry() { r.retries++ }

func newEnrollmentRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func testEnrollment() *models.Enrollment {
	return &models.Enrollment{
		StudentID: "stu-1",
		CourseID:  "crs-1",
		Year:      2026,
		Semester:  "FALL",
	}
}

func expectCourseLock(mock sqlmock.Sqlmock, maxEnrollment int) {
	mock.ExpectQuery(regexp.QuoteMeta("SELECT max_enrollment FROM courses WHERE id = $1 FOR UPDATE")).
		WithArgs("crs-1").
		WillReturnRows(sqlmock.NewRows([]string{"max_enrollment"}).AddRow(maxEnrollment))
}

func TestInsertAtomicSuccess(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db, 3, nil)

	mock.ExpectBegin()
	expectCourseLock(mock, 30)
	mock.ExpectQuery("SELECT 1 FROM enrollments WHERE student_id").
		WithArgs("stu-1", "crs-1", 2026, "FALL", models.EnrollmentStatusWithdrawn).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM enrollments WHERE course_id = $1 AND status <> $2")).
		WithArgs("crs-1", models.EnrollmentStatusWithdrawn).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(12))
	mock.ExpectExec("INSERT INTO enrollments").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	enrollment := testEnrollment()
	require.NoError(t, repo.InsertAtomic(context.Background(), enrollment))
	assert.NotEmpty(t, enrollment.ID)
	assert.Equal(t, models.EnrollmentStatusActive, enrollment.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertAtomicCourseNotFound(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db, 3, nil)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT max_enrollment FROM courses WHERE id = $1 FOR UPDATE")).
		WithArgs("crs-1").
		WillReturnRows(sqlmock.NewRows([]string{"max_enrollment"}))
	mock.ExpectRollback()

	err := repo.InsertAtomic(context.Background(), testEnrollment())
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrCourseNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertAtomicDuplicate(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db, 3, nil)

	mock.ExpectBegin()
	expectCourseLock(mock, 30)
	mock.ExpectQuery("SELECT 1 FROM enrollments WHERE student_id").
		WithArgs("stu-1", "crs-1", 2026, "FALL", models.EnrollmentStatusWithdrawn).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectRollback()

	err := repo.InsertAtomic(context.Background(), testEnrollment())
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrDuplicateEnrollment)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertAtomicCapacityReached(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db, 3, nil)

	mock.ExpectBegin()
	expectCourseLock(mock, 30)
	mock.ExpectQuery("SELECT 1 FROM enrollments WHERE student_id").
		WithArgs("stu-1", "crs-1", 2026, "FALL", models.EnrollmentStatusWithdrawn).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM enrollments WHERE course_id = $1 AND status <> $2")).
		WithArgs("crs-1", models.EnrollmentStatusWithdrawn).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(30))
	mock.ExpectRollback()

	err := repo.InsertAtomic(context.Background(), testEnrollment())
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrEnrollmentLimit)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertAtomicUniqueViolationMapsToDuplicate(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db, 3, nil)

	mock.ExpectBegin()
	expectCourseLock(mock, 30)
	mock.ExpectQuery("SELECT 1 FROM enrollments WHERE student_id").
		WithArgs("stu-1", "crs-1", 2026, "FALL", models.EnrollmentStatusWithdrawn).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM enrollments WHERE course_id = $1 AND status <> $2")).
		WithArgs("crs-1", models.EnrollmentStatusWithdrawn).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(12))
	mock.ExpectExec("INSERT INTO enrollments").
		WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	err := repo.InsertAtomic(context.Background(), testEnrollment())
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrDuplicateEnrollment)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertAtomicRetriesSerializationFailure(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	recorder := &countingRetryRecorder{}
	repo := NewEnrollmentRepository(db, 2, recorder)

	// First attempt deadlocks on the course lock; the second succeeds.
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT max_enrollment FROM courses WHERE id = $1 FOR UPDATE")).
		WithArgs("crs-1").
		WillReturnError(&pq.Error{Code: "40P01"})
	mock.ExpectRollback()

	mock.ExpectBegin()
	expectCourseLock(mock, 30)
	mock.ExpectQuery("SELECT 1 FROM enrollments WHERE student_id").
		WithArgs("stu-1", "crs-1", 2026, "FALL", models.EnrollmentStatusWithdrawn).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM enrollments WHERE course_id = $1 AND status <> $2")).
		WithArgs("crs-1", models.EnrollmentStatusWithdrawn).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec("INSERT INTO enrollments").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.InsertAtomic(context.Background(), testEnrollment()))
	assert.Equal(t, 1, recorder.retries)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCountActiveExcludesWithdrawn(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db, 3, nil)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM enrollments WHERE course_id = $1 AND status <> $2")).
		WithArgs("crs-1", models.EnrollmentStatusWithdrawn).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	count, err := repo.CountActive(context.Background(), "crs-1")
	require.NoError(t, err)
	assert.Equal(t, 7, count)
	require.NoError(t, mock.ExpectationsWereMet())
}
