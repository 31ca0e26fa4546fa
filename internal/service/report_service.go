package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/campusworks/records-api/internal/models"
	appErrors "github.com/campusworks/records-api/pkg/errors"
)

type reportGradeRepository interface {
	ListScoresByStudent(ctx context.Context, studentID string) ([]float64, error)
	TranscriptRows(ctx context.Context, studentID string) ([]models.TranscriptRow, error)
	CourseGrades(ctx context.Context, courseCode string) ([]models.Grade, error)
}

type reportStudentRepository interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

type reportEnrollmentRepository interface {
	StatsForAllCourses(ctx context.Context) ([]models.CourseEnrollmentStat, error)
	StatsForCourse(ctx context.Context, courseCode string) (*models.CourseEnrollmentStat, error)
}

type statisticsCache interface {
	Get(ctx context.Context, key string, dest any) error
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
}

// ReportConfig tunes statistics caching.
type ReportConfig struct {
	CacheEnabled bool
	CacheTTL     time.Duration
}

// ReportService aggregates grades into GPA figures, honours classifications,
// transcript data and per-course statistics.
type ReportService struct {
	grades      reportGradeRepository
	students    reportStudentRepository
	enrollments reportEnrollmentRepository
	cache       statisticsCache
	cfg         ReportConfig
	logger      *zap.Logger
}

// NewReportService constructs ReportService.
func NewReportService(grades reportGradeRepository, students reportStudentRepository, enrollments reportEnrollmentRepository, cache statisticsCache, cfg ReportConfig, logger *zap.Logger) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	return &ReportService{grades: grades, students: students, enrollments: enrollments, cache: cache, cfg: cfg, logger: logger}
}

// roundGPA rounds to two decimals, ties to even, matching how stored grade
// points are presented everywhere else.
func roundGPA(v float64) float64 {
	return math.RoundToEven(v*100) / 100
}

// computeGPA averages grade points. No grades means 0.00, not an error.
func computeGPA(points []float64) float64 {
	if len(points) == 0 {
		return 0.0
	}
	var sum float64
	for _, p := range points {
		sum += p
	}
	return roundGPA(sum / float64(len(points)))
}

// StudentGPA returns the student's GPA across completed enrollments together
// with the honours classification it maps to.
func (s *ReportService) StudentGPA(ctx context.Context, studentID string) (*models.GPAReport, error) {
	if _, err := s.students.FindByID(ctx, studentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	cacheKey := "stats:gpa:" + studentID
	if s.cacheEnabled() {
		var cached models.GPAReport
		if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
			return &cached, nil
		}
	}

	points, err := s.grades.ListScoresByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grades")
	}
	gpa := computeGPA(points)
	report := &models.GPAReport{
		StudentID:   studentID,
		GPA:         gpa,
		Honours:     ClassifyHonours(gpa),
		GradedCount: len(points),
	}
	s.storeCache(ctx, cacheKey, report)
	return report, nil
}

// StudentTranscript returns the student's graded course history with the
// overall GPA and honours classification.
func (s *ReportService) StudentTranscript(ctx context.Context, studentID string) (*models.StudentTranscript, error) {
	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	rows, err := s.grades.TranscriptRows(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load transcript")
	}
	points := make([]float64, 0, len(rows))
	for _, row := range rows {
		points = append(points, row.Points)
	}
	gpa := computeGPA(points)
	return &models.StudentTranscript{
		StudentID: student.ID,
		RegNo:     student.RegNo,
		GPA:       gpa,
		Honours:   ClassifyHonours(gpa),
		Rows:      rows,
	}, nil
}

// CourseStatistics returns average score and letter distribution for a course.
func (s *ReportService) CourseStatistics(ctx context.Context, courseCode string) (*models.CourseStatistics, error) {
	cacheKey := "stats:course:" + courseCode
	if s.cacheEnabled() {
		var cached models.CourseStatistics
		if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
			return &cached, nil
		}
	}

	grades, err := s.grades.CourseGrades(ctx, courseCode)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrCourseNotFound, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course grades")
	}

	stats := &models.CourseStatistics{
		CourseCode:   courseCode,
		GradedCount:  len(grades),
		Distribution: make(map[string]int),
	}
	if len(grades) > 0 {
		var sum float64
		for _, g := range grades {
			sum += float64(g.NumericScore)
			stats.Distribution[g.Letter]++
		}
		stats.AverageScore = roundGPA(sum / float64(len(grades)))
	}
	s.storeCache(ctx, cacheKey, stats)
	return stats, nil
}

// EnrollmentStatistics returns active enrollment counts per course, for all
// courses or a single one.
func (s *ReportService) EnrollmentStatistics(ctx context.Context, courseCode string) ([]models.CourseEnrollmentStat, error) {
	cacheKey := fmt.Sprintf("stats:enrollment:%s", courseCode)
	if courseCode == "" {
		cacheKey = "stats:enrollment:all"
	}
	if s.cacheEnabled() {
		var cached []models.CourseEnrollmentStat
		if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
			return cached, nil
		}
	}

	var stats []models.CourseEnrollmentStat
	if courseCode == "" {
		all, err := s.enrollments.StatsForAllCourses(ctx)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment statistics")
		}
		stats = all
	} else {
		one, err := s.enrollments.StatsForCourse(ctx, courseCode)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrCourseNotFound, "")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment statistics")
		}
		stats = []models.CourseEnrollmentStat{*one}
	}
	s.storeCache(ctx, cacheKey, stats)
	return stats, nil
}

func (s *ReportService) cacheEnabled() bool {
	return s.cfg.CacheEnabled && s.cache != nil
}

func (s *ReportService) storeCache(ctx context.Context, key string, value any) {
	if !s.cacheEnabled() {
		return
	}
	if err := s.cache.Set(ctx, key, value, s.cfg.CacheTTL); err != nil {
		s.logger.Warn("failed to cache statistics", zap.String("key", key), zap.Error(err))
	}
}
