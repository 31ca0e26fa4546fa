package service

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/campusworks/records-api/pkg/errors"
)

func TestScoreToGradeSamples(t *testing.T) {
	cases := []struct {
		score  int
		letter string
		points float64
		band   string
	}{
		{85, "A+", 5.00, "First Class"},
		{80, "A+", 5.00, "First Class"},
		{100, "A+", 5.00, "First Class"},
		{75, "A", 4.75, "First Class"},
		{70, "A-", 4.50, "First Class"},
		{65, "B+", 4.00, "Upper Second"},
		{60, "B-", 3.50, "Upper Second"},
		{55, "C+", 3.00, "Lower Second"},
		{50, "C-", 2.50, "Lower Second"},
		{45, "D+", 2.00, "Third"},
		{42, "D-", 1.00, "Third"},
		{40, "D-", 1.00, "Third"},
		{39, "F", 0.00, "Fail"},
		{0, "F", 0.00, "Fail"},
	}
	for _, tc := range cases {
		band, err := ScoreToGrade(tc.score)
		require.NoError(t, err, "score %d", tc.score)
		assert.Equal(t, tc.letter, band.Letter, "score %d", tc.score)
		assert.Equal(t, tc.points, band.Points, "score %d", tc.score)
		assert.Equal(t, tc.band, band.Band, "score %d", tc.score)
	}
}

func TestScoreToGradeRejectsOutOfRange(t *testing.T) {
	for _, score := range []int{-1, 101, 250} {
		_, err := ScoreToGrade(score)
		require.Error(t, err, "score %d", score)
		assert.True(t, errors.Is(err, appErrors.ErrInvalidGrade), "score %d", score)
	}
}

func TestScoreToGradePartitionsRange(t *testing.T) {
	// Every integer in [0,100] maps to exactly one band and adjacent scores
	// never skip a band boundary.
	for score := 0; score <= 100; score++ {
		band, err := ScoreToGrade(score)
		require.NoError(t, err, "score %d", score)
		assert.GreaterOrEqual(t, score, band.Min, "score %d", score)
		assert.LessOrEqual(t, score, band.Max, "score %d", score)
	}
}

func TestClassifyHonours(t *testing.T) {
	cases := []struct {
		gpa     float64
		honours string
	}{
		{5.00, "First Class Honours (1st)"},
		{4.50, "First Class Honours (1st)"},
		{4.49, "Upper Second Class Honours (2:1)"},
		{3.50, "Upper Second Class Honours (2:1)"},
		{3.49, "Lower Second Class Honours (2:2)"},
		{2.50, "Lower Second Class Honours (2:2)"},
		{2.49, "Third Class Honours (3rd)"},
		{1.00, "Third Class Honours (3rd)"},
		{0.99, "Fail"},
		{0.00, "Fail"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.honours, ClassifyHonours(tc.gpa), "gpa %.2f", tc.gpa)
	}
}
