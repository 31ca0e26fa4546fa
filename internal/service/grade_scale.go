package service

import (
	appErrors "github.com/campusworks/records-api/pkg/errors"
)

// GradeBand is one row of the institutional grading scale.
type GradeBand struct {
	Letter string
	Min    int
	Max    int
	Points float64
	Band   string
}

// gradeScale is the institutional scale. Bands are closed, non-overlapping
// integer ranges partitioning [0,100], ordered low to high.
var gradeScale = []GradeBand{
	{Letter: "F", Min: 0, Max: 39, Points: 0.00, Band: "Fail"},
	{Letter: "D-", Min: 40, Max: 42, Points: 1.00, Band: "Third"},
	{Letter: "D", Min: 43, Max: 44, Points: 1.50, Band: "Third"},
	{Letter: "D+", Min: 45, Max: 49, Points: 2.00, Band: "Third"},
	{Letter: "C-", Min: 50, Max: 52, Points: 2.50, Band: "Lower Second"},
	{Letter: "C", Min: 53, Max: 54, Points: 2.75, Band: "Lower Second"},
	{Letter: "C+", Min: 55, Max: 59, Points: 3.00, Band: "Lower Second"},
	{Letter: "B-", Min: 60, Max: 62, Points: 3.50, Band: "Upper Second"},
	{Letter: "B", Min: 63, Max: 64, Points: 3.75, Band: "Upper Second"},
	{Letter: "B+", Min: 65, Max: 69, Points: 4.00, Band: "Upper Second"},
	{Letter: "A-", Min: 70, Max: 74, Points: 4.50, Band: "First Class"},
	{Letter: "A", Min: 75, Max: 79, Points: 4.75, Band: "First Class"},
	{Letter: "A+", Min: 80, Max: 100, Points: 5.00, Band: "First Class"},
}

// ScoreToGrade maps a numeric score to its letter grade, grade-point value
// and honours band. Scores outside [0,100] are rejected.
func ScoreToGrade(score int) (GradeBand, error) {
	if score < 0 || score > 100 {
		return GradeBand{}, appErrors.Clone(appErrors.ErrInvalidGrade, "numeric score must be between 0 and 100")
	}
	for _, band := range gradeScale {
		if score >= band.Min && score <= band.Max {
			return band, nil
		}
	}
	// Unreachable while the table partitions [0,100]; fall back to F.
	return gradeScale[0], nil
}

// honoursBand pairs a minimum GPA with its classification description.
type honoursBand struct {
	MinGPA      float64
	Description string
}

// honoursBands is checked highest threshold first; the first threshold the
// GPA meets or exceeds wins. The thresholds sit on the grade-point scale:
// each is the minimum point value of the corresponding letter band above.
var honoursBands = []honoursBand{
	{MinGPA: 4.50, Description: "First Class Honours (1st)"},
	{MinGPA: 3.50, Description: "Upper Second Class Honours (2:1)"},
	{MinGPA: 2.50, Description: "Lower Second Class Honours (2:2)"},
	{MinGPA: 1.00, Description: "Third Class Honours (3rd)"},
	{MinGPA: 0.00, Description: "Fail"},
}

// ClassifyHonours maps a GPA to its honours classification. Thresholds are
// boundary inclusive; anything below the lowest positive threshold is a Fail.
func ClassifyHonours(gpa float64) string {
	for _, band := range honoursBands {
		if gpa >= band.MinGPA {
			return band.Description
		}
	}
	return honoursBands[len(honoursBands)-1].Description
}
