package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tutor-invoicing-api/internal/models"
	"github.com/noah-isme/tutor-invoicing-api/pkg/config"
	appErrors "github.com/noah-isme/tutor-invoicing-api/pkg/errors"
)

func testEngine() *RuleEngine {
	return NewRuleEngine(config.PipelineConfig{
		WeeklyHourCap:      4,
		MonthlyNoShowCap:   2,
		ReconcileTolerance: 0.25,
		WorkdayStart:       "10:00",
		WorkdayEnd:         "19:00",
	})
}

func session(source models.RecordSource, student, tutor string, date time.Time, start, end string, hours float64) models.Record {
	return models.Record{
		Source:    source,
		StudentID: student,
		TutorID:   tutor,
		Date:      date,
		StartTime: start,
		EndTime:   end,
		Hours:     hours,
	}
}

func noShow(student, tutor string, date time.Time) models.Record {
	return models.Record{
		Source:    models.SourceFeedback,
		StudentID: student,
		TutorID:   tutor,
		Date:      date,
		NoShow:    true,
	}
}

func yearContract(student, tutor string) models.ContractPeriod {
	return models.ContractPeriod{
		StudentID: student,
		TutorID:   tutor,
		StartDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC),
		Active:    true,
	}
}

func TestEvaluateCleanPair(t *testing.T) {
	date := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	payroll := []models.Record{session(models.SourcePayroll, "S1", "T1", date, "10:00", "11:00", 1)}
	feedback := []models.Record{session(models.SourceFeedback, "S1", "T1", date, "10:00", "11:00", 1)}

	issues, err := testEngine().Evaluate(payroll, feedback, []models.ContractPeriod{yearContract("S1", "T1")})
	require.NoError(t, err)
	assert.Empty(t, issues)
}

func TestEvaluateFailsWithoutContractData(t *testing.T) {
	date := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	feedback := []models.Record{session(models.SourceFeedback, "S1", "T1", date, "10:00", "11:00", 1)}

	_, err := testEngine().Evaluate(nil, feedback, nil)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestEvaluateFlagsPairWithoutContract(t *testing.T) {
	date := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	feedback := []models.Record{
		session(models.SourceFeedback, "S1", "T1", date, "10:00", "11:00", 1),
		session(models.SourceFeedback, "S2", "T9", date, "10:00", "11:00", 1),
	}
	payroll := []models.Record{
		session(models.SourcePayroll, "S1", "T1", date, "10:00", "11:00", 1),
		session(models.SourcePayroll, "S2", "T9", date, "10:00", "11:00", 1),
	}

	issues, err := testEngine().Evaluate(payroll, feedback, []models.ContractPeriod{yearContract("S1", "T1")})
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, models.SeverityError, issues[0].Severity)
	assert.Equal(t, models.CategoryContractPeriod, issues[0].Category)
	assert.Equal(t, "S2", issues[0].StudentID)
}

func TestEvaluateFlagsSessionOutsideContractWindow(t *testing.T) {
	date := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	contract := models.ContractPeriod{
		StudentID: "S1",
		TutorID:   "T1",
		StartDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2024, 5, 31, 0, 0, 0, 0, time.UTC),
		Active:    true,
	}
	feedback := []models.Record{session(models.SourceFeedback, "S1", "T1", date, "10:00", "11:00", 1)}
	payroll := []models.Record{session(models.SourcePayroll, "S1", "T1", date, "10:00", "11:00", 1)}

	issues, err := testEngine().Evaluate(payroll, feedback, []models.ContractPeriod{contract})
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, models.CategoryContractPeriod, issues[0].Category)
	assert.Contains(t, issues[0].Message, "2024-06-10")
}

func TestEvaluateWarnsOutsideWorkingHours(t *testing.T) {
	date := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	feedback := []models.Record{session(models.SourceFeedback, "S1", "T1", date, "09:30", "11:00", 1.5)}
	payroll := []models.Record{session(models.SourcePayroll, "S1", "T1", date, "09:30", "11:00", 1.5)}

	issues, err := testEngine().Evaluate(payroll, feedback, []models.ContractPeriod{yearContract("S1", "T1")})
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, models.SeverityWarning, issues[0].Severity)
	assert.Equal(t, models.CategoryWorkingHours, issues[0].Category)
	assert.Contains(t, issues[0].Message, "09:30")
}

func TestEvaluateFlagsHourMismatchNamingBothValues(t *testing.T) {
	date := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	payroll := []models.Record{session(models.SourcePayroll, "S1", "T1", date, "13:00", "15:00", 2)}
	feedback := []models.Record{session(models.SourceFeedback, "S1", "T1", date, "13:00", "14:30", 1.5)}

	issues, err := testEngine().Evaluate(payroll, feedback, []models.ContractPeriod{yearContract("S1", "T1")})
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, models.SeverityError, issues[0].Severity)
	assert.Equal(t, models.CategoryHourReconciliation, issues[0].Category)
	assert.Contains(t, issues[0].Message, "2.00")
	assert.Contains(t, issues[0].Message, "1.50")
}

func TestEvaluateToleratesQuarterHourMismatch(t *testing.T) {
	date := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	payroll := []models.Record{session(models.SourcePayroll, "S1", "T1", date, "13:00", "15:00", 2)}
	feedback := []models.Record{session(models.SourceFeedback, "S1", "T1", date, "13:00", "15:15", 2.25)}

	issues, err := testEngine().Evaluate(payroll, feedback, []models.ContractPeriod{yearContract("S1", "T1")})
	require.NoError(t, err)
	assert.Empty(t, issues)
}

func TestEvaluateWarnsOnThirdMonthlyNoShow(t *testing.T) {
	feedback := []models.Record{
		noShow("S1", "T1", time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)),
		noShow("S1", "T1", time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)),
		noShow("S1", "T1", time.Date(2024, 3, 18, 0, 0, 0, 0, time.UTC)),
	}

	issues, err := testEngine().Evaluate(nil, feedback, []models.ContractPeriod{yearContract("S1", "T1")})
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, models.SeverityWarning, issues[0].Severity)
	assert.Equal(t, models.CategoryNoShowCap, issues[0].Category)
	assert.Contains(t, issues[0].Message, "3 no-shows in 2024-03")
}

func TestEvaluateFlagsWeeklyHourCap(t *testing.T) {
	mon := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	wed := time.Date(2024, 3, 6, 0, 0, 0, 0, time.UTC)
	fri := time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC)
	feedback := []models.Record{
		session(models.SourceFeedback, "S1", "T1", mon, "10:00", "11:00", 1),
		session(models.SourceFeedback, "S1", "T1", wed, "10:00", "11:30", 1.5),
		session(models.SourceFeedback, "S1", "T1", fri, "10:00", "12:00", 2),
	}
	payroll := []models.Record{
		session(models.SourcePayroll, "S1", "T1", mon, "10:00", "11:00", 1),
		session(models.SourcePayroll, "S1", "T1", wed, "10:00", "11:30", 1.5),
		session(models.SourcePayroll, "S1", "T1", fri, "10:00", "12:00", 2),
	}

	issues, err := testEngine().Evaluate(payroll, feedback, []models.ContractPeriod{yearContract("S1", "T1")})
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, models.SeverityError, issues[0].Severity)
	assert.Equal(t, models.CategoryWeeklyHourCap, issues[0].Category)
	assert.Contains(t, issues[0].Message, "4.50")
}

func TestEvaluateIsDeterministic(t *testing.T) {
	date := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	feedback := []models.Record{
		session(models.SourceFeedback, "S2", "T2", date, "09:00", "10:00", 1),
		session(models.SourceFeedback, "S1", "T1", date, "09:00", "10:00", 1),
		noShow("S1", "T1", time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)),
		noShow("S1", "T1", time.Date(2024, 3, 12, 0, 0, 0, 0, time.UTC)),
		noShow("S1", "T1", time.Date(2024, 3, 13, 0, 0, 0, 0, time.UTC)),
	}
	payroll := []models.Record{
		session(models.SourcePayroll, "S2", "T2", date, "09:00", "10:00", 1),
		session(models.SourcePayroll, "S1", "T1", date, "09:00", "11:00", 2),
	}
	contracts := []models.ContractPeriod{yearContract("S1", "T1"), yearContract("S2", "T2")}

	engine := testEngine()
	first, err := engine.Evaluate(payroll, feedback, contracts)
	require.NoError(t, err)
	second, err := engine.Evaluate(payroll, feedback, contracts)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	for i := 1; i < len(first); i++ {
		assert.LessOrEqual(t, first[i-1].StudentID, first[i].StudentID)
	}
}
