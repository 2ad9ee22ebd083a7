package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tutor-invoicing-api/internal/models"
)

func TestRoundToQuarterHour(t *testing.T) {
	cases := []struct {
		in   float64
		want float64
	}{
		{1.0, 1.0},
		{1.1, 1.0},
		{1.125, 1.25},
		{0.875, 1.0},
		{1.5, 1.5},
		{0.1, 0.0},
		{-0.5, 0.0},
		{0, 0},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, RoundToQuarterHour(tc.in), "input %v", tc.in)
	}
}

func TestNormalizeRowsDerivesHours(t *testing.T) {
	rows := []models.RawSessionRow{
		{StudentID: "S1", StudentName: "Mia", TutorID: "T1", TutorName: "Ada", Date: "2024-03-04", StartTime: "16:00", EndTime: "17:30"},
	}
	records, rowErrors := NormalizeRows(rows, models.SourceFeedback)
	require.Empty(t, rowErrors)
	require.Len(t, records, 1)
	assert.Equal(t, 1.5, records[0].Hours)
	assert.Equal(t, "16:00", records[0].StartTime)
	assert.Equal(t, "17:30", records[0].EndTime)
	assert.Equal(t, models.SourceFeedback, records[0].Source)
}

func TestNormalizeRowsParsesAlternateFormats(t *testing.T) {
	rows := []models.RawSessionRow{
		{StudentID: "S1", TutorID: "T1", Date: "03/15/2024", StartTime: "4:00 PM", EndTime: "5:00 PM"},
	}
	records, rowErrors := NormalizeRows(rows, models.SourcePayroll)
	require.Empty(t, rowErrors)
	require.Len(t, records, 1)
	assert.Equal(t, "16:00", records[0].StartTime)
	assert.Equal(t, "17:00", records[0].EndTime)
	assert.Equal(t, 1.0, records[0].Hours)
	assert.Equal(t, "2024-03-15", records[0].Date.Format("2006-01-02"))
}

func TestNormalizeRowsReportsMalformedRows(t *testing.T) {
	rows := []models.RawSessionRow{
		{StudentID: "", TutorID: "T1", Date: "2024-03-04", StartTime: "10:00", EndTime: "11:00"},
		{StudentID: "S1", TutorID: "T1", Date: "not-a-date", StartTime: "10:00", EndTime: "11:00"},
		{StudentID: "S1", TutorID: "T1", Date: "2024-03-04", StartTime: "12:00", EndTime: "11:00"},
		{StudentID: "S2", TutorID: "T2", Date: "2024-03-05", StartTime: "10:00", EndTime: "11:00"},
	}
	records, rowErrors := NormalizeRows(rows, models.SourcePayroll)
	require.Len(t, records, 1)
	require.Len(t, rowErrors, 3)
	assert.Equal(t, 0, rowErrors[0].Index)
	assert.Equal(t, 1, rowErrors[1].Index)
	assert.Equal(t, 2, rowErrors[2].Index)
	assert.Contains(t, rowErrors[2].Reason, "before start time")
}

func TestNormalizeRowsNoShowCarriesNoSpan(t *testing.T) {
	rows := []models.RawSessionRow{
		{StudentID: "S1", TutorID: "T1", Date: "2024-03-04", NoShow: true},
	}
	records, rowErrors := NormalizeRows(rows, models.SourceFeedback)
	require.Empty(t, rowErrors)
	require.Len(t, records, 1)
	assert.True(t, records[0].NoShow)
	assert.Zero(t, records[0].Hours)
	assert.Empty(t, records[0].StartTime)
	assert.Empty(t, records[0].EndTime)
}
