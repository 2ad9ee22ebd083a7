package service

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/noah-isme/tutor-invoicing-api/internal/models"
)

var dateLayouts = []string{"2006-01-02", "01/02/2006"}

var timeLayouts = []string{"15:04", "3:04 PM", "3:04PM"}

// RoundToQuarterHour rounds a duration in hours half-up to the nearest
// 0.25. The result is always a non-negative multiple of 0.25.
func RoundToQuarterHour(hours float64) float64 {
	if hours <= 0 {
		return 0
	}
	return math.Floor(hours*4+0.5) / 4
}

// NormalizeRows turns raw extracted rows into normalized records. Rows
// missing required fields or with an end time before the start are
// reported as RowErrors and excluded; the batch itself never fails. The
// transformation is pure.
func NormalizeRows(rows []models.RawSessionRow, source models.RecordSource) ([]models.Record, []models.RowError) {
	records := make([]models.Record, 0, len(rows))
	var rowErrors []models.RowError

	for i, row := range rows {
		record, err := normalizeRow(row, source)
		if err != nil {
			rowErrors = append(rowErrors, models.RowError{Index: i, Reason: err.Error()})
			continue
		}
		records = append(records, record)
	}
	return records, rowErrors
}

func normalizeRow(row models.RawSessionRow, source models.RecordSource) (models.Record, error) {
	studentID := strings.TrimSpace(row.StudentID)
	tutorID := strings.TrimSpace(row.TutorID)
	if studentID == "" {
		return models.Record{}, fmt.Errorf("missing student id")
	}
	if tutorID == "" {
		return models.Record{}, fmt.Errorf("missing tutor id")
	}

	date, err := parseDate(row.Date)
	if err != nil {
		return models.Record{}, err
	}

	record := models.Record{
		Source:      source,
		StudentID:   studentID,
		StudentName: strings.TrimSpace(row.StudentName),
		TutorID:     tutorID,
		TutorName:   strings.TrimSpace(row.TutorName),
		Date:        date,
		NoShow:      row.NoShow,
		Feedback:    row.Feedback,
		Goal:        row.Goal,
	}

	if row.NoShow {
		// No-show sessions carry no billable span.
		return record, nil
	}

	start, err := parseClock(row.StartTime)
	if err != nil {
		return models.Record{}, fmt.Errorf("start time: %w", err)
	}
	end, err := parseClock(row.EndTime)
	if err != nil {
		return models.Record{}, fmt.Errorf("end time: %w", err)
	}
	if end.Before(start) {
		return models.Record{}, fmt.Errorf("end time %s before start time %s", row.EndTime, row.StartTime)
	}

	record.StartTime = start.Format("15:04")
	record.EndTime = end.Format("15:04")
	record.Hours = RoundToQuarterHour(end.Sub(start).Hours())
	return record, nil
}

func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("missing date")
	}
	for _, layout := range dateLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return parsed.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", raw)
}

func parseClock(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("missing value")
	}
	for _, layout := range timeLayouts {
		if parsed, err := time.Parse(layout, strings.ToUpper(raw)); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable value %q", raw)
}
