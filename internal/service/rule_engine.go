package service

import (
	"fmt"
	"sort"
	"time"

	"github.com/noah-isme/tutor-invoicing-api/internal/models"
	"github.com/noah-isme/tutor-invoicing-api/pkg/config"
	appErrors "github.com/noah-isme/tutor-invoicing-api/pkg/errors"
)

// RuleEngine evaluates normalized records against the agency's business
// rules. Evaluation is pure: identical inputs always yield an identical,
// identically-ordered issue list, which keeps re-validation idempotent.
type RuleEngine struct {
	weeklyHourCap      float64
	monthlyNoShowCap   int
	reconcileTolerance float64
	workdayStart       string
	workdayEnd         string
}

// NewRuleEngine constructs the engine from pipeline configuration,
// falling back to the agency defaults for unset thresholds.
func NewRuleEngine(cfg config.PipelineConfig) *RuleEngine {
	e := &RuleEngine{
		weeklyHourCap:      cfg.WeeklyHourCap,
		monthlyNoShowCap:   cfg.MonthlyNoShowCap,
		reconcileTolerance: cfg.ReconcileTolerance,
		workdayStart:       cfg.WorkdayStart,
		workdayEnd:         cfg.WorkdayEnd,
	}
	if e.weeklyHourCap <= 0 {
		e.weeklyHourCap = 4
	}
	if e.monthlyNoShowCap <= 0 {
		e.monthlyNoShowCap = 2
	}
	if e.reconcileTolerance <= 0 {
		e.reconcileTolerance = 0.25
	}
	if e.workdayStart == "" {
		e.workdayStart = "10:00"
	}
	if e.workdayEnd == "" {
		e.workdayEnd = "19:00"
	}
	return e
}

// Evaluate runs every rule over the two source record sets and returns
// the concatenated, deduplicated, deterministically ordered findings.
// Missing contract-period data for students present in the records is
// fatal to the whole pass, never a silently clean result.
func (e *RuleEngine) Evaluate(payroll, feedback []models.Record, contracts []models.ContractPeriod) ([]models.Issue, error) {
	merged := make([]models.Record, 0, len(payroll)+len(feedback))
	merged = append(merged, payroll...)
	merged = append(merged, feedback...)

	if len(merged) > 0 && len(contracts) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "contract period data unavailable, cannot evaluate")
	}

	var issues []models.Issue
	issues = append(issues, e.checkContractPeriods(merged, contracts)...)
	issues = append(issues, e.checkWorkingHours(merged)...)
	issues = append(issues, e.checkHourReconciliation(payroll, feedback)...)
	issues = append(issues, e.checkNoShowCap(feedback)...)
	issues = append(issues, e.checkWeeklyHourCap(feedback)...)

	issues = dedupeIssues(issues)
	sortIssues(issues)
	return issues, nil
}

// checkContractPeriods flags sessions dated outside the student/tutor
// active contract window.
func (e *RuleEngine) checkContractPeriods(records []models.Record, contracts []models.ContractPeriod) []models.Issue {
	windows := make(map[string][]models.ContractPeriod)
	for _, c := range contracts {
		key := c.StudentID + "|" + c.TutorID
		windows[key] = append(windows[key], c)
	}

	var issues []models.Issue
	for _, rec := range records {
		key := rec.StudentID + "|" + rec.TutorID
		periods, ok := windows[key]
		if !ok {
			issues = append(issues, issueFor(rec, models.SeverityError, models.CategoryContractPeriod,
				fmt.Sprintf("no active contract for student %s with tutor %s", rec.StudentID, rec.TutorID)))
			continue
		}
		covered := false
		for _, p := range periods {
			if p.Covers(rec.Date) {
				covered = true
				break
			}
		}
		if !covered {
			issues = append(issues, issueFor(rec, models.SeverityError, models.CategoryContractPeriod,
				fmt.Sprintf("session on %s outside active contract window", rec.Date.Format("2006-01-02"))))
		}
	}
	return issues
}

// checkWorkingHours flags sessions overlapping the closed hours. Business
// allows a manual override, so these stay warnings.
func (e *RuleEngine) checkWorkingHours(records []models.Record) []models.Issue {
	var issues []models.Issue
	for _, rec := range records {
		if rec.NoShow || rec.StartTime == "" || rec.EndTime == "" {
			continue
		}
		if rec.StartTime < e.workdayStart || rec.EndTime > e.workdayEnd {
			issues = append(issues, issueFor(rec, models.SeverityWarning, models.CategoryWorkingHours,
				fmt.Sprintf("session %s-%s falls outside working hours %s-%s", rec.StartTime, rec.EndTime, e.workdayStart, e.workdayEnd)))
		}
	}
	return issues
}

type pairDay struct {
	StudentID string
	TutorID   string
	Date      time.Time
}

// checkHourReconciliation compares payroll-reported and feedback-reported
// hours per student/tutor/date within the configured tolerance.
func (e *RuleEngine) checkHourReconciliation(payroll, feedback []models.Record) []models.Issue {
	payrollHours := sumHoursByPairDay(payroll)
	feedbackHours := sumHoursByPairDay(feedback)

	keys := make(map[pairDay]struct{}, len(payrollHours)+len(feedbackHours))
	for k := range payrollHours {
		keys[k] = struct{}{}
	}
	for k := range feedbackHours {
		keys[k] = struct{}{}
	}

	ordered := make([]pairDay, 0, len(keys))
	for k := range keys {
		ordered = append(ordered, k)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].StudentID != ordered[j].StudentID {
			return ordered[i].StudentID < ordered[j].StudentID
		}
		if !ordered[i].Date.Equal(ordered[j].Date) {
			return ordered[i].Date.Before(ordered[j].Date)
		}
		return ordered[i].TutorID < ordered[j].TutorID
	})

	var issues []models.Issue
	for _, key := range ordered {
		p := payrollHours[key]
		f := feedbackHours[key]
		diff := p - f
		if diff < 0 {
			diff = -diff
		}
		if diff > e.reconcileTolerance {
			date := key.Date
			issues = append(issues, models.Issue{
				Severity:  models.SeverityError,
				Category:  models.CategoryHourReconciliation,
				StudentID: key.StudentID,
				TutorID:   key.TutorID,
				Date:      &date,
				Message:   fmt.Sprintf("payroll reports %.2f h, feedback reports %.2f h", p, f),
			})
		}
	}
	return issues
}

// checkNoShowCap counts no-show-flagged feedback records per student per
// calendar month and warns for each occurrence past the cap.
func (e *RuleEngine) checkNoShowCap(feedback []models.Record) []models.Issue {
	type monthKey struct {
		StudentID string
		Month     string
	}
	noShows := make(map[monthKey][]models.Record)
	for _, rec := range feedback {
		if !rec.NoShow {
			continue
		}
		key := monthKey{StudentID: rec.StudentID, Month: rec.Date.Format("2006-01")}
		noShows[key] = append(noShows[key], rec)
	}

	ordered := make([]monthKey, 0, len(noShows))
	for k := range noShows {
		ordered = append(ordered, k)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].StudentID != ordered[j].StudentID {
			return ordered[i].StudentID < ordered[j].StudentID
		}
		return ordered[i].Month < ordered[j].Month
	})

	var issues []models.Issue
	for _, key := range ordered {
		occurrences := noShows[key]
		sort.Slice(occurrences, func(i, j int) bool { return occurrences[i].Date.Before(occurrences[j].Date) })
		for i := e.monthlyNoShowCap; i < len(occurrences); i++ {
			issues = append(issues, issueFor(occurrences[i], models.SeverityWarning, models.CategoryNoShowCap,
				fmt.Sprintf("%d no-shows in %s exceeds cap of %d", i+1, key.Month, e.monthlyNoShowCap)))
		}
	}
	return issues
}

// checkWeeklyHourCap sums attended feedback hours per student per ISO
// calendar week against the weekly cap.
func (e *RuleEngine) checkWeeklyHourCap(feedback []models.Record) []models.Issue {
	type weekKey struct {
		StudentID string
		Week      string
	}
	hours := make(map[weekKey]float64)
	firstDate := make(map[weekKey]time.Time)
	tutor := make(map[weekKey]string)
	for _, rec := range feedback {
		if rec.NoShow {
			continue
		}
		year, week := rec.Date.ISOWeek()
		key := weekKey{StudentID: rec.StudentID, Week: fmt.Sprintf("%d-W%02d", year, week)}
		hours[key] += rec.Hours
		if existing, ok := firstDate[key]; !ok || rec.Date.Before(existing) {
			firstDate[key] = rec.Date
			tutor[key] = rec.TutorID
		}
	}

	ordered := make([]weekKey, 0, len(hours))
	for k := range hours {
		ordered = append(ordered, k)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].StudentID != ordered[j].StudentID {
			return ordered[i].StudentID < ordered[j].StudentID
		}
		return ordered[i].Week < ordered[j].Week
	})

	var issues []models.Issue
	for _, key := range ordered {
		total := hours[key]
		if total > e.weeklyHourCap {
			date := firstDate[key]
			issues = append(issues, models.Issue{
				Severity:  models.SeverityError,
				Category:  models.CategoryWeeklyHourCap,
				StudentID: key.StudentID,
				TutorID:   tutor[key],
				Date:      &date,
				Message:   fmt.Sprintf("%.2f h in week %s exceeds cap of %.2f h", total, key.Week, e.weeklyHourCap),
			})
		}
	}
	return issues
}

func issueFor(rec models.Record, severity models.IssueSeverity, category models.IssueCategory, message string) models.Issue {
	date := rec.Date
	return models.Issue{
		Severity:  severity,
		Category:  category,
		StudentID: rec.StudentID,
		TutorID:   rec.TutorID,
		Date:      &date,
		Message:   message,
	}
}

func sumHoursByPairDay(records []models.Record) map[pairDay]float64 {
	sums := make(map[pairDay]float64)
	for _, rec := range records {
		if rec.NoShow {
			continue
		}
		key := pairDay{StudentID: rec.StudentID, TutorID: rec.TutorID, Date: rec.Date}
		sums[key] += rec.Hours
	}
	return sums
}

func dedupeIssues(issues []models.Issue) []models.Issue {
	seen := make(map[string]struct{}, len(issues))
	out := issues[:0]
	for _, issue := range issues {
		key := issue.DedupeKey()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, issue)
	}
	return out
}

func sortIssues(issues []models.Issue) {
	sort.SliceStable(issues, func(i, j int) bool {
		if issues[i].StudentID != issues[j].StudentID {
			return issues[i].StudentID < issues[j].StudentID
		}
		di, dj := issueDate(issues[i]), issueDate(issues[j])
		if !di.Equal(dj) {
			return di.Before(dj)
		}
		if issues[i].Category != issues[j].Category {
			return issues[i].Category < issues[j].Category
		}
		return issues[i].Message < issues[j].Message
	})
}

func issueDate(issue models.Issue) time.Time {
	if issue.Date == nil {
		return time.Time{}
	}
	return *issue.Date
}
