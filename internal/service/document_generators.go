package service

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/noah-isme/tutor-invoicing-api/internal/models"
	"github.com/noah-isme/tutor-invoicing-api/pkg/export"
	pkgtemplate "github.com/noah-isme/tutor-invoicing-api/pkg/template"
)

// Converter turns renderable content into artifact bytes.
type Converter interface {
	Extension() string
	Convert(content export.Content) ([]byte, error)
}

// generationInput bundles everything a generator needs for one job. The
// session set is the reconciled feedback sheet, the source of truth for
// what actually happened.
type generationInput struct {
	job      models.Job
	sessions []models.Record
	rate     float64
	now      time.Time
}

// DocumentGenerator produces the renderable content for one document type.
type DocumentGenerator interface {
	Type() models.DocumentType
	Converter() Converter
	Build(tpl *models.Template, in generationInput) (export.Content, error)
}

func baseVars(in generationInput) map[string]string {
	month := time.Month(in.job.Month).String()
	return map[string]string{
		"month":        month,
		"year":         strconv.Itoa(in.job.Year),
		"period":       fmt.Sprintf("%s %d", month, in.job.Year),
		"generated_at": in.now.Format("2006-01-02"),
	}
}

func renderBody(renderer *pkgtemplate.Renderer, tpl *models.Template, vars map[string]string) ([]string, error) {
	rendered, err := renderer.Render(tpl.Body, vars, tpl.Schema.Defaults)
	if err != nil {
		return nil, err
	}
	return strings.Split(rendered, "\n"), nil
}

func attendedSessions(sessions []models.Record) []models.Record {
	attended := make([]models.Record, 0, len(sessions))
	for _, s := range sessions {
		if !s.NoShow {
			attended = append(attended, s)
		}
	}
	return attended
}

// attendanceGenerator produces the monthly attendance record as a PDF
// listing every session with its hours and attendance outcome.
type attendanceGenerator struct {
	renderer  *pkgtemplate.Renderer
	converter Converter
}

func newAttendanceGenerator(renderer *pkgtemplate.Renderer) *attendanceGenerator {
	return &attendanceGenerator{renderer: renderer, converter: export.NewPDFExporter()}
}

func (g *attendanceGenerator) Type() models.DocumentType { return models.DocTypeAttendanceRecord }

func (g *attendanceGenerator) Converter() Converter { return g.converter }

func (g *attendanceGenerator) Build(tpl *models.Template, in generationInput) (export.Content, error) {
	body, err := renderBody(g.renderer, tpl, baseVars(in))
	if err != nil {
		return export.Content{}, err
	}

	headers := []string{"Date", "Student", "Tutor", "Start", "End", "Hours", "Attendance"}
	rows := make([]map[string]string, 0, len(in.sessions))
	var total float64
	for _, s := range in.sessions {
		attendance := "present"
		if s.NoShow {
			attendance = "no-show"
		} else {
			total += s.Hours
		}
		rows = append(rows, map[string]string{
			"Date":       s.Date.Format("2006-01-02"),
			"Student":    s.StudentName,
			"Tutor":      s.TutorName,
			"Start":      s.StartTime,
			"End":        s.EndTime,
			"Hours":      formatHours(s.Hours),
			"Attendance": attendance,
		})
	}

	return export.Content{
		Title: fmt.Sprintf("Attendance Record %s %d", time.Month(in.job.Month), in.job.Year),
		Body:  body,
		Table: export.Dataset{Headers: headers, Rows: rows},
		Footer: []string{
			fmt.Sprintf("Total attended hours: %s", formatHours(total)),
			"",
			"Tutor signature: ______________________",
			"Guardian signature: ______________________",
		},
	}, nil
}

// progressGenerator produces the monthly progress report as a PDF built
// from the tutors' per-session feedback and goals.
type progressGenerator struct {
	renderer  *pkgtemplate.Renderer
	converter Converter
}

func newProgressGenerator(renderer *pkgtemplate.Renderer) *progressGenerator {
	return &progressGenerator{renderer: renderer, converter: export.NewPDFExporter()}
}

func (g *progressGenerator) Type() models.DocumentType { return models.DocTypeProgressReport }

func (g *progressGenerator) Converter() Converter { return g.converter }

func (g *progressGenerator) Build(tpl *models.Template, in generationInput) (export.Content, error) {
	body, err := renderBody(g.renderer, tpl, baseVars(in))
	if err != nil {
		return export.Content{}, err
	}

	headers := []string{"Date", "Student", "Tutor", "Goal", "Feedback"}
	attended := attendedSessions(in.sessions)
	rows := make([]map[string]string, 0, len(attended))
	for _, s := range attended {
		rows = append(rows, map[string]string{
			"Date":     s.Date.Format("2006-01-02"),
			"Student":  s.StudentName,
			"Tutor":    s.TutorName,
			"Goal":     deref(s.Goal),
			"Feedback": deref(s.Feedback),
		})
	}

	return export.Content{
		Title: fmt.Sprintf("Progress Report %s %d", time.Month(in.job.Month), in.job.Year),
		Body:  body,
		Table: export.Dataset{Headers: headers, Rows: rows},
	}, nil
}

// invoiceGenerator produces the invoice sheet as CSV with one line per
// tutor. The hourly rate variable is only supplied when configured;
// otherwise the template's own default has to carry it.
type invoiceGenerator struct {
	renderer  *pkgtemplate.Renderer
	converter Converter
}

func newInvoiceGenerator(renderer *pkgtemplate.Renderer) *invoiceGenerator {
	return &invoiceGenerator{renderer: renderer, converter: export.NewCSVExporter()}
}

func (g *invoiceGenerator) Type() models.DocumentType { return models.DocTypeInvoice }

func (g *invoiceGenerator) Converter() Converter { return g.converter }

func (g *invoiceGenerator) Build(tpl *models.Template, in generationInput) (export.Content, error) {
	vars := baseVars(in)
	if in.rate > 0 {
		vars["rate"] = fmt.Sprintf("%.2f", in.rate)
	}
	body, err := renderBody(g.renderer, tpl, vars)
	if err != nil {
		return export.Content{}, err
	}

	rate := in.rate
	if rate <= 0 {
		if raw, ok := tpl.Schema.Defaults["rate"]; ok {
			rate, _ = strconv.ParseFloat(raw, 64)
		}
	}

	type tutorTotal struct {
		id    string
		name  string
		hours float64
	}
	totals := make(map[string]*tutorTotal)
	for _, s := range attendedSessions(in.sessions) {
		t, ok := totals[s.TutorID]
		if !ok {
			t = &tutorTotal{id: s.TutorID, name: s.TutorName}
			totals[s.TutorID] = t
		}
		t.hours += s.Hours
	}

	ordered := make([]*tutorTotal, 0, len(totals))
	for _, t := range totals {
		ordered = append(ordered, t)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].id < ordered[j].id })

	headers := []string{"Tutor ID", "Tutor", "Hours", "Rate", "Amount"}
	rows := make([]map[string]string, 0, len(ordered))
	var grandTotal float64
	for _, t := range ordered {
		amount := t.hours * rate
		grandTotal += amount
		rows = append(rows, map[string]string{
			"Tutor ID": t.id,
			"Tutor":    t.name,
			"Hours":    formatHours(t.hours),
			"Rate":     fmt.Sprintf("%.2f", rate),
			"Amount":   fmt.Sprintf("%.2f", amount),
		})
	}

	return export.Content{
		Title:  fmt.Sprintf("Invoice %s %d", time.Month(in.job.Month), in.job.Year),
		Body:   body,
		Table:  export.Dataset{Headers: headers, Rows: rows},
		Footer: []string{fmt.Sprintf("Total due: %.2f", grandTotal)},
	}, nil
}

// serviceLogGenerator produces the service log as CSV covering every
// session of the month, no-shows included, for the agency's records.
type serviceLogGenerator struct {
	renderer  *pkgtemplate.Renderer
	converter Converter
}

func newServiceLogGenerator(renderer *pkgtemplate.Renderer) *serviceLogGenerator {
	return &serviceLogGenerator{renderer: renderer, converter: export.NewCSVExporter()}
}

func (g *serviceLogGenerator) Type() models.DocumentType { return models.DocTypeServiceLog }

func (g *serviceLogGenerator) Converter() Converter { return g.converter }

func (g *serviceLogGenerator) Build(tpl *models.Template, in generationInput) (export.Content, error) {
	body, err := renderBody(g.renderer, tpl, baseVars(in))
	if err != nil {
		return export.Content{}, err
	}

	headers := []string{"Date", "Student ID", "Student", "Tutor ID", "Tutor", "Service", "Hours"}
	rows := make([]map[string]string, 0, len(in.sessions))
	for _, s := range in.sessions {
		service := "tutoring session"
		if s.NoShow {
			service = "no-show"
		}
		rows = append(rows, map[string]string{
			"Date":       s.Date.Format("2006-01-02"),
			"Student ID": s.StudentID,
			"Student":    s.StudentName,
			"Tutor ID":   s.TutorID,
			"Tutor":      s.TutorName,
			"Service":    service,
			"Hours":      formatHours(s.Hours),
		})
	}

	return export.Content{
		Title: fmt.Sprintf("Service Log %s %d", time.Month(in.job.Month), in.job.Year),
		Body:  body,
		Table: export.Dataset{Headers: headers, Rows: rows},
	}, nil
}

func formatHours(hours float64) string {
	return strconv.FormatFloat(hours, 'f', 2, 64)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
