package models

import "time"

// ContractPeriod is an active tutoring engagement window for a
// student/tutor pair, provided by the contract lookup collaborator.
type ContractPeriod struct {
	ID        string    `db:"id" json:"id"`
	StudentID string    `db:"student_id" json:"student_id"`
	TutorID   string    `db:"tutor_id" json:"tutor_id"`
	StartDate time.Time `db:"start_date" json:"start_date"`
	EndDate   time.Time `db:"end_date" json:"end_date"`
	Active    bool      `db:"active" json:"active"`
}

// Covers reports whether the given date falls inside the window,
// boundaries inclusive.
func (c ContractPeriod) Covers(date time.Time) bool {
	if date.Before(c.StartDate) {
		return false
	}
	return !date.After(c.EndDate)
}
