package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tutor-invoicing-api/internal/models"
)

func newIssueRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestIssueRepositoryBulkInsertFillsDefaults(t *testing.T) {
	db, mock, cleanup := newIssueRepoMock(t)
	defer cleanup()

	repo := NewIssueRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO issues")).
		WillReturnResult(sqlmock.NewResult(2, 2))

	issues := []models.Issue{
		{JobID: "job-1", Pass: 1, Severity: models.SeverityError, Category: models.CategoryContractPeriod, Message: "no active contract", StudentID: "S1", TutorID: "T1"},
		{JobID: "job-1", Pass: 1, Severity: models.SeverityWarning, Category: models.CategoryWorkingHours, Message: "outside working hours", StudentID: "S2", TutorID: "T1"},
	}
	require.NoError(t, repo.BulkInsert(context.Background(), issues))
	require.NotEmpty(t, issues[0].ID)
	require.Equal(t, models.IssueStatusPending, issues[0].Status)
	require.False(t, issues[1].CreatedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIssueRepositoryBulkInsertEmptySkipsQuery(t *testing.T) {
	db, mock, cleanup := newIssueRepoMock(t)
	defer cleanup()

	repo := NewIssueRepository(db)
	require.NoError(t, repo.BulkInsert(context.Background(), nil))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIssueRepositoryListByJobLatestPassOnly(t *testing.T) {
	db, mock, cleanup := newIssueRepoMock(t)
	defer cleanup()

	repo := NewIssueRepository(db)
	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "job_id", "pass", "severity", "category", "message", "student_id", "tutor_id", "date", "status", "resolution", "created_at", "resolved_at"}).
		AddRow("issue-1", "job-1", 2, "error", "hour_reconciliation", "payroll reports 2.00 h, feedback reports 1.50 h", "S1", "T1", now, "pending", nil, now, nil)
	mock.ExpectQuery(regexp.QuoteMeta("AND pass = (SELECT COALESCE(MAX(pass), 0) FROM issues WHERE job_id = $1)")).
		WithArgs("job-1").
		WillReturnRows(rows)

	issues, err := repo.ListByJob(context.Background(), "job-1", true)
	require.NoError(t, err)
	require.Len(t, issues, 1)
	require.Equal(t, 2, issues[0].Pass)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIssueRepositoryLatestPassDefaultsToZero(t *testing.T) {
	db, mock, cleanup := newIssueRepoMock(t)
	defer cleanup()

	repo := NewIssueRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(MAX(pass), 0) FROM issues")).
		WithArgs("job-1").
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(0))

	pass, err := repo.LatestPass(context.Background(), "job-1")
	require.NoError(t, err)
	require.Equal(t, 0, pass)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIssueRepositoryCountUnresolvedErrors(t *testing.T) {
	db, mock, cleanup := newIssueRepoMock(t)
	defer cleanup()

	repo := NewIssueRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM issues")).
		WithArgs("job-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	count, err := repo.CountUnresolvedErrors(context.Background(), "job-1")
	require.NoError(t, err)
	require.Equal(t, 3, count)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIssueRepositoryResolveGuardsIdempotence(t *testing.T) {
	db, mock, cleanup := newIssueRepoMock(t)
	defer cleanup()

	repo := NewIssueRepository(db)
	now := time.Now()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE issues SET status = 'resolved'")).
		WithArgs("contract backfilled", now, "issue-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	affected, err := repo.Resolve(context.Background(), "issue-1", "contract backfilled", now)
	require.NoError(t, err)
	require.EqualValues(t, 1, affected)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE issues SET status = 'resolved'")).
		WithArgs("contract backfilled", now, "issue-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	affected, err = repo.Resolve(context.Background(), "issue-1", "contract backfilled", now)
	require.NoError(t, err)
	require.EqualValues(t, 0, affected)

	require.NoError(t, mock.ExpectationsWereMet())
}
