package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"match-workers/internal/batch"
	"match-workers/internal/common/logger"
	"match-workers/internal/matching"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

var (
	jobColumns       = []string{"id", "requirements", "nice_to_have", "experience_required", "location", "salary_max", "job_type"}
	candidateColumns = []string{"id", "skills", "experience_years", "location", "preferences"}
)

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	return db, mock
}

func beginTx(t *testing.T, mock sqlmock.Sqlmock, db *sql.DB) batch.Tx {
	mock.ExpectBegin()
	tx, err := New(db).Begin(context.Background())
	require.NoError(t, err)
	return tx
}

// ==========================
// Fetch Tests
// ==========================

func TestTx_FetchJob(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()
	tx := beginTx(t, mock, db)

	mock.ExpectQuery("FROM jobs WHERE id").
		WithArgs("job-1").
		WillReturnRows(sqlmock.NewRows(jobColumns).
			AddRow("job-1", []byte(`["Go","PostgreSQL"]`), []byte(`[{"name":"Kubernetes"}]`), 3, "Berlin, DE", 90000, "contract"))

	job, err := tx.FetchJob(context.Background(), "job-1")
	require.NoError(t, err)

	assert.Equal(t, matching.JobPosting{
		ID:                 "job-1",
		RequiredSkills:     []string{"Go", "PostgreSQL"},
		NiceToHaveSkills:   []string{"Kubernetes"},
		ExperienceRequired: 3,
		Location:           "Berlin, DE",
		SalaryMax:          90000,
		JobType:            "contract",
	}, job)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTx_FetchJob_NotFound(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()
	tx := beginTx(t, mock, db)

	mock.ExpectQuery("FROM jobs WHERE id").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(jobColumns))

	_, err := tx.FetchJob(context.Background(), "missing")

	assert.ErrorIs(t, err, batch.ErrNotFound)
	assert.Contains(t, err.Error(), "missing")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTx_FetchJob_DriverError(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()
	tx := beginTx(t, mock, db)

	mock.ExpectQuery("FROM jobs WHERE id").
		WithArgs("job-1").
		WillReturnError(&pq.Error{Code: "57014", Message: "canceling statement due to statement timeout"})

	_, err := tx.FetchJob(context.Background(), "job-1")

	assert.ErrorIs(t, err, batch.ErrPersistence)
	assert.Contains(t, err.Error(), "sqlstate 57014")
}

func TestTx_FetchCandidate_DecodesPreferences(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()
	tx := beginTx(t, mock, db)

	mock.ExpectQuery("FROM candidate_profiles WHERE id").
		WithArgs("cand-1").
		WillReturnRows(sqlmock.NewRows(candidateColumns).
			AddRow("cand-1", []byte(`["python", {"skill": "docker", "level": 3}]`), 5, "San Francisco, CA",
				[]byte(`{"job_types": "full-time", "work_modes": ["remote", "hybrid"], "remote": "true", "salary_min": "150000"}`)))

	c, err := tx.FetchCandidate(context.Background(), "cand-1")
	require.NoError(t, err)

	assert.Equal(t, []string{"python", "docker"}, c.Skills)
	assert.Equal(t, 5, c.ExperienceYears)
	assert.Equal(t, 150000, c.SalaryExpectation)
	assert.Equal(t, matching.Preferences{
		JobTypes:  []string{"full-time"},
		WorkModes: []string{"remote", "hybrid"},
		Remote:    true,
	}, c.Preferences)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTx_FetchCandidate_MalformedPreferences(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()
	tx := beginTx(t, mock, db)

	mock.ExpectQuery("FROM candidate_profiles WHERE id").
		WithArgs("cand-1").
		WillReturnRows(sqlmock.NewRows(candidateColumns).
			AddRow("cand-1", []byte(`[]`), 1, "", []byte(`{"salary_min": "a lot"}`)))

	_, err := tx.FetchCandidate(context.Background(), "cand-1")

	assert.ErrorIs(t, err, matching.ErrPreconditionViolation)
	assert.NotErrorIs(t, err, batch.ErrPersistence)
}

func TestTx_FetchCandidates(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()
	tx := beginTx(t, mock, db)

	mock.ExpectQuery("FROM candidate_profiles ORDER BY id LIMIT").
		WithArgs(1000).
		WillReturnRows(sqlmock.NewRows(candidateColumns).
			AddRow("cand-1", []byte(`["go"]`), 2, "Austin, TX", []byte(`{}`)).
			AddRow("cand-2", []byte(`[]`), 0, "", []byte(`{"remote": 1}`)))

	candidates, err := tx.FetchCandidates(context.Background(), 1000)
	require.NoError(t, err)

	require.Len(t, candidates, 2)
	assert.Equal(t, "cand-1", candidates[0].ID)
	assert.Equal(t, 0, candidates[0].SalaryExpectation)
	assert.True(t, candidates[1].Preferences.Remote)
	assert.Empty(t, candidates[1].Skills)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTx_FetchActiveJobs(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()
	tx := beginTx(t, mock, db)

	mock.ExpectQuery("FROM jobs WHERE lower").
		WithArgs(sqlmock.AnyArg(), 500).
		WillReturnRows(sqlmock.NewRows(jobColumns).
			AddRow("job-1", []byte(`["go"]`), []byte(`[]`), 0, "remote", 100000, "full-time"))

	jobs, err := tx.FetchActiveJobs(context.Background(), 500)
	require.NoError(t, err)

	require.Len(t, jobs, 1)
	assert.Equal(t, "remote", jobs[0].Location)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ==========================
// Upsert / Transaction Tests
// ==========================

func TestTx_UpsertMatch(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()
	tx := beginTx(t, mock, db)

	mock.ExpectExec("INSERT INTO job_matches").
		WithArgs(
			sqlmock.AnyArg(), // match ID (UUID)
			"job-1",
			"cand-1",
			0.783,
			[]byte(`["Remote position"]`),
			[]byte(`{"skills":0.5}`),
		).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := tx.UpsertMatch(context.Background(), batch.MatchRecord{
		JobID:           "job-1",
		CandidateID:     "cand-1",
		Score:           0.783,
		Reasons:         []string{"Remote position"},
		ComponentScores: map[string]float64{"skills": 0.5},
	})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	assert.NoError(t, tx.Rollback())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTx_UpsertMatch_NilReasonsStoredAsEmptyArray(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()
	tx := beginTx(t, mock, db)

	mock.ExpectExec("INSERT INTO job_matches").
		WithArgs(sqlmock.AnyArg(), "job-1", "cand-1", 0.1, []byte(`[]`), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := tx.UpsertMatch(context.Background(), batch.MatchRecord{JobID: "job-1", CandidateID: "cand-1", Score: 0.1})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTx_UpsertMatch_FailureThenRollback(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()
	tx := beginTx(t, mock, db)

	mock.ExpectExec("INSERT INTO job_matches").
		WillReturnError(errors.New("connection reset by peer"))
	mock.ExpectRollback()

	err := tx.UpsertMatch(context.Background(), batch.MatchRecord{JobID: "job-1", CandidateID: "cand-1"})
	assert.ErrorIs(t, err, batch.ErrPersistence)

	assert.NoError(t, tx.Rollback())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTx_UpsertMatch_SerializationFailureIsConflict(t *testing.T) {
	for _, code := range []pq.ErrorCode{"40001", "40P01"} {
		t.Run(string(code), func(t *testing.T) {
			db, mock := setupMockDB(t)
			defer db.Close()
			tx := beginTx(t, mock, db)

			mock.ExpectExec("INSERT INTO job_matches").
				WillReturnError(&pq.Error{Code: code, Message: "could not serialize access due to concurrent update"})

			err := tx.UpsertMatch(context.Background(), batch.MatchRecord{JobID: "job-1", CandidateID: "cand-1"})
			assert.ErrorIs(t, err, batch.ErrPersistence)
			assert.ErrorIs(t, err, batch.ErrConflict)
			assert.Contains(t, err.Error(), string(code))
		})
	}
}

func TestTx_UpsertMatch_ConstraintViolationIsNotConflict(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()
	tx := beginTx(t, mock, db)

	mock.ExpectExec("INSERT INTO job_matches").
		WillReturnError(&pq.Error{Code: "23503", Message: "violates foreign key constraint"})

	err := tx.UpsertMatch(context.Background(), batch.MatchRecord{JobID: "job-1", CandidateID: "cand-1"})
	assert.ErrorIs(t, err, batch.ErrPersistence)
	assert.NotErrorIs(t, err, batch.ErrConflict)
}

func TestStore_BeginFailure(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()

	mock.ExpectBegin().WillReturnError(errors.New("too many clients"))

	_, err := New(db).Begin(context.Background())
	assert.ErrorIs(t, err, batch.ErrPersistence)
}

// ==========================
// Runner Integration
// ==========================

func TestStore_WithRunner_NotFoundWritesNothing(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("FROM jobs WHERE id").
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows(jobColumns))
	mock.ExpectRollback()

	engine, err := matching.NewEngine(matching.DefaultWeights())
	require.NoError(t, err)
	runner := batch.NewRunner(New(db), matching.NewRanker(engine, 1), batch.DefaultOptions(), logger.NewTestLogger(t), nil)

	outcome := runner.MatchCandidatesForJob(context.Background(), "nope", 100)

	assert.Equal(t, batch.StatusError, outcome.Status)
	assert.Equal(t, "NOT_FOUND", outcome.ErrorCode)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_WithRunner_Success(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("FROM jobs WHERE id").
		WithArgs("job-1").
		WillReturnRows(sqlmock.NewRows(jobColumns).
			AddRow("job-1", []byte(`["go"]`), []byte(`[]`), 2, "Remote", 100000, "full-time"))
	mock.ExpectQuery("FROM candidate_profiles ORDER BY id LIMIT").
		WithArgs(1000).
		WillReturnRows(sqlmock.NewRows(candidateColumns).
			AddRow("cand-1", []byte(`["go"]`), 2, "Austin, TX", []byte(`{"salary_min": 90000}`)).
			AddRow("cand-2", []byte(`["java"]`), 1, "Austin, TX", []byte(`{}`)))
	mock.ExpectExec("INSERT INTO job_matches").
		WithArgs(sqlmock.AnyArg(), "job-1", "cand-1", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO job_matches").
		WithArgs(sqlmock.AnyArg(), "job-1", "cand-2", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	engine, err := matching.NewEngine(matching.DefaultWeights())
	require.NoError(t, err)
	runner := batch.NewRunner(New(db), matching.NewRanker(engine, 1), batch.DefaultOptions(), logger.NewTestLogger(t), nil)

	outcome := runner.MatchCandidatesForJob(context.Background(), "job-1", 100)

	assert.Equal(t, batch.StatusSuccess, outcome.Status)
	assert.Equal(t, 2, outcome.MatchesCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_WithRunner_ConcurrentWriteIsRetried(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()

	expectSnapshot := func() {
		mock.ExpectBegin()
		mock.ExpectQuery("FROM jobs WHERE id").
			WithArgs("job-1").
			WillReturnRows(sqlmock.NewRows(jobColumns).
				AddRow("job-1", []byte(`["go"]`), []byte(`[]`), 2, "Remote", 100000, "full-time"))
		mock.ExpectQuery("FROM candidate_profiles ORDER BY id LIMIT").
			WithArgs(1000).
			WillReturnRows(sqlmock.NewRows(candidateColumns).
				AddRow("cand-1", []byte(`["go"]`), 2, "Austin, TX", []byte(`{}`)))
	}

	// a candidate-side batch committed (job-1, cand-1) after this snapshot
	expectSnapshot()
	mock.ExpectExec("INSERT INTO job_matches").
		WithArgs(sqlmock.AnyArg(), "job-1", "cand-1", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnError(&pq.Error{Code: "40001", Message: "could not serialize access due to concurrent update"})
	mock.ExpectRollback()

	// the repeat overwrites the row: last write wins
	expectSnapshot()
	mock.ExpectExec("INSERT INTO job_matches").
		WithArgs(sqlmock.AnyArg(), "job-1", "cand-1", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	engine, err := matching.NewEngine(matching.DefaultWeights())
	require.NoError(t, err)
	runner := batch.NewRunner(New(db), matching.NewRanker(engine, 1), batch.DefaultOptions(), logger.NewTestLogger(t), nil)

	outcome := runner.MatchCandidatesForJob(context.Background(), "job-1", 100)

	assert.Equal(t, batch.StatusSuccess, outcome.Status, outcome.Error)
	assert.Equal(t, 1, outcome.MatchesCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ==========================
// Migration Tests
// ==========================

func TestMigrate(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS job_matches").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	applied, err := Migrate(context.Background(), db)
	require.NoError(t, err)

	assert.Equal(t, []string{"migrations/001_job_matches.sql"}, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate_Failure(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS job_matches").
		WillReturnError(&pq.Error{Code: "42501", Message: "permission denied for schema public"})
	mock.ExpectRollback()

	_, err := Migrate(context.Background(), db)

	assert.ErrorIs(t, err, batch.ErrPersistence)
	assert.Contains(t, err.Error(), "42501")
	assert.NoError(t, mock.ExpectationsWereMet())
}
