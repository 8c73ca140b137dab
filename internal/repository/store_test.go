package repository

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/course-checkout/internal/model"
)

const purchaseID = "3f6c1e9a-2b4d-4c8e-9a1f-0d2e3c4b5a69"

func newMockRepository(t *testing.T) (*PostgresRepository, pgxmock.PgxPoolIface) {
	t.Helper()

	pool, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	return &PostgresRepository{pool: pool}, pool
}

// sqlLike собирает шаблон запроса из фрагментов, идущих в указанном порядке.
func sqlLike(parts ...string) string {
	quoted := make([]string, 0, len(parts))
	for _, p := range parts {
		quoted = append(quoted, regexp.QuoteMeta(p))
	}
	return "(?s)" + strings.Join(quoted, ".*")
}

var transitionSQL = sqlLike(
	"WITH upd AS",
	"UPDATE purchases",
	"SET status = $2",
	"WHERE id = $1::uuid AND status = $3",
	"RETURNING id",
	"SELECT EXISTS (SELECT 1 FROM upd)",
	"EXISTS (SELECT 1 FROM purchases WHERE id = $1::uuid)",
)

func TestTransitionPurchase(t *testing.T) {
	tests := []struct {
		name        string
		applied     bool
		found       bool
		wantApplied bool
		wantFound   bool
	}{
		{name: "pending becomes terminal", applied: true, found: true, wantApplied: true, wantFound: true},
		{name: "already terminal", applied: false, found: true, wantApplied: false, wantFound: true},
		{name: "missing", applied: false, found: false, wantApplied: false, wantFound: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, mock := newMockRepository(t)

			mock.ExpectQuery(transitionSQL).
				WithArgs(purchaseID, "completed", "pending").
				WillReturnRows(pgxmock.NewRows([]string{"applied", "found"}).AddRow(tt.applied, tt.found))

			applied, found, err := r.TransitionPurchase(context.Background(), purchaseID, model.PurchaseStatusCompleted)
			require.NoError(t, err)
			assert.Equal(t, tt.wantApplied, applied)
			assert.Equal(t, tt.wantFound, found)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestTransitionPurchase_FailedOutcomeArgs(t *testing.T) {
	r, mock := newMockRepository(t)

	mock.ExpectQuery(transitionSQL).
		WithArgs(purchaseID, "failed", "pending").
		WillReturnRows(pgxmock.NewRows([]string{"applied", "found"}).AddRow(true, true))

	applied, _, err := r.TransitionPurchase(context.Background(), purchaseID, model.PurchaseStatusFailed)
	require.NoError(t, err)
	assert.True(t, applied)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionPurchase_MalformedIDSkipsQuery(t *testing.T) {
	r, mock := newMockRepository(t)

	applied, found, err := r.TransitionPurchase(context.Background(), "not-a-uuid", model.PurchaseStatusCompleted)
	require.NoError(t, err)
	assert.False(t, applied)
	assert.False(t, found)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionPurchase_StoreErrorIsTransient(t *testing.T) {
	r, mock := newMockRepository(t)

	mock.ExpectQuery(transitionSQL).
		WithArgs(purchaseID, "completed", "pending").
		WillReturnError(errors.New("connection reset"))

	_, _, err := r.TransitionPurchase(context.Background(), purchaseID, model.PurchaseStatusCompleted)
	require.ErrorIs(t, err, model.ErrTransient)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetPurchase(t *testing.T) {
	r, mock := newMockRepository(t)
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(sqlLike("SELECT id::text", "FROM purchases WHERE id = $1::uuid")).
		WithArgs(purchaseID).
		WillReturnRows(pgxmock.NewRows([]string{"id", "course_id", "user_id", "course_title", "amount", "status", "created_at", "updated_at"}).
			AddRow(purchaseID, int64(42), int64(7), "Go in Practice", int64(900), "pending", created, created))

	p, err := r.GetPurchase(context.Background(), purchaseID)
	require.NoError(t, err)
	assert.Equal(t, purchaseID, p.ID)
	assert.Equal(t, int64(900), p.Amount)
	assert.Equal(t, model.PurchaseStatusPending, p.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetPurchase_NotFound(t *testing.T) {
	t.Run("no rows", func(t *testing.T) {
		r, mock := newMockRepository(t)

		mock.ExpectQuery(sqlLike("FROM purchases WHERE id = $1::uuid")).
			WithArgs(purchaseID).
			WillReturnError(pgx.ErrNoRows)

		_, err := r.GetPurchase(context.Background(), purchaseID)
		require.ErrorIs(t, err, model.ErrNotFound)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("malformed id", func(t *testing.T) {
		r, mock := newMockRepository(t)

		_, err := r.GetPurchase(context.Background(), "p-1")
		require.ErrorIs(t, err, model.ErrNotFound)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGetCourseAndUser_NotFound(t *testing.T) {
	r, mock := newMockRepository(t)

	mock.ExpectQuery(sqlLike("FROM courses WHERE id = $1")).
		WithArgs(int64(42)).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery(sqlLike("FROM users WHERE id = $1")).
		WithArgs(int64(7)).
		WillReturnError(pgx.ErrNoRows)

	_, err := r.GetCourse(context.Background(), 42)
	require.ErrorIs(t, err, model.ErrNotFound)

	_, err = r.GetUser(context.Background(), 7)
	require.ErrorIs(t, err, model.ErrNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAddCourseToUser(t *testing.T) {
	userSQL := sqlLike(
		"UPDATE users",
		"SET enrolled_courses = array_append(enrolled_courses, $2::bigint)",
		"WHERE id = $1 AND NOT ($2::bigint = ANY (enrolled_courses))",
		"SELECT EXISTS (SELECT 1 FROM upd)",
		"EXISTS (SELECT 1 FROM users WHERE id = $1)",
	)

	tests := []struct {
		name      string
		added     bool
		found     bool
		wantAdded bool
		wantErr   error
	}{
		{name: "added", added: true, found: true, wantAdded: true},
		{name: "already enrolled", added: false, found: true, wantAdded: false},
		{name: "missing user", added: false, found: false, wantErr: model.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, mock := newMockRepository(t)

			mock.ExpectQuery(userSQL).
				WithArgs(int64(7), int64(42)).
				WillReturnRows(pgxmock.NewRows([]string{"added", "found"}).AddRow(tt.added, tt.found))

			added, err := r.AddCourseToUser(context.Background(), 7, 42)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantAdded, added)
			}
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestAddStudentToCourse(t *testing.T) {
	courseSQL := sqlLike(
		"UPDATE courses",
		"SET enrolled_students = array_append(enrolled_students, $2::bigint)",
		"WHERE id = $1 AND NOT ($2::bigint = ANY (enrolled_students))",
		"EXISTS (SELECT 1 FROM courses WHERE id = $1)",
	)

	t.Run("added", func(t *testing.T) {
		r, mock := newMockRepository(t)

		mock.ExpectQuery(courseSQL).
			WithArgs(int64(42), int64(7)).
			WillReturnRows(pgxmock.NewRows([]string{"added", "found"}).AddRow(true, true))

		added, err := r.AddStudentToCourse(context.Background(), 42, 7)
		require.NoError(t, err)
		assert.True(t, added)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing course", func(t *testing.T) {
		r, mock := newMockRepository(t)

		mock.ExpectQuery(courseSQL).
			WithArgs(int64(42), int64(7)).
			WillReturnRows(pgxmock.NewRows([]string{"added", "found"}).AddRow(false, false))

		_, err := r.AddStudentToCourse(context.Background(), 42, 7)
		require.ErrorIs(t, err, model.ErrNotFound)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}
