package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/course-checkout/internal/middleware"
	"github.com/mmeshcher/course-checkout/internal/model"
	"github.com/mmeshcher/course-checkout/internal/testutil"
)

func useMemStore(t *testing.T) *testutil.MemStore {
	t.Helper()

	mem := testutil.NewMemStore()
	mem.AddUser(model.User{ID: 7, Name: "Ann", Email: "ann@example.com"})
	mem.AddCourse(model.Course{ID: 42, Title: "Go in Practice", Price: 1000, Discount: 10})

	prev := openStore
	openStore = func(string) (store, error) { return mem, nil }
	t.Cleanup(func() { openStore = prev })

	return mem
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)

	err := root.Execute()
	return out.String(), err
}

func TestRelink_CompletedPurchase(t *testing.T) {
	mem := useMemStore(t)
	mem.PutPurchase(model.Purchase{ID: "p-1", UserID: 7, CourseID: 42, Status: model.PurchaseStatusCompleted})

	out, err := run(t, "relink", "p-1", "--database", "postgres://test")
	require.NoError(t, err)

	assert.Contains(t, out, "user 7 linked to course 42")
	assert.Equal(t, []int64{42}, mem.User(7).EnrolledCourses)
	assert.Equal(t, []int64{7}, mem.Course(42).EnrolledStudents)

	_, err = run(t, "relink", "p-1", "--database", "postgres://test")
	require.NoError(t, err)
	assert.Equal(t, []int64{42}, mem.User(7).EnrolledCourses)
}

func TestRelink_RejectsNotCompleted(t *testing.T) {
	mem := useMemStore(t)
	mem.PutPurchase(model.Purchase{ID: "p-2", UserID: 7, CourseID: 42, Status: model.PurchaseStatusFailed})

	_, err := run(t, "relink", "p-2", "--database", "postgres://test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "only completed purchases")
	assert.Empty(t, mem.User(7).EnrolledCourses)
}

func TestRelink_RequiresDatabase(t *testing.T) {
	useMemStore(t)
	t.Setenv("DATABASE_URI", "")

	_, err := run(t, "relink", "p-1")
	require.Error(t, err)
}

func TestStale(t *testing.T) {
	mem := useMemStore(t)
	mem.PutPurchase(model.Purchase{ID: "p-old", UserID: 7, CourseID: 42, Amount: 900,
		Status: model.PurchaseStatusPending, CreatedAt: time.Now().Add(-3 * time.Hour)})
	mem.PutPurchase(model.Purchase{ID: "p-new", UserID: 7, CourseID: 42, Amount: 900,
		Status: model.PurchaseStatusPending, CreatedAt: time.Now()})

	out, err := run(t, "stale", "--database", "postgres://test", "--older-than", "1h")
	require.NoError(t, err)

	assert.Contains(t, out, "p-old")
	assert.NotContains(t, out, "p-new")
}

func TestToken(t *testing.T) {
	out, err := run(t, "token", "7", "--auth-secret", "s3cret")
	require.NoError(t, err)

	id, ok := middleware.NewAuthMiddleware("s3cret").ParseToken(strings.TrimSpace(out))
	require.True(t, ok)
	assert.Equal(t, int64(7), id)

	_, err = run(t, "token", "abc", "--auth-secret", "s3cret")
	require.Error(t, err)
}
