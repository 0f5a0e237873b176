package store

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/me/postpilot/pkg/model"
)

func mockStore(t *testing.T) (*SQLiteStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewSQLiteStoreFromDB(db, slog.New(slog.NewTextHandler(io.Discard, nil))), mock
}

func TestApplyFeedback_RollsBackOnAggregateFailure(t *testing.T) {
	st, mock := mockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id, template_id FROM performance_records WHERE post_id = \?`).
		WithArgs("post_1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "template_id"}).AddRow("perf_1", "tpl_a"))
	mock.ExpectExec(`UPDATE performance_records`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT COUNT\(\*\)`).
		WithArgs("tpl_a").
		WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	_, err := st.ApplyFeedback(context.Background(), "post_1", model.Metrics{Views: 10, Likes: 1}, time.Now())
	if err == nil {
		t.Fatal("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestApplyFeedback_UnknownPostRollsBack(t *testing.T) {
	st, mock := mockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id, template_id FROM performance_records`).
		WithArgs("post_x").
		WillReturnRows(sqlmock.NewRows([]string{"id", "template_id"}))
	mock.ExpectRollback()

	_, err := st.ApplyFeedback(context.Background(), "post_x", model.Metrics{Views: 10}, time.Now())
	if !errors.Is(err, model.ErrUnknownPost) {
		t.Fatalf("err = %v, want ErrUnknownPost", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestCompleteGeneration_StaleEntrySkipsInsert(t *testing.T) {
	st, mock := mockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE schedule_entries`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	e := &model.ScheduleEntry{ID: "sch_1", PostID: "post_1", ScheduledTime: time.Now()}
	ok, err := st.CompleteGeneration(context.Background(), e, model.NewPerformanceRecord("perf_1", e, nil, time.Now()))
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if ok {
		t.Error("expected false for non-pending entry")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}
