package store

import (
	"context"
	"log/slog"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/cascadialabs/turnengine/internal/llm"
)

func newTestSQLMessageStore(t *testing.T) (*SQLMessageStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectPrepare(regexp.QuoteMeta("INSERT INTO turnengine_messages"))
	mock.ExpectPrepare(regexp.QuoteMeta("SELECT role, content, tool_calls, tool_call_id, name"))
	mock.ExpectPrepare(regexp.QuoteMeta("DELETE FROM turnengine_messages WHERE context_id"))
	mock.ExpectPrepare(regexp.QuoteMeta("INSERT INTO turnengine_message_activity"))

	s, err := NewSQLMessageStore(db, slog.Default())
	if err != nil {
		t.Fatal(err)
	}
	return s, mock
}

func TestSQLMessageStoreAppendInsertsEachMessageAndTouchesActivity(t *testing.T) {
	s, mock := newTestSQLMessageStore(t)
	ctx := context.Background()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO turnengine_messages")).
		WithArgs("ctx1", "user", "hi", nil, "", "").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO turnengine_message_activity")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.Append(ctx, "ctx1", []llm.Message{{Role: llm.RoleUser, Content: "hi"}})
	if err != nil {
		t.Fatal(err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestSQLMessageStoreGetAllDecodesRows(t *testing.T) {
	s, mock := newTestSQLMessageStore(t)
	ctx := context.Background()

	rows := sqlmock.NewRows([]string{"role", "content", "tool_calls", "tool_call_id", "name"}).
		AddRow("user", "hi", nil, nil, nil).
		AddRow("assistant", "hello", nil, nil, nil)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT role, content, tool_calls, tool_call_id, name")).
		WithArgs("ctx1").
		WillReturnRows(rows)

	got, err := s.GetAll(ctx, "ctx1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Content != "hi" || got[1].Role != llm.RoleAssistant {
		t.Fatalf("unexpected messages: %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestSQLMessageStoreClearDeletesMessagesAndActivity(t *testing.T) {
	s, mock := newTestSQLMessageStore(t)
	ctx := context.Background()

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM turnengine_messages WHERE context_id")).
		WithArgs("ctx1").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM turnengine_message_activity WHERE context_id")).
		WithArgs("ctx1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.Clear(ctx, "ctx1"); err != nil {
		t.Fatal(err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}
