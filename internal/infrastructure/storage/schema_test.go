package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"MarketScanner/internal/domain"
)

func TestEnsureSchema(t *testing.T) {
	t.Parallel()

	p, mock := setupMock(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS listings").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := p.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	expectationsMet(t, mock)
}

func TestEnsureSchemaClassifiesError(t *testing.T) {
	t.Parallel()

	p, mock := setupMock(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS listings").
		WillReturnError(errors.New("permission denied"))

	err := p.EnsureSchema(context.Background())
	var perr *domain.PersistenceError
	if !errors.As(err, &perr) {
		t.Fatalf("expected PersistenceError, got %v", err)
	}
	if perr.Op != "ensure schema" {
		t.Fatalf("unexpected op %q", perr.Op)
	}
	expectationsMet(t, mock)
}
