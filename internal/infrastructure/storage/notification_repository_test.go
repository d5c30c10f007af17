package storage

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"MarketScanner/internal/domain"
)

func TestHasNotification(t *testing.T) {
	cases := []struct {
		name   string
		exists bool
	}{
		{"already sent", true},
		{"never sent", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store, mock := setupMock(t)

			rows := sqlmock.NewRows([]string{"exists"}).AddRow(tc.exists)
			mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
				WithArgs("ebay-uk:12345").
				WillReturnRows(rows)

			got, err := store.HasNotification(context.Background(), "ebay-uk:12345")
			if err != nil {
				t.Fatalf("HasNotification error: %v", err)
			}
			if got != tc.exists {
				t.Fatalf("expected %v, got %v", tc.exists, got)
			}

			expectationsMet(t, mock)
		})
	}
}

func TestWriteNotification(t *testing.T) {
	store, mock := setupMock(t)

	rec := domain.NotificationRecord{
		ListingKey: "ebay-uk:12345",
		NotifiedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO notifications")).
		WithArgs(rec.ListingKey, rec.NotifiedAt).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := store.WriteNotification(context.Background(), rec); err != nil {
		t.Fatalf("WriteNotification error: %v", err)
	}

	expectationsMet(t, mock)
}
