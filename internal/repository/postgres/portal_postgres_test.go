package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
)

func TestPortalPostgres_ListItemViews(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	repo := NewPortalPostgres(db)
	ctx := context.Background()

	rows := sqlmock.NewRows([]string{"id", "portal_id", "label", "required", "order_key", "created_at", "uploaded"}).
		AddRow("i-1", "p-1", "Passport", true, 1, time.Now(), true).
		AddRow("i-2", "p-1", "Utility bill", false, 2, time.Now(), false)

	mock.ExpectQuery("SELECT (.+) FROM portal_request_items i").
		WithArgs("p-1").
		WillReturnRows(rows)

	items, err := repo.ListItemViews(ctx, "p-1")

	assert.NoError(t, err)
	assert.Len(t, items, 2)
	assert.True(t, items[0].Uploaded)
	assert.False(t, items[1].Uploaded)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPortalPostgres_MaxOrderKey(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	repo := NewPortalPostgres(db)
	ctx := context.Background()

	t.Run("with items", func(t *testing.T) {
		mock.ExpectQuery("SELECT COALESCE\\(MAX\\(order_key\\), 0\\)").
			WithArgs("p-1").
			WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(7))

		n, err := repo.MaxOrderKey(ctx, "p-1")
		assert.NoError(t, err)
		assert.Equal(t, 7, n)
	})

	t.Run("empty portal", func(t *testing.T) {
		mock.ExpectQuery("SELECT COALESCE\\(MAX\\(order_key\\), 0\\)").
			WithArgs("p-2").
			WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(0))

		n, err := repo.MaxOrderKey(ctx, "p-2")
		assert.NoError(t, err)
		assert.Equal(t, 0, n)
	})
}

func TestPortalPostgres_DeleteItem(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	repo := NewPortalPostgres(db)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM portal_submissions").
		WithArgs("i-1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("DELETE FROM portal_request_items").
		WithArgs("i-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	assert.NoError(t, repo.DeleteItem(ctx, "i-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
