package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"vaultcore/internal/model"
	"vaultcore/internal/repository"
)

func TestSharePostgres_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	repo := NewSharePostgres(db)
	ctx := context.Background()

	now := time.Now().UTC()
	link := &model.ShareLink{
		Token:       "tok-abc",
		TenantID:    "t-1",
		DocumentIDs: []string{"d-1", "d-2"},
		CreatedAt:   now,
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO share_links").
		WithArgs(link.Token, link.TenantID, nil, nil, nil, 0, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO share_link_documents").
		WithArgs(link.Token, "d-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO share_link_documents").
		WithArgs(link.Token, "d-2").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	result, err := repo.Create(ctx, link)

	assert.NoError(t, err)
	assert.Equal(t, "tok-abc", result.Token)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSharePostgres_FindByToken(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	repo := NewSharePostgres(db)
	ctx := context.Background()

	t.Run("found with batch", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{"token", "tenant_id", "pin_hash", "expires_at", "max_downloads", "download_count", "created_at"}).
			AddRow("tok-abc", "t-1", nil, nil, 3, 1, time.Now())

		mock.ExpectQuery("SELECT (.+) FROM share_links WHERE token = ?").
			WithArgs("tok-abc").
			WillReturnRows(rows)
		mock.ExpectQuery("SELECT document_id FROM share_link_documents").
			WithArgs("tok-abc").
			WillReturnRows(sqlmock.NewRows([]string{"document_id"}).AddRow("d-1").AddRow("d-2"))

		link, err := repo.FindByToken(ctx, "tok-abc")

		assert.NoError(t, err)
		assert.Equal(t, []string{"d-1", "d-2"}, link.DocumentIDs)
		assert.Equal(t, 1, link.DownloadCount)
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM share_links WHERE token = ?").
			WithArgs("missing").
			WillReturnError(sql.ErrNoRows)

		link, err := repo.FindByToken(ctx, "missing")

		assert.ErrorIs(t, err, repository.ErrNotFound)
		assert.Nil(t, link)
	})
}

func TestSharePostgres_IncrementDownload(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	repo := NewSharePostgres(db)
	ctx := context.Background()

	t.Run("under limit", func(t *testing.T) {
		mock.ExpectExec("UPDATE share_links").
			WithArgs("tok-abc").
			WillReturnResult(sqlmock.NewResult(0, 1))

		ok, err := repo.IncrementDownload(ctx, "tok-abc")

		assert.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("limit reached", func(t *testing.T) {
		mock.ExpectExec("UPDATE share_links").
			WithArgs("tok-abc").
			WillReturnResult(sqlmock.NewResult(0, 0))

		ok, err := repo.IncrementDownload(ctx, "tok-abc")

		assert.NoError(t, err)
		assert.False(t, ok)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}
