package store

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safar/petplace/internal/database"
)

func TestEnsurePublicTokenIssuesForOwner(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectQuery("UPDATE pets").
		WithArgs(sqlmock.AnyArg(), int64(5), int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"public_token"}).AddRow("tok-1"))

	token, err := EnsurePublicToken(context.Background(), db, 2, 5)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", token)
}

func TestEnsurePublicTokenRejectsOtherUsers(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectQuery("WHERE id = \\$2 AND owner_id = \\$3").
		WithArgs(sqlmock.AnyArg(), int64(5), int64(999)).
		WillReturnRows(sqlmock.NewRows([]string{"public_token"}))

	_, err := EnsurePublicToken(context.Background(), db, 999, 5)
	assert.ErrorIs(t, err, database.ErrPetNotFound)
}

func TestQRCodeURL(t *testing.T) {
	assert.Equal(t, "https://petplace.test/p/abc", QRCodeURL("https://petplace.test/", "abc"))
	assert.Equal(t, "https://petplace.test/p/abc", QRCodeURL("https://petplace.test", "abc"))
}
