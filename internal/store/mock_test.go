package store

import (
	"database/sql"
	"database/sql/driver"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})

	return db, mock
}

// decimalArg matches a bound decimal by value rather than by its string form.
type decimalArg string

func (d decimalArg) Match(v driver.Value) bool {
	want := decimal.RequireFromString(string(d))
	switch got := v.(type) {
	case string:
		parsed, err := decimal.NewFromString(got)
		return err == nil && parsed.Equal(want)
	case []byte:
		parsed, err := decimal.NewFromString(string(got))
		return err == nil && parsed.Equal(want)
	case float64:
		return decimal.NewFromFloat(got).Equal(want)
	case int64:
		return decimal.NewFromInt(got).Equal(want)
	}
	return false
}
