package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newMockLedger(t *testing.T) (*Ledger, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return New(gormDB), mock
}

func TestReserve(t *testing.T) {
	tests := []struct {
		name     string
		affected int64
		expected bool
	}{
		{name: "enough stock", affected: 1, expected: true},
		{name: "out of stock", affected: 0, expected: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, mock := newMockLedger(t)
			mock.ExpectExec(`UPDATE "vouchers" SET "available_quantity"=available_quantity - \$1 WHERE (.*)id = \$2 AND available_quantity >= \$3`).
				WithArgs(2, sqlmock.AnyArg(), 2).
				WillReturnResult(sqlmock.NewResult(0, tt.affected))

			ok, err := l.Reserve(context.Background(), uuid.New(), 2)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, ok)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestReserveStorageError(t *testing.T) {
	l, mock := newMockLedger(t)
	mock.ExpectExec(`UPDATE "vouchers"`).WillReturnError(errors.New("connection reset"))

	ok, err := l.Reserve(context.Background(), uuid.New(), 1)
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestReserveRejectsNonPositive(t *testing.T) {
	l, mock := newMockLedger(t)

	ok, err := l.Reserve(context.Background(), uuid.New(), 0)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReleaseIsClamped(t *testing.T) {
	l, mock := newMockLedger(t)
	mock.ExpectExec(`UPDATE "vouchers" SET "available_quantity"=LEAST\(available_quantity \+ \$1, total_quantity\) WHERE (.*)id = \$2`).
		WithArgs(3, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, l.Release(context.Background(), uuid.New(), 3))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAvailable(t *testing.T) {
	l, mock := newMockLedger(t)
	mock.ExpectQuery(`SELECT (.*)available_quantity(.*) FROM "vouchers" WHERE (.*)id = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"available_quantity"}).AddRow(7))

	n, err := l.Available(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, 7, n)
}
