package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"partner-incentives/pkg/errutil"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestClassify(t *testing.T) {
	require.NoError(t, Classify(nil))

	conflict := fmt.Errorf("commit: %w", &pgconn.PgError{Code: "40001"})
	require.True(t, Retryable(conflict))
	err := Classify(conflict)
	require.Equal(t, errutil.StatusAborted, errutil.StatusOf(err))
	require.Equal(t, errutil.ReasonRetry, errutil.ReasonOf(err))

	require.Equal(t, errutil.StatusConflict, errutil.StatusOf(Classify(gorm.ErrDuplicatedKey)))

	already := errutil.NotFound("award not found", nil)
	require.Equal(t, already, Classify(already))

	plain := errors.New("disk full")
	require.False(t, Retryable(plain))
	require.Equal(t, plain, Classify(plain))
}

type counter struct {
	ID int `gorm:"primaryKey"`
	N  int
}

func TestTransactRollsBack(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open(t.TempDir()+"/tx.db"), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&counter{}))
	require.NoError(t, conn.Create(&counter{ID: 1}).Error)

	boom := errutil.UnprocessableEntity("nope", nil)
	err = Transact(context.Background(), conn, func(tx *gorm.DB) error {
		if err := tx.Model(&counter{}).Where("id = ?", 1).Update("n", 5).Error; err != nil {
			return err
		}
		return boom
	})
	require.Equal(t, boom, err)

	var c counter
	require.NoError(t, conn.First(&c, 1).Error)
	require.Zero(t, c.N)

	require.ErrorIs(t, Transact(context.Background(), nil, func(*gorm.DB) error { return nil }), gorm.ErrInvalidDB)
}
