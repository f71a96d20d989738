package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/Skotchmaster/online_kart/internal/models"
)

var ErrStockShortage = errors.New("stock shortage")

type GormRepo struct {
	DB *gorm.DB
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(models.All()...)
}

// Transaction runs fn against a repo bound to a single database transaction.
func (r *GormRepo) Transaction(ctx context.Context, fn func(tx *GormRepo) error) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormRepo{DB: tx})
	})
}

// SetLockTimeout bounds row lock waits for the current transaction. Only PostgreSQL knows the
// setting; on SQLite the single pooled connection already serializes writers.
func (r *GormRepo) SetLockTimeout(ctx context.Context, d time.Duration) error {
	if d <= 0 || r.DB.Dialector.Name() != "postgres" {
		return nil
	}
	return r.DB.WithContext(ctx).Exec(fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", d.Milliseconds())).Error
}

func (r *GormRepo) Ping(ctx context.Context) error {
	sqlDB, err := r.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
