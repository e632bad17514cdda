package workflow

import (
	"fmt"

	"gorm.io/gorm"
)

// AcquireDayCloseLock serializes day-close operations per date across
// instances using MySQL advisory locks.
// NOTE: GET_LOCK is connection-scoped, so this must be called on the same
// *gorm.DB connection that will run the day-close transaction.
func AcquireDayCloseLock(tx *gorm.DB, date string) error {
	lockName := fmt.Sprintf("dayclose:%s", date)
	var ok int
	if err := tx.Raw("SELECT GET_LOCK(?, 30)", lockName).Scan(&ok).Error; err != nil {
		return err
	}
	if ok != 1 {
		return fmt.Errorf("could not acquire day-close lock for date=%s", date)
	}
	return nil
}

func ReleaseDayCloseLock(tx *gorm.DB, date string) {
	lockName := fmt.Sprintf("dayclose:%s", date)
	var _ok int
	_ = tx.Raw("SELECT RELEASE_LOCK(?)", lockName).Scan(&_ok).Error
}
