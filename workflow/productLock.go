package workflow

import (
	"fmt"

	"gorm.io/gorm"
)

// AcquireProductLock serializes inventory updates per product across instances
// using MySQL advisory locks.
// NOTE: GET_LOCK is connection-scoped, so this must be called on the same
// *gorm.DB that will do the posting transaction.
func AcquireProductLock(tx *gorm.DB, companyId string, productId int) error {
	lockName := fmt.Sprintf("product:%s:%d", companyId, productId)
	var ok int
	if err := tx.Raw("SELECT GET_LOCK(?, 30)", lockName).Scan(&ok).Error; err != nil {
		return err
	}
	if ok != 1 {
		return fmt.Errorf("could not acquire inventory lock for product_id=%d", productId)
	}
	return nil
}

func ReleaseProductLock(tx *gorm.DB, companyId string, productId int) {
	lockName := fmt.Sprintf("product:%s:%d", companyId, productId)
	var _ok int
	_ = tx.Raw("SELECT RELEASE_LOCK(?)", lockName).Scan(&_ok).Error
}
