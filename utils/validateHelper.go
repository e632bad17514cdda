package utils

import (
	"context"
	"errors"

	"bitbucket.org/mmdatafocus/temple_backend/config"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ValidateStruct runs validator.v10 tag validation outside of gin binding
// (batch elements are not bound individually by gin).
func ValidateStruct(s interface{}) error {
	return validate.Struct(s)
}

// check if id exists, return RecordNotFound error
func ValidateResourceId[T any](ctx context.Context, id interface{}) error {
	count, err := ResourceCountWhere[T](ctx, "id = ?", id)
	if err != nil {
		return err
	}
	if count <= 0 {
		return ErrorRecordNotFound
	}
	return nil
}

func ResourceCountWhere[T any](ctx context.Context, cond string, values ...interface{}) (int64, error) {
	db := config.GetDB()
	var model T
	var count int64
	err := db.WithContext(ctx).Model(&model).Where(cond, values...).Count(&count).Error
	return count, err
}

// ValidateUnique fails when another row (id != exceptId) already holds the value.
func ValidateUnique[T any](ctx context.Context, column string, value interface{}, exceptId interface{}) error {
	count, err := ResourceCountWhere[T](ctx, column+" = ? AND id != ?", value, exceptId)
	if err != nil {
		return err
	}
	if count > 0 {
		return errors.New(column + " already exists")
	}
	return nil
}
