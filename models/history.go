package models

import (
	"context"
	"encoding/json"
	"time"

	"bitbucket.org/mmdatafocus/temple_backend/config"
	"bitbucket.org/mmdatafocus/temple_backend/utils"
	"gorm.io/gorm"
)

// History is the append-only audit trail. Rows are written inside the same
// transaction as the mutation they describe, so a committed action and its
// audit entry cannot diverge.
type History struct {
	ID            int       `gorm:"primary_key" json:"id"`
	ActionType    string    `gorm:"size:20;not null" json:"action_type"`
	After         string    `gorm:"type:text" json:"after"`
	Description   string    `gorm:"type:text;not null" json:"description"`
	ReferenceID   string    `gorm:"index;size:36" json:"reference_id"`
	ReferenceType string    `gorm:"size:100" json:"reference_type"`
	UserId        int       `gorm:"index" json:"user_id"`
	UserName      string    `gorm:"size:100" json:"user_name"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// createHistory writes an audit row in the caller's transaction. Background
// jobs have no session in context; those rows carry the system identity.
func createHistory(tx *gorm.DB,
	ctx context.Context,
	actionType string,
	referenceId string,
	referenceType string,
	after interface{},
	description string) error {

	a, _ := json.Marshal(after)

	userId, _ := utils.GetUserIdFromContext(ctx)
	userName, ok := utils.GetUserNameFromContext(ctx)
	if !ok || userName == "" {
		userName = "system"
	}

	history := History{
		ActionType:    actionType,
		After:         string(a),
		Description:   description,
		ReferenceID:   referenceId,
		ReferenceType: referenceType,
		UserId:        userId,
		UserName:      userName,
	}

	return tx.Create(&history).Error
}

// CreateHistoryInTx is the exported form for workflow code that audits inside
// its own transactions.
func CreateHistoryInTx(tx *gorm.DB,
	ctx context.Context,
	actionType string,
	referenceId string,
	referenceType string,
	after interface{},
	description string) error {
	return createHistory(tx, ctx, actionType, referenceId, referenceType, after, description)
}

func GetHistories(ctx context.Context, referenceId *string, referenceType *string, userId *int) ([]*History, error) {
	db := config.GetDB()
	var results []*History

	dbCtx := db.WithContext(ctx)
	if referenceId != nil && len(*referenceId) > 0 {
		dbCtx = dbCtx.Where("reference_id = ?", *referenceId)
	}
	if referenceType != nil && len(*referenceType) > 0 {
		dbCtx = dbCtx.Where("reference_type = ?", *referenceType)
	}
	if userId != nil && *userId > 0 {
		dbCtx = dbCtx.Where("user_id = ?", *userId)
	}
	err := dbCtx.Order("created_at DESC").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
