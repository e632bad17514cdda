package models

import (
	"log"

	"bitbucket.org/mmdatafocus/temple_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Seva{}, &TokenUnit{},
		&Devotee{},
		&Sale{},
		&Reconciliation{}, &ReconciliationCounterSummary{}, &ReconciliationAdjustment{},
		&DayClosePostingRecord{},
		&History{},
		&User{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
