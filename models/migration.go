package models

import (
	"log"

	"bitbucket.org/mmdatafocus/crm_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Deal{},
		&Quote{}, &QuoteItem{},
		&Invoice{}, &InvoiceItem{},
		&Shipment{},
		&Contract{},
		&Product{}, &StockMovement{},
		&FinanceRecord{},
		&Task{},
		&History{},
		&NotificationEvent{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
