package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// LabelRecord is the GORM model persisted for every purchased label.
type LabelRecord struct {
	ID             uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	TrackingNumber string    `gorm:"type:varchar(256);index" json:"tracking_number"`
	Provider       string    `gorm:"type:varchar(32);not null;index" json:"provider"`
	Carrier        string    `gorm:"type:varchar(64)" json:"carrier"`
	Service        string    `gorm:"type:varchar(128)" json:"service"`
	Cost           float64   `json:"cost"`
	Currency       string    `gorm:"type:varchar(8)" json:"currency"`
	LabelFileID    string    `gorm:"type:varchar(512)" json:"label_file_id,omitempty"`
	LabelLink      string    `gorm:"type:varchar(1024)" json:"label_link,omitempty"`
	// From/To stored as JSON strings for simplicity
	FromAddressJSON string         `gorm:"type:jsonb" json:"-"`
	ToAddressJSON   string         `gorm:"type:jsonb" json:"-"`
	CreatedAt       time.Time      `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"autoUpdateTime" json:"-"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"-"`
}

// LabelPurchasedEvent is published to SNS after a label purchase succeeds.
type LabelPurchasedEvent struct {
	EventType      string    `json:"event_type"`
	RecordID       string    `json:"record_id"`
	Provider       string    `json:"provider"`
	TrackingNumber string    `json:"tracking_number"`
	Carrier        string    `json:"carrier"`
	LabelLink      string    `json:"label_link,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}
