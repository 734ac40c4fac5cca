package models

import (
	"github.com/google/uuid"
)

// AttachmentType classifies a step attachment
type AttachmentType string

const (
	AttachmentImage    AttachmentType = "image"
	AttachmentBarcode  AttachmentType = "barcode"
	AttachmentQRCode   AttachmentType = "qrcode"
	AttachmentDocument AttachmentType = "document"
)

// StepDetail holds free-text notes, operator and interim shipping data for one job step
type StepDetail struct {
	Base
	JobID                  uuid.UUID `gorm:"type:uuid;not null;index" json:"job_id"`
	JobStepID              uuid.UUID `gorm:"type:uuid;not null;uniqueIndex" json:"step_id"`
	Details                string    `json:"details,omitempty"`
	OperatorName           string    `json:"operator_name,omitempty"`
	ShippingTrackingNumber string    `json:"shipping_tracking_number,omitempty"`
	ShippingCarrier        string    `json:"shipping_carrier,omitempty"`
	ShippingBarcodeImage   string    `json:"shipping_barcode_image,omitempty"`
	ShippingPackImage      string    `json:"shipping_pack_image,omitempty"`
	ShippingNotes          string    `json:"shipping_notes,omitempty"`
}

// StepAttachment is an image or document reference attached to a job step
type StepAttachment struct {
	Base
	JobID          uuid.UUID      `gorm:"type:uuid;not null;index" json:"job_id"`
	JobStepID      uuid.UUID      `gorm:"type:uuid;not null;index" json:"step_id"`
	AttachmentType AttachmentType `gorm:"type:varchar(20);not null" json:"attachment_type"`
	FileURL        string         `json:"file_url,omitempty"`
	FileName       string         `json:"file_name,omitempty"`
	BarcodeValue   string         `json:"barcode_value,omitempty"`
	QRCodeValue    string         `gorm:"column:qrcode_value" json:"qrcode_value,omitempty"`
	Description    string         `json:"description,omitempty"`
}

// StepData groups the detail and attachments of one job step
type StepData struct {
	StepID      uuid.UUID        `json:"step_id"`
	StepName    string           `json:"step_name"`
	Details     *StepDetail      `json:"details"`
	Attachments []StepAttachment `json:"attachments"`
}
