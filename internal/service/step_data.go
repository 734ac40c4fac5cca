package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"example.com/premeepro/production/internal/models"
	"example.com/premeepro/production/internal/repository"
	"example.com/premeepro/production/internal/validation"
)

// StepDetailInput is the free-text and shipping data recorded on a step
type StepDetailInput struct {
	Details                string `json:"details" validate:"max=5000"`
	OperatorName           string `json:"operator_name" validate:"max=100"`
	ShippingTrackingNumber string `json:"shipping_tracking_number" validate:"max=100"`
	ShippingCarrier        string `json:"shipping_carrier" validate:"max=100"`
	ShippingBarcodeImage   string `json:"shipping_barcode_image"`
	ShippingPackImage      string `json:"shipping_pack_image"`
	ShippingNotes          string `json:"shipping_notes" validate:"max=2000"`
}

// AttachmentInput adds an image, barcode, QR code or document to a step
type AttachmentInput struct {
	AttachmentType models.AttachmentType `json:"attachment_type" validate:"required,attachment_type"`
	FileURL        string                `json:"file_url" validate:"required_if=AttachmentType image,required_if=AttachmentType document,omitempty,url"`
	FileName       string                `json:"file_name" validate:"max=255"`
	BarcodeValue   string                `json:"barcode_value" validate:"required_if=AttachmentType barcode,max=255"`
	QRCodeValue    string                `json:"qrcode_value" validate:"required_if=AttachmentType qrcode,max=2000"`
	Description    string                `json:"description" validate:"max=500"`
}

// StepDataService manages the details and attachments of job steps
type StepDataService struct {
	repos *repository.Repositories
}

// NewStepDataService creates a step data service
func NewStepDataService(repos *repository.Repositories) *StepDataService {
	return &StepDataService{repos: repos}
}

// GetAll returns the detail and attachments of every step of a job, in step order
func (s *StepDataService) GetAll(ctx context.Context, jobID uuid.UUID) ([]models.StepData, error) {
	if _, err := s.repos.Jobs.Get(ctx, jobID); err != nil {
		return nil, err
	}
	steps, err := s.repos.JobSteps.ListByJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	details, err := s.repos.StepData.ListDetailsByJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	attachments, err := s.repos.StepData.ListAttachmentsByJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	detailByStep := make(map[uuid.UUID]*models.StepDetail, len(details))
	for i := range details {
		detailByStep[details[i].JobStepID] = &details[i]
	}
	attachmentsByStep := make(map[uuid.UUID][]models.StepAttachment)
	for _, a := range attachments {
		attachmentsByStep[a.JobStepID] = append(attachmentsByStep[a.JobStepID], a)
	}

	out := make([]models.StepData, 0, len(steps))
	for _, step := range steps {
		atts := attachmentsByStep[step.ID]
		if atts == nil {
			atts = []models.StepAttachment{}
		}
		out = append(out, models.StepData{
			StepID:      step.ID,
			StepName:    step.Name,
			Details:     detailByStep[step.ID],
			Attachments: atts,
		})
	}
	return out, nil
}

// GetDetail returns the detail of a step; a step without one yields an empty detail
func (s *StepDataService) GetDetail(ctx context.Context, jobID, stepID uuid.UUID) (*models.StepDetail, error) {
	if _, err := s.repos.JobSteps.Get(ctx, jobID, stepID); err != nil {
		return nil, err
	}
	detail, err := s.repos.StepData.GetDetail(ctx, stepID)
	if errors.Is(err, repository.ErrNotFound) {
		return &models.StepDetail{JobID: jobID, JobStepID: stepID}, nil
	}
	return detail, err
}

// SaveDetail creates or replaces the detail of a step
func (s *StepDataService) SaveDetail(ctx context.Context, jobID, stepID uuid.UUID, in StepDetailInput) (*models.StepDetail, error) {
	if err := validation.ValidateStruct(in); err != nil {
		return nil, err
	}
	if _, err := s.repos.JobSteps.Get(ctx, jobID, stepID); err != nil {
		return nil, err
	}

	detail := &models.StepDetail{
		Base:                   models.Base{ID: uuid.New()},
		JobID:                  jobID,
		JobStepID:              stepID,
		Details:                strings.TrimSpace(in.Details),
		OperatorName:           strings.TrimSpace(in.OperatorName),
		ShippingTrackingNumber: strings.TrimSpace(in.ShippingTrackingNumber),
		ShippingCarrier:        strings.TrimSpace(in.ShippingCarrier),
		ShippingBarcodeImage:   in.ShippingBarcodeImage,
		ShippingPackImage:      in.ShippingPackImage,
		ShippingNotes:          strings.TrimSpace(in.ShippingNotes),
	}
	if err := s.repos.StepData.SaveDetail(ctx, detail); err != nil {
		return nil, err
	}
	return detail, nil
}

// ListAttachments returns the attachments of a step
func (s *StepDataService) ListAttachments(ctx context.Context, jobID, stepID uuid.UUID) ([]models.StepAttachment, error) {
	if _, err := s.repos.JobSteps.Get(ctx, jobID, stepID); err != nil {
		return nil, err
	}
	return s.repos.StepData.ListAttachmentsByStep(ctx, stepID)
}

// AddAttachment attaches a file, barcode or QR code to a step
func (s *StepDataService) AddAttachment(ctx context.Context, jobID, stepID uuid.UUID, in AttachmentInput) (*models.StepAttachment, error) {
	if err := validation.ValidateStruct(in); err != nil {
		return nil, err
	}
	if _, err := s.repos.JobSteps.Get(ctx, jobID, stepID); err != nil {
		return nil, err
	}

	a := &models.StepAttachment{
		Base:           models.Base{ID: uuid.New()},
		JobID:          jobID,
		JobStepID:      stepID,
		AttachmentType: in.AttachmentType,
		FileURL:        in.FileURL,
		FileName:       strings.TrimSpace(in.FileName),
		BarcodeValue:   strings.TrimSpace(in.BarcodeValue),
		QRCodeValue:    strings.TrimSpace(in.QRCodeValue),
		Description:    strings.TrimSpace(in.Description),
	}
	if err := s.repos.StepData.CreateAttachment(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// DeleteAttachment removes an attachment
func (s *StepDataService) DeleteAttachment(ctx context.Context, id uuid.UUID) error {
	return s.repos.StepData.DeleteAttachment(ctx, id)
}
