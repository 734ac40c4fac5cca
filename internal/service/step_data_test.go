package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"example.com/premeepro/production/internal/models"
	"example.com/premeepro/production/internal/repository"
	"example.com/premeepro/production/internal/repository/mocks"
	"example.com/premeepro/production/internal/validation"
)

func TestStepDataGetAllGroupsByStep(t *testing.T) {
	ctx := context.Background()
	store := mocks.NewStore()
	svc := NewStepDataService(store.Repositories())

	jobID := uuid.New()
	cut := models.JobStep{Base: models.Base{ID: uuid.New()}, JobID: jobID, Name: "Cut", Order: 1}
	sew := models.JobStep{Base: models.Base{ID: uuid.New()}, JobID: jobID, Name: "Sew", Order: 2}

	store.Jobs.On("Get", ctx, jobID).Return(&models.Job{Base: models.Base{ID: jobID}}, nil)
	store.JobSteps.On("ListByJob", ctx, jobID).Return([]models.JobStep{cut, sew}, nil)
	store.StepData.On("ListDetailsByJob", ctx, jobID).Return([]models.StepDetail{
		{JobID: jobID, JobStepID: sew.ID, Details: "double stitch"},
	}, nil)
	store.StepData.On("ListAttachmentsByJob", ctx, jobID).Return([]models.StepAttachment{
		{JobStepID: cut.ID, AttachmentType: models.AttachmentImage, FileURL: "https://files.example.com/cut.png"},
		{JobStepID: cut.ID, AttachmentType: models.AttachmentBarcode, BarcodeValue: "885000000001"},
	}, nil)

	data, err := svc.GetAll(ctx, jobID)
	require.NoError(t, err)
	require.Len(t, data, 2)

	assert.Equal(t, "Cut", data[0].StepName)
	assert.Nil(t, data[0].Details)
	assert.Len(t, data[0].Attachments, 2)

	assert.Equal(t, "Sew", data[1].StepName)
	require.NotNil(t, data[1].Details)
	assert.Equal(t, "double stitch", data[1].Details.Details)
	assert.NotNil(t, data[1].Attachments)
	assert.Empty(t, data[1].Attachments)
	store.AssertExpectations(t)
}

func TestStepDataGetDetailDefaultsToEmpty(t *testing.T) {
	ctx := context.Background()
	store := mocks.NewStore()
	svc := NewStepDataService(store.Repositories())

	jobID, stepID := uuid.New(), uuid.New()
	store.JobSteps.On("Get", ctx, jobID, stepID).Return(&models.JobStep{Base: models.Base{ID: stepID}}, nil)
	store.StepData.On("GetDetail", ctx, stepID).Return(nil, repository.ErrNotFound)

	detail, err := svc.GetDetail(ctx, jobID, stepID)
	require.NoError(t, err)
	assert.Equal(t, stepID, detail.JobStepID)
	assert.Empty(t, detail.Details)
}

func TestStepDataSaveDetail(t *testing.T) {
	ctx := context.Background()
	store := mocks.NewStore()
	svc := NewStepDataService(store.Repositories())

	jobID, stepID := uuid.New(), uuid.New()
	store.JobSteps.On("Get", ctx, jobID, stepID).Return(&models.JobStep{Base: models.Base{ID: stepID}}, nil)
	store.StepData.On("SaveDetail", ctx, mock.MatchedBy(func(d *models.StepDetail) bool {
		return d.JobStepID == stepID && d.ShippingCarrier == "Kerry" && d.OperatorName == "Malee"
	})).Return(nil)

	detail, err := svc.SaveDetail(ctx, jobID, stepID, StepDetailInput{
		OperatorName:           " Malee ",
		ShippingCarrier:        "Kerry",
		ShippingTrackingNumber: "KER123",
	})
	require.NoError(t, err)
	assert.Equal(t, "KER123", detail.ShippingTrackingNumber)
	store.AssertExpectations(t)
}

func TestStepDataSaveDetailUnknownStep(t *testing.T) {
	ctx := context.Background()
	store := mocks.NewStore()
	svc := NewStepDataService(store.Repositories())

	jobID, stepID := uuid.New(), uuid.New()
	store.JobSteps.On("Get", ctx, jobID, stepID).Return(nil, repository.ErrNotFound)

	_, err := svc.SaveDetail(ctx, jobID, stepID, StepDetailInput{Details: "x"})
	assert.ErrorIs(t, err, repository.ErrNotFound)
	store.StepData.AssertNotCalled(t, "SaveDetail", mock.Anything, mock.Anything)
}

func TestStepDataAddAttachmentValidation(t *testing.T) {
	tests := []struct {
		name    string
		in      AttachmentInput
		invalid string
	}{
		{name: "image", in: AttachmentInput{AttachmentType: models.AttachmentImage, FileURL: "https://files.example.com/a.png"}},
		{name: "image without url", in: AttachmentInput{AttachmentType: models.AttachmentImage}, invalid: "file_url"},
		{name: "image with bad url", in: AttachmentInput{AttachmentType: models.AttachmentImage, FileURL: "not a url"}, invalid: "file_url"},
		{name: "barcode", in: AttachmentInput{AttachmentType: models.AttachmentBarcode, BarcodeValue: "885000000001"}},
		{name: "barcode without value", in: AttachmentInput{AttachmentType: models.AttachmentBarcode}, invalid: "barcode_value"},
		{name: "qrcode without value", in: AttachmentInput{AttachmentType: models.AttachmentQRCode}, invalid: "qrcode_value"},
		{name: "unknown type", in: AttachmentInput{AttachmentType: "video"}, invalid: "attachment_type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := mocks.NewStore()
			svc := NewStepDataService(store.Repositories())
			jobID, stepID := uuid.New(), uuid.New()

			if tt.invalid == "" {
				store.JobSteps.On("Get", ctx, jobID, stepID).Return(&models.JobStep{Base: models.Base{ID: stepID}}, nil)
				store.StepData.On("CreateAttachment", ctx, mock.AnythingOfType("*models.StepAttachment")).Return(nil)
			}

			a, err := svc.AddAttachment(ctx, jobID, stepID, tt.in)
			if tt.invalid == "" {
				require.NoError(t, err)
				assert.Equal(t, stepID, a.JobStepID)
				assert.Equal(t, jobID, a.JobID)
				store.AssertExpectations(t)
				return
			}
			var verr *validation.Error
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr.Fields, tt.invalid)
		})
	}
}
