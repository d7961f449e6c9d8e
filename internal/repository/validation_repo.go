package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/nalar-edu/nalar-api/internal/models"
)

// ValidationRepository appends validation run records. Records are immutable;
// re-validation writes a new row rather than editing an old one, including
// aborted runs so partial work stays auditable.
type ValidationRepository interface {
	Create(ctx context.Context, record *models.ValidationRecord) error
	ListByQuestionID(ctx context.Context, questionID string) ([]models.ValidationRecord, error)
}

type validationRepository struct {
	db *gorm.DB
}

// NewValidationRepository instantiates a GORM-backed repository.
func NewValidationRepository(db *gorm.DB) ValidationRepository {
	return &validationRepository{db: db}
}

func (r *validationRepository) Create(ctx context.Context, record *models.ValidationRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *validationRepository) ListByQuestionID(ctx context.Context, questionID string) ([]models.ValidationRecord, error) {
	var records []models.ValidationRecord
	if err := r.db.WithContext(ctx).Where("question_id = ?", questionID).Order("created_at ASC").Find(&records).Error; err != nil {
		return nil, err
	}

	return records, nil
}
