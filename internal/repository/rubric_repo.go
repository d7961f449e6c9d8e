package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/nalar-edu/nalar-api/internal/models"
)

// RubricRepository persists rubrics derived once per question.
type RubricRepository interface {
	Create(ctx context.Context, rubric *models.Rubric) error
	GetByQuestionID(ctx context.Context, questionID string) (models.Rubric, error)
}

type rubricRepository struct {
	db *gorm.DB
}

// NewRubricRepository instantiates a GORM-backed repository.
func NewRubricRepository(db *gorm.DB) RubricRepository {
	return &rubricRepository{db: db}
}

func (r *rubricRepository) Create(ctx context.Context, rubric *models.Rubric) error {
	return r.db.WithContext(ctx).Create(rubric).Error
}

func (r *rubricRepository) GetByQuestionID(ctx context.Context, questionID string) (models.Rubric, error) {
	var rubric models.Rubric
	if err := r.db.WithContext(ctx).First(&rubric, "question_id = ?", questionID).Error; err != nil {
		return models.Rubric{}, err
	}

	return rubric, nil
}
