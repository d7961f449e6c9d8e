package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/nalar-edu/nalar-api/internal/models"
)

// QuestionRepository persists questions produced by the generation service.
// Questions are write-once; there is deliberately no Update.
type QuestionRepository interface {
	Create(ctx context.Context, question *models.Question) error
	GetByID(ctx context.Context, id string) (models.Question, error)
}

type questionRepository struct {
	db *gorm.DB
}

// NewQuestionRepository instantiates a GORM-backed repository.
func NewQuestionRepository(db *gorm.DB) QuestionRepository {
	return &questionRepository{db: db}
}

func (r *questionRepository) Create(ctx context.Context, question *models.Question) error {
	return r.db.WithContext(ctx).Create(question).Error
}

func (r *questionRepository) GetByID(ctx context.Context, id string) (models.Question, error) {
	var question models.Question
	if err := r.db.WithContext(ctx).Preload("Template").First(&question, "id = ?", id).Error; err != nil {
		return models.Question{}, err
	}

	return question, nil
}
