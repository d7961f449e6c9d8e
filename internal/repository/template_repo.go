package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/nalar-edu/nalar-api/internal/models"
)

// TemplateRepository reads educator-authored templates. The engine never
// mutates a template; Create exists for seeding and the authoring layer.
type TemplateRepository interface {
	GetByID(ctx context.Context, id uint) (models.Template, error)
	List(ctx context.Context) ([]models.Template, error)
	Create(ctx context.Context, template *models.Template) error
}

type templateRepository struct {
	db *gorm.DB
}

// NewTemplateRepository instantiates a GORM-backed repository.
func NewTemplateRepository(db *gorm.DB) TemplateRepository {
	return &templateRepository{db: db}
}

func (r *templateRepository) GetByID(ctx context.Context, id uint) (models.Template, error) {
	var template models.Template
	if err := r.db.WithContext(ctx).First(&template, id).Error; err != nil {
		return models.Template{}, err
	}

	return template, nil
}

func (r *templateRepository) List(ctx context.Context) ([]models.Template, error) {
	var templates []models.Template
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&templates).Error; err != nil {
		return nil, err
	}

	return templates, nil
}

func (r *templateRepository) Create(ctx context.Context, template *models.Template) error {
	return r.db.WithContext(ctx).Create(template).Error
}
