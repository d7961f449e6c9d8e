package service_test

import (
	"context"
	"sync"

	"gorm.io/gorm"

	"github.com/nalar-edu/nalar-api/internal/models"
	"github.com/nalar-edu/nalar-api/pkg/llm"
)

type scriptedReply struct {
	text string
	err  error
}

// scriptedGateway replays canned completions in order and records every
// prompt it was handed.
type scriptedGateway struct {
	mu      sync.Mutex
	replies []scriptedReply
	prompts []string
}

func (g *scriptedGateway) Complete(_ context.Context, prompt string, _ llm.Params) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.prompts = append(g.prompts, prompt)
	if len(g.replies) == 0 {
		return "", nil
	}

	reply := g.replies[0]
	g.replies = g.replies[1:]
	return reply.text, reply.err
}

func (g *scriptedGateway) IsAvailable(context.Context) bool {
	return true
}

func (g *scriptedGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.prompts)
}

func (g *scriptedGateway) prompt(i int) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if i >= len(g.prompts) {
		return ""
	}
	return g.prompts[i]
}

type fakeTemplateRepo struct {
	templates map[uint]models.Template
}

func (f *fakeTemplateRepo) GetByID(_ context.Context, id uint) (models.Template, error) {
	tmpl, ok := f.templates[id]
	if !ok {
		return models.Template{}, gorm.ErrRecordNotFound
	}
	return tmpl, nil
}

func (f *fakeTemplateRepo) List(context.Context) ([]models.Template, error) {
	out := make([]models.Template, 0, len(f.templates))
	for _, tmpl := range f.templates {
		out = append(out, tmpl)
	}
	return out, nil
}

func (f *fakeTemplateRepo) Create(_ context.Context, tmpl *models.Template) error {
	if f.templates == nil {
		f.templates = make(map[uint]models.Template)
	}
	f.templates[tmpl.ID] = *tmpl
	return nil
}

type fakeQuestionRepo struct {
	questions map[string]models.Question
	created   int
}

func (f *fakeQuestionRepo) Create(_ context.Context, question *models.Question) error {
	if f.questions == nil {
		f.questions = make(map[string]models.Question)
	}
	f.questions[question.ID] = *question
	f.created++
	return nil
}

func (f *fakeQuestionRepo) GetByID(_ context.Context, id string) (models.Question, error) {
	question, ok := f.questions[id]
	if !ok {
		return models.Question{}, gorm.ErrRecordNotFound
	}
	return question, nil
}

type fakeRubricRepo struct {
	rubrics map[string]models.Rubric
	created int
}

func (f *fakeRubricRepo) Create(_ context.Context, rubric *models.Rubric) error {
	if f.rubrics == nil {
		f.rubrics = make(map[string]models.Rubric)
	}
	f.rubrics[rubric.QuestionID] = *rubric
	f.created++
	return nil
}

func (f *fakeRubricRepo) GetByQuestionID(_ context.Context, questionID string) (models.Rubric, error) {
	rubric, ok := f.rubrics[questionID]
	if !ok {
		return models.Rubric{}, gorm.ErrRecordNotFound
	}
	return rubric, nil
}

type fakeValidationRepo struct {
	records []models.ValidationRecord
}

func (f *fakeValidationRepo) Create(_ context.Context, record *models.ValidationRecord) error {
	f.records = append(f.records, *record)
	return nil
}

func (f *fakeValidationRepo) ListByQuestionID(_ context.Context, questionID string) ([]models.ValidationRecord, error) {
	var out []models.ValidationRecord
	for _, record := range f.records {
		if record.QuestionID == questionID {
			out = append(out, record)
		}
	}
	return out, nil
}
