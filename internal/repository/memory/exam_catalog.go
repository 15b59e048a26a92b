package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/stemsi/exstem-attempt/internal/model"
	"github.com/stemsi/exstem-attempt/internal/repository"
)

// ExamCatalog is a fixed set of exam definitions.
type ExamCatalog struct {
	mu    sync.RWMutex
	exams map[uuid.UUID]*model.Exam
}

func NewExamCatalog(exams ...*model.Exam) *ExamCatalog {
	c := &ExamCatalog{exams: make(map[uuid.UUID]*model.Exam)}
	for _, e := range exams {
		c.Put(e)
	}
	return c
}

// Put adds or replaces an exam definition.
func (c *ExamCatalog) Put(e *model.Exam) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	c.mu.Lock()
	c.exams[e.ID] = copyExam(e)
	c.mu.Unlock()
}

func (c *ExamCatalog) GetByID(_ context.Context, id uuid.UUID) (*model.Exam, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.exams[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copyExam(e), nil
}

func (c *ExamCatalog) ListPublishedIDs(_ context.Context) ([]uuid.UUID, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var ids []uuid.UUID
	for id, e := range c.exams {
		if e.Status == model.ExamStatusPublished {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids, nil
}

func copyExam(e *model.Exam) *model.Exam {
	c := *e
	c.Questions = make([]model.Question, len(e.Questions))
	for i, q := range e.Questions {
		q.Options = append([]model.Option(nil), q.Options...)
		q.CorrectAnswers = append([]string(nil), q.CorrectAnswers...)
		c.Questions[i] = q
	}
	return &c
}

// Warm only checks the exam exists; there is nothing to reload in memory.
func (c *ExamCatalog) Warm(ctx context.Context, id uuid.UUID) error {
	_, err := c.GetByID(ctx, id)
	return err
}

// LoadExamCatalog reads a JSON array of exam definitions, as produced by the
// authoring backend's export, into a catalog.
func LoadExamCatalog(path string) (*ExamCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read exams file: %w", err)
	}
	var exams []*model.Exam
	if err := json.Unmarshal(data, &exams); err != nil {
		return nil, fmt.Errorf("decode exams file: %w", err)
	}
	return NewExamCatalog(exams...), nil
}
