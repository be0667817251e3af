package service

import (
	"context"
	"fmt"

	"github.com/Crispemo/simulia-session/internal/model"
	"github.com/Crispemo/simulia-session/internal/repository"
	"github.com/Crispemo/simulia-session/session"
)

// QuestionService handles bank question business logic.
type QuestionService struct {
	questionRepo *repository.QuestionRepository
}

// NewQuestionService creates a new QuestionService.
func NewQuestionService(questionRepo *repository.QuestionRepository) *QuestionService {
	return &QuestionService{questionRepo: questionRepo}
}

// List retrieves questions with optional category filter and pagination.
func (s *QuestionService) List(ctx context.Context, category string, page, perPage int) ([]model.QuestionRecord, int64, error) {
	return s.questionRepo.List(ctx, category, page, perPage)
}

// Create adds a question to the bank. The correct answer must be one of
// the options.
func (s *QuestionService) Create(ctx context.Context, req *model.CreateQuestionRequest) (*model.QuestionRecord, error) {
	valid := false
	for _, opt := range req.Options {
		if opt == req.CorrectAnswer {
			valid = true
			break
		}
	}
	if !valid {
		return nil, fmt.Errorf("correct answer must match one of the options")
	}

	q := &model.QuestionRecord{
		Text:          req.Text,
		Options:       req.Options,
		CorrectAnswer: req.CorrectAnswer,
		Category:      req.Category,
		ImageURL:      req.ImageURL,
		Explanation:   req.Explanation,
	}
	if err := s.questionRepo.Create(ctx, q); err != nil {
		return nil, fmt.Errorf("create question: %w", err)
	}
	return q, nil
}

// BuildPaper assembles a random exam paper in the wire shape exam clients
// consume directly.
func (s *QuestionService) BuildPaper(ctx context.Context, category string, count int) ([]session.Question, error) {
	records, err := s.questionRepo.PickRandom(ctx, category, count)
	if err != nil {
		return nil, fmt.Errorf("pick questions: %w", err)
	}

	paper := make([]session.Question, 0, len(records))
	for _, rec := range records {
		paper = append(paper, session.Question{
			ID:          rec.ID.String(),
			Text:        rec.Text,
			Options:     rec.Options,
			Answer:      session.AnswerRef{Text: rec.CorrectAnswer},
			Category:    rec.Category,
			ImageURL:    rec.ImageURL,
			Explanation: rec.Explanation,
		})
	}
	return paper, nil
}
