package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Crispemo/simulia-session/internal/model"
)

// QuestionRepository handles bank question data access.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

// GetByID retrieves a single question.
func (r *QuestionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.QuestionRecord, error) {
	q := &model.QuestionRecord{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, question, options, correct_answer, category, image_url, explanation, created_at
		 FROM questions
		 WHERE id = $1`, id,
	).Scan(&q.ID, &q.Text, &q.Options, &q.CorrectAnswer, &q.Category, &q.ImageURL, &q.Explanation, &q.CreatedAt)
	if err != nil {
		return nil, err
	}
	return q, nil
}

// Create inserts a new bank question and fills in the generated id.
func (r *QuestionRepository) Create(ctx context.Context, q *model.QuestionRecord) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO questions (question, options, correct_answer, category, image_url, explanation)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at`,
		q.Text, q.Options, q.CorrectAnswer, q.Category, q.ImageURL, q.Explanation,
	).Scan(&q.ID, &q.CreatedAt)
}

// List retrieves questions with optional category filter and pagination.
func (r *QuestionRepository) List(ctx context.Context, category string, page, perPage int) ([]model.QuestionRecord, int64, error) {
	baseQuery := `FROM questions WHERE 1=1`
	args := []any{}

	if category != "" {
		args = append(args, category)
		baseQuery += fmt.Sprintf(" AND category = $%d", len(args))
	}

	var total int64
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) "+baseQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * perPage
	query := `SELECT id, question, options, correct_answer, category, image_url, explanation, created_at ` +
		baseQuery +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, perPage, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var questions []model.QuestionRecord
	for rows.Next() {
		var q model.QuestionRecord
		if err := rows.Scan(&q.ID, &q.Text, &q.Options, &q.CorrectAnswer, &q.Category, &q.ImageURL, &q.Explanation, &q.CreatedAt); err != nil {
			return nil, 0, err
		}
		questions = append(questions, q)
	}

	return questions, total, rows.Err()
}

// PickRandom retrieves up to count random questions, optionally restricted
// to a category. Used to assemble exam papers.
func (r *QuestionRepository) PickRandom(ctx context.Context, category string, count int) ([]model.QuestionRecord, error) {
	query := `SELECT id, question, options, correct_answer, category, image_url, explanation, created_at
		 FROM questions`
	args := []any{}

	if category != "" {
		args = append(args, category)
		query += " WHERE category = $1"
	}
	args = append(args, count)
	query += fmt.Sprintf(" ORDER BY random() LIMIT $%d", len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.QuestionRecord
	for rows.Next() {
		var q model.QuestionRecord
		if err := rows.Scan(&q.ID, &q.Text, &q.Options, &q.CorrectAnswer, &q.Category, &q.ImageURL, &q.Explanation, &q.CreatedAt); err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}

	return questions, rows.Err()
}
