package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Crispemo/simulia-session/internal/model"
	"github.com/Crispemo/simulia-session/internal/response"
	"github.com/Crispemo/simulia-session/internal/service"
	"github.com/Crispemo/simulia-session/internal/validator"
)

// QuestionHandler handles bank question endpoints.
type QuestionHandler struct {
	questionService *service.QuestionService
}

// NewQuestionHandler creates a new QuestionHandler.
func NewQuestionHandler(questionService *service.QuestionService) *QuestionHandler {
	return &QuestionHandler{questionService: questionService}
}

// List godoc
// GET /api/v1/questions?category=&page=&per_page=
// Lists bank questions with pagination.
func (h *QuestionHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}
	category := c.Query("category")

	questions, total, err := h.questionService.List(c.Request.Context(), category, page, perPage)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	totalPages := int(total) / perPage
	if int(total)%perPage != 0 {
		totalPages++
	}

	response.SuccessWithPagination(c, http.StatusOK, gin.H{"questions": questions}, &response.Pagination{
		Page:       page,
		PerPage:    perPage,
		TotalItems: int(total),
		TotalPages: totalPages,
	})
}

// Create godoc
// POST /api/v1/questions
// Adds a question to the bank.
func (h *QuestionHandler) Create(c *gin.Context) {
	var req model.CreateQuestionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	q, err := h.questionService.Create(c.Request.Context(), &req)
	if err != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, map[string]string{
			"correctAnswer": err.Error(),
		})
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"question": q})
}

// Paper godoc
// GET /api/v1/questions/paper?category=&count=
// Assembles a random exam paper in the wire shape clients consume.
func (h *QuestionHandler) Paper(c *gin.Context) {
	count, _ := strconv.Atoi(c.DefaultQuery("count", "10"))
	if count < 1 || count > 200 {
		count = 10
	}
	category := c.Query("category")

	paper, err := h.questionService.BuildPaper(c.Request.Context(), category, count)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"questions": paper})
}
