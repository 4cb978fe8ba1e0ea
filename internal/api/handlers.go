package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/clinical-case-trainer/internal/domain"
	"github.com/clinical-case-trainer/internal/middleware"
)

type startAttemptRequest struct {
	StudentID int64  `json:"studentId" binding:"required"`
	CaseID    string `json:"caseId" binding:"required"`
}

func (s *Server) handleListCases(c *gin.Context) {
	var filter domain.CaseFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		s.badRequest(c, "Invalid case filter", err)
		return
	}

	cases, err := s.deps.Cases.ListCases(c.Request.Context(), filter)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if cases == nil {
		cases = []*domain.Case{}
	}
	c.JSON(http.StatusOK, cases)
}

func (s *Server) handleListDepartments(c *gin.Context) {
	departments, err := s.deps.Cases.ListDepartments(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, departments)
}

func (s *Server) handleGetCase(c *gin.Context) {
	found, err := s.deps.Cases.GetCase(c.Request.Context(), c.Param("caseId"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, found)
}

func (s *Server) handleStartAttempt(c *gin.Context) {
	var req startAttemptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "Invalid attempt request", err)
		return
	}

	attempt, err := s.deps.Learning.StartAttempt(c.Request.Context(), req.StudentID, req.CaseID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, attempt)
}

func (s *Server) handleSubmitQuiz(c *gin.Context) {
	attemptID, ok := s.int64Param(c, "attemptId")
	if !ok {
		return
	}

	var input domain.SubmitQuizInput
	if err := c.ShouldBindJSON(&input); err != nil {
		s.badRequest(c, "Invalid quiz submission", err)
		return
	}
	input.AttemptID = attemptID

	submission, err := s.deps.Learning.SubmitQuiz(c.Request.Context(), &input)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, submission)
}

func (s *Server) handleSaveReasoning(c *gin.Context) {
	attemptID, ok := s.int64Param(c, "attemptId")
	if !ok {
		return
	}

	var input domain.SaveReasoningInput
	if err := c.ShouldBindJSON(&input); err != nil {
		s.badRequest(c, "Invalid reasoning payload", err)
		return
	}
	input.AttemptID = attemptID

	record, err := s.deps.Reasoning.SaveReasoning(c.Request.Context(), &input)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

// handleGetReasoning answers null when the attempt has no record yet
func (s *Server) handleGetReasoning(c *gin.Context) {
	attemptID, ok := s.int64Param(c, "attemptId")
	if !ok {
		return
	}

	record, err := s.deps.Reasoning.GetReasoning(c.Request.Context(), attemptID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

func (s *Server) handleComputeScore(c *gin.Context) {
	attemptID, ok := s.int64Param(c, "attemptId")
	if !ok {
		return
	}

	breakdown, err := s.deps.Reasoning.CalculateScore(c.Request.Context(), attemptID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, breakdown)
}

func (s *Server) handleSaveReflection(c *gin.Context) {
	var reflection domain.Reflection
	if err := c.ShouldBindJSON(&reflection); err != nil {
		s.badRequest(c, "Invalid reflection payload", err)
		return
	}
	if reflection.StudentID == 0 || reflection.CaseID == "" {
		s.writeError(c, domain.NewValidationError("studentId", "studentId and caseId are required", nil))
		return
	}

	saved, err := s.deps.Learning.SaveReflection(c.Request.Context(), &reflection)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, saved)
}

func (s *Server) handleStudentProgress(c *gin.Context) {
	studentID, ok := s.int64Param(c, "studentId")
	if !ok {
		return
	}

	progress, err := s.deps.Learning.GetStudentProgress(c.Request.Context(), studentID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, progress)
}

func (s *Server) handleDashboard(c *gin.Context) {
	studentID, ok := s.int64Param(c, "studentId")
	if !ok {
		return
	}

	stats, err := s.deps.Learning.GetDashboardStats(c.Request.Context(), studentID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// int64Param parses a numeric path parameter, answering 400 when it is not one
func (s *Server) int64Param(c *gin.Context, name string) (int64, bool) {
	raw := c.Param(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		s.writeError(c, domain.NewValidationError(name, "must be a positive integer", raw))
		return 0, false
	}
	return id, true
}

func (s *Server) badRequest(c *gin.Context, message string, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, domain.NewAPIError(
		domain.ErrInvalidInput, message, err.Error(), c.GetString(middleware.CorrelationIDKey),
	))
}

// writeError maps a service error onto a status code. The message is the
// error text, which at the service boundary is the generic "failed to ...".
// Missing records and storage failures share the 500 response.
func (s *Server) writeError(c *gin.Context, err error) {
	requestID := c.GetString(middleware.CorrelationIDKey)

	var validationErr *domain.ValidationError
	switch {
	case errors.As(err, &validationErr):
		c.AbortWithStatusJSON(http.StatusBadRequest, domain.NewAPIError(
			domain.ErrValidation, validationErr.Error(), "", requestID,
		))
	default:
		c.AbortWithStatusJSON(http.StatusInternalServerError, domain.NewAPIError(
			domain.ErrInternalServer, err.Error(), "", requestID,
		))
	}
}
