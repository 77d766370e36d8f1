package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"todolist/internal/middleware"
	"todolist/internal/models"
	"todolist/internal/service"
)

type todoOwnerResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type todoResponse struct {
	ID          string             `json:"id"`
	Title       string             `json:"title"`
	Description string             `json:"description"`
	Completed   bool               `json:"completed"`
	UserID      string             `json:"userId"`
	User        *todoOwnerResponse `json:"user,omitempty"`
	CreatedAt   time.Time          `json:"createdAt"`
	UpdatedAt   time.Time          `json:"updatedAt"`
}

func newTodoResponse(todo models.Todo) todoResponse {
	return todoResponse{
		ID:          todo.ID,
		Title:       todo.Title,
		Description: todo.Description,
		Completed:   todo.Completed,
		UserID:      todo.UserID,
		CreatedAt:   todo.CreatedAt,
		UpdatedAt:   todo.UpdatedAt,
	}
}

type createTodoRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Completed   *bool  `json:"completed"`
}

func (h HandlerSet) CreateTodo(c *gin.Context) {
	var req createTodoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidBody(c)
		return
	}

	input := service.CreateTodoInput{Title: req.Title, Description: req.Description}
	if req.Completed != nil {
		input.Completed = *req.Completed
	}

	todo, err := h.todoService.Create(c.Request.Context(), middleware.UserID(c), input)
	if err != nil {
		var verr *service.ValidationError
		switch {
		case errors.As(err, &verr):
			c.JSON(http.StatusBadRequest, gin.H{"errors": verr.Fields})
		case errors.Is(err, service.ErrDuplicate):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Duplicate value"})
		default:
			h.internalError(c, "error", err)
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Todo created successfully",
		"result":  []todoResponse{newTodoResponse(todo)},
		"status":  http.StatusCreated,
	})
}

type pageInfo struct {
	NextCursor  *string `json:"nextCursor"`
	HasNextPage bool    `json:"hasNextPage"`
}

type listTodosResponse struct {
	Message        string         `json:"message"`
	Status         int            `json:"status"`
	Result         []todoResponse `json:"result"`
	Count          int            `json:"count"`
	CompletedCount int            `json:"completedCount"`
	PageInfo       pageInfo       `json:"pageInfo"`
}

// ListTodos pages through the caller's todos. An unparsable limit falls back to the default.
func (h HandlerSet) ListTodos(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))

	page, err := h.todoService.List(c.Request.Context(), middleware.UserID(c), service.ListTodosInput{
		Cursor: c.Query("cursor"),
		Limit:  limit,
	})
	if err != nil {
		h.internalError(c, "error", err)
		return
	}

	result := make([]todoResponse, 0, len(page.Items))
	for _, item := range page.Items {
		resp := newTodoResponse(item.Todo)
		resp.User = &todoOwnerResponse{ID: item.Owner.ID, Name: item.Owner.Name, Email: item.Owner.Email}
		result = append(result, resp)
	}

	c.JSON(http.StatusOK, listTodosResponse{
		Message:        "Todos fetched successfully",
		Status:         http.StatusOK,
		Result:         result,
		Count:          page.Total,
		CompletedCount: page.CompletedTotal,
		PageInfo: pageInfo{
			NextCursor:  page.NextCursor,
			HasNextPage: page.NextCursor != nil,
		},
	})
}

func (h HandlerSet) ListAllTodos(c *gin.Context) {
	todos, err := h.todoService.ListAll(c.Request.Context())
	if err != nil {
		h.internalError(c, "error", err)
		return
	}

	result := make([]todoResponse, 0, len(todos))
	for _, todo := range todos {
		result = append(result, newTodoResponse(todo))
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Todos fetched successfully",
		"status":  http.StatusOK,
		"result":  result,
	})
}

type updateTodoRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Completed   *bool   `json:"completed"`
}

func (h HandlerSet) UpdateTodo(c *gin.Context) {
	var req updateTodoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidBody(c)
		return
	}

	todo, err := h.todoService.Update(c.Request.Context(), middleware.UserID(c), c.Param("id"), models.TodoPatch{
		Title:       req.Title,
		Description: req.Description,
		Completed:   req.Completed,
	})
	if err != nil {
		var verr *service.ValidationError
		switch {
		case errors.As(err, &verr):
			c.JSON(http.StatusBadRequest, gin.H{"errors": verr.Fields})
		case errors.Is(err, service.ErrTodoNotFound):
			c.JSON(http.StatusNotFound, gin.H{"message": "Todo not found"})
		case errors.Is(err, service.ErrDuplicate):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Duplicate value"})
		default:
			h.internalError(c, "message", err)
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Todo updated successfully",
		"result":  newTodoResponse(todo),
		"status":  http.StatusOK,
	})
}

func (h HandlerSet) DeleteTodo(c *gin.Context) {
	todo, err := h.todoService.Delete(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		if errors.Is(err, service.ErrTodoNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"message": "Todo not found"})
			return
		}
		h.internalError(c, "message", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Todo deleted successfully",
		"result":  newTodoResponse(todo),
		"status":  http.StatusOK,
	})
}
