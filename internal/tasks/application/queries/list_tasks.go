package queries

import (
	"context"
	"time"

	"github.com/felixgeelhaar/tracklane/internal/tasks/domain"
	"github.com/google/uuid"
)

// TaskDTO is a data transfer object for tasks.
type TaskDTO struct {
	ID           uuid.UUID  `json:"id"`
	Title        string     `json:"title"`
	Description  string     `json:"description,omitempty"`
	Status       string     `json:"status"`
	DueAt        time.Time  `json:"due_at"`
	SourceRuleID *uuid.UUID `json:"source_rule_id,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// ListTasksQuery contains the parameters for listing tasks.
type ListTasksQuery struct {
	OwnerID uuid.UUID
	Status  string // "", "open", "completed"
	Limit   int
}

// ListTasksHandler handles the ListTasksQuery.
type ListTasksHandler struct {
	taskRepo domain.Repository
}

// NewListTasksHandler creates a new ListTasksHandler.
func NewListTasksHandler(taskRepo domain.Repository) *ListTasksHandler {
	return &ListTasksHandler{taskRepo: taskRepo}
}

// Handle executes the ListTasksQuery.
func (h *ListTasksHandler) Handle(ctx context.Context, query ListTasksQuery) ([]TaskDTO, error) {
	tasks, err := h.taskRepo.FindByOwner(ctx, query.OwnerID, query.Limit)
	if err != nil {
		return nil, err
	}

	dtos := make([]TaskDTO, 0, len(tasks))
	for _, t := range tasks {
		if query.Status != "" && string(t.Status()) != query.Status {
			continue
		}
		dtos = append(dtos, ToTaskDTO(t))
	}
	return dtos, nil
}

// ToTaskDTO converts a task aggregate into its transport shape.
func ToTaskDTO(t *domain.Task) TaskDTO {
	return TaskDTO{
		ID:           t.ID(),
		Title:        t.Title(),
		Description:  t.Description(),
		Status:       string(t.Status()),
		DueAt:        t.DueAt(),
		SourceRuleID: t.SourceRuleID(),
		CreatedAt:    t.CreatedAt(),
	}
}
