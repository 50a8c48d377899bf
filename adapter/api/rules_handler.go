package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/felixgeelhaar/tracklane/internal/app"
	"github.com/felixgeelhaar/tracklane/internal/recurrence/application/commands"
	"github.com/felixgeelhaar/tracklane/internal/recurrence/application/queries"
	taskQueries "github.com/felixgeelhaar/tracklane/internal/tasks/application/queries"
)

// RulesHandler serves recurrence rules and the tasks they generate.
type RulesHandler struct {
	create    *commands.CreateRuleHandler
	update    *commands.UpdateRuleHandler
	delete    *commands.DeleteRuleHandler
	setActive *commands.SetRuleActiveHandler
	get       *queries.GetRuleHandler
	list      *queries.ListRulesHandler
	listTasks *taskQueries.ListTasksHandler
	logger    *slog.Logger
}

// NewRulesHandler creates a rules handler from the container.
func NewRulesHandler(c *app.Container, logger *slog.Logger) *RulesHandler {
	return &RulesHandler{
		create:    c.CreateRuleHandler,
		update:    c.UpdateRuleHandler,
		delete:    c.DeleteRuleHandler,
		setActive: c.SetRuleActiveHandler,
		get:       c.GetRuleHandler,
		list:      c.ListRulesHandler,
		listTasks: c.ListTasksHandler,
		logger:    logger,
	}
}

type scheduleRequest struct {
	Frequency string `json:"frequency"`
	Days      []int  `json:"days_of_week,omitempty"`
	Time      string `json:"time_of_day"`
}

func (s scheduleRequest) input() commands.ScheduleInput {
	return commands.ScheduleInput{Frequency: s.Frequency, Days: s.Days, Time: s.Time}
}

type ruleRequest struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	scheduleRequest
}

type ruleResponse struct {
	ID          string    `json:"id,omitempty"`
	NextFireAt  time.Time `json:"next_fire_at"`
	Rescheduled *bool     `json:"rescheduled,omitempty"`
}

// Create handles POST /api/v1/rules
func (h *RulesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req ruleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	result, err := h.create.Handle(r.Context(), commands.CreateRuleCommand{
		OwnerID:     userIDFrom(r),
		Title:       req.Title,
		Description: req.Description,
		Schedule:    req.input(),
	})
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, ruleResponse{
		ID:         result.RuleID.String(),
		NextFireAt: result.NextFireAt,
	})
}

// List handles GET /api/v1/rules
func (h *RulesHandler) List(w http.ResponseWriter, r *http.Request) {
	rules, err := h.list.Handle(r.Context(), queries.ListRulesQuery{
		OwnerID:         userIDFrom(r),
		IncludeInactive: parseBoolParam(r, "all", false),
	})
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, rules)
}

// Get handles GET /api/v1/rules/{ruleID}
func (h *RulesHandler) Get(w http.ResponseWriter, r *http.Request) {
	ruleID, ok := pathUUID(r, "ruleID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid rule id")
		return
	}
	rule, err := h.get.Handle(r.Context(), queries.GetRuleQuery{RuleID: ruleID, UserID: userIDFrom(r)})
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

// Update handles PUT /api/v1/rules/{ruleID}
func (h *RulesHandler) Update(w http.ResponseWriter, r *http.Request) {
	ruleID, ok := pathUUID(r, "ruleID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid rule id")
		return
	}
	var req ruleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	result, err := h.update.Handle(r.Context(), commands.UpdateRuleCommand{
		RuleID:      ruleID,
		UserID:      userIDFrom(r),
		Title:       req.Title,
		Description: req.Description,
		Schedule:    req.input(),
	})
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, ruleResponse{
		ID:          ruleID.String(),
		NextFireAt:  result.NextFireAt,
		Rescheduled: &result.Rescheduled,
	})
}

// Delete handles DELETE /api/v1/rules/{ruleID}
func (h *RulesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ruleID, ok := pathUUID(r, "ruleID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid rule id")
		return
	}
	if err := h.delete.Handle(r.Context(), commands.DeleteRuleCommand{RuleID: ruleID, UserID: userIDFrom(r)}); err != nil {
		fail(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Pause handles POST /api/v1/rules/{ruleID}/pause
func (h *RulesHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.setRuleActive(w, r, false)
}

// Resume handles POST /api/v1/rules/{ruleID}/resume
func (h *RulesHandler) Resume(w http.ResponseWriter, r *http.Request) {
	h.setRuleActive(w, r, true)
}

func (h *RulesHandler) setRuleActive(w http.ResponseWriter, r *http.Request, active bool) {
	ruleID, ok := pathUUID(r, "ruleID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid rule id")
		return
	}
	userID := userIDFrom(r)
	err := h.setActive.Handle(r.Context(), commands.SetRuleActiveCommand{RuleID: ruleID, UserID: userID, Active: active})
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	rule, err := h.get.Handle(r.Context(), queries.GetRuleQuery{RuleID: ruleID, UserID: userID})
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

// ListTasks handles GET /api/v1/tasks
func (h *RulesHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.listTasks.Handle(r.Context(), taskQueries.ListTasksQuery{
		OwnerID: userIDFrom(r),
		Status:  r.URL.Query().Get("status"),
		Limit:   parseIntParam(r, "limit", 50),
	})
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}
