package cli

import (
	"errors"
	"time"

	internalApp "github.com/felixgeelhaar/tracklane/internal/app"
	notificationCommands "github.com/felixgeelhaar/tracklane/internal/notifications/application/commands"
	notificationQueries "github.com/felixgeelhaar/tracklane/internal/notifications/application/queries"
	recurrenceCommands "github.com/felixgeelhaar/tracklane/internal/recurrence/application/commands"
	recurrenceQueries "github.com/felixgeelhaar/tracklane/internal/recurrence/application/queries"
	recurrenceServices "github.com/felixgeelhaar/tracklane/internal/recurrence/application/services"
	taskQueries "github.com/felixgeelhaar/tracklane/internal/tasks/application/queries"
	"github.com/google/uuid"
)

// ErrNotInitialized is returned by commands run without a database.
var ErrNotInitialized = errors.New("application not initialized - database connection required")

// App holds the CLI application dependencies.
type App struct {
	// Rule Command Handlers
	CreateRuleHandler    *recurrenceCommands.CreateRuleHandler
	UpdateRuleHandler    *recurrenceCommands.UpdateRuleHandler
	DeleteRuleHandler    *recurrenceCommands.DeleteRuleHandler
	SetRuleActiveHandler *recurrenceCommands.SetRuleActiveHandler

	// Rule Query Handlers
	GetRuleHandler   *recurrenceQueries.GetRuleHandler
	ListRulesHandler *recurrenceQueries.ListRulesHandler
	ListTasksHandler *taskQueries.ListTasksHandler

	// Sweep
	RuleScheduler *recurrenceServices.RuleScheduler
	SweepRunner   *recurrenceServices.SweepRunner

	// Notification Handlers
	CreateNotificationHandler *notificationCommands.CreateNotificationHandler
	MarkReadHandler           *notificationCommands.MarkReadHandler
	MarkAllReadHandler        *notificationCommands.MarkAllReadHandler
	ListNotificationsHandler  *notificationQueries.ListNotificationsHandler
	CountUnreadHandler        *notificationQueries.CountUnreadHandler

	// Container backs the long-running serve command.
	Container *internalApp.Container

	// Current user (configured per environment)
	CurrentUserID uuid.UUID
}

// NewApp creates a CLI application from the container's handlers.
func NewApp(c *internalApp.Container) *App {
	return &App{
		CreateRuleHandler:         c.CreateRuleHandler,
		UpdateRuleHandler:         c.UpdateRuleHandler,
		DeleteRuleHandler:         c.DeleteRuleHandler,
		SetRuleActiveHandler:      c.SetRuleActiveHandler,
		GetRuleHandler:            c.GetRuleHandler,
		ListRulesHandler:          c.ListRulesHandler,
		ListTasksHandler:          c.ListTasksHandler,
		RuleScheduler:             c.RuleScheduler,
		SweepRunner:               c.SweepRunner,
		CreateNotificationHandler: c.CreateNotificationHandler,
		MarkReadHandler:           c.MarkReadHandler,
		MarkAllReadHandler:        c.MarkAllReadHandler,
		ListNotificationsHandler:  c.ListNotificationsHandler,
		CountUnreadHandler:        c.CountUnreadHandler,
		Container:                 c,
		CurrentUserID:             uuid.Nil,
	}
}

func (a *App) location() *time.Location {
	if a.Container == nil {
		return nil
	}
	return a.Container.Location
}

// SetCurrentUserID updates the current user ID.
func (a *App) SetCurrentUserID(id uuid.UUID) {
	a.CurrentUserID = id
}

// app is the global CLI application instance
var app *App

// SetApp sets the global CLI application instance.
func SetApp(a *App) {
	app = a
}

// GetApp returns the global CLI application instance.
func GetApp() *App {
	return app
}

// RequireApp returns the application or ErrNotInitialized.
func RequireApp() (*App, error) {
	if app == nil {
		return nil, ErrNotInitialized
	}
	return app, nil
}
