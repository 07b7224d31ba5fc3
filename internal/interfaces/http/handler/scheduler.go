package handler

import (
	"errors"

	"github.com/erp/shipping/internal/infrastructure/scheduler"
	"github.com/gin-gonic/gin"
)

// TaskScheduler controls the recurring background tasks.
type TaskScheduler interface {
	Status() []scheduler.TaskStatus
	Task(name string) (scheduler.TaskStatus, error)
	Start(name string) bool
	Stop(name string) bool
}

// SchedulerHandler exposes task status and start/stop controls
type SchedulerHandler struct {
	BaseHandler
	scheduler TaskScheduler
}

// NewSchedulerHandler creates a new SchedulerHandler
func NewSchedulerHandler(s TaskScheduler, verbose bool) *SchedulerHandler {
	return &SchedulerHandler{BaseHandler: BaseHandler{Verbose: verbose}, scheduler: s}
}

// TaskActionResponse reports the effect of a start or stop request.
// Changed is false when the task already was in the requested state.
type TaskActionResponse struct {
	Changed bool                 `json:"changed"`
	Task    scheduler.TaskStatus `json:"task"`
}

// ListTasks returns every registered task.
//
// GET /scheduler/tasks
func (h *SchedulerHandler) ListTasks(c *gin.Context) {
	h.Success(c, h.scheduler.Status())
}

// StartTask activates a task and runs it immediately.
//
// POST /scheduler/tasks/:name/start
func (h *SchedulerHandler) StartTask(c *gin.Context) {
	h.act(c, h.scheduler.Start)
}

// StopTask deactivates a task. A run in progress is allowed to finish.
//
// POST /scheduler/tasks/:name/stop
func (h *SchedulerHandler) StopTask(c *gin.Context) {
	h.act(c, h.scheduler.Stop)
}

func (h *SchedulerHandler) act(c *gin.Context, action func(string) bool) {
	name := c.Param("name")
	if _, err := h.scheduler.Task(name); err != nil {
		if errors.Is(err, scheduler.ErrTaskNotFound) {
			h.NotFound(c, err.Error())
			return
		}
		h.HandleError(c, err)
		return
	}

	changed := action(name)
	status, err := h.scheduler.Task(name)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, TaskActionResponse{Changed: changed, Task: status})
}
