package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/kaikybrofc/omnizap-system-sub008/internal/config"
	sharedDomain "github.com/kaikybrofc/omnizap-system-sub008/internal/shared/domain"
	taskDomain "github.com/kaikybrofc/omnizap-system-sub008/internal/task/domain"
	"github.com/kaikybrofc/omnizap-system-sub008/pkg/utils"
)

// TaskHandler expone la cola de WorkerTasks al pool de workers externo:
// reclamar, completar y fallar tareas.
type TaskHandler struct {
	queue taskDomain.TaskQueue
	log   *zap.Logger
}

func NewTaskHandler(queue taskDomain.TaskQueue, log *zap.Logger) *TaskHandler {
	return &TaskHandler{queue: queue, log: log}
}

// ClaimTask endpoint POST /tasks/claim
// Sin tareas disponibles responde 204.
func (h *TaskHandler) ClaimTask(c *gin.Context) {
	var req struct {
		Types []taskDomain.TaskType `json:"types"`
	}
	// Cuerpo opcional: sin tipos se reclama cualquier tarea.
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.SendBadRequest(c, err.Error())
			return
		}
	}

	task, err := h.queue.Claim(c.Request.Context(), req.Types...)
	if err != nil {
		h.sendError(c, err)
		return
	}
	if task == nil {
		c.Status(http.StatusNoContent)
		return
	}
	utils.SendSuccess(c, http.StatusOK, task)
}

// CompleteTask endpoint POST /tasks/:id/complete
func (h *TaskHandler) CompleteTask(c *gin.Context) {
	if err := h.queue.Complete(c.Request.Context(), c.Param("id")); err != nil {
		h.sendError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// FailTask endpoint POST /tasks/:id/fail
func (h *TaskHandler) FailTask(c *gin.Context) {
	var req struct {
		Error             string `json:"error" binding:"required"`
		RetryDelaySeconds int    `json:"retry_delay_seconds"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendBadRequest(c, err.Error())
		return
	}

	delay := config.DefaultRetryDelaySeconds
	if req.RetryDelaySeconds > 0 {
		delay = config.ClampRetryDelaySeconds(req.RetryDelaySeconds)
	}

	status, err := h.queue.Fail(c.Request.Context(), c.Param("id"), sharedDomain.FailOptions{
		Error:      req.Error,
		RetryDelay: time.Duration(delay) * time.Second,
	})
	if err != nil {
		h.sendError(c, err)
		return
	}
	if status == sharedDomain.StatusFailed {
		h.log.Warn("❌ WorkerTask agotó sus reintentos", zap.String("task_id", c.Param("id")), zap.String("error", req.Error))
	}
	utils.SendSuccess(c, http.StatusOK, gin.H{"status": status})
}

func (h *TaskHandler) sendError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, taskDomain.ErrTaskNotFound):
		utils.SendNotFound(c, err.Error())
	case errors.Is(err, sharedDomain.ErrInvalidTransition):
		utils.SendConflict(c, err.Error())
	case errors.Is(err, sharedDomain.ErrStorageNotProvisioned):
		utils.SendUnavailable(c, err.Error())
	default:
		h.log.Error("Error en la cola de tareas", zap.Error(err))
		utils.SendInternalServerError(c, "internal error")
	}
}
