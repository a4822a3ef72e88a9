package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kaikybrofc/omnizap-system-sub008/internal/shared/domain"
	"github.com/kaikybrofc/omnizap-system-sub008/internal/shared/infra/relayer"
	taskDomain "github.com/kaikybrofc/omnizap-system-sub008/internal/task/domain"
	"github.com/kaikybrofc/omnizap-system-sub008/pkg/utils"
)

// Poller es la parte del scheduler que expone el endpoint de poll manual.
type Poller interface {
	PollOnce(ctx context.Context) relayer.CycleResult
	Running() bool
}

// Pinger comprueba la conexión con la base (p.ej. *sql.DB).
type Pinger interface {
	PingContext(ctx context.Context) error
}

// OpsHandler expone el estado del pipeline de eventos.
type OpsHandler struct {
	outbox   domain.OutboxRepository
	tasks    taskDomain.TaskQueue
	poller   Poller
	db       Pinger
	gatherer prometheus.Gatherer
}

func NewOpsHandler(outbox domain.OutboxRepository, tasks taskDomain.TaskQueue, poller Poller, db Pinger, gatherer prometheus.Gatherer) *OpsHandler {
	return &OpsHandler{outbox: outbox, tasks: tasks, poller: poller, db: db, gatherer: gatherer}
}

func RegisterOpsRoutes(r gin.IRouter, h *OpsHandler) {
	r.GET("/health", h.Health)
	outbox := r.Group("/outbox")
	{
		outbox.GET("/stats", h.Stats)
		outbox.POST("/poll", h.Poll)
	}
	if h.gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})))
	}
}

// Health endpoint GET /health
func (h *OpsHandler) Health(c *gin.Context) {
	status := gin.H{"status": "ok"}
	if h.poller != nil {
		status["consumer_running"] = h.poller.Running()
	}
	if h.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.PingContext(ctx); err != nil {
			utils.SendErrorCode(c, http.StatusServiceUnavailable, "db_unreachable", err.Error())
			return
		}
	}
	c.JSON(http.StatusOK, status)
}

// Stats endpoint GET /outbox/stats. Un store sin provisionar cuenta como vacío.
func (h *OpsHandler) Stats(c *gin.Context) {
	ctx := c.Request.Context()
	provisioned := true

	events := make(map[domain.EventStatus]int, len(domain.AllStatuses))
	tasks := make(map[domain.EventStatus]int, len(domain.AllStatuses))
	for _, status := range domain.AllStatuses {
		n, err := h.outbox.CountByStatus(ctx, status)
		if err != nil {
			if !errors.Is(err, domain.ErrStorageNotProvisioned) {
				utils.SendInternalServerError(c, err.Error())
				return
			}
			provisioned = false
		}
		events[status] = n

		if h.tasks == nil {
			continue
		}
		n, err = h.tasks.CountByStatus(ctx, status)
		if err != nil {
			if !errors.Is(err, domain.ErrStorageNotProvisioned) {
				utils.SendInternalServerError(c, err.Error())
				return
			}
			provisioned = false
		}
		tasks[status] = n
	}

	utils.SendSuccess(c, http.StatusOK, gin.H{
		"provisioned":  provisioned,
		"events":       events,
		"worker_tasks": tasks,
	})
}

// Poll endpoint POST /outbox/poll: ejecuta un ciclo del consumer ahora.
func (h *OpsHandler) Poll(c *gin.Context) {
	if h.poller == nil {
		utils.SendErrorCode(c, http.StatusServiceUnavailable, "consumer_disabled", "consumer is not configured")
		return
	}
	result := h.poller.PollOnce(c.Request.Context())
	code := http.StatusOK
	if result == relayer.CycleBusy {
		code = http.StatusConflict
	}
	utils.SendSuccess(c, code, gin.H{"result": result})
}
