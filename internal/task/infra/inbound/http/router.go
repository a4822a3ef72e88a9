package http

import "github.com/gin-gonic/gin"

// RegisterTaskRoutes registra las rutas de la cola de WorkerTasks.
func RegisterTaskRoutes(r gin.IRouter, handler *TaskHandler) {
	tasks := r.Group("/tasks")
	{
		tasks.POST("/claim", handler.ClaimTask)          // Reclamar la tarea más prioritaria
		tasks.POST("/:id/complete", handler.CompleteTask) // Marcar como completada
		tasks.POST("/:id/fail", handler.FailTask)         // Registrar un fallo (reintento o agotada)
	}
}
