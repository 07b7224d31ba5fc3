package handler

import (
	"github.com/erp/shipping/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
)

// LabelRoutes creates the route group for composed labels
func LabelRoutes(h *LabelHandler) *router.DomainGroup {
	group := router.NewDomainGroup("labels", "/labels")
	group.GET("/:orderNumber/pdf", h.GetPDF)
	group.POST("/:orderNumber/compose", h.Compose)
	group.POST("/:orderNumber/print-count", h.RecordPrint)
	group.POST("/zpl/batch", h.BatchZPL)
	return group
}

// ReconciliationRoutes creates the route group for reconciliation runs
func ReconciliationRoutes(h *ReconciliationHandler) *router.DomainGroup {
	return router.NewDomainGroup("reconciliation", "/reconciliation").
		GET("/stream", h.Stream)
}

// PrintJobRoutes creates the route group for the print spool. bodyLimit
// guards the enqueue endpoint against oversized payloads and pollLimit
// throttles agents polling for the next job.
func PrintJobRoutes(h *PrintJobHandler, bodyLimit, pollLimit gin.HandlerFunc) *router.DomainGroup {
	group := router.NewDomainGroup("print-jobs", "/print-jobs")
	group.POST("", bodyLimit, h.Enqueue)
	group.GET("/next", pollLimit, h.Next)
	group.GET("/stats", h.Stats)
	return group
}

// SchedulerRoutes creates the route group for background task control
func SchedulerRoutes(h *SchedulerHandler) *router.DomainGroup {
	group := router.NewDomainGroup("scheduler", "/scheduler")
	group.GET("/tasks", h.ListTasks)
	group.POST("/tasks/:name/start", h.StartTask)
	group.POST("/tasks/:name/stop", h.StopTask)
	return group
}

// HealthRoutes creates the health check route
func HealthRoutes(h *HealthHandler) *router.DomainGroup {
	return router.NewDomainGroup("health", "/health").GET("", h.Health)
}
