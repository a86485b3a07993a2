// Package routes exposes the attendance engine over HTTP. Handlers are thin:
// they bind, delegate to the engine services, and push errors onto the gin
// error chain for the ErrorHandler middleware.
package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/mubeen104/uips-attendance/internal/audit"
	"github.com/mubeen104/uips-attendance/internal/enroll"
	"github.com/mubeen104/uips-attendance/internal/ingest"
	"github.com/mubeen104/uips-attendance/internal/protocol/adms"
	"github.com/mubeen104/uips-attendance/internal/protocol/registry"
	"github.com/mubeen104/uips-attendance/internal/reconcile"
	"github.com/mubeen104/uips-attendance/internal/storage"
	"github.com/mubeen104/uips-attendance/internal/syncer"
)

// Engine bundles the services handlers reach for. It is injected into the
// gin context by the server command, next to the storage provider.
type Engine struct {
	Adapters   *registry.Registry
	Commands   *adms.CommandQueue
	Pipeline   *ingest.Pipeline
	Enroll     *enroll.Orchestrator
	Syncer     *syncer.Coordinator
	Reconciler *reconcile.Reconciler
	Audit      *audit.Recorder
}

// GetStorageProvider pulls the storage provider out of the gin context.
func GetStorageProvider(c *gin.Context) (error, storage.Provider) {
	value, exists := c.Get("Storage")
	if !exists {
		return ErrStorageProviderNotFound, nil
	}
	provider, ok := value.(storage.Provider)
	if !ok {
		return ErrInvalidStorageProvider, nil
	}
	return nil, provider
}

// GetEngine pulls the engine bundle out of the gin context.
func GetEngine(c *gin.Context) (error, *Engine) {
	value, exists := c.Get("Engine")
	if !exists {
		return ErrEngineNotFound, nil
	}
	engine, ok := value.(*Engine)
	if !ok {
		return ErrEngineNotFound, nil
	}
	return nil, engine
}

// RegisterRoutes wires every API surface onto the gin engine.
func RegisterRoutes(r *gin.Engine) {
	r.Use(ErrorHandler())

	api := r.Group("/api")
	Health(api)
	DevicesApi(api.Group("/devices"))
	EnrollmentApi(api.Group("/enrollments"))
	AttendanceApi(api.Group("/attendance"))

	// ZKTeco-compatible push endpoints live at the vendor-fixed path, not
	// under /api. The terminals hardcode it.
	PushApi(r.Group("/iclock"))
}
