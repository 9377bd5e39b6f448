// Package http holds what the router needs to mount the domain modules.
package http

import (
	"context"
	"net/http"

	"lead_dispatch_backend/platform/config"
	"lead_dispatch_backend/platform/logger"
)

// RouterConfig combines the config interfaces needed by the HTTP router.
type RouterConfig interface {
	config.HTTPConfig
	config.JWTConfig
}

// HealthChecker backs /api/health.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// App is assembled in cmd/api and handed to the router.
type App struct {
	Config RouterConfig
	Logger *logger.Logger
	Health HealthChecker
	// Metrics is mounted on /metrics when set.
	Metrics http.Handler
	Modules []Module
}
