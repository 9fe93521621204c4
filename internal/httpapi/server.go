package httpapi

import (
	"context"
	"fmt"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"gitlab.com/stitchfab/api/comm-audit-service/internal/config"
)

// Server is the public HTTP surface: the authenticated audit/export API and
// the open provider webhook endpoints.
type Server struct {
	echo *echo.Echo
	cfg  *config.Config
}

// NewServer wires routes and middleware onto a fresh echo instance.
func NewServer(cfg *config.Config, audit *AuditHandler, export *ExportHandler, webhook *WebhookHandler) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(RequestID())

	// Provider webhooks authenticate out of band (shared-secret URLs at the
	// gateway), never with portal JWTs.
	hooks := e.Group("/webhooks")
	hooks.GET("/health", webhook.Health)
	hooks.POST("/sendgrid", webhook.SendGrid)
	hooks.POST("/twilio", webhook.TwilioStatus)
	hooks.POST("/twilio/inbound", webhook.TwilioInbound)

	api := e.Group("/api/v1", JWTAuth(cfg.Auth.JWTSecret))

	auditGroup := api.Group("/communication-audit")
	auditGroup.POST("/search", audit.Search)
	auditGroup.GET("/delivery-summary", audit.DeliverySummary)
	auditGroup.POST("/logs", audit.Record)

	exportGroup := api.Group("/communication-export")
	exportGroup.POST("/:format", export.Export)
	exportGroup.GET("/status/:jobId", export.Status)
	exportGroup.GET("/download/:jobId", export.Download)

	api.POST("/communication-reports/reports/compliance-pdf", export.CompliancePDF)

	e.Server.ReadTimeout = cfg.Server.ReadTimeout
	e.Server.WriteTimeout = cfg.Server.WriteTimeout

	return &Server{echo: e, cfg: cfg}
}

// Echo exposes the underlying router, mainly for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Start blocks serving HTTP until Shutdown is called.
func (s *Server) Start() error {
	return s.echo.Start(fmt.Sprintf(":%d", s.cfg.Server.Port))
}

// Shutdown drains in-flight requests and closes the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
