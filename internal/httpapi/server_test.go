package httpapi

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"gitlab.com/stitchfab/api/comm-audit-service/internal/config"
	"gitlab.com/stitchfab/api/comm-audit-service/internal/events"
	"gitlab.com/stitchfab/api/comm-audit-service/internal/storage/mock"
	"gitlab.com/stitchfab/api/comm-audit-service/internal/usecase"
	"gitlab.com/stitchfab/api/comm-audit-service/pkg/logger"
)

const (
	testSecret     = "handler-test-signing-secret"
	testUserID     = "6d5e4f3a-2b1c-4d0e-9f8a-7b6c5d4e3f2a"
	testOrgID      = "7f3c2b5a-9d1e-4f6a-8b2c-3d4e5f6a7b8c"
	testOtherOrgID = "0a1b2c3d-4e5f-6a7b-8c9d-0e1f2a3b4c5d"
)

func init() {
	logger.Log = zap.NewNop()
}

// noopWorker satisfies the preference worker interface for handler tests;
// consent behavior has its own tests in the usecase package.
type noopWorker struct{}

func (noopWorker) SubmitTask(usecase.PreferenceTaskData) error { return nil }
func (noopWorker) Stop()                                       {}

type serverFixture struct {
	server       *Server
	logRepo      *mock.CommunicationLogRepoMock
	deliveryRepo *mock.DeliveryLogRepoMock
	jobRepo      *mock.ExportJobRepoMock
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()

	cfg := &config.Config{}
	cfg.Auth.JWTSecret = testSecret
	cfg.Export = config.ExportConfig{
		SyncThreshold: 10,
		MaxRecords:    1000,
		Retention:     time.Hour,
		RenderTimeout: time.Minute,
	}
	cfg.WorkerPools.Export = config.WorkerPoolConfig{
		PoolSize:   2,
		QueueSize:  4,
		MaxBlock:   time.Second,
		ExpiryTime: time.Minute,
	}

	logRepo := new(mock.CommunicationLogRepoMock)
	deliveryRepo := new(mock.DeliveryLogRepoMock)
	jobRepo := new(mock.ExportJobRepoMock)

	auditService := usecase.NewAuditService(logRepo)
	ingestService := usecase.NewIngestService(logRepo, deliveryRepo, noopWorker{}, events.NoopPublisher{})
	exportService, err := usecase.NewExportService(cfg.Export, cfg.WorkerPools.Export, logRepo, jobRepo, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(exportService.Stop)

	server := NewServer(cfg,
		NewAuditHandler(auditService, ingestService),
		NewExportHandler(exportService),
		NewWebhookHandler(ingestService),
	)
	return &serverFixture{server: server, logRepo: logRepo, deliveryRepo: deliveryRepo, jobRepo: jobRepo}
}

func (f *serverFixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.server.Echo().ServeHTTP(rec, req)
	return rec
}

func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func formRequest(path, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	return req
}

func signToken(t *testing.T, organizationID, role string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":            testUserID,
		"organizationId": organizationID,
		"role":           role,
		"exp":            time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func signTokenWithExpiry(t *testing.T, expiry time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":            testUserID,
		"organizationId": testOrgID,
		"role":           "member",
		"exp":            expiry.Unix(),
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func authorize(t *testing.T, req *http.Request, organizationID, role string) {
	t.Helper()
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+signToken(t, organizationID, role))
}
