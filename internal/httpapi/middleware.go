package httpapi

import (
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"gitlab.com/stitchfab/api/comm-audit-service/internal/tenant"
	"gitlab.com/stitchfab/api/comm-audit-service/pkg/logger"
)

const requestIDHeader = "X-Request-Id"

// RequestID attaches a request id to the context and the response. Incoming
// ids are honored so the portal gateway's trace survives into our logs.
func RequestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			requestID := c.Request().Header.Get(requestIDHeader)
			if requestID == "" {
				requestID = uuid.New().String()
			}

			ctx := tenant.WithRequestID(c.Request().Context(), requestID)
			c.SetRequest(c.Request().WithContext(ctx))
			c.Response().Header().Set(requestIDHeader, requestID)

			return next(c)
		}
	}
}

// JWTAuth validates the bearer token and loads the caller's identity into
// the request context. Every downstream tenant-isolation decision reads from
// that context, never from request parameters.
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			if !strings.HasPrefix(header, "Bearer ") {
				return unauthorized(c, "missing bearer token")
			}
			tokenString := strings.TrimPrefix(header, "Bearer ")

			token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				logger.FromContext(c.Request().Context()).Debug("Rejected bearer token", zap.Error(err))
				return unauthorized(c, "invalid or expired token")
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				return unauthorized(c, "invalid token claims")
			}

			ctx := c.Request().Context()
			if sub, _ := claims["sub"].(string); sub != "" {
				ctx = tenant.WithUserID(ctx, sub)
			}
			if organizationID, _ := claims["organizationId"].(string); organizationID != "" {
				ctx = tenant.WithOrganizationID(ctx, organizationID)
			}
			if role, _ := claims["role"].(string); role != "" {
				ctx = tenant.WithRole(ctx, role)
			}

			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}
