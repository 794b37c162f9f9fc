package routes

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"riskagent/core"
)

const defaultSinkPath = "/risk/collect"

// sinkPath mounts the development sink where relative payloads land.
// Absolute endpoints point elsewhere, so the sink keeps the default path.
func (s *Server) sinkPath() string {
	if ep := s.cfg.Collector.Endpoint; strings.HasPrefix(ep, "/") {
		return ep
	}
	return defaultSinkPath
}

// CollectRoute is the development collection endpoint. It decodes the
// payload, logs a summary and keeps nothing.
func (s *Server) CollectRoute(c echo.Context) error {
	var payload core.RiskPayload
	if err := c.Bind(&payload); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{"success": false, "error": "invalid payload"})
	}

	fields := []zap.Field{
		zap.String("fingerprint_id", payload.Stage2.FingerprintID),
		zap.String("user_agent", payload.Stage1.UserAgent),
		zap.Bool("webdriver", payload.Stage3.Automation.Webdriver),
		zap.Bool("function_tampered", payload.Stage3.FunctionTampered),
		zap.Bool("iframe_mismatch", payload.Stage3.IframeMismatch),
		zap.Int("suspicious_frames", payload.IframeSignals.Suspicious),
		zap.Int("click_samples", payload.Interaction.Samples),
	}
	if payload.SessionID != nil {
		fields = append(fields, zap.String("session_id", *payload.SessionID))
	}
	if payload.UserID != nil {
		fields = append(fields, zap.String("user_id", *payload.UserID))
	}
	if ip := c.RealIP(); ip != "" {
		fields = append(fields, zap.String("ip", ip))
		if tz, err := s.geo.Timezone(ip); err == nil {
			fields = append(fields, zap.String("ip_timezone", tz), zap.Bool("timezone_match", tz == payload.Stage1.Timezone))
		}
	}
	s.logger.Info("risk payload received", fields...)

	return c.NoContent(http.StatusNoContent)
}

func (s *Server) MetricsRoute() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
}

// LogRequests is the LogValuesFunc for echo's RequestLogger middleware.
func LogRequests(logger *zap.Logger) func(c echo.Context, v middleware.RequestLoggerValues) error {
	logger = logger.Named("http")
	return func(c echo.Context, v middleware.RequestLoggerValues) error {
		fields := []zap.Field{
			zap.String("method", v.Method),
			zap.String("uri", v.URI),
			zap.Int("status", v.Status),
			zap.Duration("latency", v.Latency),
		}
		if v.Error != nil {
			logger.Warn("request failed", append(fields, zap.Error(v.Error))...)
			return nil
		}
		logger.Debug("request", fields...)
		return nil
	}
}
