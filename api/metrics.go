package api

import (
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
)

const metricsKey = "request_metrics"

type requestMetrics struct {
	logger         *log.Logger
	start          time.Time
	sessionDur     time.Duration
	handlerDur     time.Duration
	sessionCreated bool
	idempotent     bool
	items          int
	errorStage     string
	err            error
}

func newRequestMetrics(logger *log.Logger) *requestMetrics {
	return &requestMetrics{
		logger: logger,
		start:  time.Now(),
		items:  -1,
	}
}

func metricsFrom(c echo.Context) *requestMetrics {
	m, _ := c.Get(metricsKey).(*requestMetrics)
	return m
}

// ObserveSession records the time spent resolving the caller and its board.
func (m *requestMetrics) ObserveSession(d time.Duration, created bool) {
	if d > 0 {
		m.sessionDur = d
	}
	m.sessionCreated = created
}

func (m *requestMetrics) ObserveHandler(d time.Duration) {
	if d > 0 {
		m.handlerDur = d
	}
}

func (m *requestMetrics) SetItems(n int) {
	if n < 0 {
		n = 0
	}
	m.items = n
}

func (m *requestMetrics) SetIdempotent(v bool) { m.idempotent = v }

func (m *requestMetrics) SetErrorStage(stage string) {
	if stage == "" {
		return
	}
	m.errorStage = stage
}

func (m *requestMetrics) SetError(err error) {
	if err != nil {
		m.err = err
	}
}

func (m *requestMetrics) Log(route, method string, status int) {
	if m == nil || m.logger == nil {
		return
	}

	fields := log.Fields{
		"route":    route,
		"method":   method,
		"status":   status,
		"total_ms": durationToMillis(time.Since(m.start)),
	}
	if m.sessionDur > 0 {
		fields["session_ms"] = durationToMillis(m.sessionDur)
		fields["session_created"] = m.sessionCreated
	}
	if m.handlerDur > 0 {
		fields["handler_ms"] = durationToMillis(m.handlerDur)
	}
	if m.items >= 0 {
		fields["items"] = m.items
	}
	if m.idempotent {
		fields["idempotency_key"] = true
	}
	if m.errorStage != "" {
		fields["error_stage"] = m.errorStage
	}
	if m.err != nil {
		fields["error"] = m.err.Error()
	}

	entry := m.logger.WithFields(fields)
	if status >= 500 {
		entry.Warn("api.request.metrics")
		return
	}
	entry.Info("api.request.metrics")
}

// RequestMetrics logs one structured line per request.
func RequestMetrics(logger *log.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			m := newRequestMetrics(logger)
			c.Set(metricsKey, m)
			start := time.Now()
			err := next(c)
			m.ObserveHandler(time.Since(start))
			status := c.Response().Status
			if err != nil {
				m.SetError(err)
				status = statusFor(err)
			}
			m.Log(c.Path(), c.Request().Method, status)
			return err
		}
	}
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
