package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

// RequestLogger logs one line per request. Client errors are logged at
// warn and server errors at error.
func RequestLogger() echo.MiddlewareFunc {
	log := logrus.WithField("component", "http")
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				// let echo's error handler settle the status first
				c.Error(err)
			}

			req := c.Request()
			status := c.Response().Status
			entry := log.WithFields(logrus.Fields{
				"method":    req.Method,
				"path":      req.URL.Path,
				"route":     c.Path(),
				"status":    status,
				"duration":  time.Since(start).String(),
				"client_ip": c.RealIP(),
				"bytes_out": c.Response().Size,
			})
			if uid, ok := c.Get(CtxUserID).(string); ok {
				entry = entry.WithField("user_id", uid)
			}
			switch {
			case status >= 500:
				entry.Error("request")
			case status >= 400:
				entry.Warn("request")
			default:
				entry.Info("request")
			}
			return nil
		}
	}
}
