package middleware

import (
	"time"

	"QuantPipe/pkg/logger"

	"github.com/labstack/echo/v4"
)

// RequestLogging logs every request at debug level.
func RequestLogging(l *logger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			req := c.Request()
			l.Debug("HTTP request",
				logger.String("method", req.Method),
				logger.String("uri", req.RequestURI),
				logger.String("remote", c.RealIP()),
				logger.Int("status", c.Response().Status),
				logger.Duration("latency", time.Since(start)))
			return err
		}
	}
}
