package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// Middleware 记录每个请求的状态码与耗时，handler 标签使用路由模板而非原始 URL。
func Middleware(r *Recorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				// 先交给错误处理器写响应，才能拿到最终状态码。
				c.Error(err)
			}
			status := c.Response().Status
			var he *echo.HTTPError
			if !c.Response().Committed && errors.As(err, &he) {
				status = he.Code
			}
			if status == 0 {
				status = http.StatusOK
			}
			handler := c.Path()
			if handler == "" {
				handler = "unmatched"
			}
			r.ObserveHTTPRequest(handler, c.Request().Method, status, time.Since(start))
			return nil
		}
	}
}
