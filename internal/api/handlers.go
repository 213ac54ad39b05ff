package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	xerrors "SheetQueue/internal/errors"
	"SheetQueue/internal/task"
)

// MarkDoneRequest 是 /mark-done 的请求体。id 保留调用方发送的 JSON 类型。
type MarkDoneRequest struct {
	Path string `json:"path"`
	ID   any    `json:"id"`
}

// MarkDoneResponse 是 /mark-done 成功时的响应体。
type MarkDoneResponse struct {
	Status    string `json:"status"`
	UpdatedID any    `json:"updated_id"`
}

// ErrorResponse 是所有失败响应的统一格式。
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// NoRowsMessage 是队列为空时 /next-row 返回的提示。
const NoRowsMessage = "No rows left"

func (s *Server) handleRoot(c echo.Context) error {
	return c.String(http.StatusOK, "sheetqueue is running")
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleNextRow(c echo.Context) error {
	sel, err := s.queue.Next(c.Request().Context(), c.QueryParam("path"))
	if err != nil {
		return err
	}
	if !sel.Found {
		return c.JSON(http.StatusOK, map[string]string{"message": NoRowsMessage})
	}
	return c.JSON(http.StatusOK, sel.Row)
}

func (s *Server) handleMarkDone(c echo.Context) error {
	var req MarkDoneRequest
	dec := json.NewDecoder(c.Request().Body)
	// 保留数字的原始写法，updated_id 原样返回。
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "请求体解析失败")
	}
	if _, err := s.queue.MarkDone(c.Request().Context(), req.Path, req.ID); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, MarkDoneResponse{Status: "ok", UpdatedID: req.ID})
}

func (s *Server) handleGetFile(c echo.Context) error {
	if s.files == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "文件访问未启用")
	}
	f, info, err := s.files.Open(c.Request().Context(), c.QueryParam("path"))
	if err != nil {
		return err
	}
	defer f.Close()
	http.ServeContent(c.Response(), c.Request(), info.Name(), info.ModTime(), f)
	return nil
}

func (s *Server) handleStats(c echo.Context) error {
	stats, err := s.queue.Stats(c.Request().Context(), c.QueryParam("path"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, stats)
}

// handleError 把统一错误码映射为 HTTP 状态码，echo 自身的错误保持原状态码。
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg := http.StatusText(he.Code)
		if m, ok := he.Message.(string); ok {
			msg = m
		}
		_ = c.JSON(he.Code, ErrorResponse{Error: msg, Code: string(codeForStatus(he.Code))})
		return
	}

	code := xerrors.CodeOf(err)
	status := StatusFor(code)
	msg := publicMessage(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("请求处理失败",
			slog.String("route", c.Path()),
			slog.String("code", string(code)),
			slog.Any("error", err),
		)
	}
	_ = c.JSON(status, ErrorResponse{Error: msg, Code: string(code)})
}

// StatusFor 返回错误码对应的 HTTP 状态码。
func StatusFor(code xerrors.Code) int {
	switch code {
	case xerrors.CodeInvalidArgument:
		return http.StatusBadRequest
	case xerrors.CodeForbidden:
		return http.StatusForbidden
	case xerrors.CodeNotFound, task.CodeIDNotFound:
		return http.StatusNotFound
	case xerrors.CodeParseError, xerrors.CodeSchemaError:
		return http.StatusUnprocessableEntity
	case xerrors.CodeLockTimeout:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// codeForStatus 为 echo 自身产生的错误（路由不存在、方法不允许等）给出统一错误码。
func codeForStatus(status int) xerrors.Code {
	switch {
	case status == http.StatusNotFound:
		return xerrors.CodeNotFound
	case status < http.StatusInternalServerError:
		return xerrors.CodeInvalidArgument
	default:
		return xerrors.CodeUnknown
	}
}

// publicMessage 返回可以暴露给调用方的信息：统一错误使用其 Message，其余错误不泄露细节。
func publicMessage(err error) string {
	if e, ok := xerrors.From(err); ok {
		return e.Message()
	}
	return xerrors.AttributesOf(xerrors.CodeUnknown).Message
}
