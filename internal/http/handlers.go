package http

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/clustereval/internal/evaluation"
	"github.com/fyrsmithlabs/clustereval/internal/logging"
	"github.com/fyrsmithlabs/clustereval/internal/sanitize"
	"github.com/fyrsmithlabs/clustereval/internal/session"
)

const sessionKey = "session"

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status:   "ok",
		Sessions: s.sessions.Len(),
		Clusters: s.campaign.Index.Len(),
	})
}

// withSession resolves :id and adds session fields to the request context.
func (s *Server) withSession(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := c.Param("id")
		sess, ok := s.sessions.Get(id)
		if !ok {
			return echo.NewHTTPError(http.StatusNotFound, "session not found")
		}

		ctx := logging.WithAnnotator(c.Request().Context(), sess.Annotator())
		if logging.ValidID(id) {
			ctx = logging.WithSessionID(ctx, id)
		}
		c.SetRequest(c.Request().WithContext(ctx))
		c.Set(sessionKey, sess)
		return next(c)
	}
}

func sessionFrom(c echo.Context) *session.Session {
	return c.Get(sessionKey).(*session.Session)
}

func (s *Server) handleCreateSession(c echo.Context) error {
	var req CreateSessionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	annotator, err := sanitize.Annotator(req.Annotator)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	opts := append([]session.Option{session.WithLogger(s.logger)}, s.sessionOpts...)
	sess := session.New(s.campaign, s.store, annotator, opts...)

	ctx := logging.WithAnnotator(c.Request().Context(), annotator)
	view, err := sess.Start(ctx)
	if err != nil {
		return respond(c, view, err)
	}
	s.sessions.Add(sess)
	s.logger.Info("session created",
		append(logging.ContextFields(ctx), zap.String("session.id", sess.ID()))...)
	return c.JSON(http.StatusCreated, view)
}

func (s *Server) handleGetSession(c echo.Context) error {
	return c.JSON(http.StatusOK, sessionFrom(c).View())
}

func (s *Server) handleDeleteSession(c echo.Context) error {
	if !s.sessions.Remove(c.Param("id")) {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleSubmit(c echo.Context) error {
	var draft evaluation.Judgment
	if err := c.Bind(&draft); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	view, err := sessionFrom(c).Submit(c.Request().Context(), draft)
	return respond(c, view, err)
}

func (s *Server) handleOverwrite(c echo.Context) error {
	view, err := sessionFrom(c).ConfirmOverwrite(c.Request().Context())
	return respond(c, view, err)
}

func (s *Server) handleDiscard(c echo.Context) error {
	view, err := sessionFrom(c).DiscardConflict(c.Request().Context())
	return respond(c, view, err)
}

func (s *Server) handleRetry(c echo.Context) error {
	view, err := sessionFrom(c).Retry(c.Request().Context())
	return respond(c, view, err)
}

func (s *Server) handleSelectBatch(c echo.Context) error {
	var req SelectBatchRequest
	if err := c.Bind(&req); err != nil || req.Batch == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "batch field is required")
	}
	view, err := sessionFrom(c).SelectBatch(c.Request().Context(), *req.Batch)
	return respond(c, view, err)
}

func (s *Server) handleNext(c echo.Context) error {
	view, err := sessionFrom(c).Next(c.Request().Context())
	return respond(c, view, err)
}

func (s *Server) handlePrevious(c echo.Context) error {
	view, err := sessionFrom(c).Previous(c.Request().Context())
	return respond(c, view, err)
}

// handleExport streams every stored evaluation as the export document.
func (s *Server) handleExport(c echo.Context) error {
	all, err := s.store.LoadAll(c.Request().Context())
	if err != nil {
		s.logger.Warn("export failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusServiceUnavailable, "progress store unavailable")
	}
	c.Response().Header().Set(echo.HeaderContentType, echo.MIMEApplicationJSONCharsetUTF8)
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="evaluations.json"`)
	c.Response().WriteHeader(http.StatusOK)
	return evaluation.Export(c.Response(), all)
}

// handleSummary writes the judgment summary CSV.
func (s *Server) handleSummary(c echo.Context) error {
	all, err := s.store.LoadAll(c.Request().Context())
	if err != nil {
		s.logger.Warn("summary failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusServiceUnavailable, "progress store unavailable")
	}
	c.Response().Header().Set(echo.HeaderContentType, "text/csv; charset=utf-8")
	c.Response().WriteHeader(http.StatusOK)
	return evaluation.Summarize(all).WriteCSV(c.Response())
}

func (s *Server) handleProgress(c echo.Context) error {
	all, err := s.store.LoadAll(c.Request().Context())
	if err != nil {
		s.logger.Warn("progress failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusServiceUnavailable, "progress store unavailable")
	}
	return c.JSON(http.StatusOK, s.campaign.Progress(all))
}
