// Dose HTTP handlers.
//
// This file exposes the REST endpoints of the dose log:
//   - GET    /doses                    (history, ETag support)
//   - POST   /doses                    (add, Idempotency-Key support)
//   - DELETE /doses/{id}               (single delete by opaque id)
//   - DELETE /doses?timestamp=|all=    (delete by timestamp, or clear)
//   - GET    /status, /status/stream   (live timer state, SSE)
//   - GET    /export, POST /import     (CSV export and restore)
//
// Handlers only validate input, call the DoseService and translate results
// into HTTP responses.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-dose-timer/internal/domain"
	"github.com/tbourn/go-dose-timer/internal/http/middleware"
	"github.com/tbourn/go-dose-timer/internal/services"
	"github.com/tbourn/go-dose-timer/internal/utils"
)

// HeaderIdempotencyReplayed marks a response that replays an earlier add.
const HeaderIdempotencyReplayed = "Idempotency-Replayed"

// DoseService is the subset of services.DoseService used by the handlers.
//
// Implementations must be safe for concurrent use and honor ctx.
type DoseService interface {
	List(ctx context.Context, limit int) []services.Entry
	AddIdempotent(ctx context.Context, clientID, key string, amount float64) (domain.DoseRecord, bool, error)
	Describe(r domain.DoseRecord) services.Entry
	Resolve(ctx context.Context, prefix string) (string, error)
	Delete(ctx context.Context, id string) error
	DeleteAt(ctx context.Context, stamp string) (int, error)
	Clear(ctx context.Context) (int, error)
	Status(ctx context.Context) services.Status
	Export(ctx context.Context) (name, body string, err error)
	Import(ctx context.Context, text string) (services.ImportResult, error)
	SlotStats(ctx context.Context) (int64, *time.Time, error)
}

// Handlers groups the dose endpoints.
type Handlers struct {
	svc DoseService
	// Tick is the status stream period; <= 0 means one second.
	Tick time.Duration
}

// New constructs Handlers bound to svc.
func New(svc DoseService) *Handlers {
	return &Handlers{svc: svc, Tick: time.Second}
}

//
// DTOs
//

// AddDoseRequest is the JSON payload for recording a dose.
type AddDoseRequest struct {
	// Amount taken; finite and >= 0.
	Amount *float64 `json:"amount" binding:"required" example:"0.5"`
}

// ListDosesResponse wraps the history list.
type ListDosesResponse struct {
	Doses []services.Entry `json:"doses"`
	Total int              `json:"total"`
}

// DeleteDosesResponse reports how many doses a bulk delete removed.
type DeleteDosesResponse struct {
	Deleted int `json:"deleted" example:"2"`
}

//
// Handlers
//

// ListDoses godoc
// @ID          listDoses
// @Summary     List doses
// @Description Returns the history newest-first with display fields and the interval to the next older dose. Supports weak ETag via If-None-Match.
// @Tags        Doses
// @Produce     json
// @Param       If-None-Match  header  string  false  "Return 304 if ETag matches"
// @Param       limit          query   int     false  "Max entries (0 = all)"  minimum(0)
// @Success     200  {object} handlers.ListDosesResponse
// @Header      200  {string} ETag "Weak ETag of the persisted log and the current date"
// @Success     304  {string} string "Not Modified"
// @Router      /doses [get]
func (h *Handlers) ListDoses(c *gin.Context) {
	ctx := c.Request.Context()

	if size, updated, err := h.svc.SlotStats(ctx); err == nil {
		var ts int64
		if updated != nil {
			ts = updated.UnixNano()
		}
		// Day labels are relative to today, so the date is part of the tag.
		today := h.svc.Clock.DateStamp(h.svc.Clock.Now())
		etag := fmt.Sprintf(`W/"doses:%d:%d:%s"`, size, ts, today)
		c.Header("ETag", etag)
		if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}

	limit := utils.AtoiDefault(c.Query("limit"), 0)
	if limit < 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "limit must be >= 0")
		return
	}
	items := h.svc.List(ctx, limit)
	ok(c, http.StatusOK, ListDosesResponse{Doses: items, Total: len(items)})
}

// AddDose godoc
// @ID          addDose
// @Summary     Record a dose
// @Description Records a dose at the current instant. With an Idempotency-Key, a retried request returns the dose recorded by the first one.
// @Tags        Doses
// @Accept      json
// @Produce     json
// @Param       Idempotency-Key  header  string                    false  "Deduplicates retries"
// @Param       body             body    handlers.AddDoseRequest   true   "Amount"
// @Success     201  {object} services.Entry
// @Success     200  {object} services.Entry "Replay of an earlier request"
// @Header      200  {string} Idempotency-Replayed "true"
// @Failure     400  {object} handlers.ErrorResponse
// @Failure     404  {object} handlers.ErrorResponse "Replayed dose was deleted since"
// @Failure     500  {object} handlers.ErrorResponse
// @Router      /doses [post]
func (h *Handlers) AddDose(c *gin.Context) {
	var req AddDoseRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Amount == nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "body must be {\"amount\": <number>}")
		return
	}

	key, _ := middleware.GetIdempotencyKey(c)
	rec, replayed, err := h.svc.AddIdempotent(c.Request.Context(), middleware.ClientID(c), key, *req.Amount)
	if replayed {
		c.Header(HeaderIdempotencyReplayed, "true")
	}
	switch {
	case errors.Is(err, services.ErrInvalidAmount):
		fail(c, http.StatusBadRequest, ErrCodeInvalidAmount, err.Error())
		return
	case errors.Is(err, services.ErrDoseNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "the dose recorded for this key was deleted")
		return
	case err != nil:
		fail(c, http.StatusInternalServerError, ErrCodeStoreFailed, err.Error())
		return
	}

	status := http.StatusCreated
	if replayed {
		status = http.StatusOK
	}
	ok(c, status, h.svc.Describe(rec))
}

// DeleteDose godoc
// @ID          deleteDose
// @Summary     Delete a dose
// @Description Accepts the full id or any prefix that matches exactly one dose.
// @Tags        Doses
// @Param       id   path  string  true  "Dose ID or unique prefix"
// @Success     204
// @Failure     404  {object} handlers.ErrorResponse
// @Failure     409  {object} handlers.ErrorResponse "Prefix matches more than one dose"
// @Failure     500  {object} handlers.ErrorResponse
// @Router      /doses/{id} [delete]
func (h *Handlers) DeleteDose(c *gin.Context) {
	ctx := c.Request.Context()
	id, err := h.svc.Resolve(ctx, c.Param("id"))
	if err == nil {
		err = h.svc.Delete(ctx, id)
	}
	switch {
	case errors.Is(err, services.ErrDoseNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case errors.Is(err, services.ErrAmbiguousID):
		fail(c, http.StatusConflict, ErrCodeAmbiguousID, err.Error())
	case err != nil:
		fail(c, http.StatusInternalServerError, ErrCodeStoreFailed, err.Error())
	default:
		noContent(c)
	}
}

// DeleteDoses godoc
// @ID          deleteDoses
// @Summary     Delete doses by timestamp, or all doses
// @Description With timestamp, removes every dose whose timestamp string matches. With all=true, clears the log. One of them is required.
// @Tags        Doses
// @Produce     json
// @Param       timestamp  query  string  false  "ISO-8601 timestamp, e.g. 2024-03-02T14:05:00+01:00"
// @Param       all        query  bool    false  "Clear the whole log"
// @Success     200  {object} handlers.DeleteDosesResponse
// @Success     204
// @Failure     400  {object} handlers.ErrorResponse
// @Failure     404  {object} handlers.ErrorResponse
// @Router      /doses [delete]
func (h *Handlers) DeleteDoses(c *gin.Context) {
	ctx := c.Request.Context()

	if stamp := strings.TrimSpace(c.Query("timestamp")); stamp != "" {
		// An unescaped "+" in the offset arrives as a space.
		stamp = strings.ReplaceAll(stamp, " ", "+")
		n, err := h.svc.DeleteAt(ctx, stamp)
		switch {
		case errors.Is(err, services.ErrDoseNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "no dose at "+stamp)
		case err != nil:
			fail(c, http.StatusInternalServerError, ErrCodeStoreFailed, err.Error())
		default:
			ok(c, http.StatusOK, DeleteDosesResponse{Deleted: n})
		}
		return
	}

	if !utils.BoolDefault(c.Query("all"), false) {
		fail(c, http.StatusBadRequest, ErrCodeNoSelector, services.ErrNoSelector.Error()+": pass timestamp or all=true")
		return
	}
	n, err := h.svc.Clear(ctx)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeStoreFailed, err.Error())
		return
	}
	middleware.LoggerFrom(c).Info().Int("deleted", n).Msg("dose log cleared")
	noContent(c)
}

// Status godoc
// @ID          getStatus
// @Summary     Timer status
// @Description Elapsed time since the newest dose and the warning state (idle, warning or safe).
// @Tags        Status
// @Produce     json
// @Success     200  {object} services.Status
// @Router      /status [get]
func (h *Handlers) Status(c *gin.Context) {
	ok(c, http.StatusOK, h.svc.Status(c.Request.Context()))
}

// StatusStream godoc
// @ID          streamStatus
// @Summary     Timer status stream
// @Description Server-sent events; one "status" event immediately and then one per tick until the client disconnects.
// @Tags        Status
// @Produce     text/event-stream
// @Success     200  {object} services.Status
// @Router      /status/stream [get]
func (h *Handlers) StatusStream(c *gin.Context) {
	ctx := c.Request.Context()
	tick := h.Tick
	if tick <= 0 {
		tick = time.Second
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)

	send := func() {
		c.SSEvent("status", h.svc.Status(ctx))
		c.Writer.Flush()
	}
	send()

	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			send()
		}
	}
}

// Export godoc
// @ID          exportDoses
// @Summary     Export the log as CSV
// @Description Downloads the log in its persisted encoding, named doses-YYYY-MM-DD.csv. An empty log yields 404 nothing_to_export.
// @Tags        Transfer
// @Produce     text/csv
// @Success     200  {string} string "CSV"
// @Failure     404  {object} handlers.ErrorResponse
// @Router      /export [get]
func (h *Handlers) Export(c *gin.Context) {
	name, body, err := h.svc.Export(c.Request.Context())
	switch {
	case errors.Is(err, services.ErrNothingToExport):
		fail(c, http.StatusNotFound, ErrCodeNothingToExport, err.Error())
		return
	case err != nil:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", []byte(body))
}

// Import godoc
// @ID          importDoses
// @Summary     Replace the log from CSV
// @Description Replaces the log with the decoded body. Rows that cannot be decoded are skipped and counted.
// @Tags        Transfer
// @Accept      text/csv
// @Accept      plain
// @Produce     json
// @Success     200  {object} services.ImportResult
// @Failure     400  {object} handlers.ErrorResponse
// @Failure     500  {object} handlers.ErrorResponse
// @Router      /import [post]
func (h *Handlers) Import(c *gin.Context) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeImportFailed, "read body: "+err.Error())
		return
	}
	res, err := h.svc.Import(c.Request.Context(), string(raw))
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeImportFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, res)
}
