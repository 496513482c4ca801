package relay

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"notifyrelay/internal/notify"
	"notifyrelay/internal/resolve"
	"notifyrelay/internal/sink"
	logx "notifyrelay/pkg/logx"
)

// Dispatcher is the part of sink.Dispatcher the handlers use.
type Dispatcher interface {
	Dispatch(n notify.Notification) <-chan sink.Result
}

type handlers struct {
	resolver   *resolve.Resolver
	dispatcher Dispatcher
	metrics    *Metrics
	log        logx.Logger
	now        func() time.Time
}

const acceptedMessage = "notification accepted"

// notify validates, resolves and dispatches, then answers without waiting
// for delivery. Delivery failures never reach the caller.
func (h *handlers) notify(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, notify.MaxBodyBytes)
	req, legacy, err := notify.Decode(r.Body)
	if err == nil {
		err = notify.Validate(req)
	}
	if err != nil {
		h.metrics.RecordRequest(false)
		h.log.Warn("notify rejected",
			logx.String("request_id", middleware.GetReqID(r.Context())),
			logx.Err(err),
		)
		writeJSON(w, http.StatusBadRequest, notify.Response{Success: false, Message: err.Error()})
		return
	}
	if legacy {
		h.log.Warn("deprecated notify payload (type/project/timestamp/action); send category instead",
			logx.String("request_id", middleware.GetReqID(r.Context())),
		)
	}

	n, src := h.resolver.Explain(req)
	if h.log.Enabled(logx.LevelDebug) {
		h.log.Debug("notification resolved",
			logx.String("request_id", middleware.GetReqID(r.Context())),
			logx.String("category", string(n.Category)),
			logx.String("sound", n.Sound),
			logx.String("sound_from", src.Sound.String()),
			logx.String("subtitle_from", src.Subtitle.String()),
			logx.String("timeout_from", src.Timeout.String()),
		)
	}

	h.dispatcher.Dispatch(n)
	h.metrics.RecordRequest(true)
	writeJSON(w, http.StatusOK, notify.Response{Success: true, Message: acceptedMessage})
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, notify.HealthResponse{
		Status:    "ok",
		Timestamp: h.now().UTC().Format(time.RFC3339),
	})
}
