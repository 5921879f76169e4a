package webhook

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gatemail-dev/gatemail/internal/logging"
	"github.com/gatemail-dev/gatemail/internal/model"
	"github.com/gatemail-dev/gatemail/internal/store"
)

// eventStatus maps provider callback event names onto delivery statuses.
// Anything not listed is ignored.
var eventStatus = map[string]model.DeliveryStatus{
	"email.sent":       model.StatusSent,
	"email.delivered":  model.StatusDelivered,
	"email.bounced":    model.StatusBounced,
	"email.complained": model.StatusComplained,
}

// deliveryEvent is the provider callback wire shape.
type deliveryEvent struct {
	Type string `json:"type"`
	Data struct {
		EmailID string `json:"email_id"`
	} `json:"data"`
}

// Listener handles provider delivery callbacks, advancing outbound message
// status forward. The endpoint is token-checked rather than authenticated:
// callers must present the shared token as a query parameter.
type Listener struct {
	store  store.Store
	token  string
	logger *slog.Logger
}

// NewListener creates a delivery-status listener. An empty token disables
// the endpoint (all requests rejected).
func NewListener(s store.Store, token string, logger *slog.Logger) *Listener {
	if logger == nil {
		logger = slog.Default()
	}
	return &Listener{store: s, token: token, logger: logger}
}

// ServeHTTP implements the POST /webhooks/delivery endpoint.
func (l *Listener) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !l.tokenValid(r.URL.Query().Get("token")) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var ev deliveryEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	// Unknown events and events for unknown messages are acknowledged, not
	// errored: providers retry on failure and there is nothing to retry.
	next, ok := eventStatus[ev.Type]
	if !ok || ev.Data.EmailID == "" {
		l.logger.Debug("ignoring delivery event", logging.Event(ev.Type))
		w.WriteHeader(http.StatusOK)
		return
	}

	advanced, err := l.store.AdvanceStatus(r.Context(), ev.Data.EmailID, next)
	if err != nil {
		l.logger.Error("advancing delivery status",
			logging.Event(ev.Type),
			logging.Err(err),
		)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	l.logger.Info("delivery status callback",
		logging.Event(ev.Type),
		slog.Bool("advanced", advanced),
	)
	w.WriteHeader(http.StatusOK)
}

func (l *Listener) tokenValid(got string) bool {
	if l.token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(l.token), []byte(got)) == 1
}
