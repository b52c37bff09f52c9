// Package webhook handles the gateway's asynchronous payment notifications.
// The provider retries any notification that is not acknowledged with a
// plain "success" body, so the handler always answers 200 regardless of
// verification outcome; only verified events make it past this package.
package webhook

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	neturl "net/url"
	"strconv"
	"strings"
	"time"

	"github.com/VictoriaMetrics/metrics"

	"payment-service/internal/logcontext"
	"payment-service/internal/message"
	"payment-service/internal/signing"
)

// Provider order status codes carried in notifications.
const (
	StatusPaid          = "OD"
	StatusRefunded      = "CD"
	StatusRefundPending = "RD"
	StatusRefundFailed  = "UD"
)

var (
	verifiedPaidCounter     = metrics.GetOrCreateCounter(`webhook_notifications_total{result="verified_paid"}`)
	verifiedOtherCounter    = metrics.GetOrCreateCounter(`webhook_notifications_total{result="verified_other"}`)
	signatureFailureCounter = metrics.GetOrCreateCounter(`webhook_notifications_total{result="signature_mismatch"}`)
	publishFailureCounter   = metrics.GetOrCreateCounter(`webhook_notifications_total{result="publish_failed"}`)
)

// Publisher receives notifications that passed verification with a paid
// status.
type Publisher interface {
	Publish(ctx context.Context, e message.PaymentVerified) error
}

// attachData is the side-channel payload the storefront tucked into the
// order at creation time.
type attachData struct {
	PackageType string `json:"package_type"`
	OrderID     string `json:"order_id"`
}

type Handler struct {
	secret    string
	publisher Publisher
	logger    *slog.Logger

	now func() time.Time
}

func NewHandler(secret string, publisher Publisher, logger *slog.Logger) *Handler {
	return &Handler{
		secret:    secret,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Acknowledge no matter what happens below; the provider only stops
	// retrying on a literal "success".
	defer acknowledge(w)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "Error reading notification body", "error", err)
		return
	}

	fields := parseBody(body, r.Header.Get("Content-Type"))

	ctx := logcontext.AppendCtx(r.Context(), slog.String("orderId", fields["trade_order_id"]))
	h.logger.InfoContext(ctx, "Received payment notification", "status", fields["status"])

	if !signing.Verify(fields, fields["hash"], h.secret) {
		h.logger.ErrorContext(ctx, "Notification signature mismatch", "received", fields["hash"])
		signatureFailureCounter.Inc()
		return
	}

	switch fields["status"] {
	case StatusPaid:
		h.handlePaid(ctx, fields)
	case StatusRefunded, StatusRefundPending, StatusRefundFailed:
		// No local order store to mutate; the ledger downstream owns
		// refund handling.
		h.logger.WarnContext(ctx, "Refund state reported", "status", fields["status"])
		verifiedOtherCounter.Inc()
	default:
		h.logger.WarnContext(ctx, "Unrecognized notification status", "status", fields["status"])
		verifiedOtherCounter.Inc()
	}
}

func (h *Handler) handlePaid(ctx context.Context, fields map[string]string) {
	e := message.PaymentVerified{
		OrderID:       fields["trade_order_id"],
		TransactionID: fields["transaction_id"],
		TotalFee:      fields["total_fee"],
		PaidAt:        h.now(),
	}

	if raw := fields["attach"]; raw != "" {
		var attach attachData
		if err := json.Unmarshal([]byte(raw), &attach); err != nil {
			// Attachment data is best effort.
			h.logger.WarnContext(ctx, "Unparseable attach payload", "attach", raw, "error", err)
		} else {
			e.PackageKey = attach.PackageType
		}
	}

	h.logger.InfoContext(ctx, "Payment verified", "transactionId", e.TransactionID, "totalFee", e.TotalFee)

	if err := h.publisher.Publish(ctx, e); err != nil {
		// Still acknowledged; the gateway must not retry on our
		// internal failures.
		h.logger.ErrorContext(ctx, "Error publishing verified payment", "error", err)
		publishFailureCounter.Inc()
		return
	}

	verifiedPaidCounter.Inc()
}

// parseBody decodes the notification into a flat string map. Form-encoded
// and JSON bodies are supported; anything else is form-parsed best effort.
func parseBody(body []byte, contentType string) map[string]string {
	if strings.Contains(contentType, "application/json") {
		return parseJSON(body)
	}
	return parseForm(body)
}

func parseForm(body []byte) map[string]string {
	values, err := neturl.ParseQuery(string(body))
	if err != nil {
		return map[string]string{}
	}

	fields := make(map[string]string, len(values))
	for k := range values {
		fields[k] = values.Get(k)
	}
	return fields
}

func parseJSON(body []byte) map[string]string {
	dec := json.NewDecoder(strings.NewReader(string(body)))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return map[string]string{}
	}

	fields := make(map[string]string, len(raw))
	for k, v := range raw {
		switch t := v.(type) {
		case string:
			fields[k] = t
		case json.Number:
			fields[k] = t.String()
		case bool:
			fields[k] = strconv.FormatBool(t)
		case nil:
		default:
			b, _ := json.Marshal(t)
			fields[k] = string(b)
		}
	}
	return fields
}

func acknowledge(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("success"))
}
