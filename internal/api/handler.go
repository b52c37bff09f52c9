// Package api exposes the storefront-facing JSON endpoints.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"payment-service/internal/catalog"
	"payment-service/internal/entitlement"
	"payment-service/internal/gateway"
	"payment-service/internal/logcontext"
	"payment-service/internal/poller"
)

const defaultCookieMaxAgeDays = 7

type Handler struct {
	provider     gateway.Provider
	poller       *poller.Poller
	issuer       *entitlement.Issuer
	cookieMaxAge time.Duration
	logger       *slog.Logger

	now func() time.Time
}

func NewHandler(provider gateway.Provider, p *poller.Poller, issuer *entitlement.Issuer, cookieMaxAgeDays int, logger *slog.Logger) *Handler {
	if cookieMaxAgeDays <= 0 {
		cookieMaxAgeDays = defaultCookieMaxAgeDays
	}

	return &Handler{
		provider:     provider,
		poller:       p,
		issuer:       issuer,
		cookieMaxAge: time.Duration(cookieMaxAgeDays) * 24 * time.Hour,
		logger:       logger,
		now:          time.Now,
	}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/payment/create", h.CreateOrder)
	mux.HandleFunc("POST /api/payment/query", h.QueryOrder)
	mux.HandleFunc("POST /api/payment/confirm", h.ConfirmOrder)
	mux.HandleFunc("GET /api/payment/status", h.PaymentStatus)
}

type response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

type createRequest struct {
	PackageType string `json:"package_type"`
	Title       string `json:"title"`
	ReturnURL   string `json:"return_url"`
}

type createData struct {
	URL     string `json:"url"`
	OrderID string `json:"order_id"`
}

func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, response{Error: "invalid request body"})
		return
	}

	if req.PackageType == "" {
		writeJSON(w, http.StatusBadRequest, response{Error: "package_type is required"})
		return
	}

	orderID := newOrderID()
	ctx := logcontext.AppendCtx(r.Context(), slog.String("orderId", orderID))

	result, err := h.provider.CreateOrder(ctx, gateway.CreateOrderRequest{
		OrderID:    orderID,
		PackageKey: req.PackageType,
		Title:      req.Title,
		ReturnURL:  req.ReturnURL,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, response{
		Success: true,
		Data:    createData{URL: result.PaymentURL, OrderID: result.OrderID},
	})
}

type queryRequest struct {
	OrderID string `json:"order_id"`
}

type queryData struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

func (h *Handler) QueryOrder(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, response{Error: "invalid request body"})
		return
	}

	if req.OrderID == "" {
		writeJSON(w, http.StatusBadRequest, response{Error: "order_id is required"})
		return
	}

	status, err := h.provider.QueryOrder(r.Context(), req.OrderID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, response{
		Success: true,
		Data:    queryData{OrderID: req.OrderID, Status: string(status)},
	})
}

type confirmRequest struct {
	OrderID     string `json:"order_id"`
	PackageType string `json:"package_type"`
}

type confirmData struct {
	PackageType   string    `json:"package_type"`
	ExpireTime    time.Time `json:"expire_time"`
	RemainingDays *int      `json:"remaining_days"`
}

// ConfirmOrder runs the status poller to a terminal state after the buyer
// returns from the gateway; on success it issues the entitlement cookie.
func (h *Handler) ConfirmOrder(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, response{Error: "invalid request body"})
		return
	}

	ctx := logcontext.AppendCtx(r.Context(), slog.String("orderId", req.OrderID))

	if state := h.poller.Await(ctx, req.OrderID); state != poller.StateSuccess {
		h.logger.InfoContext(ctx, "Payment not confirmed", "state", string(state))
		writeJSON(w, http.StatusOK, response{Error: "payment not completed"})
		return
	}

	packageType := req.PackageType
	if packageType == "" {
		// Return navigation sometimes loses the package parameter.
		packageType = "monthly"
	}

	now := h.now()
	token, err := h.issuer.Issue(packageType, req.OrderID, now)
	if err != nil {
		h.writeError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     entitlement.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.cookieMaxAge.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	status := h.issuer.Verify(token, now)
	writeJSON(w, http.StatusOK, response{
		Success: true,
		Data: confirmData{
			PackageType:   status.PackageKey,
			ExpireTime:    status.ExpireTime,
			RemainingDays: status.RemainingDays,
		},
	})
}

type statusData struct {
	Paid          bool       `json:"paid"`
	PackageType   string     `json:"package_type,omitempty"`
	ExpireTime    *time.Time `json:"expire_time,omitempty"`
	RemainingDays *int       `json:"remaining_days,omitempty"`
}

// PaymentStatus verifies the entitlement cookie. An invalid or expired
// token is cleared so the next call is a clean miss.
func (h *Handler) PaymentStatus(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(entitlement.CookieName)
	if err != nil {
		writeJSON(w, http.StatusOK, statusData{Paid: false})
		return
	}

	status := h.issuer.Verify(cookie.Value, h.now())
	if !status.Valid {
		http.SetCookie(w, &http.Cookie{
			Name:   entitlement.CookieName,
			Value:  "",
			Path:   "/",
			MaxAge: -1,
		})
		writeJSON(w, http.StatusOK, statusData{Paid: false})
		return
	}

	writeJSON(w, http.StatusOK, statusData{
		Paid:          true,
		PackageType:   status.PackageKey,
		ExpireTime:    &status.ExpireTime,
		RemainingDays: status.RemainingDays,
	})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var unknown *catalog.UnknownPackageError
	if errors.As(err, &unknown) {
		writeJSON(w, http.StatusBadRequest, response{Error: unknown.Error()})
		return
	}

	var gwErr *gateway.Error
	if errors.As(err, &gwErr) {
		h.logger.Error("Gateway call failed", "error", err)
		code := http.StatusBadRequest
		if gwErr.Transport() {
			code = http.StatusInternalServerError
		}
		writeJSON(w, code, response{Error: gwErr.Message})
		return
	}

	h.logger.Error("Unexpected error", "error", err)
	writeJSON(w, http.StatusInternalServerError, response{Error: "internal error"})
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}

func newOrderID() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return fmt.Sprintf("ORDER_%d_%s", time.Now().UnixMilli(), id)
}
