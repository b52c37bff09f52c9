package gateway

import (
	"bytes"
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
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"payment-service/internal/catalog"
	"payment-service/internal/config"
	"payment-service/internal/signing"
)

const (
	defaultTimeoutMs = 10_000

	requestVersion = "1.1"
	requestLang    = "zh-cn"
	requestPlugins = "xunhupay"
	tradeTypeWAP   = "WAP"

	// statusPaid is the provider's own code for a settled order.
	statusPaid = "OD"
)

var (
	createSuccessCounter = metrics.GetOrCreateCounter(`gateway_requests_total{op="create",result="success"}`)
	createErrorCounter   = metrics.GetOrCreateCounter(`gateway_requests_total{op="create",result="error"}`)
	querySuccessCounter  = metrics.GetOrCreateCounter(`gateway_requests_total{op="query",result="success"}`)
	queryErrorCounter    = metrics.GetOrCreateCounter(`gateway_requests_total{op="query",result="error"}`)

	requestDurationHistogram = metrics.GetOrCreateHistogram(`gateway_request_duration_milliseconds`)
)

// Xunhupay implements Provider against the 虎皮椒 HTTP API.
type Xunhupay struct {
	cfg     config.Gateway
	catalog *catalog.Catalog
	client  *http.Client
	logger  *slog.Logger

	now   func() time.Time
	nonce func() string
}

func NewXunhupay(cfg config.Gateway, cat *catalog.Catalog, logger *slog.Logger) *Xunhupay {
	timeout := cfg.Timeout()
	if timeout <= 0 {
		timeout = defaultTimeoutMs * time.Millisecond
	}

	return &Xunhupay{
		cfg:     cfg,
		catalog: cat,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
		now:     time.Now,
		nonce:   uuid.NewString,
	}
}

// BuildOrderRequest assembles and signs the parameter set for a payment
// request. Pure construction, no I/O.
func (x *Xunhupay) BuildOrderRequest(req CreateOrderRequest) (map[string]string, error) {
	pkg, err := x.catalog.Get(req.PackageKey)
	if err != nil {
		return nil, err
	}

	title := req.Title
	if title == "" {
		title = pkg.DisplayName
	}

	wapURL := req.ReturnURL
	if wapURL == "" {
		wapURL = x.cfg.BaseURL
	}

	params := map[string]string{
		"version":        requestVersion,
		"appid":          x.cfg.AppID,
		"trade_order_id": req.OrderID,
		"total_fee":      pkg.Amount(),
		"title":          title,
		"time":           strconv.FormatInt(x.now().Unix(), 10),
		"notify_url":     x.cfg.NotifyURL(),
		"nonce_str":      x.nonce(),
		"type":           tradeTypeWAP,
		"wap_url":        wapURL,
		"wap_name":       x.cfg.WapName,
	}
	params["hash"] = signing.Sign(params, x.cfg.AppSecret)

	return params, nil
}

func (x *Xunhupay) CreateOrder(ctx context.Context, req CreateOrderRequest) (*CreateOrderResult, error) {
	params, err := x.BuildOrderRequest(req)
	if err != nil {
		return nil, err
	}

	x.logger.InfoContext(ctx, "Creating gateway order", "orderId", req.OrderID, "package", req.PackageKey, "totalFee", params["total_fee"])

	fields, gwErr := x.post(ctx, x.cfg.DoURL, params)
	if gwErr != nil {
		createErrorCounter.Inc()
		return nil, gwErr
	}

	if gwErr := x.checkResponse(ctx, fields); gwErr != nil {
		createErrorCounter.Inc()
		return nil, gwErr
	}

	url := fields["url"]
	if url == "" {
		createErrorCounter.Inc()
		return nil, &Error{Message: "gateway response is missing the payment url"}
	}

	x.logger.InfoContext(ctx, "Gateway order created", "orderId", req.OrderID, "paymentUrl", url)
	createSuccessCounter.Inc()

	return &CreateOrderResult{OrderID: req.OrderID, PaymentURL: url}, nil
}

func (x *Xunhupay) QueryOrder(ctx context.Context, orderID string) (Status, error) {
	params := map[string]string{
		"version":        requestVersion,
		"lang":           requestLang,
		"plugins":        requestPlugins,
		"appid":          x.cfg.AppID,
		"trade_order_id": orderID,
		"time":           strconv.FormatInt(x.now().Unix(), 10),
	}
	params["hash"] = signing.Sign(params, x.cfg.AppSecret)

	x.logger.InfoContext(ctx, "Querying gateway order", "orderId", orderID)

	fields, gwErr := x.post(ctx, x.cfg.QueryURL, params)
	if gwErr != nil {
		queryErrorCounter.Inc()
		return StatusUnknown, gwErr
	}

	if gwErr := x.checkResponse(ctx, fields); gwErr != nil {
		queryErrorCounter.Inc()
		return StatusUnknown, gwErr
	}

	querySuccessCounter.Inc()

	if fields["status"] == statusPaid {
		return StatusPaid, nil
	}
	return StatusPending, nil
}

// post sends params form-encoded and returns the provider response as a flat
// string map, numbers preserved as written.
func (x *Xunhupay) post(ctx context.Context, url string, params map[string]string) (map[string]string, *Error) {
	start := time.Now()
	defer func() {
		requestDurationHistogram.Update(float64(time.Since(start).Milliseconds()))
	}()

	form := make(neturl.Values, len(params))
	for k, v := range params {
		form.Set(k, v)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &Error{Message: "building gateway request", Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := x.client.Do(req)
	if err != nil {
		x.logger.ErrorContext(ctx, "Gateway request failed", "error", err)
		return nil, &Error{Message: "gateway request failed", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Message: "reading gateway response", Err: err}
	}

	x.logger.DebugContext(ctx, "Gateway response", "status", resp.Status, "body", string(body))

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, &Error{Message: "unparseable gateway response", Err: errors.Wrapf(err, "body %q", string(body))}
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
			// excluded from signing anyway
		default:
			b, _ := json.Marshal(t)
			fields[k] = string(b)
		}
	}

	return fields, nil
}

// checkResponse validates errcode and, when the provider signed its reply,
// the response hash.
func (x *Xunhupay) checkResponse(ctx context.Context, fields map[string]string) *Error {
	errcode, err := strconv.Atoi(fields["errcode"])
	if err != nil {
		return &Error{Message: "gateway response is missing errcode", Err: err}
	}

	if errcode != 0 {
		msg := fields["errmsg"]
		if msg == "" {
			msg = "order rejected by gateway"
		}
		x.logger.ErrorContext(ctx, "Gateway returned error", "errcode", errcode, "errmsg", msg)
		return &Error{Code: errcode, Message: msg}
	}

	if hash, ok := fields["hash"]; ok {
		if !signing.Verify(fields, hash, x.cfg.AppSecret) {
			x.logger.ErrorContext(ctx, "Gateway response signature mismatch")
			return &Error{Message: "gateway response signature mismatch"}
		}
	}

	return nil
}
