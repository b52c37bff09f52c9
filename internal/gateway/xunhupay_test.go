package gateway

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/h2non/gock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payment-service/internal/catalog"
	"payment-service/internal/config"
	"payment-service/internal/signing"
)

const testSecret = "supersecret"

func testGateway() *Xunhupay {
	cfg := config.Gateway{
		AppID:     "201906",
		AppSecret: testSecret,
		BaseURL:   "https://shop.example",
		DoURL:     "http://xunhupay.test/payment/do.html",
		QueryURL:  "http://xunhupay.test/payment/query.html",
		WapName:   "支付",
		TimeoutMs: 2000,
	}

	x := NewXunhupay(cfg, catalog.Default(), slog.Default())
	x.now = func() time.Time { return time.Unix(1700000000, 0) }
	x.nonce = func() string { return "fixed-nonce" }
	return x
}

func TestBuildOrderRequest(t *testing.T) {
	x := testGateway()

	params, err := x.BuildOrderRequest(CreateOrderRequest{
		OrderID:    "ORDER_1",
		PackageKey: "daily",
		ReturnURL:  "https://shop.example/payment/result",
	})
	require.NoError(t, err)

	assert.Equal(t, "1.1", params["version"])
	assert.Equal(t, "201906", params["appid"])
	assert.Equal(t, "ORDER_1", params["trade_order_id"])
	assert.Equal(t, "3.00", params["total_fee"])
	assert.Equal(t, "单日套餐", params["title"])
	assert.Equal(t, "1700000000", params["time"])
	assert.Equal(t, "https://shop.example/api/payment/notify", params["notify_url"])
	assert.Equal(t, "fixed-nonce", params["nonce_str"])
	assert.Equal(t, "WAP", params["type"])
	assert.Equal(t, "https://shop.example/payment/result", params["wap_url"])

	assert.True(t, signing.Verify(params, params["hash"], testSecret))
}

func TestBuildOrderRequest_CustomTitle(t *testing.T) {
	x := testGateway()

	params, err := x.BuildOrderRequest(CreateOrderRequest{
		OrderID:    "ORDER_1",
		PackageKey: "weekly",
		Title:      "升级周套餐",
	})
	require.NoError(t, err)

	assert.Equal(t, "升级周套餐", params["title"])
	assert.Equal(t, "7.00", params["total_fee"])
	// No return_url given, so the buyer lands back on the storefront.
	assert.Equal(t, "https://shop.example", params["wap_url"])
}

func TestBuildOrderRequest_UnknownPackage(t *testing.T) {
	x := testGateway()

	_, err := x.BuildOrderRequest(CreateOrderRequest{OrderID: "ORDER_1", PackageKey: "yearly"})

	var unknown *catalog.UnknownPackageError
	assert.ErrorAs(t, err, &unknown)
}

func TestCreateOrder(t *testing.T) {
	tests := []struct {
		name         string
		mockResponse func()
		expectedURL  string
		expectedCode int
		expectedErr  string
	}{
		{
			name: "Success",
			mockResponse: func() {
				gock.New("http://xunhupay.test").
					Post("/payment/do.html").
					Reply(200).
					JSON(map[string]any{"errcode": 0, "errmsg": "success!", "url": "https://pay.xunhupay.com/x"})
			},
			expectedURL: "https://pay.xunhupay.com/x",
		},
		{
			name: "ProviderRejects",
			mockResponse: func() {
				gock.New("http://xunhupay.test").
					Post("/payment/do.html").
					Reply(200).
					JSON(map[string]any{"errcode": 10013, "errmsg": "无效的签名"})
			},
			expectedCode: 10013,
			expectedErr:  "无效的签名",
		},
		{
			name: "UnparseableBody",
			mockResponse: func() {
				gock.New("http://xunhupay.test").
					Post("/payment/do.html").
					Reply(200).
					BodyString("<html>gateway busy</html>")
			},
			expectedErr: "unparseable gateway response",
		},
		{
			name: "MissingPaymentURL",
			mockResponse: func() {
				gock.New("http://xunhupay.test").
					Post("/payment/do.html").
					Reply(200).
					JSON(map[string]any{"errcode": 0})
			},
			expectedErr: "missing the payment url",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer gock.Off()
			tt.mockResponse()

			x := testGateway()
			result, err := x.CreateOrder(context.Background(), CreateOrderRequest{
				OrderID:    "ORDER_1",
				PackageKey: "daily",
			})

			if tt.expectedErr != "" {
				var gwErr *Error
				require.ErrorAs(t, err, &gwErr)
				assert.Equal(t, tt.expectedCode, gwErr.Code)
				assert.Contains(t, gwErr.Error(), tt.expectedErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.expectedURL, result.PaymentURL)
				assert.Equal(t, "ORDER_1", result.OrderID)
			}
			assert.True(t, gock.IsDone())
		})
	}
}

func TestCreateOrder_TransportFailure(t *testing.T) {
	defer gock.Off()
	gock.New("http://xunhupay.test").
		Post("/payment/do.html").
		ReplyError(context.DeadlineExceeded)

	x := testGateway()
	_, err := x.CreateOrder(context.Background(), CreateOrderRequest{OrderID: "ORDER_1", PackageKey: "daily"})

	var gwErr *Error
	require.ErrorAs(t, err, &gwErr)
	assert.True(t, gwErr.Transport())
}

func TestCreateOrder_VerifiesResponseSignature(t *testing.T) {
	signedFields := map[string]string{
		"errcode": "0",
		"url":     "https://pay.xunhupay.com/x",
	}
	goodHash := signing.Sign(signedFields, testSecret)

	tests := []struct {
		name        string
		hash        string
		expectedErr string
	}{
		{name: "ValidHash", hash: goodHash},
		{name: "CorruptedHash", hash: "deadbeef", expectedErr: "signature mismatch"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer gock.Off()
			gock.New("http://xunhupay.test").
				Post("/payment/do.html").
				Reply(200).
				JSON(map[string]any{"errcode": 0, "url": "https://pay.xunhupay.com/x", "hash": tt.hash})

			x := testGateway()
			result, err := x.CreateOrder(context.Background(), CreateOrderRequest{OrderID: "ORDER_1", PackageKey: "daily"})

			if tt.expectedErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.expectedErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, "https://pay.xunhupay.com/x", result.PaymentURL)
			}
		})
	}
}

func TestCreateOrder_UnknownPackageMakesNoCall(t *testing.T) {
	defer gock.Off()
	gock.New("http://xunhupay.test").
		Post("/payment/do.html").
		Reply(200).
		JSON(map[string]any{"errcode": 0, "url": "https://pay.xunhupay.com/x"})

	x := testGateway()
	_, err := x.CreateOrder(context.Background(), CreateOrderRequest{OrderID: "ORDER_1", PackageKey: "yearly"})

	var unknown *catalog.UnknownPackageError
	assert.ErrorAs(t, err, &unknown)
	assert.False(t, gock.IsDone(), "no gateway call expected for an unknown package")
}

func TestQueryOrder(t *testing.T) {
	tests := []struct {
		name           string
		mockResponse   func()
		expectedStatus Status
		expectError    bool
	}{
		{
			name: "Paid",
			mockResponse: func() {
				gock.New("http://xunhupay.test").
					Post("/payment/query.html").
					Reply(200).
					JSON(map[string]any{"errcode": 0, "status": "OD", "trade_order_id": "ORDER_1"})
			},
			expectedStatus: StatusPaid,
		},
		{
			name: "Pending",
			mockResponse: func() {
				gock.New("http://xunhupay.test").
					Post("/payment/query.html").
					Reply(200).
					JSON(map[string]any{"errcode": 0, "status": "WP", "trade_order_id": "ORDER_1"})
			},
			expectedStatus: StatusPending,
		},
		{
			name: "ProviderError",
			mockResponse: func() {
				gock.New("http://xunhupay.test").
					Post("/payment/query.html").
					Reply(200).
					JSON(map[string]any{"errcode": 10001, "errmsg": "订单不存在"})
			},
			expectedStatus: StatusUnknown,
			expectError:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer gock.Off()
			tt.mockResponse()

			x := testGateway()
			status, err := x.QueryOrder(context.Background(), "ORDER_1")

			assert.Equal(t, tt.expectedStatus, status)
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.True(t, gock.IsDone())
		})
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	r.Register("xunhupay", testGateway())

	p, err := r.Get("xunhupay")
	assert.NoError(t, err)
	assert.NotNil(t, p)

	_, err = r.Get("stripe")
	assert.ErrorContains(t, err, "no payment provider registered")
}
