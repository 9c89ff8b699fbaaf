package marketplace_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vasiliy-maslov/farm-checkout/internal/marketplace"
	"github.com/vasiliy-maslov/farm-checkout/internal/validation"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *marketplace.Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return marketplace.NewClient(marketplace.Config{
		BaseURL:        srv.URL,
		Timeout:        2 * time.Second,
		EndpointSuffix: ".php",
		ServiceName:    t.Name(),
	})
}

func writeJSON(w http.ResponseWriter, code int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = io.WriteString(w, body)
}

func TestClient_Products_LenientFields(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/get_all_products.php", r.URL.Path)
		writeJSON(w, http.StatusOK, `{"success":true,"products":[
			{"id":"1","name":"Rice","price":"50.00","price_kg":48.5,"price_gram":null,"stock":"10","image_url":"rice.jpg","farmer":"Mang Juan"},
			{"id":2,"name":"Eggs","price":8,"price_kg":"","price_gram":"","stock":30,"farmer":7}
		]}`)
	})

	products, err := client.Products(context.Background())
	require.NoError(t, err)
	require.Len(t, products, 2)

	assert.Equal(t, marketplace.FlexInt(1), products[0].ID)
	assert.Equal(t, "50", products[0].Price.String())
	assert.Equal(t, "48.5", products[0].PriceKg.String())
	assert.True(t, products[0].PriceGram.IsZero())
	assert.Equal(t, marketplace.FlexInt(10), products[0].Stock)
	assert.Equal(t, "Mang Juan", products[0].Farmer.String())
	assert.Equal(t, "7", products[1].Farmer.String())
}

func TestClient_CreateOrder(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/create_order.php", r.URL.Path)
		assert.Equal(t, "PHPSESSID=abc", r.Header.Get("Cookie"))

		var req marketplace.CreateOrderRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "cash_on_delivery", req.PaymentMethod)
		if assert.Len(t, req.CartItems, 1) {
			assert.Equal(t, int64(1), req.CartItems[0].ProductID)
			assert.Equal(t, 50.0, req.CartItems[0].UnitPrice)
		}

		writeJSON(w, http.StatusOK, `{"success":true,"orders":[{"order_id":101},{"order_id":"102"}],"message":"Order placed"}`)
	})

	ctx := marketplace.WithSessionCookie(context.Background(), "PHPSESSID=abc")
	resp, err := client.CreateOrder(ctx, marketplace.CreateOrderRequest{
		CartItems:       []marketplace.OrderItem{{ProductID: 1, Quantity: 2, UnitPrice: 50}},
		DeliveryAddress: "Ana, 0917, Purok 1 (delivery)",
		PaymentMethod:   "cash_on_delivery",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"101", "102"}, resp.OrderIDs())
	assert.Equal(t, "Order placed", resp.Text())
}

func TestClient_CreateOrder_BareOrderID(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"success":true,"order_id":55}`)
	})

	resp, err := client.CreateOrder(context.Background(), marketplace.CreateOrderRequest{})
	require.NoError(t, err)
	assert.Equal(t, []string{"55"}, resp.OrderIDs())
}

func TestClient_Errors(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantStatus  int
		wantMessage string
		wantErr     error
	}{
		{
			name:        "rejected_with_message",
			status:      http.StatusOK,
			body:        `{"success":false,"message":"Insufficient stock for Rice"}`,
			wantStatus:  http.StatusOK,
			wantMessage: "Insufficient stock for Rice",
			wantErr:     marketplace.ErrRejected,
		},
		{
			name:        "rejected_with_error_field",
			status:      http.StatusOK,
			body:        `{"success":false,"error":"Not logged in"}`,
			wantStatus:  http.StatusOK,
			wantMessage: "Not logged in",
			wantErr:     marketplace.ErrRejected,
		},
		{
			name:        "malformed_json",
			status:      http.StatusOK,
			body:        `<b>Warning</b>: mysqli error`,
			wantStatus:  http.StatusOK,
			wantMessage: marketplace.GenericFailureMessage,
			wantErr:     marketplace.ErrMalformed,
		},
		{
			name:        "client_error_with_message",
			status:      http.StatusBadRequest,
			body:        `{"success":false,"message":"Invalid payment method"}`,
			wantStatus:  http.StatusBadRequest,
			wantMessage: "Invalid payment method",
		},
		{
			name:        "server_error_without_body",
			status:      http.StatusInternalServerError,
			body:        ``,
			wantStatus:  http.StatusInternalServerError,
			wantMessage: marketplace.GenericFailureMessage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tt.status, tt.body)
			})

			_, err := client.CreateOrder(context.Background(), marketplace.CreateOrderRequest{})
			require.Error(t, err)

			var remote *marketplace.RemoteError
			require.True(t, errors.As(err, &remote))
			assert.Equal(t, marketplace.EndpointCreateOrder, remote.Endpoint)
			assert.Equal(t, tt.wantStatus, remote.StatusCode)
			assert.Equal(t, tt.wantMessage, remote.UserMessage())
			assert.Equal(t, tt.wantMessage, marketplace.UserMessage(err))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestClient_GenerateGCashQR(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req marketplace.GCashQRRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "101", req.OrderID)
		assert.Equal(t, 100.0, req.Amount)
		assert.Equal(t, "09171234567", req.MobileNumber)

		writeJSON(w, http.StatusOK, `{"success":true,"transaction_id":9001,"qr_code_url":"https://qr/9001.png","verification_code":"AB12CD34"}`)
	})

	resp, err := client.GenerateGCashQR(context.Background(), marketplace.GCashQRRequest{
		OrderID:      "101",
		Amount:       100,
		MobileNumber: "09171234567",
	})
	require.NoError(t, err)
	assert.Equal(t, "9001", resp.TransactionID.String())
	assert.Len(t, resp.VerificationCode, 8)
}

func TestClient_GenerateGCashQR_MalformedResponse(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing_code", `{"success":true,"transaction_id":9001}`},
		{"missing_transaction", `{"success":true,"verification_code":"AB12CD34"}`},
		{"short_code", `{"success":true,"transaction_id":9001,"verification_code":"AB12"}`},
		{"long_code", `{"success":true,"transaction_id":9001,"verification_code":"AB12CD34EF"}`},
		{"symbols_in_code", `{"success":true,"transaction_id":9001,"verification_code":"AB-2CD34"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusOK, tt.body)
			})

			_, err := client.GenerateGCashQR(context.Background(), marketplace.GCashQRRequest{})
			require.Error(t, err)
			assert.ErrorIs(t, err, marketplace.ErrMalformed)

			var remote *marketplace.RemoteError
			require.True(t, errors.As(err, &remote))
			assert.Nil(t, validation.Fields(err))
		})
	}
}

func TestClient_CreateBankTransfer(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req marketplace.BankTransferRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "REF123", req.TransferReference)
		assert.Equal(t, "2026-10-18", req.TransferDate)

		writeJSON(w, http.StatusOK, `{"success":true,"transaction_reference":"BT-0001",
			"merchant_bank_details":{"bank_name":"Land Bank","account_number":"0001-2345","account_name":"AgriMarket Inc.","swift_code":"TLBPPHMM"},
			"message":"Verification may take up to 24 hours"}`)
	})

	resp, err := client.CreateBankTransfer(context.Background(), marketplace.BankTransferRequest{
		OrderID:           "101",
		Amount:            100,
		BankName:          "BDO",
		BankAccountNumber: "1234567890",
		BankAccountName:   "Ana Santos",
		TransferReference: "REF123",
		TransferDate:      "2026-10-18",
	})
	require.NoError(t, err)
	assert.Equal(t, "BT-0001", resp.TransactionReference)
	assert.Equal(t, "Land Bank", resp.MerchantBankDetails.BankName)
	assert.Equal(t, "Verification may take up to 24 hours", resp.Text())
}

func TestClient_OrdersAndReview(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/get_orders.php":
			writeJSON(w, http.StatusOK, `{"success":true,"orders":[{"order_id":1,"status":"pending"},{"order_id":2,"payment_status":"paid","shipping_status":"to_ship"}]}`)
		case "/submit_review.php":
			var req marketplace.ReviewRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, 5, req.Rating)
			writeJSON(w, http.StatusOK, `{"success":true,"message":"Thanks for your review"}`)
		default:
			http.NotFound(w, r)
		}
	})

	orders, err := client.Orders(context.Background())
	require.NoError(t, err)
	assert.Len(t, orders, 2)

	msg, err := client.SubmitReview(context.Background(), marketplace.ReviewRequest{OrderID: "1", Rating: 5, Comment: "Fresh"})
	require.NoError(t, err)
	assert.Equal(t, "Thanks for your review", msg)
}

func TestClient_BreakerOpensOnServerErrors(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusBadGateway, `{"success":false}`)
	})

	for i := 0; i < 3; i++ {
		_, err := client.Products(context.Background())
		require.Error(t, err)
	}

	_, err := client.Products(context.Background())
	require.Error(t, err)

	var remote *marketplace.RemoteError
	require.True(t, errors.As(err, &remote))
	assert.True(t, remote.Unavailable)
	assert.ErrorIs(t, err, marketplace.ErrUnavailable)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_ClientErrorsDoNotTripBreaker(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusOK, `{"success":false,"message":"Product not found"}`)
	})

	for i := 0; i < 5; i++ {
		_, err := client.Products(context.Background())
		require.ErrorIs(t, err, marketplace.ErrRejected)
	}
	assert.Equal(t, int32(5), calls.Load())
}
