// Package marketplace talks to the marketplace backend that owns products,
// orders and payments.
package marketplace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"

	"github.com/vasiliy-maslov/farm-checkout/internal/metrics"
	"github.com/vasiliy-maslov/farm-checkout/internal/validation"
)

var (
	ErrRejected   = errors.New("request rejected by marketplace")
	ErrMalformed  = errors.New("malformed marketplace response")
	errServerSide = errors.New("marketplace server error")
)

type Config struct {
	BaseURL string
	Timeout time.Duration
	// EndpointSuffix is appended to every endpoint name, e.g. ".php".
	EndpointSuffix string
	ServiceName    string
	Breaker        BreakerSettings
}

type Client struct {
	http    *resty.Client
	breaker *breaker[*resty.Response]
	suffix  string
}

func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "checkout-service"
	}

	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetRetryCount(0).
		SetHeader("Accept", "application/json")

	return &Client{
		http:    httpClient,
		breaker: newBreaker[*resty.Response]("marketplace", cfg.ServiceName, cfg.Breaker),
		suffix:  cfg.EndpointSuffix,
	}
}

func (c *Client) Products(ctx context.Context) ([]Product, error) {
	var out productsResponse
	if err := c.call(ctx, EndpointGetAllProducts, nil, &out); err != nil {
		return nil, err
	}
	return out.Products, nil
}

func (c *Client) CreateOrder(ctx context.Context, req CreateOrderRequest) (*CreateOrderResponse, error) {
	var out CreateOrderResponse
	if err := c.call(ctx, EndpointCreateOrder, req, &out); err != nil {
		return nil, err
	}
	if len(out.OrderIDs()) == 0 {
		return nil, &RemoteError{Endpoint: EndpointCreateOrder, Message: out.Text(), Err: fmt.Errorf("%w: no order id", ErrMalformed)}
	}
	return &out, nil
}

func (c *Client) GenerateGCashQR(ctx context.Context, req GCashQRRequest) (*GCashQRResponse, error) {
	var out GCashQRResponse
	if err := c.call(ctx, EndpointGenerateGCashQR, req, &out); err != nil {
		return nil, err
	}
	// a code the buyer could never type back would strand the transaction
	if err := validation.Struct(out); err != nil {
		return nil, &RemoteError{Endpoint: EndpointGenerateGCashQR, Message: out.Text(), Err: fmt.Errorf("%w: %s", ErrMalformed, err)}
	}
	return &out, nil
}

// VerifyGCashPayment returns the collaborator's confirmation message.
func (c *Client) VerifyGCashPayment(ctx context.Context, req VerifyGCashRequest) (string, error) {
	var out statusResponse
	if err := c.call(ctx, EndpointVerifyGCashPayment, req, &out); err != nil {
		return "", err
	}
	return out.Text(), nil
}

func (c *Client) CreateBankTransfer(ctx context.Context, req BankTransferRequest) (*BankTransferResponse, error) {
	var out BankTransferResponse
	if err := c.call(ctx, EndpointCreateBankTransfer, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Orders returns the buyer's raw order records; decoding is left to the order package.
func (c *Client) Orders(ctx context.Context) ([]json.RawMessage, error) {
	var out ordersResponse
	if err := c.call(ctx, EndpointGetOrders, nil, &out); err != nil {
		return nil, err
	}
	return out.Orders, nil
}

func (c *Client) SubmitReview(ctx context.Context, req ReviewRequest) (string, error) {
	var out statusResponse
	if err := c.call(ctx, EndpointSubmitReview, req, &out); err != nil {
		return "", err
	}
	return out.Text(), nil
}

func (c *Client) path(endpoint string) string {
	return "/" + endpoint + c.suffix
}

func (c *Client) call(ctx context.Context, endpoint string, body any, out enveloped) error {
	start := time.Now()

	resp, err := c.breaker.Execute(func() (*resty.Response, error) {
		req := c.http.R().SetContext(ctx)
		if cookie := SessionCookie(ctx); cookie != "" {
			req.SetHeader("Cookie", cookie)
		}
		if body != nil {
			req.SetHeader("Content-Type", "application/json").SetBody(body)
		}

		resp, err := req.Post(c.path(endpoint))
		if err != nil {
			return resp, err
		}
		if resp.StatusCode() >= 500 {
			return resp, errServerSide
		}
		return resp, nil
	})

	metrics.MarketplaceRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())

	if err != nil && !errors.Is(err, errServerSide) {
		if isBreakerRejection(err) {
			metrics.MarketplaceRequestsTotal.WithLabelValues(endpoint, "unavailable").Inc()
			log.Warn().Err(err).Str("endpoint", endpoint).Msg("marketplace: circuit open, call skipped")
			return &RemoteError{Endpoint: endpoint, Unavailable: true, Err: fmt.Errorf("%w: %w", ErrUnavailable, err)}
		}

		metrics.MarketplaceRequestsTotal.WithLabelValues(endpoint, "error").Inc()
		log.Error().Err(err).Str("endpoint", endpoint).Msg("marketplace: request failed")
		return &RemoteError{Endpoint: endpoint, Err: err}
	}

	statusCode := resp.StatusCode()
	decodeErr := json.Unmarshal(resp.Body(), out)

	if statusCode < 200 || statusCode >= 300 {
		metrics.MarketplaceRequestsTotal.WithLabelValues(endpoint, "error").Inc()
		var message string
		if decodeErr == nil {
			message = out.status().Text()
		}
		log.Error().Str("endpoint", endpoint).Int("status", statusCode).Str("remote_message", message).Msg("marketplace: unexpected status")
		return &RemoteError{
			Endpoint:   endpoint,
			StatusCode: statusCode,
			Message:    message,
			Err:        fmt.Errorf("unexpected status %d", statusCode),
		}
	}

	if decodeErr != nil {
		metrics.MarketplaceRequestsTotal.WithLabelValues(endpoint, "error").Inc()
		log.Error().Err(decodeErr).Str("endpoint", endpoint).Msg("marketplace: failed to decode response")
		return &RemoteError{Endpoint: endpoint, StatusCode: statusCode, Err: fmt.Errorf("%w: %w", ErrMalformed, decodeErr)}
	}

	if st := out.status(); !st.Success {
		metrics.MarketplaceRequestsTotal.WithLabelValues(endpoint, "rejected").Inc()
		log.Warn().Str("endpoint", endpoint).Str("remote_message", st.Text()).Msg("marketplace: request rejected")
		return &RemoteError{Endpoint: endpoint, StatusCode: statusCode, Message: st.Text(), Err: ErrRejected}
	}

	metrics.MarketplaceRequestsTotal.WithLabelValues(endpoint, "ok").Inc()
	return nil
}

type cookieKey struct{}

// WithSessionCookie attaches the buyer's marketplace cookie header so every
// collaborator call runs as that buyer.
func WithSessionCookie(ctx context.Context, cookie string) context.Context {
	return context.WithValue(ctx, cookieKey{}, cookie)
}

func SessionCookie(ctx context.Context) string {
	cookie, _ := ctx.Value(cookieKey{}).(string)
	return cookie
}
