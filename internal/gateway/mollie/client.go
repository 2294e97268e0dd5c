package mollie

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/smallbiznis/kudos/internal/config"
	"github.com/smallbiznis/kudos/internal/gateway/domain"
	"github.com/smallbiznis/kudos/internal/observability/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const defaultBaseURL = "https://api.mollie.com"

var Module = fx.Module("gateway.mollie",
	fx.Provide(NewFromConfig),
)

// Options configures a Client. Credentials are explicit; nothing is read from globals.
type Options struct {
	APIKey     string
	Mode       string
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Log        *zap.Logger
}

// Client talks to the Mollie v2 REST API.
type Client struct {
	apiKey  string
	mode    string
	baseURL string
	http    *http.Client
	log     *zap.Logger
}

func NewFromConfig(cfg config.Config, log *zap.Logger) domain.Client {
	return New(Options{
		APIKey:  cfg.Mollie.APIKey(),
		Mode:    cfg.Mollie.Mode,
		BaseURL: cfg.Mollie.BaseURL,
		Timeout: cfg.Mollie.Timeout,
		Log:     log,
	})
}

func New(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	mode := opts.Mode
	if mode != domain.ModeLive {
		mode = domain.ModeTest
	}
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		apiKey:  strings.TrimSpace(opts.APIKey),
		mode:    mode,
		baseURL: baseURL,
		http:    httpClient,
		log:     log.Named("gateway.mollie"),
	}
}

func (c *Client) Mode() string {
	return c.mode
}

func (c *Client) GetPayment(ctx context.Context, paymentID string) (*domain.Payment, error) {
	var out paymentResource
	if err := c.do(ctx, "get_payment", http.MethodGet, "/v2/payments/"+url.PathEscape(paymentID), nil, &out); err != nil {
		return nil, err
	}
	return out.toDomain(), nil
}

func (c *Client) CreatePayment(ctx context.Context, req domain.CreatePaymentRequest) (*domain.Payment, error) {
	body := createPaymentBody{
		Amount:       req.Amount,
		Description:  req.Description,
		RedirectURL:  req.RedirectURL,
		WebhookURL:   req.WebhookURL,
		CustomerID:   req.CustomerID,
		SequenceType: req.SequenceType,
		Metadata:     req.Metadata,
	}
	var out paymentResource
	if err := c.do(ctx, "create_payment", http.MethodPost, "/v2/payments", body, &out); err != nil {
		return nil, err
	}
	return out.toDomain(), nil
}

func (c *Client) GetCustomer(ctx context.Context, customerID string) (*domain.Customer, error) {
	var out customerResource
	if err := c.do(ctx, "get_customer", http.MethodGet, "/v2/customers/"+url.PathEscape(customerID), nil, &out); err != nil {
		return nil, err
	}
	return out.toDomain(), nil
}

func (c *Client) CreateCustomer(ctx context.Context, req domain.CreateCustomerRequest) (*domain.Customer, error) {
	var out customerResource
	body := createCustomerBody{Name: req.Name, Email: req.Email}
	if err := c.do(ctx, "create_customer", http.MethodPost, "/v2/customers", body, &out); err != nil {
		return nil, err
	}
	return out.toDomain(), nil
}

func (c *Client) GetMandate(ctx context.Context, customerID, mandateID string) (*domain.Mandate, error) {
	var out mandateResource
	path := "/v2/customers/" + url.PathEscape(customerID) + "/mandates/" + url.PathEscape(mandateID)
	if err := c.do(ctx, "get_mandate", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &domain.Mandate{ID: out.ID, Status: out.Status, Method: out.Method}, nil
}

func (c *Client) CreateSubscription(ctx context.Context, customerID string, req domain.CreateSubscriptionRequest) (*domain.Subscription, error) {
	body := createSubscriptionBody{
		Amount:      req.Amount,
		Interval:    req.Interval,
		Description: req.Description,
		WebhookURL:  req.WebhookURL,
		MandateID:   req.MandateID,
		Times:       req.Times,
		StartDate:   req.StartDate,
		Metadata:    req.Metadata,
	}
	var out subscriptionResource
	path := "/v2/customers/" + url.PathEscape(customerID) + "/subscriptions"
	if err := c.do(ctx, "create_subscription", http.MethodPost, path, body, &out); err != nil {
		return nil, err
	}
	return out.toDomain(), nil
}

func (c *Client) GetSubscription(ctx context.Context, customerID, subscriptionID string) (*domain.Subscription, error) {
	var out subscriptionResource
	path := "/v2/customers/" + url.PathEscape(customerID) + "/subscriptions/" + url.PathEscape(subscriptionID)
	if err := c.do(ctx, "get_subscription", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.toDomain(), nil
}

// CancelSubscription returns true once the provider reports the subscription canceled.
func (c *Client) CancelSubscription(ctx context.Context, customerID, subscriptionID string) (bool, error) {
	var out subscriptionResource
	path := "/v2/customers/" + url.PathEscape(customerID) + "/subscriptions/" + url.PathEscape(subscriptionID)
	if err := c.do(ctx, "cancel_subscription", http.MethodDelete, path, nil, &out); err != nil {
		return false, err
	}
	return out.Status == domain.SubscriptionCanceled, nil
}

func (c *Client) do(ctx context.Context, operation, method, path string, body any, out any) error {
	if c.apiKey == "" {
		return domain.ErrInvalidConfig
	}

	ctx, span := otel.Tracer("kudos/gateway").Start(ctx, "mollie."+operation)
	defer span.End()
	span.SetAttributes(attribute.String("gateway.operation", operation))

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", operation, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		span.SetStatus(codes.Error, "transport error")
		metrics.Reconcile().ObserveGatewayError(operation)
		return &domain.GatewayError{Operation: operation, Err: err}
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode == http.StatusNotFound {
		return domain.ErrNotFound
	}
	if resp.StatusCode >= http.StatusBadRequest {
		span.SetStatus(codes.Error, "error response")
		metrics.Reconcile().ObserveGatewayError(operation)
		var apiErr errorResponse
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		c.log.Warn("gateway request rejected",
			zap.String("operation", operation),
			zap.Int("status_code", resp.StatusCode),
			zap.String("title", apiErr.Title),
		)
		return &domain.GatewayError{
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Title:      strings.TrimSpace(apiErr.Title),
			Detail:     strings.TrimSpace(apiErr.Detail),
		}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return &domain.GatewayError{Operation: operation, StatusCode: resp.StatusCode, Err: err}
	}
	return nil
}
