package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	apikeydomain "github.com/smallbiznis/kudos/internal/apikey/domain"
	apikeyrepo "github.com/smallbiznis/kudos/internal/apikey/repository"
	apikeyservice "github.com/smallbiznis/kudos/internal/apikey/service"
	auditdomain "github.com/smallbiznis/kudos/internal/audit/domain"
	auditrepo "github.com/smallbiznis/kudos/internal/audit/repository"
	auditservice "github.com/smallbiznis/kudos/internal/audit/service"
	"github.com/smallbiznis/kudos/internal/authorization"
	campaigndomain "github.com/smallbiznis/kudos/internal/campaign/domain"
	campaignrepo "github.com/smallbiznis/kudos/internal/campaign/repository"
	campaignservice "github.com/smallbiznis/kudos/internal/campaign/service"
	"github.com/smallbiznis/kudos/internal/config"
	donordomain "github.com/smallbiznis/kudos/internal/donor/domain"
	donorrepo "github.com/smallbiznis/kudos/internal/donor/repository"
	gatewaydomain "github.com/smallbiznis/kudos/internal/gateway/domain"
	"github.com/smallbiznis/kudos/internal/observability"
	paymentdomain "github.com/smallbiznis/kudos/internal/payment/domain"
	"github.com/smallbiznis/kudos/internal/providers/pdf"
	subscriptiondomain "github.com/smallbiznis/kudos/internal/subscription/domain"
	transactiondomain "github.com/smallbiznis/kudos/internal/transaction/domain"
	transactionrepo "github.com/smallbiznis/kudos/internal/transaction/repository"
	"github.com/smallbiznis/kudos/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakePaymentService struct {
	webhookIDs []string
	result     paymentdomain.WebhookResult
	webhookErr error

	created   []paymentdomain.CreatePaymentRequest
	createErr error
}

func (f *fakePaymentService) HandleWebhook(ctx context.Context, paymentID string) (paymentdomain.WebhookResult, error) {
	_ = ctx
	f.webhookIDs = append(f.webhookIDs, paymentID)
	if strings.TrimSpace(paymentID) == "" {
		return paymentdomain.WebhookResult{}, paymentdomain.ErrInvalidRequest
	}
	res := f.result
	res.PaymentID = paymentID
	return res, f.webhookErr
}

func (f *fakePaymentService) CreatePayment(ctx context.Context, req paymentdomain.CreatePaymentRequest) (paymentdomain.CreatePaymentResponse, error) {
	_ = ctx
	f.created = append(f.created, req)
	if f.createErr != nil {
		return paymentdomain.CreatePaymentResponse{}, f.createErr
	}
	return paymentdomain.CreatePaymentResponse{
		OrderID:     "kdo_test",
		PaymentID:   "tr_test",
		CheckoutURL: "https://checkout.example/tr_test",
	}, nil
}

type fakeScheduler struct {
	subs        map[string]*subscriptiondomain.Subscription
	cancelCalls []string
}

func (f *fakeScheduler) MaybeCreate(ctx context.Context, tx *transactiondomain.Transaction, mandateID, interval string, years int) (*subscriptiondomain.Subscription, error) {
	return nil, nil
}

func (f *fakeScheduler) Cancel(ctx context.Context, subscriptionID, customerID string) (bool, error) {
	f.cancelCalls = append(f.cancelCalls, subscriptionID+"|"+customerID)
	sub, ok := f.subs[subscriptionID]
	if !ok {
		return false, subscriptiondomain.ErrSubscriptionNotFound
	}
	return sub.IsActive(), nil
}

func (f *fakeScheduler) SyncStatus(ctx context.Context, sub *subscriptiondomain.Subscription, remote *gatewaydomain.Subscription) error {
	return nil
}

func (f *fakeScheduler) Get(ctx context.Context, id string) (*subscriptiondomain.Subscription, error) {
	sub, ok := f.subs[id]
	if !ok {
		return nil, subscriptiondomain.ErrSubscriptionNotFound
	}
	return sub, nil
}

func (f *fakeScheduler) List(ctx context.Context, filter subscriptiondomain.ListFilter) ([]*subscriptiondomain.Subscription, error) {
	out := make([]*subscriptiondomain.Subscription, 0, len(f.subs))
	for _, sub := range f.subs {
		out = append(out, sub)
	}
	return out, nil
}

type testServer struct {
	server       *Server
	payments     *fakePaymentService
	scheduler    *fakeScheduler
	apiKeys      apikeydomain.Service
	transactions transactiondomain.Repository
	donors       donordomain.Repository
	campaigns    campaigndomain.Service
	audit        auditdomain.Service
	adminKey     string
	viewerKey    string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := dbtest.Open(t,
		&apikeydomain.APIKey{},
		&auditdomain.AuditLog{},
		&campaigndomain.Campaign{},
		&donordomain.Donor{},
		&transactiondomain.Transaction{},
	)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	log := zap.NewNop()

	auditSvc := auditservice.NewService(auditservice.Params{Log: log, GenID: node, Repo: auditrepo.Provide(db)})
	enforcer, err := authorization.NewEnforcer(db)
	require.NoError(t, err)
	authzSvc := authorization.NewService(authorization.Params{Log: log, Enforcer: enforcer})

	apiKeys := apikeyservice.New(apikeyservice.Params{DB: db, Log: log, GenID: node, Repo: apikeyrepo.Provide()})
	txRepo := transactionrepo.Provide(db)
	donors := donorrepo.Provide(db)
	donation := config.NewStaticDonationConfigHolder(config.DefaultDonationConfig())
	campaigns := campaignservice.NewService(campaignservice.Params{
		Log:          log,
		GenID:        node,
		Repo:         campaignrepo.Provide(db),
		Transactions: txRepo,
		Donation:     donation,
	})

	payments := &fakePaymentService{result: paymentdomain.WebhookResult{Outcome: paymentdomain.OutcomeUpdated}}
	scheduler := &fakeScheduler{subs: map[string]*subscriptiondomain.Subscription{}}

	ctx := context.Background()
	admin, err := apiKeys.Create(ctx, apikeydomain.CreateRequest{Name: "admin", Role: authorization.RoleAdmin})
	require.NoError(t, err)
	viewer, err := apiKeys.Create(ctx, apikeydomain.CreateRequest{Name: "viewer", Role: authorization.RoleViewer})
	require.NoError(t, err)

	srv := NewServer(ServerParams{
		Gin:             NewEngine(observability.Config{LogLevel: "info"}, log),
		Cfg:             config.Config{HTTPAddr: ":0"},
		Log:             log,
		APIKeySvc:       apiKeys,
		AuthzSvc:        authzSvc,
		AuditSvc:        auditSvc,
		CampaignSvc:     campaigns,
		PaymentSvc:      payments,
		SubscriptionSvc: scheduler,
		Transactions:    txRepo,
		Donors:          donors,
		PDF:             pdf.New(),
		Donation:        donation,
	})

	return &testServer{
		server:       srv,
		payments:     payments,
		scheduler:    scheduler,
		apiKeys:      apiKeys,
		transactions: txRepo,
		donors:       donors,
		campaigns:    campaigns,
		audit:        auditSvc,
		adminKey:     admin.APIKey,
		viewerKey:    viewer.APIKey,
	}
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	ts.server.Engine().ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) admin(method, path string, body any) *httptest.ResponseRecorder {
	return ts.authed(ts.adminKey, method, path, body)
}

func (ts *testServer) authed(key, method, path string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+key)
	return ts.do(req)
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestWebhookAcknowledgesFormID(t *testing.T) {
	ts := newTestServer(t)
	ts.payments.result = paymentdomain.WebhookResult{Outcome: paymentdomain.OutcomeNotFound}

	form := url.Values{"id": {"tr_doesnotexist"}}
	req := httptest.NewRequest(http.MethodPost, "/payment/webhook", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := ts.do(req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "tr_doesnotexist", body["id"])
	assert.Equal(t, []string{"tr_doesnotexist"}, ts.payments.webhookIDs)
}

func TestWebhookAcceptsJSONBody(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/payment/webhook", strings.NewReader(`{"id":"tr_json"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := ts.do(req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "tr_json", decodeBody(t, rec)["id"])
}

func TestWebhookStillAcknowledgesFailures(t *testing.T) {
	ts := newTestServer(t)
	ts.payments.result = paymentdomain.WebhookResult{Outcome: paymentdomain.OutcomeGatewayError}
	ts.payments.webhookErr = &gatewaydomain.GatewayError{Operation: "get_payment", StatusCode: 500}

	form := url.Values{"id": {"tr_flaky"}}
	req := httptest.NewRequest(http.MethodPost, "/payment/webhook", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := ts.do(req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["success"])
}

func TestWebhookWithoutIDIsRejected(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/payment/webhook", strings.NewReader(""))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := ts.do(req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, ts.payments.webhookIDs)
}

func TestCreatePaymentReturnsCheckout(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/payment/create", strings.NewReader(`{"campaign_id":"general","amount":"10","email":"a@example.com"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := ts.do(req)

	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeBody(t, rec)["data"].(map[string]any)
	assert.Equal(t, "https://checkout.example/tr_test", data["checkout_url"])
	require.Len(t, ts.payments.created, 1)
	assert.Equal(t, "10", ts.payments.created[0].Amount)
}

func TestCreatePaymentValidationError(t *testing.T) {
	ts := newTestServer(t)
	ts.payments.createErr = paymentdomain.ErrAmountTooLow

	req := httptest.NewRequest(http.MethodPost, "/payment/create", strings.NewReader(`{"campaign_id":"general","amount":"0.10"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := ts.do(req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	payload := decodeBody(t, rec)["error"].(map[string]any)
	errs := payload["errors"].([]any)
	require.Len(t, errs, 1)
	first := errs[0].(map[string]any)
	assert.Equal(t, "amount_below_minimum", first["code"])
	assert.Equal(t, "amount", first["field"])
}

func TestAdminRequiresAPIKey(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/api/v1/campaigns", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.authed("kudos_sk_unknown", http.MethodGet, "/api/v1/campaigns", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestViewerCannotCreateCampaign(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.authed(ts.viewerKey, http.MethodGet, "/api/v1/campaigns", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.authed(ts.viewerKey, http.MethodPost, "/api/v1/campaigns", map[string]any{"name": "Nope"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAdminCreatesCampaignAndReadsTotal(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	rec := ts.admin(http.MethodPost, "/api/v1/campaigns", map[string]any{
		"name":             "School Roof",
		"minimum_donation": "5",
		"goal":             "1000",
		"additional_funds": "50",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	campaign, err := ts.campaigns.Get(ctx, "school-roof")
	require.NoError(t, err)
	campaignID := campaign.ID
	require.NoError(t, ts.transactions.Save(ctx, &transactiondomain.Transaction{
		ID:         snowflake.ID(9001),
		OrderID:    "kdo_paid",
		CampaignID: &campaignID,
		Value:      decimal.RequireFromString("25.00"),
		Currency:   "EUR",
		Status:     gatewaydomain.StatusPaid,
	}))

	rec = ts.admin(http.MethodGet, "/api/v1/campaigns/school-roof", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	total := decodeBody(t, rec)["total"].(map[string]any)
	assert.Equal(t, "75", total["total"])

	rec = ts.admin(http.MethodPost, "/api/v1/campaigns", map[string]any{"name": "School roof"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.admin(http.MethodGet, "/api/v1/campaigns/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListTransactionsFiltersByStatus(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	for i, status := range []string{gatewaydomain.StatusPaid, gatewaydomain.StatusOpen, gatewaydomain.StatusPaid} {
		require.NoError(t, ts.transactions.Save(ctx, &transactiondomain.Transaction{
			ID:       snowflake.ID(100 + i),
			OrderID:  "kdo_" + string(rune('a'+i)),
			Value:    decimal.NewFromInt(10),
			Currency: "EUR",
			Status:   status,
		}))
	}

	rec := ts.admin(http.MethodGet, "/api/v1/transactions?status=paid", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeBody(t, rec)["data"].([]any)
	assert.Len(t, data, 2)

	rec = ts.admin(http.MethodGet, "/api/v1/transactions?campaign_id=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDownloadReceipt(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	donorID := snowflake.ID(501)
	require.NoError(t, ts.donors.Save(ctx, &donordomain.Donor{
		ID:      donorID,
		Email:   "ada@example.com",
		Name:    "Ada Lovelace",
		Street:  "1 Analytical Way",
		City:    "London",
		Country: "GB",
	}))
	require.NoError(t, ts.transactions.Save(ctx, &transactiondomain.Transaction{
		ID:           snowflake.ID(700),
		OrderID:      "kdo_receipt",
		DonorID:      &donorID,
		Value:        decimal.RequireFromString("12.50"),
		Currency:     "EUR",
		Status:       gatewaydomain.StatusPaid,
		Method:       "ideal",
		SequenceType: gatewaydomain.SequenceOneOff,
		UpdatedAt:    time.Date(2024, time.May, 2, 10, 0, 0, 0, time.UTC),
	}))
	require.NoError(t, ts.transactions.Save(ctx, &transactiondomain.Transaction{
		ID:       snowflake.ID(701),
		OrderID:  "kdo_open",
		Value:    decimal.NewFromInt(5),
		Currency: "EUR",
		Status:   gatewaydomain.StatusOpen,
	}))

	rec := ts.admin(http.MethodGet, "/api/v1/transactions/700/receipt", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")))

	rec = ts.admin(http.MethodGet, "/api/v1/transactions/701/receipt", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.admin(http.MethodGet, "/api/v1/transactions/999/receipt", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelSubscriptionIsAudited(t *testing.T) {
	ts := newTestServer(t)
	ts.scheduler.subs["sub_active"] = &subscriptiondomain.Subscription{
		ID:                   snowflake.ID(42),
		VendorSubscriptionID: "sub_active",
		CustomerID:           "cst_1",
		Status:               gatewaydomain.SubscriptionActive,
	}

	rec := ts.authed(ts.viewerKey, http.MethodPost, "/api/v1/subscriptions/sub_active/cancel", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.admin(http.MethodPost, "/api/v1/subscriptions/sub_active/cancel", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["canceled"])
	assert.Equal(t, []string{"sub_active|"}, ts.scheduler.cancelCalls)

	logs, err := ts.audit.List(context.Background(), auditdomain.ListAuditLogRequest{Action: auditdomain.ActionSubscriptionCanceled})
	require.NoError(t, err)
	require.Len(t, logs.AuditLogs, 1)
	require.NotNil(t, logs.AuditLogs[0].TargetID)
	assert.Equal(t, "sub_active", *logs.AuditLogs[0].TargetID)
	assert.Equal(t, auditdomain.ActorAPIKey, logs.AuditLogs[0].ActorType)

	rec = ts.admin(http.MethodPost, "/api/v1/subscriptions/sub_missing/cancel", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPIKeyLifecycleOverHTTP(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.admin(http.MethodPost, "/api/v1/api-keys", map[string]any{"name": "ci", "role": "viewer"})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeBody(t, rec)
	keyID := created["key_id"].(string)
	secret := created["api_key"].(string)

	rec = ts.authed(secret, http.MethodGet, "/api/v1/transactions", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.admin(http.MethodPost, "/api/v1/api-keys/"+keyID+"/revoke", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = ts.authed(secret, http.MethodGet, "/api/v1/transactions", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.admin(http.MethodPost, "/api/v1/api-keys", map[string]any{"name": "bad", "role": "owner"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMapError(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		typ    string
	}{
		{"validation", paymentdomain.ErrInvalidEmail, http.StatusBadRequest, "validation_error"},
		{"unauthorized", apikeydomain.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
		{"forbidden", authorization.ErrForbidden, http.StatusForbidden, "forbidden"},
		{"not found", campaigndomain.ErrNotFound, http.StatusNotFound, "not_found"},
		{"conflict", campaigndomain.ErrSlugTaken, http.StatusConflict, "conflict"},
		{"rate limited", ErrRateLimited, http.StatusTooManyRequests, "rate_limited"},
		{"gateway", &gatewaydomain.GatewayError{Operation: "create_payment", StatusCode: 503}, http.StatusBadGateway, "gateway_error"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, payload := mapError(tc.err)
			assert.Equal(t, tc.status, status)
			assert.Equal(t, tc.typ, payload.Type)
		})
	}
}
