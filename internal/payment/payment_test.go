package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/apperr"
	"storefront/internal/events"
	"storefront/internal/kvstore"
	"storefront/internal/logging"
	"storefront/internal/models"
	"storefront/internal/orders"
	"storefront/internal/signer"
	"storefront/internal/store/memstore"
)

type fakeProvider struct {
	initErr  error
	outcomes map[string]Result
	inits    []InitRequest
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Initialize(_ context.Context, req InitRequest) (InitResult, error) {
	if f.initErr != nil {
		return InitResult{}, f.initErr
	}
	f.inits = append(f.inits, req)
	return InitResult{Token: "tok-" + req.ConversationID, RedirectURL: "https://pay.example/form"}, nil
}

func (f *fakeProvider) Retrieve(_ context.Context, token string) (Result, error) {
	r, ok := f.outcomes[token]
	if !ok {
		return Result{}, apperr.New(apperr.ErrInvalidSignature, "unknown token")
	}
	return r, nil
}

type fixture struct {
	svc      *Service
	store    *memstore.Store
	provider *fakeProvider
	kv       *kvstore.Memory
	events   *events.Recorder
	links    *signer.URLSigner
}

var now = func() time.Time { return time.Date(2026, 6, 1, 14, 0, 0, 0, time.UTC) }

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := memstore.New()
	rec := &events.Recorder{}
	log := logging.Discard()
	kv := kvstore.NewMemory(now)
	links := signer.New("link-secret", "https://shop.example", 10*time.Minute, now)
	prov := &fakeProvider{outcomes: map[string]Result{}}
	svc := NewService(Deps{
		Provider:    prov,
		Payments:    st,
		Orders:      orders.NewManager(st, st, rec, now, log),
		Tx:          st,
		KV:          kv,
		Links:       links,
		Events:      rec,
		CallbackURL: "https://shop.example/payment/callback",
		Now:         now,
		Log:         log,
	})
	return &fixture{svc: svc, store: st, provider: prov, kv: kv, events: rec, links: links}
}

func (f *fixture) order(t *testing.T, status models.OrderStatus) *models.Order {
	t.Helper()
	o := &models.Order{
		Status: status, Currency: "TRY", Subtotal: 20000, TaxTotal: 4600, ShippingTotal: 3000, GrandTotal: 27600,
		SessionID: "sess-1",
		Addresses: []models.OrderAddress{{Type: models.AddressShipping, Address: models.Address{FullName: "Ali Veli", Email: "ali@example.com", Country: "TR", City: "İzmir", Line1: "Kordon 5"}}},
		Items:     []models.OrderItem{{ID: primitive.NewObjectID(), ProductID: primitive.NewObjectID(), Title: "Kahve", Quantity: 2, LineTotal: 24000}},
		CreatedAt: now(),
	}
	require.NoError(t, f.store.InsertOrder(context.Background(), o))
	return o
}

func (f *fixture) initialize(t *testing.T, o *models.Order) string {
	t.Helper()
	_, err := f.svc.Initialize(context.Background(), o.ID, Buyer{ID: "guest"}, "sess-1")
	require.NoError(t, err)
	req := f.provider.inits[len(f.provider.inits)-1]
	return req.ConversationID
}

func TestInitializeStoresPendingPayment(t *testing.T) {
	f := newFixture(t)
	o := f.order(t, models.OrderPendingPayment)

	res, err := f.svc.Initialize(context.Background(), o.ID, Buyer{ID: "guest"}, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "https://pay.example/form", res.RedirectURL)

	req := f.provider.inits[0]
	assert.Equal(t, int64(27600), req.Amount)
	assert.Equal(t, "Ali Veli", req.Buyer.Name)
	assert.Equal(t, "İzmir", req.BillingAddress.City)
	assert.Equal(t, "https://shop.example/payment/callback", req.CallbackURL)

	p, err := f.store.FindPaymentByConversation(context.Background(), req.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPending, p.Status)
	assert.Equal(t, o.ID, p.OrderID)
	assert.Equal(t, "tok-"+req.ConversationID, p.Token)

	flag, ok, _ := f.kv.Get(context.Background(), kvstore.PendingOrderKey("sess-1"))
	assert.True(t, ok)
	assert.Equal(t, o.ID.Hex(), flag)
}

func TestInitializeRequiresPendingPayment(t *testing.T) {
	f := newFixture(t)
	o := f.order(t, models.OrderPaid)
	_, err := f.svc.Initialize(context.Background(), o.ID, Buyer{}, "")
	assert.ErrorIs(t, err, apperr.ErrInvalidCheckoutState)
}

func TestInitializeProviderFailureIsRetryable(t *testing.T) {
	f := newFixture(t)
	f.provider.initErr = errors.New("connection reset")
	o := f.order(t, models.OrderPendingPayment)

	_, err := f.svc.Initialize(context.Background(), o.ID, Buyer{}, "")
	require.ErrorIs(t, err, apperr.ErrUpstream)
	e, _ := apperr.As(err)
	assert.True(t, e.Retryable())
}

func TestCallbackMarksOrderPaidAndReplayIsNoop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.order(t, models.OrderPendingPayment)
	conv := f.initialize(t, o)
	f.provider.outcomes["cb-token"] = Result{ConversationID: conv, Token: "cb-token", Status: models.PaymentSuccess, TransactionID: "txn-9", PaidAmount: 27600}

	res, err := f.svc.HandleCallback(ctx, "cb-token", `{"token":"cb-token"}`)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentSuccess, res.Status)
	assert.False(t, res.Replayed)
	assert.True(t, strings.HasPrefix(res.RedirectURL, "https://shop.example/payment/result/"+o.ID.Hex()+"?signature="))

	got, err := f.store.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderPaid, got.Status)

	p, _ := f.store.FindPaymentByConversation(ctx, conv)
	assert.Equal(t, models.PaymentSuccess, p.Status)
	assert.Equal(t, "txn-9", p.TransactionID)
	assert.Equal(t, `{"token":"cb-token"}`, p.WebhookPayload)

	replay, err := f.svc.HandleCallback(ctx, "cb-token", `{"token":"cb-token","retry":1}`)
	require.NoError(t, err)
	assert.True(t, replay.Replayed)
	assert.Equal(t, models.PaymentSuccess, replay.Status)

	p, _ = f.store.FindPaymentByConversation(ctx, conv)
	assert.Equal(t, `{"token":"cb-token"}`, p.WebhookPayload)
	assert.Equal(t, []string{events.PaymentSucceeded}, f.events.Types())

	status, found, err := f.svc.Result(ctx, o.ID)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "success", status)
	_, found, _ = f.svc.Result(ctx, o.ID)
	assert.False(t, found)
}

func TestConcurrentCallbacksSettleOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.order(t, models.OrderPendingPayment)
	conv := f.initialize(t, o)
	f.provider.outcomes["cb-token"] = Result{ConversationID: conv, Token: "cb-token", Status: models.PaymentSuccess, TransactionID: "txn-1", PaidAmount: 27600}

	const attempts = 8
	var wg sync.WaitGroup
	results := make(chan CallbackResult, attempts)
	errs := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := f.svc.HandleCallback(ctx, "cb-token", fmt.Sprintf(`{"attempt":%d}`, i))
			if err != nil {
				errs <- err
				return
			}
			results <- res
		}(i)
	}
	wg.Wait()
	close(results)
	close(errs)

	for err := range errs {
		t.Errorf("unexpected error %v", err)
	}
	var settled, replayed int
	for res := range results {
		assert.Equal(t, models.PaymentSuccess, res.Status)
		if res.Replayed {
			replayed++
		} else {
			settled++
		}
	}
	assert.Equal(t, 1, settled)
	assert.Equal(t, attempts-1, replayed)

	got, err := f.store.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderPaid, got.Status)
	assert.Equal(t, []string{events.PaymentSucceeded}, f.events.Types())

	status, found, err := f.svc.Result(ctx, o.ID)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "success", status)
}

func TestLateFailureFromEarlierAttemptKeepsPaidResult(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.order(t, models.OrderPendingPayment)
	first := f.initialize(t, o)
	second := f.initialize(t, o)

	f.provider.outcomes["ok"] = Result{ConversationID: second, Status: models.PaymentSuccess, PaidAmount: 27600}
	_, err := f.svc.HandleCallback(ctx, "ok", "")
	require.NoError(t, err)

	f.provider.outcomes["late"] = Result{ConversationID: first, Status: models.PaymentFailure}
	res, err := f.svc.HandleCallback(ctx, "late", "")
	require.NoError(t, err)
	assert.False(t, res.Replayed)
	assert.Equal(t, models.PaymentFailure, res.Status)

	p, _ := f.store.FindPaymentByConversation(ctx, first)
	assert.Equal(t, models.PaymentFailure, p.Status)

	got, err := f.store.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderPaid, got.Status)

	status, found, err := f.svc.Result(ctx, o.ID)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "success", status)
}

func TestCallbackAfterCancelDoesNotCacheResult(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.order(t, models.OrderPendingPayment)
	conv := f.initialize(t, o)

	manager := orders.NewManager(f.store, f.store, f.events, now, logging.Discard())
	_, err := manager.Cancel(ctx, o.ID, "customer request")
	require.NoError(t, err)

	f.provider.outcomes["paid-late"] = Result{ConversationID: conv, Status: models.PaymentSuccess, PaidAmount: 27600}
	_, err = f.svc.HandleCallback(ctx, "paid-late", "")
	require.NoError(t, err)

	_, found, err := f.svc.Result(ctx, o.ID)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCallbackFailureAndAmountMismatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	declined := f.order(t, models.OrderPendingPayment)
	conv := f.initialize(t, declined)
	f.provider.outcomes["t1"] = Result{ConversationID: conv, Status: models.PaymentFailure}
	res, err := f.svc.HandleCallback(ctx, "t1", "")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentFailure, res.Status)
	got, _ := f.store.GetOrder(ctx, declined.ID)
	assert.Equal(t, models.OrderFailed, got.Status)

	short := f.order(t, models.OrderPendingPayment)
	conv = f.initialize(t, short)
	f.provider.outcomes["t2"] = Result{ConversationID: conv, Status: models.PaymentSuccess, PaidAmount: 100}
	res, err = f.svc.HandleCallback(ctx, "t2", "")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentFailure, res.Status)
}

func TestCallbackUnknownPaymentAndBadToken(t *testing.T) {
	f := newFixture(t)
	f.provider.outcomes["orphan"] = Result{ConversationID: "nope", Status: models.PaymentSuccess}

	_, err := f.svc.HandleCallback(context.Background(), "orphan", "")
	assert.ErrorIs(t, err, apperr.ErrPaymentNotFound)

	_, err = f.svc.HandleCallback(context.Background(), "forged", "")
	assert.ErrorIs(t, err, apperr.ErrInvalidSignature)
}

func TestAuthorizeResultViewer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.order(t, models.OrderPendingPayment)
	o.SessionID = ""
	stranger := primitive.NewObjectID()

	link, err := f.links.ResultURL(o.ID.Hex())
	require.NoError(t, err)
	u, _ := url.Parse(link)

	assert.NoError(t, f.svc.Authorize(ctx, o, Viewer{Signature: u.Query().Get("signature")}))
	assert.ErrorIs(t, f.svc.Authorize(ctx, o, Viewer{Signature: "garbage", UserID: &stranger}), apperr.ErrForbidden)

	owner := primitive.NewObjectID()
	o.UserID = &owner
	assert.NoError(t, f.svc.Authorize(ctx, o, Viewer{UserID: &owner}))

	require.NoError(t, f.kv.Set(ctx, kvstore.PendingOrderKey("other-sess"), o.ID.Hex(), time.Minute))
	assert.NoError(t, f.svc.Authorize(ctx, o, Viewer{SessionID: "other-sess"}))
	assert.ErrorIs(t, f.svc.Authorize(ctx, o, Viewer{SessionID: "other-sess"}), apperr.ErrForbidden)
}

func TestHostedProviderSignsAndVerifies(t *testing.T) {
	secret := []byte("provider-secret")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "HMAC key:") {
			t.Errorf("unexpected authorization header %q", auth)
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")

		switch r.URL.Path {
		case "/v1/checkout/initialize":
			conv, _ := body["conversationId"].(string)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"status": "success", "conversationId": conv, "token": "T1",
				"paymentPageUrl": "https://pay.example/T1", "signature": Sign(secret, conv, "T1"),
			})
		case "/v1/checkout/retrieve":
			token, _ := body["token"].(string)
			sig := Sign(secret, "SUCCESS", "conv-1", token, "pay-1", fmt.Sprint(27600))
			if token == "tampered" {
				sig = "00"
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"status": "success", "paymentStatus": "SUCCESS", "conversationId": "conv-1",
				"paymentId": "pay-1", "paidPrice": 27600, "token": token, "signature": sig,
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	p := NewHostedProvider(srv.URL, "key", string(secret), 0)

	started, err := p.Initialize(context.Background(), InitRequest{ConversationID: "conv-1", Amount: 27600})
	require.NoError(t, err)
	assert.Equal(t, "T1", started.Token)
	assert.Equal(t, "https://pay.example/T1", started.RedirectURL)
	assert.Contains(t, started.RawRequest, `"conv-1"`)

	res, err := p.Retrieve(context.Background(), "T1")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentSuccess, res.Status)
	assert.Equal(t, "conv-1", res.ConversationID)
	assert.Equal(t, int64(27600), res.PaidAmount)

	_, err = p.Retrieve(context.Background(), "tampered")
	assert.ErrorIs(t, err, apperr.ErrInvalidSignature)
}
