package services_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/yashrajoria/settlement-service/models"
	"github.com/yashrajoria/settlement-service/providers"
	"github.com/yashrajoria/settlement-service/repository"
	"github.com/yashrajoria/settlement-service/services"
	"github.com/yashrajoria/settlement-service/testutil"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// fakeEffects records every post-commit side effect.
type fakeEffects struct {
	mu          sync.Mutex
	published   []models.PaymentEvent
	invalidated []string
	archived    []string
	metrics     []string
}

func (f *fakeEffects) Publish(_ context.Context, evt models.PaymentEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, evt)
	return nil
}

func (f *fakeEffects) Invalidate(_ context.Context, refCode string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated = append(f.invalidated, refCode)
	return nil
}

func (f *fakeEffects) Archive(_ context.Context, key string, _ []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.archived = append(f.archived, key)
	return nil
}

func (f *fakeEffects) RecordCount(_ context.Context, name string, _ map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.metrics = append(f.metrics, name)
	return nil
}

func (f *fakeEffects) publishedTypes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.published))
	for _, p := range f.published {
		out = append(out, p.Type)
	}
	return out
}

func (f *fakeEffects) sideEffects() services.SideEffects {
	return services.SideEffects{Publisher: f, Cache: f, Archiver: f, Metrics: f}
}

type queuedJob struct {
	job   models.RetryJob
	delay time.Duration
}

type fakeQueue struct {
	mu   sync.Mutex
	jobs []queuedJob
	err  error
}

func (q *fakeQueue) Enqueue(_ context.Context, job models.RetryJob, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, queuedJob{job: job, delay: delay})
	return nil
}

// fakeProvider is a scriptable providers.Provider.
type fakeProvider struct {
	name   string
	parse  func(body []byte) (providers.Event, error)
	verify func(ctx context.Context, reference string) (providers.Event, error)
	calls  int
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) VerifySignature(_ []byte, h http.Header) error {
	if h.Get("X-Test-Signature") != "ok" {
		return providers.ErrInvalidSignature
	}
	return nil
}

func (p *fakeProvider) ParseEvent(body []byte) (providers.Event, error) {
	if p.parse == nil {
		return nil, providers.ErrMalformedPayload
	}
	return p.parse(body)
}

func (p *fakeProvider) VerifyTransaction(ctx context.Context, reference string) (providers.Event, error) {
	p.calls++
	if p.verify == nil {
		return nil, errors.New("not scripted")
	}
	return p.verify(ctx, reference)
}

type harness struct {
	db         *gorm.DB
	store      *repository.Store
	effects    *fakeEffects
	queue      *fakeQueue
	dispatcher *services.Dispatcher
}

func newHarness(t *testing.T, feePolicy string) *harness {
	t.Helper()
	db := testutil.NewDB(t)
	store := repository.NewStore(db)
	effects := &fakeEffects{}
	queue := &fakeQueue{}
	logger := zap.NewNop()
	retry := services.NewRetryScheduler(queue, services.RetryPolicy{MaxAttempts: 3, BaseDelay: 30 * time.Second}, effects, logger)
	d := services.NewDispatcher(store, services.NewLedgerEngine(logger), effects.sideEffects(), retry, feePolicy, logger)
	return &harness{db: db, store: store, effects: effects, queue: queue, dispatcher: d}
}

func paystackSuccess(ref, trx string, amount int64) providers.ChargeSucceeded {
	return providers.ChargeSucceeded{
		EventMeta: providers.EventMeta{Provider: "paystack", EventID: "charge.success:" + trx, Type: "charge.success"},
		OrderRef:  ref,
		ChargeID:  trx,
		Amount:    amount,
		Currency:  "NGN",
		Fee:       67500,
		Channel:   "card",
	}
}

func stripeSuccess(eventID, ref string, amount int64) providers.ChargeSucceeded {
	return providers.ChargeSucceeded{
		EventMeta: providers.EventMeta{Provider: "stripe", EventID: eventID, Type: "payment_intent.succeeded"},
		OrderRef:  ref,
		ChargeID:  "ch_1",
		IntentID:  "pi_1",
		Amount:    amount,
		Currency:  "USD",
	}
}
