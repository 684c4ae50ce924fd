package services_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yashrajoria/settlement-service/models"
	"github.com/yashrajoria/settlement-service/providers"
	"github.com/yashrajoria/settlement-service/services"
	"github.com/yashrajoria/settlement-service/testutil"
	"go.uber.org/zap"
)

func TestRetryWorkerReplaysStoredPayload(t *testing.T) {
	h := newHarness(t, services.FeePolicyNone)
	ctx := context.Background()

	body := []byte(`{"ref":"ORD-Q","trx":"trx_q","amount":2500}`)
	p := &fakeProvider{name: "paystack", parse: func(b []byte) (providers.Event, error) {
		var in struct {
			Ref    string `json:"ref"`
			Trx    string `json:"trx"`
			Amount int64  `json:"amount"`
		}
		if err := json.Unmarshal(b, &in); err != nil {
			return nil, providers.ErrMalformedPayload
		}
		return paystackSuccess(in.Ref, in.Trx, in.Amount), nil
	}}
	worker := services.NewRetryWorker(providers.NewRegistry(p), h.dispatcher, h.store.Events, zap.NewNop())

	ev, err := p.ParseEvent(body)
	require.NoError(t, err)
	_, err = h.dispatcher.Process(ctx, ev, services.SourceWebhook, body)
	require.Error(t, err)

	order := testutil.CreateOrder(t, h.db, "ORD-Q", "25.00", "NGN")
	job := models.RetryJob{Provider: "paystack", ProviderEventID: "charge.success:trx_q", Attempt: 1}
	require.NoError(t, worker.Handle(ctx, job))

	got := testutil.ReloadOrder(t, h.db, order.ID)
	assert.Equal(t, models.PaymentStatusSuccess, got.PaymentStatus)

	evt, err := h.store.Events.Find(ctx, "paystack", "charge.success:trx_q")
	require.NoError(t, err)
	assert.Equal(t, models.EventStatusProcessed, evt.Status)
	assert.Equal(t, 2, evt.Attempts)

	// a late duplicate job is a no-op
	require.NoError(t, worker.Handle(ctx, job))
	assert.Equal(t, int64(2), testutil.Count(t, h.db, &models.LedgerEntry{}, ""))
}

func TestRetryWorkerRepeatsRedirectLookup(t *testing.T) {
	h := newHarness(t, services.FeePolicyNone)
	ctx := context.Background()

	p := &fakeProvider{name: "paystack", verify: func(_ context.Context, ref string) (providers.Event, error) {
		return paystackSuccess("ORD-RR", ref, 1000), nil
	}}
	svc := newVerifyService(h, p, 0)
	_, _, err := svc.Confirm(ctx, "paystack", "trx_rr")
	require.Error(t, err)
	assert.Empty(t, h.queue.jobs)

	order := testutil.CreateOrder(t, h.db, "ORD-RR", "10.00", "NGN")
	worker := services.NewRetryWorker(providers.NewRegistry(p), h.dispatcher, h.store.Events, zap.NewNop())
	require.NoError(t, worker.Handle(ctx, models.RetryJob{Provider: "paystack", ProviderEventID: "charge.success:trx_rr", Attempt: 1}))

	assert.Equal(t, 2, p.calls)
	assert.Equal(t, models.PaymentStatusVerified, testutil.ReloadOrder(t, h.db, order.ID).PaymentStatus)
}

func TestRetryWorkerDropsUnknownJobs(t *testing.T) {
	h := newHarness(t, services.FeePolicyNone)
	worker := services.NewRetryWorker(providers.NewRegistry(&fakeProvider{name: "paystack"}), h.dispatcher, h.store.Events, zap.NewNop())

	assert.NoError(t, worker.Handle(context.Background(), models.RetryJob{Provider: "paystack", ProviderEventID: "missing"}))
}

func TestRetryWorkerLeavesTransientLookupOnQueue(t *testing.T) {
	h := newHarness(t, services.FeePolicyNone)
	ctx := context.Background()

	calls := 0
	p := &fakeProvider{name: "paystack", verify: func(_ context.Context, ref string) (providers.Event, error) {
		calls++
		if calls == 1 {
			return paystackSuccess("ORD-NONE", ref, 1000), nil
		}
		return nil, &providers.LookupError{Provider: "paystack", Err: context.DeadlineExceeded}
	}}
	_, _, err := newVerifyService(h, p, 0).Confirm(ctx, "paystack", "trx_t")
	require.Error(t, err)

	worker := services.NewRetryWorker(providers.NewRegistry(p), h.dispatcher, h.store.Events, zap.NewNop())
	err = worker.Handle(ctx, models.RetryJob{Provider: "paystack", ProviderEventID: "charge.success:trx_t", Attempt: 1})
	require.Error(t, err)
	assert.Equal(t, services.KindTransientProvider, services.KindOf(err))
}
