package providers_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/yashrajoria/settlement-service/providers"
)

func TestValidate(t *testing.T) {
	meta := providers.EventMeta{Provider: "paystack", EventID: "charge.success:trx_1", Type: "charge.success"}

	tests := []struct {
		name    string
		ev      providers.Event
		wantErr string
	}{
		{"valid charge", providers.ChargeSucceeded{EventMeta: meta, ChargeID: "trx_1", Amount: 100, Currency: "NGN"}, ""},
		{"missing event id", providers.Unhandled{EventMeta: providers.EventMeta{Provider: "paystack"}}, "EventID failed required"},
		{"zero amount charge", providers.ChargeSucceeded{EventMeta: meta, ChargeID: "trx_1", Currency: "NGN"}, "Amount failed gt"},
		{"bad currency", providers.ChargeSucceeded{EventMeta: meta, ChargeID: "trx_1", Amount: 1, Currency: "NAIRA"}, "Currency failed len"},
		{"negative fee", providers.ChargeSucceeded{EventMeta: meta, ChargeID: "trx_1", Amount: 1, Fee: -5}, "Fee failed gte"},
		{"refund without charge", providers.ChargeRefunded{EventMeta: meta, RefundID: "r1", Amount: 1}, "ChargeID failed required"},
		{"intent without id", providers.IntentStatusChanged{EventMeta: meta}, "IntentID failed required"},
		{"decline without amount", providers.ChargeFailed{EventMeta: meta, OrderRef: "ORD-1"}, ""},
		{"nil", nil, "nil event"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := providers.Validate(tt.ev)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, providers.ErrMalformedPayload)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
