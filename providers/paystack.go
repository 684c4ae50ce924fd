package providers

import (
	"context"
	"crypto/sha512"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cast"
)

const (
	PaystackName            = "paystack"
	PaystackSignatureHeader = "X-Paystack-Signature"
	paystackDefaultBaseURL  = "https://api.paystack.co"
)

// PaystackProvider verifies x-paystack-signature webhooks (HMAC-SHA512 of
// the raw body keyed with the secret key) and looks up transactions through
// GET /transaction/verify/:reference.
type PaystackProvider struct {
	secretKey  string
	baseURL    string
	httpClient *http.Client
}

func NewPaystackProvider(secretKey, baseURL string, timeout time.Duration) *PaystackProvider {
	if baseURL == "" {
		baseURL = paystackDefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &PaystackProvider{
		secretKey:  secretKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (p *PaystackProvider) Name() string { return PaystackName }

func (p *PaystackProvider) VerifySignature(body []byte, header http.Header) error {
	if !VerifyHMAC(body, p.secretKey, header.Get(PaystackSignatureHeader), sha512.New) {
		return ErrInvalidSignature
	}
	return nil
}

type paystackEnvelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type paystackTransaction struct {
	ID              int64           `json:"id"`
	Status          string          `json:"status"`
	Reference       string          `json:"reference"`
	Amount          int64           `json:"amount"`
	Currency        string          `json:"currency"`
	Fees            int64           `json:"fees"`
	Channel         string          `json:"channel"`
	GatewayResponse string          `json:"gateway_response"`
	Metadata        json.RawMessage `json:"metadata"`
}

type paystackRefund struct {
	ID                   json.Number `json:"id"`
	RefundReference      string      `json:"refund_reference"`
	TransactionReference string      `json:"transaction_reference"`
	Amount               int64       `json:"amount"`
	Currency             string      `json:"currency"`
	Status               string      `json:"status"`
}

func (p *PaystackProvider) ParseEvent(body []byte) (Event, error) {
	var env paystackEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if env.Event == "" || len(env.Data) == 0 {
		return nil, fmt.Errorf("%w: missing event or data", ErrMalformedPayload)
	}

	switch env.Event {
	case "charge.success", "charge.failed":
		var trx paystackTransaction
		if err := json.Unmarshal(env.Data, &trx); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		if trx.Reference == "" {
			return nil, fmt.Errorf("%w: transaction reference is empty", ErrMalformedPayload)
		}
		if env.Event == "charge.failed" {
			trx.Status = "failed"
		}
		return p.transactionEvent(trx), nil
	case "refund.processed":
		var rf paystackRefund
		if err := json.Unmarshal(env.Data, &rf); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		refundID := rf.ID.String()
		if refundID == "" {
			refundID = rf.RefundReference
		}
		if rf.TransactionReference == "" || refundID == "" || rf.Amount <= 0 {
			return nil, fmt.Errorf("%w: incomplete refund", ErrMalformedPayload)
		}
		return ChargeRefunded{
			EventMeta: EventMeta{Provider: PaystackName, EventID: env.Event + ":" + refundID, Type: env.Event},
			ChargeID:  rf.TransactionReference,
			RefundID:  PaystackName + ":" + refundID,
			Amount:    rf.Amount,
			Currency:  NormalizeCurrency(rf.Currency),
		}, nil
	default:
		ref := ""
		var trx paystackTransaction
		if json.Unmarshal(env.Data, &trx) == nil {
			ref = trx.Reference
		}
		return Unhandled{
			EventMeta: EventMeta{Provider: PaystackName, EventID: env.Event + ":" + fallbackID(trx.ID, ref), Type: env.Event},
			OrderRef:  ref,
		}, nil
	}
}

// transactionEvent maps a Paystack transaction to an event whose id is shared
// by the webhook and the verify lookup of the same transaction.
func (p *PaystackProvider) transactionEvent(trx paystackTransaction) Event {
	orderRef := paystackOrderRef(trx)
	switch trx.Status {
	case "success":
		return ChargeSucceeded{
			EventMeta: EventMeta{Provider: PaystackName, EventID: "charge.success:" + trx.Reference, Type: "charge.success"},
			OrderRef:  orderRef,
			ChargeID:  trx.Reference,
			Amount:    trx.Amount,
			Currency:  NormalizeCurrency(trx.Currency),
			Fee:       trx.Fees,
			FeeKnown:  true,
			Channel:   trx.Channel,
		}
	case "failed", "abandoned", "reversed":
		reason := trx.GatewayResponse
		if reason == "" {
			reason = "payment " + trx.Status
		}
		return ChargeFailed{
			EventMeta: EventMeta{Provider: PaystackName, EventID: "charge.failed:" + trx.Reference, Type: "charge.failed"},
			OrderRef:  orderRef,
			ChargeID:  trx.Reference,
			Amount:    trx.Amount,
			Currency:  NormalizeCurrency(trx.Currency),
			Reason:    reason,
		}
	default:
		return Unhandled{
			EventMeta: EventMeta{Provider: PaystackName, EventID: "transaction." + trx.Status + ":" + trx.Reference, Type: "transaction." + trx.Status},
			OrderRef:  orderRef,
		}
	}
}

// paystackOrderRef prefers metadata.ref_code so an order can be paid across
// several transaction references.
func paystackOrderRef(trx paystackTransaction) string {
	if len(trx.Metadata) > 0 {
		var meta map[string]interface{}
		if err := json.Unmarshal(trx.Metadata, &meta); err == nil {
			for _, key := range []string{"ref_code", "order_ref"} {
				if v := cast.ToString(meta[key]); v != "" {
					return v
				}
			}
		}
	}
	return trx.Reference
}

type paystackVerifyResponse struct {
	Status  bool                `json:"status"`
	Message string              `json:"message"`
	Data    paystackTransaction `json:"data"`
}

func (p *PaystackProvider) VerifyTransaction(ctx context.Context, reference string) (Event, error) {
	endpoint := fmt.Sprintf("%s/transaction/verify/%s", p.baseURL, url.PathEscape(reference))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &LookupError{Provider: PaystackName, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+p.secretKey)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, &LookupError{Provider: PaystackName, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &LookupError{Provider: PaystackName, Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrTransactionNotFound
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, &LookupError{Provider: PaystackName, Err: fmt.Errorf("upstream status %d", resp.StatusCode)}
	case resp.StatusCode != http.StatusOK:
		return nil, &LookupError{Provider: PaystackName, Err: fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(body, 200))}
	}

	var out paystackVerifyResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if !out.Status || out.Data.Reference == "" {
		return nil, ErrTransactionNotFound
	}
	return p.transactionEvent(out.Data), nil
}

func fallbackID(id int64, ref string) string {
	if id != 0 {
		return cast.ToString(id)
	}
	return ref
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
