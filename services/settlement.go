package services

import (
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/yashrajoria/settlement-service/models"
)

// payableStatuses are the order lifecycle states a payment may settle from.
// FAILED stays payable so a customer can re-attempt after a decline.
var payableStatuses = map[string]bool{
	models.OrderStatusPendingPayment: true,
	models.OrderStatusFailed:         true,
}

// checkPayable rejects orders this pipeline must not move.
func checkPayable(order *models.Order) error {
	if !payableStatuses[order.Status] {
		return newError(KindInvalidState,
			fmt.Sprintf("order %s is %s and cannot accept payment", order.RefCode, order.Status), nil)
	}
	return nil
}

// settleUpdates moves an order to PAID. paymentStatus is SUCCESS for pushed
// webhooks and VERIFIED for pulled confirmations.
func settleUpdates(paymentStatus string, at time.Time) map[string]interface{} {
	return map[string]interface{}{
		"payment_status": paymentStatus,
		"status":         models.OrderStatusPaid,
		"failure_reason": "",
		"paid_at":        at,
		"updated_at":     at,
	}
}

func declineUpdates(reason string, at time.Time) map[string]interface{} {
	return map[string]interface{}{
		"payment_status": models.PaymentStatusFailed,
		"status":         models.OrderStatusFailed,
		"failure_reason": truncateReason(reason),
		"failed_at":      at,
		"updated_at":     at,
	}
}

// maxReasonLen bounds failure_reason, a varchar(255) column.
const maxReasonLen = 255

// truncateReason cuts on a rune boundary so free-text provider messages
// never store a split UTF-8 sequence.
func truncateReason(reason string) string {
	if len(reason) <= maxReasonLen {
		return reason
	}
	n := maxReasonLen
	for n > 0 && !utf8.RuneStart(reason[n]) {
		n--
	}
	return reason[:n]
}

// intentRank orders intent statuses; terminal ones share the top rank.
// A failed attempt returns the intent to the start, as the provider does,
// so the customer can still complete it.
var intentRank = map[string]int{
	models.IntentStatusRequiresPaymentMethod: 0,
	models.IntentStatusFailed:                0,
	models.IntentStatusRequiresAction:        1,
	models.IntentStatusProcessing:            2,
	models.IntentStatusSucceeded:             3,
	models.IntentStatusCanceled:              3,
}

// IsTerminalIntentStatus reports whether no further intent transition is allowed.
func IsTerminalIntentStatus(status string) bool {
	return intentRank[status] == 3
}

// CanAdvanceIntent reports whether an intent mirror may move from current to
// next. Backward moves and moves out of a terminal status are rejected so a
// late, out-of-order delivery cannot undo a newer state. A failure may land
// on any open intent.
func CanAdvanceIntent(current, next string) bool {
	nr, ok := intentRank[next]
	if !ok || current == next {
		return false
	}
	if IsTerminalIntentStatus(current) {
		return false
	}
	if next == models.IntentStatusFailed {
		return true
	}
	return nr > intentRank[current]
}
