package domain

type CheckoutStatus string

const (
	CheckoutStatusValidating      CheckoutStatus = "VALIDATING"
	CheckoutStatusDirectSale      CheckoutStatus = "DIRECT_SALE"
	CheckoutStatusAwaitingPayment CheckoutStatus = "AWAITING_PAYMENT"
	CheckoutStatusVerifying       CheckoutStatus = "VERIFYING"
	CheckoutStatusResolved        CheckoutStatus = "RESOLVED"
	CheckoutStatusFailed          CheckoutStatus = "FAILED"
)

var transitions = map[CheckoutStatus][]CheckoutStatus{
	CheckoutStatusValidating:      {CheckoutStatusDirectSale, CheckoutStatusAwaitingPayment, CheckoutStatusFailed},
	CheckoutStatusDirectSale:      {CheckoutStatusResolved, CheckoutStatusFailed},
	CheckoutStatusAwaitingPayment: {CheckoutStatusVerifying, CheckoutStatusFailed},
	// VERIFYING may re-enter itself: a transport failure while talking to
	// the provider leaves the outcome unknown and the check is retried.
	CheckoutStatusVerifying: {CheckoutStatusVerifying, CheckoutStatusResolved, CheckoutStatusFailed},
}

func CanTransitionTo(from, to CheckoutStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// TransitionSources returns the statuses from which to may be entered.
// VALIDATING has no sources: it is the initial status of every session.
func TransitionSources(to CheckoutStatus) []CheckoutStatus {
	var sources []CheckoutStatus
	for from, nexts := range transitions {
		for _, next := range nexts {
			if next == to {
				sources = append(sources, from)
			}
		}
	}
	return sources
}

func (s CheckoutStatus) IsTerminal() bool {
	return s == CheckoutStatusResolved || s == CheckoutStatusFailed
}

// String representation (for logging)
func (s CheckoutStatus) String() string {
	return string(s)
}
