package pipeline

import "github.com/xaenox/afisha-bot/internal/models"

// Route is what happens to a freshly decided draft.
type Route string

const (
	// RouteAutoApprove — create the draft as NEW and submit immediately.
	RouteAutoApprove Route = "auto_approve"
	// RouteAutoReject — create the draft as REJECTED, no card.
	RouteAutoReject Route = "auto_reject"
	// RouteNeedsReview — create the draft as PENDING and render a card.
	RouteNeedsReview Route = "needs_review"
)

// InitialStatus is the draft status the route starts the lifecycle in.
func (r Route) InitialStatus() models.DraftStatus {
	switch r {
	case RouteAutoApprove:
		return models.StatusNew
	case RouteAutoReject:
		return models.StatusRejected
	default:
		return models.StatusPending
	}
}

// ChooseRoute is the pure auto-vs-manual branching, kept free of side
// effects. MANUAL mode always routes to a human; AUTO mode acts on the agent
// verdict only when its confidence clears the threshold.
func ChooseRoute(verdict models.Verdict, confidence, threshold float64, autoMode bool) Route {
	if !autoMode {
		return RouteNeedsReview
	}
	if confidence < threshold {
		return RouteNeedsReview
	}
	if verdict == models.VerdictApproved {
		return RouteAutoApprove
	}
	return RouteAutoReject
}
