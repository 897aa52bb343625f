// Package events defines the typed debate event vocabulary and the ordered
// per-debate stream the orchestrator publishes into.
//
// Event order within one debate is total: metadata first, then per-turn
// start_role/token*/end_role (or turn_error) groups, optional role-reversal
// markers, analytics_metrics, final_verdict, end. A fatal error replaces the
// remaining events and is itself followed by end. Clients must ignore event
// names they do not recognize.
package events

// Event names, in their canonical emission order.
const (
	EventMetadata             = "metadata"
	EventStartRole            = "start_role"
	EventToken                = "token"
	EventEndRole              = "end_role"
	EventTurnError            = "turn_error"
	EventRoleReversalStart    = "role_reversal_start"
	EventRoleReversalComplete = "role_reversal_complete"
	EventAnalyticsMetrics     = "analytics_metrics"
	EventFinalVerdict         = "final_verdict"
	EventError                = "error"
	EventEnd                  = "end"
)

// Error codes carried by ErrorPayload.
const (
	CodeCancelled         = "cancelled"
	CodeTimeout           = "timeout"
	CodeConsecutiveFails  = "consecutive_turn_failures"
	CodeProviderExhausted = "provider_unavailable"
	CodeInternal          = "internal"
)
