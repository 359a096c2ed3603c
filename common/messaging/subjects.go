// Package messaging defines standard subject names for the QuestForge bus.
package messaging

// Subject constants for the QuestForge message bus.
// Raw and derived events share one envelope shape; the tenant's project ID
// is the last token so consumers can subscribe per tenant or with a wildcard.
const (
	// SubjectEventsRaw is the prefix for raw event delivery.
	// Publish to events.raw.{projectID}; the NATS subject token doubles as
	// the per-tenant ordering key.
	SubjectEventsRaw = "events.raw"

	// SubjectEventsDerived is the prefix for events synthesized by handlers
	// (badge.unlocked, quest.completed, ...). Derived events re-enter the
	// worker pipeline through the same queue group.
	SubjectEventsDerived = "events.derived"

	// SubjectCommandsRedeem carries reward redemption commands.
	SubjectCommandsRedeem = "commands.redeem"
)

// Queue group names for load-balanced consumers.
// Workers in the same queue group share messages (each message processed once).
const (
	QueueProgressionWorkers = "progression-workers" // Pool of event dispatch workers
	QueueRedemptionWorkers  = "redemption-workers"  // Pool of redemption processors
)

// RawEventSubject returns the raw event subject for a tenant.
// Example: events.raw.proj_8a21
func RawEventSubject(projectID string) string {
	return SubjectEventsRaw + "." + projectID
}

// DerivedEventSubject returns the derived event subject for a tenant.
func DerivedEventSubject(projectID string) string {
	return SubjectEventsDerived + "." + projectID
}

// RawEventWildcard is the subscription pattern covering all tenants.
func RawEventWildcard() string {
	return SubjectEventsRaw + ".*"
}

// DerivedEventWildcard is the subscription pattern covering all tenants.
func DerivedEventWildcard() string {
	return SubjectEventsDerived + ".*"
}
