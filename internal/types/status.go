package types

// Status is a type for the lifecycle status of a resource row in the database.
// This is distinct from SubscriptionStatus which tracks the provider-reported
// billing state; Status only says whether the row itself is live.
type Status string

const (
	StatusPublished Status = "published"
	StatusArchived  Status = "archived"
	StatusDeleted   Status = "deleted"
)
