package billing

import "time"

// Status is the persisted subscription state of an account.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	// StatusUnknown means no record exists yet. Never entitled.
	StatusUnknown Status = "unknown"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusInactive, StatusUnknown:
		return true
	}
	return false
}

// Entitled reports whether s grants paid access.
func (s Status) Entitled() bool { return s == StatusActive }

func (s Status) String() string { return string(s) }

// Record is the stored subscription state for one email.
type Record struct {
	Email       string    `json:"email"`
	Status      Status    `json:"status"`
	LastUpdated time.Time `json:"last_updated"`
}

// UpsertResult reports the outcome of a conditional write.
type UpsertResult struct {
	// Applied is false when a newer record already existed.
	Applied  bool
	Previous Status
}

// Kind tags a normalized processor event.
type Kind string

const (
	KindActivated   Kind = "subscription_activated"
	KindDeactivated Kind = "subscription_deactivated"
	KindUnknown     Kind = "unknown"
)

// Status returns the subscription status a kind writes, or StatusUnknown.
func (k Kind) Status() Status {
	switch k {
	case KindActivated:
		return StatusActive
	case KindDeactivated:
		return StatusInactive
	}
	return StatusUnknown
}

// Event is a processor webhook reduced to what the store needs.
type Event struct {
	ID           string
	Kind         Kind
	ProviderType string
	ObjectID     string
	// Email is empty when the payload carried no resolvable address.
	Email      string
	OccurredAt time.Time
}

// CustomerRef links an email to a processor customer.
type CustomerRef struct {
	Email      string
	CustomerID string
}

// CheckoutSession is a hosted checkout created by the processor.
type CheckoutSession struct {
	ID  string
	URL string
}

// Source names where an entitlement signal came from.
type Source string

const (
	SourceNone  Source = "none"
	SourceStore Source = "store"
	SourceLive  Source = "live"
)
