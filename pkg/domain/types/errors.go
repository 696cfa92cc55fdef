package types

import "github.com/m-mizutani/goerr/v2"

var (
	// ErrDuplicateDelivery is returned when a delivery ID has already been
	// admitted. Callers treat this as a no-op, not a failure.
	ErrDuplicateDelivery = goerr.New("delivery already admitted")

	// ErrSubscriptionNotFound is returned when no webhook subscription is
	// registered for the repository in the payload.
	ErrSubscriptionNotFound = goerr.New("no subscription for repository")

	// ErrAmbiguousSubscription is returned when more than one subscription
	// matches a repository and the delivery cannot be attributed to one.
	ErrAmbiguousSubscription = goerr.New("subscription is not unique for repository")

	// ErrUnresolvableRepository is returned when the payload carries no
	// repository identifier.
	ErrUnresolvableRepository = goerr.New("repository not resolvable from payload")

	// ErrEventNotFound is returned when a dispatched event reference does not
	// match a persisted event.
	ErrEventNotFound = goerr.New("event not found")

	// ErrStorageConflict is returned when an insert collides on a constraint
	// other than the delivery ID. Unlike ErrDuplicateDelivery this is a real
	// failure and is surfaced to the caller.
	ErrStorageConflict = goerr.New("storage conflict outside delivery dedup")
)
