package model

// Subscription maps a repository to the shared webhook secret and the event
// types it subscribed to. Owned by the account-management service; this
// process only reads it to verify signatures.
type Subscription struct {
	ID     string
	RepoID int64
	Secret string
	Events []string
}

// Subscribed reports whether the subscription covers the given event type.
func (s *Subscription) Subscribed(eventType string) bool {
	for _, e := range s.Events {
		if e == eventType {
			return true
		}
	}
	return false
}
