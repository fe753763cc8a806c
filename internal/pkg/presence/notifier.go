// Package presence derives online/offline state from registry transitions and
// announces it to interested peers. Presence is never stored independently:
// the cache and the users table are views, the registry is the truth.
package presence

import (
	"context"
	"encoding/json"
	"log"
	"time"

	cacheport "messenger/internal/infrastructure/cache/port"
)

const (
	StatusOnline  = "online"
	StatusOffline = "offline"

	cacheKeyPrefix = "presence:"
	cacheTTL       = 24 * time.Hour
)

// Sender delivers a payload to a user's live connection.
type Sender interface {
	NotifyUser(userID string, payload []byte) bool
}

// ContactSource lists the users who share an open conversation with a user;
// status events fan out to exactly that set, never the whole population.
type ContactSource interface {
	ListContactIDs(ctx context.Context, userID string) ([]string, error)
}

// StatusStore records the last known status on the user record, best-effort.
type StatusStore interface {
	UpdateStatus(ctx context.Context, id string, status string) error
}

// Notifier broadcasts presence transitions. One-shot, no retry, no history.
type Notifier struct {
	sender   Sender
	contacts ContactSource
	cache    cacheport.Cache
	users    StatusStore
}

// NewNotifier constructs a Notifier. cache and users may be nil; the
// corresponding side effects are skipped.
func NewNotifier(sender Sender, contacts ContactSource, cache cacheport.Cache, users StatusStore) *Notifier {
	return &Notifier{sender: sender, contacts: contacts, cache: cache, users: users}
}

type statusFrame struct {
	Type   string `json:"type"`
	UserID string `json:"userId"`
	Status string `json:"status"`
}

// BroadcastStatus informs userID's conversation counterparts of an
// online/offline transition and refreshes the cached status. Failures are
// logged and swallowed: presence is advisory.
func (n *Notifier) BroadcastStatus(ctx context.Context, userID string, status string) {
	if n.cache != nil {
		if err := n.cache.Set(ctx, cacheKeyPrefix+userID, status, cacheTTL); err != nil {
			log.Printf("presence: cache set for %s: %v", userID, err)
		}
	}
	if n.users != nil {
		if err := n.users.UpdateStatus(ctx, userID, status); err != nil {
			log.Printf("presence: status update for %s: %v", userID, err)
		}
	}

	contactIDs, err := n.contacts.ListContactIDs(ctx, userID)
	if err != nil {
		log.Printf("presence: contact lookup for %s: %v", userID, err)
		return
	}
	if len(contactIDs) == 0 {
		return
	}

	payload, err := json.Marshal(statusFrame{Type: "user_status", UserID: userID, Status: status})
	if err != nil {
		return
	}
	for _, id := range contactIDs {
		n.sender.NotifyUser(id, payload)
	}
}

// CachedStatus returns the cached status for userID, or ("", ErrMiss-wrapped
// error) when unknown.
func (n *Notifier) CachedStatus(ctx context.Context, userID string) (string, error) {
	if n.cache == nil {
		return "", cacheport.ErrMiss
	}
	return n.cache.Get(ctx, cacheKeyPrefix+userID)
}
