// Package callback keeps the process-wide set of live host event
// subscriptions.
//
// Every sub-parser that subscribes to host events records the subscription
// here at creation time. At teardown RevokeAll cancels each live
// subscription exactly once. The registry never inspects or re-delivers
// events.
//
// There is exactly one registry per process; sub-parsers do not know about
// each other, so they cannot share an instance any other way.
package callback

import (
	"log"
	"os"
	"sort"
	"sync"

	"github.com/TeamWisp/Maya-Ray-Traced-Viewport-Plugin/internal/host"
)

var (
	live       = make(map[host.CallbackID]host.Subscription)
	registryMu sync.Mutex
	logger     = log.New(os.Stderr, "[callback] ", log.LstdFlags)
)

// SetLogger changes the logger used to report failed revocations.
// Passing nil restores the default stderr logger.
func SetLogger(l *log.Logger) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if l == nil {
		l = log.New(os.Stderr, "[callback] ", log.LstdFlags)
	}
	logger = l
}

// Register records a live subscription.
//
// Registering the same id twice keeps a single record.
//
// Example:
//
//	sub, err := graph.OnConnection(onConnection)
//	if err != nil {
//	    return err
//	}
//	callback.Register(sub)
func Register(sub host.Subscription) {
	registryMu.Lock()
	defer registryMu.Unlock()
	live[sub.ID] = sub
}

// Unregister removes a subscription without revoking it. Owners that
// cancel their own subscription before teardown call this so RevokeAll
// does not cancel it a second time. Returns false if id was not live.
func Unregister(id host.CallbackID) bool {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, ok := live[id]; !ok {
		return false
	}
	delete(live, id)
	return true
}

// Cancel revokes a single subscription and removes it from the registry.
// It is a no-op returning nil when id is not live.
func Cancel(id host.CallbackID) error {
	registryMu.Lock()
	sub, ok := live[id]
	delete(live, id)
	registryMu.Unlock()

	if !ok {
		return nil
	}
	return sub.Cancel()
}

// RevokeAll cancels every live subscription exactly once and clears the
// registry. A failed revocation is logged and does not stop the others.
// It returns the number of subscriptions revoked successfully.
//
// RevokeAll is idempotent: calling it on an empty registry does nothing.
func RevokeAll() int {
	registryMu.Lock()
	subs := make([]host.Subscription, 0, len(live))
	for _, sub := range live {
		subs = append(subs, sub)
	}
	live = make(map[host.CallbackID]host.Subscription)
	l := logger
	registryMu.Unlock()

	sort.Slice(subs, func(i, j int) bool { return subs[i].ID < subs[j].ID })

	revoked := 0
	for _, sub := range subs {
		if err := sub.Cancel(); err != nil {
			l.Printf("Warning: failed to revoke callback %d: %v", sub.ID, err)
			continue
		}
		revoked++
	}
	return revoked
}

// Count returns the number of live subscriptions.
func Count() int {
	registryMu.Lock()
	defer registryMu.Unlock()
	return len(live)
}

// IsLive reports whether id is currently registered.
func IsLive(id host.CallbackID) bool {
	registryMu.Lock()
	defer registryMu.Unlock()
	_, ok := live[id]
	return ok
}
