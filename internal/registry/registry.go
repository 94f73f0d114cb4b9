// Package registry keeps the in-memory subscriber set and mirrors every
// mutation to the durable repository.
package registry

import (
	"sort"
	"sync"

	logx "cibot/pkg/logx"
)

type Registry struct {
	mu     sync.RWMutex
	subs   map[int64]Subscriber
	policy ApprovalPolicy

	repo Repository
	log  logx.Logger
}

// New builds a registry seeded from the repository snapshot. A nil repo
// keeps the registry memory-only.
func New(policy ApprovalPolicy, repo Repository, log logx.Logger) (*Registry, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	r := &Registry{
		subs:   map[int64]Subscriber{},
		policy: policy,
		repo:   repo,
		log:    log,
	}
	if repo != nil {
		snapshot, err := repo.Load()
		if err != nil {
			return nil, err
		}
		for _, s := range snapshot {
			r.subs[s.ChatID] = s
		}
		log.Info("subscribers loaded", logx.Int("count", len(snapshot)))
	}
	return r, nil
}

func (r *Registry) Policy() ApprovalPolicy { return r.policy }

// Subscribe adds the chat if absent. It reports whether the chat was
// already subscribed so the caller can pick the right reply.
func (r *Registry) Subscribe(displayName string, chatID int64) (already bool) {
	r.mu.Lock()
	if _, ok := r.subs[chatID]; ok {
		r.mu.Unlock()
		return true
	}
	r.subs[chatID] = Subscriber{
		ChatID:      chatID,
		DisplayName: displayName,
		// Under the all policy new subscribers start approved; manual
		// approval is granted out of band via SetApproved.
		Approved: r.policy == ApproveAll,
	}
	snapshot := r.snapshotLocked()
	r.mu.Unlock()

	r.persist(snapshot)
	r.log.Info("chat subscribed", logx.Int64("chat_id", chatID), logx.String("name", displayName))
	return false
}

// Unsubscribe removes the chat if present; a second call is a no-op.
func (r *Registry) Unsubscribe(chatID int64) {
	r.mu.Lock()
	if _, ok := r.subs[chatID]; !ok {
		r.mu.Unlock()
		return
	}
	delete(r.subs, chatID)
	snapshot := r.snapshotLocked()
	r.mu.Unlock()

	r.persist(snapshot)
	r.log.Info("chat unsubscribed", logx.Int64("chat_id", chatID))
}

func (r *Registry) IsSubscribed(chatID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.subs[chatID]
	return ok
}

// IsApproved reports broadcast eligibility. Under the all policy every
// subscribed chat is approved regardless of the stored flag.
func (r *Registry) IsApproved(chatID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.subs[chatID]
	if !ok {
		return false
	}
	if r.policy == ApproveAll {
		return true
	}
	return s.Approved
}

// SetApproved flips the stored approval flag (the out-of-band approval
// workflow). Unknown chat ids are ignored.
func (r *Registry) SetApproved(chatID int64, approved bool) {
	r.mu.Lock()
	s, ok := r.subs[chatID]
	if !ok || s.Approved == approved {
		r.mu.Unlock()
		return
	}
	s.Approved = approved
	r.subs[chatID] = s
	snapshot := r.snapshotLocked()
	r.mu.Unlock()

	r.persist(snapshot)
	r.log.Info("approval changed", logx.Int64("chat_id", chatID), logx.Bool("approved", approved))
}

// Approved returns the snapshot of broadcast-eligible subscribers at call
// time. Later registry mutations do not affect the returned slice.
func (r *Registry) Approved() []Subscriber {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Subscriber, 0, len(r.subs))
	for _, s := range r.subs {
		if r.policy == ApproveAll || s.Approved {
			out = append(out, s)
		}
	}
	sortByChatID(out)
	return out
}

// All returns a snapshot of every subscriber regardless of approval.
func (r *Registry) All() []Subscriber {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := r.snapshotLocked()
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

func (r *Registry) snapshotLocked() []Subscriber {
	out := make([]Subscriber, 0, len(r.subs))
	for _, s := range r.subs {
		out = append(out, s)
	}
	sortByChatID(out)
	return out
}

func (r *Registry) persist(snapshot []Subscriber) {
	if r.repo == nil {
		return
	}
	if err := r.repo.Save(snapshot); err != nil {
		r.log.Error("subscriber snapshot save failed", logx.Err(err), logx.Int("count", len(snapshot)))
	}
}

func sortByChatID(s []Subscriber) {
	sort.Slice(s, func(i, j int) bool { return s[i].ChatID < s[j].ChatID })
}
