package api

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/stackhead/task-management-app/baas"
	"github.com/stackhead/task-management-app/board"
	"github.com/stackhead/task-management-app/domain"
)

// boardSession is the server side state of one sign-in.
type boardSession struct {
	credential string
	store      *board.Store
	drag       *board.Coordinator

	ready   chan struct{}
	loadErr error

	mu       sync.Mutex
	lastUsed time.Time
}

func (s *boardSession) touch(now time.Time) {
	s.mu.Lock()
	s.lastUsed = now
	s.mu.Unlock()
}

func (s *boardSession) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

// Registry keeps one loaded board per signed-in session and evicts boards
// idle longer than the TTL.
type Registry struct {
	client *baas.Client
	ttl    time.Duration
	opts   []board.Option
	logger *log.Logger
	now    func() time.Time

	mu       sync.Mutex
	sessions map[string]*boardSession
}

// NewRegistry returns an empty registry. opts are applied to every store it
// creates.
func NewRegistry(client *baas.Client, ttl time.Duration, logger *log.Logger, opts ...board.Option) *Registry {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Registry{
		client:   client,
		ttl:      ttl,
		opts:     opts,
		logger:   logger,
		now:      time.Now,
		sessions: make(map[string]*boardSession),
	}
}

// Get returns the loaded board of p, loading it on first use. fresh reports
// whether this call performed the load. A credential change for the same key
// replaces the board.
func (r *Registry) Get(ctx context.Context, p principal) (sess *boardSession, fresh bool, err error) {
	now := r.now()
	r.mu.Lock()
	sess, ok := r.sessions[p.Key]
	if ok && sess.credential != p.Credential {
		ok = false
	}
	if !ok {
		store := board.NewStore(r.client, p.Credential, r.opts...)
		sess = &boardSession{
			credential: p.Credential,
			store:      store,
			drag:       board.NewCoordinator(store),
			ready:      make(chan struct{}),
			lastUsed:   now,
		}
		r.sessions[p.Key] = sess
	}
	r.mu.Unlock()

	if !ok {
		sess.loadErr = sess.store.Load(ctx)
		if sess.loadErr == nil && p.UserID != "" {
			if id, _ := sess.store.Identity(); id.ID != p.UserID {
				sess.loadErr = fmt.Errorf("%w: token subject does not match session", domain.ErrNotAuthenticated)
			}
		}
		close(sess.ready)
		if sess.loadErr != nil {
			r.remove(p.Key, sess)
			return nil, false, sess.loadErr
		}
		return sess, true, nil
	}

	select {
	case <-sess.ready:
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
	if sess.loadErr != nil {
		return nil, false, sess.loadErr
	}
	sess.touch(now)
	return sess, false, nil
}

func (r *Registry) remove(key string, sess *boardSession) {
	r.mu.Lock()
	if cur, ok := r.sessions[key]; ok && cur == sess {
		delete(r.sessions, key)
	}
	r.mu.Unlock()
}

// Drop forgets the board of key.
func (r *Registry) Drop(key string) {
	r.mu.Lock()
	delete(r.sessions, key)
	r.mu.Unlock()
}

// Len reports the number of boards held.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep evicts boards idle for longer than the TTL and returns how many went.
func (r *Registry) Sweep() int {
	cutoff := r.now().Add(-r.ttl)
	r.mu.Lock()
	defer r.mu.Unlock()
	evicted := 0
	for key, sess := range r.sessions {
		select {
		case <-sess.ready:
		default:
			continue
		}
		if sess.idleSince().Before(cutoff) {
			delete(r.sessions, key)
			evicted++
		}
	}
	return evicted
}

// Run sweeps on every tick until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Sweep(); n > 0 {
				r.logger.WithFields(log.Fields{"evicted": n, "remaining": r.Len()}).Debug("evicted idle boards")
			}
		}
	}
}
