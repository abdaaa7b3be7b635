package metaops

import (
	"crypto/ed25519"
	"sync"

	"github.com/rakunlabs/kiwimcp/internal/chain"
	"github.com/rakunlabs/kiwimcp/internal/content"
	"github.com/rakunlabs/kiwimcp/internal/permission"
	"github.com/rakunlabs/kiwimcp/internal/registry"
	"github.com/rakunlabs/kiwimcp/internal/search"
)

// Kernel wires the content store, chain resolver, search engine,
// permission layer, registry collaborator, and signature keys together
// behind the five meta-operations.
type Kernel struct {
	Store    *content.Store
	Resolver *chain.Resolver
	Hybrid   *search.Hybrid // the keyword/vector blend behind the Search meta-operation
	Registry registry.Client

	RateLimiter  *permission.RateLimiter
	LoopDetector *permission.LoopDetector
	Audit        *permission.AuditLog

	SigningKey    ed25519.PrivateKey // nil disables asymmetric signing
	VerifyKey     ed25519.PublicKey  // nil disables asymmetric verification
	RequireSigned bool               // not read by Load; registry-origin loads always require a signature

	mu       sync.Mutex
	sessions map[string]*sessionState
}

// sessionState tracks per-session help(action=stuck) attempt counts. Not
// persisted; a fresh kernel starts every session back at zero.
type sessionState struct {
	mu       sync.Mutex
	attempts int
}

// New builds a Kernel from its already-constructed collaborators.
func New(store *content.Store, resolver *chain.Resolver, hybrid *search.Hybrid, reg registry.Client, audit *permission.AuditLog) *Kernel {
	return &Kernel{
		Store: store, Resolver: resolver, Hybrid: hybrid, Registry: reg,
		RateLimiter: permission.NewRateLimiter(nil), LoopDetector: permission.NewLoopDetector(0, 0),
		Audit: audit, sessions: make(map[string]*sessionState),
	}
}

func (k *Kernel) stateFor(session string) *sessionState {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.sessions == nil {
		k.sessions = make(map[string]*sessionState)
	}
	s, ok := k.sessions[session]
	if !ok {
		s = &sessionState{}
		k.sessions[session] = s
	}
	return s
}
