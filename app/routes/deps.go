package routes

import (
	"sync"

	"helper_chat/internal/config"
	"helper_chat/internal/localstate"
	chatsvc "helper_chat/internal/services/chat"
	profilesvc "helper_chat/internal/services/profile"
	"helper_chat/internal/session"
)

type Deps struct {
	Config  config.Config
	Session *session.Manager
	Chat    *chatsvc.Reconciler
	Profile *profilesvc.Service
	State   *localstate.Store

	// ConfigErr is the validation failure shown as a full-screen notice
	// when the backend credentials are missing or placeholders.
	ConfigErr error
}

var (
	depsMu   sync.RWMutex
	depsOnce bool
	deps     Deps
)

func SetDeps(next Deps) {
	depsMu.Lock()
	defer depsMu.Unlock()
	deps = next
	depsOnce = true
}

func getDeps() Deps {
	depsMu.RLock()
	defer depsMu.RUnlock()
	if !depsOnce {
		panic("routes deps not initialized")
	}
	return deps
}
