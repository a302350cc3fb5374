// Package hooks holds the currently registered session lifecycle callbacks.
//
// References are swapped atomically and read at the moment they are needed, so a
// re-registration after a logout/login cycle is picked up by the next renewal
// without any teardown.
package hooks

import (
	"context"
	"sync/atomic"
)

// Renewer re-establishes a valid session.
type Renewer interface {
	Renew(ctx context.Context) error
}

// LogoutHook clears local session state after a failed renewal.
type LogoutHook interface {
	ForceLogout(ctx context.Context, cause error)
}

type renewerBox struct{ r Renewer }
type logoutBox struct{ h LogoutHook }

// Registry stores one Renewer and one LogoutHook. The zero value is empty and
// ready to use.
type Registry struct {
	renewer atomic.Pointer[renewerBox]
	logout  atomic.Pointer[logoutBox]
}

// SetRenewer replaces the registered renewer. Last write wins; nil clears it.
func (r *Registry) SetRenewer(renewer Renewer) {
	if renewer == nil {
		r.renewer.Store(nil)
		return
	}
	r.renewer.Store(&renewerBox{r: renewer})
}

// SetLogoutHook replaces the registered logout hook. Last write wins; nil clears it.
func (r *Registry) SetLogoutHook(h LogoutHook) {
	if h == nil {
		r.logout.Store(nil)
		return
	}
	r.logout.Store(&logoutBox{h: h})
}

// Renewer returns the renewer registered right now, or nil.
func (r *Registry) Renewer() Renewer {
	if b := r.renewer.Load(); b != nil {
		return b.r
	}
	return nil
}

// LogoutHook returns the logout hook registered right now, or nil.
func (r *Registry) LogoutHook() LogoutHook {
	if b := r.logout.Load(); b != nil {
		return b.h
	}
	return nil
}
