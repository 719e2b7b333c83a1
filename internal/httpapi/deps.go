// Package httpapi is the gin-based HTTP surface: SIWE/CLOB-auth handshake,
// session-bound trading endpoints, and take-profit arming, all mapped onto
// the taxonomy of domain.APIError.
package httpapi

import (
	"time"

	"github.com/opipolix/gateway/internal/application/auth"
	"github.com/opipolix/gateway/internal/application/clobsession"
	"github.com/opipolix/gateway/internal/application/resolver"
	"github.com/opipolix/gateway/internal/application/tpengine"
	"github.com/opipolix/gateway/internal/domain"
	"github.com/opipolix/gateway/internal/ports"
	"github.com/opipolix/gateway/internal/store"
)

// Deps wires every component the HTTP surface calls into.
type Deps struct {
	Store             *store.Store
	Resolver          *resolver.Resolver
	CredentialDeriver *auth.CredentialDeriver
	PublicCLOB        ports.CLOBClient
	TPEngine          *tpengine.Engine

	// NewSession builds the normalizing, session-scoped CLOB facade used to
	// place and query orders on behalf of an authenticated wallet.
	NewSession tpengine.SessionFactory

	ChainID int64

	SessionCookieName   string
	SessionTTL          time.Duration
	NonceTTL            time.Duration
	AuthRateLimitMax    int
	AuthRateLimitWindow time.Duration
}

func (d *Deps) sessionFor(sess domain.Session) *clobsession.Session {
	return d.NewSession(sess.ClobCreds, sess.EOAAddress, sess.TradingContext.FunderAddress())
}
