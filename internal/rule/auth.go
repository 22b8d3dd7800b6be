package rule

import (
	"context"

	"github.com/kubilitics/kubilitics-backend/internal/authbackend"
	"github.com/kubilitics/kubilitics-backend/internal/block"
)

// AuthRule is the authentication-phase rule compiled from a block's auth_key,
// jwt_auth, or proxy_auth directive (§4.2/§4.3). It consults Backend
// with the request's single inbound Credential and rejects unless that credential is
// the one this particular block recognizes.
//
// AuthRule does not itself populate @{user}/@{current_group}-style resolution data —
// that happens once, upstream of the engine, from whichever backend actually resolved
// the credential (see variable.ResolutionContext and req.Resolution). This rule only
// gates which blocks a given credential is allowed to match.
type AuthRule struct {
	RuleName string
	Backend  authbackend.Backend
}

func (r *AuthRule) Name() string { return r.RuleName }

func (r *AuthRule) Check(ctx context.Context, bctx *block.Context, req *Request) (Outcome, error) {
	if req.Credential == nil {
		return Rejected(CauseAuthenticationFailed, "no credential supplied"), nil
	}
	if _, err := r.Backend.Authenticate(ctx, req.Credential); err != nil {
		return Rejected(CauseAuthenticationFailed, err.Error()), nil
	}
	return Matched(bctx), nil
}
