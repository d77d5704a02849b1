package testutil

import (
	"context"
	"net/http"

	id "lineage/pkg/domain"
	"lineage/pkg/requestcontext"
)

// WithPrincipal attaches p to the request context, the way the auth
// middleware does for authenticated requests.
func WithPrincipal(req *http.Request, p requestcontext.Principal) *http.Request {
	return req.WithContext(requestcontext.WithPrincipal(req.Context(), p))
}

// WithUserID authenticates the request as a plain member. Invalid IDs are
// ignored and leave the request anonymous.
func WithUserID(req *http.Request, userID string) *http.Request {
	parsed, err := id.ParseUserID(userID)
	if err != nil {
		return req
	}
	return WithPrincipal(req, requestcontext.Principal{UserID: parsed, Roles: []string{"member"}})
}

// WithContextValue adds an arbitrary key-value pair to the request context.
func WithContextValue(req *http.Request, key, value any) *http.Request {
	ctx := context.WithValue(req.Context(), key, value)
	return req.WithContext(ctx)
}

// Member returns a context authenticated as a member of the given towns.
func Member(ctx context.Context, userID id.UserID, towns ...id.TownID) context.Context {
	return requestcontext.WithPrincipal(ctx, requestcontext.Principal{
		UserID: userID,
		Roles:  []string{"member"},
		Towns:  towns,
	})
}

// TownReviewer returns a context authenticated as a reviewer for towns.
func TownReviewer(ctx context.Context, userID id.UserID, towns ...id.TownID) context.Context {
	return requestcontext.WithPrincipal(ctx, requestcontext.Principal{
		UserID: userID,
		Roles:  []string{"member", "town_reviewer"},
		Towns:  towns,
	})
}

// TreeAdmin returns a context authenticated as an administrator of trees.
func TreeAdmin(ctx context.Context, userID id.UserID, trees ...id.TreeID) context.Context {
	return requestcontext.WithPrincipal(ctx, requestcontext.Principal{
		UserID: userID,
		Roles:  []string{"member", "tree_admin"},
		Trees:  trees,
	})
}

// SuperAdmin returns a context authenticated with every capability.
func SuperAdmin(ctx context.Context, userID id.UserID) context.Context {
	return requestcontext.WithPrincipal(ctx, requestcontext.Principal{
		UserID: userID,
		Roles:  []string{"super_admin"},
	})
}
