package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/jwtauth/v5"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// ClaimUserID is the token claim identifying the acting user.
const ClaimUserID = "user_id"

type ctxKey struct{}

var errMissingActor = errors.New("token has no user_id claim")

// NewTokenAuth builds the HS256 verifier shared by the router and token issuers.
func NewTokenAuth(secret string) *jwtauth.JWTAuth {
	return jwtauth.New("HS256", []byte(secret), nil, jwt.WithAcceptableSkew(30*time.Second))
}

// IssueToken signs a token for userID valid for ttl.
func IssueToken(ja *jwtauth.JWTAuth, userID string, ttl time.Duration) (string, error) {
	claims := map[string]interface{}{ClaimUserID: userID}
	jwtauth.SetIssuedNow(claims)
	jwtauth.SetExpiryIn(claims, ttl)
	_, token, err := ja.Encode(claims)
	return token, err
}

// authenticator rejects requests without a valid token and stores the
// acting user ID in the request context.
func authenticator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, claims, err := jwtauth.FromContext(r.Context())
		if err != nil || token == nil {
			writeUnauthorized(w, err)
			return
		}
		userID, _ := claims[ClaimUserID].(string)
		if userID == "" {
			writeUnauthorized(w, errMissingActor)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, userID)))
	})
}

// ActorID returns the authenticated user ID.
func ActorID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

func writeUnauthorized(w http.ResponseWriter, err error) {
	resp := ErrorResponse{Error: "Unauthorized", Kind: "unauthorized"}
	if err != nil {
		resp.Details = []string{err.Error()}
	}
	writeJSON(w, http.StatusUnauthorized, resp)
}
