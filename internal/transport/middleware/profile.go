package middleware

import (
	"net/http"
	"regexp"

	"github.com/frahmantamala/vip-checkout/internal"
	"github.com/frahmantamala/vip-checkout/pkg/logger"
)

const ProfileHeader = "X-Checkout-Profile"

var profilePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// CheckoutProfile scopes the request to a checkout profile taken from ProfileHeader, falling
// back to defaultProfile when the header is missing or malformed.
func CheckoutProfile(defaultProfile string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			profileID := r.Header.Get(ProfileHeader)
			if !profilePattern.MatchString(profileID) {
				profileID = defaultProfile
			}

			ctx := internal.ContextWithProfileID(r.Context(), profileID)
			ctx = logger.With(ctx, "profile_id", profileID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
