package internal

import "context"

type ctxKey string

const ContextProfileKey ctxKey = "profileID"

// ProfileIDFromContext returns the checkout profile the request acts for, or "" when unset.
func ProfileIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if profileID, ok := ctx.Value(ContextProfileKey).(string); ok {
		return profileID
	}
	return ""
}

func ContextWithProfileID(ctx context.Context, profileID string) context.Context {
	return context.WithValue(ctx, ContextProfileKey, profileID)
}
