package api

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
)

type credentialsKey struct{}

// WithCredentials attaches the browser's Cookie header to ctx so every
// upstream call made with it carries the user's session.
func WithCredentials(ctx context.Context, cookieHeader string) context.Context {
	if cookieHeader == "" {
		return ctx
	}
	return context.WithValue(ctx, credentialsKey{}, cookieHeader)
}

func CredentialsFrom(ctx context.Context) string {
	s, _ := ctx.Value(credentialsKey{}).(string)
	return s
}

// CredentialsScope is a short stable key identifying the credentials in ctx,
// used to keep cached pages of different users apart.
func CredentialsScope(ctx context.Context) string {
	c := CredentialsFrom(ctx)
	if c == "" {
		return "anon"
	}
	sum := sha256.Sum256([]byte(c))
	return hex.EncodeToString(sum[:8])
}
