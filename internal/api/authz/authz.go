package authz

import (
	"context"
	"errors"
	"strings"
)

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
)

// Capability is the closed set of roles a requester can hold. Raw role
// strings from the members table are normalized into this set exactly once,
// when the auth middleware builds the AuthUser; nothing downstream reasons
// about raw strings.
type Capability string

const (
	CapabilityAdmin   Capability = "admin"
	CapabilityCoach   Capability = "coach"
	CapabilityClimber Capability = "climber"
)

// ParseCapability maps a raw role string to a Capability.
func ParseCapability(raw string) (Capability, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "admin":
		return CapabilityAdmin, true
	case "coach":
		return CapabilityCoach, true
	case "climber":
		return CapabilityClimber, true
	}
	return "", false
}

// ParseCapabilities normalizes a raw role list, dropping anything outside
// the closed set.
func ParseCapabilities(raw []string) []Capability {
	caps := make([]Capability, 0, len(raw))
	for _, r := range raw {
		if c, ok := ParseCapability(r); ok {
			caps = append(caps, c)
		}
	}
	return caps
}

type AuthUser struct {
	ID           int64
	Capabilities []Capability
}

func (u *AuthUser) Has(c Capability) bool {
	if u == nil {
		return false
	}
	for _, have := range u.Capabilities {
		if have == c {
			return true
		}
	}
	return false
}

// IsStaff reports whether the user holds an administrative or coaching
// capability.
func (u *AuthUser) IsStaff() bool {
	return u.Has(CapabilityAdmin) || u.Has(CapabilityCoach)
}

type userContextKey struct{}

func ContextWithUser(ctx context.Context, user *AuthUser) context.Context {
	return context.WithValue(ctx, userContextKey{}, user)
}

// UserFromContext retrieves the AuthUser stored in ctx.
// It returns nil if ctx is nil, if no user is stored, or if the stored
// value has a different type.
func UserFromContext(ctx context.Context) *AuthUser {
	if ctx == nil {
		return nil
	}

	user, ok := ctx.Value(userContextKey{}).(*AuthUser)
	if !ok {
		return nil
	}

	return user
}

// RequireCapability returns ErrUnauthenticated when no user is present and
// ErrForbidden when the user holds none of the given capabilities.
func RequireCapability(ctx context.Context, capabilities ...Capability) error {
	user := UserFromContext(ctx)
	if user == nil {
		return ErrUnauthenticated
	}

	for _, c := range capabilities {
		if user.Has(c) {
			return nil
		}
	}
	return ErrForbidden
}
