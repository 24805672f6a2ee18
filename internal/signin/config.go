package signin

import (
	"strings"

	"signin-service/internal/auth/provider"
)

// Platform is the client platform the provider is configured for.
type Platform string

const (
	PlatformWeb     Platform = "web"
	PlatformAndroid Platform = "android"
	PlatformIOS     Platform = "ios"
)

// ParsePlatform normalizes a platform name. Unknown names map to web.
func ParsePlatform(s string) Platform {
	switch Platform(strings.ToLower(strings.TrimSpace(s))) {
	case PlatformAndroid:
		return PlatformAndroid
	case PlatformIOS:
		return PlatformIOS
	default:
		return PlatformWeb
	}
}

type Config struct {
	Platform  Platform
	ClientIDs map[Platform]string
}

// ClientID returns the client ID for the configured platform, falling back
// to the web client ID.
func (c Config) ClientID() string {
	if id := c.ClientIDs[c.Platform]; id != "" {
		return id
	}
	return c.ClientIDs[PlatformWeb]
}

// ProviderOptions are the fixed request options: email and ID token are
// always requested, game-specific sign-in is never used.
func (c Config) ProviderOptions() provider.Options {
	return provider.Options{
		ClientID:       c.ClientID(),
		RequestEmail:   true,
		RequestIDToken: true,
		UseGameSignIn:  false,
	}
}
