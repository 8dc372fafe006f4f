// Helpers for issuing and clearing the refresh-token cookie together with
// the security headers that accompany every token-bearing response.

package utils

import (
	"fmt"
	"net/http"
	"time"
)

const (
	RefreshTokenCookieName = "refreshToken"
	RefreshTokenCookiePath = "/api/v1/auth"
)

// SetRefreshCookie writes the HttpOnly refresh cookie. With high security the
// cookie is SameSite=Strict; otherwise SameSite=None plus Partitioned so a
// cross-site front end on localhost can still reach the refresh endpoint.
func SetRefreshCookie(w http.ResponseWriter, refreshToken string, refreshTTL time.Duration, sameSiteHighSecurity bool) {
	if refreshToken == "" {
		return
	}

	sameSite, partitioned := cookiePolicy(sameSiteHighSecurity)
	maxAge := int(refreshTTL.Seconds())
	expires := time.Now().Add(refreshTTL).UTC().Format(http.TimeFormat)

	Logger.Debugf("[cookies] writing %s path=%s SameSite=%s Partitioned=%t",
		RefreshTokenCookieName, RefreshTokenCookiePath, sameSite, partitioned)

	w.Header().Add("Set-Cookie",
		fmt.Sprintf("%s=%s; Path=%s; Max-Age=%d; Expires=%s; SameSite=%s; Secure; HttpOnly; Priority=High%s",
			RefreshTokenCookieName, refreshToken, RefreshTokenCookiePath, maxAge, expires, sameSite, partitionAttr(partitioned)))

	addSecurityHeaders(w)
}

// ClearRefreshCookie expires the refresh cookie (logout, account deletion).
func ClearRefreshCookie(w http.ResponseWriter, sameSiteHighSecurity bool) {
	sameSite, partitioned := cookiePolicy(sameSiteHighSecurity)
	expired := time.Now().Add(-1 * time.Hour).UTC().Format(http.TimeFormat)

	w.Header().Add("Set-Cookie",
		fmt.Sprintf("%s=; Path=%s; Expires=%s; Max-Age=0; SameSite=%s; Secure; HttpOnly; Priority=High%s",
			RefreshTokenCookieName, RefreshTokenCookiePath, expired, sameSite, partitionAttr(partitioned)))

	addSecurityHeaders(w)
}

func cookiePolicy(highSecurity bool) (string, bool) {
	if highSecurity {
		return "Strict", false
	}
	return "None", true
}

func partitionAttr(on bool) string {
	if on {
		return "; Partitioned"
	}
	return ""
}

func addSecurityHeaders(w http.ResponseWriter) {
	w.Header().Set("Strict-Transport-Security", "max-age=63072000; includeSubDomains; preload")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
}
