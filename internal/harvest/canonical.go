package harvest

import (
	"crypto/md5" //nolint:gosec // identity key, not a security boundary
	"encoding/hex"
	"net/url"
	"strings"
)

// Canonicalize standardizes a URL for dedup comparison. It lowercases the
// scheme and host, removes default ports, strips trailing slashes from the
// path, sorts query parameters, and drops the fragment. Two URLs name the
// same resource for dedup purposes iff their canonical forms are byte-equal.
//
// The function is total: malformed input is returned trimmed rather than
// failing, so identity stays deterministic even for garbage hrefs.
func Canonicalize(rawURL string) string {
	trimmed := strings.TrimSpace(rawURL)
	u, err := url.Parse(trimmed)
	if err != nil {
		return trimmed
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)

	// Remove default ports
	if u.Scheme == "http" && strings.HasSuffix(u.Host, ":80") {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	if u.Scheme == "https" && strings.HasSuffix(u.Host, ":443") {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}

	// Strip every trailing slash, not just one, so the result is a fixed
	// point: site.com/a// and site.com/a/ both land on site.com/a.
	u.Path = strings.TrimRight(u.Path, "/")
	if u.RawPath != "" {
		u.RawPath = strings.TrimRight(u.RawPath, "/")
	}

	u.Fragment = ""
	u.RawFragment = ""

	// Sort query parameters
	q := u.Query()
	u.RawQuery = q.Encode()

	return u.String()
}

// RecordID derives the stable identifier for a URL: the hex MD5 digest of
// its canonical form. Same resource, same id, across runs and processes.
func RecordID(rawURL string) string {
	sum := md5.Sum([]byte(Canonicalize(rawURL))) //nolint:gosec // see above
	return hex.EncodeToString(sum[:])
}
