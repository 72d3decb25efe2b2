package harvest

import "strings"

// hostBlocklist filters listing entries whose URL lives on a configured
// host. An entry blocks the host itself and every subdomain, so "bing.com"
// also catches the provider's own redirect and ad hosts like
// "www.bing.com". Leading "*." and "." prefixes are accepted and ignored.
type hostBlocklist struct {
	suffixes []string
}

func newHostBlocklist(patterns []string) *hostBlocklist {
	bl := &hostBlocklist{}
	for _, raw := range patterns {
		value := strings.TrimSpace(strings.ToLower(raw))
		value = strings.TrimPrefix(value, "*.")
		value = strings.TrimPrefix(value, ".")
		if value == "" {
			continue
		}
		bl.addSuffix(value)
	}
	if len(bl.suffixes) == 0 {
		return nil
	}
	return bl
}

func (b *hostBlocklist) addSuffix(suffix string) {
	for _, existing := range b.suffixes {
		if existing == suffix {
			return
		}
	}
	b.suffixes = append(b.suffixes, suffix)
}

// Blocked reports whether host matches a configured entry or one of its
// subdomains. A nil blocklist never blocks.
func (b *hostBlocklist) Blocked(host string) bool {
	if b == nil {
		return false
	}
	host = strings.TrimSpace(strings.ToLower(host))
	if host == "" {
		return false
	}
	if idx := strings.LastIndex(host, ":"); idx != -1 && !strings.Contains(host[idx:], "]") {
		host = host[:idx]
	}
	for _, suffix := range b.suffixes {
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			return true
		}
	}
	return false
}
