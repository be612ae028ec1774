package config

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// HostPolicyConfig restricts which hosts may be scraped. An empty Allow list permits
// every host not denied. Entries match the host itself and its subdomains.
type HostPolicyConfig struct {
	Allow []string `mapstructure:"allow"`
	Deny  []string `mapstructure:"deny"`
}

// Normalize lowercases entries, strips schemes and www., and removes duplicates.
func (c HostPolicyConfig) Normalize() HostPolicyConfig {
	return HostPolicyConfig{
		Allow: sanitizeHostList(c.Allow),
		Deny:  sanitizeHostList(c.Deny),
	}
}

func (c HostPolicyConfig) Validate() error {
	norm := c.Normalize()
	allow := make(map[string]struct{}, len(norm.Allow))
	for _, host := range norm.Allow {
		allow[host] = struct{}{}
	}
	for _, host := range norm.Deny {
		if _, ok := allow[host]; ok {
			return fmt.Errorf("fetch.policy conflict: host %q present in both allow and deny lists", host)
		}
	}
	return nil
}

// Empty reports whether the policy places no restriction.
func (c HostPolicyConfig) Empty() bool {
	return len(c.Allow) == 0 && len(c.Deny) == 0
}

// Permits reports whether host may be fetched. Deny wins over allow.
func (c HostPolicyConfig) Permits(host string) bool {
	host = normalizeHost(host)
	if host == "" {
		return false
	}
	if matchesAny(host, c.Deny) {
		return false
	}
	return len(c.Allow) == 0 || matchesAny(host, c.Allow)
}

func matchesAny(host string, entries []string) bool {
	for _, e := range entries {
		if host == e || strings.HasSuffix(host, "."+e) {
			return true
		}
	}
	return false
}

func sanitizeHostList(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	for _, raw := range values {
		host := normalizeHost(raw)
		if host == "" {
			continue
		}
		seen[host] = struct{}{}
	}
	if len(seen) == 0 {
		return nil
	}
	out := make([]string, 0, len(seen))
	for host := range seen {
		out = append(out, host)
	}
	sort.Strings(out)
	return out
}

func normalizeHost(value string) string {
	value = strings.TrimSpace(strings.ToLower(value))
	if value == "" {
		return ""
	}
	if strings.Contains(value, "://") {
		if u, err := url.Parse(value); err == nil && u.Hostname() != "" {
			value = u.Hostname()
		}
	}
	return strings.TrimPrefix(value, "www.")
}
