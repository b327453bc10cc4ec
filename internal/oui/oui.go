// Package oui resolves MAC-address prefixes to manufacturer names using the
// IEEE OUI registry. The resolver is constructed once at startup and passed to
// whatever needs vendor names; there is no package-level map.
package oui

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"
)

// UnknownVendor is returned for prefixes not present in the registry.
// Downstream manufacturer creation relies on this never being empty.
const UnknownVendor = "Unknown Vendor"

// ouiLine matches registry entries of the form:
//
//	28D244     (base 16)		LCFC(HeFei) Electronics Technology co., ltd
var ouiLine = regexp.MustCompile(`(?m)^([0-9A-F]{6})\s+\(base 16\)\s+(.+)$`)

// Resolver maps 6-hex-digit MAC prefixes to vendor names.
// The map is read-only between reloads, so lookups from concurrent parse
// workers need no coordination beyond the RWMutex taken here.
type Resolver struct {
	mu       sync.RWMutex
	prefixes map[string]string
	path     string
}

// NewResolver loads the registry from path. A missing or unparsable file is
// logged and tolerated: the resolver still works, resolving everything to
// UnknownVendor until Reload succeeds.
func NewResolver(path string) *Resolver {
	r := &Resolver{prefixes: map[string]string{}, path: path}
	if err := r.Reload(); err != nil {
		log.Printf("[oui] registry load failed, continuing with empty map: %v", err)
	}
	return r
}

// Reload re-reads the registry file and swaps the prefix map atomically.
func (r *Resolver) Reload() error {
	raw, err := os.ReadFile(r.path)
	if err != nil {
		return fmt.Errorf("reading oui registry: %w", err)
	}
	prefixes := parseRegistry(string(raw))
	if len(prefixes) == 0 {
		return fmt.Errorf("oui registry %s contains no entries", r.path)
	}

	r.mu.Lock()
	r.prefixes = prefixes
	r.mu.Unlock()
	log.Printf("[oui] loaded %d vendor prefixes from %s", len(prefixes), r.path)
	return nil
}

// Resolve returns the vendor name for a MAC address, or UnknownVendor.
// Accepts colon-, dash- or bare-hex notation in any case.
func (r *Resolver) Resolve(mac string) string {
	prefix := strings.ToUpper(strings.NewReplacer(":", "", "-", "").Replace(mac))
	if len(prefix) < 6 {
		return UnknownVendor
	}
	prefix = prefix[:6]

	r.mu.RLock()
	vendor, ok := r.prefixes[prefix]
	r.mu.RUnlock()
	if !ok {
		return UnknownVendor
	}
	return vendor
}

// Len reports the number of loaded prefixes (0 after a failed load).
func (r *Resolver) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.prefixes)
}

// Download fetches a fresh registry from url, writes it to the resolver's
// path and reloads. Used by the oui-update subcommand and the reload endpoint.
func (r *Resolver) Download(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	// The IEEE endpoint rejects default Go user agents.
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; otmap)")

	client := &http.Client{Timeout: 5 * time.Minute}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("downloading oui registry: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("downloading oui registry: unexpected status %s", resp.Status)
	}

	tmp := r.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("writing oui registry: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, r.path); err != nil {
		os.Remove(tmp)
		return err
	}
	return r.Reload()
}

func parseRegistry(raw string) map[string]string {
	prefixes := map[string]string{}
	for _, m := range ouiLine.FindAllStringSubmatch(raw, -1) {
		prefixes[m[1]] = strings.TrimSpace(m[2])
	}
	return prefixes
}
