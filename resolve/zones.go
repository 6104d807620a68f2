package resolve

import "sync"

// Zones holds hierarchical delegation: zone prefix to authoritative name
// server URL, analogous to DNS NS records.
type Zones struct {
	mu        sync.RWMutex
	referrals map[string]string
}

// NewZones creates an empty zone table.
func NewZones() *Zones {
	return &Zones{referrals: make(map[string]string)}
}

// Register points a zone at its authoritative name server.
func (z *Zones) Register(zone, nsURL string) {
	z.mu.Lock()
	z.referrals[zone] = nsURL
	z.mu.Unlock()
}

// Lookup returns the authoritative NS for a zone, if delegated.
func (z *Zones) Lookup(zone string) (string, bool) {
	z.mu.RLock()
	defer z.mu.RUnlock()
	url, ok := z.referrals[zone]
	return url, ok
}

// List returns a copy of all zone referrals.
func (z *Zones) List() map[string]string {
	z.mu.RLock()
	defer z.mu.RUnlock()
	out := make(map[string]string, len(z.referrals))
	for zone, url := range z.referrals {
		out[zone] = url
	}
	return out
}

// Count returns the number of delegated zones.
func (z *Zones) Count() int {
	z.mu.RLock()
	defer z.mu.RUnlock()
	return len(z.referrals)
}
