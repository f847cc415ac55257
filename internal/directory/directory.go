// Package directory holds the in-memory roster of partners and hubs together
// with their current-period load counters.
package directory

import (
	"sort"
	"sync"

	"github.com/spec-kit/dispatch-service/internal/domain"
)

// Directory is the owned snapshot of partners and hubs. All methods are safe
// for concurrent use.
type Directory struct {
	mu       sync.RWMutex
	partners []*domain.Partner
	byName   map[string]*domain.Partner
	hubs     []*domain.Hub
	byCode   map[string]*domain.Hub
}

// New builds a directory. Declaration order of partners is kept as the
// priority tie-breaker.
func New(partners []domain.Partner, hubs []domain.Hub) *Directory {
	d := &Directory{}
	d.load(partners, hubs, nil, nil)
	return d
}

func (d *Directory) load(partners []domain.Partner, hubs []domain.Hub, partnerLoads, hubLoads map[string]int) {
	d.partners = make([]*domain.Partner, 0, len(partners))
	d.byName = make(map[string]*domain.Partner, len(partners))
	for i := range partners {
		p := clonePartner(partners[i])
		if load, ok := partnerLoads[p.Name]; ok {
			p.CurrentLoad = load
		}
		if p.CurrentLoad < 0 {
			p.CurrentLoad = 0
		}
		d.partners = append(d.partners, &p)
		d.byName[p.Name] = &p
	}

	d.hubs = make([]*domain.Hub, 0, len(hubs))
	d.byCode = make(map[string]*domain.Hub, len(hubs))
	for i := range hubs {
		h := cloneHub(hubs[i])
		if load, ok := hubLoads[h.Code]; ok {
			h.CurrentLoad = load
		}
		if h.CurrentLoad < 0 {
			h.CurrentLoad = 0
		}
		d.hubs = append(d.hubs, &h)
		d.byCode[h.Code] = &h
	}
}

// Replace swaps the roster for a new definition set. Loads of partners and
// hubs that keep their name survive the swap.
func (d *Directory) Replace(partners []domain.Partner, hubs []domain.Hub) {
	d.mu.Lock()
	defer d.mu.Unlock()

	partnerLoads := make(map[string]int, len(d.partners))
	for _, p := range d.partners {
		partnerLoads[p.Name] = p.CurrentLoad
	}
	hubLoads := make(map[string]int, len(d.hubs))
	for _, h := range d.hubs {
		hubLoads[h.Code] = h.CurrentLoad
	}
	d.load(partners, hubs, partnerLoads, hubLoads)
}

// PartnersForHub returns the active partners of a hub ordered by ascending
// priority. An explicit hub allow-list takes precedence over the hubs listed
// on partner records.
func (d *Directory) PartnersForHub(hubCode string) []domain.Partner {
	d.mu.RLock()
	defer d.mu.RUnlock()

	hub := d.byCode[hubCode]
	result := make([]domain.Partner, 0, len(d.partners))
	for _, p := range d.partners {
		if !p.Active {
			continue
		}
		if hub != nil && hub.HasAllowList() {
			if !hub.Allows(p.Name) {
				continue
			}
		} else if !p.ServesHub(hubCode) {
			continue
		}
		result = append(result, clonePartner(*p))
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Priority < result[j].Priority
	})
	return result
}

// CapacityRemaining returns how many more appointments the partner can take
// this period. Unknown partners have none.
func (d *Directory) CapacityRemaining(partnerName string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()

	p, ok := d.byName[partnerName]
	if !ok {
		return 0
	}
	return p.Remaining()
}

// RecordLoad increments the partner load. It reports false for unknown
// partners.
func (d *Directory) RecordLoad(partnerName string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	p, ok := d.byName[partnerName]
	if !ok {
		return false
	}
	p.CurrentLoad++
	return true
}

// TryRecordLoad increments the partner load only if capacity remains.
func (d *Directory) TryRecordLoad(partnerName string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	p, ok := d.byName[partnerName]
	if !ok || p.CurrentLoad >= p.Capacity {
		return false
	}
	p.CurrentLoad++
	return true
}

// ReleaseLoad undoes one TryRecordLoad.
func (d *Directory) ReleaseLoad(partnerName string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if p, ok := d.byName[partnerName]; ok && p.CurrentLoad > 0 {
		p.CurrentLoad--
	}
}

// PartnerLoad returns the current load of a partner.
func (d *Directory) PartnerLoad(partnerName string) (int, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	p, ok := d.byName[partnerName]
	if !ok {
		return 0, false
	}
	return p.CurrentLoad, true
}

// Hub returns a copy of the hub definition.
func (d *Directory) Hub(code string) (domain.Hub, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	h, ok := d.byCode[code]
	if !ok {
		return domain.Hub{}, false
	}
	return cloneHub(*h), true
}

// HubAcceptsWork reports whether a hub may receive another appointment.
// Hubs without a definition accept work; their roster comes from partner
// records alone.
func (d *Directory) HubAcceptsWork(code string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	h, ok := d.byCode[code]
	if !ok {
		return true
	}
	return h.Active && h.CurrentLoad < h.Capacity
}

// RecordHubLoad increments the hub load.
func (d *Directory) RecordHubLoad(code string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	h, ok := d.byCode[code]
	if !ok {
		return false
	}
	h.CurrentLoad++
	return true
}

// TotalHubLoad sums the load of every hub.
func (d *Directory) TotalHubLoad() int {
	d.mu.RLock()
	defer d.mu.RUnlock()

	total := 0
	for _, h := range d.hubs {
		total += h.CurrentLoad
	}
	return total
}

// ResetLoads zeroes every partner and hub load.
func (d *Directory) ResetLoads() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, p := range d.partners {
		p.CurrentLoad = 0
	}
	for _, h := range d.hubs {
		h.CurrentLoad = 0
	}
}

// Snapshot returns copies of all partners and hubs in declaration order.
func (d *Directory) Snapshot() ([]domain.Partner, []domain.Hub) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	partners := make([]domain.Partner, 0, len(d.partners))
	for _, p := range d.partners {
		partners = append(partners, clonePartner(*p))
	}
	hubs := make([]domain.Hub, 0, len(d.hubs))
	for _, h := range d.hubs {
		hubs = append(hubs, cloneHub(*h))
	}
	return partners, hubs
}

func clonePartner(p domain.Partner) domain.Partner {
	p.Hubs = append([]string(nil), p.Hubs...)
	p.Specialties = append([]string(nil), p.Specialties...)
	return p
}

func cloneHub(h domain.Hub) domain.Hub {
	h.Partners = append([]string(nil), h.Partners...)
	return h
}
