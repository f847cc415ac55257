package domain

// Hub is a geographic dispatch center.
type Hub struct {
	Code         string
	Name         string
	Address      string
	Partners     []string
	Active       bool
	Capacity     int
	CurrentLoad  int
	Timezone     string
	Manager      string
	ManagerEmail string
}

// HasAllowList reports whether membership is declared explicitly on the hub.
func (h Hub) HasAllowList() bool {
	return len(h.Partners) > 0
}

// Allows reports whether the partner name is on the hub allow-list.
func (h Hub) Allows(partnerName string) bool {
	for _, name := range h.Partners {
		if name == partnerName {
			return true
		}
	}
	return false
}
