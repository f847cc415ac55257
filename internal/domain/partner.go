package domain

// Partner is a fulfillment agent that can claim appointments offered to it.
type Partner struct {
	ID          string
	Name        string
	Hubs        []string
	Capacity    int
	Priority    int
	Active      bool
	CurrentLoad int
	MaxDistance int
	Phone       string
	Email       string
	Specialties []string
}

// ServesHub reports whether the partner lists the hub code among its hubs.
func (p Partner) ServesHub(code string) bool {
	for _, h := range p.Hubs {
		if h == code {
			return true
		}
	}
	return false
}

// Remaining returns the capacity left for the current period.
func (p Partner) Remaining() int {
	if p.CurrentLoad >= p.Capacity {
		return 0
	}
	return p.Capacity - p.CurrentLoad
}
