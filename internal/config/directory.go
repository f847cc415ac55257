package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/spec-kit/dispatch-service/internal/domain"
)

const (
	defaultPartnerCapacity    = 20
	defaultPartnerPriority    = 5
	defaultPartnerMaxDistance = 50
	defaultHubCapacity        = 100
)

type directoryFile struct {
	Partners []partnerEntry `yaml:"partners"`
	Hubs     []hubEntry     `yaml:"hubs"`
}

type partnerEntry struct {
	ID          string   `yaml:"id"`
	Name        string   `yaml:"name"`
	Hubs        []string `yaml:"hubs"`
	Capacity    *int     `yaml:"capacity"`
	Priority    *int     `yaml:"priority"`
	Active      *bool    `yaml:"active"`
	MaxDistance *int     `yaml:"max_distance"`
	Phone       string   `yaml:"phone"`
	Email       string   `yaml:"email"`
	Specialties []string `yaml:"specialties"`
}

type hubEntry struct {
	Code         string   `yaml:"code"`
	Name         string   `yaml:"name"`
	Address      string   `yaml:"address"`
	Partners     []string `yaml:"partners"`
	Active       *bool    `yaml:"active"`
	Capacity     *int     `yaml:"capacity"`
	Timezone     string   `yaml:"timezone"`
	Manager      string   `yaml:"manager"`
	ManagerEmail string   `yaml:"manager_email"`
}

// LoadDirectory reads and validates the partner and hub definitions.
func LoadDirectory(path string) ([]domain.Partner, []domain.Hub, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read directory file: %w", err)
	}
	return ParseDirectory(data)
}

// ParseDirectory decodes YAML definitions, applies defaults and validates
// them. Declaration order is preserved.
func ParseDirectory(data []byte) ([]domain.Partner, []domain.Hub, error) {
	var file directoryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, nil, fmt.Errorf("decode directory file: %w", err)
	}

	partners := make([]domain.Partner, 0, len(file.Partners))
	for _, e := range file.Partners {
		partners = append(partners, domain.Partner{
			ID:          e.ID,
			Name:        strings.TrimSpace(e.Name),
			Hubs:        e.Hubs,
			Capacity:    intOr(e.Capacity, defaultPartnerCapacity),
			Priority:    intOr(e.Priority, defaultPartnerPriority),
			Active:      boolOr(e.Active, true),
			MaxDistance: intOr(e.MaxDistance, defaultPartnerMaxDistance),
			Phone:       e.Phone,
			Email:       e.Email,
			Specialties: e.Specialties,
		})
	}

	hubs := make([]domain.Hub, 0, len(file.Hubs))
	for _, e := range file.Hubs {
		hubs = append(hubs, domain.Hub{
			Code:         strings.TrimSpace(e.Code),
			Name:         e.Name,
			Address:      e.Address,
			Partners:     e.Partners,
			Active:       boolOr(e.Active, true),
			Capacity:     intOr(e.Capacity, defaultHubCapacity),
			Timezone:     e.Timezone,
			Manager:      e.Manager,
			ManagerEmail: e.ManagerEmail,
		})
	}

	if err := ValidateDirectory(partners, hubs); err != nil {
		return nil, nil, err
	}
	return partners, hubs, nil
}

// ValidateDirectory reports every problem found in the definitions.
func ValidateDirectory(partners []domain.Partner, hubs []domain.Hub) error {
	var errs []error

	names := make(map[string]struct{}, len(partners))
	for i, p := range partners {
		if p.Name == "" {
			errs = append(errs, fmt.Errorf("partner #%d: name is required", i+1))
			continue
		}
		if _, dup := names[p.Name]; dup {
			errs = append(errs, fmt.Errorf("partner %q declared twice", p.Name))
		}
		names[p.Name] = struct{}{}
		if p.Capacity < 0 {
			errs = append(errs, fmt.Errorf("partner %q: capacity must not be negative", p.Name))
		}
	}

	codes := make(map[string]struct{}, len(hubs))
	for i, h := range hubs {
		if h.Code == "" {
			errs = append(errs, fmt.Errorf("hub #%d: code is required", i+1))
			continue
		}
		if _, dup := codes[h.Code]; dup {
			errs = append(errs, fmt.Errorf("hub %q declared twice", h.Code))
		}
		codes[h.Code] = struct{}{}
		if h.Capacity < 0 {
			errs = append(errs, fmt.Errorf("hub %q: capacity must not be negative", h.Code))
		}
		for _, name := range h.Partners {
			if _, ok := names[name]; !ok {
				errs = append(errs, fmt.Errorf("hub %q: allow-list names unknown partner %q", h.Code, name))
			}
		}
	}

	return errors.Join(errs...)
}

func intOr(v *int, fallback int) int {
	if v == nil {
		return fallback
	}
	return *v
}

func boolOr(v *bool, fallback bool) bool {
	if v == nil {
		return fallback
	}
	return *v
}
