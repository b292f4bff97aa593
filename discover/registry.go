package discover

import (
	"fmt"
	"sort"
	"time"

	ttlworker "github.com/FloatTech/ttl"

	"github.com/moyoez/partyline-console/tool"
	"github.com/moyoez/partyline-console/types"
)

// DefaultTTL is how long a unit stays listed after it last answered.
const DefaultTTL = 300 * time.Second

const (
	NotifyTypeUnitDiscovered = "unit_discovered"
	NotifyTypeUnitUpdated    = "unit_updated"
)

// Registry remembers recently found units keyed by origin.
type Registry struct {
	units    *ttlworker.Cache[string, Unit]
	onChange func(u Unit, isNew bool)
}

// NewRegistry creates a registry. onChange, if set, is called for every unit
// that is new or whose details changed since it was last recorded.
func NewRegistry(ttl time.Duration, onChange func(u Unit, isNew bool)) *Registry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Registry{
		units:    ttlworker.NewCache[string, Unit](ttl),
		onChange: onChange,
	}
}

// Record stores the results of a scan.
func (r *Registry) Record(units []Unit) {
	for _, u := range units {
		existing, exists := r.Get(u.Origin)
		r.units.Set(u.Origin, u)
		if exists && existing == u {
			continue
		}
		if exists {
			tool.DefaultLogger.Infof("Intercom updated: %s at %s", u.Name, u.Origin)
		} else {
			tool.DefaultLogger.Infof("Intercom discovered: %s at %s", u.Name, u.Origin)
		}
		if r.onChange != nil {
			r.onChange(u, !exists)
		}
	}
}

func (r *Registry) Get(origin string) (Unit, bool) {
	u := r.units.Get(origin)
	return u, u.Origin != ""
}

// List returns the live units ordered by host.
func (r *Registry) List() []Unit {
	units := make([]Unit, 0)
	err := r.units.Range(func(_ string, u Unit) error {
		units = append(units, u)
		return nil
	})
	if err != nil {
		return nil
	}
	sort.Slice(units, func(i, j int) bool { return units[i].Host < units[j].Host })
	return units
}

// Notification describes a unit change for dashboard clients.
func Notification(u Unit, isNew bool) *types.Notification {
	n := &types.Notification{
		Type:    NotifyTypeUnitUpdated,
		Title:   "Intercom Updated",
		Message: fmt.Sprintf("%s at %s", u.Name, u.Origin),
		Data: map[string]any{
			"origin":     u.Origin,
			"name":       u.Name,
			"tx_running": u.TxRunning,
			"rx_running": u.RxRunning,
			"isNew":      isNew,
		},
	}
	if isNew {
		n.Type = NotifyTypeUnitDiscovered
		n.Title = "Intercom Discovered"
	}
	return n
}
