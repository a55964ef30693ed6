package settings

import (
	"github.com/dshills/pvrsettings/internal/config/registry"
	"github.com/dshills/pvrsettings/internal/i18n"
)

// Localizer formats numbered string templates.
type Localizer interface {
	Format(id uint32, args ...any) string
}

// ClientCounter reports how many PVR clients are enabled.
type ClientCounter interface {
	EnabledClientAmount() int
}

var marginTimes = []int{0, 1, 3, 5, 10, 15, 20, 30, 60, 90, 120, 180}

// MarginTimes returns the minute values offered for recording margins.
func MarginTimes() []int {
	out := make([]int, len(marginTimes))
	copy(out, marginTimes)
	return out
}

// MarginTimeFiller returns an options filler listing the margin times
// with labels like "5 min". The current value is left alone.
func MarginTimeFiller(loc Localizer) registry.IntegerOptionsFiller {
	return func(_ *registry.Setting, list *[]registry.IntegerOption, _ *int, _ any) {
		if list == nil {
			return
		}
		options := make([]registry.IntegerOption, 0, len(marginTimes))
		for _, minutes := range marginTimes {
			options = append(options, registry.IntegerOption{
				Label: loc.Format(i18n.MinutesTemplate, minutes),
				Value: minutes,
			})
		}
		*list = options
	}
}

// SettingVisibility decides which client-dependent settings are shown.
type SettingVisibility struct {
	Clients ClientCounter
}

// IsSettingVisible shows the backend channel numbers setting only with a
// single enabled client and the client priorities only with several.
// Every other setting is visible; a nil setting is not.
func (v SettingVisibility) IsSettingVisible(_, _ string, setting *registry.Setting, _ any) bool {
	if setting == nil {
		return false
	}

	switch setting.ID {
	case UseBackendChannelNumbers:
		return v.enabledClients() == 1
	case ClientPriorities:
		return v.enabledClients() > 1
	default:
		return true
	}
}

func (v SettingVisibility) enabledClients() int {
	if v.Clients == nil {
		return 0
	}
	return v.Clients.EnabledClientAmount()
}

// RegisterCallbacks binds the margin filler and the visibility condition
// to the names used by the PVR definitions.
func RegisterCallbacks(reg *registry.Registry, loc Localizer, clients ClientCounter) {
	reg.RegisterIntegerOptionsFiller(FillerMarginTimes, MarginTimeFiller(loc))
	reg.RegisterVisibilityCondition(ConditionSettingVisible, SettingVisibility{Clients: clients}.IsSettingVisible)
}
