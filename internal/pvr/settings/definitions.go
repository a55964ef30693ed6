package settings

import "github.com/dshills/pvrsettings/internal/config/registry"

// PVR setting identifiers.
const (
	PreselectPlayingChannel  = "pvrmanager.preselectplayingchannel"
	SyncChannelGroups        = "pvrmanager.syncchannelgroups"
	BackendChannelOrder      = "pvrmanager.backendchannelorder"
	UseBackendChannelNumbers = "pvrmanager.usebackendchannelnumbers"
	ClientPriorities         = "pvrmanager.clientpriorities"
	SwitchToFullscreen       = "pvrplayback.switchtofullscreen"
	InstantRecordTime        = "pvrrecord.instantrecordtime"
	DefaultPriority          = "pvrrecord.defaultpriority"
	DefaultLifetime          = "pvrrecord.defaultlifetime"
	MarginStart              = "pvrrecord.marginstart"
	MarginEnd                = "pvrrecord.marginend"
	TimerNotifications       = "pvrrecord.timernotifications"
	HideDisabledTimers       = "pvrtimers.hidedisabledtimers"
	EPGDaysToDisplay         = "epg.daystodisplay"
	EPGHideNoInfoAvailable   = "epg.hidenoinfoavailable"
	ParentalEnabled          = "pvrparental.enabled"
	ParentalPin              = "pvrparental.pin"
	MenuIconPath             = "pvrmenu.iconpath"
)

// Names under which the UI callbacks are registered.
const (
	FillerMarginTimes       = "pvrmargintimes"
	ConditionSettingVisible = "pvrsettingvisible"
)

// TagPVR marks every PVR setting definition.
const TagPVR = "pvr"

var definitions = []registry.Setting{
	{ID: PreselectPlayingChannel, Type: registry.TypeBool, Default: false, Label: "Preselect playing channel in guide"},
	{ID: SyncChannelGroups, Type: registry.TypeBool, Default: true, Label: "Synchronise channel groups with backend"},
	{ID: BackendChannelOrder, Type: registry.TypeBool, Default: true, Label: "Use channel order from backend"},
	{
		ID:         UseBackendChannelNumbers,
		Type:       registry.TypeBool,
		Default:    false,
		Label:      "Use channel numbers from backend",
		Visibility: ConditionSettingVisible,
	},
	{
		ID:          ClientPriorities,
		Type:        registry.TypeString,
		Default:     "",
		Label:       "Client priorities",
		Description: "Comma separated client identifiers, most preferred first",
		Visibility:  ConditionSettingVisible,
	},
	{ID: SwitchToFullscreen, Type: registry.TypeBool, Default: true, Label: "Switch to full screen when playback starts"},
	{
		ID:      InstantRecordTime,
		Type:    registry.TypeInt,
		Default: 120,
		Label:   "Instant recording duration (minutes)",
		Minimum: registry.MinValue(1),
		Maximum: registry.MaxValue(720),
	},
	{
		ID:      DefaultPriority,
		Type:    registry.TypeInt,
		Default: 50,
		Label:   "Default recording priority",
		Minimum: registry.MinValue(0),
		Maximum: registry.MaxValue(100),
	},
	{
		ID:      DefaultLifetime,
		Type:    registry.TypeInt,
		Default: 99,
		Label:   "Default recording lifetime (days)",
		Minimum: registry.MinValue(1),
		Maximum: registry.MaxValue(365),
	},
	{
		ID:            MarginStart,
		Type:          registry.TypeInt,
		Default:       2,
		Label:         "Default time to record before scheduled start",
		Minimum:       registry.MinValue(0),
		Maximum:       registry.MaxValue(180),
		OptionsFiller: FillerMarginTimes,
	},
	{
		ID:            MarginEnd,
		Type:          registry.TypeInt,
		Default:       10,
		Label:         "Default time to record after scheduled end",
		Minimum:       registry.MinValue(0),
		Maximum:       registry.MaxValue(180),
		OptionsFiller: FillerMarginTimes,
	},
	{ID: TimerNotifications, Type: registry.TypeBool, Default: true, Label: "Show notification on timer changes"},
	{ID: HideDisabledTimers, Type: registry.TypeBool, Default: false, Label: "Hide disabled timers"},
	{
		ID:      EPGDaysToDisplay,
		Type:    registry.TypeInt,
		Default: 3,
		Label:   "Days to display in guide",
		Minimum: registry.MinValue(1),
		Maximum: registry.MaxValue(14),
	},
	{ID: EPGHideNoInfoAvailable, Type: registry.TypeBool, Default: true, Label: "Hide \"no information available\" entries"},
	{ID: ParentalEnabled, Type: registry.TypeBool, Default: false, Label: "Enable parental control"},
	{ID: ParentalPin, Type: registry.TypeString, Default: "", Label: "Parental control PIN"},
	{ID: MenuIconPath, Type: registry.TypeString, Default: "", Label: "Folder with channel icons"},
}

// IDs returns the identifiers of the PVR settings, in definition order.
func IDs() []string {
	ids := make([]string, len(definitions))
	for i, d := range definitions {
		ids[i] = d.ID
	}
	return ids
}

// RegisterDefinitions registers every PVR setting with reg.
func RegisterDefinitions(reg *registry.Registry) error {
	for _, d := range definitions {
		d.Tags = []string{TagPVR}
		if err := reg.Register(d); err != nil {
			return err
		}
	}
	return nil
}
