// Package config loads PVR settings into the settings registry.
//
// Values come from two sources, higher overriding lower:
//
//	┌─────────────────────────────┐
//	│  2. Environment Variables   │  ← PVRSETTINGS_*
//	├─────────────────────────────┤
//	│  1. Settings File           │  ← ~/.config/pvrsettings/settings.toml
//	└─────────────────────────────┘
//
// Settings that neither source mentions hold their registered default.
//
// # Sub-packages
//
//   - registry: Typed setting definitions, values and subscriptions
//   - notify: Change notification and observer pattern
//   - loader: TOML file and environment variable loading
//   - watcher: File watching for live reload
//
// # Configuration Files
//
// Tables map onto setting identifiers; the clients array is handed to the
// client manager unchanged:
//
//	# ~/.config/pvrsettings/settings.toml
//	[pvrrecord]
//	marginstart = 5
//	marginend = 10
//
//	[pvrparental]
//	enabled = true
//	pin = "1234"
//
//	[[clients]]
//	name = "tvheadend"
//	enabled = true
//	priority = 10
//
// # Basic Usage
//
//	reg := registry.New()
//	settings.RegisterDefinitions(reg)
//
//	mgr := config.NewManager(reg, config.WithWatcher(true))
//	clients, err := mgr.Load(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer mgr.Close()
//	_ = mgr.Start(ctx)
package config
