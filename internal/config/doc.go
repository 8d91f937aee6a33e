// Package config owns the settings document and timing baseline.
// Settings are merged from defaults, SWLC_* environment overrides, and
// an optional local_config.json; the on-disk document may carry keys
// belonging to other parts of the application, which survive a save
// untouched.
package config
