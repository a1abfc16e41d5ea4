package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; provider and
// transport changes require a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	RelayChanged bool
	NewRelay     RelayConfig
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Relay != new.Relay {
		d.RelayChanged = true
		d.NewRelay = new.Relay
	}

	return d
}

// HasChanges reports whether the diff contains any hot-reloadable change.
func (d ConfigDiff) HasChanges() bool {
	return d.LogLevelChanged || d.RelayChanged
}
