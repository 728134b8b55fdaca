package config

// ConfigDiff describes what changed between two loaded configs. The log
// level is the only setting a running client can apply in place; every
// other change is reported so the user knows what a restart would pick up.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// RestartNeeded lists changed settings that only take effect on the
	// next start, as dotted config paths.
	RestartNeeded []string
}

// Empty reports whether the diff carries no semantic change. A reload can
// be content-identical in effect, e.g. when only comments were edited.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && len(d.RestartNeeded) == 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.LogLevel != new.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.LogLevel
	}

	restart := func(path string, changed bool) {
		if changed {
			d.RestartNeeded = append(d.RestartNeeded, path)
		}
	}
	restart("server_url", old.ServerURL != new.ServerURL)
	restart("room", old.Room != new.Room)
	restart("user_id", old.UserID != new.UserID)
	restart("audio.backend", old.Audio.Backend != new.Audio.Backend)
	restart("audio.frame_size", old.Audio.FrameSize != new.Audio.FrameSize)
	restart("debug.listen_addr", old.Debug.ListenAddr != new.Debug.ListenAddr)

	return d
}
