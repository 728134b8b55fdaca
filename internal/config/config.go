// Package config provides the configuration schema, loader, and file
// watcher for the voxwire voice chat client.
package config

// LogLevel controls log verbosity for the client.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// CaptureBackend selects the microphone capture implementation.
type CaptureBackend string

const (
	// BackendAuto tries miniaudio first and falls back to PortAudio.
	BackendAuto CaptureBackend = "auto"

	// BackendMiniaudio forces the miniaudio callback backend.
	BackendMiniaudio CaptureBackend = "miniaudio"

	// BackendPortAudio forces the PortAudio blocking-read backend.
	BackendPortAudio CaptureBackend = "portaudio"
)

// IsValid reports whether b is a recognised capture backend.
func (b CaptureBackend) IsValid() bool {
	switch b {
	case BackendAuto, BackendMiniaudio, BackendPortAudio:
		return true
	}
	return false
}

// Config is the root configuration structure for voxwire.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader];
// command-line flags override individual fields afterwards.
type Config struct {
	// ServerURL is the room server base URL (e.g. "https://chat.example.com").
	// http and https map to ws and wss when the room socket is dialed;
	// ws and wss are accepted as-is.
	ServerURL string `yaml:"server_url"`

	// Room is the room to join on startup. May be left empty and supplied
	// with the join command instead.
	Room string `yaml:"room"`

	// UserID identifies this participant in the room. When empty, a random
	// identifier is generated at startup.
	UserID string `yaml:"user_id"`

	// LogLevel controls verbosity. Empty means info.
	LogLevel LogLevel `yaml:"log_level"`

	Audio AudioConfig `yaml:"audio"`
	Debug DebugConfig `yaml:"debug"`
}

// AudioConfig holds capture settings.
type AudioConfig struct {
	// Backend selects the capture implementation. Empty means auto.
	Backend CaptureBackend `yaml:"backend"`

	// FrameSize is the number of samples per outgoing chunk. Zero means
	// the built-in default.
	FrameSize int `yaml:"frame_size"`
}

// DebugConfig holds the local debug listener settings.
type DebugConfig struct {
	// ListenAddr is the address of the debug HTTP listener serving
	// Prometheus metrics and health probes (e.g. "127.0.0.1:9090").
	// Empty disables the listener.
	ListenAddr string `yaml:"listen_addr"`
}
