package capture

import (
	"fmt"
	"strings"
)

// AudioSource selects how a recording session acquires audio
type AudioSource int

const (
	// SourceMicrophone captures the local microphone
	SourceMicrophone AudioSource = iota
	// SourceSystem captures shared system or tab audio through display capture
	SourceSystem
)

func (s AudioSource) String() string {
	switch s {
	case SourceMicrophone:
		return "microphone"
	case SourceSystem:
		return "system"
	default:
		return fmt.Sprintf("AudioSource(%d)", int(s))
	}
}

// ParseAudioSource parses "microphone"/"mic" or "system"/"tab".
// An empty string selects the microphone.
func ParseAudioSource(s string) (AudioSource, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "microphone", "mic":
		return SourceMicrophone, nil
	case "system", "tab":
		return SourceSystem, nil
	default:
		return SourceMicrophone, fmt.Errorf("unknown audio source %q", s)
	}
}
