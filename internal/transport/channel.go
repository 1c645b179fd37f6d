package transport

import "strings"

// DefaultChannel is used when a network name cannot be resolved.
const DefaultChannel = 1

// ChannelResolver maps a network name to the shared radio channel.
type ChannelResolver interface {
	ResolveChannel(name string) int
}

// StaticResolver resolves from a fixed table.
type StaticResolver struct {
	Table    map[string]int
	Fallback int
}

// ResolveChannel returns the configured channel for name, or the fallback
// (DefaultChannel when unset) when the name is unknown or out of range.
func (r StaticResolver) ResolveChannel(name string) int {
	fallback := r.Fallback
	if fallback < 1 || fallback > 14 {
		fallback = DefaultChannel
	}
	if ch, ok := r.Table[strings.TrimSpace(name)]; ok && ch >= 1 && ch <= 14 {
		return ch
	}
	return fallback
}
