package structs

import "strings"

// Version implements the version message.
type Version struct {
	MessageType  MessageType `json:"msgtype"`
	Station      string      `json:"station"`
	Firmware     string      `json:"firmware"`
	Package      string      `json:"package"`
	Model        string      `json:"model"`
	Protocol     int         `json:"protocol"`
	Features     string      `json:"features"`
	Capabilities []string    `json:"capabilities,omitempty"`
}

// Kind implements Message.
func (Version) Kind() Kind { return VersionKind }

// HasCapability returns true when the given token is advertised either in
// the whitespace-delimited features string or in the capabilities list.
func (v Version) HasCapability(token string) bool {
	for _, f := range strings.Fields(v.Features) {
		if f == token {
			return true
		}
	}
	for _, c := range v.Capabilities {
		if c == token {
			return true
		}
	}
	return false
}
