package imposter

import (
	"fmt"
	"strings"
)

// Protocol identifies the wire protocol an imposter speaks.
type Protocol string

// Supported protocols. The set is closed; ParseProtocol rejects anything else.
const (
	ProtocolTCP    Protocol = "tcp"
	ProtocolHTTP   Protocol = "http"
	ProtocolHTTPS  Protocol = "https"
	ProtocolSMTP   Protocol = "smtp"
	ProtocolCustom Protocol = "custom"
)

// protocolAliases maps accepted alternate spellings onto a Protocol.
var protocolAliases = map[string]Protocol{
	"foo": ProtocolCustom,
}

// Protocols returns every supported protocol in a stable order.
func Protocols() []Protocol {
	return []Protocol{ProtocolTCP, ProtocolHTTP, ProtocolHTTPS, ProtocolSMTP, ProtocolCustom}
}

// String returns the string representation of the protocol.
func (p Protocol) String() string {
	return string(p)
}

// Valid reports whether p is one of the supported protocols.
func (p Protocol) Valid() bool {
	for _, known := range Protocols() {
		if p == known {
			return true
		}
	}
	return false
}

// ParseProtocol resolves a protocol name. Matching is case-insensitive.
// Unknown names return ErrUnsupportedProtocol.
func ParseProtocol(name string) (Protocol, error) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	if alias, ok := protocolAliases[normalized]; ok {
		return alias, nil
	}
	p := Protocol(normalized)
	if !p.Valid() {
		if normalized == "" {
			return "", fmt.Errorf("%w: protocol is required", ErrUnsupportedProtocol)
		}
		return "", fmt.Errorf("%w: %q", ErrUnsupportedProtocol, name)
	}
	return p, nil
}
