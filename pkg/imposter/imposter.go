package imposter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/getmockd/imposterd/pkg/requestlog"
)

// State is the lifecycle state of an imposter.
type State string

// Lifecycle states.
const (
	// StateStarting means the port is reserved and the adapter is still
	// acquiring the listener.
	StateStarting State = "starting"

	// StateRunning means the listener is live.
	StateRunning State = "running"

	// StateStopped means teardown has completed and the entry is being removed.
	StateStopped State = "stopped"
)

// String returns the string representation of the state.
func (s State) String() string {
	return string(s)
}

// Server is the live listener behind an imposter, as produced by a
// protocol adapter.
type Server interface {
	// Port returns the port the listener is bound to.
	Port() int

	// Stop closes the listener and every open connection and returns once
	// the port has been released.
	Stop(ctx context.Context) error
}

// Recorder is implemented by servers that capture received requests.
type Recorder interface {
	Requests() requestlog.Store
}

// Imposter is a running simulated service. It is immutable once built; the
// registry tracks its lifecycle state separately.
type Imposter struct {
	protocol  Protocol
	config    *Config
	flags     Flags
	server    Server
	createdAt time.Time
}

// New wraps a started server. The configuration is rebound to the port the
// server actually holds, which matters when the payload omitted one.
func New(p Protocol, cfg *Config, flags Flags, server Server) *Imposter {
	if cfg.Port != server.Port() {
		cfg = cfg.WithPort(server.Port())
	}
	return &Imposter{
		protocol:  p,
		config:    cfg,
		flags:     flags,
		server:    server,
		createdAt: time.Now(),
	}
}

// Port returns the imposter's port, which is also its identity.
func (i *Imposter) Port() int { return i.server.Port() }

// Protocol returns the imposter's protocol.
func (i *Imposter) Protocol() Protocol { return i.protocol }

// Name returns the optional display name from the configuration.
func (i *Imposter) Name() string { return i.config.Name }

// Config returns the configuration the imposter was created from.
func (i *Imposter) Config() *Config { return i.config }

// Flags returns the policy flags inherited at creation.
func (i *Imposter) Flags() Flags { return i.flags }

// CreatedAt returns when the imposter was built.
func (i *Imposter) CreatedAt() time.Time { return i.createdAt }

// Stop tears down the underlying listener.
func (i *Imposter) Stop(ctx context.Context) error {
	if err := i.server.Stop(ctx); err != nil {
		return fmt.Errorf("stop %s imposter on port %d: %w", i.protocol, i.Port(), err)
	}
	return nil
}

// Requests returns the recorded requests, or nil when the server does not
// record.
func (i *Imposter) Requests() requestlog.Store {
	if rec, ok := i.server.(Recorder); ok {
		return rec.Requests()
	}
	return nil
}

// DescribeOptions controls what Describe includes.
type DescribeOptions struct {
	// Replayable drops runtime information so the output can be submitted
	// again as a configuration.
	Replayable bool
}

// Describe builds the external representation of the imposter.
func (i *Imposter) Describe(state State, opts DescribeOptions) *Descriptor {
	d := &Descriptor{
		Protocol: i.protocol,
		Port:     i.Port(),
		Name:     i.config.Name,
		config:   i.config,
	}
	if opts.Replayable {
		return d
	}

	flags := i.flags
	d.State = state
	d.Policy = &flags
	d.Links = &Links{Self: Link{Href: fmt.Sprintf("/imposters/%d", d.Port)}}

	if store := i.Requests(); store != nil {
		entries := store.List()
		count := len(entries)
		d.NumberOfRequests = &count
		d.Requests = entries
	}
	return d
}

// Descriptor is the JSON view of an imposter returned by the management API.
type Descriptor struct {
	Protocol         Protocol            `json:"protocol"`
	Port             int                 `json:"port"`
	Name             string              `json:"name,omitempty"`
	State            State               `json:"runtimeState,omitempty"`
	Policy           *Flags              `json:"policy,omitempty"`
	NumberOfRequests *int                `json:"numberOfRequests,omitempty"`
	Requests         []*requestlog.Entry `json:"requests,omitempty"`
	Links            *Links              `json:"_links,omitempty"`

	config *Config
}

// Links holds hypermedia references.
type Links struct {
	Self Link `json:"self"`
}

// Link is a single hypermedia reference.
type Link struct {
	Href string `json:"href"`
}

// MarshalJSON merges the protocol-specific configuration members with the
// descriptor fields. Descriptor fields win on collision.
func (d *Descriptor) MarshalJSON() ([]byte, error) {
	type plain Descriptor
	head, err := json.Marshal((*plain)(d))
	if err != nil {
		return nil, err
	}
	if d.config == nil || len(d.config.Fields) == 0 {
		return head, nil
	}

	var merged map[string]json.RawMessage
	if err := json.Unmarshal(head, &merged); err != nil {
		return nil, err
	}
	for key, raw := range d.config.Fields {
		if _, taken := merged[key]; !taken {
			merged[key] = raw
		}
	}
	return json.Marshal(merged)
}
