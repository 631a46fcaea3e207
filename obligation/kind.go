/*
kind.go - Obligation kinds, channels, and the kind registry

PURPOSE:
  An obligation kind decides which payment channels an entry has. Salaries
  carry a base channel plus bonus channels, expenses carry only a base
  channel. Domain packages define kinds and register them; the engine
  only ever asks "does this kind support this channel?".

HOW IT WORKS:
  1. Domain packages define Kind implementations
  2. They register them from init()
  3. Stores and the factory turn stored kind IDs back into kinds

USAGE:
  // In salary/kind.go
  func init() {
      obligation.RegisterKind(KindStandard)
      obligation.RegisterKind(KindSales)
  }

  kind := obligation.LookupKind("salary_sales")
  obligation.Supports(kind, obligation.ChannelIncentive) // true

SEE ALSO:
  - salary/kind.go, expense/kind.go: Concrete kinds
  - ledger.go: Rejects payments on unsupported channels
*/
package obligation

import (
	"fmt"
	"slices"
	"sort"
	"sync"
)

// =============================================================================
// CHANNELS
// =============================================================================

// Channel is one independently-paid component of an entry.
type Channel string

const (
	ChannelBase      Channel = "base"
	ChannelIncentive Channel = "incentive"
	ChannelReward    Channel = "reward"
)

// AllChannels lists channels in display and tie-break order.
var AllChannels = []Channel{ChannelBase, ChannelIncentive, ChannelReward}

// Valid reports whether c is a known channel name.
func (c Channel) Valid() bool {
	return slices.Contains(AllChannels, c)
}

// Order returns the channel's position in AllChannels.
func (c Channel) Order() int {
	return slices.Index(AllChannels, c)
}

// ParseChannel converts a client-supplied name.
func ParseChannel(s string) (Channel, error) {
	c := Channel(s)
	if !c.Valid() {
		return "", &ValidationError{Field: "channel", Message: fmt.Sprintf("unknown channel %q", s)}
	}
	return c, nil
}

// =============================================================================
// KIND
// =============================================================================

// Kind is implemented by domain packages.
type Kind interface {
	KindID() string
	// Channels lists the channels an entry of this kind can carry,
	// always including ChannelBase.
	Channels() []Channel
}

// Supports reports whether entries of kind k can carry channel c.
func Supports(k Kind, c Channel) bool {
	if k == nil {
		return false
	}
	return slices.Contains(k.Channels(), c)
}

// =============================================================================
// KIND REGISTRY
// =============================================================================

var (
	kindRegistry = make(map[string]Kind)
	registryMu   sync.RWMutex
)

// RegisterKind adds a kind to the global registry.
// Call this from domain package init() functions.
func RegisterKind(k Kind) {
	registryMu.Lock()
	defer registryMu.Unlock()
	kindRegistry[k.KindID()] = k
}

// LookupKind finds a registered kind by ID.
// Returns nil if not found.
func LookupKind(id string) Kind {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return kindRegistry[id]
}

// MustLookupKind finds a registered kind or panics.
func MustLookupKind(id string) Kind {
	k := LookupKind(id)
	if k == nil {
		panic(fmt.Sprintf("obligation kind not registered: %s", id))
	}
	return k
}

// ListKinds returns all registered kinds ordered by ID.
func ListKinds() []Kind {
	registryMu.RLock()
	defer registryMu.RUnlock()
	result := make([]Kind, 0, len(kindRegistry))
	for _, k := range kindRegistry {
		result = append(result, k)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].KindID() < result[j].KindID() })
	return result
}

// UnregisteredKind stands in for a stored kind ID whose domain package
// isn't linked into the binary. It only supports the base channel.
type UnregisteredKind string

func (k UnregisteredKind) KindID() string     { return string(k) }
func (k UnregisteredKind) Channels() []Channel { return []Channel{ChannelBase} }

// KindOrUnregistered looks up a kind, falling back to UnregisteredKind.
// Use this when reading stored rows.
func KindOrUnregistered(id string) Kind {
	if k := LookupKind(id); k != nil {
		return k
	}
	return UnregisteredKind(id)
}
