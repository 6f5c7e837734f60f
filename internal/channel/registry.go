package channel

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

var (
	// ErrUnknownChannel is returned for a channel type with no registered adapter.
	ErrUnknownChannel = errors.New("unknown channel type")
	// ErrUnsupported is returned when an adapter lacks the requested capability.
	ErrUnsupported = errors.New("channel does not support the operation")
)

// Registry maps channel types to adapters. Adapters are registered at startup
// and looked up on every send, reaction and connect.
type Registry struct {
	mu       sync.RWMutex
	adapters map[ChannelType]Adapter
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{adapters: map[ChannelType]Adapter{}}
}

// Register adds an adapter. Types are case-insensitive and must be unique.
func (r *Registry) Register(adapter Adapter) error {
	if adapter == nil {
		return fmt.Errorf("adapter is nil")
	}
	ct := normalizeChannelType(adapter.Type())
	if ct == "" {
		return fmt.Errorf("channel type is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.adapters[ct]; exists {
		return fmt.Errorf("channel type already registered: %s", ct)
	}
	r.adapters[ct] = adapter
	return nil
}

// MustRegister calls Register and panics on error.
func (r *Registry) MustRegister(adapter Adapter) {
	if err := r.Register(adapter); err != nil {
		panic(err)
	}
}

// Get returns the adapter for the given channel type.
func (r *Registry) Get(channelType ChannelType) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	adapter, ok := r.adapters[normalizeChannelType(channelType)]
	return adapter, ok
}

// GetCapabilities returns the capability matrix for the given channel type.
func (r *Registry) GetCapabilities(channelType ChannelType) (ChannelCapabilities, bool) {
	adapter, ok := r.Get(channelType)
	if !ok {
		return ChannelCapabilities{}, false
	}
	return adapter.Descriptor().Capabilities, true
}

// GetOutboundPolicy returns the outbound policy for the given channel type.
func (r *Registry) GetOutboundPolicy(channelType ChannelType) (OutboundPolicy, bool) {
	adapter, ok := r.Get(channelType)
	if !ok {
		return OutboundPolicy{}, false
	}
	return adapter.Descriptor().OutboundPolicy, true
}

// Sender returns the adapter's Sender.
func (r *Registry) Sender(channelType ChannelType) (Sender, error) {
	return lookup[Sender](r, channelType, "send")
}

// Reactor returns the adapter's Reactor.
func (r *Registry) Reactor(channelType ChannelType) (Reactor, error) {
	return lookup[Reactor](r, channelType, "react")
}

// Receiver returns the adapter's Receiver.
func (r *Registry) Receiver(channelType ChannelType) (Receiver, error) {
	return lookup[Receiver](r, channelType, "receive")
}

func lookup[T any](r *Registry, channelType ChannelType, op string) (T, error) {
	var zero T
	adapter, ok := r.Get(channelType)
	if !ok {
		return zero, fmt.Errorf("%w: %s", ErrUnknownChannel, channelType)
	}
	impl, ok := adapter.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s cannot %s", ErrUnsupported, channelType, op)
	}
	return impl, nil
}

func normalizeChannelType(ct ChannelType) ChannelType {
	return ChannelType(strings.TrimSpace(strings.ToLower(ct.String())))
}
