package channel_test

import (
	"context"
	"errors"
	"testing"

	"github.com/memohai/playbot/internal/channel"
)

const testChannelType = channel.ChannelType("test")

type senderOnlyAdapter struct{}

func (a *senderOnlyAdapter) Type() channel.ChannelType { return testChannelType }

func (a *senderOnlyAdapter) Descriptor() channel.Descriptor {
	return channel.Descriptor{Type: testChannelType, DisplayName: "Test"}
}

func (a *senderOnlyAdapter) Send(ctx context.Context, cfg channel.ChannelConfig, msg channel.OutboundMessage) (string, error) {
	return "1", nil
}

func TestRegistryRegisterNormalizesType(t *testing.T) {
	t.Parallel()

	reg := channel.NewRegistry()
	reg.MustRegister(&senderOnlyAdapter{})
	if _, ok := reg.Get(channel.ChannelType(" TEST ")); !ok {
		t.Fatal("lookup should be case and space insensitive")
	}
	if err := reg.Register(&senderOnlyAdapter{}); err == nil {
		t.Fatal("duplicate registration should fail")
	}
	if err := reg.Register(nil); err == nil {
		t.Fatal("nil adapter should fail")
	}
}

func TestRegistryCapabilityLookups(t *testing.T) {
	t.Parallel()

	reg := channel.NewRegistry()
	reg.MustRegister(&senderOnlyAdapter{})
	if s, err := reg.Sender(testChannelType); err != nil || s == nil {
		t.Fatalf("Sender(test) = (%v, %v)", s, err)
	}
	if _, err := reg.Reactor(testChannelType); !errors.Is(err, channel.ErrUnsupported) {
		t.Fatalf("Reactor(test) error = %v, want ErrUnsupported", err)
	}
	if _, err := reg.Receiver(testChannelType); !errors.Is(err, channel.ErrUnsupported) {
		t.Fatalf("Receiver(test) error = %v, want ErrUnsupported", err)
	}
	if _, err := reg.Sender(channel.ChannelType("feishu")); !errors.Is(err, channel.ErrUnknownChannel) {
		t.Fatalf("Sender(feishu) error = %v, want ErrUnknownChannel", err)
	}
}

func TestRegistryDescriptorLookups(t *testing.T) {
	t.Parallel()

	reg := channel.NewRegistry()
	reg.MustRegister(&senderOnlyAdapter{})
	if _, ok := reg.GetCapabilities(testChannelType); !ok {
		t.Fatal("capabilities should resolve for a registered type")
	}
	if _, ok := reg.GetOutboundPolicy(channel.ChannelType("unknown")); ok {
		t.Fatal("unknown type should not resolve")
	}
}
