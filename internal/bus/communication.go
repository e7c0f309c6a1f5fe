package bus

import (
	"context"
	"sync"

	"github.com/CIRISAI/CIRISAgent-sub001/internal/cerr"
	"github.com/CIRISAI/CIRISAgent-sub001/internal/logging"
	"github.com/CIRISAI/CIRISAgent-sub001/internal/model"
	"github.com/CIRISAI/CIRISAgent-sub001/internal/registry"
)

// CommunicationBackend is the adapter-side interface a Communication
// provider must implement (maps to the Adapter Control Interface's
// send(channel_id, message), §6).
type CommunicationBackend interface {
	Send(ctx context.Context, channelID, message string) error
}

// CommunicationBus preserves per-channel FIFO ordering (§4.2, §5) by
// serializing sends that target the same channel through a per-channel
// mutex, while letting sends to different channels proceed concurrently.
type CommunicationBus struct {
	base
	mu       sync.Mutex
	channels map[string]*sync.Mutex
}

// NewCommunicationBus constructs the outbound-message bus.
func NewCommunicationBus(reg *registry.Registry, logger logging.Logger) *CommunicationBus {
	return &CommunicationBus{
		base:     newBase("communication", reg, logger, DefaultRetryPolicy()),
		channels: make(map[string]*sync.Mutex),
	}
}

func (c *CommunicationBus) channelLock(channelID string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.channels[channelID]
	if !ok {
		l = &sync.Mutex{}
		c.channels[channelID] = l
	}
	return l
}

// Send dispatches an outbound message for the given thought, preserving
// FIFO order per channel.
func (c *CommunicationBus) Send(ctx context.Context, thought *model.Thought, channelID, message string) error {
	ctx = stampSpan(ctx, thought)
	lock := c.channelLock(channelID)
	lock.Lock()
	defer lock.Unlock()

	return c.dispatch(ctx, func(instance interface{}) error {
		backend, ok := instance.(CommunicationBackend)
		if !ok {
			return cerr.New("CommunicationBus.Send", cerr.KindValidation, "provider does not implement CommunicationBackend")
		}
		return backend.Send(ctx, channelID, message)
	})
}
