// Package realtime tracks live duplex channels per recipient and fans messages out to them.
package realtime

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	// ErrRecipientUnreachable is returned by a channel that could not accept a message.
	ErrRecipientUnreachable = errors.New("recipient unreachable")
	// ErrChannelClosed is returned when sending on a channel that has already closed.
	ErrChannelClosed = errors.New("channel closed")
	// ErrRegistryClosed is returned by Join after Close.
	ErrRegistryClosed = errors.New("registry closed")
)

// Event names pushed to recipients.
const (
	EventNewAlert    = "new-alert"
	EventAlertUpdate = "alert-update"
)

// Message is the envelope written to a live channel.
type Message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Channel is one live bidirectional connection belonging to a recipient.
// Send must not block; Done is closed once the connection is gone.
type Channel interface {
	ID() string
	Send(Message) error
	Done() <-chan struct{}
	Close() error
}

// Registry maps recipient identities to their live channels.
type Registry struct {
	mu          sync.RWMutex
	byRecipient map[string]map[Channel]struct{}
	byChannel   map[Channel]string
	closed      bool
	stop        chan struct{}
	watchers    sync.WaitGroup
	logger      logrus.FieldLogger
}

// NewRegistry constructs an empty Registry.
func NewRegistry(logger logrus.FieldLogger) *Registry {
	return &Registry{
		byRecipient: make(map[string]map[Channel]struct{}),
		byChannel:   make(map[Channel]string),
		stop:        make(chan struct{}),
		logger:      logger,
	}
}

// Join registers ch under recipientID. The channel leaves automatically when it closes.
func (r *Registry) Join(recipientID string, ch Channel) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrRegistryClosed
	}
	_, known := r.byChannel[ch]
	if known {
		// Already watched; only the recipient mapping moves.
		r.removeLocked(ch)
	}
	set, ok := r.byRecipient[recipientID]
	if !ok {
		set = make(map[Channel]struct{})
		r.byRecipient[recipientID] = set
	}
	set[ch] = struct{}{}
	r.byChannel[ch] = recipientID
	if known {
		r.mu.Unlock()
		return nil
	}
	r.watchers.Add(1)
	r.mu.Unlock()

	liveSessions.Inc()
	go r.watch(ch)
	return nil
}

func (r *Registry) watch(ch Channel) {
	defer r.watchers.Done()
	select {
	case <-ch.Done():
		r.Leave(ch)
	case <-r.stop:
	}
}

// Leave removes ch from the registry. Unknown channels are ignored.
func (r *Registry) Leave(ch Channel) {
	r.mu.Lock()
	removed := r.removeLocked(ch)
	r.mu.Unlock()
	if removed {
		liveSessions.Dec()
	}
}

func (r *Registry) removeLocked(ch Channel) bool {
	recipientID, ok := r.byChannel[ch]
	if !ok {
		return false
	}
	delete(r.byChannel, ch)
	if set, ok := r.byRecipient[recipientID]; ok {
		delete(set, ch)
		if len(set) == 0 {
			delete(r.byRecipient, recipientID)
		}
	}
	return true
}

// SendTo pushes msg to every live channel of recipientID and returns how many
// channels were attempted. A failing channel never affects the others.
func (r *Registry) SendTo(recipientID string, msg Message) int {
	r.mu.RLock()
	set := r.byRecipient[recipientID]
	targets := make([]Channel, 0, len(set))
	for ch := range set {
		targets = append(targets, ch)
	}
	r.mu.RUnlock()

	for _, ch := range targets {
		if err := ch.Send(msg); err != nil {
			recordSendFailure(msg.Event)
			r.logger.WithFields(logrus.Fields{
				"recipient_id": recipientID,
				"channel_id":   ch.ID(),
				"event":        msg.Event,
			}).WithError(err).Warn("realtime send failed")
			continue
		}
		recordSent(msg.Event)
	}
	return len(targets)
}

// Broadcast sends msg to every recipient in recipientIDs and returns the total
// number of channels attempted.
func (r *Registry) Broadcast(recipientIDs []string, msg Message) int {
	attempted := 0
	for _, recipientID := range recipientIDs {
		attempted += r.SendTo(recipientID, msg)
	}
	return attempted
}

// Sessions returns the number of live channels for recipientID.
func (r *Registry) Sessions(recipientID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byRecipient[recipientID])
}

// Len returns the total number of live channels.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byChannel)
}

// Close closes every channel and stops accepting new ones.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.stop)
	channels := make([]Channel, 0, len(r.byChannel))
	for ch := range r.byChannel {
		channels = append(channels, ch)
	}
	r.byChannel = make(map[Channel]string)
	r.byRecipient = make(map[string]map[Channel]struct{})
	r.mu.Unlock()

	for _, ch := range channels {
		if err := ch.Close(); err != nil {
			r.logger.WithField("channel_id", ch.ID()).WithError(err).Debug("close channel")
		}
		liveSessions.Dec()
	}
	r.watchers.Wait()
}
