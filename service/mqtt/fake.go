package mqtt

import (
	"sync"

	"github.com/dnmnsmith/Grbl-Esp32/model"
)

// Fake is a test double that records published channel states.
type Fake struct {
	mutex sync.Mutex

	// PublishError, if set, will be returned by PublishChannelActual.
	PublishError error

	published []model.ChannelActual
	closed    bool
}

// NewFake creates an empty fake publisher.
func NewFake() *Fake {
	return &Fake{}
}

// PublishChannelActual records the given state.
func (f *Fake) PublishChannelActual(actual model.ChannelActual) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	f.published = append(f.published, actual)
	return nil
}

// Close marks the publisher as closed.
func (f *Fake) Close() error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.closed = true
	return nil
}

// Published returns a copy of all recorded states.
func (f *Fake) Published() []model.ChannelActual {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	result := make([]model.ChannelActual, len(f.published))
	copy(result, f.published)
	return result
}

// Closed returns true when Close was called.
func (f *Fake) Closed() bool {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.closed
}
