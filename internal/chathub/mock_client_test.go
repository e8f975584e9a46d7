package chathub_test

import (
	"strangerchat/backend/internal/models"
	"sync"
	"sync/atomic"
)

type MockClient struct {
	actorID     string
	RecvChannel chan models.Event
	closed      atomic.Bool
	once        sync.Once
}

func newMockClient(actorID string, buffer int) *MockClient {
	return &MockClient{
		actorID:     actorID,
		RecvChannel: make(chan models.Event, buffer),
	}
}

func (c *MockClient) GetActorID() string {
	return c.actorID
}

func (c *MockClient) GetSendChannel() chan<- models.Event {
	return c.RecvChannel
}

func (c *MockClient) Run() {
	// Not needed for testing
}

func (c *MockClient) Close() {
	c.once.Do(func() { c.closed.Store(true) })
}

func (c *MockClient) IsClosed() bool {
	return c.closed.Load()
}
