package chathub

import (
	"context"
	"strangerchat/backend/internal/models"

	"github.com/charmbracelet/log"
)

const eventBuffer = 256

// ManagerService is the local hub: it routes events to the clients connected
// to this process. Only the Run goroutine touches the client table.
type ManagerService struct {
	clients map[string]map[Client]struct{}

	RegisterCh   chan Client
	UnregisterCh chan Client

	events  chan models.Event
	countCh chan countRequest
	done    chan struct{}
}

type countRequest struct {
	actorID string
	reply   chan int
}

func NewManagerService() *ManagerService {
	return &ManagerService{
		clients:      make(map[string]map[Client]struct{}),
		RegisterCh:   make(chan Client),
		UnregisterCh: make(chan Client),
		events:       make(chan models.Event, eventBuffer),
		countCh:      make(chan countRequest),
		done:         make(chan struct{}),
	}
}

// Run is the hub loop. On return every remaining client is closed.
func (m *ManagerService) Run(ctx context.Context) {
	log.Info("Hub started")
	defer close(m.done)

	for {
		select {
		case <-ctx.Done():
			for _, set := range m.clients {
				for c := range set {
					c.Close()
				}
			}
			m.clients = make(map[string]map[Client]struct{})
			log.Info("Hub stopped")
			return

		case c := <-m.RegisterCh:
			set, ok := m.clients[c.GetActorID()]
			if !ok {
				set = make(map[Client]struct{})
				m.clients[c.GetActorID()] = set
			}
			set[c] = struct{}{}
			log.Debugf("Client registered for %s (%d open)", c.GetActorID(), len(set))

		case c := <-m.UnregisterCh:
			m.drop(c)

		case req := <-m.countCh:
			req.reply <- len(m.clients[req.actorID])

		case ev := <-m.events:
			for c := range m.clients[ev.ActorID] {
				select {
				case c.GetSendChannel() <- ev:
				default:
					log.Warnf("Client of %s is not keeping up; dropping it", ev.ActorID)
					m.drop(c)
				}
			}
		}
	}
}

// drop removes and closes c if it is still registered.
func (m *ManagerService) drop(c Client) {
	set, ok := m.clients[c.GetActorID()]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(m.clients, c.GetActorID())
	}
	c.Close()
}

// Register adds a client; it returns false once the hub has stopped.
func (m *ManagerService) Register(c Client) bool {
	select {
	case m.RegisterCh <- c:
		return true
	case <-m.done:
		return false
	}
}

// Unregister removes a client. It never blocks after the hub stopped.
func (m *ManagerService) Unregister(c Client) {
	select {
	case m.UnregisterCh <- c:
	case <-m.done:
	}
}

// Connected returns how many clients of the actor are attached to this hub.
func (m *ManagerService) Connected(actorID string) int {
	req := countRequest{actorID: actorID, reply: make(chan int, 1)}
	select {
	case m.countCh <- req:
		return <-req.reply
	case <-m.done:
		return 0
	}
}

// Notify queues ev for local delivery.
func (m *ManagerService) Notify(ctx context.Context, ev models.Event) error {
	select {
	case m.events <- ev:
		return nil
	case <-m.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
