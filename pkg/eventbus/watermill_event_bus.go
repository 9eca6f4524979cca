package eventbus

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/skillweave/skillweave/pkg/events"
)

// WatermillEventBus routes typed events over any watermill pub/sub pair.
// Session-scoped handlers registered via HandleSession only see messages
// tagged with their session id, so concurrent divergent sessions do not
// observe each other's traffic.
type WatermillEventBus struct {
	publisher       message.Publisher
	subscriber      message.Subscriber
	subscriptions   map[events.EventType]EventHandler
	sessionMu       sync.RWMutex
	sessionHandlers map[string]EventHandler
}

func NewWatermillEventBus(pub message.Publisher, sub message.Subscriber) *WatermillEventBus {
	return &WatermillEventBus{
		publisher:       pub,
		subscriber:      sub,
		subscriptions:   make(map[events.EventType]EventHandler),
		sessionHandlers: make(map[string]EventHandler),
	}
}

func (eb *WatermillEventBus) GenerateID() string {
	return watermill.NewULID()
}

func (eb *WatermillEventBus) Publish(ctx context.Context, key string, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := message.NewMessage("msg-"+eb.GenerateID(), payload)
	msg.Metadata.Set(events.EventMetadataKey, key)
	msg.Metadata.Set(events.EventTypeMetadataKey, string(event.GetType()))

	if scoped, ok := event.(interface{ SessionKey() string }); ok {
		msg.Metadata.Set(events.SessionMetadataKey, scoped.SessionKey())
	}

	return eb.publisher.Publish(topicFor(event.GetType()), msg)
}

// topicFor keeps work requests on their own topic so workers consume them
// through a shared consumer group while lifecycle events fan out.
func topicFor(eventType events.EventType) string {
	switch eventType {
	case events.RunStartRequestedEvent, events.SessionStartRequestedEvent:
		return events.RunRequestTopic
	default:
		return events.Topic
	}
}

func (eb *WatermillEventBus) Subscribe(ctx context.Context) error {
	for _, topic := range []string{events.Topic, events.RunRequestTopic} {
		messages, err := eb.subscriber.Subscribe(ctx, topic)
		if err != nil {
			return err
		}

		go eb.consume(ctx, messages)
	}

	return nil
}

func (eb *WatermillEventBus) consume(ctx context.Context, messages <-chan *message.Message) {
	for msg := range messages {
		eventType := events.EventType(msg.Metadata.Get(events.EventTypeMetadataKey))

		event := decodeEvent(eventType)
		if event == nil {
			msg.Nack()

			continue
		}

		if err := json.Unmarshal(msg.Payload, event); err != nil {
			msg.Nack()

			continue
		}

		if sessionID := msg.Metadata.Get(events.SessionMetadataKey); sessionID != "" {
			eb.sessionMu.RLock()
			handler, ok := eb.sessionHandlers[sessionID]
			eb.sessionMu.RUnlock()

			if ok {
				if err := handler(ctx, event); err != nil {
					msg.Nack()

					continue
				}
			}
		}

		handler, exists := eb.subscriptions[eventType]
		if !exists {
			msg.Ack()

			continue
		}

		if err := handler(ctx, event); err != nil {
			msg.Nack()

			continue
		}

		msg.Ack()
	}
}

func decodeEvent(eventType events.EventType) any {
	switch eventType {
	case events.RunStartRequestedEvent:
		return &events.RunStartRequested{}
	case events.RunStartedEvent:
		return &events.RunStarted{}
	case events.RunCompletedEvent:
		return &events.RunCompleted{}
	case events.RunFailedEvent:
		return &events.RunFailed{}
	case events.RunAbortedEvent:
		return &events.RunAborted{}
	case events.NodeDispatchedEvent:
		return &events.NodeDispatched{}
	case events.NodeCompletedEvent:
		return &events.NodeCompleted{}
	case events.NodeFailedEvent:
		return &events.NodeFailed{}
	case events.NodeSkippedEvent:
		return &events.NodeSkipped{}
	case events.SessionStartRequestedEvent:
		return &events.SessionStartRequested{}
	case events.SessionLevelCompletedEvent:
		return &events.SessionLevelCompleted{}
	case events.SessionConvergedEvent:
		return &events.SessionConverged{}
	default:
		return nil
	}
}

func (eb *WatermillEventBus) Handle(eventType events.EventType, handler EventHandler) error {
	eb.subscriptions[eventType] = handler

	return nil
}

// HandleSession registers a handler receiving only events tagged with the
// given session id.
func (eb *WatermillEventBus) HandleSession(sessionID string, handler EventHandler) {
	eb.sessionMu.Lock()
	defer eb.sessionMu.Unlock()

	eb.sessionHandlers[sessionID] = handler
}

// DropSession unregisters a session-scoped handler.
func (eb *WatermillEventBus) DropSession(sessionID string) {
	eb.sessionMu.Lock()
	defer eb.sessionMu.Unlock()

	delete(eb.sessionHandlers, sessionID)
}

func (eb *WatermillEventBus) Close() error {
	err := eb.publisher.Close()
	if err != nil {
		return err
	}

	return eb.subscriber.Close()
}
