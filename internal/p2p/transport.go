package p2p

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/golang/glog"
	pubsub "github.com/libp2p/go-libp2p-pubsub"

	"glen/internal/events"
	"glen/internal/models"
	"glen/internal/storage"
	"glen/internal/utils"
)

// Item is one delivered transport unit: either a decoded control-plane event
// or a decoded chat message, never both.
type Item struct {
	Sender    string
	Timestamp int64
	Event     *events.MetaEvent
	Payload   events.Payload
	Message   *models.Message
}

// Subscription delivers decoded items from one topic through a bounded
// channel. Malformed or oversized payloads are dropped at this boundary with
// a warning; the stream keeps flowing.
type Subscription struct {
	topic  *pubsub.Topic
	sub    *pubsub.Subscription
	items  chan Item
	cancel context.CancelFunc
}

// Items is the delivery channel. It closes when the subscription stops.
func (s *Subscription) Items() <-chan Item { return s.items }

// Next blocks for the next item, honoring ctx cancellation.
func (s *Subscription) Next(ctx context.Context) (*Item, error) {
	select {
	case item, ok := <-s.items:
		if !ok {
			return nil, ErrSubscriptionClosed
		}
		return &item, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Stop cancels the reader and releases the topic.
func (s *Subscription) Stop() {
	s.cancel()
	s.sub.Cancel()
}

const subscriptionBuffer = 256

// SubscribeMeta joins a community's meta topic and starts decoding its
// control-plane events.
func (n *Node) SubscribeMeta(communityID string) (*Subscription, error) {
	return n.subscribe(MetaTopic(communityID), decodeMetaItem)
}

// SubscribeChat joins the chat topic for one channel group.
func (n *Node) SubscribeChat(communityID, groupRef string) (*Subscription, error) {
	return n.subscribe(ChatTopic(communityID, groupRef), decodeChatItem)
}

func (n *Node) subscribe(topicName string, decode func([]byte) (*Item, error)) (*Subscription, error) {
	topic, err := n.Topics.Join(n.PS, topicName)
	if err != nil {
		return nil, err
	}
	sub, err := topic.Subscribe()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(n.Ctx)
	s := &Subscription{
		topic:  topic,
		sub:    sub,
		items:  make(chan Item, subscriptionBuffer),
		cancel: cancel,
	}
	go s.read(ctx, topicName, decode)
	return s, nil
}

func (s *Subscription) read(ctx context.Context, topicName string, decode func([]byte) (*Item, error)) {
	defer close(s.items)
	for {
		msg, err := s.sub.Next(ctx)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				glog.Warningf("p2p: subscription %s: %v", topicName, err)
			}
			return
		}
		item, err := decode(msg.Data)
		if err != nil {
			// Untrusted peer sent garbage; skip and continue processing.
			glog.Warningf("p2p: drop payload on %s: %v", topicName, err)
			continue
		}
		select {
		case s.items <- *item:
		case <-ctx.Done():
			return
		}
	}
}

func decodeMetaItem(data []byte) (*Item, error) {
	ev, p, err := events.Decode(data)
	if err != nil {
		return nil, err
	}
	return &Item{
		Sender:    ev.Sender,
		Timestamp: ev.Timestamp,
		Event:     ev,
		Payload:   p,
	}, nil
}

func decodeChatItem(data []byte) (*Item, error) {
	m, err := events.DecodeMessage(data)
	if err != nil {
		return nil, err
	}
	return &Item{
		Sender:    m.Sender,
		Timestamp: m.CreatedAt,
		Message:   m,
	}, nil
}

// PublishEvent encodes and publishes one control-plane event to its
// community's meta topic.
func (n *Node) PublishEvent(ctx context.Context, communityID, sender string, timestamp int64, p events.Payload) error {
	data, err := events.Encode(communityID, sender, timestamp, p)
	if err != nil {
		return err
	}
	topic, err := n.Topics.Join(n.PS, MetaTopic(communityID))
	if err != nil {
		return err
	}
	return topic.Publish(ctx, data)
}

func (n *Node) publishProfile(ctx context.Context, communityID string, p *models.Profile) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	topic, err := n.Topics.Join(n.PS, ProfilesTopic(communityID))
	if err != nil {
		return err
	}
	return topic.Publish(ctx, data)
}

// RunProfileGossip subscribes to a community's profile topic and records
// every well-formed binding it sees. Blocks until ctx is cancelled.
func (n *Node) RunProfileGossip(ctx context.Context, store *storage.Store, communityID string) error {
	topic, err := n.Topics.Join(n.PS, ProfilesTopic(communityID))
	if err != nil {
		return err
	}
	sub, err := topic.Subscribe()
	if err != nil {
		return err
	}
	defer sub.Cancel()
	for {
		msg, err := sub.Next(ctx)
		if err != nil {
			return err
		}
		var p models.Profile
		if err := json.Unmarshal(msg.Data, &p); err != nil || p.Identity == "" {
			glog.Warningf("p2p: drop profile gossip: %v", err)
			continue
		}
		if err := store.SaveProfile(ctx, &p); err != nil {
			glog.Warningf("p2p: save profile %s: %v", p.Identity, err)
		}
	}
}

// SendMessage composes a new chat message with a fresh id and timestamp and
// publishes it to the channel topic.
func (n *Node) SendMessage(ctx context.Context, communityID, groupRef, channelID, sender, text string, parentIDs []string) (*models.Message, error) {
	m := &models.Message{
		ID:        utils.NewID(),
		ChannelID: channelID,
		Sender:    sender,
		Text:      text,
		CreatedAt: utils.NowMicro(),
		ParentIDs: parentIDs,
	}
	if err := n.PublishMessage(ctx, communityID, groupRef, m); err != nil {
		return nil, err
	}
	return m, nil
}

// PublishMessage encodes and publishes one chat message to its channel topic.
func (n *Node) PublishMessage(ctx context.Context, communityID, groupRef string, m *models.Message) error {
	data, err := events.EncodeMessage(m)
	if err != nil {
		return err
	}
	topic, err := n.Topics.Join(n.PS, ChatTopic(communityID, groupRef))
	if err != nil {
		return err
	}
	return topic.Publish(ctx, data)
}
