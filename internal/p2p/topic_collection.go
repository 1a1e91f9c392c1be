package p2p

import (
	"sync"

	pubsub "github.com/libp2p/go-libp2p-pubsub"
)

// TopicCollection caches joined topics; gossipsub allows each topic to be
// joined only once per host.
type TopicCollection struct {
	mu     sync.Mutex
	topics map[string]*pubsub.Topic
}

func NewTopicCollection() *TopicCollection {
	return &TopicCollection{topics: make(map[string]*pubsub.Topic)}
}

// Join returns the cached topic handle, joining on first use.
func (tc *TopicCollection) Join(ps *pubsub.PubSub, name string) (*pubsub.Topic, error) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	if t, ok := tc.topics[name]; ok {
		return t, nil
	}
	t, err := ps.Join(name)
	if err != nil {
		return nil, err
	}
	tc.topics[name] = t
	return t, nil
}

func (tc *TopicCollection) Has(name string) bool {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	_, ok := tc.topics[name]
	return ok
}

func (tc *TopicCollection) Remove(name string) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	delete(tc.topics, name)
}
