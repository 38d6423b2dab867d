package realtime

import (
	"sort"
	"sync"
)

// TopicAll subscribes a client to every vehicle.
const TopicAll = "all"

// Registry maps connected clients to the topics they follow.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]map[string]struct{})}
}

// AddClient registers a client with an empty topic set. Re-adding a known
// client resets its topics.
func (r *Registry) AddClient(clientID string) {
	r.mu.Lock()
	r.clients[clientID] = make(map[string]struct{})
	r.mu.Unlock()
}

// RemoveClient drops the client and all of its topics.
func (r *Registry) RemoveClient(clientID string) {
	r.mu.Lock()
	delete(r.clients, clientID)
	r.mu.Unlock()
}

// Subscribe is a no-op for unknown clients.
func (r *Registry) Subscribe(clientID, topic string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if topics, ok := r.clients[clientID]; ok {
		topics[topic] = struct{}{}
	}
}

func (r *Registry) Unsubscribe(clientID, topic string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if topics, ok := r.clients[clientID]; ok {
		delete(topics, topic)
	}
}

// Subscribers returns the clients following topic directly or through
// TopicAll, in no particular order.
func (r *Registry) Subscribers(topic string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []string
	for id, topics := range r.clients {
		_, direct := topics[topic]
		_, all := topics[TopicAll]
		if direct || all {
			out = append(out, id)
		}
	}
	return out
}

// Topics returns a sorted copy of a client's topics.
func (r *Registry) Topics(clientID string) []string {
	r.mu.RLock()
	topics := r.clients[clientID]
	out := make([]string, 0, len(topics))
	for t := range topics {
		out = append(out, t)
	}
	r.mu.RUnlock()

	sort.Strings(out)
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}
