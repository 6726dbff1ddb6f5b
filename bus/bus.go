// bus.go
package bus

import (
	"fmt"
	"strings"
	"sync"
)

// -----------------------------------------------------------------------------
// Tokens + Topics
// -----------------------------------------------------------------------------

// Token is a single element in a topic path. Any comparable value works;
// in practice strings and small integers (instance numbers).
type Token = any

const (
	SingleWild = "+" // matches exactly one level
	MultiWild  = "#" // matches the rest of the topic, including nothing
)

// Topic is a sequence of tokens.
type Topic []Token

// T builds a topic, panicking on tokens that cannot be map keys.
func T(tokens ...Token) Topic {
	for _, tok := range tokens {
		if !hashable(tok) {
			panic(fmt.Sprintf("bus: token %T is not comparable", tok))
		}
	}
	return Topic(tokens)
}

func hashable(tok Token) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	_ = map[Token]struct{}{tok: {}}
	return true
}

// Append returns a new topic with tokens added; t is not modified.
func (t Topic) Append(tokens ...Token) Topic {
	out := make(Topic, 0, len(t)+len(tokens))
	out = append(out, t...)
	return append(out, T(tokens...)...)
}

func (t Topic) String() string {
	parts := make([]string, len(t))
	for i, tok := range t {
		parts[i] = fmt.Sprint(tok)
	}
	return strings.Join(parts, "/")
}

// -----------------------------------------------------------------------------
// Message
// -----------------------------------------------------------------------------

type Message struct {
	Topic    Topic
	Payload  any
	Retained bool
}

// -----------------------------------------------------------------------------
// Subscription
// -----------------------------------------------------------------------------

type Subscription struct {
	topic Topic
	ch    chan *Message
	conn  *Connection // owning connection
}

func (s *Subscription) Topic() Topic             { return s.topic }
func (s *Subscription) Channel() <-chan *Message { return s.ch }
func (s *Subscription) Unsubscribe()             { s.conn.Unsubscribe(s) }

// -----------------------------------------------------------------------------
// Trie node
// -----------------------------------------------------------------------------

type node struct {
	children map[Token]*node
	subs     []*Subscription
	retained *Message
}

func (n *node) child(tok Token, create bool) *node {
	if c, ok := n.children[tok]; ok || !create {
		return c
	}
	if n.children == nil {
		n.children = make(map[Token]*node)
	}
	c := &node{}
	n.children[tok] = c
	return c
}

// -----------------------------------------------------------------------------
// Bus
// -----------------------------------------------------------------------------

// Bus is an in-process topic trie. Subscriptions are stored under their
// pattern (wildcards included); retained messages under their concrete
// topic.
type Bus struct {
	mu   sync.Mutex
	subs *node // patterns
	kept *node // retained messages
	qLen int
}

// NewBus creates a new bus with the given subscription queue length.
func NewBus(queueLen int) *Bus {
	if queueLen <= 0 {
		queueLen = 8
	}
	return &Bus{subs: &node{}, kept: &node{}, qLen: queueLen}
}

// NewMessage builds a message for topic.
func (b *Bus) NewMessage(topic Topic, payload any, retained bool) *Message {
	return &Message{Topic: T(topic...), Payload: payload, Retained: retained}
}

// deliver never blocks: a full queue drops its oldest message.
func deliver(sub *Subscription, msg *Message) {
	for {
		select {
		case sub.ch <- msg:
			return
		default:
		}
		select {
		case <-sub.ch:
		default:
		}
	}
}

func (b *Bus) addSubscription(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.subs
	for _, tok := range sub.topic {
		n = n.child(tok, true)
	}
	n.subs = append(n.subs, sub)

	walkRetained(b.kept, sub.topic, func(m *Message) { deliver(sub, m) })
}

// Publish delivers a message to every matching subscriber. A retained
// message replaces the one kept for its topic; a retained nil payload
// clears it.
func (b *Bus) Publish(msg *Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if msg.Retained {
		n := b.kept
		for _, tok := range msg.Topic {
			n = n.child(tok, true)
		}
		if msg.Payload == nil {
			n.retained = nil
		} else {
			n.retained = msg
		}
	}
	matchSubs(b.subs, msg.Topic, func(s *Subscription) { deliver(s, msg) })
}

// Retained returns the message kept for an exact topic, or nil.
func (b *Bus) Retained(topic Topic) *Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := b.kept
	for _, tok := range topic {
		if n = n.child(tok, false); n == nil {
			return nil
		}
	}
	return n.retained
}

// matchSubs visits subscriptions whose pattern matches topic.
func matchSubs(n *node, topic Topic, fn func(*Subscription)) {
	if hash := n.child(MultiWild, false); hash != nil {
		for _, s := range hash.subs {
			fn(s)
		}
	}
	if len(topic) == 0 {
		for _, s := range n.subs {
			fn(s)
		}
		return
	}
	if c := n.child(topic[0], false); c != nil {
		matchSubs(c, topic[1:], fn)
	}
	if topic[0] != SingleWild {
		if c := n.child(SingleWild, false); c != nil {
			matchSubs(c, topic[1:], fn)
		}
	}
}

// walkRetained visits retained messages whose topic matches pattern.
func walkRetained(n *node, pattern Topic, fn func(*Message)) {
	if len(pattern) == 0 {
		if n.retained != nil {
			fn(n.retained)
		}
		return
	}
	switch pattern[0] {
	case MultiWild:
		var all func(*node)
		all = func(n *node) {
			if n.retained != nil {
				fn(n.retained)
			}
			for _, c := range n.children {
				all(c)
			}
		}
		all(n)
	case SingleWild:
		for _, c := range n.children {
			walkRetained(c, pattern[1:], fn)
		}
	default:
		if c := n.child(pattern[0], false); c != nil {
			walkRetained(c, pattern[1:], fn)
		}
	}
}

func (b *Bus) unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.subs
	stack := []*node{n}
	for _, tok := range sub.topic {
		if n = n.child(tok, false); n == nil {
			return
		}
		stack = append(stack, n)
	}
	for i, s := range n.subs {
		if s == sub {
			n.subs = append(n.subs[:i], n.subs[i+1:]...)
			break
		}
	}
	// Prune empty nodes.
	for i := len(sub.topic) - 1; i >= 0; i-- {
		c := stack[i+1]
		if len(c.subs) != 0 || len(c.children) != 0 {
			break
		}
		delete(stack[i].children, sub.topic[i])
	}
}

// -----------------------------------------------------------------------------
// Connection
// -----------------------------------------------------------------------------

type Connection struct {
	bus  *Bus
	id   string
	mu   sync.Mutex
	subs []*Subscription
}

// NewConnection creates a new connection bound to this bus.
func (b *Bus) NewConnection(id string) *Connection {
	return &Connection{bus: b, id: id}
}

func (c *Connection) ID() string { return c.id }

// NewMessage builds a message on the connection's bus.
func (c *Connection) NewMessage(topic Topic, payload any, retained bool) *Message {
	return c.bus.NewMessage(topic, payload, retained)
}

// Publish sends a message via the bus.
func (c *Connection) Publish(msg *Message) { c.bus.Publish(msg) }

// Subscribe registers a subscription owned by this connection. Retained
// messages matching topic are queued immediately.
func (c *Connection) Subscribe(topic Topic) *Subscription {
	sub := &Subscription{
		topic: T(topic...),
		ch:    make(chan *Message, c.bus.qLen),
		conn:  c,
	}
	c.bus.addSubscription(sub)
	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()
	return sub
}

// Unsubscribe removes a subscription owned by this connection and closes
// its channel.
func (c *Connection) Unsubscribe(sub *Subscription) {
	c.mu.Lock()
	found := false
	for i, s := range c.subs {
		if s == sub {
			c.subs = append(c.subs[:i], c.subs[i+1:]...)
			found = true
			break
		}
	}
	c.mu.Unlock()
	if !found {
		return
	}
	c.bus.unsubscribe(sub)
	close(sub.ch)
}

// Disconnect closes all subscriptions.
func (c *Connection) Disconnect() {
	c.mu.Lock()
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()

	for _, sub := range subs {
		c.bus.unsubscribe(sub)
		close(sub.ch)
	}
}
