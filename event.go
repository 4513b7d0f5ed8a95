package thicket

import (
	"cmp"
	"maps"
	"slices"

	"github.com/akmonengine/thicket/actor"
)

const (
	TRIGGER_ENTER EventType = iota
	COLLISION_ENTER
	TRIGGER_STAY
	COLLISION_STAY
	TRIGGER_EXIT
	COLLISION_EXIT
)

type EventType uint8

// pairKey identifies an actor pair regardless of order
type pairKey struct {
	idA uint64
	idB uint64
}

func makePairKey(a, b *actor.Actor) pairKey {
	if b.ID < a.ID {
		a, b = b, a
	}

	return pairKey{idA: a.ID, idB: b.ID}
}

func comparePairKeys(x, y pairKey) int {
	if c := cmp.Compare(x.idA, y.idA); c != 0 {
		return c
	}
	return cmp.Compare(x.idB, y.idB)
}

// activePair keeps the actors of a pair in key order
type activePair struct {
	actorA *actor.Actor
	actorB *actor.Actor
}

func (p activePair) isTrigger() bool {
	return p.actorA.IsTrigger || p.actorB.IsTrigger
}

type Event interface {
	Type() EventType
}

type TriggerEnterEvent struct {
	ActorA *actor.Actor
	ActorB *actor.Actor
}

func (e TriggerEnterEvent) Type() EventType { return TRIGGER_ENTER }

type TriggerStayEvent struct {
	ActorA *actor.Actor
	ActorB *actor.Actor
}

func (e TriggerStayEvent) Type() EventType { return TRIGGER_STAY }

type TriggerExitEvent struct {
	ActorA *actor.Actor
	ActorB *actor.Actor
}

func (e TriggerExitEvent) Type() EventType { return TRIGGER_EXIT }

type CollisionEnterEvent struct {
	ActorA *actor.Actor
	ActorB *actor.Actor
}

func (e CollisionEnterEvent) Type() EventType { return COLLISION_ENTER }

type CollisionStayEvent struct {
	ActorA *actor.Actor
	ActorB *actor.Actor
}

func (e CollisionStayEvent) Type() EventType { return COLLISION_STAY }

type CollisionExitEvent struct {
	ActorA *actor.Actor
	ActorB *actor.Actor
}

func (e CollisionExitEvent) Type() EventType { return COLLISION_EXIT }

type EventListener func(event Event)

// Events turns the touching pairs of each step into enter, stay and exit
// events
type Events struct {
	listeners map[EventType][]EventListener

	// Event buffer to send at flush
	buffer []Event

	previousActivePairs map[pairKey]activePair
	currentActivePairs  map[pairKey]activePair
}

func NewEvents() Events {
	return Events{
		listeners:           make(map[EventType][]EventListener),
		buffer:              make([]Event, 0, 256),
		previousActivePairs: make(map[pairKey]activePair),
		currentActivePairs:  make(map[pairKey]activePair),
	}
}

// Subscribe adds a listener for an event type
func (e *Events) Subscribe(eventType EventType, listener EventListener) {
	e.listeners[eventType] = append(e.listeners[eventType], listener)
}

// recordManifolds marks the pairs of the manifolds as touching and returns
// the manifolds that get a contact response, triggers excluded
func (e *Events) recordManifolds(manifolds []Manifold) []Manifold {
	n := 0
	for _, m := range manifolds {
		a, b := m.BodyA.Actor, m.BodyB.Actor
		key := makePairKey(a, b)
		if key.idA != a.ID {
			a, b = b, a
		}
		e.currentActivePairs[key] = activePair{actorA: a, actorB: b}

		if !a.IsTrigger && !b.IsTrigger {
			manifolds[n] = m
			n++
		}
	}

	return manifolds[:n]
}

// forget drops every tracked pair of an actor, without exit events
func (e *Events) forget(a *actor.Actor) {
	for key := range e.previousActivePairs {
		if key.idA == a.ID || key.idB == a.ID {
			delete(e.previousActivePairs, key)
		}
	}
	for key := range e.currentActivePairs {
		if key.idA == a.ID || key.idB == a.ID {
			delete(e.currentActivePairs, key)
		}
	}
}

// processCollisionEvents compares the pairs of this step with the previous
// one, in pair order
func (e *Events) processCollisionEvents() {
	for _, key := range slices.SortedFunc(maps.Keys(e.currentActivePairs), comparePairKeys) {
		pair := e.currentActivePairs[key]
		_, stay := e.previousActivePairs[key]

		switch {
		case stay && pair.isTrigger():
			e.buffer = append(e.buffer, TriggerStayEvent{ActorA: pair.actorA, ActorB: pair.actorB})
		case stay:
			e.buffer = append(e.buffer, CollisionStayEvent{ActorA: pair.actorA, ActorB: pair.actorB})
		case pair.isTrigger():
			e.buffer = append(e.buffer, TriggerEnterEvent{ActorA: pair.actorA, ActorB: pair.actorB})
		default:
			e.buffer = append(e.buffer, CollisionEnterEvent{ActorA: pair.actorA, ActorB: pair.actorB})
		}
	}

	for _, key := range slices.SortedFunc(maps.Keys(e.previousActivePairs), comparePairKeys) {
		if _, ok := e.currentActivePairs[key]; ok {
			continue
		}

		pair := e.previousActivePairs[key]
		if pair.isTrigger() {
			e.buffer = append(e.buffer, TriggerExitEvent{ActorA: pair.actorA, ActorB: pair.actorB})
		} else {
			e.buffer = append(e.buffer, CollisionExitEvent{ActorA: pair.actorA, ActorB: pair.actorB})
		}
	}

	// Swap for next frame and clear current
	e.previousActivePairs, e.currentActivePairs = e.currentActivePairs, e.previousActivePairs
	clear(e.currentActivePairs)
}

// flush sends all buffered events and clears the buffer
func (e *Events) flush() {
	e.processCollisionEvents()

	for _, event := range e.buffer {
		for _, listener := range e.listeners[event.Type()] {
			listener(event)
		}
	}
	e.buffer = e.buffer[:0]
}
