package deck

// EventKind says what changed on a deck.
type EventKind int

const (
	Loaded EventKind = iota
	Unloaded
	Started
	Stopped
	Seeked
	ParamChanged
	Finished
)

var eventNames = map[EventKind]string{
	Loaded:       "loaded",
	Unloaded:     "unloaded",
	Started:      "started",
	Stopped:      "stopped",
	Seeked:       "seeked",
	ParamChanged: "param-changed",
	Finished:     "finished",
}

func (k EventKind) String() string {
	if name, ok := eventNames[k]; ok {
		return name
	}
	return "unknown"
}

// Event describes a change on a deck. Param and Value are set for
// ParamChanged, Track for Loaded.
type Event struct {
	Deck  int
	Kind  EventKind
	Param Param
	Value float64
	Track string
}

// Listener is notified of deck changes. Notifications are delivered on the
// goroutine that made the change, never on the audio thread.
type Listener interface {
	DeckChanged(e Event)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(e Event)

func (f ListenerFunc) DeckChanged(e Event) { f(e) }

// Subscribe registers l and returns a function that removes it again.
func (d *Deck) Subscribe(l Listener) (unsubscribe func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	id := d.nextListener
	d.nextListener++
	d.listeners[id] = l

	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		delete(d.listeners, id)
	}
}

func (d *Deck) notify(e Event) {
	e.Deck = d.id

	d.mu.Lock()
	listeners := make([]Listener, 0, len(d.listeners))
	for _, l := range d.listeners {
		listeners = append(listeners, l)
	}
	d.mu.Unlock()

	for _, l := range listeners {
		l.DeckChanged(e)
	}
}
