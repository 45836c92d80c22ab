package studio

import "sync"

const watchBuffer = 8

// Hub fans state snapshots out to watchers of a session. Watchers that fall
// behind lose their oldest pending snapshot, and a snapshot older than the
// last one a watcher was sent is dropped.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[chan State]uint64
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[chan State]uint64)}
}

func (h *Hub) Subscribe(id string) (<-chan State, func()) {
	ch := make(chan State, watchBuffer)

	h.mu.Lock()
	set, ok := h.subs[id]
	if !ok {
		set = make(map[chan State]uint64)
		h.subs[id] = set
	}
	set[ch] = 0
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if set, ok := h.subs[id]; ok {
				delete(set, ch)
				if len(set) == 0 {
					delete(h.subs, id)
				}
			}
			close(ch)
		})
	}
	return ch, cancel
}

func (h *Hub) Publish(st State) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set := h.subs[st.ID]
	for ch, last := range set {
		if st.Version < last {
			continue
		}
		set[ch] = st.Version
		snapshot := st.Clone()
		select {
		case ch <- snapshot:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snapshot:
		default:
		}
	}
}

func (h *Hub) Watchers(id string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[id])
}
