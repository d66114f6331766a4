package ws

import "testing"

func TestPresenceNewestConnectionWins(t *testing.T) {
	p := NewPresence()
	first := newClient(1, nil)
	second := newClient(1, nil)

	if prev := p.Register(1, first); prev != nil {
		t.Fatalf("expected no previous connection")
	}
	prev := p.Register(1, second)
	if prev != first {
		t.Fatalf("expected first connection to be returned for eviction")
	}

	got, ok := p.Get(1)
	if !ok || got != second {
		t.Fatalf("expected second connection to be active")
	}
}

func TestPresenceStaleUnregisterIgnored(t *testing.T) {
	p := NewPresence()
	first := newClient(1, nil)
	second := newClient(1, nil)

	p.Register(1, first)
	p.Register(1, second)

	if p.Unregister(1, first) {
		t.Fatalf("stale handle must not evict the newer connection")
	}
	if !p.IsOnline(1) {
		t.Fatalf("user should still be online")
	}

	if !p.Unregister(1, second) {
		t.Fatalf("active handle should unregister")
	}
	if p.IsOnline(1) {
		t.Fatalf("user should be offline after unregister")
	}
}

func TestPresenceSnapshot(t *testing.T) {
	p := NewPresence()
	p.Register(1, newClient(1, nil))
	p.Register(2, newClient(2, nil))

	snap := p.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("expected 2 online users, got %d", len(snap))
	}
	seen := map[int]bool{}
	for _, id := range snap {
		seen[id] = true
	}
	if !seen[1] || !seen[2] {
		t.Fatalf("snapshot missing a user: %v", snap)
	}
}
