package moderation

import "testing"

func TestDedupSeenOrRecord(t *testing.T) {
	t.Parallel()

	cache, err := NewDedupCache(16)
	if err != nil {
		t.Fatalf("NewDedupCache: %v", err)
	}

	key := DedupKey{GroupID: 1, MessageID: 100}
	if cache.SeenOrRecord(key) {
		t.Fatal("first sight should not report seen")
	}
	if !cache.SeenOrRecord(key) {
		t.Fatal("second sight should report seen")
	}
	if cache.SeenOrRecord(DedupKey{GroupID: 2, MessageID: 100}) {
		t.Fatal("same message id in another group is a distinct key")
	}
}

func TestDedupEvictsOldestWhenFull(t *testing.T) {
	t.Parallel()

	cache, err := NewDedupCache(2)
	if err != nil {
		t.Fatalf("NewDedupCache: %v", err)
	}

	a := DedupKey{GroupID: 1, MessageID: 1}
	b := DedupKey{GroupID: 1, MessageID: 2}
	c := DedupKey{GroupID: 1, MessageID: 3}

	cache.SeenOrRecord(a)
	cache.SeenOrRecord(b)
	cache.SeenOrRecord(a) // refresh a, b is now oldest
	cache.SeenOrRecord(c) // evicts b

	if !cache.SeenOrRecord(a) {
		t.Fatal("a should survive, its recency was refreshed")
	}
	if cache.SeenOrRecord(b) {
		t.Fatal("b should have been evicted")
	}
}
