package resolver

import "testing"

func TestRingBufferOverwritesOldest(t *testing.T) {
	r := newRingBuffer(2)

	r.put("a", "url-a")
	r.put("b", "url-b")

	if url, ok := r.get("a"); !ok || url != "url-a" {
		t.Errorf("get(a) = %q, %v", url, ok)
	}

	// A third entry displaces the oldest.
	r.put("c", "url-c")
	if _, ok := r.get("a"); ok {
		t.Error("oldest entry survived past capacity")
	}
	if url, ok := r.get("b"); !ok || url != "url-b" {
		t.Errorf("get(b) = %q, %v", url, ok)
	}
	if url, ok := r.get("c"); !ok || url != "url-c" {
		t.Errorf("get(c) = %q, %v", url, ok)
	}
}

func TestRingBufferMinimumCapacity(t *testing.T) {
	r := newRingBuffer(0)
	r.put("a", "url-a")
	if url, ok := r.get("a"); !ok || url != "url-a" {
		t.Errorf("get(a) = %q, %v", url, ok)
	}
}

func TestRingBufferEmptyID(t *testing.T) {
	r := newRingBuffer(2)
	if _, ok := r.get(""); ok {
		t.Error("empty id matched an empty slot")
	}
}
