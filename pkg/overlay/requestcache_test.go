package overlay

import (
	"testing"
	"time"
)

func TestRequestCache_AddGetPop(t *testing.T) {
	c := NewRequestCache()
	id, err := c.Add("similarity", time.Minute, "payload", nil)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if !c.Has("similarity", id) {
		t.Fatal("expected Has to report true right after Add")
	}
	got, ok := c.Get("similarity", id)
	if !ok || got != "payload" {
		t.Fatalf("Get = %v, %v", got, ok)
	}
	popped, ok := c.Pop("similarity", id)
	if !ok || popped != "payload" {
		t.Fatalf("Pop = %v, %v", popped, ok)
	}
	if c.Has("similarity", id) {
		t.Fatal("expected entry gone after Pop")
	}
}

func TestRequestCache_PopIsOneShot(t *testing.T) {
	c := NewRequestCache()
	id, _ := c.Add("ping", time.Minute, 42, nil)
	if _, ok := c.Pop("ping", id); !ok {
		t.Fatal("first Pop should succeed")
	}
	if _, ok := c.Pop("ping", id); ok {
		t.Fatal("second Pop should fail, entry already consumed")
	}
}

func TestRequestCache_TimeoutFiresOnlyIfNotPopped(t *testing.T) {
	c := NewRequestCache()
	fired := make(chan uint16, 1)
	id, err := c.Add("similarity", 10*time.Millisecond, "data", func(id uint16, data any) {
		fired <- id
	})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	select {
	case got := <-fired:
		if got != id {
			t.Fatalf("timeout fired for wrong id: %d != %d", got, id)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("timeout callback never fired")
	}
}

func TestRequestCache_PopBeforeTimeoutSuppressesCallback(t *testing.T) {
	c := NewRequestCache()
	fired := false
	id, _ := c.Add("similarity", 20*time.Millisecond, "data", func(uint16, any) {
		fired = true
	})
	if _, ok := c.Pop("similarity", id); !ok {
		t.Fatal("Pop should succeed before timeout")
	}
	time.Sleep(60 * time.Millisecond)
	if fired {
		t.Fatal("timeout callback fired despite Pop")
	}
}

func TestRequestCache_FamiliesAreIsolated(t *testing.T) {
	c := NewRequestCache()
	id, _ := c.Add("ping", time.Minute, "ping-data", nil)
	if c.Has("similarity", id) {
		t.Fatal("id from one family leaked visibility into another")
	}
}

func TestRequestCache_UnknownLookupMiss(t *testing.T) {
	c := NewRequestCache()
	if _, ok := c.Get("similarity", 999); ok {
		t.Fatal("expected miss for unknown id")
	}
	if _, ok := c.Pop("similarity", 999); ok {
		t.Fatal("expected Pop miss for unknown id")
	}
}
