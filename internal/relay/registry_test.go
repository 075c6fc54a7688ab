package relay

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/nexusbridge/sequencer/pkg/cache"
)

func putConfig(t *testing.T, store cache.Store, relayerType string, cfg Config) {
	t.Helper()
	raw, err := json.Marshal(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.HSet(context.Background(), relayersHash, relayerType, string(raw)); err != nil {
		t.Fatal(err)
	}
}

func TestRegistryRefreshBuildsOrderedEnabledRelayers(t *testing.T) {
	store := cache.NewMemStore()
	putConfig(t, store, "generic", Config{Type: "generic", Priority: 2, Enabled: true})
	putConfig(t, store, "signature", Config{Type: "signature", Priority: 1, Enabled: true})
	putConfig(t, store, "batch", Config{Type: "batch", Priority: 3, Enabled: false})

	reg := NewRegistry(store, 0)
	reg.RegisterFactory("generic", func(cfg Config) (Relayer, error) { return &fakeRelayer{taskID: "g"}, nil })
	reg.RegisterFactory("signature", func(cfg Config) (Relayer, error) { return &fakeRelayer{taskID: "s"}, nil })
	reg.RegisterFactory("batch", func(cfg Config) (Relayer, error) { return &fakeRelayer{taskID: "b"}, nil })

	if err := reg.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}

	ordered := reg.Ordered()
	if len(ordered) != 2 {
		t.Fatalf("expected 2 enabled relayers, got %d", len(ordered))
	}
	if ordered[0].Type != "signature" || ordered[1].Type != "generic" {
		t.Fatalf("expected priority order [signature, generic], got %v", []string{ordered[0].Type, ordered[1].Type})
	}
}

func TestRegistryRefreshRemovesStaleRelayers(t *testing.T) {
	store := cache.NewMemStore()
	putConfig(t, store, "generic", Config{Type: "generic", Enabled: true})

	reg := NewRegistry(store, 0)
	reg.RegisterFactory("generic", func(cfg Config) (Relayer, error) { return &fakeRelayer{}, nil })

	if err := reg.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}
	if reg.Count() != 1 {
		t.Fatalf("expected 1 relayer, got %d", reg.Count())
	}

	if err := store.HDel(context.Background(), relayersHash, "generic"); err != nil {
		t.Fatal(err)
	}

	if err := reg.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}
	if reg.Count() != 0 {
		t.Fatalf("expected stale relayer removed, got count %d", reg.Count())
	}
}
