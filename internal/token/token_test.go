package token

import (
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
)

func TestUUIDGenerator_Unique(t *testing.T) {
	var g UUIDGenerator
	seen := make(map[string]bool)

	for i := 0; i < 1000; i++ {
		tok := g.NewRequestToken()
		if _, err := uuid.Parse(tok); err != nil {
			t.Fatalf("токен %q не является UUID: %v", tok, err)
		}
		if seen[tok] {
			t.Fatalf("повторный токен: %s", tok)
		}
		seen[tok] = true
	}

	if s := g.NewSpaceToken(); !strings.HasPrefix(s, "space-") {
		t.Errorf("токен резервирования %q без префикса space-", s)
	}
}

func TestSequenceGenerator_Concurrent(t *testing.T) {
	g := &SequenceGenerator{Prefix: "t-"}

	var mu sync.Mutex
	seen := make(map[string]bool)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tok := g.NewRequestToken()
			mu.Lock()
			defer mu.Unlock()
			if seen[tok] {
				t.Errorf("повторный токен: %s", tok)
			}
			seen[tok] = true
		}()
	}
	wg.Wait()

	if len(seen) != 50 {
		t.Errorf("уникальных токенов = %d, ожидается 50", len(seen))
	}
}
