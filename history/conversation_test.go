package history

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nachoal/local-vlm-go/prompt"
)

func TestConversation_DropsOldestWhenFull(t *testing.T) {
	c := NewConversation(3)
	for i := 0; i < 5; i++ {
		c.Append(prompt.UserText(fmt.Sprintf("msg%d", i)))
	}

	turns := c.Turns()
	if len(turns) != 3 {
		t.Fatalf("expected 3 turns, got %d", len(turns))
	}
	if turns[0].Text() != "msg2" || turns[2].Text() != "msg4" {
		t.Fatalf("unexpected window: %q .. %q", turns[0].Text(), turns[2].Text())
	}
}

func TestConversation_AddExchange(t *testing.T) {
	c := NewConversation(0)
	if c.MaxTurns() != DefaultMaxTurns {
		t.Fatalf("expected default bound %d, got %d", DefaultMaxTurns, c.MaxTurns())
	}

	c.AddExchange(prompt.UserWithAttachments("what is this?", "cat.png"), "a cat")

	turns := c.Turns()
	if len(turns) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(turns))
	}
	if turns[1].Role != prompt.RoleAssistant || turns[1].Text() != "a cat" {
		t.Fatalf("unexpected reply turn: %+v", turns[1])
	}
}

func TestConversation_SnapshotIsIndependent(t *testing.T) {
	c := NewConversation(10)
	c.Append(prompt.UserText("a"))

	snap := c.Turns()
	snap[0] = prompt.UserText("changed")

	if c.Turns()[0].Text() != "a" {
		t.Fatalf("snapshot mutation leaked into conversation")
	}
}

func TestConversation_ClearAndStats(t *testing.T) {
	c := NewConversation(10)
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	tick := 0
	c.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	c.AddExchange(prompt.UserWithAttachments("héllo", "a.png", "b.png"), "hi")

	s := c.Stats()
	if s.Turns != 2 || s.UserTurns != 1 || s.Images != 2 || s.Characters != 7 {
		t.Fatalf("unexpected stats: %+v", s)
	}
	if !s.UpdatedAt.After(s.StartedAt) {
		t.Fatalf("expected UpdatedAt after StartedAt: %+v", s)
	}

	c.Clear()
	if c.Len() != 0 {
		t.Fatalf("expected empty conversation after Clear")
	}
	if got := c.Stats(); got.Turns != 0 || !got.StartedAt.IsZero() {
		t.Fatalf("unexpected stats after clear: %+v", got)
	}
}

func TestConversation_Title(t *testing.T) {
	c := NewConversation(10)
	if c.Title() != "New conversation" {
		t.Fatalf("unexpected empty title %q", c.Title())
	}

	c.Append(prompt.UserWithAttachments("", "img.png"))
	c.Append(prompt.UserText(strings.Repeat("word ", 20) + "\nsecond line"))

	title := c.Title()
	if !strings.HasSuffix(title, "...") || len([]rune(title)) != 50 {
		t.Fatalf("unexpected title %q", title)
	}
}

func TestConversation_ConcurrentAppend(t *testing.T) {
	c := NewConversation(1000)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				c.Append(prompt.UserText("x"))
				_ = c.Turns()
			}
		}()
	}
	wg.Wait()

	if c.Len() != 200 {
		t.Fatalf("expected 200 turns, got %d", c.Len())
	}
}
