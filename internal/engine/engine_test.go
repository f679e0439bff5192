package engine

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/reviewstream/internal/accumulator"
	"github.com/reviewstream/internal/diff"
	"github.com/reviewstream/internal/llm"
	"github.com/reviewstream/pkg/models"
)

// scriptedClient replays fixed fragments, optionally failing midway.
type scriptedClient struct {
	fragments []string
	failAfter int // -1 = never
	delay     time.Duration
}

func (c *scriptedClient) Stream(ctx context.Context, _ string, fn llm.StreamFunc) error {
	for i, frag := range c.fragments {
		if c.failAfter >= 0 && i == c.failAfter {
			return &models.LlmError{Kind: models.LlmTransport, Cause: context.Canceled}
		}
		if c.delay > 0 {
			time.Sleep(c.delay)
		}
		if err := fn(ctx, frag); err != nil {
			return err
		}
	}
	return nil
}

func (c *scriptedClient) ProviderName() string { return "scripted" }
func (c *scriptedClient) ModelName() string    { return "test-model" }

func payloadFragments() []string {
	payload := `{"summary":"looks fine","issues":[{"file":"a.go","line":3,"severity":"warning","title":"check error","confidence":0.8}],"non_blocking_notes":[]}`
	var frags []string
	for i := 0; i < len(payload); i += 11 {
		end := i + 11
		if end > len(payload) {
			end = len(payload)
		}
		frags = append(frags, payload[i:end])
	}
	return frags
}

func TestReview_AccumulatesResult(t *testing.T) {
	e := New(&scriptedClient{fragments: payloadFragments(), failAfter: -1}, accumulator.DefaultConfig())
	stream := e.Review(context.Background(), "prompt")

	result, err := stream.Wait()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Summary != "looks fine" || len(result.Issues) != 1 {
		t.Errorf("unexpected result: %+v", result)
	}
	if result.LLMProvider != "scripted" || result.LLMModel != "test-model" {
		t.Errorf("provenance missing: %+v", result)
	}
}

func TestReview_SubscriberSeesAllChunksInOrder(t *testing.T) {
	frags := payloadFragments()
	e := New(&scriptedClient{fragments: frags, failAfter: -1, delay: time.Millisecond}, accumulator.DefaultConfig())
	stream := e.Review(context.Background(), "prompt")

	sub := stream.Subscribe()
	var received []string
	for chunk := range sub {
		received = append(received, chunk.Text)
	}

	if strings.Join(received, "") != strings.Join(frags, "") {
		t.Errorf("subscriber did not see the full ordered stream")
	}

	if _, err := stream.Wait(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestReview_TwoSubscribersIndependent(t *testing.T) {
	frags := payloadFragments()
	e := New(&scriptedClient{fragments: frags, failAfter: -1}, accumulator.DefaultConfig())
	stream := e.Review(context.Background(), "prompt")

	fast := stream.Subscribe()
	slow := stream.Subscribe()

	var fastCount int
	fastDone := make(chan struct{})
	go func() {
		defer close(fastDone)
		for range fast {
			fastCount++
		}
	}()

	// The slow subscriber drains late; the fast one must not be starved.
	<-fastDone
	time.Sleep(5 * time.Millisecond)
	var slowCount int
	for range slow {
		slowCount++
	}

	if fastCount != len(frags) || slowCount != len(frags) {
		t.Errorf("subscribers saw %d and %d chunks, want %d each", fastCount, slowCount, len(frags))
	}
}

func TestReview_TransportErrorDiscardsPartials(t *testing.T) {
	e := New(&scriptedClient{fragments: payloadFragments(), failAfter: 2}, accumulator.DefaultConfig())
	stream := e.Review(context.Background(), "prompt")

	result, err := stream.Wait()
	if err == nil {
		t.Fatal("expected transport error")
	}
	if len(result.Issues) != 0 || result.Summary != "" {
		t.Errorf("partial results must be discarded on transport error, got %+v", result)
	}
	if len(stream.Chunks()) != 2 {
		t.Errorf("chunk history should keep the delivered prefix, got %d", len(stream.Chunks()))
	}
}

func TestReview_CancellationStopsStream(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	e := New(&scriptedClient{fragments: payloadFragments(), failAfter: -1, delay: 5 * time.Millisecond}, accumulator.DefaultConfig())
	stream := e.Review(ctx, "prompt")

	time.Sleep(12 * time.Millisecond)
	cancel()

	_, err := stream.Wait()
	if err == nil {
		t.Fatal("expected an error after cancellation")
	}
}

func TestBuildPrompt_AnnotatesLineNumbers(t *testing.T) {
	input := "diff --git a/x.go b/x.go\n--- a/x.go\n+++ b/x.go\n@@ -1,2 +10,3 @@\n ctx\n+added\n ctx2\n"
	doc, err := diff.NewParser().Parse(input)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	prompt := BuildPrompt(ChangeRequestInfo{Title: "Add thing", Author: "dev"}, doc)

	if !strings.Contains(prompt, "### x.go") {
		t.Error("prompt should name the file")
	}
	if !strings.Contains(prompt, "OLD | NEW | CONTENT") {
		t.Error("prompt should carry the line-number table")
	}
	// Added line lands on post-image line 11.
	if !strings.Contains(prompt, " 11 | +added") {
		t.Errorf("added line should be annotated with new line 11:\n%s", prompt)
	}
}

func TestBusLateSubscriberReplay(t *testing.T) {
	bus := NewBus()
	bus.Publish(models.ReviewChunk{Text: "early"})
	sub := bus.Subscribe()
	bus.Publish(models.ReviewChunk{Text: "late"})
	bus.Close()

	var texts []string
	for chunk := range sub {
		texts = append(texts, chunk.Text)
	}
	if len(texts) != 2 || texts[0] != "early" || texts[1] != "late" {
		t.Errorf("late subscriber should be replayed history, got %v", texts)
	}
}
