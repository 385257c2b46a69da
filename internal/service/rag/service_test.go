package rag

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"
)

type fakeRetriever struct {
	docs []*schema.Document
	err  error
}

func (f *fakeRetriever) Retrieve(context.Context, string, string) ([]*schema.Document, error) {
	return f.docs, f.err
}

type fakeCompleter struct {
	reply  string
	err    error
	called bool
	prompt string
}

func (f *fakeCompleter) Complete(_ context.Context, _, _, userPrompt string) (string, error) {
	f.called = true
	f.prompt = userPrompt
	return f.reply, f.err
}

func scoredDoc(name, text string, score float64) *schema.Document {
	doc := &schema.Document{
		Content:  text,
		MetaData: map[string]any{MetaSourceLabel: name},
	}
	doc.WithScore(score)
	return doc
}

func TestBuildContextFormat(t *testing.T) {
	docs := []*schema.Document{
		scoredDoc("spec.pdf", "first chunk", 0.12345),
		scoredDoc("manual.txt", "second chunk", 0.5),
	}

	got := BuildContext(docs)
	want := "[spec.pdf | Score: 0.1235] first chunk\n\n[manual.txt | Score: 0.5000] second chunk"
	if got != want {
		t.Fatalf("unexpected context:\n%q\nwant:\n%q", got, want)
	}
}

func TestBuildContextUnknownSource(t *testing.T) {
	doc := &schema.Document{Content: "orphan chunk", MetaData: map[string]any{}}
	got := BuildContext([]*schema.Document{doc})
	if !strings.HasPrefix(got, "[Unknown | Score: ") {
		t.Fatalf("expected Unknown source label, got %q", got)
	}
}

func TestBuildContextEmpty(t *testing.T) {
	if got := BuildContext(nil); got != "" {
		t.Fatalf("expected empty context, got %q", got)
	}
}

func TestQueryShortCircuitsOnEmptyContext(t *testing.T) {
	completer := &fakeCompleter{reply: "should not be used"}
	svc := NewService(&fakeRetriever{}, completer, nil)

	got, err := svc.Query(context.Background(), "gpt-4", "question", "empty-collection")
	if err != nil {
		t.Fatalf("Query err: %v", err)
	}
	if got != NoContextFound {
		t.Fatalf("expected NoContextFound, got %q", got)
	}
	if completer.called {
		t.Fatal("model must not be called when retrieval is empty")
	}
}

func TestQueryEmbedsContextAndQuestion(t *testing.T) {
	completer := &fakeCompleter{reply: "Yes\nconforms per spec.pdf"}
	svc := NewService(&fakeRetriever{docs: []*schema.Document{
		scoredDoc("spec.pdf", "samples must carry a signature", 0.2),
	}}, completer, nil)

	got, err := svc.Query(context.Background(), "gpt-4", "does it conform?", "standards")
	if err != nil {
		t.Fatalf("Query err: %v", err)
	}
	if got != "Yes\nconforms per spec.pdf" {
		t.Fatalf("unexpected answer: %q", got)
	}
	if !strings.Contains(completer.prompt, "samples must carry a signature") {
		t.Fatalf("prompt missing retrieved context: %q", completer.prompt)
	}
	if !strings.Contains(completer.prompt, "Question: does it conform?") {
		t.Fatalf("prompt missing question: %q", completer.prompt)
	}
}

func TestQueryPropagatesRetrievalFailure(t *testing.T) {
	svc := NewService(&fakeRetriever{err: errors.New("connection refused")}, &fakeCompleter{}, nil)

	_, err := svc.Query(context.Background(), "gpt-4", "question", "standards")
	if !errors.Is(err, ErrRetrievalFailure) {
		t.Fatalf("expected ErrRetrievalFailure, got %v", err)
	}
}
