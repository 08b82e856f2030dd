package extract

import (
	"context"
	"testing"

	"github.com/davenfroberg/gpta-backend/internal/clients/piazza"
	"github.com/davenfroberg/gpta-backend/internal/platform/logger"
)

type fakePiazza struct {
	names map[string]string

	nameLookups int
}

func (f *fakePiazza) Login(ctx context.Context) error { return nil }

func (f *fakePiazza) Feed(ctx context.Context, networkID string) (*piazza.Feed, error) {
	return &piazza.Feed{}, nil
}

func (f *fakePiazza) GetPost(ctx context.Context, networkID, postID string) (*piazza.PostNode, error) {
	return nil, nil
}

func (f *fakePiazza) CreatePost(ctx context.Context, networkID string, req piazza.CreatePostRequest) (*piazza.PostNode, error) {
	return nil, nil
}

func (f *fakePiazza) UserNames(ctx context.Context, networkID string, ids []string) (map[string]string, error) {
	f.nameLookups++
	out := map[string]string{}
	for _, id := range ids {
		if name, ok := f.names[id]; ok {
			out[id] = name
		}
	}
	return out, nil
}

func newTestExtractor(t *testing.T, pz piazza.Client) *Extractor {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("failed to init logger: %v", err)
	}
	e, err := New(log, pz, "net1")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func samplePost() *piazza.PostNode {
	return &piazza.PostNode{
		ID:   "root1",
		Type: "question",
		NR:   12,
		History: []piazza.HistoryEntry{
			{Subject: "HW3 deadline", Content: "<p>Is HW3 due Friday?</p>", Created: "2026-03-09T10:00:00Z", UID: "stu1"},
		},
		Children: []piazza.PostNode{
			{
				ID:   "ans1",
				Type: "i_answer",
				History: []piazza.HistoryEntry{
					{Content: "<p>Yes, Friday 11:59pm.</p>", Created: "2026-03-09T11:00:00Z", UID: "prof1"},
				},
			},
			{
				ID:         "sans1",
				Type:       "s_answer",
				TagEndorse: []piazza.Endorser{{ID: "prof1", Admin: true}},
				History: []piazza.HistoryEntry{
					{Content: "Pretty sure it's Friday.", Created: "2026-03-09T10:30:00Z", UID: "stu2"},
				},
			},
			{
				ID:      "f1",
				Type:    "followup",
				Subject: "Does that include the bonus?",
				Created: "2026-03-09T12:00:00Z",
				Children: []piazza.PostNode{
					{ID: "f1r1", Type: "feedback", Subject: "Yes it does.", Created: "2026-03-09T12:30:00Z"},
				},
			},
		},
	}
}

func TestBlobsFlattensTree(t *testing.T) {
	pz := &fakePiazza{names: map[string]string{"stu1": "Sam", "prof1": "Prof. Lee", "stu2": "Ria"}}
	e := newTestExtractor(t, pz)

	blobs := e.Blobs(context.Background(), samplePost())
	if len(blobs) != 5 {
		t.Fatalf("expected 5 blobs, got %d", len(blobs))
	}

	root := blobs[0]
	if root.ID != "root1" || root.ParentID != "root1" || root.RootID != "root1" || root.RootPostNum != 12 {
		t.Fatalf("unexpected root identity %+v", root)
	}
	if root.Content != "Is HW3 due Friday?" {
		t.Fatalf("root content not cleaned: %q", root.Content)
	}
	if root.Title != "HW3 deadline" {
		t.Fatalf("unexpected root title %q", root.Title)
	}

	for _, b := range blobs[1:] {
		if b.RootID != "root1" || b.RootPostNum != 12 || b.Title != "HW3 deadline" {
			t.Fatalf("root identity not propagated: %+v", b)
		}
	}

	// Nested feedback hangs off the followup, not the root.
	last := blobs[4]
	if last.ID != "f1r1" || last.ParentID != "f1" {
		t.Fatalf("nested reply misparented: %+v", last)
	}
	if last.Content != "Yes it does." {
		t.Fatalf("discussion text must come from Subject: %q", last.Content)
	}
}

func TestBlobsEndorsement(t *testing.T) {
	pz := &fakePiazza{names: map[string]string{}}
	e := newTestExtractor(t, pz)

	blobs := e.Blobs(context.Background(), samplePost())
	byID := map[string]Blob{}
	for _, b := range blobs {
		byID[b.ID] = b
	}

	if byID["sans1"].Endorsement != "yes" {
		t.Fatalf("endorsed student answer: got %q", byID["sans1"].Endorsement)
	}
	if byID["ans1"].Endorsement != "n/a" {
		t.Fatalf("instructor answer: got %q", byID["ans1"].Endorsement)
	}
	if byID["root1"].Endorsement != "n/a" {
		t.Fatalf("question: got %q", byID["root1"].Endorsement)
	}
}

func TestAuthorNameCaching(t *testing.T) {
	pz := &fakePiazza{names: map[string]string{"prof1": "Prof. Lee"}}
	e := newTestExtractor(t, pz)
	ctx := context.Background()

	post := samplePost()
	// Both revisions by the same author; name service hit once.
	post.Children = post.Children[:1]
	post.History[0].UID = "prof1"

	e.Blobs(ctx, post)
	e.Blobs(ctx, post)
	if pz.nameLookups != 1 {
		t.Fatalf("expected 1 name lookup, got %d", pz.nameLookups)
	}
}

func TestBlobsAnonymousAuthor(t *testing.T) {
	pz := &fakePiazza{}
	e := newTestExtractor(t, pz)

	post := samplePost()
	post.History[0].UID = ""
	blobs := e.Blobs(context.Background(), post)
	if blobs[0].AuthorName != "Anonymous" || blobs[0].AuthorID != "anonymous" {
		t.Fatalf("unexpected anonymous handling %+v", blobs[0])
	}
	if pz.nameLookups != 0 {
		t.Fatalf("anonymous must not hit the name service")
	}
}

func TestNormalizeDate(t *testing.T) {
	if got := normalizeDate("2026-03-09T04:00:00-08:00"); got != "2026-03-09T12:00:00Z" {
		t.Fatalf("offset not rewritten: %q", got)
	}
	if got := normalizeDate("garbage"); got != "garbage" {
		t.Fatalf("unparseable values must pass through: %q", got)
	}
}
