package extract

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/davenfroberg/gpta-backend/internal/clients/piazza"
	"github.com/davenfroberg/gpta-backend/internal/platform/logger"
	"github.com/davenfroberg/gpta-backend/internal/textproc"
)

// Blob is one typed logical unit of a post: the root question or any node of
// its reply tree, flattened for chunking.
type Blob struct {
	ID          string
	ParentID    string
	RootID      string
	RootPostNum int
	Type        string
	Title       string
	Date        string
	AuthorID    string
	AuthorName  string
	Endorsement string // "yes" | "no" | "n/a"; only s_answer can be yes/no
	Content     string
}

// Extractor flattens post trees into blobs for one course. Author names are
// cached per extractor, so build one per course pass.
type Extractor struct {
	log       *logger.Logger
	pz        piazza.Client
	networkID string
	nameCache map[string]string
}

func New(log *logger.Logger, pz piazza.Client, networkID string) (*Extractor, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if pz == nil {
		return nil, fmt.Errorf("piazza client required")
	}
	return &Extractor{
		log:       log.With("service", "Extractor"),
		pz:        pz,
		networkID: networkID,
		nameCache: map[string]string{},
	}, nil
}

// Blobs extracts the root question and every descendant, root first.
func (e *Extractor) Blobs(ctx context.Context, post *piazza.PostNode) []Blob {
	if post == nil {
		return nil
	}

	hist := post.CurrentHistory()
	rootTitle := hist.Subject

	root := Blob{
		ID:          post.ID,
		ParentID:    post.ID,
		RootID:      post.ID,
		RootPostNum: post.NR,
		Type:        post.Type,
		Title:       rootTitle,
		Date:        normalizeDate(hist.Created),
		AuthorID:    authorID(hist.UID),
		AuthorName:  e.authorName(ctx, hist.UID),
		Endorsement: "n/a",
		Content:     textproc.Clean(hist.Content),
	}

	blobs := []Blob{root}
	blobs = append(blobs, e.children(ctx, post.Children, post.ID, rootTitle, post.ID, post.NR)...)
	return blobs
}

func (e *Extractor) children(ctx context.Context, nodes []piazza.PostNode, rootID, rootTitle, parentID string, rootPostNum int) []Blob {
	var blobs []Blob
	for i := range nodes {
		child := &nodes[i]
		hist := child.CurrentHistory()

		// Discussion replies carry their text in Subject, not history.
		content := hist.Content
		created := hist.Created
		if len(child.History) == 0 {
			content = child.Subject
			created = child.Created
		}

		blob := Blob{
			ID:          child.ID,
			ParentID:    parentID,
			RootID:      rootID,
			RootPostNum: rootPostNum,
			Type:        child.Type,
			Title:       rootTitle,
			Date:        normalizeDate(created),
			AuthorID:    authorID(hist.UID),
			AuthorName:  e.authorName(ctx, hist.UID),
			Endorsement: endorsement(child),
			Content:     textproc.Clean(content),
		}
		blobs = append(blobs, blob)
		blobs = append(blobs, e.children(ctx, child.Children, rootID, rootTitle, blob.ID, rootPostNum)...)
	}
	return blobs
}

func (e *Extractor) authorName(ctx context.Context, uid string) string {
	uid = strings.TrimSpace(uid)
	if uid == "" {
		return "Anonymous"
	}
	if name, ok := e.nameCache[uid]; ok {
		return name
	}

	names, err := e.pz.UserNames(ctx, e.networkID, []string{uid})
	if err != nil {
		e.log.Warn("Failed to resolve author name", "uid", uid, "error", err.Error())
		return "Unknown User"
	}
	name := strings.TrimSpace(names[uid])
	if name == "" {
		name = "Unknown User"
	}
	e.nameCache[uid] = name
	return name
}

func authorID(uid string) string {
	if strings.TrimSpace(uid) == "" {
		return "anonymous"
	}
	return uid
}

// endorsement applies only to student answers; an instructor entry in
// tag_endorse marks one endorsed.
func endorsement(node *piazza.PostNode) string {
	if node.Type != "s_answer" {
		return "n/a"
	}
	for _, e := range node.TagEndorse {
		if e.Admin {
			return "yes"
		}
	}
	return "no"
}

// normalizeDate rewrites a timestamp to ISO-8601 UTC. Unparseable values
// pass through untouched so legacy data is never corrupted.
func normalizeDate(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05Z0700", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC().Format("2006-01-02T15:04:05Z07:00")
		}
	}
	return s
}
