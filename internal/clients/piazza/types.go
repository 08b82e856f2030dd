package piazza

import "encoding/json"

// HistoryEntry is one revision of a post or answer. The newest revision is
// history[0].
type HistoryEntry struct {
	Subject string `json:"subject"`
	Content string `json:"content"`
	Created string `json:"created"`
	UID     string `json:"uid"`
}

// Change is one entry of a post's change_log. CID points at the child the
// change applies to; it is empty for root-level changes.
type Change struct {
	Type string `json:"type"`
	CID  string `json:"cid"`
	UID  string `json:"uid"`
	When string `json:"when"`
}

// Endorser is one tag_endorse entry. Admin marks an instructor endorsement.
type Endorser struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Admin bool   `json:"admin"`
}

type PostConfig struct {
	IsAnnouncement int `json:"is_announcement"`
}

// PostNode is a post or any node of its reply tree. The forum stashes the
// text of followups and feedback in Subject rather than in a history entry.
type PostNode struct {
	ID         string     `json:"id"`
	Type       string     `json:"type"`
	Subject    string     `json:"subject"`
	Created    string     `json:"created"`
	NR         int        `json:"nr"`
	UID        string     `json:"uid"`
	History    []HistoryEntry `json:"history"`
	Children   []PostNode `json:"children"`
	TagEndorse []Endorser `json:"tag_endorse"`
	ChangeLog  []Change   `json:"change_log"`
	Config     PostConfig `json:"config"`
}

// CurrentHistory returns the newest revision, or a zero entry when the node
// has none (discussion replies).
func (p *PostNode) CurrentHistory() HistoryEntry {
	if p == nil || len(p.History) == 0 {
		return HistoryEntry{}
	}
	return p.History[0]
}

// FeedItem is one row of a course feed. Log length is the cheap change
// signal the poller watches.
type FeedItem struct {
	ID      string            `json:"id"`
	NR      int               `json:"nr"`
	Subject string            `json:"subject"`
	Log     []json.RawMessage `json:"log"`
	Folders []string          `json:"folders"`
}

type FeedTags struct {
	Instructor []string `json:"instructor"`
}

type Feed struct {
	Items []FeedItem `json:"feed"`
	Tags  FeedTags   `json:"tags"`
}

type CreatePostRequest struct {
	Type      string   `json:"type"`
	Folders   []string `json:"folders"`
	Subject   string   `json:"subject"`
	Content   string   `json:"content"`
	Anonymous bool     `json:"-"`
}

type UserInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
