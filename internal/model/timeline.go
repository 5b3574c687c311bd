package model

// EntryKind tells which table a timeline entry or bookmark points at.
type EntryKind string

const (
	KindPost    EntryKind = "post"
	KindRetweet EntryKind = "retweet"
)

// Ref points at exactly one Post or one Retweet.
// Exactly one of PostID / RetweetID is non-nil; NewPostRef and NewRetweetRef
// are the only intended constructors.
type Ref struct {
	PostID    *int64
	RetweetID *int64
}

// NewPostRef returns a Ref to the post with the given ID.
func NewPostRef(id int64) Ref { return Ref{PostID: &id} }

// NewRetweetRef returns a Ref to the retweet with the given ID.
func NewRetweetRef(id int64) Ref { return Ref{RetweetID: &id} }

// Valid reports whether the ref holds exactly one target.
func (r Ref) Valid() bool {
	return (r.PostID == nil) != (r.RetweetID == nil)
}

// Kind returns which table the ref points at. Only meaningful when Valid.
func (r Ref) Kind() EntryKind {
	if r.PostID != nil {
		return KindPost
	}
	return KindRetweet
}

// TimelineEntry is one row of the append-only timeline index.
// Higher IDs are more recent; entries are never reordered.
type TimelineEntry struct {
	ID  int64
	Ref Ref
}

// FeedItem is a timeline entry or bookmark resolved for display.
//
// For KindPost, Post is set. For KindRetweet, Retweet is set and Original
// carries the retweeted post while it still exists (nil once deleted).
type FeedItem struct {
	EntryID  int64     `json:"entryId"`
	Kind     EntryKind `json:"kind"`
	Post     *Post     `json:"post,omitempty"`
	Retweet  *Retweet  `json:"retweet,omitempty"`
	Original *Post     `json:"original,omitempty"`
}

// Page is one page of resolved feed items plus paginator metadata.
// Page numbers are 1-indexed.
type Page struct {
	Items   []FeedItem `json:"items"`
	Page    int        `json:"page"`
	PerPage int        `json:"perPage"`
	Total   int        `json:"total"`
	Pages   int        `json:"pages"`
	HasNext bool       `json:"hasNext"`
	HasPrev bool       `json:"hasPrev"`
}

// NewPage fills in the derived paginator fields.
func NewPage(items []FeedItem, page, perPage, total int) Page {
	pages := 0
	if perPage > 0 {
		pages = (total + perPage - 1) / perPage
	}
	if items == nil {
		items = []FeedItem{}
	}
	return Page{
		Items:   items,
		Page:    page,
		PerPage: perPage,
		Total:   total,
		Pages:   pages,
		HasNext: page < pages,
		HasPrev: page > 1,
	}
}
