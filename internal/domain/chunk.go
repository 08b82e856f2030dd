package domain

// Chunk is the durable copy of one retrieval unit. The vector index holds a
// derived projection of these rows; this table is the system of record.
//
// ID is "{blob_id}#{chunk_index}". The (parent_id, id) pair mirrors the
// partition/sort layout the retrieval layer queries by.
type Chunk struct {
	ParentID    string `gorm:"primaryKey;column:parent_id" json:"parent_id"`
	ID          string `gorm:"primaryKey;column:id" json:"id"`
	CourseID    string `gorm:"index;not null;column:course_id" json:"class_id"`
	BlobID      string `gorm:"index;not null;column:blob_id" json:"blob_id"`
	ChunkIndex  int    `gorm:"not null;column:chunk_index" json:"chunk_index"`
	RootID      string `gorm:"index;not null;column:root_id" json:"root_id"`
	RootPostNum int    `gorm:"column:root_post_num" json:"root_post_num"`
	Type        string `gorm:"not null;column:type" json:"type"`
	Title       string `gorm:"column:title" json:"title"`
	Date        string `gorm:"column:date" json:"date"`
	AuthorName  string `gorm:"column:author_name" json:"author_name"`
	Endorsement string `gorm:"column:endorsement" json:"endorsement"`
	ContentHash string `gorm:"not null;column:content_hash" json:"content_hash"`
	ChunkText   string `gorm:"not null;column:chunk_text" json:"chunk_text"`
}

func (Chunk) TableName() string { return "piazza_chunks" }
