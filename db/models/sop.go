package models

import "time"

// SOPChunk is one retrievable excerpt of a standard operating procedure or
// checklist, scoped to a single process flow.
type SOPChunk struct {
	ID    int64    `json:"id" db:"id"`
	Flow  string   `json:"flow" db:"flow"`
	Title string   `json:"title" db:"title"`
	Body  string   `json:"body" db:"body"`
	Tags  []string `json:"tags" db:"tags"`
}

// ConsultationRecord is the archived form of a completed consultation.
type ConsultationRecord struct {
	ID        string    `bson:"_id"`
	UserText  string    `bson:"user_text"`
	Flow      string    `bson:"flow"`
	Wastes    []string  `bson:"wastes"`
	Source    string    `bson:"source"`
	Analysis  any       `bson:"analysis"`
	CreatedAt time.Time `bson:"created_at"`
}
