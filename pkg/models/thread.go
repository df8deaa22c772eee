package models

import "time"

// Thread is a Store record in the "threads" store plus its one
// collection, "messages".
type Thread struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Title        string    `json:"title"`
	Model        string    `json:"model"`
	SystemPrompt string    `json:"system_prompt"`
	CreatedAt    time.Time `json:"created_at"`
	IsArchived   bool      `json:"is_archived"`
}

// ThreadHeader is the summary view returned by HistoryLog.ListThreads.
type ThreadHeader struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Model      string    `json:"model"`
	CreatedAt  time.Time `json:"created_at"`
	IsArchived bool      `json:"is_archived"`
}

func (t Thread) Header() ThreadHeader {
	return ThreadHeader{
		ID:         t.ID,
		Title:      t.Title,
		Model:      t.Model,
		CreatedAt:  t.CreatedAt,
		IsArchived: t.IsArchived,
	}
}
