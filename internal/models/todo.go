package models

import "time"

type Todo struct {
	ID          string
	Title       string
	Description string
	Completed   bool
	UserID      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TodoOwner is the slice of the owning user joined into list results.
type TodoOwner struct {
	ID    string
	Name  string
	Email string
}

type TodoWithOwner struct {
	Todo
	Owner TodoOwner
}

// TodoPatch carries a partial update; nil fields are left untouched.
type TodoPatch struct {
	Title       *string
	Description *string
	Completed   *bool
}

func (p TodoPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Completed == nil
}

type TodoPage struct {
	Items          []TodoWithOwner
	Total          int
	CompletedTotal int
	NextCursor     *string
}
