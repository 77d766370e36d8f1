package client

import "time"

type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

type Tokens struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type LoginResult struct {
	Tokens
	Result struct {
		Name string `json:"name"`
		ID   string `json:"id"`
		Role string `json:"role"`
	} `json:"result"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}

type TodoOwner struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type Todo struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Completed   bool       `json:"completed"`
	UserID      string     `json:"userId"`
	User        *TodoOwner `json:"user,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

type PageInfo struct {
	NextCursor  *string `json:"nextCursor"`
	HasNextPage bool    `json:"hasNextPage"`
}

type TodoPage struct {
	Message        string   `json:"message"`
	Status         int      `json:"status"`
	Result         []Todo   `json:"result"`
	Count          int      `json:"count"`
	CompletedCount int      `json:"completedCount"`
	PageInfo       PageInfo `json:"pageInfo"`
}

// TodoUpdate is a partial update; nil fields are not sent.
type TodoUpdate struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Completed   *bool   `json:"completed,omitempty"`
}
