package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
)

// Session holds a token pair and keeps it fresh. It is safe for concurrent use.
type Session struct {
	client *Client

	mu           sync.RWMutex
	accessToken  string
	refreshToken string
}

func (s *Session) Tokens() Tokens {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Tokens{AccessToken: s.accessToken, RefreshToken: s.refreshToken}
}

// do sends an authenticated request. On 401 it refreshes once and replays the request.
func (s *Session) do(ctx context.Context, method, path string, body any, out any) error {
	used := s.Tokens()
	err := s.client.do(ctx, method, path, used.AccessToken, body, out)
	if !IsUnauthorized(err) {
		return err
	}

	fresh, refreshErr := s.refresh(ctx, used)
	if refreshErr != nil {
		return fmt.Errorf("refresh session: %w", refreshErr)
	}
	return s.client.do(ctx, method, path, fresh.AccessToken, body, out)
}

// refresh rotates the pair unless another caller already replaced stale in the meantime.
func (s *Session) refresh(ctx context.Context, stale Tokens) (Tokens, error) {
	if current := s.Tokens(); current.AccessToken != stale.AccessToken {
		return current, nil
	}

	return s.client.Coordinator.Do(ctx, "refresh:"+stale.RefreshToken, func(ctx context.Context) (Tokens, error) {
		// a previous flight for the same key may have finished between the check above and now
		if current := s.Tokens(); current.AccessToken != stale.AccessToken {
			return current, nil
		}

		tokens, err := s.client.Refresh(ctx, stale.RefreshToken)
		if err != nil {
			return Tokens{}, err
		}

		s.mu.Lock()
		s.accessToken = tokens.AccessToken
		s.refreshToken = tokens.RefreshToken
		s.mu.Unlock()
		return tokens, nil
	})
}

func (s *Session) Logout(ctx context.Context) error {
	if err := s.do(ctx, http.MethodDelete, "/logout", nil, nil); err != nil {
		return err
	}

	s.mu.Lock()
	s.accessToken = ""
	s.refreshToken = ""
	s.mu.Unlock()
	return nil
}

func (s *Session) CreateTodo(ctx context.Context, title, description string, completed bool) (Todo, error) {
	var resp struct {
		Result []Todo `json:"result"`
	}
	body := map[string]any{"title": title, "description": description, "completed": completed}
	if err := s.do(ctx, http.MethodPost, "/todos", body, &resp); err != nil {
		return Todo{}, err
	}
	if len(resp.Result) == 0 {
		return Todo{}, fmt.Errorf("create todo: empty result")
	}
	return resp.Result[0], nil
}

// ListTodos fetches one page. An empty cursor starts from the newest todo; limit 0 uses the
// server default.
func (s *Session) ListTodos(ctx context.Context, cursor string, limit int) (TodoPage, error) {
	query := url.Values{}
	if cursor != "" {
		query.Set("cursor", cursor)
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	path := "/todos"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	var page TodoPage
	if err := s.do(ctx, http.MethodGet, path, nil, &page); err != nil {
		return TodoPage{}, err
	}
	return page, nil
}

func (s *Session) UpdateTodo(ctx context.Context, id string, update TodoUpdate) (Todo, error) {
	var resp struct {
		Result Todo `json:"result"`
	}
	if err := s.do(ctx, http.MethodPatch, "/todos/"+url.PathEscape(id), update, &resp); err != nil {
		return Todo{}, err
	}
	return resp.Result, nil
}

func (s *Session) DeleteTodo(ctx context.Context, id string) error {
	return s.do(ctx, http.MethodDelete, "/todos/"+url.PathEscape(id), nil, nil)
}
