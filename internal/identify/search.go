package identify

import (
	"context"
	"strings"

	"hackops/internal/apiclient"
)

// UserLister lists every user.
type UserLister interface {
	Users(ctx context.Context) ([]apiclient.User, error)
}

// Search picks a user out of the remote user list filtered by name.
type Search struct {
	users UserLister
}

// NewSearch returns the search method.
func NewSearch(users UserLister) *Search {
	return &Search{users: users}
}

func (s *Search) ID() string { return MethodSearch }

func (s *Search) Name() string { return "Search Users" }

// Candidates returns users whose name contains query, ignoring case.
func (s *Search) Candidates(ctx context.Context, query string) ([]apiclient.User, error) {
	users, err := s.users.Users(ctx)
	if err != nil {
		return nil, err
	}
	return Filter(users, query), nil
}

// Identify returns the candidate matching in.UserID.
func (s *Search) Identify(ctx context.Context, in Input) (apiclient.User, error) {
	if in.UserID == 0 {
		return apiclient.User{}, ErrNoSelection
	}
	candidates, err := s.Candidates(ctx, in.Query)
	if err != nil {
		return apiclient.User{}, err
	}
	for _, u := range candidates {
		if u.ID == in.UserID {
			return u, nil
		}
	}
	return apiclient.User{}, ErrNotFound
}

// Filter keeps users whose name contains query, case-insensitively. An empty
// query keeps everyone.
func Filter(users []apiclient.User, query string) []apiclient.User {
	q := strings.ToLower(strings.TrimSpace(query))
	out := make([]apiclient.User, 0, len(users))
	for _, u := range users {
		if strings.Contains(strings.ToLower(u.Name), q) {
			out = append(out, u)
		}
	}
	return out
}
