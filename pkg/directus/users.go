package directus

import (
	"context"

	"github.com/reise69/directus-go-sdk/pkg/core/query"
)

// Me returns the authenticated user.
func (c *Client) Me(ctx context.Context) (*User, error) {
	var u User
	if err := c.Get(ctx, "/users/me", query.Query{}, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// Users searches directus_users.
func (c *Client) Users(ctx context.Context, q query.Query) ([]User, error) {
	var users []User
	if err := c.Search(ctx, "/users", q, &users); err != nil {
		return nil, err
	}
	return users, nil
}

func (c *Client) User(ctx context.Context, id string) (*User, error) {
	var u User
	if err := c.Get(ctx, "/users/"+escape(id), query.Query{}, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *Client) CreateUser(ctx context.Context, u User) (*User, error) {
	var created User
	if err := c.Post(ctx, "/users", u, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

func (c *Client) UpdateUser(ctx context.Context, id string, patch map[string]any) (*User, error) {
	var updated User
	if err := c.Patch(ctx, "/users/"+escape(id), patch, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

func (c *Client) DeleteUser(ctx context.Context, id string) error {
	return c.Delete(ctx, "/users/"+escape(id), nil)
}
