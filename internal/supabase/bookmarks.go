package supabase

import (
	"context"
	"fmt"

	"github.com/supabase-community/postgrest-go"

	"github.com/MrSnakeDoc/marks/internal/domain"
)

// ListBookmarks returns the user's bookmarks, newest first. The user filter is
// explicit; the row-level policy enforces it again on the server.
func (c *Client) ListBookmarks(ctx context.Context, accessToken, userID string) ([]domain.Bookmark, error) {
	cl, err := c.forUser(accessToken)
	if err != nil {
		return nil, err
	}

	rows, err := call(ctx, func() ([]domain.Bookmark, error) {
		var rows []domain.Bookmark
		_, err := cl.From(bookmarksTable).
			Select(bookmarksColumns, "", false).
			Eq("user_id", userID).
			Order("created_at", &postgrest.OrderOpts{Ascending: false}).
			ExecuteTo(&rows)
		return rows, err
	})
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []domain.Bookmark{}
	}
	return rows, nil
}

// InsertBookmark inserts one row and returns it as stored.
func (c *Client) InsertBookmark(ctx context.Context, accessToken string, in domain.BookmarkInput) (*domain.Bookmark, error) {
	cl, err := c.forUser(accessToken)
	if err != nil {
		return nil, err
	}

	rows, err := call(ctx, func() ([]domain.Bookmark, error) {
		var rows []domain.Bookmark
		_, err := cl.From(bookmarksTable).
			Insert(in, false, "", "representation", "").
			ExecuteTo(&rows)
		return rows, err
	})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("insert returned no row")
	}
	return &rows[0], nil
}

// DeleteBookmark deletes the row with id. A delete the policy filters out
// affects nothing and is reported as domain.ErrNotFound.
func (c *Client) DeleteBookmark(ctx context.Context, accessToken, id string) error {
	cl, err := c.forUser(accessToken)
	if err != nil {
		return err
	}

	rows, err := call(ctx, func() ([]domain.Bookmark, error) {
		var rows []domain.Bookmark
		_, err := cl.From(bookmarksTable).
			Delete("representation", "").
			Eq("id", id).
			ExecuteTo(&rows)
		return rows, err
	})
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return domain.ErrNotFound
	}
	return nil
}
