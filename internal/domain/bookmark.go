package domain

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Bookmark is one row of the bookmarks table.
//
// Rows are never edited in place: they are created by their owner and
// removed by their owner. Ownership (UserID) is enforced by the backend's
// row-level policy, not here.
type Bookmark struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Title     string    `json:"title"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// BookmarkInput is the payload of an insert. UserID is always sent
// explicitly so inserts work even when the column has no default.
type BookmarkInput struct {
	URL    string `json:"url" validate:"required"`
	Title  string `json:"title" validate:"required"`
	UserID string `json:"user_id" validate:"required"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report json names ("user_id") rather than Go field names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// NewBookmarkInput trims the fields and validates them.
func NewBookmarkInput(url, title, userID string) (BookmarkInput, error) {
	in := BookmarkInput{
		URL:    strings.TrimSpace(url),
		Title:  strings.TrimSpace(title),
		UserID: strings.TrimSpace(userID),
	}
	return in, in.Validate()
}

// Validate reports which required fields are blank, wrapped in ErrInvalidInput.
func (in BookmarkInput) Validate() error {
	err := validate.Struct(in)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	missing := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		missing = append(missing, fe.Field())
	}
	return fmt.Errorf("%w: %s required", ErrInvalidInput, strings.Join(missing, ", "))
}
