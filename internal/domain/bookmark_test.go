package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBookmarkInput(t *testing.T) {
	tests := []struct {
		name        string
		url, title  string
		userID      string
		wantErr     bool
		wantMessage string
	}{
		{name: "valid", url: " https://go.dev ", title: " Go ", userID: "u1"},
		{name: "empty url", url: "", title: "Go", userID: "u1", wantErr: true, wantMessage: "invalid input: url required"},
		{name: "blank title", url: "https://go.dev", title: "   ", userID: "u1", wantErr: true, wantMessage: "invalid input: title required"},
		{name: "no user", url: "https://go.dev", title: "Go", userID: "", wantErr: true, wantMessage: "invalid input: user_id required"},
		{name: "everything missing", wantErr: true, wantMessage: "invalid input: url, title, user_id required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, err := NewBookmarkInput(tt.url, tt.title, tt.userID)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidInput))
				assert.Equal(t, tt.wantMessage, err.Error())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, BookmarkInput{URL: "https://go.dev", Title: "Go", UserID: "u1"}, in)
		})
	}
}
