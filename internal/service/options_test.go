package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryOptions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		opts     []Option[QueryOptions]
		expected QueryOptions
		wantErr  string
	}{
		{name: "defaults", expected: QueryOptions{Page: 1, PerPage: DefaultPerPage}},
		{
			name:     "all set",
			opts:     []Option[QueryOptions]{WithPage(3), WithPerPage(50), WithBrowse("updated")},
			expected: QueryOptions{Page: 3, PerPage: 50, Browse: "updated"},
		},
		{
			name:     "per page clamped",
			opts:     []Option[QueryOptions]{WithPerPage(1000)},
			expected: QueryOptions{Page: 1, PerPage: MaxPerPage},
		},
		{
			name:     "other browse modes list in storage order",
			opts:     []Option[QueryOptions]{WithBrowse("popular")},
			expected: QueryOptions{Page: 1, PerPage: DefaultPerPage, Browse: "popular"},
		},
		{name: "zero page", opts: []Option[QueryOptions]{WithPage(0)}, wantErr: "invalid page"},
		{name: "negative per page", opts: []Option[QueryOptions]{WithPerPage(-1)}, wantErr: "invalid per_page"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			q := defaultQueryOptions()
			var err error
			for _, opt := range tt.opts {
				if err = opt(&q); err != nil {
					break
				}
			}

			if tt.wantErr != "" {
				require.Error(t, err)
				var vErr *ValidationError
				assert.ErrorAs(t, err, &vErr)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, q)
		})
	}
}
