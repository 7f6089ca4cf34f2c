package registry

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/plugin-mirror/internal/cursor"
)

func TestPlugin_UnmarshalJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		payload     string
		wantSlug    string
		wantTime    time.Time
		wantVersion string
		wantErr     bool
	}{
		{
			name:        "directory payload",
			payload:     `{"slug":"akismet","name":"Akismet","version":"5.3","last_updated":"2024-03-05 4:15pm GMT"}`,
			wantSlug:    "akismet",
			wantTime:    time.Date(2024, 3, 5, 16, 15, 0, 0, time.UTC),
			wantVersion: "5.3",
		},
		{
			name:     "upstream last_updated_time is ignored",
			payload:  `{"slug":"hello","last_updated":"2024-03-05 4:15pm GMT","last_updated_time":"1999-01-01T00:00:00Z"}`,
			wantSlug: "hello",
			wantTime: time.Date(2024, 3, 5, 16, 15, 0, 0, time.UTC),
		},
		{
			name:     "malformed timestamp decodes to epoch",
			payload:  `{"slug":"broken","last_updated":"soon"}`,
			wantSlug: "broken",
			wantTime: cursor.Epoch,
		},
		{
			name:     "non string timestamp decodes to epoch",
			payload:  `{"slug":"odd","last_updated":false}`,
			wantSlug: "odd",
			wantTime: cursor.Epoch,
		},
		{
			name:    "not an object",
			payload: `[1,2,3]`,
			wantErr: true,
		},
		{
			name:    "null payload",
			payload: `null`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var plugin Plugin
			err := json.Unmarshal([]byte(tt.payload), &plugin)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantSlug, plugin.Slug)
			assert.True(t, tt.wantTime.Equal(plugin.LastUpdatedTime))
			assert.Equal(t, tt.wantVersion, plugin.Version())
			assert.NotContains(t, plugin.Fields, "last_updated_time")
		})
	}
}

func TestPlugin_MarshalJSON_PreservesPayload(t *testing.T) {
	t.Parallel()

	payload := `{"slug":"akismet","name":"Akismet","rating":98,"sections":{"faq":"<p>hi</p>"},` +
		`"last_updated":"2024-03-05 4:15pm GMT"}`

	var plugin Plugin
	require.NoError(t, json.Unmarshal([]byte(payload), &plugin))

	out, err := json.Marshal(&plugin)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(out, &got))
	assert.Equal(t, "akismet", got["slug"])
	assert.Equal(t, "Akismet", got["name"])
	assert.EqualValues(t, 98, got["rating"])
	assert.Equal(t, map[string]any{"faq": "<p>hi</p>"}, got["sections"])
	assert.Equal(t, "2024-03-05 4:15pm GMT", got["last_updated"])
	assert.Equal(t, "2024-03-05T16:15:00Z", got["last_updated_time"])
}

func TestPlugin_Tags(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		payload string
		want    []string
	}{
		{"object form", `{"slug":"a","tags":{"spam":"Spam","comments":"Comments"}}`, []string{"comments", "spam"}},
		{"list form", `{"slug":"a","tags":["seo","forms"]}`, []string{"forms", "seo"}},
		{"missing", `{"slug":"a"}`, []string{}},
		{"empty list", `{"slug":"a","tags":[]}`, []string{}},
		{"unexpected shape", `{"slug":"a","tags":42}`, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var plugin Plugin
			require.NoError(t, json.Unmarshal([]byte(tt.payload), &plugin))
			assert.Equal(t, tt.want, plugin.Tags())
		})
	}
}

func TestNewTestPlugin(t *testing.T) {
	t.Parallel()

	ts := time.Date(2024, 3, 5, 16, 15, 0, 0, time.UTC)
	plugin := NewTestPlugin("hello-dolly",
		WithLastUpdatedTime(ts),
		WithVersion("2.1.0"),
		WithTags("fun"),
	)

	assert.Equal(t, "hello-dolly", plugin.Slug)
	assert.Equal(t, "2024-03-05 4:15pm GMT", plugin.LastUpdated)
	assert.True(t, ts.Equal(plugin.LastUpdatedTime))
	assert.Equal(t, "2.1.0", plugin.Version())
	assert.Equal(t, "hello-dolly plugin", plugin.Name())
	assert.Equal(t, []string{"fun"}, plugin.Tags())
}
