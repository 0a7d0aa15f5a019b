package resolve

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orris-inc/soundmesh/internal/domain/node"
	"github.com/orris-inc/soundmesh/internal/domain/track"
	"github.com/orris-inc/soundmesh/internal/infrastructure/nodelink"
	"github.com/orris-inc/soundmesh/internal/shared/errors"
)

func newLinks(names ...string) []*nodelink.Link {
	out := make([]*nodelink.Link, 0, len(names))
	for _, name := range names {
		n := node.New(name, "pw", "http://127.0.0.1:2333", "ws://127.0.0.1:2333", "")
		out = append(out, nodelink.New(n, nodelink.Options{}))
	}
	return out
}

func TestPickLink(t *testing.T) {
	links := newLinks("alpha", "beta")

	l, err := pickLink(links, "")
	require.NoError(t, err)
	assert.Equal(t, "alpha", l.Node().Name())

	l, err = pickLink(links, "beta")
	require.NoError(t, err)
	assert.Equal(t, "beta", l.Node().Name())

	_, err = pickLink(links, "gamma")
	assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))

	_, err = pickLink(nil, "")
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
}

func TestPrintResult_Playlist(t *testing.T) {
	selected := 1
	res := &track.LoadResult{
		Type: track.LoadTypePlaylistLoaded,
		Playlist: &track.AudioPlaylist{
			Name:          "Mix",
			SelectedTrack: &selected,
			Tracks: []*track.AudioTrack{
				{Title: "One", Author: "A", Duration: 61_000, Identifier: "id1"},
				{Title: "Two", Author: "B", Duration: 3_723_000, Identifier: "id2"},
				{Title: "Radio", Author: "C", Stream: true, Identifier: "id3"},
			},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, printResult(&buf, "alpha", res))
	out := buf.String()

	assert.Contains(t, out, "Load type: PLAYLIST_LOADED")
	assert.Contains(t, out, "Playlist:  Mix")
	assert.Contains(t, out, "   1. A - One [1:01] id1")
	assert.Contains(t, out, "*  2. B - Two [1:02:03] id2")
	assert.Contains(t, out, "   3. C - Radio [live] id3")
}

func TestPrintResult_NoTracks(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printResult(&buf, "alpha", &track.LoadResult{Type: track.LoadTypeSearchResult}))
	assert.Contains(t, buf.String(), "No tracks.")
}
