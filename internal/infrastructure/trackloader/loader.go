// Package trackloader resolves identifiers and search queries through a
// node's /loadtracks HTTP endpoint.
package trackloader

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/orris-inc/soundmesh/internal/domain/node"
	"github.com/orris-inc/soundmesh/internal/domain/track"
	"github.com/orris-inc/soundmesh/internal/shared/errors"
)

// HTTPDoer is the part of *http.Client the loader needs.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Loader performs track resolution requests.
type Loader struct {
	httpClient HTTPDoer
}

// New creates a loader. A nil doer uses an http.Client with a 30s timeout.
func New(doer HTTPDoer) *Loader {
	if doer == nil {
		doer = &http.Client{Timeout: 30 * time.Second}
	}
	return &Loader{httpClient: doer}
}

type loadTracksResponse struct {
	LoadType     track.LoadType `json:"loadType"`
	PlaylistInfo *struct {
		Name          string `json:"name"`
		SelectedTrack *int   `json:"selectedTrack"`
	} `json:"playlistInfo"`
	Tracks    []track.Record `json:"tracks"`
	Exception *struct {
		Message  string `json:"message"`
		Severity string `json:"severity"`
	} `json:"exception"`
}

// Resolve looks up query on n. NO_MATCHES and LOAD_FAILED come back as
// errors of type no_matches and load_failed.
func (l *Loader) Resolve(ctx context.Context, n *node.Node, query string) (*track.LoadResult, error) {
	endpoint := strings.TrimSuffix(n.HTTPHost(), "/") + "/loadtracks?" + url.Values{"identifier": {query}}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", n.Password())
	req.Header.Set("Accept", "application/json")

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, errors.NewProtocolError("node rejected the password", n.Name())
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.NewProtocolError(fmt.Sprintf("loadtracks failed: status=%d", resp.StatusCode), string(body))
	}

	var data loadTracksResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, errors.NewProtocolError("invalid JSON while resolving tracks", err.Error())
	}

	return toResult(&data)
}

func toResult(data *loadTracksResponse) (*track.LoadResult, error) {
	switch data.LoadType {
	case track.LoadTypeTrackLoaded:
		if len(data.Tracks) == 0 {
			return nil, errors.NewProtocolError("TRACK_LOADED response without tracks")
		}
		return &track.LoadResult{Type: data.LoadType, Track: track.Create(data.Tracks[0])}, nil

	case track.LoadTypePlaylistLoaded:
		var name string
		var selected *int
		if data.PlaylistInfo != nil {
			name = data.PlaylistInfo.Name
			selected = data.PlaylistInfo.SelectedTrack
		}
		return &track.LoadResult{
			Type:     data.LoadType,
			Playlist: track.NewPlaylist(name, selected, data.Tracks),
		}, nil

	case track.LoadTypeSearchResult:
		result := &track.LoadResult{
			Type:          data.LoadType,
			SearchResults: make(map[string]*track.AudioTrack, len(data.Tracks)),
		}
		for _, r := range data.Tracks {
			t := track.Create(r)
			if _, dup := result.SearchResults[t.Identifier]; !dup {
				result.SearchOrder = append(result.SearchOrder, t.Identifier)
			}
			result.SearchResults[t.Identifier] = t
		}
		return result, nil

	case track.LoadTypeNoMatches:
		return nil, errors.NewNoMatchesError("no matching tracks found")

	case track.LoadTypeLoadFailed:
		if data.Exception != nil {
			return nil, errors.NewLoadFailedError("loading track failed", data.Exception.Message)
		}
		return nil, errors.NewLoadFailedError("loading track failed")
	}

	return nil, errors.NewProtocolError(fmt.Sprintf("unknown loadType %q", data.LoadType))
}
