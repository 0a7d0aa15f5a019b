package track

// LoadType discriminates the result of a track resolution.
type LoadType string

const (
	LoadTypeTrackLoaded    LoadType = "TRACK_LOADED"
	LoadTypePlaylistLoaded LoadType = "PLAYLIST_LOADED"
	LoadTypeSearchResult   LoadType = "SEARCH_RESULT"
	LoadTypeNoMatches      LoadType = "NO_MATCHES"
	LoadTypeLoadFailed     LoadType = "LOAD_FAILED"
)

// LoadResult is a successful resolution. Exactly one of Track, Playlist or
// SearchResults is set, according to Type.
type LoadResult struct {
	Type          LoadType               `json:"loadType"`
	Track         *AudioTrack            `json:"track,omitempty"`
	Playlist      *AudioPlaylist         `json:"playlist,omitempty"`
	SearchResults map[string]*AudioTrack `json:"searchResults,omitempty"`
	SearchOrder   []string               `json:"searchOrder,omitempty"`
}

// Tracks flattens the result into a list, keeping node order.
func (r *LoadResult) Tracks() []*AudioTrack {
	switch r.Type {
	case LoadTypeTrackLoaded:
		if r.Track == nil {
			return nil
		}
		return []*AudioTrack{r.Track}
	case LoadTypePlaylistLoaded:
		if r.Playlist == nil {
			return nil
		}
		return r.Playlist.Tracks
	case LoadTypeSearchResult:
		out := make([]*AudioTrack, 0, len(r.SearchOrder))
		for _, id := range r.SearchOrder {
			out = append(out, r.SearchResults[id])
		}
		return out
	}
	return nil
}

// EndReason is the reason a node reports in a TrackEndEvent.
type EndReason string

const (
	EndReasonFinished   EndReason = "FINISHED"
	EndReasonLoadFailed EndReason = "LOAD_FAILED"
	EndReasonStopped    EndReason = "STOPPED"
	EndReasonReplaced   EndReason = "REPLACED"
	EndReasonCleanup    EndReason = "CLEANUP"
)

// MayStartNext reports whether a track that ended for this reason leaves the
// player free to start another one. REPLACED, STOPPED and CLEANUP mean the
// stop came from elsewhere.
func (r EndReason) MayStartNext() bool {
	switch r {
	case EndReasonFinished, EndReasonLoadFailed:
		return true
	}
	return false
}
