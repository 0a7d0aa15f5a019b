// Package track contains the audio track value types returned by node track
// resolution and carried by players.
package track

import (
	"encoding/json"
	"fmt"
)

// AudioTrack is an immutable track description. Encoded is the opaque blob
// the node needs to play the track.
type AudioTrack struct {
	Encoded    string  `json:"track"`
	Title      string  `json:"title"`
	Author     string  `json:"author"`
	Duration   int64   `json:"duration"`
	Identifier string  `json:"identifier"`
	Stream     bool    `json:"stream"`
	Seekable   bool    `json:"seekable"`
	URL        *string `json:"url,omitempty"`
}

// Record is a track as the node encodes it: the blob plus an info object
// whose fields may be missing.
type Record struct {
	Track string     `json:"track"`
	Info  RecordInfo `json:"info"`
}

// RecordInfo holds the optional descriptive fields of a Record.
type RecordInfo struct {
	Title      *string `json:"title"`
	Author     *string `json:"author"`
	Length     *int64  `json:"length"`
	Identifier *string `json:"identifier"`
	IsStream   *bool   `json:"isStream"`
	IsSeekable *bool   `json:"isSeekable"`
	URI        *string `json:"uri"`
}

// Create builds an AudioTrack from a node record, applying zero defaults for
// every missing info field.
func Create(r Record) *AudioTrack {
	t := &AudioTrack{Encoded: r.Track, URL: r.Info.URI}
	if r.Info.Title != nil {
		t.Title = *r.Info.Title
	}
	if r.Info.Author != nil {
		t.Author = *r.Info.Author
	}
	if r.Info.Length != nil {
		t.Duration = *r.Info.Length
	}
	if r.Info.Identifier != nil {
		t.Identifier = *r.Info.Identifier
	}
	if r.Info.IsStream != nil {
		t.Stream = *r.Info.IsStream
	}
	if r.Info.IsSeekable != nil {
		t.Seekable = *r.Info.IsSeekable
	}
	return t
}

// Decode parses a single node track record.
func Decode(data []byte) (*AudioTrack, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode track record: %w", err)
	}
	return Create(r), nil
}

// AudioPlaylist is an ordered list of tracks. Name and SelectedTrack are
// absent on older node versions.
type AudioPlaylist struct {
	Name          string        `json:"name,omitempty"`
	SelectedTrack *int          `json:"selectedTrack,omitempty"`
	Tracks        []*AudioTrack `json:"tracks"`
}

// NewPlaylist builds a playlist from node records in order.
func NewPlaylist(name string, selected *int, records []Record) *AudioPlaylist {
	p := &AudioPlaylist{
		Name:          name,
		SelectedTrack: selected,
		Tracks:        make([]*AudioTrack, 0, len(records)),
	}
	for _, r := range records {
		p.Tracks = append(p.Tracks, Create(r))
	}
	return p
}

// Selected returns the selected track, or nil if none is selected or the
// index is out of range.
func (p *AudioPlaylist) Selected() *AudioTrack {
	if p.SelectedTrack == nil {
		return nil
	}
	i := *p.SelectedTrack
	if i < 0 || i >= len(p.Tracks) {
		return nil
	}
	return p.Tracks[i]
}
