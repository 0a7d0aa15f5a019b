package nodelink

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"

	"github.com/orris-inc/soundmesh/internal/domain/track"
	"github.com/orris-inc/soundmesh/internal/shared/errors"
	"github.com/orris-inc/soundmesh/internal/shared/listener"
)

const (
	DefaultVolume = 100
	MaxVolume     = 1000
)

// EndEvent is emitted when the node reports a track ended. MayStartNext is
// false when the end was caused by a replace, stop or cleanup.
type EndEvent struct {
	Track        *track.AudioTrack
	Reason       track.EndReason
	MayStartNext bool
}

type ErrorEvent struct {
	Track     *track.AudioTrack
	Exception *RemoteTrackException
}

type StuckEvent struct {
	Track       *track.AudioTrack
	ThresholdMs int64
}

// VoiceCredentials are the voice session values last sent for a player.
type VoiceCredentials struct {
	SessionID string
	Event     json.RawMessage
}

// Player is one guild's playback session on a link.
type Player struct {
	guildID snowflake.ID

	mu        sync.Mutex
	link      *Link
	track     *track.AudioTrack
	paused    bool
	volume    int
	position  int64
	updatedAt time.Time
	voice     VoiceCredentials
	destroyed bool

	startListeners   listener.Set[*track.AudioTrack]
	stopListeners    listener.Set[struct{}]
	destroyListeners listener.Set[struct{}]
	pausedListeners  listener.Set[bool]
	endListeners     listener.Set[EndEvent]
	errorListeners   listener.Set[ErrorEvent]
	stuckListeners   listener.Set[StuckEvent]
}

func newPlayer(l *Link, guildID snowflake.ID) *Player {
	return &Player{
		guildID: guildID,
		link:    l,
		volume:  DefaultVolume,
	}
}

func (p *Player) OnStart(fn func(*track.AudioTrack)) func() { return p.startListeners.Add(fn) }
func (p *Player) OnStop(fn func()) func()                   { return p.stopListeners.Add(func(struct{}) { fn() }) }
func (p *Player) OnDestroy(fn func()) func()                { return p.destroyListeners.Add(func(struct{}) { fn() }) }
func (p *Player) OnPaused(fn func(bool)) func()             { return p.pausedListeners.Add(fn) }
func (p *Player) OnEnd(fn func(EndEvent)) func()            { return p.endListeners.Add(fn) }
func (p *Player) OnError(fn func(ErrorEvent)) func()        { return p.errorListeners.Add(fn) }
func (p *Player) OnStuck(fn func(StuckEvent)) func()        { return p.stuckListeners.Add(fn) }

func (p *Player) GuildID() snowflake.ID { return p.guildID }

// Link returns the link the player is bound to, or nil once destroyed.
func (p *Player) Link() *Link {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.link
}

func (p *Player) Track() *track.AudioTrack {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.track
}

func (p *Player) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

func (p *Player) Volume() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

func (p *Player) Destroyed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.destroyed
}

func (p *Player) VoiceCredentials() VoiceCredentials {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.voice
}

// LastPosition extrapolates the playback position in milliseconds from the
// last known sample. It never exceeds the track duration and does not move
// while paused.
func (p *Player) LastPosition() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastPositionLocked(time.Now())
}

func (p *Player) lastPositionLocked(now time.Time) int64 {
	if p.track == nil {
		return 0
	}
	pos := p.position
	if !p.paused && !p.updatedAt.IsZero() {
		if elapsed := now.Sub(p.updatedAt).Milliseconds(); elapsed > 0 {
			pos += elapsed
		}
	}
	if pos > p.track.Duration {
		pos = p.track.Duration
	}
	if pos < 0 {
		pos = 0
	}
	return pos
}

// send writes a packet through the player's current link.
func (p *Player) send(packet any) error {
	p.mu.Lock()
	if p.destroyed || p.link == nil {
		p.mu.Unlock()
		return errors.NewPlayerDestroyedError("player is destroyed", p.guildID.String())
	}
	l := p.link
	p.mu.Unlock()
	return l.Send(packet)
}

// Play starts t at startMs. endMs of zero plays to the end. The current
// pause state and volume are sent along.
func (p *Player) Play(t *track.AudioTrack, startMs, endMs int64) error {
	if t == nil {
		return errors.NewValidationError("track is required")
	}
	if startMs < 0 {
		startMs = 0
	}

	p.mu.Lock()
	packet := playPacket{
		Op:        OpPlay,
		GuildID:   p.guildID,
		Track:     t.Encoded,
		Volume:    p.volume,
		Pause:     p.paused,
		StartTime: startMs,
		EndTime:   endMs,
	}
	p.mu.Unlock()

	if err := p.send(packet); err != nil {
		return fmt.Errorf("play track: %w", err)
	}

	p.mu.Lock()
	p.track = t
	p.position = startMs
	p.updatedAt = time.Now()
	p.mu.Unlock()

	p.startListeners.Emit(t)
	return nil
}

// Stop stops the current track. It does nothing if no track is playing.
func (p *Player) Stop() error {
	p.mu.Lock()
	hasTrack := p.track != nil
	p.mu.Unlock()
	if !hasTrack {
		return nil
	}

	if err := p.send(guildPacket{Op: OpStop, GuildID: p.guildID}); err != nil {
		return fmt.Errorf("stop track: %w", err)
	}

	p.ClearTrack()
	p.stopListeners.Emit(struct{}{})
	return nil
}

// ClearTrack forgets the current track without telling the node.
func (p *Player) ClearTrack() {
	p.mu.Lock()
	p.track = nil
	p.position = 0
	p.updatedAt = time.Time{}
	p.mu.Unlock()
}

// Destroy tells the node to drop the player, removes it from its link and
// makes it unusable. The destroy packet is best effort.
func (p *Player) Destroy() {
	p.mu.Lock()
	if p.destroyed {
		p.mu.Unlock()
		return
	}
	l := p.link
	p.mu.Unlock()

	if l != nil {
		_ = l.Send(guildPacket{Op: OpDestroy, GuildID: p.guildID})
		l.removePlayer(p.guildID, p)
	}
	p.finishDestroy()
}

// Abandon destroys the player without contacting the node. It is for
// players whose node session is already gone.
func (p *Player) Abandon() {
	p.destroyLocal()
}

// Detach removes the player from its link without telling the node. Like
// DetachPlayers, the player keeps its link reference until it is attached
// elsewhere.
func (p *Player) Detach() {
	p.mu.Lock()
	l := p.link
	p.mu.Unlock()
	if l != nil {
		l.removePlayer(p.guildID, p)
	}
}

// destroyLocal destroys the player without contacting the node, for when
// its socket is already gone.
func (p *Player) destroyLocal() {
	p.mu.Lock()
	if p.destroyed {
		p.mu.Unlock()
		return
	}
	l := p.link
	p.mu.Unlock()

	if l != nil {
		l.removePlayer(p.guildID, p)
	}
	p.finishDestroy()
}

func (p *Player) finishDestroy() {
	p.mu.Lock()
	if p.destroyed {
		p.mu.Unlock()
		return
	}
	p.destroyed = true
	p.track = nil
	p.position = 0
	p.mu.Unlock()

	p.destroyListeners.Emit(struct{}{})

	p.mu.Lock()
	p.link = nil
	p.mu.Unlock()
}

// SeekTo moves playback to positionMs, clamped to the track duration.
func (p *Player) SeekTo(positionMs int64) error {
	p.mu.Lock()
	if p.destroyed {
		p.mu.Unlock()
		return errors.NewPlayerDestroyedError("player is destroyed", p.guildID.String())
	}
	t := p.track
	if t == nil {
		p.mu.Unlock()
		return nil
	}
	if !t.Seekable {
		p.mu.Unlock()
		return errors.NewNotSeekableError("track is not seekable", t.Identifier)
	}
	if positionMs < 0 {
		positionMs = 0
	}
	if positionMs > t.Duration {
		positionMs = t.Duration
	}
	unchanged := positionMs == p.position
	p.mu.Unlock()
	if unchanged {
		return nil
	}

	if err := p.send(seekPacket{Op: OpSeek, GuildID: p.guildID, Position: positionMs}); err != nil {
		return fmt.Errorf("seek: %w", err)
	}

	p.mu.Lock()
	p.position = positionMs
	p.updatedAt = time.Now()
	p.mu.Unlock()
	return nil
}

// SetPaused pauses or resumes playback. It does nothing without a track or
// if the state is unchanged.
func (p *Player) SetPaused(paused bool) error {
	p.mu.Lock()
	if p.destroyed {
		p.mu.Unlock()
		return errors.NewPlayerDestroyedError("player is destroyed", p.guildID.String())
	}
	if p.track == nil || p.paused == paused {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	if err := p.send(pausePacket{Op: OpPause, GuildID: p.guildID, Pause: paused}); err != nil {
		return fmt.Errorf("set paused: %w", err)
	}

	p.mu.Lock()
	now := time.Now()
	// freeze the extrapolated position at the moment of the switch
	p.position = p.lastPositionLocked(now)
	p.updatedAt = now
	p.paused = paused
	p.mu.Unlock()

	p.pausedListeners.Emit(paused)
	return nil
}

// SetVolume sets the volume, clamped to 0..1000. It does nothing without a
// track or if the volume is unchanged.
func (p *Player) SetVolume(volume int) error {
	if volume < 0 {
		volume = 0
	}
	if volume > MaxVolume {
		volume = MaxVolume
	}

	p.mu.Lock()
	if p.destroyed {
		p.mu.Unlock()
		return errors.NewPlayerDestroyedError("player is destroyed", p.guildID.String())
	}
	if p.track == nil || p.volume == volume {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	if err := p.send(volumePacket{Op: OpVolume, GuildID: p.guildID, Volume: volume}); err != nil {
		return fmt.Errorf("set volume: %w", err)
	}

	p.mu.Lock()
	p.volume = volume
	p.mu.Unlock()
	return nil
}

// SendVoiceUpdate forwards the voice session to the node and remembers it so
// it can be replayed on another node.
func (p *Player) SendVoiceUpdate(sessionID string, event json.RawMessage) error {
	packet := voiceUpdatePacket{
		Op:        OpVoiceUpdate,
		GuildID:   p.guildID,
		SessionID: sessionID,
		Event:     event,
	}
	if err := p.send(packet); err != nil {
		return fmt.Errorf("send voice update: %w", err)
	}

	p.mu.Lock()
	p.voice = VoiceCredentials{SessionID: sessionID, Event: event}
	p.mu.Unlock()
	return nil
}

// SetVoiceCredentials replaces the stored voice session without sending it.
// The credentials go out with the next attach.
func (p *Player) SetVoiceCredentials(sessionID string, event json.RawMessage) {
	p.mu.Lock()
	p.voice = VoiceCredentials{SessionID: sessionID, Event: event}
	p.mu.Unlock()
}

// UpdateState applies a position report from the node. The node's
// timestamp is used unless it lies in the future.
func (p *Player) UpdateState(state PlayerState) {
	now := time.Now()
	at := now
	if state.Time > 0 {
		if reported := time.UnixMilli(state.Time); reported.Before(now) {
			at = reported
		}
	}

	p.mu.Lock()
	p.position = state.Position
	p.updatedAt = at
	p.mu.Unlock()
}

// AttachTo moves the player onto target. A different player already held by
// target for the same guild is destroyed.
func (p *Player) AttachTo(target *Link) error {
	p.mu.Lock()
	if p.destroyed {
		p.mu.Unlock()
		return errors.NewPlayerDestroyedError("player is destroyed", p.guildID.String())
	}
	old := p.link
	p.mu.Unlock()

	if old == target {
		target.putPlayer(p)
		return nil
	}
	if old != nil {
		old.removePlayer(p.guildID, p)
	}

	p.mu.Lock()
	p.link = target
	p.mu.Unlock()

	if prev := target.putPlayer(p); prev != nil && prev != p {
		_ = target.Send(guildPacket{Op: OpDestroy, GuildID: prev.guildID})
		prev.finishDestroy()
	}
	return nil
}

// trackFor resolves the track a node event refers to, preferring the
// player's current track.
func (p *Player) trackFor(encoded string) *track.AudioTrack {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.track != nil && (encoded == "" || p.track.Encoded == encoded) {
		return p.track
	}
	return &track.AudioTrack{Encoded: encoded}
}

func (p *Player) handleTrackEnd(encoded string, reason track.EndReason) {
	t := p.trackFor(encoded)

	if reason != track.EndReasonReplaced {
		p.mu.Lock()
		if p.track == t {
			p.track = nil
			p.position = 0
		}
		p.mu.Unlock()
	}

	p.endListeners.Emit(EndEvent{Track: t, Reason: reason, MayStartNext: reason.MayStartNext()})
}

func (p *Player) handleTrackException(encoded string, exc *RemoteTrackException) {
	p.errorListeners.Emit(ErrorEvent{Track: p.trackFor(encoded), Exception: exc})
}

func (p *Player) handleTrackStuck(encoded string, thresholdMs int64) {
	p.stuckListeners.Emit(StuckEvent{Track: p.trackFor(encoded), ThresholdMs: thresholdMs})
}
