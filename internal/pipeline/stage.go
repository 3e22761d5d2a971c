package pipeline

import (
	"fmt"
)

// Stage is one phase of the album pipeline. The zero value is not a valid
// stage, so a job without a stage never decodes.
type Stage int

const (
	Import Stage = iota + 1
	Fingerprint
	MatchTrack
	MatchAlbum
	TagTrack
	Index
)

// Exchange is the direct exchange every stage queue is bound to.
const Exchange = "jobs"

// RetryExchange parks deliveries waiting out their backoff delay.
const RetryExchange = "jobs.retry"

var stageNames = map[Stage]string{
	Import:      "import",
	Fingerprint: "fingerprint",
	MatchTrack:  "match_track",
	MatchAlbum:  "match_album",
	TagTrack:    "tag_track",
	Index:       "index",
}

// Stages returns every stage in pipeline order. Topology declaration derives
// its queue set from this list.
func Stages() []Stage {
	return []Stage{Import, Fingerprint, MatchTrack, MatchAlbum, TagTrack, Index}
}

// ParseStage maps a wire name back to its Stage.
func ParseStage(name string) (Stage, error) {
	for _, s := range Stages() {
		if stageNames[s] == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown stage %q", name)
}

// Valid reports whether s is a member of the closed stage set.
func (s Stage) Valid() bool {
	_, ok := stageNames[s]
	return ok
}

// String returns the wire name, e.g. "match_track".
func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// RoutingKey is the key used to publish jobs for this stage.
func (s Stage) RoutingKey() string {
	return s.String()
}

// QueueName is the durable queue consumed by this stage's workers.
func (s Stage) QueueName() string {
	return "queue." + s.String()
}

// RetryQueueName holds deliveries of this stage while they wait for redelivery.
func (s Stage) RetryQueueName() string {
	return s.QueueName() + ".retry"
}

// Next returns the stage that follows s. The second value is false for the
// last stage.
func (s Stage) Next() (Stage, bool) {
	switch s {
	case Import:
		return Fingerprint, true
	case Fingerprint:
		return MatchTrack, true
	case MatchTrack:
		return MatchAlbum, true
	case MatchAlbum:
		return TagTrack, true
	case TagTrack:
		return Index, true
	}
	return 0, false
}

// Identifier names one of the optional ids carried by a JobEnvelope.
type Identifier string

const (
	AlbumID Identifier = "album_id"
	TrackID Identifier = "track_id"
	FileID  Identifier = "file_id"
)

// Requires lists the identifiers a job of this stage must carry.
func (s Stage) Requires() []Identifier {
	switch s {
	case Import, MatchAlbum, Index:
		return []Identifier{AlbumID}
	case Fingerprint, MatchTrack, TagTrack:
		return []Identifier{FileID}
	}
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (s Stage) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid stage %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Stage) UnmarshalText(text []byte) error {
	parsed, err := ParseStage(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
