package pipeline

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// JobEnvelope is the message routed between stages. It only references rows
// by id; workers load everything else from the store.
type JobEnvelope struct {
	AlbumID *uuid.UUID `json:"album_id"`
	TrackID *uuid.UUID `json:"track_id"`
	FileID  *uuid.UUID `json:"file_id"`
	Stage   Stage      `json:"stage"`
}

// NewAlbumJob builds a job for a stage keyed by album.
func NewAlbumJob(stage Stage, albumID uuid.UUID) JobEnvelope {
	return JobEnvelope{AlbumID: &albumID, Stage: stage}
}

// NewFileJob builds a job for a stage keyed by file. albumID may be uuid.Nil
// when the caller does not know it.
func NewFileJob(stage Stage, albumID, fileID uuid.UUID) JobEnvelope {
	env := JobEnvelope{FileID: &fileID, Stage: stage}
	if albumID != uuid.Nil {
		env.AlbumID = &albumID
	}
	return env
}

// Validate checks the stage and the identifiers it requires.
func (e JobEnvelope) Validate() error {
	if !e.Stage.Valid() {
		return malformed("missing or unknown stage")
	}
	for _, id := range e.Stage.Requires() {
		if e.id(id) == nil {
			return malformed(fmt.Sprintf("%s required for stage %s", id, e.Stage))
		}
	}
	return nil
}

func (e JobEnvelope) id(which Identifier) *uuid.UUID {
	switch which {
	case AlbumID:
		return e.AlbumID
	case TrackID:
		return e.TrackID
	case FileID:
		return e.FileID
	}
	return nil
}

// Album returns the album id or uuid.Nil.
func (e JobEnvelope) Album() uuid.UUID {
	if e.AlbumID == nil {
		return uuid.Nil
	}
	return *e.AlbumID
}

// File returns the file id or uuid.Nil.
func (e JobEnvelope) File() uuid.UUID {
	if e.FileID == nil {
		return uuid.Nil
	}
	return *e.FileID
}

// Encode serializes a valid envelope to its JSON wire form.
func Encode(env JobEnvelope) ([]byte, error) {
	if err := env.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(env)
}

// Decode parses a wire payload. Every failure matches ErrMalformedJob.
// Unknown fields are ignored so new optional identifiers can be rolled out
// before every worker knows about them.
func Decode(body []byte) (JobEnvelope, error) {
	var env JobEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return JobEnvelope{}, malformed(err.Error())
	}
	if err := env.Validate(); err != nil {
		return JobEnvelope{}, err
	}
	return env, nil
}
