package entity

import "github.com/google/uuid"

// SampleJobMessage is the inbound message from the clip.sampling queue.
// FPS <= 0 keeps the native framerate; NumFrames == 0 samples the whole video.
type SampleJobMessage struct {
	JobID       uuid.UUID `json:"job_id"`
	UserID      string    `json:"user_id"`
	VideoKey    string    `json:"video_key"`
	NumFrames   int       `json:"num_frames"`
	FPS         float64   `json:"fps"`
	RandomChunk bool      `json:"random_chunk"`
	UserEmail   string    `json:"user_email"`
}

// SampleStatusMessage is the outbound message published to the clip.status queue.
type SampleStatusMessage struct {
	JobID        uuid.UUID `json:"job_id"`
	UserID       string    `json:"user_id"`
	Status       JobStatus `json:"status"`
	VideoKey     string    `json:"video_key"`
	ClipKey      string    `json:"clip_key,omitempty"`
	Shape        []int     `json:"shape,omitempty"`
	ValidLength  int       `json:"valid_length"`
	ErrorMessage string    `json:"error_message,omitempty"`
	Attempt      int       `json:"attempt"`
	MaxAttempts  int       `json:"max_attempts"`
}
