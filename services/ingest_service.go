package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/edudati/openheal-research/models"
	"github.com/edudati/openheal-research/repositories"
	"github.com/edudati/openheal-research/storage"
	"github.com/google/uuid"
)

const (
	msgRequired    = "This field is required."
	msgNotBlank    = "This field may not be blank."
	msgInvalidDate = "Invalid ISO8601 datetime"
)

// IngestValidationError lists every problem of a telemetry payload, keyed by
// field path (e.g. "tracking[2].position").
type IngestValidationError struct {
	Errors map[string][]string
}

func (e *IngestValidationError) Error() string {
	return fmt.Sprintf("invalid ingest payload: %d field(s)", len(e.Errors))
}

func (e *IngestValidationError) Is(target error) bool {
	return target == ErrValidationFailed
}

func (e *IngestValidationError) add(field, msg string) {
	if e.Errors == nil {
		e.Errors = make(map[string][]string)
	}
	e.Errors[field] = append(e.Errors[field], msg)
}

type IngestResult struct {
	ID       string `json:"id"`
	Received int    `json:"received"`
}

// IngestService stores telemetry chunks and optionally archives the raw
// payload in object storage.
type IngestService struct {
	repo     repositories.IngestRepository
	archiver storage.Archiver
	logger   *slog.Logger
	now      func() time.Time
}

func NewIngestService(repo repositories.IngestRepository, archiver storage.Archiver, logger *slog.Logger) *IngestService {
	if logger == nil {
		logger = slog.Default()
	}
	return &IngestService{repo: repo, archiver: archiver, logger: logger, now: time.Now}
}

func (s *IngestService) Ingest(ctx context.Context, body []byte) (*IngestResult, error) {
	chunk, err := parseIngestChunk(body)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	chunk.ID = uuid.NewString()
	chunk.CreatedAt = now
	chunk.UpdatedAt = now
	if err := s.repo.Create(ctx, chunk); err != nil {
		return nil, fmt.Errorf("failed to store ingest chunk: %w", err)
	}

	if s.archiver != nil {
		key := ArchiveKey(chunk.RobloxUserID, chunk.ID)
		if _, err := s.archiver.Upload(ctx, key, "application/json", bytes.NewReader(body)); err != nil {
			s.logger.Error("failed to archive ingest chunk", slog.String("chunk_id", chunk.ID), slog.Any("error", err))
		} else if err := s.repo.SetArchiveKey(ctx, chunk.ID, key); err != nil {
			s.logger.Error("failed to record archive key", slog.String("chunk_id", chunk.ID), slog.Any("error", err))
		}
	}

	return &IngestResult{ID: chunk.ID, Received: chunk.TrackingCount}, nil
}

// ArchiveKey returns the object key of a raw ingest payload.
func ArchiveKey(robloxUserID, chunkID string) string {
	return "ingest/" + url.PathEscape(robloxUserID) + "/" + chunkID + ".json"
}

// parseIngestChunk validates the payload field by field so every problem is
// reported at once. Unknown keys are ignored.
func parseIngestChunk(body []byte) (*models.IngestChunk, error) {
	verr := &IngestValidationError{}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil || raw == nil {
		verr.add("non_field_errors", "Invalid data. Expected a JSON object.")
		return nil, verr
	}

	chunk := &models.IngestChunk{}

	if v, ok := present(raw, "user_id"); ok {
		var id int
		if err := json.Unmarshal(v, &id); err != nil {
			verr.add("user_id", "A valid integer is required.")
		} else {
			chunk.UserID = &id
		}
	}

	chunk.RobloxUserID = requiredString(verr, raw, "roblox_user_id")
	chunk.RobloxUserName = requiredString(verr, raw, "roblox_user_name")

	if start := requiredString(verr, raw, "race_start"); start != "" {
		t, ok := parseISODateTime(start)
		if !ok {
			verr.add("race_start", msgInvalidDate)
		}
		chunk.RaceStart = t
	}

	if v, ok := present(raw, "race_time"); ok {
		if err := json.Unmarshal(v, &chunk.RaceTime); err != nil {
			verr.add("race_time", "A valid number is required.")
		}
	}

	chunk.Collisions = json.RawMessage("[]")
	if v, ok := present(raw, "collisions"); ok {
		var collisions []map[string]json.RawMessage
		if err := json.Unmarshal(v, &collisions); err != nil {
			verr.add("collisions", "Expected a list of items.")
		} else {
			clean := make([]models.Collision, len(collisions))
			for i, c := range collisions {
				prefix := fmt.Sprintf("collisions[%d].", i)
				clean[i].Timestamp = requiredNumber(verr, c, "timestamp", prefix)
				clean[i].BarrierID = requiredStringAt(verr, c, "barrier_id", prefix)
			}
			chunk.Collisions, _ = json.Marshal(clean)
		}
	}

	v, ok := present(raw, "tracking")
	if !ok {
		verr.add("tracking", msgRequired)
	} else {
		var items []map[string]json.RawMessage
		if err := json.Unmarshal(v, &items); err != nil {
			verr.add("tracking", "Expected a list of items.")
		} else {
			clean := make([]models.TrackingItem, len(items))
			for i, item := range items {
				clean[i] = parseTrackingItem(verr, item, fmt.Sprintf("tracking[%d].", i))
			}
			chunk.Tracking, _ = json.Marshal(clean)
			chunk.TrackingCount = len(clean)
		}
	}

	if len(verr.Errors) > 0 {
		return nil, verr
	}
	return chunk, nil
}

func parseTrackingItem(verr *IngestValidationError, item map[string]json.RawMessage, prefix string) models.TrackingItem {
	out := models.TrackingItem{
		Timestamp: requiredNumber(verr, item, "timestamp", prefix),
		Position:  requiredVector(verr, item, "position", prefix),
		Velocity:  requiredVector(verr, item, "velocity", prefix),
		Direction: requiredVector(verr, item, "direction", prefix),
		State:     requiredStringAt(verr, item, "state", prefix),
	}
	if v, ok := present(item, "segment_id"); ok {
		if err := json.Unmarshal(v, &out.SegmentID); err != nil {
			verr.add(prefix+"segment_id", "Not a valid string.")
		}
	}
	if v, ok := present(item, "gravity"); ok {
		var g float64
		if err := json.Unmarshal(v, &g); err != nil {
			verr.add(prefix+"gravity", "A valid number is required.")
		} else {
			out.Gravity = &g
		}
	}
	return out
}

// present reports whether key is set to something other than null.
func present(raw map[string]json.RawMessage, key string) (json.RawMessage, bool) {
	v, ok := raw[key]
	if !ok || string(v) == "null" {
		return nil, false
	}
	return v, true
}

func requiredString(verr *IngestValidationError, raw map[string]json.RawMessage, key string) string {
	return requiredStringAt(verr, raw, key, "")
}

func requiredStringAt(verr *IngestValidationError, raw map[string]json.RawMessage, key, prefix string) string {
	v, ok := present(raw, key)
	if !ok {
		verr.add(prefix+key, msgRequired)
		return ""
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		// numbers are accepted and kept as their text
		var n json.Number
		dec := json.NewDecoder(bytes.NewReader(v))
		dec.UseNumber()
		if dec.Decode(&n) != nil {
			verr.add(prefix+key, "Not a valid string.")
			return ""
		}
		s = n.String()
	}
	s = strings.TrimSpace(s)
	if s == "" {
		verr.add(prefix+key, msgNotBlank)
	}
	return s
}

func requiredNumber(verr *IngestValidationError, raw map[string]json.RawMessage, key, prefix string) float64 {
	v, ok := present(raw, key)
	if !ok {
		verr.add(prefix+key, msgRequired)
		return 0
	}
	var f float64
	if err := json.Unmarshal(v, &f); err != nil {
		verr.add(prefix+key, "A valid number is required.")
	}
	return f
}

func requiredVector(verr *IngestValidationError, raw map[string]json.RawMessage, key, prefix string) [3]float64 {
	var out [3]float64
	v, ok := present(raw, key)
	if !ok {
		verr.add(prefix+key, msgRequired)
		return out
	}
	var list []float64
	if err := json.Unmarshal(v, &list); err != nil {
		verr.add(prefix+key, "Expected a list of 3 numbers.")
		return out
	}
	if len(list) != 3 {
		verr.add(prefix+key, "Ensure this field has exactly 3 elements.")
		return out
	}
	copy(out[:], list)
	return out
}

var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999Z07",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04",
}

// parseISODateTime accepts ISO-8601 date-times with "T" or a space between
// date and time; values without an offset are taken as UTC.
func parseISODateTime(s string) (time.Time, bool) {
	s = strings.Replace(strings.TrimSpace(s), " ", "T", 1)
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
