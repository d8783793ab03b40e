package store

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/maax3v3/colormix/internal/analysis"
)

// Keys under which the records are persisted.
const (
	HistoryKey     = "colormix_history"
	CalibrationKey = "colormix_calibration"
)

// ErrNotFound is returned when a record id does not exist.
var ErrNotFound = errors.New("record not found")

// Record is a saved analysis result.
type Record struct {
	analysis.Result
	ID            string `json:"id"`
	Timestamp     int64  `json:"timestamp"` // Unix milliseconds
	OriginalImage string `json:"originalImage"`
	ClientName    string `json:"clientName,omitempty"`
}

// Time returns the capture time of the record.
func (r Record) Time() time.Time { return time.UnixMilli(r.Timestamp) }

// History is the ordered list of saved records, newest first. It is safe
// for concurrent use.
type History struct {
	mu  sync.Mutex // serializes read-modify-write cycles
	kv  KV
	now func() time.Time
}

// NewHistory returns a History persisted in kv.
func NewHistory(kv KV) *History {
	return &History{kv: kv, now: time.Now}
}

// List returns all records, newest first. A missing key is an empty history.
func (h *History) List() ([]Record, error) {
	data, ok, err := h.kv.Get(HistoryKey)
	if err != nil || !ok {
		return nil, err
	}
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decoding history: %w", err)
	}
	return records, nil
}

// Get returns the record with the given id.
func (h *History) Get(id string) (Record, error) {
	records, err := h.List()
	if err != nil {
		return Record{}, err
	}
	for _, r := range records {
		if r.ID == id {
			return r, nil
		}
	}
	return Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Save prepends result to the history with a fresh id and timestamp.
func (h *History) Save(result analysis.Result, originalImage, clientName string) (Record, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	records, err := h.List()
	if err != nil {
		return Record{}, err
	}
	rec := Record{
		Result:        result,
		ID:            uuid.NewString(),
		Timestamp:     h.now().UnixMilli(),
		OriginalImage: originalImage,
		ClientName:    clientName,
	}
	for hasID(records, rec.ID) {
		rec.ID = uuid.NewString()
	}
	records = append([]Record{rec}, records...)
	if err := h.write(records); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Delete removes exactly the record with id, keeping the order of the rest.
func (h *History) Delete(id string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	records, err := h.List()
	if err != nil {
		return err
	}
	kept := records[:0:0]
	for _, r := range records {
		if r.ID != id {
			kept = append(kept, r)
		}
	}
	if len(kept) == len(records) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return h.write(kept)
}

func hasID(records []Record, id string) bool {
	for _, r := range records {
		if r.ID == id {
			return true
		}
	}
	return false
}

func (h *History) write(records []Record) error {
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encoding history: %w", err)
	}
	if err := h.kv.Set(HistoryKey, data); err != nil {
		return fmt.Errorf("saving history: %w", err)
	}
	return nil
}

// Calibration is the white-balance reference image.
type Calibration struct {
	Base64    string `json:"base64"` // JPEG bytes, base64 encoded
	Timestamp int64  `json:"timestamp"`
}

// Bytes returns the decoded reference image.
func (c Calibration) Bytes() ([]byte, error) {
	return base64.StdEncoding.DecodeString(c.Base64)
}

// Calibrations persists the single calibration record.
type Calibrations struct {
	kv  KV
	now func() time.Time
}

// NewCalibrations returns a calibration store persisted in kv.
func NewCalibrations(kv KV) *Calibrations {
	return &Calibrations{kv: kv, now: time.Now}
}

// Get returns the current calibration; ok is false when none is set.
func (c *Calibrations) Get() (Calibration, bool, error) {
	data, ok, err := c.kv.Get(CalibrationKey)
	if err != nil || !ok {
		return Calibration{}, false, err
	}
	var cal Calibration
	if err := json.Unmarshal(data, &cal); err != nil {
		return Calibration{}, false, fmt.Errorf("decoding calibration: %w", err)
	}
	return cal, true, nil
}

// Set replaces the calibration with the given encoded image.
func (c *Calibrations) Set(image []byte) (Calibration, error) {
	cal := Calibration{
		Base64:    base64.StdEncoding.EncodeToString(image),
		Timestamp: c.now().UnixMilli(),
	}
	data, err := json.Marshal(cal)
	if err != nil {
		return Calibration{}, fmt.Errorf("encoding calibration: %w", err)
	}
	if err := c.kv.Set(CalibrationKey, data); err != nil {
		return Calibration{}, fmt.Errorf("saving calibration: %w", err)
	}
	return cal, nil
}

// Clear removes the calibration.
func (c *Calibrations) Clear() error {
	return c.kv.Delete(CalibrationKey)
}
