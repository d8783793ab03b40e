package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/maax3v3/colormix/internal/analysis"
	"github.com/maax3v3/colormix/internal/imaging"
	"github.com/maax3v3/colormix/internal/patch"
	"github.com/maax3v3/colormix/internal/pointer"
	"github.com/maax3v3/colormix/internal/session"
	"github.com/maax3v3/colormix/internal/store"
	"github.com/maax3v3/colormix/internal/swatch"
)

type surfaceView struct {
	Width        int     `json:"width"`
	Height       int     `json:"height"`
	Scale        float64 `json:"scale"`
	SourceWidth  int     `json:"sourceWidth"`
	SourceHeight int     `json:"sourceHeight"`
}

type sessionView struct {
	State             string            `json:"state"`
	Picking           bool              `json:"picking"`
	Busy              bool              `json:"busy"`
	Surface           *surfaceView      `json:"surface,omitempty"`
	Pointer           pointer.Position  `json:"pointer"`
	Results           []analysis.Result `json:"results"`
	Error             string            `json:"error,omitempty"`
	CalibrationActive bool              `json:"calibrationActive"`
}

type patchView struct {
	Left   int    `json:"left"`
	Top    int    `json:"top"`
	Size   int    `json:"size"`
	Sample string `json:"sample"` // mean color of the patch
}

type clickView struct {
	sessionView
	Patch patchView `json:"patch"`
}

type magnifierView struct {
	Left  int    `json:"left"`
	Top   int    `json:"top"`
	Image string `json:"image"` // PNG data URI
}

type calibrationView struct {
	Active    bool   `json:"active"`
	Timestamp int64  `json:"timestamp,omitempty"`
	Image     string `json:"image,omitempty"`
}

// snapshot must be called with s.mu held.
func (s *Server) snapshot() sessionView {
	v := sessionView{
		State:             s.session.State().String(),
		Picking:           s.session.Picking(),
		Busy:              s.session.Busy(),
		Pointer:           s.session.Pointer(),
		Results:           s.session.Results(),
		Error:             s.session.ErrorMessage(),
		CalibrationActive: s.calibrationBytes() != nil,
	}
	if v.Results == nil {
		v.Results = []analysis.Result{}
	}
	if sf := s.session.Surface(); sf != nil {
		v.Surface = &surfaceView{
			Width:        sf.Width(),
			Height:       sf.Height(),
			Scale:        sf.Scale,
			SourceWidth:  sf.SourceWidth,
			SourceHeight: sf.SourceHeight,
		}
	}
	return v
}

func (s *Server) withSession(w http.ResponseWriter, fn func() error) {
	s.mu.Lock()
	err := fn()
	v := s.snapshot()
	s.mu.Unlock()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) getSession(w http.ResponseWriter, _ *http.Request) {
	s.withSession(w, func() error { return nil })
}

func (s *Server) resetSession(w http.ResponseWriter, _ *http.Request) {
	s.withSession(w, func() error {
		s.session.Reset()
		return nil
	})
}

func (s *Server) widthParam(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("width")
	if raw == "" {
		return s.width, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: width must be a positive integer, got %q", errBadRequest, raw)
	}
	return n, nil
}

func readImageBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxImageBytes))
	if err != nil {
		return nil, fmt.Errorf("reading image body: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty image body", imaging.ErrDecode)
	}
	// Browsers may post a canvas export as a data URI or bare base64 text.
	if bytes.HasPrefix(bytes.TrimSpace(data), []byte("data:")) ||
		strings.HasPrefix(r.Header.Get("Content-Type"), "text/plain") {
		return imaging.DecodeString(string(data))
	}
	return data, nil
}

func (s *Server) loadImage(w http.ResponseWriter, r *http.Request) {
	width, err := s.widthParam(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	data, err := readImageBody(w, r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if analyze, _ := strconv.ParseBool(r.URL.Query().Get("analyze")); analyze {
		s.runAnalysis(w, r, func() (*patch.Payload, error) {
			return nil, s.session.Load(data, width)
		})
		return
	}
	s.withSession(w, func() error { return s.session.Load(data, width) })
}

func (s *Server) resize(w http.ResponseWriter, r *http.Request) {
	width, err := s.widthParam(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.withSession(w, func() error { return s.session.Resize(width) })
}

func (s *Server) analyzeImage(w http.ResponseWriter, r *http.Request) {
	s.runAnalysis(w, r, nil)
}

func (s *Server) startPicking(w http.ResponseWriter, _ *http.Request) {
	s.withSession(w, s.session.StartPicking)
}

func (s *Server) cancelPicking(w http.ResponseWriter, _ *http.Request) {
	s.withSession(w, s.session.Cancel)
}

type moveRequest struct {
	ClientX float64      `json:"clientX"`
	ClientY float64      `json:"clientY"`
	Rect    pointer.Rect `json:"rect"`
}

func (s *Server) movePointer(w http.ResponseWriter, r *http.Request) {
	var req moveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	if !req.Rect.Finite() || !(pointer.Position{X: req.ClientX, Y: req.ClientY}).Finite() {
		s.writeError(w, fmt.Errorf("%w: pointer coordinates out of range", errBadRequest))
		return
	}
	s.mu.Lock()
	view, ok := s.session.Move(req.ClientX, req.ClientY, req.Rect)
	busy := s.session.Busy()
	s.mu.Unlock()
	if !ok {
		if busy {
			s.writeError(w, session.ErrBusy)
			return
		}
		s.writeError(w, fmt.Errorf("%w: pointer moves need picking mode", session.ErrInvalidTransition))
		return
	}
	data, err := imaging.EncodePNG(view.Image)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, magnifierView{
		Left:  view.Origin.X,
		Top:   view.Origin.Y,
		Image: imaging.DataURI("image/png", data),
	})
}

func (s *Server) leavePointer(w http.ResponseWriter, _ *http.Request) {
	s.withSession(w, func() error {
		s.session.Leave()
		return nil
	})
}

func (s *Server) click(w http.ResponseWriter, r *http.Request) {
	s.runAnalysis(w, r, func() (*patch.Payload, error) {
		p, err := s.session.Click()
		if err != nil {
			return nil, err
		}
		return &p, nil
	})
}

// runAnalysis runs prepare and starts the analysis under the lock, then
// calls the analyzer without holding it. A nil prepare analyzes the whole
// image without a patch.
func (s *Server) runAnalysis(w http.ResponseWriter, r *http.Request, prepare func() (*patch.Payload, error)) {
	calibration := s.calibrationBytes()

	s.mu.Lock()
	var p *patch.Payload
	if prepare != nil {
		var err error
		if p, err = prepare(); err != nil {
			s.mu.Unlock()
			s.writeError(w, err)
			return
		}
	}
	req, err := s.session.Request(p, calibration)
	if err != nil {
		s.mu.Unlock()
		s.writeError(w, err)
		return
	}
	ticket, err := s.session.BeginAnalysis()
	s.mu.Unlock()
	if err != nil {
		s.writeError(w, err)
		return
	}

	results, err := s.analyzer.Analyze(r.Context(), req)

	s.mu.Lock()
	s.session.FinishAnalysis(ticket, results, err)
	v := s.snapshot()
	s.mu.Unlock()

	status := http.StatusOK
	if err != nil {
		status = statusFor(err)
	}
	if p == nil {
		writeJSON(w, status, v)
		return
	}
	writeJSON(w, status, clickView{
		sessionView: v,
		Patch: patchView{
			Left:   p.Rect.Min.X,
			Top:    p.Rect.Min.Y,
			Size:   patch.Size,
			Sample: p.Mean.Hex(),
		},
	})
}

func (s *Server) calibrationBytes() []byte {
	cal, ok, err := s.calibrations.Get()
	if err != nil {
		s.logger.Warn("reading calibration failed", "error", err)
		return nil
	}
	if !ok {
		return nil
	}
	data, err := cal.Bytes()
	if err != nil {
		s.logger.Warn("decoding calibration failed", "error", err)
		return nil
	}
	return data
}

func (s *Server) listHistory(w http.ResponseWriter, _ *http.Request) {
	records, err := s.history.List()
	if err != nil {
		s.writeError(w, err)
		return
	}
	if records == nil {
		records = []store.Record{}
	}
	writeJSON(w, http.StatusOK, records)
}

type saveRequest struct {
	Index      int    `json:"index"`
	ClientName string `json:"clientName"`
}

func (s *Server) saveHistory(w http.ResponseWriter, r *http.Request) {
	var req saveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	s.mu.Lock()
	results := s.session.Results()
	src := s.session.Source()
	s.mu.Unlock()
	if src == nil {
		s.writeError(w, fmt.Errorf("%w: no image loaded", session.ErrInvalidTransition))
		return
	}
	if req.Index < 0 || req.Index >= len(results) {
		s.writeError(w, fmt.Errorf("%w: no result at index %d", errBadRequest, req.Index))
		return
	}
	rec, err := s.history.Save(results[req.Index], src.DataURI(), req.ClientName)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.logger.Info("result saved", "id", rec.ID, "color", rec.ColorName)
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) getHistory(w http.ResponseWriter, r *http.Request) {
	rec, err := s.history.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) deleteHistory(w http.ResponseWriter, r *http.Request) {
	if err := s.history.Delete(chi.URLParam(r, "id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) selectHistory(w http.ResponseWriter, r *http.Request) {
	rec, err := s.history.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	_, data, err := imaging.ParseDataURI(rec.OriginalImage)
	if err != nil {
		s.writeError(w, err)
		return
	}
	width, err := s.widthParam(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.withSession(w, func() error { return s.session.Show(data, width, rec.Result) })
}

func (s *Server) swatchCard(w http.ResponseWriter, r *http.Request) {
	rec, err := s.history.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	data, err := swatch.PNG(rec.Result)
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(data)
}

func (s *Server) getCalibration(w http.ResponseWriter, _ *http.Request) {
	cal, ok, err := s.calibrations.Get()
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, calibrationView{})
		return
	}
	writeJSON(w, http.StatusOK, calibrationView{
		Active:    true,
		Timestamp: cal.Timestamp,
		Image:     "data:" + patch.MIME + ";base64," + cal.Base64,
	})
}

func (s *Server) setCalibration(w http.ResponseWriter, r *http.Request) {
	data, err := readImageBody(w, r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	img, _, err := imaging.Decode(data)
	if err != nil {
		s.writeError(w, err)
		return
	}
	encoded, err := patch.Reference(img)
	if err != nil {
		s.writeError(w, err)
		return
	}
	cal, err := s.calibrations.Set(encoded)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.logger.Info("calibration updated", "bytes", len(encoded))
	writeJSON(w, http.StatusOK, calibrationView{
		Active:    true,
		Timestamp: cal.Timestamp,
		Image:     imaging.DataURI(patch.MIME, encoded),
	})
}

func (s *Server) clearCalibration(w http.ResponseWriter, _ *http.Request) {
	if err := s.calibrations.Clear(); err != nil {
		s.writeError(w, err)
		return
	}
	s.logger.Info("calibration cleared")
	w.WriteHeader(http.StatusNoContent)
}
