package session

import (
	"errors"
	"fmt"
	"image"
	"log/slog"

	"github.com/maax3v3/colormix/internal/analysis"
	"github.com/maax3v3/colormix/internal/imaging"
	"github.com/maax3v3/colormix/internal/magnifier"
	"github.com/maax3v3/colormix/internal/patch"
	"github.com/maax3v3/colormix/internal/pointer"
)

// State is the interactive state of a sampling session.
type State int

const (
	NoImage State = iota
	ImageLoaded
	Idle
	Picking
	Committed
)

func (s State) String() string {
	switch s {
	case NoImage:
		return "no_image"
	case ImageLoaded:
		return "image_loaded"
	case Idle:
		return "idle"
	case Picking:
		return "picking"
	case Committed:
		return "committed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

var (
	// ErrInvalidTransition is returned for actions not allowed in the
	// current state.
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrBusy is returned while an analysis request is pending.
	ErrBusy = errors.New("analysis in progress")
)

// AnalysisFailedMessage is the only analysis error shown to users.
const AnalysisFailedMessage = "Could not analyze the color. Please try again."

// Source is the loaded image together with its original encoding.
type Source struct {
	Image image.Image
	Data  []byte
	MIME  string
}

// DataURI returns the original encoded image as a data URI.
func (s *Source) DataURI() string { return imaging.DataURI(s.MIME, s.Data) }

// Listener is notified after every state change.
type Listener func(prev, next State)

// Ticket identifies one pending analysis.
type Ticket uint64

// Session holds all mutable state of one sampling session. It is not safe
// for concurrent use; callers serialize access.
type Session struct {
	state   State
	source  *Source
	surface *imaging.Surface
	pointer pointer.Position

	busy       bool
	generation Ticket
	results    []analysis.Result
	errMsg     string

	logger    *slog.Logger
	listeners []Listener
}

// New returns a session in the NoImage state.
func New(logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{state: NoImage, logger: logger}
}

// AddListener registers l for state changes.
func (s *Session) AddListener(l Listener) { s.listeners = append(s.listeners, l) }

func (s *Session) State() State               { return s.state }
func (s *Session) Picking() bool              { return s.state == Picking }
func (s *Session) Busy() bool                 { return s.busy }
func (s *Session) Source() *Source            { return s.source }
func (s *Session) Surface() *imaging.Surface  { return s.surface }
func (s *Session) Pointer() pointer.Position  { return s.pointer }
func (s *Session) Results() []analysis.Result { return s.results }
func (s *Session) ErrorMessage() string       { return s.errMsg }

func (s *Session) transition(next State) {
	prev := s.state
	if prev == next {
		return
	}
	s.state = next
	s.logger.Debug("session state transition", "from", prev.String(), "to", next.String())
	for _, l := range s.listeners {
		l(prev, next)
	}
}

// Load decodes data and fits it to containerWidth. Any previous image,
// pointer and result display is discarded. On decode failure the session
// is left without an image.
func (s *Session) Load(data []byte, containerWidth int) error {
	if s.busy {
		return ErrBusy
	}
	s.clear()
	img, mime, err := imaging.Decode(data)
	if err != nil {
		s.logger.Warn("image decode failed", "error", err, "bytes", len(data))
		s.transition(NoImage)
		return err
	}
	surface, err := imaging.FitWidth(img, containerWidth)
	if err != nil {
		s.logger.Warn("image rasterization failed", "error", err)
		s.transition(NoImage)
		return fmt.Errorf("%w: %v", imaging.ErrDecode, err)
	}
	s.source = &Source{Image: img, Data: data, MIME: mime}
	s.surface = surface
	s.logger.Info("image loaded",
		"source", fmt.Sprintf("%dx%d", surface.SourceWidth, surface.SourceHeight),
		"surface", fmt.Sprintf("%dx%d", surface.Width(), surface.Height()))
	s.transition(ImageLoaded)
	s.transition(Idle)
	return nil
}

// Resize recomputes the surface for a new container width. The pointer is
// cleared since its coordinates refer to the old surface.
func (s *Session) Resize(containerWidth int) error {
	if s.source == nil {
		return fmt.Errorf("%w: no image loaded", ErrInvalidTransition)
	}
	surface, err := imaging.FitWidth(s.source.Image, containerWidth)
	if err != nil {
		return err
	}
	s.surface = surface
	s.pointer = pointer.Position{}
	return nil
}

// StartPicking enters picking mode. Only allowed from Idle.
func (s *Session) StartPicking() error {
	if s.busy {
		return ErrBusy
	}
	if s.state != Idle {
		return fmt.Errorf("%w: start picking from %s", ErrInvalidTransition, s.state)
	}
	s.transition(Picking)
	return nil
}

// Cancel leaves picking mode without a selection.
func (s *Session) Cancel() error {
	if s.state != Picking {
		return fmt.Errorf("%w: cancel from %s", ErrInvalidTransition, s.state)
	}
	s.pointer = s.pointer.Hide()
	s.transition(Idle)
	return nil
}

// Move records a pointer move and renders the magnifier. Outside picking
// mode, or while an analysis is pending, the move is ignored and ok is
// false.
func (s *Session) Move(clientX, clientY float64, r pointer.Rect) (magnifier.View, bool) {
	if s.state != Picking || s.busy {
		return magnifier.View{}, false
	}
	s.pointer = pointer.Map(clientX, clientY, r)
	return magnifier.New(s.surface.Image, s.pointer), true
}

// Leave hides the pointer when it exits the surface.
func (s *Session) Leave() {
	s.pointer = s.pointer.Hide()
}

// Click commits the selection at the last recorded pointer position,
// returns the encoded patch and goes back to Idle.
//
// The patch is taken from the last move, not from the click itself, so a
// click without a preceding move samples a stale (or initial) position.
func (s *Session) Click() (patch.Payload, error) {
	if s.busy {
		return patch.Payload{}, ErrBusy
	}
	if s.state != Picking {
		return patch.Payload{}, fmt.Errorf("%w: click from %s", ErrInvalidTransition, s.state)
	}
	p, err := patch.Extract(s.surface.Image, s.pointer)
	if err != nil {
		return patch.Payload{}, fmt.Errorf("extracting patch: %w", err)
	}
	s.logger.Info("point committed",
		"x", s.pointer.X, "y", s.pointer.Y,
		"visible", s.pointer.Visible,
		"sample", p.Mean.Hex(), "bytes", len(p.Data))
	s.transition(Committed)
	s.pointer = s.pointer.Hide()
	s.transition(Idle)
	return p, nil
}

// Reset returns to NoImage from any state. A pending analysis keeps the
// session busy until it finishes, but its outcome is discarded.
func (s *Session) Reset() {
	s.clear()
	s.generation++
	s.transition(NoImage)
}

func (s *Session) clear() {
	s.source = nil
	s.surface = nil
	s.pointer = pointer.Position{}
	s.results = nil
	s.errMsg = ""
}

// Request builds an analysis request for the loaded image with optional
// patch and calibration images.
func (s *Session) Request(p *patch.Payload, calibration []byte) (analysis.Request, error) {
	if s.source == nil {
		return analysis.Request{}, fmt.Errorf("%w: no image loaded", ErrInvalidTransition)
	}
	req := analysis.Request{Image: analysis.Image{MIME: s.source.MIME, Data: s.source.Data}}
	if p != nil {
		req.Patch = &analysis.Image{MIME: p.MIME, Data: p.Data}
	}
	if len(calibration) > 0 {
		req.Calibration = &analysis.Image{MIME: patch.MIME, Data: calibration}
	}
	return req, nil
}

// BeginAnalysis marks an analysis as pending and clears the previous
// result display. Only one analysis may be pending at a time.
func (s *Session) BeginAnalysis() (Ticket, error) {
	if s.busy {
		return 0, ErrBusy
	}
	if s.source == nil {
		return 0, fmt.Errorf("%w: no image loaded", ErrInvalidTransition)
	}
	s.busy = true
	s.results = nil
	s.errMsg = ""
	return s.generation, nil
}

// FinishAnalysis records the outcome of the analysis identified by t. The
// outcome is dropped if the session was reset in the meantime. Failures
// are shown as AnalysisFailedMessage; the detail is only logged.
func (s *Session) FinishAnalysis(t Ticket, results []analysis.Result, err error) {
	s.busy = false
	if t != s.generation {
		s.logger.Info("discarding stale analysis outcome")
		return
	}
	if err != nil {
		s.logger.Error("analysis failed", "error", err)
		s.results = nil
		s.errMsg = AnalysisFailedMessage
		return
	}
	s.results = results
	s.errMsg = ""
}

// Show loads an image and displays a single saved result for it, as when a
// history item is reopened.
func (s *Session) Show(data []byte, containerWidth int, result analysis.Result) error {
	if err := s.Load(data, containerWidth); err != nil {
		return err
	}
	s.results = []analysis.Result{result}
	return nil
}
