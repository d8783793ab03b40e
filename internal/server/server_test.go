package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/maax3v3/colormix/internal/analysis"
	"github.com/maax3v3/colormix/internal/session"
	"github.com/maax3v3/colormix/internal/store"
)

type fakeAnalyzer struct {
	mu      sync.Mutex
	results []analysis.Result
	err     error
	got     []analysis.Request

	started chan struct{} // signalled when Analyze is entered, if set
	release chan struct{} // Analyze blocks until closed, if set
}

func (f *fakeAnalyzer) Analyze(_ context.Context, req analysis.Request) ([]analysis.Result, error) {
	f.mu.Lock()
	f.got = append(f.got, req)
	f.mu.Unlock()
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}
	return f.results, f.err
}

func (f *fakeAnalyzer) last() analysis.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.got[len(f.got)-1]
}

var green = analysis.Result{
	ColorName: "Verde Bandeira",
	HexCode:   "#009C3B",
	Pantone:   "355 C",
	MixingRecipe: []analysis.RecipeItem{
		{BaseColor: "Amarelo", Percentage: 55},
		{BaseColor: "Azul", Percentage: 45},
	},
}

func newTestServer(t *testing.T, fa *fakeAnalyzer) *Server {
	t.Helper()
	kv := &store.MemKV{}
	return New(Options{
		Analyzer:       fa,
		History:        store.NewHistory(kv),
		Calibrations:   store.NewCalibrations(kv),
		ContainerWidth: 400,
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{0, 156, 59, 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func do(t *testing.T, s *Server, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decoding %q: %v", rec.Body.String(), err)
	}
	return v
}

func mustStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status: got %d, want %d (body %s)", rec.Code, want, rec.Body.String())
	}
}

func loadImage(t *testing.T, s *Server) {
	t.Helper()
	rec := do(t, s, http.MethodPost, "/session/image?width=400", pngBytes(t, 1200, 800))
	mustStatus(t, rec, http.StatusOK)
}

func TestHealthz(t *testing.T) {
	rec := do(t, newTestServer(t, &fakeAnalyzer{}), http.MethodGet, "/healthz", nil)
	mustStatus(t, rec, http.StatusOK)
}

func TestSamplingFlow(t *testing.T) {
	fa := &fakeAnalyzer{results: []analysis.Result{green}}
	s := newTestServer(t, fa)

	rec := do(t, s, http.MethodPost, "/session/image?width=400", pngBytes(t, 1200, 800))
	mustStatus(t, rec, http.StatusOK)
	v := decode[sessionView](t, rec)
	if v.State != "idle" || v.Surface == nil || v.Surface.Width != 400 || v.Surface.Height != 267 {
		t.Fatalf("after load: %+v", v)
	}

	mustStatus(t, do(t, s, http.MethodPost, "/session/picking", nil), http.StatusOK)

	move := `{"clientX": 200, "clientY": 100, "rect": {"left": 0, "top": 0}}`
	rec = do(t, s, http.MethodPost, "/session/pointer", []byte(move))
	mustStatus(t, rec, http.StatusOK)
	mv := decode[magnifierView](t, rec)
	if mv.Left != 140 || mv.Top != -40 {
		t.Errorf("magnifier placement: got (%d,%d), want (140,-40)", mv.Left, mv.Top)
	}
	if !strings.HasPrefix(mv.Image, "data:image/png;base64,") {
		t.Errorf("magnifier image: %.40s", mv.Image)
	}

	rec = do(t, s, http.MethodPost, "/session/click", nil)
	mustStatus(t, rec, http.StatusOK)
	cv := decode[clickView](t, rec)
	if cv.Patch.Left != 125 || cv.Patch.Top != 25 || cv.Patch.Size != 150 {
		t.Errorf("patch: %+v", cv.Patch)
	}
	if cv.State != "idle" || cv.Busy {
		t.Errorf("after click: state=%s busy=%v", cv.State, cv.Busy)
	}
	if len(cv.Results) != 1 || cv.Results[0].HexCode != "#009C3B" {
		t.Errorf("results: %+v", cv.Results)
	}
	req := fa.last()
	if req.Patch == nil || req.Patch.MIME != "image/jpeg" {
		t.Errorf("analysis request should carry the JPEG patch: %+v", req.Patch)
	}
	if req.Image.MIME != "image/png" {
		t.Errorf("image mime: %q", req.Image.MIME)
	}
}

func TestPointer_NotPicking(t *testing.T) {
	s := newTestServer(t, &fakeAnalyzer{})
	loadImage(t, s)
	rec := do(t, s, http.MethodPost, "/session/pointer", []byte(`{"clientX": 1, "clientY": 1}`))
	mustStatus(t, rec, http.StatusConflict)
}

func TestPointer_BadJSON(t *testing.T) {
	s := newTestServer(t, &fakeAnalyzer{})
	mustStatus(t, do(t, s, http.MethodPost, "/session/pointer", []byte("{")), http.StatusBadRequest)
}

func TestPointer_OutOfRange(t *testing.T) {
	s := newTestServer(t, &fakeAnalyzer{})
	loadImage(t, s)
	mustStatus(t, do(t, s, http.MethodPost, "/session/picking", nil), http.StatusOK)

	for _, body := range []string{
		`{"clientX": 1e19, "clientY": 10, "rect": {"left": 0, "top": 0}}`,
		`{"clientX": 10, "clientY": 10, "rect": {"left": -1e300, "top": 0}}`,
	} {
		mustStatus(t, do(t, s, http.MethodPost, "/session/pointer", []byte(body)), http.StatusBadRequest)
	}
	v := decode[sessionView](t, do(t, s, http.MethodGet, "/session", nil))
	if v.State != "picking" {
		t.Errorf("rejected moves should leave picking mode alone, got %s", v.State)
	}
}

func TestLoad_DataURI(t *testing.T) {
	s := newTestServer(t, &fakeAnalyzer{})
	uri := "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngBytes(t, 800, 400))
	rec := do(t, s, http.MethodPost, "/session/image?width=400", []byte(uri))
	mustStatus(t, rec, http.StatusOK)
	if v := decode[sessionView](t, rec); v.Surface == nil || v.Surface.Width != 400 || v.Surface.Height != 200 {
		t.Errorf("after data URI load: %+v", v)
	}

	mustStatus(t, do(t, s, http.MethodPost, "/session/image", []byte("data:image/png;base64,@@@")), http.StatusBadRequest)
}

func TestLoad_BadImage(t *testing.T) {
	s := newTestServer(t, &fakeAnalyzer{})
	loadImage(t, s)
	mustStatus(t, do(t, s, http.MethodPost, "/session/image", []byte("garbage")), http.StatusBadRequest)
	v := decode[sessionView](t, do(t, s, http.MethodGet, "/session", nil))
	if v.State != "no_image" || v.Surface != nil {
		t.Errorf("after failed load: %+v", v)
	}
}

func TestLoad_BadWidth(t *testing.T) {
	s := newTestServer(t, &fakeAnalyzer{})
	rec := do(t, s, http.MethodPost, "/session/image?width=abc", pngBytes(t, 10, 10))
	mustStatus(t, rec, http.StatusBadRequest)
}

func TestLoad_WithAnalysis(t *testing.T) {
	fa := &fakeAnalyzer{results: []analysis.Result{green, green}}
	s := newTestServer(t, fa)
	rec := do(t, s, http.MethodPost, "/session/image?analyze=true", pngBytes(t, 100, 100))
	mustStatus(t, rec, http.StatusOK)
	v := decode[sessionView](t, rec)
	if len(v.Results) != 2 {
		t.Errorf("results: %+v", v.Results)
	}
	if fa.last().Patch != nil {
		t.Error("whole-image analysis should not carry a patch")
	}
}

func TestAnalyze_Failure(t *testing.T) {
	fa := &fakeAnalyzer{err: &analysis.TransportError{Err: errors.New("timeout")}}
	s := newTestServer(t, fa)
	loadImage(t, s)
	rec := do(t, s, http.MethodPost, "/session/analyze", nil)
	mustStatus(t, rec, http.StatusBadGateway)
	v := decode[sessionView](t, rec)
	if v.Error != session.AnalysisFailedMessage {
		t.Errorf("error message: %q", v.Error)
	}
	if len(v.Results) != 0 || v.Busy {
		t.Errorf("after failure: %+v", v)
	}
}

func TestAnalyze_NoImage(t *testing.T) {
	s := newTestServer(t, &fakeAnalyzer{})
	mustStatus(t, do(t, s, http.MethodPost, "/session/analyze", nil), http.StatusConflict)
}

func TestAnalyze_BusyRejectsSecondRequest(t *testing.T) {
	fa := &fakeAnalyzer{
		results: []analysis.Result{green},
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	s := newTestServer(t, fa)
	loadImage(t, s)

	done := make(chan *httptest.ResponseRecorder)
	go func() {
		req := httptest.NewRequest(http.MethodPost, "/session/analyze", nil)
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)
		done <- rec
	}()
	<-fa.started

	mustStatus(t, do(t, s, http.MethodPost, "/session/analyze", nil), http.StatusConflict)
	mustStatus(t, do(t, s, http.MethodPost, "/session/picking", nil), http.StatusConflict)
	v := decode[sessionView](t, do(t, s, http.MethodGet, "/session", nil))
	if !v.Busy {
		t.Error("session should report busy")
	}

	close(fa.release)
	rec := <-done
	mustStatus(t, rec, http.StatusOK)
	if v := decode[sessionView](t, rec); v.Busy || len(v.Results) != 1 {
		t.Errorf("after analysis: %+v", v)
	}
}

func TestResetDuringAnalysisDiscardsResult(t *testing.T) {
	fa := &fakeAnalyzer{
		results: []analysis.Result{green},
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	s := newTestServer(t, fa)
	loadImage(t, s)

	done := make(chan *httptest.ResponseRecorder)
	go func() {
		req := httptest.NewRequest(http.MethodPost, "/session/analyze", nil)
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)
		done <- rec
	}()
	<-fa.started
	mustStatus(t, do(t, s, http.MethodDelete, "/session", nil), http.StatusOK)
	close(fa.release)
	<-done

	v := decode[sessionView](t, do(t, s, http.MethodGet, "/session", nil))
	if v.State != "no_image" || len(v.Results) != 0 || v.Busy {
		t.Errorf("after reset: %+v", v)
	}
}

func TestPickingCancelAndReset(t *testing.T) {
	s := newTestServer(t, &fakeAnalyzer{})
	mustStatus(t, do(t, s, http.MethodPost, "/session/picking", nil), http.StatusConflict)
	loadImage(t, s)
	mustStatus(t, do(t, s, http.MethodPost, "/session/picking", nil), http.StatusOK)
	rec := do(t, s, http.MethodDelete, "/session/picking", nil)
	mustStatus(t, rec, http.StatusOK)
	if v := decode[sessionView](t, rec); v.State != "idle" || v.Picking {
		t.Errorf("after cancel: %+v", v)
	}
	mustStatus(t, do(t, s, http.MethodPost, "/session/click", nil), http.StatusConflict)

	rec = do(t, s, http.MethodDelete, "/session", nil)
	mustStatus(t, rec, http.StatusOK)
	if v := decode[sessionView](t, rec); v.State != "no_image" {
		t.Errorf("after reset: %+v", v)
	}
}

func TestResize(t *testing.T) {
	s := newTestServer(t, &fakeAnalyzer{})
	loadImage(t, s)
	rec := do(t, s, http.MethodPost, "/session/resize?width=600", nil)
	mustStatus(t, rec, http.StatusOK)
	if v := decode[sessionView](t, rec); v.Surface.Width != 600 || v.Surface.Height != 400 {
		t.Errorf("surface: %+v", v.Surface)
	}
}

func TestHistory(t *testing.T) {
	s := newTestServer(t, &fakeAnalyzer{results: []analysis.Result{green}})

	mustStatus(t, do(t, s, http.MethodPost, "/history", []byte(`{"index": 0}`)), http.StatusConflict)

	loadImage(t, s)
	mustStatus(t, do(t, s, http.MethodPost, "/session/analyze", nil), http.StatusOK)
	mustStatus(t, do(t, s, http.MethodPost, "/history", []byte(`{"index": 3}`)), http.StatusBadRequest)

	rec := do(t, s, http.MethodPost, "/history", []byte(`{"index": 0, "clientName": "ACME"}`))
	mustStatus(t, rec, http.StatusCreated)
	saved := decode[store.Record](t, rec)
	if saved.ID == "" || saved.ClientName != "ACME" || saved.ColorName != green.ColorName {
		t.Fatalf("saved: %+v", saved)
	}
	if !strings.HasPrefix(saved.OriginalImage, "data:image/png;base64,") {
		t.Errorf("original image: %.40s", saved.OriginalImage)
	}

	list := decode[[]store.Record](t, do(t, s, http.MethodGet, "/history", nil))
	if len(list) != 1 {
		t.Fatalf("list: %d records", len(list))
	}

	rec = do(t, s, http.MethodGet, "/history/"+saved.ID+"/swatch.png", nil)
	mustStatus(t, rec, http.StatusOK)
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("content type: %q", ct)
	}
	if _, err := png.Decode(rec.Body); err != nil {
		t.Errorf("swatch is not PNG: %v", err)
	}

	mustStatus(t, do(t, s, http.MethodDelete, "/session", nil), http.StatusOK)
	rec = do(t, s, http.MethodPost, "/history/"+saved.ID+"/select", nil)
	mustStatus(t, rec, http.StatusOK)
	v := decode[sessionView](t, rec)
	if v.State != "idle" || len(v.Results) != 1 || v.Results[0].ColorName != green.ColorName {
		t.Errorf("after select: %+v", v)
	}

	mustStatus(t, do(t, s, http.MethodDelete, "/history/"+saved.ID, nil), http.StatusNoContent)
	mustStatus(t, do(t, s, http.MethodGet, "/history/"+saved.ID, nil), http.StatusNotFound)
	mustStatus(t, do(t, s, http.MethodDelete, "/history/"+saved.ID, nil), http.StatusNotFound)
}

func TestCalibration(t *testing.T) {
	fa := &fakeAnalyzer{results: []analysis.Result{green}}
	s := newTestServer(t, fa)

	cv := decode[calibrationView](t, do(t, s, http.MethodGet, "/calibration", nil))
	if cv.Active {
		t.Fatal("no calibration expected")
	}
	mustStatus(t, do(t, s, http.MethodPut, "/calibration", []byte("nope")), http.StatusBadRequest)

	rec := do(t, s, http.MethodPut, "/calibration", pngBytes(t, 40, 40))
	mustStatus(t, rec, http.StatusOK)
	if cv := decode[calibrationView](t, rec); !cv.Active || !strings.HasPrefix(cv.Image, "data:image/jpeg;base64,") {
		t.Errorf("calibration: %+v", cv)
	}

	loadImage(t, s)
	rec = do(t, s, http.MethodPost, "/session/analyze", nil)
	mustStatus(t, rec, http.StatusOK)
	if !decode[sessionView](t, rec).CalibrationActive {
		t.Error("session should report calibration active")
	}
	if c := fa.last().Calibration; c == nil || c.MIME != "image/jpeg" {
		t.Errorf("request calibration: %+v", c)
	}

	mustStatus(t, do(t, s, http.MethodDelete, "/calibration", nil), http.StatusNoContent)
	mustStatus(t, do(t, s, http.MethodPost, "/session/analyze", nil), http.StatusOK)
	if fa.last().Calibration != nil {
		t.Error("cleared calibration should not be sent")
	}
}

func TestCalibration_Base64Text(t *testing.T) {
	s := newTestServer(t, &fakeAnalyzer{})
	body := base64.StdEncoding.EncodeToString(pngBytes(t, 20, 20))
	req := httptest.NewRequest(http.MethodPut, "/calibration", strings.NewReader(body))
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	mustStatus(t, rec, http.StatusOK)
	if !decode[calibrationView](t, rec).Active {
		t.Error("calibration should be active")
	}
}

func TestNew_DefaultStores(t *testing.T) {
	s := New(Options{
		Analyzer: &fakeAnalyzer{results: []analysis.Result{green}},
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	mustStatus(t, do(t, s, http.MethodGet, "/history", nil), http.StatusOK)
	mustStatus(t, do(t, s, http.MethodGet, "/calibration", nil), http.StatusOK)

	mustStatus(t, do(t, s, http.MethodPut, "/calibration", pngBytes(t, 10, 10)), http.StatusOK)
	loadImage(t, s)
	mustStatus(t, do(t, s, http.MethodPost, "/session/analyze", nil), http.StatusOK)
	mustStatus(t, do(t, s, http.MethodPost, "/history", []byte(`{"index": 0}`)), http.StatusCreated)
	if list := decode[[]store.Record](t, do(t, s, http.MethodGet, "/history", nil)); len(list) != 1 {
		t.Errorf("history: %d records", len(list))
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{session.ErrBusy, http.StatusConflict},
		{session.ErrInvalidTransition, http.StatusConflict},
		{store.ErrNotFound, http.StatusNotFound},
		{errBadRequest, http.StatusBadRequest},
		{&analysis.SchemaError{Reason: "x"}, http.StatusBadGateway},
		{errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
