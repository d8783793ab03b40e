package store

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/maax3v3/colormix/internal/analysis"
)

func TestFileKV_SetGetDelete(t *testing.T) {
	kv, err := NewFileKV(filepath.Join(t.TempDir(), "data"))
	if err != nil {
		t.Fatalf("NewFileKV: %v", err)
	}

	if _, ok, err := kv.Get("missing"); err != nil || ok {
		t.Fatalf("missing key: ok=%v err=%v", ok, err)
	}
	if err := kv.Set("k", []byte(`{"a":1}`)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, ok, err := kv.Get("k")
	if err != nil || !ok || string(v) != `{"a":1}` {
		t.Fatalf("Get: v=%q ok=%v err=%v", v, ok, err)
	}
	if err := kv.Delete("k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := kv.Get("k"); ok {
		t.Error("key should be gone after Delete")
	}
	if err := kv.Delete("k"); err != nil {
		t.Errorf("deleting a missing key should not fail: %v", err)
	}
}

func TestFileKV_NoTempFilesLeft(t *testing.T) {
	dir := t.TempDir()
	kv, err := NewFileKV(dir)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if err := kv.Set("k", []byte("v")); err != nil {
			t.Fatal(err)
		}
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "k.json" {
		t.Errorf("unexpected directory contents: %v", entries)
	}
}

func TestFileKV_RejectsPathKeys(t *testing.T) {
	kv, err := NewFileKV(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"../escape", "a/b", ""} {
		if err := kv.Set(key, []byte("x")); err == nil {
			t.Errorf("Set(%q): expected error", key)
		}
	}
}

func TestMemKV_CopiesValues(t *testing.T) {
	var kv MemKV
	buf := []byte("abc")
	if err := kv.Set("k", buf); err != nil {
		t.Fatal(err)
	}
	buf[0] = 'z'
	v, _, _ := kv.Get("k")
	if string(v) != "abc" {
		t.Errorf("stored value aliased caller buffer: %q", v)
	}
}

func newTestHistory(kv KV) *History {
	h := NewHistory(kv)
	tick := time.UnixMilli(1_700_000_000_000)
	h.now = func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}
	return h
}

func TestHistory_SaveAssignsUniqueIDs(t *testing.T) {
	h := newTestHistory(&MemKV{})
	seen := map[string]bool{}
	for i := 0; i < 5; i++ {
		rec, err := h.Save(analysis.Result{ColorName: "c"}, "data:image/jpeg;base64,AA==", "")
		if err != nil {
			t.Fatalf("Save: %v", err)
		}
		if rec.ID == "" || seen[rec.ID] {
			t.Fatalf("duplicate or empty id %q", rec.ID)
		}
		if rec.Timestamp == 0 {
			t.Error("timestamp not set")
		}
		seen[rec.ID] = true
	}
	list, err := h.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 5 {
		t.Fatalf("len: got %d, want 5", len(list))
	}
	if list[0].Timestamp <= list[4].Timestamp {
		t.Error("history should be newest first")
	}
}

func TestHistory_DeleteKeepsOrder(t *testing.T) {
	h := newTestHistory(&MemKV{})
	var ids []string
	for _, name := range []string{"a", "b", "c", "d"} {
		rec, err := h.Save(analysis.Result{ColorName: name}, "", "")
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, rec.ID)
	}
	// list order is d, c, b, a
	if err := h.Delete(ids[1]); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	list, _ := h.List()
	var names []string
	for _, r := range list {
		names = append(names, r.ColorName)
	}
	if len(names) != 3 || names[0] != "d" || names[1] != "c" || names[2] != "a" {
		t.Errorf("after delete: got %v, want [d c a]", names)
	}

	if err := h.Delete("no-such-id"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if list2, _ := h.List(); len(list2) != 3 {
		t.Error("failed delete must not change the history")
	}
}

func TestHistory_Get(t *testing.T) {
	h := newTestHistory(&MemKV{})
	rec, err := h.Save(analysis.Result{ColorName: "Vermelho", HexCode: "#D5001C"}, "uri", "ACME")
	if err != nil {
		t.Fatal(err)
	}
	got, err := h.Get(rec.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ColorName != "Vermelho" || got.ClientName != "ACME" || got.OriginalImage != "uri" {
		t.Errorf("unexpected record %+v", got)
	}
	if _, err := h.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestHistory_CorruptValue(t *testing.T) {
	kv := &MemKV{}
	_ = kv.Set(HistoryKey, []byte("not json"))
	h := NewHistory(kv)
	if _, err := h.List(); err == nil {
		t.Fatal("expected decode error")
	}
	if _, err := h.Save(analysis.Result{}, "", ""); err == nil {
		t.Fatal("save on a corrupt history should fail")
	}
}

type failingKV struct{ MemKV }

func (f *failingKV) Set(string, []byte) error { return errors.New("quota exceeded") }

func TestHistory_StorageFailureIsReturned(t *testing.T) {
	h := NewHistory(&failingKV{})
	if _, err := h.Save(analysis.Result{ColorName: "x"}, "", ""); err == nil {
		t.Fatal("expected storage error")
	}
}

func TestCalibrations(t *testing.T) {
	c := NewCalibrations(&MemKV{})
	c.now = func() time.Time { return time.UnixMilli(42) }

	if _, ok, err := c.Get(); ok || err != nil {
		t.Fatalf("empty: ok=%v err=%v", ok, err)
	}
	cal, err := c.Set([]byte{0xFF, 0xD8, 0xFF})
	if err != nil {
		t.Fatalf("Set: %v", err)
	}
	if cal.Timestamp != 42 {
		t.Errorf("timestamp: got %d", cal.Timestamp)
	}
	got, ok, err := c.Get()
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	b, err := got.Bytes()
	if err != nil || len(b) != 3 || b[0] != 0xFF {
		t.Errorf("Bytes: %v %v", b, err)
	}
	if err := c.Clear(); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := c.Get(); ok {
		t.Error("calibration should be cleared")
	}
}

func TestHistory_PersistsAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	kv, err := NewFileKV(dir)
	if err != nil {
		t.Fatal(err)
	}
	rec, err := NewHistory(kv).Save(analysis.Result{ColorName: "Azul"}, "", "")
	if err != nil {
		t.Fatal(err)
	}

	kv2, _ := NewFileKV(dir)
	got, err := NewHistory(kv2).Get(rec.ID)
	if err != nil {
		t.Fatalf("Get from new instance: %v", err)
	}
	if got.ColorName != "Azul" {
		t.Errorf("got %+v", got)
	}
}

func TestHistory_ConcurrentSaves(t *testing.T) {
	h := NewHistory(&MemKV{})
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := h.Save(analysis.Result{ColorName: "c"}, "", ""); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()
	list, err := h.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 20 {
		t.Errorf("len: got %d, want 20", len(list))
	}
}
