package quota

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
)

func newStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "user_data.json")
	s, err := Open(path, zap.NewNop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s, path
}

func readFile(t *testing.T, path string) fileData {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read quota file: %v", err)
	}
	var d fileData
	if err := json.Unmarshal(b, &d); err != nil {
		t.Fatalf("quota file is not valid JSON: %v", err)
	}
	return d
}

func TestGetOrInit_NewUser(t *testing.T) {
	s, path := newStore(t)

	rec, err := s.GetOrInit("u1")
	if err != nil {
		t.Fatalf("GetOrInit: %v", err)
	}
	if rec.Pick != 0 || rec.Throw != 0 {
		t.Errorf("expected zeroed record, got %+v", rec)
	}

	d := readFile(t, path)
	if _, ok := d.Users["u1"]; !ok {
		t.Error("new record was not persisted")
	}

	// повторный вызов не должен менять файл
	before, _ := os.ReadFile(path)
	if _, err := s.GetOrInit("u1"); err != nil {
		t.Fatalf("GetOrInit second call: %v", err)
	}
	after, _ := os.ReadFile(path)
	if !bytes.Equal(before, after) {
		t.Error("second GetOrInit mutated the file")
	}
}

func TestIncrement_CountsMatch(t *testing.T) {
	s, _ := newStore(t)

	for i := 0; i < 3; i++ {
		if _, err := s.Increment("u1", KindPick); err != nil {
			t.Fatalf("Increment pick: %v", err)
		}
	}
	for i := 0; i < 2; i++ {
		if _, err := s.Increment("u1", KindThrow); err != nil {
			t.Fatalf("Increment throw: %v", err)
		}
	}

	rec, err := s.GetOrInit("u1")
	if err != nil {
		t.Fatalf("GetOrInit: %v", err)
	}
	if rec.Pick != 3 || rec.Throw != 2 {
		t.Errorf("expected {3 2}, got %+v", rec)
	}
}

func TestRoundTrip(t *testing.T) {
	s, path := newStore(t)

	_, _ = s.Increment("u1", KindPick)
	_, _ = s.Increment("u2", KindThrow)
	if err := s.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	s2, err := Open(path, zap.NewNop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	r1, ok := s2.Peek("u1")
	if !ok || r1.Pick != 1 || r1.Throw != 0 {
		t.Errorf("u1 after round trip: %+v ok=%v", r1, ok)
	}
	r2, ok := s2.Peek("u2")
	if !ok || r2.Pick != 0 || r2.Throw != 1 {
		t.Errorf("u2 after round trip: %+v ok=%v", r2, ok)
	}
}

func TestStaleDate_ResetOnAccess(t *testing.T) {
	path := filepath.Join(t.TempDir(), "user_data.json")
	stale := `{"last_reset_date": "2020-01-01", "users": {"u1": {"pick": 3, "throw": 1}}}`
	if err := os.WriteFile(path, []byte(stale), 0644); err != nil {
		t.Fatal(err)
	}

	s, err := Open(path, zap.NewNop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	// любое обращение к квоте сбрасывает устаревший день
	if _, ok := s.Peek("u1"); ok {
		t.Error("u1 survived the daily reset")
	}

	d := readFile(t, path)
	if d.LastResetDate != time.Now().Format(dateLayout) {
		t.Errorf("expected today's date, got %q", d.LastResetDate)
	}
	if len(d.Users) != 0 {
		t.Errorf("expected empty users, got %v", d.Users)
	}
}

func TestReset_IdempotentWithinDay(t *testing.T) {
	s, _ := newStore(t)

	// состарим дату вручную: первый доступ сбросит
	s.data.LastResetDate = "2020-01-01"
	if _, err := s.GetOrInit("u1"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Increment("u1", KindPick); err != nil {
		t.Fatal(err)
	}

	// повторная проверка в тот же день не должна ничего трогать
	rec, err := s.GetOrInit("u1")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Pick != 1 {
		t.Errorf("second reset check mutated state: %+v", rec)
	}
}

func TestOpen_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "user_data.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	s, err := Open(path, zap.NewNop())
	if err != nil {
		t.Fatalf("Open on corrupt file: %v", err)
	}
	users, picks, throws := s.Totals()
	if users != 0 || picks != 0 || throws != 0 {
		t.Errorf("expected fresh store, got %d/%d/%d", users, picks, throws)
	}

	// битый файл перезаписан валидным
	d := readFile(t, path)
	if d.LastResetDate == "" {
		t.Error("rewritten file has no reset date")
	}
}

func TestResetUser(t *testing.T) {
	s, _ := newStore(t)

	ok, err := s.Reset("ghost")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("Reset reported success for unknown user")
	}

	_, _ = s.Increment("u1", KindPick)
	_, _ = s.Increment("u1", KindThrow)
	ok, err = s.Reset("u1")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("Reset failed for existing user")
	}
	rec, _ := s.Peek("u1")
	if rec.Pick != 0 || rec.Throw != 0 {
		t.Errorf("expected zeroed record after reset, got %+v", rec)
	}
}

func TestTotals(t *testing.T) {
	s, _ := newStore(t)

	_, _ = s.Increment("u1", KindPick)
	_, _ = s.Increment("u1", KindPick)
	_, _ = s.Increment("u2", KindThrow)

	users, picks, throws := s.Totals()
	if users != 2 || picks != 2 || throws != 1 {
		t.Errorf("Totals = %d/%d/%d, want 2/2/1", users, picks, throws)
	}
}

func TestIncrement_WriteFailurePropagates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "user_data.json")
	s, err := Open(path, zap.NewNop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	// сносим каталог — запись обязана вернуть ошибку, не ретраиться
	if err := os.RemoveAll(filepath.Dir(path)); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Increment("u1", KindPick); err == nil {
		t.Error("expected write error, got nil")
	}
}
