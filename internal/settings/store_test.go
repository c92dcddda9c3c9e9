package settings

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/iskodirajga/sauce-hipchat-service/internal/logx"
)

func TestKey(t *testing.T) {
	t.Parallel()
	if got := Key("abc", "clientInfo"); got != "abc:clientInfo" {
		t.Fatalf("Key = %q", got)
	}
	ck, name := SplitKey("abc:sauceAccount")
	if ck != "abc" || name != "sauceAccount" {
		t.Fatalf("SplitKey = %q, %q", ck, name)
	}
}

func testStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	if _, err := s.Get(ctx, "clientInfo", "t1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get absent: err = %v, want ErrNotFound", err)
	}

	if err := s.Set(ctx, "clientInfo", []byte(`{"a":1}`), "t1"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Set(ctx, "sauceAccount", []byte(`{"b":2}`), "t1"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Set(ctx, "clientInfo", []byte(`{"c":3}`), "t2"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	b, err := s.Get(ctx, "clientInfo", "t1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(b) != `{"a":1}` {
		t.Fatalf("Get = %s", b)
	}

	keys, err := s.ScanKeys(ctx, "*:clientInfo")
	if err != nil {
		t.Fatalf("ScanKeys: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("ScanKeys(*:clientInfo) = %v, want 2 keys", keys)
	}

	keys, err = s.ScanKeys(ctx, "t1:*")
	if err != nil {
		t.Fatalf("ScanKeys: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("ScanKeys(t1:*) = %v, want 2 keys", keys)
	}

	for _, k := range keys {
		if err := s.Delete(ctx, k); err != nil {
			t.Fatalf("Delete(%s): %v", k, err)
		}
	}
	if _, err := s.Get(ctx, "clientInfo", "t1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get after delete: err = %v, want ErrNotFound", err)
	}

	// Other tenant untouched.
	if _, err := s.Get(ctx, "clientInfo", "t2"); err != nil {
		t.Fatalf("Get t2 after t1 cleanup: %v", err)
	}

	// Deleting an absent key is not an error.
	if err := s.Delete(ctx, "t9:nothing"); err != nil {
		t.Fatalf("Delete absent: %v", err)
	}
}

func TestMemoryStore(t *testing.T) {
	t.Parallel()
	testStore(t, NewMemory())
}

func TestSQLiteStore(t *testing.T) {
	t.Parallel()
	s, err := Open(Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "settings.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()
	testStore(t, s)
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()
	if _, err := Open(Config{Driver: "bolt"}, logx.Nop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestJSONHelpers(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemory()

	type cred struct {
		Hostname string `json:"hostname"`
		Username string `json:"username"`
	}
	in := cred{Hostname: "saucelabs.com", Username: "roy"}
	if err := SetJSON(ctx, s, "sauceAccount", in, "t1"); err != nil {
		t.Fatalf("SetJSON: %v", err)
	}
	var out cred
	if err := GetJSON(ctx, s, "sauceAccount", "t1", &out); err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if out != in {
		t.Fatalf("round trip = %+v, want %+v", out, in)
	}
}

func TestGlobToLike(t *testing.T) {
	t.Parallel()
	tests := []struct{ in, want string }{
		{"*:clientInfo", "%:clientInfo"},
		{"abc:*", "abc:%"},
		{"a?c", "a_c"},
		{"100%_x", `100\%\_x`},
	}
	for _, tt := range tests {
		if got := globToLike(tt.in); got != tt.want {
			t.Fatalf("globToLike(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
