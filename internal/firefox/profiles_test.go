package firefox

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lotas/tabtimer/internal/types"
)

// writeSession drops a placeholder recovery file so the profile is listed.
func writeSession(t *testing.T, profileDir string) {
	t.Helper()
	backups := filepath.Join(profileDir, "sessionstore-backups")
	if err := os.MkdirAll(backups, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(backups, "recovery.jsonlz4"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestParseProfilesINI(t *testing.T) {
	dir := t.TempDir()
	external := t.TempDir()
	ini := `; written by Firefox
[General]
StartWithLastProfile=1

[Profile0]
Name=default-release
IsRelative=1
Path=abc123.default-release
Default=1

[Profile1]
Name=dev-edition
IsRelative=0
Path=` + external + `

[Profile2]
Name=never-used
IsRelative=1
Path=zzz.never-used

[Install308046B0AF4A39CB]
Default=abc123.default-release
`
	iniPath := filepath.Join(dir, "profiles.ini")
	if err := os.WriteFile(iniPath, []byte(ini), 0o644); err != nil {
		t.Fatal(err)
	}
	writeSession(t, filepath.Join(dir, "abc123.default-release"))
	writeSession(t, external)

	profiles, err := ParseProfilesINI(iniPath, dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []types.Profile{
		{Name: "default-release", Path: filepath.Join(dir, "abc123.default-release"), IsRelative: true, IsDefault: true},
		{Name: "dev-edition", Path: external},
	}
	if len(profiles) != len(want) {
		t.Fatalf("expected %d profiles (sessionless one skipped), got %d: %+v", len(want), len(profiles), profiles)
	}
	for i := range want {
		if profiles[i] != want[i] {
			t.Errorf("profile %d = %+v, want %+v", i, profiles[i], want[i])
		}
	}
}

func TestReadINI(t *testing.T) {
	sections, err := readINI(strings.NewReader("orphan=1\n[A]\nk=v=w\n\n[B]\n# note\nx=y\n"))
	if err != nil {
		t.Fatal(err)
	}
	if len(sections) != 2 {
		t.Fatalf("expected 2 sections, got %d", len(sections))
	}
	if got := sections[0].values["k"]; got != "v=w" {
		t.Errorf("value should keep everything after the first '=', got %q", got)
	}
	if _, ok := sections[1].values["# note"]; ok {
		t.Error("comment lines should be skipped")
	}
}

func TestParseProfilesINIMissing(t *testing.T) {
	if _, err := ParseProfilesINI(filepath.Join(t.TempDir(), "profiles.ini"), ""); err == nil {
		t.Error("expected error for a missing profiles.ini")
	}
}

func TestResolveProfile(t *testing.T) {
	profiles := []types.Profile{
		{Name: "work", Path: "/p/work"},
		{Name: "default-release", Path: "/p/default", IsDefault: true},
	}

	tests := []struct {
		name    string
		want    string
		wantErr bool
	}{
		{"", "default-release", false},
		{"work", "work", false},
		{"missing", "", true},
	}
	for _, tt := range tests {
		got, err := ResolveProfile(profiles, tt.name)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ResolveProfile(%q): expected error", tt.name)
			}
			continue
		}
		if err != nil || got.Name != tt.want {
			t.Errorf("ResolveProfile(%q) = %q, %v; want %q", tt.name, got.Name, err, tt.want)
		}
	}

	if p, _ := ResolveProfile(profiles[:1], ""); p.Name != "work" {
		t.Errorf("without a default the first profile should win, got %q", p.Name)
	}
	if _, err := ResolveProfile(nil, ""); err == nil {
		t.Error("expected error for no profiles")
	}
}
