package firefox

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/lotas/tabtimer/internal/types"
)

// FindFirefoxDir returns the directory holding profiles.ini for this
// platform, or "" when it cannot be determined.
func FindFirefoxDir() string {
	if runtime.GOOS == "windows" {
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "Mozilla", "Firefox")
		}
		return ""
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	if runtime.GOOS == "darwin" {
		return filepath.Join(home, "Library", "Application Support", "Firefox")
	}
	return filepath.Join(home, ".mozilla", "firefox")
}

type iniSection struct {
	name   string
	values map[string]string
}

// readINI splits an ini stream into sections in file order. Keys outside
// any section are dropped.
func readINI(r io.Reader) ([]iniSection, error) {
	var sections []iniSection
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || line[0] == ';' || line[0] == '#' {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			sections = append(sections, iniSection{
				name:   line[1 : len(line)-1],
				values: make(map[string]string),
			})
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok || len(sections) == 0 {
			continue
		}
		sections[len(sections)-1].values[key] = value
	}
	return sections, sc.Err()
}

// ParseProfilesINI reads profiles.ini and returns the profiles that have a
// saved session. Relative paths are resolved against firefoxDir.
func ParseProfilesINI(iniPath, firefoxDir string) ([]types.Profile, error) {
	f, err := os.Open(iniPath)
	if err != nil {
		return nil, fmt.Errorf("open profiles.ini: %w", err)
	}
	defer f.Close()

	sections, err := readINI(f)
	if err != nil {
		return nil, fmt.Errorf("scan profiles.ini: %w", err)
	}

	var profiles []types.Profile
	for _, s := range sections {
		if !strings.HasPrefix(s.name, "Profile") {
			continue
		}
		p := types.Profile{
			Name:       s.values["Name"],
			Path:       s.values["Path"],
			IsRelative: s.values["IsRelative"] == "1",
			IsDefault:  s.values["Default"] == "1",
		}
		if p.IsRelative {
			p.Path = filepath.Join(firefoxDir, p.Path)
		}
		if hasSession(p.Path) {
			profiles = append(profiles, p)
		}
	}
	return profiles, nil
}

// ResolveProfile picks a profile by name, or the default one when name is
// empty. With no default marked, the first profile wins.
func ResolveProfile(profiles []types.Profile, name string) (types.Profile, error) {
	if len(profiles) == 0 {
		return types.Profile{}, fmt.Errorf("no Firefox profiles with a session file")
	}
	for _, p := range profiles {
		if (name == "" && p.IsDefault) || (name != "" && p.Name == name) {
			return p, nil
		}
	}
	if name == "" {
		return profiles[0], nil
	}
	return types.Profile{}, fmt.Errorf("profile %q not found", name)
}

// DiscoverProfiles lists the auditable profiles on this machine.
func DiscoverProfiles() ([]types.Profile, error) {
	dir := FindFirefoxDir()
	if dir == "" {
		return nil, fmt.Errorf("could not find Firefox directory for %s", runtime.GOOS)
	}
	return ParseProfilesINI(filepath.Join(dir, "profiles.ini"), dir)
}
