package firefox

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pierrec/lz4/v4"

	"github.com/lotas/tabtimer/internal/classify"
	"github.com/lotas/tabtimer/internal/types"
)

// mozlz4 header: 8-byte magic followed by the uncompressed size.
var mozLz4Magic = []byte("mozLz40\x00")

// ErrNoSession is returned when a profile has no session file.
var ErrNoSession = errors.New("no session file")

// sessionFiles are tried in order: the live session, then the last closed one.
var sessionFiles = []string{"recovery.jsonlz4", "previous.jsonlz4"}

// DecompressMozLz4 decompresses data in Mozilla's mozlz4 format: the magic,
// a little-endian uint32 uncompressed size and one raw lz4 block.
func DecompressMozLz4(data []byte) ([]byte, error) {
	const headerSize = 12

	if len(data) < headerSize {
		return nil, fmt.Errorf("mozlz4: data too short (%d bytes)", len(data))
	}
	if !bytes.HasPrefix(data, mozLz4Magic) {
		return nil, fmt.Errorf("mozlz4: invalid header magic")
	}

	dst := make([]byte, binary.LittleEndian.Uint32(data[8:headerSize]))
	n, err := lz4.UncompressBlock(data[headerSize:], dst)
	if err != nil {
		return nil, fmt.Errorf("mozlz4: decompress failed: %w", err)
	}
	return dst[:n], nil
}

type rawEntry struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

type rawTab struct {
	Entries      []rawEntry `json:"entries"`
	Index        int        `json:"index"`
	LastAccessed int64      `json:"lastAccessed"`
	Pinned       bool       `json:"pinned"`
}

type rawSession struct {
	Windows []struct {
		Tabs []rawTab `json:"tabs"`
	} `json:"windows"`
}

// current returns the page a tab is showing. index is 1-based.
func (rt rawTab) current() rawEntry {
	i := rt.Index - 1
	if i < 0 || i >= len(rt.Entries) {
		i = len(rt.Entries) - 1
	}
	return rt.Entries[i]
}

// ParseSession parses decompressed session JSON. Each tab is classified the
// way the router would classify it if the extension reported it live.
func ParseSession(data []byte) (*types.SessionData, error) {
	var raw rawSession
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse session JSON: %w", err)
	}

	sd := &types.SessionData{
		Windows:  len(raw.Windows),
		ParsedAt: time.Now(),
	}
	for winIdx, w := range raw.Windows {
		for tabIdx, rt := range w.Tabs {
			if len(rt.Entries) == 0 {
				continue
			}
			entry := rt.current()
			sd.Tabs = append(sd.Tabs, &types.Tab{
				URL:          entry.URL,
				Title:        entry.Title,
				LastAccessed: time.UnixMilli(rt.LastAccessed),
				WindowIndex:  winIdx,
				TabIndex:     tabIdx,
				Pinned:       rt.Pinned,
				Trackable:    classify.IsTrackable(entry.URL),
				IsEmpty:      classify.IsEmpty(entry.URL),
			})
		}
	}
	return sd, nil
}

// ReadSessionFile reads and parses the session stored in a profile directory.
func ReadSessionFile(profileDir string) (*types.SessionData, error) {
	backupDir := filepath.Join(profileDir, "sessionstore-backups")
	for _, name := range sessionFiles {
		data, err := os.ReadFile(filepath.Join(backupDir, name))
		if err != nil {
			continue
		}
		decompressed, err := DecompressMozLz4(data)
		if err != nil {
			return nil, fmt.Errorf("decompress %s: %w", name, err)
		}
		return ParseSession(decompressed)
	}
	return nil, fmt.Errorf("%s: %w", backupDir, ErrNoSession)
}

// hasSession reports whether profileDir holds a readable session file.
func hasSession(profileDir string) bool {
	for _, name := range sessionFiles {
		if _, err := os.Stat(filepath.Join(profileDir, "sessionstore-backups", name)); err == nil {
			return true
		}
	}
	return false
}
