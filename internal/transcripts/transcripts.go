// Package transcripts discovers and loads per-user meeting transcripts from a
// directory tree: one folder per user, transcripts as .txt files inside it.
package transcripts

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Transcript is one raw meeting transcript on disk.
type Transcript struct {
	Name string
	Text string
}

// DiscoverUsers lists the user folders under root in sorted order.
func DiscoverUsers(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("read transcript root %s: %w", root, err)
	}

	var users []string
	for _, entry := range entries {
		if entry.IsDir() {
			users = append(users, entry.Name())
		}
	}
	sort.Strings(users)
	return users, nil
}

// LoadForUser reads the user's .txt transcripts in file-name order. File-name
// order is processing order: earlier meetings become context for later ones.
func LoadForUser(root, user string) ([]Transcript, error) {
	userDir := filepath.Join(root, user)
	entries, err := os.ReadDir(userDir)
	if err != nil {
		return nil, fmt.Errorf("read user folder %s: %w", userDir, err)
	}

	var transcripts []Transcript
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".txt") {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(userDir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read transcript %s: %w", entry.Name(), err)
		}
		transcripts = append(transcripts, Transcript{Name: entry.Name(), Text: string(raw)})
	}
	sort.Slice(transcripts, func(i, j int) bool { return transcripts[i].Name < transcripts[j].Name })
	return transcripts, nil
}
