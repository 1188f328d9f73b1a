package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/wricardo/mcp-training/gridduel/game/engine"
)

// FilePersistence implements Durable with one JSON file per session.
//
// The version check in Put is serialized by an in-process mutex only, so a
// sessions directory must belong to a single server instance. Two processes
// sharing one directory can both pass the check and lose a write. Use the
// sqlite backend when more than one process writes sessions.
type FilePersistence struct {
	sessionsDir string
	mu          sync.Mutex
}

// NewFilePersistence creates a new file-based durable tier
func NewFilePersistence(sessionsDir string) (*FilePersistence, error) {
	// Create sessions directory if it doesn't exist
	if err := os.MkdirAll(sessionsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create sessions directory: %w", err)
	}

	return &FilePersistence{sessionsDir: sessionsDir}, nil
}

func (fp *FilePersistence) Get(ctx context.Context, id string) (*engine.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fp.mu.Lock()
	defer fp.mu.Unlock()
	return fp.read(id)
}

func (fp *FilePersistence) Put(ctx context.Context, s *engine.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !validFileID(s.ID) {
		return unavailable(s.ID, "put", fmt.Errorf("session id %q cannot be used as a file name", s.ID))
	}

	fp.mu.Lock()
	defer fp.mu.Unlock()

	current, err := fp.read(s.ID)
	switch {
	case err == nil && s.Version == 0:
		return alreadyExists(s.ID)
	case err == nil && current.Version != s.Version:
		return staleWrite(s.ID, s.Version)
	case err != nil && !errors.Is(err, ErrSessionNotFound):
		return err
	case err != nil && s.Version != 0:
		return err
	}

	saved := s.Clone()
	saved.Version++
	data, err := json.MarshalIndent(saved, "", "  ")
	if err != nil {
		return unavailable(s.ID, "put", fmt.Errorf("failed to marshal session: %w", err))
	}

	// Write then rename so readers never see a partial file
	tmp := fp.getFilePath(s.ID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return unavailable(s.ID, "put", fmt.Errorf("failed to write session file: %w", err))
	}
	if err := os.Rename(tmp, fp.getFilePath(s.ID)); err != nil {
		_ = os.Remove(tmp)
		return unavailable(s.ID, "put", fmt.Errorf("failed to replace session file: %w", err))
	}

	s.Version = saved.Version
	return nil
}

func (fp *FilePersistence) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !validFileID(id) {
		return notFound(id)
	}

	fp.mu.Lock()
	defer fp.mu.Unlock()

	if err := os.Remove(fp.getFilePath(id)); err != nil {
		if os.IsNotExist(err) {
			return notFound(id)
		}
		return unavailable(id, "delete", fmt.Errorf("failed to remove session file: %w", err))
	}
	return nil
}

func (fp *FilePersistence) ListByParticipant(ctx context.Context, participantID string) ([]*engine.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fp.mu.Lock()
	defer fp.mu.Unlock()

	ids, err := fp.listAll()
	if err != nil {
		return nil, unavailable("", "list", err)
	}

	var sessions []*engine.Session
	for _, id := range ids {
		s, err := fp.read(id)
		if err != nil {
			if errors.Is(err, ErrSessionNotFound) {
				continue
			}
			return nil, err
		}
		if s.HasParticipant(participantID) {
			sessions = append(sessions, s)
		}
	}

	sort.Slice(sessions, func(i, j int) bool {
		if !sessions[i].CreatedAt.Equal(sessions[j].CreatedAt) {
			return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
		}
		return sessions[i].ID < sessions[j].ID
	})
	return sessions, nil
}

// read loads a session file. Callers hold fp.mu.
func (fp *FilePersistence) read(id string) (*engine.Session, error) {
	if !validFileID(id) {
		return nil, notFound(id)
	}

	data, err := os.ReadFile(fp.getFilePath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, notFound(id)
		}
		return nil, unavailable(id, "get", fmt.Errorf("failed to read session file: %w", err))
	}

	var s engine.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session %s: %w", id, err)
	}
	return &s, nil
}

// listAll returns all persisted session IDs
func (fp *FilePersistence) listAll() ([]string, error) {
	entries, err := os.ReadDir(fp.sessionsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read sessions directory: %w", err)
	}

	var ids []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if name := entry.Name(); strings.HasSuffix(name, ".json") {
			ids = append(ids, strings.TrimSuffix(name, ".json"))
		}
	}
	return ids, nil
}

// getFilePath returns the full file path for a session ID
func (fp *FilePersistence) getFilePath(id string) string {
	return filepath.Join(fp.sessionsDir, id+".json")
}

func validFileID(id string) bool {
	return id != "" && !strings.ContainsAny(id, `/\`) && id != "." && id != ".."
}
