// Package snapshot stores the whole gym record as one versioned JSON
// document on disk.  Every write rewrites the document.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/americansport/gymgate/internal/gate/store"
	"github.com/americansport/gymgate/internal/gate/types"
)

// DocumentVersion is the only document layout this package reads.
const DocumentVersion = 1

var (
	ErrUnsupportedVersion = errors.New("snapshot: unsupported document version")
	// ErrInvalidDocument wraps every reason Import refuses its input.
	ErrInvalidDocument = errors.New("snapshot: invalid document")
)

type Meta struct {
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Document is the persisted record.  Members is carried through untouched so
// exports from the admin side survive an import round trip.
type Document struct {
	Meta       Meta                    `json:"meta"`
	Members    json.RawMessage         `json:"members,omitempty"`
	Attendance []types.AttendanceEvent `json:"attendance"`
}

type Store struct {
	mu   sync.Mutex
	path string
	seed []types.AttendanceEvent
	doc  Document
	now  func() time.Time
	log  zerolog.Logger
}

// Open loads the document at path.  A missing, unreadable, or wrong-version
// file is replaced by a fresh document built from seed.
func Open(path string, log zerolog.Logger, seed ...types.AttendanceEvent) (*Store, error) {
	if path == "" {
		return nil, errors.New("snapshot: path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("snapshot mkdir: %w", err)
	}
	s := &Store{
		path: path,
		seed: append([]types.AttendanceEvent(nil), seed...),
		now:  time.Now,
		log:  log,
	}
	if err := s.Load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return s.resetLocked()
	}
	if err != nil {
		return fmt.Errorf("snapshot read: %w", err)
	}

	doc, err := decode(b)
	if err != nil {
		s.log.Warn().Err(err).Str("path", s.path).Msg("snapshot unreadable, resetting to seed")
		return s.resetLocked()
	}
	s.doc = doc
	return nil
}

func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

// Reset discards the current document and writes the seed.
func (s *Store) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resetLocked()
}

func (s *Store) Export(w io.Writer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s.doc)
}

// Import replaces the document with the one read from r.  Nothing changes if
// r does not hold a valid version-1 document.
func (s *Store) Import(r io.Reader) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("snapshot import read: %w", err)
	}
	doc, err := decode(b)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.doc
	s.doc = doc
	s.doc.Meta.UpdatedAt = s.now().UTC()
	if err := s.saveLocked(); err != nil {
		s.doc = prev
		return err
	}
	return nil
}

func (s *Store) ReadAttendanceEvents(_ context.Context) ([]types.AttendanceEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]types.AttendanceEvent, len(s.doc.Attendance))
	copy(out, s.doc.Attendance)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

func (s *Store) AppendAttendanceEvent(_ context.Context, ev types.AttendanceEvent) error {
	if err := store.ValidateEvent(ev); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(ev)
}

func (s *Store) AppendIfSessionState(_ context.Context, ev types.AttendanceEvent, expectOpen bool) error {
	if err := store.ValidateEvent(ev); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		open   bool
		lastAt time.Time
	)
	for _, e := range s.doc.Attendance {
		if e.MemberID != ev.MemberID || e.Timestamp.Before(lastAt) {
			continue
		}
		lastAt = e.Timestamp
		open = e.Type == types.CheckIn
	}
	if open != expectOpen || ev.Timestamp.Before(lastAt) {
		return store.ErrStateConflict
	}
	return s.appendLocked(ev)
}

// appendLocked persists the new document before publishing it.
func (s *Store) appendLocked(ev types.AttendanceEvent) error {
	prev := s.doc
	next := s.doc
	next.Attendance = append(append([]types.AttendanceEvent(nil), prev.Attendance...), ev)
	next.Meta.UpdatedAt = s.now().UTC()

	s.doc = next
	if err := s.saveLocked(); err != nil {
		s.doc = prev
		return err
	}
	return nil
}

func (s *Store) resetLocked() error {
	now := s.now().UTC()
	s.doc = Document{
		Meta:       Meta{Version: DocumentVersion, CreatedAt: now, UpdatedAt: now},
		Attendance: append([]types.AttendanceEvent{}, s.seed...),
	}
	return s.saveLocked()
}

// saveLocked writes to a temp file and renames it over the document so a
// crash never leaves a half-written file behind.
func (s *Store) saveLocked() error {
	b, err := json.MarshalIndent(s.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("snapshot encode: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("snapshot temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("snapshot write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("snapshot close: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("snapshot rename: %w", err)
	}
	return nil
}

func decode(b []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(b, &doc); err != nil {
		return Document{}, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}
	if doc.Meta.Version != DocumentVersion {
		return Document{}, fmt.Errorf("%w: %w: %d", ErrInvalidDocument, ErrUnsupportedVersion, doc.Meta.Version)
	}
	for i, ev := range doc.Attendance {
		if err := store.ValidateEvent(ev); err != nil {
			return Document{}, fmt.Errorf("%w: attendance[%d]: %w", ErrInvalidDocument, i, err)
		}
	}
	return doc, nil
}
