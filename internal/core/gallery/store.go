package gallery

import (
	"encoding/gob"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"smart-attendance-go/internal/core/imaging"

	log "github.com/sirupsen/logrus"
)

var (
	// ErrAlreadyEnrolled is returned by Add when the name is already present.
	ErrAlreadyEnrolled = errors.New("identity already enrolled")
	// ErrNotFound is returned by Update and Delete for unknown identities.
	ErrNotFound = errors.New("identity not found")
	// ErrInvalidName is returned for empty names or names that would escape
	// the reference image directory.
	ErrInvalidName = errors.New("invalid identity name")
	// ErrStorageUnavailable signals a persistence failure. The in-memory
	// gallery is still updated; only the durable copy is stale.
	ErrStorageUnavailable = errors.New("gallery storage unavailable")
)

// Entry pairs an enrolled identity name with its face template. Entries keep
// their insertion order; the matcher relies on that order for stable
// tie-breaking.
type Entry struct {
	Name     string
	Template *imaging.Template
}

// Store is the enrolled-face gallery. It owns the templates, persists the
// whole gallery after every mutation and keeps a full-frame reference JPEG
// per identity for operator review. Enrollment requests arrive from HTTP
// handlers while the recognition loop reads entries, so all access goes
// through a RWMutex.
type Store struct {
	mu           sync.RWMutex
	entries      []Entry
	galleryPath  string
	referenceDir string
}

// persistedGallery is the on-disk gob layout: parallel name/template slices.
// A length mismatch between them marks the file as corrupt.
type persistedGallery struct {
	Names     []string
	Templates [][]uint8
}

// NewStore creates a gallery store persisting to galleryPath with reference
// images under referenceDir. Call Load before first use.
func NewStore(galleryPath, referenceDir string) *Store {
	return &Store{
		galleryPath:  galleryPath,
		referenceDir: referenceDir,
	}
}

// Load reads the persisted gallery from disk. A missing or corrupt file is
// not an error: the store starts empty and the condition is logged, so a
// damaged gallery never prevents the application from coming up.
func (s *Store) Load() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = nil

	f, err := os.Open(s.galleryPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Infof("No existing gallery at %s, starting empty", s.galleryPath)
		} else {
			log.WithError(err).Warnf("Failed to open gallery file %s, starting empty", s.galleryPath)
		}
		return
	}
	defer f.Close()

	var data persistedGallery
	if err := gob.NewDecoder(f).Decode(&data); err != nil {
		log.WithError(err).Warnf("Gallery file %s is corrupt, starting empty", s.galleryPath)
		return
	}
	if len(data.Names) != len(data.Templates) {
		log.Warnf("Gallery file %s has mismatched name/template counts (%d vs %d), starting empty",
			s.galleryPath, len(data.Names), len(data.Templates))
		return
	}

	entries := make([]Entry, 0, len(data.Names))
	for i, name := range data.Names {
		tpl, err := imaging.FromPixels(data.Templates[i])
		if err != nil {
			log.WithError(err).Warnf("Gallery file %s holds an invalid template for %q, starting empty", s.galleryPath, name)
			return
		}
		entries = append(entries, Entry{Name: name, Template: tpl})
	}

	s.entries = entries
	log.Infof("Loaded %d enrolled faces from %s", len(entries), s.galleryPath)
}

// persist writes the full gallery to a temporary file and renames it into
// place, so a crash mid-write leaves the previous gallery intact. Callers
// must hold the write lock.
func (s *Store) persist() error {
	data := persistedGallery{
		Names:     make([]string, 0, len(s.entries)),
		Templates: make([][]uint8, 0, len(s.entries)),
	}
	for _, e := range s.entries {
		data.Names = append(data.Names, e.Name)
		data.Templates = append(data.Templates, e.Template.Pixels)
	}

	dir := filepath.Dir(s.galleryPath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("creating gallery directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "gallery-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temporary gallery file: %w", err)
	}
	tmpName := tmp.Name()

	if err := gob.NewEncoder(tmp).Encode(&data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("encoding gallery: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temporary gallery file: %w", err)
	}
	if err := os.Rename(tmpName, s.galleryPath); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing gallery file: %w", err)
	}
	return nil
}

// persistLogged runs persist and converts any failure into
// ErrStorageUnavailable after logging it. The in-memory mutation that
// triggered the persist stays applied either way.
func (s *Store) persistLogged() error {
	if err := s.persist(); err != nil {
		log.WithError(err).Error("Failed to persist gallery")
		return ErrStorageUnavailable
	}
	return nil
}

func validateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrInvalidName
	}
	if strings.ContainsAny(name, `/\`) || name != filepath.Base(name) {
		return ErrInvalidName
	}
	return nil
}

func (s *Store) indexOf(name string) int {
	for i, e := range s.entries {
		if e.Name == name {
			return i
		}
	}
	return -1
}

// Add enrolls a new identity: the face image is normalized into a template,
// appended to the gallery and the gallery is persisted. The full frame the
// face was captured from is stored as a reference JPEG for operator review;
// if reference is nil the face image itself is used. Names are matched
// case-sensitively and must be unique.
func (s *Store) Add(name string, face image.Image, reference image.Image) error {
	if err := validateName(name); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexOf(name) >= 0 {
		return ErrAlreadyEnrolled
	}

	s.entries = append(s.entries, Entry{Name: name, Template: imaging.Normalize(face)})

	if reference == nil {
		reference = face
	}
	if err := s.saveReference(name, reference); err != nil {
		// The reference image is for review only; a write failure does not
		// undo the enrollment.
		log.WithError(err).Warnf("Failed to save reference image for %s", name)
	}

	log.Infof("Enrolled new identity: %s (%d total)", name, len(s.entries))
	return s.persistLogged()
}

// Update replaces the template of an existing identity in place, keeping its
// position in the gallery, and persists.
func (s *Store) Update(name string, face image.Image) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(name)
	if i < 0 {
		return ErrNotFound
	}

	s.entries[i].Template = imaging.Normalize(face)

	if err := s.saveReference(name, face); err != nil {
		log.WithError(err).Warnf("Failed to update reference image for %s", name)
	}

	log.Infof("Updated face template for identity: %s", name)
	return s.persistLogged()
}

// Delete removes an identity from the gallery, preserving the relative order
// of the remaining entries, deletes its reference image and persists. Past
// attendance records are deliberately left untouched.
func (s *Store) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(name)
	if i < 0 {
		return ErrNotFound
	}

	s.entries = append(s.entries[:i], s.entries[i+1:]...)

	refPath := s.referencePath(name)
	if err := os.Remove(refPath); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warnf("Failed to remove reference image %s", refPath)
	}

	log.Infof("Deleted identity: %s (%d remaining)", name, len(s.entries))
	return s.persistLogged()
}

// List returns the enrolled names in insertion order.
func (s *Store) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, len(s.entries))
	for i, e := range s.entries {
		names[i] = e.Name
	}
	return names
}

// Entries returns a snapshot of the gallery for the matcher. The slice is a
// copy, so a concurrent enrollment cannot change it mid-scan; templates are
// shared but never mutated in place (Update swaps them wholesale).
func (s *Store) Entries() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]Entry, len(s.entries))
	copy(entries, s.entries)
	return entries
}

// Count returns the number of enrolled identities.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// ReferenceImagePath returns the path of the stored reference JPEG for an
// identity, or ErrNotFound if the identity is not enrolled.
func (s *Store) ReferenceImagePath(name string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.indexOf(name) < 0 {
		return "", ErrNotFound
	}
	return s.referencePath(name), nil
}

func (s *Store) referencePath(name string) string {
	return filepath.Join(s.referenceDir, name+".jpg")
}

func (s *Store) saveReference(name string, img image.Image) error {
	if err := os.MkdirAll(s.referenceDir, 0750); err != nil {
		return fmt.Errorf("creating reference directory: %w", err)
	}
	f, err := os.Create(s.referencePath(name))
	if err != nil {
		return fmt.Errorf("creating reference image: %w", err)
	}
	defer f.Close()

	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: 90}); err != nil {
		return fmt.Errorf("encoding reference image: %w", err)
	}
	return nil
}
