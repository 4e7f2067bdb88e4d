// Package memory emulates the task scheduling service in process. It backs
// the test suite and lets the server and CLI run on hosts without the native
// service.
package memory

import (
	"fmt"
	"strings"
	"sync"

	"github.com/0xPuncker/task-watcher/internal/taskservice"
	"github.com/google/uuid"
)

const (
	flagCreate = 0x2
	flagUpdate = 0x4
)

// Task states as reported by the service.
const (
	StateDisabled = 1
	StateReady    = 3
)

type folder struct {
	name    string
	path    string
	denied  bool
	tasks   []*registration
	folders []*folder
}

type registration struct {
	name string
	def  *node
}

// Store is the persisted side of the emulated service: a folder tree of
// registered definitions.
type Store struct {
	mu       sync.Mutex
	root     *folder
	sessions int
	down     bool
}

func NewStore() *Store {
	return &Store{root: &folder{path: `\`}}
}

// Connect opens a session against the store.
func (s *Store) Connect() (taskservice.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.down {
		return nil, fmt.Errorf("failed to connect to task service: %w", taskservice.ErrServiceUnavailable)
	}
	s.sessions++
	return &session{store: s}, nil
}

// OpenSessions reports sessions that have not been released yet.
func (s *Store) OpenSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions
}

// SetAvailable toggles whether new connections succeed.
func (s *Store) SetAvailable(available bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.down = !available
}

// Deny makes every operation on the folder at path fail with ErrAccessDenied.
func (s *Store) Deny(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.lookupLocked(path)
	if err != nil {
		return err
	}
	f.denied = true
	return nil
}

// MkdirAll creates the folder at path and every missing parent.
func (s *Store) MkdirAll(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.root
	for _, segment := range taskservice.SplitPath(path) {
		next := current.subfolder(segment)
		if next == nil {
			next = current.addFolder(segment)
		}
		current = next
	}
	return nil
}

func (s *Store) lookupLocked(path string) (*folder, error) {
	current := s.root
	for _, segment := range taskservice.SplitPath(path) {
		next := current.subfolder(segment)
		if next == nil {
			return nil, fmt.Errorf("folder %s: %w", taskservice.CleanPath(path), taskservice.ErrNotFound)
		}
		current = next
	}
	return current, nil
}

func (s *Store) folderLocked(path string) (*folder, error) {
	f, err := s.lookupLocked(path)
	if err != nil {
		return nil, err
	}
	if f.denied {
		return nil, fmt.Errorf("folder %s: %w", f.path, taskservice.ErrAccessDenied)
	}
	return f, nil
}

func (f *folder) subfolder(name string) *folder {
	for _, child := range f.folders {
		if strings.EqualFold(child.name, name) {
			return child
		}
	}
	return nil
}

func (f *folder) addFolder(name string) *folder {
	path := f.path + `\` + name
	if f.path == `\` {
		path = `\` + name
	}
	child := &folder{name: name, path: path}
	f.folders = append(f.folders, child)
	return child
}

func (f *folder) task(name string) (int, *registration) {
	for i, t := range f.tasks {
		if strings.EqualFold(t.name, name) {
			return i, t
		}
	}
	return -1, nil
}

func (f *folder) taskPath(name string) string {
	if f.path == `\` {
		return `\` + name
	}
	return f.path + `\` + name
}

type session struct {
	store    *Store
	mu       sync.Mutex
	released bool
}

func (s *session) NewTask() (taskservice.Object, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	return newDefinition(), nil
}

func (s *session) GetFolder(path string) (taskservice.Object, error) {
	if err := s.check(); err != nil {
		return nil, err
	}

	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	f, err := s.store.lookupLocked(path)
	if err != nil {
		return nil, err
	}
	return &folderObject{store: s.store, path: f.path}, nil
}

func (s *session) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return
	}
	s.released = true

	s.store.mu.Lock()
	s.store.sessions--
	s.store.mu.Unlock()
}

func (s *session) check() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return fmt.Errorf("session released: %w", taskservice.ErrServiceUnavailable)
	}
	return nil
}

// list is a read-only collection handed out by folder enumeration.
type list struct {
	kind  string
	items []taskservice.Object
}

func (l *list) Get(name string) (taskservice.Object, error) {
	return nil, fmt.Errorf("%s has no object property %q: %w", l.kind, name, taskservice.ErrInvalidConfiguration)
}

func (l *list) Value(name string) (interface{}, error) {
	if name != "Count" {
		return nil, fmt.Errorf("%s has no property %q: %w", l.kind, name, taskservice.ErrInvalidConfiguration)
	}
	return len(l.items), nil
}

func (l *list) Set(name string, value interface{}) error {
	return fmt.Errorf("%s is read-only: %w", l.kind, taskservice.ErrInvalidConfiguration)
}

func (l *list) Call(method string, args ...interface{}) (taskservice.Object, error) {
	return nil, fmt.Errorf("%s has no method %q: %w", l.kind, method, taskservice.ErrInvalidConfiguration)
}

func (l *list) Item(index int) (taskservice.Object, error) {
	if index < 1 || index > len(l.items) {
		return nil, fmt.Errorf("%s index %d out of range: %w", l.kind, index, taskservice.ErrNotFound)
	}
	return l.items[index-1], nil
}

func (l *list) Release() {}

func newUUIDName() string {
	return "{" + strings.ToUpper(uuid.NewString()) + "}"
}
