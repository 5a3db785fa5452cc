// internal/state/vault.go
package state

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/user/deskhand/internal/taskfile"
	"github.com/user/deskhand/internal/types"
)

// Vault subdirectories.
const (
	DirPending = "Needs_Action"
	DirDone    = "Done"
	DirFailed  = "Failed"
)

const maxIdentifier = 50

// Vault stores one markdown file per task. New tasks land in Needs_Action and
// are later renamed into Done or Failed; their content never changes.
type Vault struct {
	root string
	now  func() time.Time
}

// NewVault creates a Vault rooted at the given directory.
func NewVault(root string) *Vault {
	return &Vault{root: root, now: time.Now}
}

// Root returns the vault directory.
func (v *Vault) Root() string {
	return v.root
}

// Init creates the vault subdirectories.
func (v *Vault) Init() error {
	for _, d := range []string{DirPending, DirDone, DirFailed} {
		if err := os.MkdirAll(filepath.Join(v.root, d), 0o755); err != nil {
			return fmt.Errorf("create vault dir: %w", err)
		}
	}
	return nil
}

// FileName builds the base name {TYPE}_{identifier}_{epoch} for a task.
func FileName(t types.TaskType, source string, at time.Time) string {
	return fmt.Sprintf("%s_%s_%d", strings.ToUpper(string(t)), SanitizeIdentifier(source), at.Unix())
}

// SanitizeIdentifier keeps letters and digits of s, at most 50 of them.
func SanitizeIdentifier(s string) string {
	var b strings.Builder
	n := 0
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			continue
		}
		b.WriteRune(r)
		n++
		if n == maxIdentifier {
			break
		}
	}
	if b.Len() == 0 {
		return "unknown"
	}
	return b.String()
}

// Write renders task into Needs_Action and returns the file name. An existing
// file is never overwritten: a counter suffix is added until a free name is
// found.
func (v *Vault) Write(task *types.TaskFile) (string, error) {
	data, err := taskfile.Render(task)
	if err != nil {
		return "", err
	}
	dir := filepath.Join(v.root, DirPending)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create vault dir: %w", err)
	}

	base := FileName(task.Type, task.Source, v.now())
	tmp, err := os.CreateTemp(dir, "."+base+"-*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp task file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write temp task file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close temp task file: %w", err)
	}

	// os.Link fails when the target exists, so a name is claimed atomically.
	for i := 0; ; i++ {
		name := base + ".md"
		if i > 0 {
			name = base + "_" + strconv.Itoa(i) + ".md"
		}
		err := os.Link(tmpPath, filepath.Join(dir, name))
		if err == nil {
			return name, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return "", fmt.Errorf("link task file: %w", err)
		}
	}
}

func (v *Vault) ListPending() ([]string, error) { return v.list(DirPending) }

func (v *Vault) ListDone() ([]string, error) { return v.list(DirDone) }

func (v *Vault) ListFailed() ([]string, error) { return v.list(DirFailed) }

// List returns the task names in one of the vault subdirectories.
func (v *Vault) List(dir string) ([]string, error) {
	switch dir {
	case DirPending, DirDone, DirFailed:
		return v.list(dir)
	}
	return nil, fmt.Errorf("unknown vault dir: %s", dir)
}

// list returns the .md names in dir, sorted. A missing dir is empty.
func (v *Vault) list(dir string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(v.root, dir))
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("read vault dir: %w", err)
	}
	names := []string{}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || filepath.Ext(name) != ".md" {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Read returns the raw content of a pending task.
func (v *Vault) Read(name string) ([]byte, error) {
	return v.ReadFrom(DirPending, name)
}

// ReadFrom returns the raw content of a task in dir.
func (v *Vault) ReadFrom(dir, name string) ([]byte, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(v.root, dir, name))
	if err != nil {
		return nil, fmt.Errorf("read task file: %w", err)
	}
	return data, nil
}

// Find locates name in any of the vault subdirectories.
func (v *Vault) Find(name string) (string, error) {
	if err := checkName(name); err != nil {
		return "", err
	}
	for _, d := range []string{DirPending, DirDone, DirFailed} {
		if _, err := os.Stat(filepath.Join(v.root, d, name)); err == nil {
			return d, nil
		}
	}
	return "", fmt.Errorf("task not found: %s", name)
}

func (v *Vault) MoveToDone(name string) error { return v.move(DirPending, DirDone, name) }

func (v *Vault) MoveToFailed(name string) error { return v.move(DirPending, DirFailed, name) }

// Requeue moves a task from Done or Failed back to Needs_Action.
func (v *Vault) Requeue(name string) error {
	dir, err := v.Find(name)
	if err != nil {
		return err
	}
	if dir == DirPending {
		return nil
	}
	return v.move(dir, DirPending, name)
}

func (v *Vault) move(from, to, name string) error {
	if err := checkName(name); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Join(v.root, to), 0o755); err != nil {
		return fmt.Errorf("create vault dir: %w", err)
	}
	if err := os.Rename(filepath.Join(v.root, from, name), filepath.Join(v.root, to, name)); err != nil {
		return fmt.Errorf("move task file: %w", err)
	}
	return nil
}

func checkName(name string) error {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return fmt.Errorf("invalid task name: %q", name)
	}
	return nil
}
