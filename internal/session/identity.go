package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"dashboard/api/internal/util"
	"github.com/rs/zerolog"
)

const identityFileName = "session-id"

// Resolver hands out the client's session identifier. The first call on a
// fresh client generates one and writes it to path; later calls, including
// those from later processes, return the stored value.
type Resolver struct {
	path   string
	logger zerolog.Logger

	once    sync.Once
	id      string
	durable bool
}

func NewResolver(path string, logger zerolog.Logger) *Resolver {
	return &Resolver{path: path, logger: logger}
}

// DefaultPath is the identity file under the user config directory.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil || dir == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "dashboard", identityFileName)
}

// Resolve never fails. When the identity file cannot be read or written it
// returns an identifier that only lives as long as this process.
func (r *Resolver) Resolve() string {
	r.once.Do(func() {
		r.id, r.durable = r.resolve()
	})
	return r.id
}

// Durable reports whether the resolved identifier survives a restart.
func (r *Resolver) Durable() bool {
	r.Resolve()
	return r.durable
}

func (r *Resolver) resolve() (string, bool) {
	if strings.TrimSpace(r.path) == "" {
		r.logger.Warn().Msg("no session file configured; using ephemeral session id")
		return util.NewID(""), false
	}

	stored, err := readIdentity(r.path)
	if err == nil {
		return stored, true
	}
	if !errors.Is(err, os.ErrNotExist) {
		r.logger.Warn().Err(err).Str("path", r.path).Msg("unreadable session file; replacing it")
	}

	id := util.NewID("")
	if err := writeIdentity(r.path, id); err != nil {
		r.logger.Warn().Err(err).Str("path", r.path).Msg("session id not persisted; using ephemeral session id")
		return id, false
	}
	r.logger.Info().Str("path", r.path).Msg("created session id")
	return id, true
}

func readIdentity(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	id := strings.TrimSpace(string(raw))
	if !util.ValidKey(id) {
		return "", fmt.Errorf("invalid session id in %s", path)
	}
	return id, nil
}

func writeIdentity(path, id string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), identityFileName+".*")
	if err != nil {
		return fmt.Errorf("create session file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(id + "\n"); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write session file: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close session file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("install session file: %w", err)
	}
	return nil
}
