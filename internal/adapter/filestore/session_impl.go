package filestore

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/user/harvester/internal/entity"
	"github.com/user/harvester/internal/repository"
)

const cookieFile = "cookies.txt"

// SessionRepoImpl stores cookies as <dir>/<source>/cookies.txt: the first
// line is the Unix save time, followed by one "name: value" line per cookie.
type SessionRepoImpl struct {
	dir string
}

func NewSessionRepo(dir string) *SessionRepoImpl {
	return &SessionRepoImpl{dir: dir}
}

func (r *SessionRepoImpl) path(source string) string {
	return filepath.Join(r.dir, source, cookieFile)
}

func (r *SessionRepoImpl) Load(_ context.Context, source string) (*entity.Session, error) {
	data, err := os.ReadFile(r.path(source))
	if errors.Is(err, os.ErrNotExist) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read cookie file: %w", err)
	}

	sc := bufio.NewScanner(bytes.NewReader(data))
	if !sc.Scan() {
		return nil, repository.ErrNotFound
	}
	ts, err := strconv.ParseInt(strings.TrimSpace(sc.Text()), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("cookie file %s: bad timestamp: %w", r.path(source), err)
	}

	s := &entity.Session{Source: source, Cookies: entity.Cookies{}, SavedAt: time.Unix(ts, 0)}
	for sc.Scan() {
		name, value, ok := strings.Cut(sc.Text(), ": ")
		if !ok || strings.TrimSpace(name) == "" {
			continue
		}
		s.Cookies[strings.TrimSpace(name)] = strings.TrimSpace(value)
	}
	return s, sc.Err()
}

func (r *SessionRepoImpl) Save(_ context.Context, s *entity.Session) error {
	names := make([]string, 0, len(s.Cookies))
	for name := range s.Cookies {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	fmt.Fprintf(&b, "%d\n", s.SavedAt.Unix())
	for _, name := range names {
		fmt.Fprintf(&b, "%s: %s\n", name, s.Cookies[name])
	}
	return writeFileAtomic(r.path(s.Source), []byte(b.String()))
}
