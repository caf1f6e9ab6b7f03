package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"crosspost/pkg/logx"
)

const (
	compactEvery = 1000
	runsKept     = 500
)

// fileStore keeps everything in memory and journals changes to disk.
//
// Files:
//   - <prefix>.runs.jsonl          (append-only run history)
//   - <prefix>.posts.snapshot.json (periodic snapshot of the ledger)
//   - <prefix>.posts.journal.jsonl (ledger appends since the snapshot)
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	runsFile *os.File
	runs     []RunRecord // oldest first, capped at runsKept

	snapshotPath string
	journalFile  *os.File
	posts        map[string]int64 // unix milli

	writes int
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	runsPath := prefix + ".runs.jsonl"
	snapPath := prefix + ".posts.snapshot.json"
	journalPath := prefix + ".posts.journal.jsonl"

	runs, err := loadRuns(runsPath)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("run history unreadable; starting empty", logx.Err(err))
	}
	rf, err := os.OpenFile(runsPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}

	posts := map[string]int64{}
	if err := loadSnapshot(snapPath, posts); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("ledger snapshot unreadable", logx.Err(err))
	}
	if err := replayJournal(journalPath, posts); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("ledger journal unreadable", logx.Err(err))
	}

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		_ = rf.Close()
		return nil, err
	}

	log.Debug("file store opened", logx.Int("posts", len(posts)), logx.Int("runs", len(runs)))
	return &fileStore{
		log:          log,
		runsFile:     rf,
		runs:         runs,
		snapshotPath: snapPath,
		journalFile:  jf,
		posts:        posts,
	}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	if s.journalFile != nil {
		if err := s.compactLocked(); err != nil {
			errs = append(errs, err)
		}
		errs = append(errs, s.journalFile.Close())
		s.journalFile = nil
	}
	if s.runsFile != nil {
		errs = append(errs, s.runsFile.Close())
		s.runsFile = nil
	}
	return errors.Join(errs...)
}

func (s *fileStore) HasPost(ctx context.Context, articleID, destination string) (bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journalFile == nil {
		return false, ErrClosed
	}
	_, ok := s.posts[postKey(articleID, destination)]
	return ok, nil
}

func (s *fileStore) PutPost(ctx context.Context, articleID, destination string, at time.Time) error {
	_ = ctx
	if strings.TrimSpace(articleID) == "" || strings.TrimSpace(destination) == "" {
		return nil
	}
	rec := PostRecord{ArticleID: articleID, Destination: destination, PostedAt: at.UTC()}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journalFile == nil {
		return ErrClosed
	}
	s.posts[postKey(articleID, destination)] = at.UnixMilli()

	if err := json.NewEncoder(s.journalFile).Encode(rec); err != nil {
		return err
	}
	s.writes++
	if s.writes%compactEvery == 0 {
		if err := s.compactLocked(); err != nil {
			s.log.Debug("ledger compact failed", logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) AppendRun(ctx context.Context, r RunRecord) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runsFile == nil {
		return ErrClosed
	}
	if err := json.NewEncoder(s.runsFile).Encode(r); err != nil {
		return err
	}
	s.runs = append(s.runs, r)
	if len(s.runs) > runsKept {
		s.runs = append([]RunRecord(nil), s.runs[len(s.runs)-runsKept:]...)
	}
	return nil
}

func (s *fileStore) RecentRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runsFile == nil {
		return nil, ErrClosed
	}
	if limit <= 0 || limit > len(s.runs) {
		limit = len(s.runs)
	}
	out := make([]RunRecord, 0, limit)
	for i := len(s.runs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.runs[i])
	}
	return out, nil
}

func (s *fileStore) compactLocked() error {
	tmp := s.snapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(s.posts); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		return err
	}
	if err := s.journalFile.Truncate(0); err != nil {
		return err
	}
	_, err = s.journalFile.Seek(0, io.SeekEnd)
	return err
}

func loadSnapshot(path string, out map[string]int64) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var m map[string]int64
	if err := json.NewDecoder(f).Decode(&m); err != nil {
		return err
	}
	for k, v := range m {
		out[k] = v
	}
	return nil
}

func replayJournal(path string, out map[string]int64) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r PostRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil || r.ArticleID == "" {
			continue
		}
		out[postKey(r.ArticleID, r.Destination)] = r.PostedAt.UnixMilli()
	}
	return sc.Err()
}

func loadRuns(path string) ([]RunRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var runs []RunRecord
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r RunRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			continue
		}
		runs = append(runs, r)
		if len(runs) > 2*runsKept {
			runs = append([]RunRecord(nil), runs[len(runs)-runsKept:]...)
		}
	}
	if len(runs) > runsKept {
		runs = runs[len(runs)-runsKept:]
	}
	return runs, sc.Err()
}
