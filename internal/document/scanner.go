package document

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/draftd/internal/ignore"
	"github.com/fyrsmithlabs/draftd/internal/logging"
	"github.com/fyrsmithlabs/draftd/internal/secrets"
)

// textExtensions are the file types treated as project documents.
var textExtensions = map[string]bool{
	".md":       true,
	".markdown": true,
	".txt":      true,
	".rst":      true,
	".adoc":     true,
}

// Scanner walks a project directory and loads its text documents. It is the
// filesystem-backed document source for the pipeline.
type Scanner struct {
	root         string
	maxFileBytes int64
	matcher      *ignore.Matcher
	scrubber     secrets.Scrubber
	logger       *logging.Logger
}

// NewScanner builds a scanner rooted at dir. maxFileKB bounds individual
// file size (0 means 256KB). Ignore files in the root are honored, and
// document content is scrubbed of credentials before it can reach a
// provider prompt.
func NewScanner(dir string, maxFileKB int, logger *logging.Logger) (*Scanner, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	if maxFileKB <= 0 {
		maxFileKB = 256
	}

	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("project dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("project dir %s is not a directory", dir)
	}

	matcher, err := ignore.ForProject(dir)
	if err != nil {
		return nil, fmt.Errorf("ignore rules: %w", err)
	}

	scrubber, err := secrets.New(nil)
	if err != nil {
		return nil, fmt.Errorf("secret rules: %w", err)
	}

	return &Scanner{
		root:         dir,
		maxFileBytes: int64(maxFileKB) * 1024,
		matcher:      matcher,
		scrubber:     scrubber,
		logger:       logger.Named("scanner"),
	}, nil
}

// Documents walks the project tree and returns all readable text documents,
// categorized and token-estimated. Paths are relative to the project root.
func (s *Scanner) Documents(ctx context.Context) ([]Document, error) {
	var docs []Document

	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		rel, relErr := filepath.Rel(s.root, path)
		if relErr != nil {
			return relErr
		}
		if rel == "." {
			return nil
		}

		if s.matcher.Match(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if !textExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}

		info, infoErr := d.Info()
		if infoErr != nil {
			return infoErr
		}
		if info.Size() > s.maxFileBytes {
			s.logger.Debug(ctx, "skipping oversized document",
				zap.String("path", rel),
				zap.Int64("size", info.Size()))
			return nil
		}

		content, readErr := os.ReadFile(path)
		if readErr != nil {
			return fmt.Errorf("read %s: %w", rel, readErr)
		}

		scrubbed := s.scrubber.Scrub(string(content))
		if scrubbed.HasFindings() {
			s.logger.Warn(ctx, "redacted secrets in document",
				zap.String("path", rel),
				zap.Int("findings", len(scrubbed.Findings)),
				zap.Strings("rules", scrubbed.RuleIDs()))
		}

		docs = append(docs, New(filepath.ToSlash(rel), scrubbed.Scrubbed, info.ModTime()))
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug(ctx, "project scan complete", zap.Int("documents", len(docs)))
	return docs, nil
}
