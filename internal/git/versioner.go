package git

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/maruel/flexstore/internal/jsonldb"
)

// Versioner records every commit and delete of a jsonldb.DB as a git commit.
//
// The repository must be rooted at the DB directory. Register it with
// jsonldb.DB.AddObserver.
type Versioner struct {
	repo   *Repo
	author Author
}

// NewVersioner returns a Versioner committing to repo as author.
func NewVersioner(repo *Repo, author Author) *Versioner {
	return &Versioner{repo: repo, author: author}
}

// OnCommit implements jsonldb.Observer.
func (v *Versioner) OnCommit(c *jsonldb.Collection, files []string) {
	v.record("commit", c, files)
}

// OnDelete implements jsonldb.Observer.
func (v *Versioner) OnDelete(c *jsonldb.Collection, files []string) {
	v.record("delete", c, files)
}

// record commits files. Failures are logged, not returned.
func (v *Versioner) record(op string, c *jsonldb.Collection, files []string) {
	msg := fmt.Sprintf("%s: %s\n\n%s", op, c.Name(), strings.Join(files, "\n"))
	err := v.repo.CommitTx(context.Background(), v.author, func() (string, []string, error) {
		return msg, files, nil
	})
	if err != nil {
		slog.Warn("Failed to version collection", "collection", c.Name(), "op", op, "err", err)
	}
}

// History returns the commits that changed the document id of c, newest
// first.
func (v *Versioner) History(ctx context.Context, c *jsonldb.Collection, id int64, n int) ([]*Commit, error) {
	return v.repo.History(ctx, documentPath(c, id), n)
}

// At returns the document id of c as of the commit hash.
func (v *Versioner) At(ctx context.Context, hash string, c *jsonldb.Collection, id int64) (jsonldb.Row, error) {
	data, err := v.repo.FileAt(ctx, hash, documentPath(c, id))
	if err != nil {
		return nil, err
	}
	row, err := jsonldb.DecodeRow(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse document %d at %s: %w", id, hash, err)
	}
	return row, nil
}

func documentPath(c *jsonldb.Collection, id int64) string {
	return path.Join(c.Name(), jsonldb.DocumentName(id))
}
