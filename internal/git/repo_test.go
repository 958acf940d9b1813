package git

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

var testCommitter = Author{Name: "Test User", Email: "test@example.com"}

func setupRepo(t *testing.T) *Repo {
	t.Helper()
	r, err := Open(t.Context(), t.TempDir(), testCommitter)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	return r
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	p := filepath.Join(dir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
}

func commitFiles(t *testing.T, r *Repo, msg string, files ...string) {
	t.Helper()
	err := r.CommitTx(t.Context(), Author{}, func() (string, []string, error) {
		return msg, files, nil
	})
	if err != nil {
		t.Fatalf("CommitTx() failed: %v", err)
	}
}

func TestRepo(t *testing.T) {
	t.Parallel()

	t.Run("Init", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		r, err := Open(t.Context(), dir, testCommitter)
		if err != nil {
			t.Fatalf("Open() failed: %v", err)
		}
		if _, err := os.Stat(filepath.Join(dir, ".git")); err != nil {
			t.Errorf(".git directory not created: %v", err)
		}
		cfg, err := r.repo.Config()
		if err != nil {
			t.Fatal(err)
		}
		if cfg.User.Name != "Test User" || cfg.User.Email != "test@example.com" {
			t.Errorf("user = %q <%q>", cfg.User.Name, cfg.User.Email)
		}
		if _, err := Open(t.Context(), dir, testCommitter); err != nil {
			t.Errorf("reopening failed: %v", err)
		}
		if _, err := Open(t.Context(), t.TempDir(), Author{}); err == nil {
			t.Error("Open() without committer succeeded")
		}
	})

	t.Run("Commit", func(t *testing.T) {
		t.Parallel()
		r := setupRepo(t)
		ctx := t.Context()
		if n, err := r.CommitCount(ctx); err != nil || n != 0 {
			t.Fatalf("CommitCount() = %d, %v on empty repo", n, err)
		}
		writeFile(t, r.Dir(), "c/1.item.json", `{"id":1}`)
		err := r.CommitTx(ctx, Author{Name: "Author", Email: "author@example.com"}, func() (string, []string, error) {
			return "first\n\nbody text", []string{"c/1.item.json"}, nil
		})
		if err != nil {
			t.Fatalf("CommitTx() failed: %v", err)
		}

		history, err := r.History(ctx, "c/1.item.json", 10)
		if err != nil {
			t.Fatal(err)
		}
		if len(history) != 1 {
			t.Fatalf("History() returned %d commits", len(history))
		}
		h := history[0]
		if h.Message != "first" || h.Body != "body text" || h.Author != "Author" || h.AuthorEmail != "author@example.com" {
			t.Errorf("commit = %+v", h)
		}
		for _, hash := range []string{h.Hash, "HEAD"} {
			data, err := r.FileAt(ctx, hash, "c/1.item.json")
			if err != nil {
				t.Fatalf("FileAt(%s) failed: %v", hash, err)
			}
			if string(data) != `{"id":1}` {
				t.Errorf("FileAt(%s) = %s", hash, data)
			}
		}
		if _, err := r.FileAt(ctx, "HEAD", "c/missing.json"); err == nil {
			t.Error("FileAt() of missing file succeeded")
		}
	})

	t.Run("default author", func(t *testing.T) {
		t.Parallel()
		r := setupRepo(t)
		writeFile(t, r.Dir(), "a.txt", "a")
		commitFiles(t, r, "add", "a.txt")
		history, err := r.History(t.Context(), "", 0)
		if err != nil || len(history) != 1 {
			t.Fatalf("History() = %v, %v", history, err)
		}
		if history[0].Author != testCommitter.Name {
			t.Errorf("author = %q", history[0].Author)
		}
	})

	t.Run("no commit", func(t *testing.T) {
		t.Parallel()
		r := setupRepo(t)
		ctx := t.Context()
		writeFile(t, r.Dir(), "a.txt", "a")
		commitFiles(t, r, "none")
		errFail := os.ErrPermission
		err := r.CommitTx(ctx, Author{}, func() (string, []string, error) {
			return "fail", []string{"a.txt"}, errFail
		})
		if !errors.Is(err, errFail) {
			t.Errorf("CommitTx() error = %v, want %v", err, errFail)
		}
		commitFiles(t, r, "add", "a.txt")
		commitFiles(t, r, "unchanged", "a.txt")
		writeFile(t, r.Dir(), "untracked.txt", "u")
		commitFiles(t, r, "unchanged with untracked", "a.txt")
		if n, _ := r.CommitCount(ctx); n != 1 {
			t.Errorf("CommitCount() = %d, want 1", n)
		}
	})

	t.Run("deleted file", func(t *testing.T) {
		t.Parallel()
		r := setupRepo(t)
		ctx := t.Context()
		writeFile(t, r.Dir(), "a.txt", "a")
		commitFiles(t, r, "add", "a.txt")
		history, _ := r.History(ctx, "a.txt", 1)
		if err := os.Remove(filepath.Join(r.Dir(), "a.txt")); err != nil {
			t.Fatal(err)
		}
		commitFiles(t, r, "remove", "a.txt")
		if n, _ := r.CommitCount(ctx); n != 2 {
			t.Errorf("CommitCount() = %d, want 2", n)
		}
		if _, err := r.FileAt(ctx, "HEAD", "a.txt"); err == nil {
			t.Error("deleted file still present at HEAD")
		}
		if data, err := r.FileAt(ctx, history[0].Hash, "a.txt"); err != nil || string(data) != "a" {
			t.Errorf("FileAt() before deletion = %q, %v", data, err)
		}
	})
}
