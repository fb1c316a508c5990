// Package upload stores user files and hands back a URL for them.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

var ErrInvalidFolder = errors.New("invalid upload folder")

type File struct {
	Name    string
	Size    int64
	Content io.Reader
}

type Stored struct {
	Name string
	Key  string
	URL  string
	Size int64
}

type Uploader interface {
	UploadFile(ctx context.Context, file File, folder string, userID int64) (*Stored, error)
	Delete(ctx context.Context, key string) error
}

// Local writes files below Root and serves them from BaseURL.
type Local struct {
	Root    string
	BaseURL string
}

func NewLocal(root, baseURL string) *Local {
	return &Local{Root: root, BaseURL: strings.TrimRight(baseURL, "/")}
}

func (l *Local) UploadFile(ctx context.Context, file File, folder string, userID int64) (*Stored, error) {
	if folder == "" || strings.Contains(folder, "..") || strings.ContainsAny(folder, `/\`) {
		return nil, ErrInvalidFolder
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ext := strings.ToLower(filepath.Ext(file.Name))
	key := path.Join(folder, strconv.FormatInt(userID, 10), uuid.NewString()+ext)
	dest := filepath.Join(l.Root, filepath.FromSlash(key))

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}

	f, err := os.Create(dest)
	if err != nil {
		return nil, fmt.Errorf("create upload file: %w", err)
	}
	defer f.Close()

	n, err := io.Copy(f, file.Content)
	if err != nil {
		os.Remove(dest)
		return nil, fmt.Errorf("write upload file: %w", err)
	}

	return &Stored{
		Name: filepath.Base(file.Name),
		Key:  key,
		URL:  l.BaseURL + "/files/" + key,
		Size: n,
	}, nil
}

func (l *Local) Delete(_ context.Context, key string) error {
	if strings.Contains(key, "..") {
		return ErrInvalidFolder
	}
	err := os.Remove(filepath.Join(l.Root, filepath.FromSlash(key)))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete upload: %w", err)
	}
	return nil
}
