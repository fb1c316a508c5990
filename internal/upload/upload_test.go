package upload

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalUploadAndDelete(t *testing.T) {
	root := t.TempDir()
	l := NewLocal(root, "http://cdn.local/")
	ctx := context.Background()

	stored, err := l.UploadFile(ctx, File{Name: "X-Ray.PNG", Content: strings.NewReader("image-bytes")}, "exams", 42)
	require.NoError(t, err)

	assert.Equal(t, "X-Ray.PNG", stored.Name)
	assert.Equal(t, int64(len("image-bytes")), stored.Size)
	assert.True(t, strings.HasPrefix(stored.Key, "exams/42/"))
	assert.True(t, strings.HasSuffix(stored.Key, ".png"))
	assert.Equal(t, "http://cdn.local/files/"+stored.Key, stored.URL)

	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(stored.Key)))
	require.NoError(t, err)
	assert.Equal(t, "image-bytes", string(data))

	require.NoError(t, l.Delete(ctx, stored.Key))
	_, err = os.Stat(filepath.Join(root, filepath.FromSlash(stored.Key)))
	assert.True(t, os.IsNotExist(err))

	assert.NoError(t, l.Delete(ctx, stored.Key), "deleting twice is not an error")
}

func TestLocalRejectsTraversal(t *testing.T) {
	l := NewLocal(t.TempDir(), "http://cdn.local")

	_, err := l.UploadFile(context.Background(), File{Name: "a.txt", Content: strings.NewReader("x")}, "../etc", 1)
	assert.ErrorIs(t, err, ErrInvalidFolder)

	assert.ErrorIs(t, l.Delete(context.Background(), "../secret"), ErrInvalidFolder)
}
