package archive

import (
	stdzip "archive/zip"
	"bytes"
	"context"
	"testing"

	pkgerrors "github.com/glorpus-work/promptreg/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func zipBytes(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := stdzip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestArchive_AddGetPaths(t *testing.T) {
	a := &Archive{}
	require.NoError(t, a.Add("prompts/a.prompt.md", []byte("a")))
	require.NoError(t, a.Add(`instructions\b.md`, []byte("b")))
	require.NoError(t, a.Add("prompts/a.prompt.md", []byte("a2")))

	assert.Equal(t, []string{"prompts/a.prompt.md", "instructions/b.md"}, a.Paths())
	data, ok := a.Get("prompts/a.prompt.md")
	require.True(t, ok)
	assert.Equal(t, "a2", string(data))

	assert.ErrorIs(t, a.Add("../escape.md", nil), pkgerrors.ErrInvalidPath)
}

func TestWriteZipThenExtract(t *testing.T) {
	ctx := context.Background()
	a := &Archive{}
	require.NoError(t, a.Add(ManifestFile, []byte("id: b1\n")))
	require.NoError(t, a.Add("skills/review/SKILL.md", []byte("# skill")))

	var buf bytes.Buffer
	require.NoError(t, WriteZip(ctx, &buf, a))

	got, err := Extract(ctx, buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, []string{ManifestFile, "skills/review/SKILL.md"}, got.Paths())
	data, ok := got.Get("skills/review/SKILL.md")
	require.True(t, ok)
	assert.Equal(t, "# skill", string(data))
}

func TestExtract_StripsWrapperDirectory(t *testing.T) {
	data := zipBytes(t, map[string]string{
		"owner-repo-abc123/" + ManifestFile:          "id: b1\n",
		"owner-repo-abc123/prompts/review.prompt.md": "review",
	})

	got, err := Extract(context.Background(), data)
	require.NoError(t, err)
	assert.Equal(t, []string{ManifestFile, "prompts/review.prompt.md"}, got.Paths())
}

func TestExtract_KeepsContentDirectory(t *testing.T) {
	data := zipBytes(t, map[string]string{
		"prompts/a.prompt.md": "a",
		"prompts/b.prompt.md": "b",
	})

	got, err := Extract(context.Background(), data)
	require.NoError(t, err)
	assert.Equal(t, []string{"prompts/a.prompt.md", "prompts/b.prompt.md"}, got.Paths())
}

func TestExtract_RejectsTraversal(t *testing.T) {
	data := zipBytes(t, map[string]string{"../evil.md": "x"})

	_, err := Extract(context.Background(), data)
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidPath)
}

func TestExtract_UnknownFormat(t *testing.T) {
	_, err := Extract(context.Background(), []byte("definitely not an archive"))
	assert.Error(t, err)
}
