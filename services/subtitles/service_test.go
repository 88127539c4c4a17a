package subtitles

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindLocalPrefersPlainSRT(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/movies/Heat.srt", []byte("1\n"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/movies/Heat.tr.srt", []byte("1\n"), 0o644))

	svc := NewService(fs, []string{"tr", "en"})

	path, ok := svc.FindLocal("/movies/Heat.mkv")
	require.True(t, ok)
	assert.Equal(t, "/movies/Heat.srt", path)
}

func TestFindLocalLanguageSuffix(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/movies/Heat.en.srt", []byte("1\n"), 0o644))

	svc := NewService(fs, []string{"tr", "en"})

	path, ok := svc.FindLocal("/movies/Heat.mkv")
	require.True(t, ok)
	assert.Equal(t, "/movies/Heat.en.srt", path)

	_, ok = svc.FindLocal("/movies/Other.mkv")
	assert.False(t, ok)
}

func TestLoadVTTConvertsSRT(t *testing.T) {
	srt := "1\n00:00:01,000 --> 00:00:02,500\nHello\n"
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/movies/Heat.srt", []byte(srt), 0o644))

	svc := NewService(fs, nil)

	out, err := svc.LoadVTT("/movies/Heat.mkv")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "WEBVTT\n\n"))
	assert.Contains(t, out, "00:00:01.000 --> 00:00:02.500")
}

func TestLoadVTTPassesThroughVTT(t *testing.T) {
	vtt := "WEBVTT\n\n00:00:01.000 --> 00:00:02.500\nHello\n"
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/movies/Heat.vtt", []byte(vtt), 0o644))

	svc := NewService(fs, nil)

	out, err := svc.LoadVTT("/movies/Heat.mkv")
	require.NoError(t, err)
	assert.Equal(t, vtt, out)
}

func TestLoadVTTMissing(t *testing.T) {
	svc := NewService(afero.NewMemMapFs(), nil)

	_, err := svc.LoadVTT("/movies/Heat.mkv")
	assert.ErrorIs(t, err, ErrNoSubtitle)
}

func TestDecodeTextUTF8(t *testing.T) {
	assert.Equal(t, "altyazı", DecodeText([]byte("altyazı")))
}

func TestDecodeTextWindows1254(t *testing.T) {
	// 0xFE is ş in Windows-1254.
	out := DecodeText([]byte{'a', 0xFE, 'k'})
	assert.Equal(t, "aşk", out)
}

func TestToVTT(t *testing.T) {
	out := ToVTT("1\n00:01:02,345 --> 00:01:04,000\nline\n")
	assert.Equal(t, "WEBVTT\n\n1\n00:01:02.345 --> 00:01:04.000\nline\n", out)
}

func TestFileHashSmallFile(t *testing.T) {
	content := []byte("small video payload")
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/movies/Heat.mkv", content, 0o644))

	svc := NewService(fs, nil)

	hash, err := svc.FileHash("/movies/Heat.mkv")
	require.NoError(t, err)

	// Files under 64KB contribute their full content twice.
	sum := md5.Sum(bytes.Join([][]byte{content, content}, nil))
	assert.Equal(t, hex.EncodeToString(sum[:]), hash)
}

func TestFileHashLargeFile(t *testing.T) {
	content := make([]byte, hashChunkSize*3)
	for i := range content {
		content[i] = byte(i % 251)
	}
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/movies/Big.mkv", content, 0o644))

	svc := NewService(fs, nil)

	hash, err := svc.FileHash("/movies/Big.mkv")
	require.NoError(t, err)

	sum := md5.Sum(append(append([]byte(nil), content[:hashChunkSize]...), content[len(content)-hashChunkSize:]...))
	assert.Equal(t, hex.EncodeToString(sum[:]), hash)
}
