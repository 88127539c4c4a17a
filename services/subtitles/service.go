package subtitles

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/spf13/afero"
	"golang.org/x/text/encoding/charmap"
)

// ErrNoSubtitle indicates no sibling subtitle file exists for a video.
var ErrNoSubtitle = errors.New("no local subtitle found")

var (
	subtitleExtensions = []string{".srt", ".vtt", ".sub"}
	timestampPattern   = regexp.MustCompile(`(\d{2}:\d{2}:\d{2}),(\d{3})`)
)

// hashChunkSize is how much of each end of the file feeds the search hash.
const hashChunkSize = 65536

// Service finds subtitle files sitting next to videos and normalises them to
// WebVTT regardless of their on-disk encoding.
type Service struct {
	fs        afero.Fs
	languages []string
}

// NewService creates a subtitle service over the given filesystem. languages
// are the file suffixes probed between basename and extension.
func NewService(fs afero.Fs, languages []string) *Service {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Service{fs: fs, languages: languages}
}

// FindLocal looks for a sibling subtitle file: same basename, optionally a
// language suffix, with a known subtitle extension.
func (s *Service) FindLocal(videoPath string) (string, bool) {
	base := strings.TrimSuffix(videoPath, filepath.Ext(videoPath))

	suffixes := make([]string, 0, len(s.languages)+1)
	suffixes = append(suffixes, "")
	for _, lang := range s.languages {
		suffixes = append(suffixes, "."+lang)
	}

	for _, ext := range subtitleExtensions {
		for _, suffix := range suffixes {
			candidate := base + suffix + ext
			if ok, _ := afero.Exists(s.fs, candidate); ok {
				return candidate, true
			}
		}
	}
	return "", false
}

// LoadVTT reads the sibling subtitle for a video and returns WebVTT content.
func (s *Service) LoadVTT(videoPath string) (string, error) {
	path, ok := s.FindLocal(videoPath)
	if !ok {
		return "", ErrNoSubtitle
	}

	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		return "", fmt.Errorf("read subtitle: %w", err)
	}

	content := DecodeText(data)
	if strings.EqualFold(filepath.Ext(path), ".vtt") {
		return content, nil
	}
	return ToVTT(content), nil
}

// FileHash computes the search hash for a video: md5 over the first and last
// 64KB of the file.
func (s *Service) FileHash(videoPath string) (string, error) {
	info, err := s.fs.Stat(videoPath)
	if err != nil {
		return "", err
	}

	f, err := s.fs.Open(videoPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	head := make([]byte, hashChunkSize)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", err
	}
	head = head[:n]

	offset := info.Size() - hashChunkSize
	if offset < 0 {
		offset = 0
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return "", err
	}
	tail := make([]byte, hashChunkSize)
	n, err = io.ReadFull(f, tail)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", err
	}
	tail = tail[:n]

	sum := md5.Sum(append(head, tail...))
	return hex.EncodeToString(sum[:]), nil
}

// DecodeText converts subtitle bytes to a UTF-8 string. Encodings are tried
// strictly in order; Latin-1 maps every byte so the chain always terminates.
func DecodeText(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}

	for _, cm := range []*charmap.Charmap{charmap.Windows1254, charmap.ISO8859_9} {
		if out, ok := decodeStrict(cm, data); ok {
			return out
		}
	}

	out, _ := charmap.ISO8859_1.NewDecoder().Bytes(data)
	return string(out)
}

// decodeStrict decodes with the given charmap and rejects the result when any
// byte had no mapping.
func decodeStrict(cm *charmap.Charmap, data []byte) (string, bool) {
	out, err := cm.NewDecoder().Bytes(data)
	if err != nil || bytes.ContainsRune(out, utf8.RuneError) {
		return "", false
	}
	return string(out), true
}

// ToVTT converts SRT content to WebVTT: comma timestamp separators become
// dots and the signature line is prepended.
func ToVTT(content string) string {
	return "WEBVTT\n\n" + timestampPattern.ReplaceAllString(content, "$1.$2")
}
