package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"syscall"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"hometheater/config"
	"hometheater/models"
)

// CatalogResolver maps playable ids onto catalog entries.
type CatalogResolver interface {
	Resolve(id int) (models.Entry, bool)
}

// Containers browsers cannot play natively get remuxed through ffmpeg.
var transcodeExtensions = map[string]struct{}{
	".avi":  {},
	".wmv":  {},
	".flv":  {},
	".divx": {},
}

const (
	rangeChunkSize     = 5 << 20
	transcodeChunkSize = 1 << 20
)

var rangePattern = regexp.MustCompile(`(\d+)-(\d*)`)

// VideoHandler streams catalog entries over HTTP with range support.
type VideoHandler struct {
	catalog CatalogResolver
	cfg     *config.Manager
}

func NewVideoHandler(catalog CatalogResolver, cfg *config.Manager) *VideoHandler {
	return &VideoHandler{catalog: catalog, cfg: cfg}
}

// StreamVideo handles GET /video/{id}.
func (h *VideoHandler) StreamVideo(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	entry, ok := h.catalog.Resolve(id)
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	path := entry.Path()

	settings, err := h.cfg.Load()
	if err != nil {
		http.Error(w, "config unavailable", http.StatusInternalServerError)
		return
	}

	if !pathWithinRoots(path, settings.Library.MovieDir, settings.Library.SeriesDir) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		http.Error(w, "file not found", http.StatusNotFound)
		return
	}

	ext := strings.ToLower(filepath.Ext(path))
	if _, needsTranscode := transcodeExtensions[ext]; needsTranscode && settings.Transcode.Enabled {
		if h.transcode(w, r, settings.Transcode.FFmpegPath, path) {
			return
		}
		// ffmpeg failed to start, serve the raw file instead
	}

	h.serveRanged(w, r, path, info.Size())
}

// transcode remuxes the file to fragmented MP4 on the fly. Returns false when
// ffmpeg could not be started so the caller can fall back to direct serving.
func (h *VideoHandler) transcode(w http.ResponseWriter, r *http.Request, ffmpegPath, path string) bool {
	session := uuid.NewString()[:8]

	cmd := exec.CommandContext(r.Context(), ffmpegPath,
		"-i", path,
		"-c:v", "libx264",
		"-preset", "ultrafast",
		"-c:a", "aac",
		"-b:a", "128k",
		"-f", "mp4",
		"-movflags", "frag_keyframe+empty_moov",
		"pipe:1",
	)
	cmd.Stderr = io.Discard

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		log.Printf("[video] %s transcode pipe: %v", session, err)
		return false
	}
	if err := cmd.Start(); err != nil {
		log.Printf("[video] %s ffmpeg unavailable, serving directly: %v", session, err)
		return false
	}
	log.Printf("[video] %s transcoding %s", session, filepath.Base(path))

	w.Header().Set("Content-Type", "video/mp4")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)

	buf := make([]byte, transcodeChunkSize)
	for {
		n, readErr := stdout.Read(buf)
		if n > 0 {
			if _, writeErr := w.Write(buf[:n]); writeErr != nil {
				if !isClientGone(writeErr) {
					log.Printf("[video] %s transcode write: %v", session, writeErr)
				}
				break
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if readErr != nil {
			if readErr != io.EOF && !isClientGone(readErr) {
				log.Printf("[video] %s transcode read: %v", session, readErr)
			}
			break
		}
	}

	// Kills the encoder when the client went away mid-stream; harmless after
	// a clean EOF.
	_ = cmd.Process.Kill()
	_ = cmd.Wait()
	return true
}

// serveRanged answers with the full file or the requested byte range.
func (h *VideoHandler) serveRanged(w http.ResponseWriter, r *http.Request, path string, size int64) {
	f, err := os.Open(path)
	if err != nil {
		http.Error(w, "file not found", http.StatusNotFound)
		return
	}
	defer f.Close()

	contentType := "video/mp4"
	if mt, err := mimetype.DetectFile(path); err == nil {
		contentType = mt.String()
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Accept-Ranges", "bytes")

	start := int64(0)
	length := size
	status := http.StatusOK

	// A Range header the pattern cannot parse is treated as absent, so odd
	// player requests still get the whole file.
	if m := rangePattern.FindStringSubmatch(r.Header.Get("Range")); m != nil {
		start, _ = strconv.ParseInt(m[1], 10, 64)
		if start >= size {
			http.Error(w, "invalid range", http.StatusRequestedRangeNotSatisfiable)
			return
		}
		if m[2] != "" {
			end, _ := strconv.ParseInt(m[2], 10, 64)
			if end >= size {
				end = size - 1
			}
			length = end - start + 1
		} else {
			length = size - start
		}
		status = http.StatusPartialContent
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, start+length-1, size))
	}

	w.Header().Set("Content-Length", strconv.FormatInt(length, 10))
	w.WriteHeader(status)
	if r.Method == http.MethodHead {
		return
	}

	if _, err := f.Seek(start, io.SeekStart); err != nil {
		return
	}

	flusher, _ := w.(http.Flusher)
	remaining := length
	buf := make([]byte, rangeChunkSize)
	for remaining > 0 {
		chunk := int64(len(buf))
		if remaining < chunk {
			chunk = remaining
		}
		n, readErr := f.Read(buf[:chunk])
		if n > 0 {
			if _, writeErr := w.Write(buf[:n]); writeErr != nil {
				if !isClientGone(writeErr) {
					log.Printf("[video] stream write: %v", writeErr)
				}
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
			remaining -= int64(n)
		}
		if readErr != nil {
			return
		}
	}
}

// pathWithinRoots reports whether the resolved path sits under one of the
// configured library roots.
func pathWithinRoots(path string, roots ...string) bool {
	real, err := realPath(path)
	if err != nil {
		return false
	}
	for _, root := range roots {
		if strings.TrimSpace(root) == "" {
			continue
		}
		rootReal, err := realPath(root)
		if err != nil {
			continue
		}
		if real == rootReal || strings.HasPrefix(real, rootReal+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func realPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}
	return abs, nil
}

func isClientGone(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return true
	}
	if errors.Is(err, syscall.EPIPE) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	var netErr *net.OpError
	if errors.As(err, &netErr) {
		if netErr.Err != nil {
			if errors.Is(netErr.Err, syscall.EPIPE) || errors.Is(netErr.Err, syscall.ECONNRESET) || errors.Is(netErr.Err, os.ErrClosed) {
				return true
			}
		}
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "broken pipe") || strings.Contains(msg, "connection reset")
}
