package config

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Settings represents the application configuration persisted to disk.
type Settings struct {
	Server    ServerSettings    `json:"server"`
	Library   LibrarySettings   `json:"library"`
	Metadata  MetadataSettings  `json:"metadata"`
	Subtitles SubtitleSettings  `json:"subtitles"`
	Cache     CacheSettings     `json:"cache"`
	Transcode TranscodeSettings `json:"transcode"`
	Log       LogConfig         `json:"log"`
}

type ServerSettings struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// LibrarySettings points at the two scanned media roots.
type LibrarySettings struct {
	MovieDir  string `json:"movieDir"`
	SeriesDir string `json:"seriesDir"`
}

type MetadataSettings struct {
	OMDbAPIKey string `json:"omdbApiKey"`
}

// SubtitleSettings defines subtitle provider configuration.
type SubtitleSettings struct {
	OpenSubtitlesAPIKey string   `json:"openSubtitlesApiKey"`
	Languages           []string `json:"languages"` // preferred language codes, also used as local file suffixes
}

type CacheSettings struct {
	Directory        string `json:"directory"`
	MetadataTTLHours int    `json:"metadataTtlHours"`
}

// TranscodeSettings describes on-the-fly container conversion for browser playback.
type TranscodeSettings struct {
	Enabled    bool   `json:"enabled"`
	FFmpegPath string `json:"ffmpegPath"`
}

// LogConfig represents logging configuration.
type LogConfig struct {
	File       string `json:"file"`
	MaxSize    int    `json:"maxSize"`
	MaxAge     int    `json:"maxAge"`
	MaxBackups int    `json:"maxBackups"`
	Compress   bool   `json:"compress"`
}

// DefaultSettings returns sane defaults for a fresh install.
func DefaultSettings() Settings {
	return Settings{
		Server:    ServerSettings{Host: "0.0.0.0", Port: 7777},
		Library:   LibrarySettings{MovieDir: "", SeriesDir: ""},
		Metadata:  MetadataSettings{OMDbAPIKey: ""},
		Subtitles: SubtitleSettings{OpenSubtitlesAPIKey: "", Languages: []string{"tr", "en"}},
		Cache:     CacheSettings{Directory: "cache", MetadataTTLHours: 24},
		Transcode: TranscodeSettings{Enabled: true, FFmpegPath: "ffmpeg"},
		Log: LogConfig{
			File:       "cache/logs/backend.log",
			MaxSize:    50,
			MaxBackups: 3,
			MaxAge:     7,
			Compress:   true,
		},
	}
}

// Manager loads and persists settings to a JSON file.
type Manager struct {
	path string
}

func NewManager(configPath string) *Manager {
	return &Manager{path: configPath}
}

// EnsureDir ensures parent directory exists.
func (m *Manager) EnsureDir() error {
	dir := filepath.Dir(m.path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

// Load reads settings.json from disk or creates defaults if missing.
func (m *Manager) Load() (Settings, error) {
	if m.path == "" {
		return Settings{}, errors.New("config path not set")
	}
	if _, err := os.Stat(m.path); errors.Is(err, fs.ErrNotExist) {
		// create with defaults
		defaults := DefaultSettings()
		if err := m.Save(defaults); err != nil {
			return Settings{}, err
		}
		return defaults, nil
	}
	f, err := os.Open(m.path)
	if err != nil {
		return Settings{}, err
	}
	defer f.Close()

	var s Settings
	if err := json.NewDecoder(f).Decode(&s); err != nil {
		return Settings{}, err
	}

	// Backfill defaults for configs that predate newer settings.
	if strings.TrimSpace(s.Server.Host) == "" {
		s.Server.Host = "0.0.0.0"
	}
	if s.Server.Port == 0 {
		s.Server.Port = 7777
	}
	if strings.TrimSpace(s.Cache.Directory) == "" {
		s.Cache.Directory = "cache"
	}
	if s.Cache.MetadataTTLHours == 0 {
		s.Cache.MetadataTTLHours = 24
	}
	if strings.TrimSpace(s.Transcode.FFmpegPath) == "" {
		s.Transcode.FFmpegPath = "ffmpeg"
	}
	if len(s.Subtitles.Languages) == 0 {
		s.Subtitles.Languages = []string{"tr", "en"}
	}
	if strings.TrimSpace(s.Log.File) == "" {
		s.Log.File = "cache/logs/backend.log"
	}
	if s.Log.MaxSize == 0 {
		s.Log.MaxSize = 50
	}
	if s.Log.MaxBackups == 0 {
		s.Log.MaxBackups = 3
	}
	if s.Log.MaxAge == 0 {
		s.Log.MaxAge = 7
	}

	return s, nil
}

// Save writes the provided settings to disk atomically.
func (m *Manager) Save(s Settings) error {
	if m.path == "" {
		return errors.New("config path not set")
	}
	if err := m.EnsureDir(); err != nil {
		return err
	}
	tmp := m.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, m.path)
}
