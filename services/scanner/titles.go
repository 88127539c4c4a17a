package scanner

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

var (
	// A release year is only trusted when bracketed by separators, so titles
	// like "2012" or "1917" survive as titles.
	yearPattern = regexp.MustCompile(`[\(\[\.\s](19\d{2}|20\d{2})[\)\]\.\s]`)

	separatorPattern  = regexp.MustCompile(`[\.\-_]`)
	whitespacePattern = regexp.MustCompile(`\s+`)

	releaseTagPattern = regexp.MustCompile(`(?i)\b(1080p|720p|480p|BluRay|WEB[\- ]?DL|DVDRip|x264|x265|AAC|DTS|HDR|BrRip|WEBRip)\b`)

	episodeTagPattern  = regexp.MustCompile(`(?i)s\d+e\d+`)
	seasonPattern      = regexp.MustCompile(`(?i)s(\d+)e\d+`)
	numberPattern      = regexp.MustCompile(`(?i)s\d+e(\d+)`)
	seasonWordPattern  = regexp.MustCompile(`(?i)season\s*(\d+)`)
	episodeWordPattern = regexp.MustCompile(`(?i)episode\s*(\d+)`)
)

// ParseTitle extracts clean title candidates and a release year from a media
// file path. The first candidate is the display title; the rest are fallbacks
// for metadata lookups. Candidates is never empty.
func ParseTitle(path string) (candidates []string, year string) {
	filename := filepath.Base(path)
	name := strings.TrimSuffix(filename, filepath.Ext(filename))

	if loc := yearPattern.FindStringSubmatchIndex(name); loc != nil {
		year = name[loc[2]:loc[3]]
		name = name[:loc[0]]
	}

	name = separatorPattern.ReplaceAllString(name, " ")
	name = releaseTagPattern.ReplaceAllString(name, "")
	name = strings.TrimSpace(whitespacePattern.ReplaceAllString(name, " "))

	if name == "" {
		// Nothing survived cleaning, fall back to the raw basename.
		name = strings.TrimSpace(strings.TrimSuffix(filename, filepath.Ext(filename)))
	}

	candidates = []string{name}
	if strings.Contains(name, ":") {
		candidates = append(candidates, strings.ReplaceAll(name, ":", ""))
	}
	return candidates, year
}

// ParseEpisode extracts season and episode numbers from a filename. A combined
// SxxEyy tag wins; otherwise explicit "Season n" and "Episode n" words are
// required together.
func ParseEpisode(filename string) (season, episode int, ok bool) {
	if sm := seasonPattern.FindStringSubmatch(filename); sm != nil {
		em := numberPattern.FindStringSubmatch(filename)
		if em == nil {
			return 0, 0, false
		}
		season, _ = strconv.Atoi(sm[1])
		episode, _ = strconv.Atoi(em[1])
		return season, episode, true
	}

	sm := seasonWordPattern.FindStringSubmatch(filename)
	em := episodeWordPattern.FindStringSubmatch(filename)
	if sm == nil || em == nil {
		return 0, 0, false
	}
	season, _ = strconv.Atoi(sm[1])
	episode, _ = strconv.Atoi(em[1])
	return season, episode, true
}

// HasEpisodeTag reports whether the filename carries an SxxEyy marker. Used to
// keep stray episodes out of the movie list.
func HasEpisodeTag(filename string) bool {
	return episodeTagPattern.MatchString(filename)
}

// SeriesName derives the series name from a cleaned title by cutting it before
// any residual episode tag.
func SeriesName(cleanTitle string) string {
	if loc := episodeTagPattern.FindStringIndex(cleanTitle); loc != nil {
		return strings.TrimSpace(cleanTitle[:loc[0]])
	}
	return strings.TrimSpace(cleanTitle)
}
