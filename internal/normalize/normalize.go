// Package normalize canonicalizes video filenames into dedup comparison keys.
package normalize

import (
	"regexp"
	"strings"
)

var (
	extensionRe  = regexp.MustCompile(`\.(mp4|mkv|avi|mov|wmv|flv|webm)$`)
	resolutionRe = regexp.MustCompile(`[\[({]?\b(\d{3,4}p|\d+k|uhd|fhd|hd|sd)\b[\])}]?`)
	codecRe      = regexp.MustCompile(`[\[({]?\b(x264|x265|hevc|h264|h265|avc|av1|aac|ac3|dts|mp3|flac)\b[\])}]?`)
	releaseRe    = regexp.MustCompile(`[\[({](rss|web-dl|hdtv|bluray|brrip|webrip)[\])}]`)
	domainRe     = regexp.MustCompile(`\.(xxx|com|net|org)([ _.-]|$)`)
	separatorRe  = regexp.MustCompile(`[ _.-]+`)
	nonAlnumRe   = regexp.MustCompile(`[^a-z0-9 ]`)
)

// Normalize derives the canonical comparison key for a filename: lowercase,
// extension stripped, quality/codec/release tokens removed, separators and
// non-alphanumerics erased. The result is not reversible and may be empty.
func Normalize(fileName string) string {
	s := strings.ToLower(fileName)
	s = extensionRe.ReplaceAllString(s, "")
	s = domainRe.ReplaceAllString(s, " ")

	// Separators become spaces before token removal so that word boundaries
	// exist around underscore-delimited quality tags.
	s = separatorRe.ReplaceAllString(s, " ")
	s = resolutionRe.ReplaceAllString(s, " ")
	s = codecRe.ReplaceAllString(s, " ")
	s = releaseRe.ReplaceAllString(s, " ")
	s = nonAlnumRe.ReplaceAllString(s, "")

	return strings.ReplaceAll(s, " ", "")
}
