// Package match decides whether a chat message is a candidate video and
// which configured keywords it matches.
package match

import (
	"strings"

	"github.com/gotd/td/tg"

	"github.com/lueurxax/telegram-video-sorter/internal/domain"
)

const bytesPerMB = 1024 * 1024

// Video is the lifted media payload of a message whose document is a video,
// either flagged as such by the protocol or carrying a video attribute.
type Video struct {
	Document *tg.Document
	FileName string
	Duration int
	Width    int
	Height   int
}

// SizeMB returns the document size in megabytes.
func (v *Video) SizeMB() float64 {
	return float64(v.Document.Size) / bytesPerMB
}

// LiftVideo extracts the video document from a message. It returns false for
// messages without media, non-document media and documents that are neither
// flagged as video nor carry a video attribute.
func LiftVideo(msg *tg.Message) (*Video, bool) {
	if msg == nil || msg.Media == nil {
		return nil, false
	}

	mediaDoc, ok := msg.Media.(*tg.MessageMediaDocument)
	if !ok {
		return nil, false
	}

	doc, ok := mediaDoc.Document.(*tg.Document)
	if !ok {
		return nil, false
	}

	video := &Video{Document: doc}
	isVideo := mediaDoc.Video

	for _, attr := range doc.Attributes {
		switch a := attr.(type) {
		case *tg.DocumentAttributeVideo:
			video.Duration = int(a.Duration)
			video.Width = a.W
			video.Height = a.H
			isVideo = true
		case *tg.DocumentAttributeFilename:
			video.FileName = a.FileName
		}
	}

	if !isVideo {
		return nil, false
	}

	return video, true
}

// Keywords returns the subset of matches that apply to the message, in input
// order and original spelling. It returns nil when the message carries no
// video document, the duration is unknown or below minDuration, or any
// exclusion substring occurs in the caption or filename.
func Keywords(msg *tg.Message, matches, exclusions []string, minDuration int) []string {
	video, ok := LiftVideo(msg)
	if !ok {
		return nil
	}

	if video.Duration == 0 || video.Duration < minDuration {
		return nil
	}

	text := strings.ToLower(msg.Message) + " " + strings.ToLower(video.FileName)
	if ShouldExclude(text, exclusions) {
		return nil
	}

	var matched []string

	for _, kw := range matches {
		needle := strings.ToLower(strings.TrimSpace(kw))
		if needle == "" {
			continue
		}

		if strings.Contains(text, needle) {
			matched = append(matched, kw)
		}
	}

	return matched
}

// ShouldExclude reports whether any non-empty lowercased trimmed exclusion
// occurs as a substring of text. Matching is substring, not word boundary.
func ShouldExclude(text string, exclusions []string) bool {
	for _, ex := range exclusions {
		needle := strings.ToLower(strings.TrimSpace(ex))
		if needle == "" {
			continue
		}

		if strings.Contains(text, needle) {
			return true
		}
	}

	return false
}

// NewCandidate builds the full metadata record for a lifted video.
// The normalizer is injected so the normalize-filenames policy stays with
// the caller.
func NewCandidate(chatID int64, msg *tg.Message, video *Video, normalizer func(string) string) domain.Candidate {
	return domain.Candidate{
		SourceChatID:    chatID,
		SourceMessageID: msg.ID,
		FileName:        video.FileName,
		NormalizedName:  normalizer(video.FileName),
		Duration:        video.Duration,
		SizeMB:          video.SizeMB(),
		Width:           video.Width,
		Height:          video.Height,
		MimeType:        video.Document.MimeType,
		CaptionLower:    strings.ToLower(msg.Message),
		FileNameLower:   strings.ToLower(video.FileName),
	}
}
