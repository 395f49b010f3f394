package mapper

import (
	"strings"

	"github.com/blockedby/chanscope/internal/models"
	"github.com/blockedby/chanscope/internal/telegram"
)

// previewWidth is the photo width media previews aim for.
const previewWidth = 400

// MessageToRecord maps a message into its snapshot record.
func MessageToRecord(msg *telegram.Message) models.MessageRecord {
	if msg == nil {
		return models.MessageRecord{ContentType: "messageUnsupported"}
	}
	rec := models.MessageRecord{
		ID:          msg.ID,
		ChatID:      msg.ChatID,
		Date:        msg.Date,
		ContentType: contentType(msg.Content),
	}

	if ft, ok := MessageText(msg.Content); ok {
		rec.TextMarkdown = nonEmpty(RenderMarkdown(ft))
	}
	if f := primaryFile(msg.Content); f != nil {
		rec.MediaRemoteID = nonEmpty(f.RemoteID)
		rec.MediaUniqueID = nonEmpty(f.UniqueID)
	}
	if text, ok := Transcript(msg.Content); ok {
		rec.Transcription = &text
	}

	if info := msg.Interaction; info != nil {
		rec.ViewCount = positive(info.ViewCount)
		rec.ForwardCount = positive(info.ForwardCount)
		rec.ReplyCount = positive(info.ReplyCount)
	}
	rec.Reactions = AggregateReactions(msg.Interaction)
	return rec
}

// AggregateReactions sums reaction counters into paid and free buckets.
// It returns nil when the message carries no reaction data at all.
func AggregateReactions(info *telegram.InteractionInfo) *models.ReactionTotals {
	if info == nil || len(info.Reactions) == 0 {
		return nil
	}
	var t models.ReactionTotals
	for _, r := range info.Reactions {
		if r.Count <= 0 {
			continue
		}
		if _, paid := r.Type.(telegram.ReactionPaid); paid {
			t.Paid += r.Count
		} else {
			t.Free += r.Count
		}
	}
	t.Total = t.Paid + t.Free
	return &t
}

// MessageText returns the text or caption of content.
func MessageText(c telegram.MessageContent) (telegram.FormattedText, bool) {
	switch v := c.(type) {
	case *telegram.MessageText:
		return v.Text, true
	case *telegram.MessagePhoto:
		return v.Caption, true
	case *telegram.MessageVideo:
		return v.Caption, true
	case *telegram.MessageAnimation:
		return v.Caption, true
	case *telegram.MessageDocument:
		return v.Caption, true
	case *telegram.MessageAudio:
		return v.Caption, true
	case *telegram.MessageVoiceNote:
		return v.Caption, true
	case *telegram.MessagePoll:
		return telegram.FormattedText{Text: v.Question}, true
	default:
		return telegram.FormattedText{}, false
	}
}

// PlainText returns the trimmed unformatted text of content.
func PlainText(c telegram.MessageContent) string {
	ft, ok := MessageText(c)
	if !ok {
		return ""
	}
	return strings.TrimSpace(ft.Text)
}

// Transcript returns a finished speech transcript embedded in content.
func Transcript(c telegram.MessageContent) (string, bool) {
	var speech telegram.SpeechRecognition
	switch v := c.(type) {
	case *telegram.MessageVoiceNote:
		speech = v.Speech
	case *telegram.MessageVideoNote:
		speech = v.Speech
	default:
		return "", false
	}
	if done, ok := speech.(telegram.SpeechRecognized); ok && strings.TrimSpace(done.Text) != "" {
		return done.Text, true
	}
	return "", false
}

// IsSpeechContent reports whether content can be transcribed.
func IsSpeechContent(c telegram.MessageContent) bool {
	switch c.(type) {
	case *telegram.MessageVoiceNote, *telegram.MessageVideoNote:
		return true
	default:
		return false
	}
}

// PreviewFile picks the file to download as a media preview: for photos the
// size whose width is closest to 400px, for videos the thumbnail.
func PreviewFile(c telegram.MessageContent) *telegram.File {
	switch v := c.(type) {
	case *telegram.MessagePhoto:
		if len(v.Sizes) == 0 {
			return nil
		}
		best := 0
		for i, s := range v.Sizes {
			if abs(s.Width-previewWidth) < abs(v.Sizes[best].Width-previewWidth) {
				best = i
			}
		}
		f := v.Sizes[best].File
		return &f
	case *telegram.MessageVideo:
		if v.Thumbnail == nil {
			return nil
		}
		f := v.Thumbnail.File
		return &f
	default:
		return nil
	}
}

// CommentFromMessage maps a thread reply. Replies without text are dropped.
func CommentFromMessage(msg *telegram.Message) (models.CommentRecord, bool) {
	if msg == nil {
		return models.CommentRecord{}, false
	}
	text := PlainText(msg.Content)
	if text == "" {
		return models.CommentRecord{}, false
	}
	c := models.CommentRecord{Text: text}
	if t := AggregateReactions(msg.Interaction); t != nil {
		c.ReactionsCount = t.Total
	}
	return c, true
}

func primaryFile(c telegram.MessageContent) *telegram.File {
	switch v := c.(type) {
	case *telegram.MessagePhoto:
		if len(v.Sizes) == 0 {
			return nil
		}
		return &v.Sizes[len(v.Sizes)-1].File
	case *telegram.MessageVideo:
		return &v.Video
	case *telegram.MessageAnimation:
		return &v.Animation
	case *telegram.MessageDocument:
		return &v.Document
	case *telegram.MessageAudio:
		return &v.Audio
	case *telegram.MessageVoiceNote:
		return &v.Voice
	case *telegram.MessageVideoNote:
		return &v.VideoNote
	default:
		return nil
	}
}

func contentType(c telegram.MessageContent) string {
	if c == nil {
		return "messageUnsupported"
	}
	return c.ContentType()
}

func positive(p *int) int {
	if p == nil || *p < 0 {
		return 0
	}
	return *p
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
