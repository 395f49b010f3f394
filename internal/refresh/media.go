package refresh

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/blockedby/chanscope/internal/mapper"
	"github.com/blockedby/chanscope/internal/models"
	"github.com/blockedby/chanscope/internal/telegram"
)

// enrich runs the best-effort per-message fetches. Their failures only
// leave fields empty; a flood or cancellation is returned.
func (s *Service) enrich(ctx context.Context, chatID int64, m *telegram.Message, rec *models.MessageRecord) error {
	path, err := s.downloadPreview(ctx, chatID, m, rec.Text())
	switch {
	case err != nil && isFatal(ctx, err):
		return err
	case err != nil:
		s.log.Debug().Err(err).Int64("chat_id", chatID).Int64("message_id", m.ID).Msg("refresh: preview download failed")
	case path != "":
		rec.MediaLocalPath = &path
	}

	if rec.Transcription != nil || !mapper.IsSpeechContent(m.Content) {
		return nil
	}
	text, err := s.transcribe(ctx, chatID, m.ID)
	switch {
	case err != nil && isFatal(ctx, err):
		return err
	case err != nil:
		s.log.Debug().Err(err).Int64("chat_id", chatID).Int64("message_id", m.ID).Msg("refresh: transcription failed")
	case text != "":
		rec.Transcription = &text
	}
	return nil
}

// downloadPreview saves the preview of a short photo or video post to
// MEDIA_ROOT/<chat>/<message>.jpg and returns the path relative to MEDIA_ROOT.
func (s *Service) downloadPreview(ctx context.Context, chatID int64, m *telegram.Message, text string) (string, error) {
	if s.opts.MediaDir == "" || utf8.RuneCountInString(text) >= s.opts.MediaTextThreshold {
		return "", nil
	}
	file := mapper.PreviewFile(m.Content)
	if file == nil {
		return "", nil
	}

	rel := filepath.Join(strconv.FormatInt(chatID, 10), fmt.Sprintf("%d.jpg", m.ID))
	if _, err := s.tg.DownloadFile(ctx, file, filepath.Join(s.opts.MediaDir, rel)); err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}

// transcribe requests speech recognition and waits for whichever comes first:
// the push carrying the transcript or a re-read that already has it.
func (s *Service) transcribe(ctx context.Context, chatID, messageID int64) (string, error) {
	p := s.correlator.Register(chatID, messageID)
	if err := s.tg.RecognizeSpeech(ctx, chatID, messageID); err != nil {
		p.Release()
		return "", err
	}

	text, ok := p.Wait(ctx, s.opts.SpeechTimeout, s.pollTranscript(chatID, messageID))
	if !ok {
		return "", ctx.Err()
	}
	return text, nil
}

func (s *Service) pollTranscript(chatID, messageID int64) PollFunc {
	return func(ctx context.Context) (string, bool) {
		for attempt := 0; attempt < s.opts.SpeechRetries; attempt++ {
			if attempt > 0 && !sleep(ctx, s.opts.SpeechRetryDelay) {
				return "", false
			}
			m, err := s.tg.GetMessage(ctx, chatID, messageID)
			if err != nil {
				if ctx.Err() != nil {
					return "", false
				}
				continue
			}
			if m != nil {
				if text, ok := mapper.Transcript(m.Content); ok {
					return text, true
				}
			}
		}
		return "", false
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
