package speech

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"
)

// DefaultBaseURL is the Google Translate TTS endpoint.
const DefaultBaseURL = "https://translate.google.com/translate_tts"

// maxChunkLen is the longest text the TTS endpoint accepts per request.
const maxChunkLen = 100

const maxChunkAudioSize = 2 << 20

// HTTPSynthesizer fetches MP3 audio from a Google-Translate-compatible TTS
// endpoint. Long text is split into chunks that are fetched concurrently
// and concatenated in order.
type HTTPSynthesizer struct {
	baseURL    string
	lang       string
	httpClient *http.Client
}

// NewHTTPSynthesizer returns a synthesizer for baseURL (DefaultBaseURL when
// empty) speaking lang (default "en").
func NewHTTPSynthesizer(baseURL, lang string, httpClient *http.Client) *HTTPSynthesizer {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if lang == "" {
		lang = "en"
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &HTTPSynthesizer{baseURL: baseURL, lang: lang, httpClient: httpClient}
}

func (s *HTTPSynthesizer) Format() string { return "mp3" }

// Synthesize returns the MP3 rendering of text.
func (s *HTTPSynthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	chunks := splitText(text, maxChunkLen)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("nothing to synthesize")
	}

	parts := make([][]byte, len(chunks))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	for i, chunk := range chunks {
		g.Go(func() error {
			audio, err := s.fetch(gCtx, chunk, i, len(chunks))
			if err != nil {
				return fmt.Errorf("chunk %d: %w", i, err)
			}
			parts[i] = audio
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out, nil
}

func (s *HTTPSynthesizer) fetch(ctx context.Context, chunk string, idx, total int) ([]byte, error) {
	q := url.Values{}
	q.Set("ie", "UTF-8")
	q.Set("q", chunk)
	q.Set("tl", s.lang)
	q.Set("total", strconv.Itoa(total))
	q.Set("idx", strconv.Itoa(idx))
	q.Set("textlen", strconv.Itoa(utf8.RuneCountInString(chunk)))
	q.Set("client", "tw-ob")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting audio: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxChunkAudioSize))
	if err != nil {
		return nil, fmt.Errorf("reading audio: %w", err)
	}
	return data, nil
}

// splitText breaks text into pieces of at most max runes, preferring word
// boundaries. Words longer than max are cut.
func splitText(text string, max int) []string {
	var chunks []string
	var cur strings.Builder
	curLen := 0

	flush := func() {
		if curLen > 0 {
			chunks = append(chunks, cur.String())
			cur.Reset()
			curLen = 0
		}
	}

	for _, word := range strings.Fields(text) {
		runes := []rune(word)
		for len(runes) > max {
			flush()
			chunks = append(chunks, string(runes[:max]))
			runes = runes[max:]
		}
		n := len(runes)
		if n == 0 {
			continue
		}
		if curLen > 0 && curLen+1+n > max {
			flush()
		}
		if curLen > 0 {
			cur.WriteByte(' ')
			curLen++
		}
		cur.WriteString(string(runes))
		curLen += n
	}
	flush()
	return chunks
}
