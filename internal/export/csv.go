package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"
	"unicode/utf8"

	"opinionbot/internal/domain"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var Header = []string{"content", "genre", "bias_score", "strength_score", "comment", "created_at"}

type Options struct {
	Delimiter rune
	UTF8BOM   bool
}

// WriteCSV writes one row per entry in the given order. The output is always
// UTF-8; UTF8BOM prefixes a byte order mark for spreadsheet tools that
// otherwise guess a legacy code page.
func WriteCSV(w io.Writer, entries []domain.HistoryEntry, opts Options) error {
	delim := opts.Delimiter
	if delim == 0 {
		delim = ','
	}
	if !validDelimiter(delim) {
		return fmt.Errorf("invalid csv delimiter %q", delim)
	}

	out := w
	var enc io.WriteCloser
	if opts.UTF8BOM {
		enc = transform.NewWriter(w, unicode.UTF8BOM.NewEncoder())
		out = enc
	}

	cw := csv.NewWriter(out)
	cw.Comma = delim
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, e := range entries {
		row := []string{
			e.Content,
			e.Genre,
			formatScore(e.BiasScore),
			formatScore(e.StrengthScore),
			e.Comment,
			formatTime(e.CreatedAt),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row id=%d: %w", e.ID, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	if enc != nil {
		if err := enc.Close(); err != nil {
			return fmt.Errorf("close csv encoder: %w", err)
		}
	}
	return nil
}

func Filename(now time.Time) string {
	return fmt.Sprintf("diagnosis_history_%s.csv", now.Format("20060102_150405"))
}

func validDelimiter(r rune) bool {
	return r != '"' && r != '\r' && r != '\n' && r != utf8.RuneError && utf8.ValidRune(r)
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}
