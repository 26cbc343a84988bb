package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"opinionbot/internal/chart"
	"opinionbot/internal/diagnosis"
	"opinionbot/internal/domain"
	"opinionbot/internal/export"
	"opinionbot/internal/integrations/llm"
	"opinionbot/internal/reference"
	"opinionbot/internal/storage/sqlite"
	"opinionbot/internal/trend"

	lru "github.com/hashicorp/golang-lru/v2"
)

var (
	ErrSessionBusy = errors.New("another action is already running for this session")
	ErrNoDiagnosis = errors.New("no diagnosis to regenerate from")
)

const systemPrompt = "You analyse short opinion posts. Reply with a single JSON object and nothing else."

type Options struct {
	Model        string
	Temperature  float64
	MaxTokens    int
	Prompt       diagnosis.PromptOptions
	DefaultGenre string
	References   []domain.ReferencePoint
	Thresholds   trend.Thresholds
	Export       export.Options
	MaxSessions  int
	TTL          time.Duration
	Now          func() time.Time
}

// State is the per-user data kept between actions. Record is nil until the
// first successful diagnosis.
type State struct {
	ID           string
	Genre        string
	LastInput    string
	LastPrompt   string
	LastResponse string
	Record       *domain.DiagnosisRecord
	LastActive   time.Time
}

type Session struct {
	State

	busy    sync.Mutex
	evicted atomic.Bool // set when the cache drops the session mid-action
}

type DiagnoseResult struct {
	Record     domain.DiagnosisRecord
	Comparison reference.Comparison
	Entry      domain.HistoryEntry
	Raw        string
}

type RegenerateResult struct {
	Record  domain.DiagnosisRecord
	Opinion domain.Opinion
	Mode    domain.Mode
	Raw     string
}

// Manager serializes actions within a session and lets different sessions
// run concurrently. Sessions live in a bounded LRU; an evicted session loses
// its history.
type Manager struct {
	db   *sql.DB
	llm  llm.Completer
	opts Options

	mu       sync.Mutex // guards get-or-create on sessions
	sessions *lru.Cache[string, *Session]
}

func NewManager(db *sql.DB, completer llm.Completer, opts Options) (*Manager, error) {
	defaults := diagnosis.DefaultPromptOptions()
	if opts.Prompt.MaxInputLength <= 0 {
		opts.Prompt.MaxInputLength = defaults.MaxInputLength
	}
	if opts.Prompt.NegativePole == "" {
		opts.Prompt.NegativePole = defaults.NegativePole
	}
	if opts.Prompt.PositivePole == "" {
		opts.Prompt.PositivePole = defaults.PositivePole
	}
	if len(opts.References) == 0 {
		opts.References = reference.DefaultPoints()
	}
	if opts.Export.Delimiter == 0 {
		opts.Export.Delimiter = ','
	}
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = 1000
	}
	if opts.TTL <= 0 {
		opts.TTL = 2 * time.Hour
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	m := &Manager{db: db, llm: completer, opts: opts}
	cache, err := lru.NewWithEvict[string, *Session](opts.MaxSessions, m.onEvict)
	if err != nil {
		return nil, fmt.Errorf("session cache: %w", err)
	}
	m.sessions = cache
	return m, nil
}

func (m *Manager) onEvict(id string, s *Session) {
	s.evicted.Store(true)
	if err := sqlite.DeleteSession(m.db, id); err != nil {
		log.Printf("session evict id=%s delete error: %v", id, err)
		return
	}
	log.Printf("session evict id=%s", id)
}

func (m *Manager) session(id string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions.Get(id); ok {
		return s
	}
	s := &Session{State: State{ID: id, Genre: m.opts.DefaultGenre, LastActive: m.opts.Now()}}
	m.sessions.Add(id, s)
	return s
}

// acquire returns the session locked for one action.
func (m *Manager) acquire(id string) (*Session, error) {
	if id == "" {
		return nil, fmt.Errorf("empty session id")
	}
	s := m.session(id)
	if !s.busy.TryLock() {
		return nil, ErrSessionBusy
	}
	return s, nil
}

func (m *Manager) touch(s *Session) {
	s.LastActive = m.opts.Now()
	if err := sqlite.TouchSession(m.db, s.ID, s.Genre, s.LastActive); err != nil {
		log.Printf("session touch id=%s error: %v", s.ID, err)
	}
}

func (m *Manager) complete(ctx context.Context, prompt string) (llm.Response, error) {
	return m.llm.Complete(ctx, llm.Request{
		Model: m.opts.Model,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: systemPrompt},
			{Role: llm.RoleUser, Content: prompt},
		},
		Temperature: m.opts.Temperature,
		MaxTokens:   m.opts.MaxTokens,
	})
}

// Diagnose scores text, compares it against the reference set and appends the
// result to the session history. On any failure history is left untouched.
func (m *Manager) Diagnose(ctx context.Context, sessionID, text, genre string) (DiagnoseResult, error) {
	s, err := m.acquire(sessionID)
	if err != nil {
		return DiagnoseResult{}, err
	}
	defer s.busy.Unlock()

	if genre == "" {
		genre = s.Genre
	}
	prompt, err := diagnosis.BuildPrompt(text, genre, domain.ModeFull, m.opts.Prompt)
	if err != nil {
		return DiagnoseResult{}, err
	}
	cleaned, err := diagnosis.CleanInput(text, m.opts.Prompt.MaxInputLength)
	if err != nil {
		return DiagnoseResult{}, err
	}

	start := time.Now()
	resp, err := m.complete(ctx, prompt)
	if err != nil {
		log.Printf("diagnose session=%s genre=%s llm error: %v", s.ID, genre, err)
		return DiagnoseResult{}, err
	}
	s.LastPrompt = prompt
	s.LastResponse = resp.Text

	record, err := diagnosis.NormalizeDiagnosis(resp.Text)
	if err != nil {
		log.Printf("diagnose session=%s genre=%s normalize error: %v", s.ID, genre, err)
		return DiagnoseResult{Raw: resp.Text}, err
	}
	comparison, err := reference.FindClosestAndFarthest(record.BiasScore, record.StrengthScore, m.opts.References)
	if err != nil {
		return DiagnoseResult{Raw: resp.Text}, fmt.Errorf("compare with references: %w", err)
	}

	entry := domain.HistoryEntry{
		SessionID:     s.ID,
		Content:       cleaned,
		Genre:         genre,
		BiasScore:     record.BiasScore,
		StrengthScore: record.StrengthScore,
		Comment:       record.Comment,
		CreatedAt:     m.opts.Now(),
	}
	id, err := sqlite.AppendHistoryEntry(m.db, entry)
	if err != nil {
		return DiagnoseResult{Raw: resp.Text}, fmt.Errorf("append history: %w", err)
	}
	entry.ID = id
	// The eviction callback sets the flag before deleting rows, so either it
	// deletes this entry or the entry is dropped here.
	if s.evicted.Load() {
		if err := sqlite.DeleteHistoryEntry(m.db, id); err != nil {
			log.Printf("diagnose session=%s evicted, drop entry=%d error: %v", s.ID, id, err)
		}
		log.Printf("diagnose session=%s evicted during action, entry=%d dropped", s.ID, id)
	} else {
		s.Genre = genre
		s.LastInput = cleaned
		s.Record = &record
		m.touch(s)
	}

	log.Printf("diagnose session=%s genre=%s bias=%.2f strength=%.2f closest=%q tokens=%d elapsed=%s",
		s.ID, genre, record.BiasScore, record.StrengthScore, comparison.Closest.Label,
		resp.Usage.TotalTokens(), time.Since(start).Round(time.Millisecond))
	return DiagnoseResult{Record: record, Comparison: comparison, Entry: entry, Raw: resp.Text}, nil
}

// Regenerate asks again for one opinion of the last diagnosis and replaces it
// on a copy of the record. Scores, comment and history stay as they were.
func (m *Manager) Regenerate(ctx context.Context, sessionID string, mode domain.Mode) (RegenerateResult, error) {
	if mode != domain.ModeRegenSimilar && mode != domain.ModeRegenOpposite {
		return RegenerateResult{}, fmt.Errorf("mode %s is not a regenerate mode", mode)
	}
	s, err := m.acquire(sessionID)
	if err != nil {
		return RegenerateResult{}, err
	}
	defer s.busy.Unlock()

	if s.Record == nil || s.LastInput == "" {
		return RegenerateResult{}, ErrNoDiagnosis
	}
	prompt, err := diagnosis.BuildPrompt(s.LastInput, s.Genre, mode, m.opts.Prompt)
	if err != nil {
		return RegenerateResult{}, err
	}

	resp, err := m.complete(ctx, prompt)
	if err != nil {
		log.Printf("regenerate session=%s mode=%s llm error: %v", s.ID, mode, err)
		return RegenerateResult{}, err
	}
	s.LastPrompt = prompt
	s.LastResponse = resp.Text

	op, err := diagnosis.NormalizeOpinion(resp.Text, mode)
	if err != nil {
		log.Printf("regenerate session=%s mode=%s normalize error: %v", s.ID, mode, err)
		return RegenerateResult{Mode: mode, Raw: resp.Text}, err
	}
	record, err := s.Record.WithOpinion(mode, op)
	if err != nil {
		return RegenerateResult{Mode: mode, Raw: resp.Text}, err
	}
	s.Record = &record
	if !s.evicted.Load() {
		m.touch(s)
	}

	log.Printf("regenerate session=%s mode=%s bias=%.2f strength=%.2f", s.ID, mode, op.BiasScore, op.StrengthScore)
	return RegenerateResult{Record: record, Opinion: op, Mode: mode, Raw: resp.Text}, nil
}

// Snapshot returns a copy of the session state, or false when the session
// does not exist or has an action in flight.
func (m *Manager) Snapshot(sessionID string) (State, bool) {
	s, ok := m.sessions.Peek(sessionID)
	if !ok {
		return State{}, false
	}
	if !s.busy.TryLock() {
		return State{}, false
	}
	defer s.busy.Unlock()
	out := s.State
	if s.Record != nil {
		rec := *s.Record
		out.Record = &rec
	}
	return out, true
}

func (m *Manager) History(sessionID string) ([]domain.HistoryEntry, error) {
	return sqlite.ListHistory(m.db, sessionID)
}

func (m *Manager) HistoryCount(sessionID string) (int, error) {
	return sqlite.CountHistory(m.db, sessionID)
}

// Trend summarizes the session history. It returns trend.ErrEmptyHistory
// when nothing has been diagnosed yet.
func (m *Manager) Trend(sessionID string) (trend.Summary, error) {
	history, err := m.History(sessionID)
	if err != nil {
		return trend.Summary{}, err
	}
	return trend.Summarize(history, m.opts.Thresholds)
}

// Export writes the session history as CSV and returns the number of rows.
func (m *Manager) Export(sessionID string, w io.Writer) (int, error) {
	history, err := m.History(sessionID)
	if err != nil {
		return 0, err
	}
	if err := export.WriteCSV(w, history, m.opts.Export); err != nil {
		return 0, err
	}
	return len(history), nil
}

// Chart renders the session history over the reference set.
func (m *Manager) Chart(sessionID string) (string, error) {
	history, err := m.History(sessionID)
	if err != nil {
		return "", err
	}
	points := chart.Points(history, m.opts.References)
	return chart.Render(points, m.opts.Prompt.NegativePole, m.opts.Prompt.PositivePole), nil
}

// Reset drops the session and its history.
func (m *Manager) Reset(sessionID string) error {
	s, err := m.acquire(sessionID)
	if err != nil {
		return err
	}
	defer s.busy.Unlock()

	m.mu.Lock()
	m.sessions.Remove(sessionID)
	m.mu.Unlock()
	if err := sqlite.DeleteSession(m.db, sessionID); err != nil {
		return fmt.Errorf("reset session: %w", err)
	}
	log.Printf("session reset id=%s", sessionID)
	return nil
}

// Sweep drops sessions idle since before now minus the TTL. Sessions with an
// action in flight are skipped. It returns the number of sessions dropped.
func (m *Manager) Sweep(now time.Time) (int, error) {
	cutoff := now.Add(-m.opts.TTL)
	dropped := map[string]bool{}

	m.mu.Lock()
	for _, id := range m.sessions.Keys() {
		s, ok := m.sessions.Peek(id)
		if !ok || !s.busy.TryLock() {
			continue
		}
		if s.LastActive.Before(cutoff) {
			m.sessions.Remove(id)
			dropped[id] = true
		}
		s.busy.Unlock()
	}
	m.mu.Unlock()

	// Rows whose session is still cached belong to a busy or recently
	// touched session and are kept.
	purged, err := sqlite.PurgeIdleSessions(m.db, cutoff, func(id string) bool {
		return m.sessions.Contains(id)
	})
	if err != nil {
		return len(dropped), fmt.Errorf("purge idle sessions: %w", err)
	}
	for _, id := range purged {
		dropped[id] = true
	}
	if len(dropped) > 0 {
		log.Printf("session sweep cutoff=%s dropped=%d live=%d", cutoff.Format(time.RFC3339), len(dropped), m.sessions.Len())
	}
	return len(dropped), nil
}

func (m *Manager) Len() int {
	return m.sessions.Len()
}
