// Package session is the note-taking facade over the account handshake and
// the pod notes client. It validates input, fills defaults and keeps one
// access token alive across operations.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/gobeyondidentity/podnotes/pkg/account"
	"github.com/gobeyondidentity/podnotes/pkg/notes"
	"github.com/gobeyondidentity/podnotes/pkg/retry"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
	"golang.org/x/text/unicode/norm"
)

const (
	// DefaultSkew is how long before expiry a cached token is replaced.
	DefaultSkew = 30 * time.Second

	// DefaultRefreshTimeout bounds a shared token refresh, which outlives
	// the caller that started it.
	DefaultRefreshTimeout = time.Minute

	subjectLength = 100
)

// ErrOperationFailed wraps every failure of the notes client.
var ErrOperationFailed = errors.New("session: operation failed")

// Authenticator obtains access tokens.
type Authenticator interface {
	Handshake(ctx context.Context) (*account.ClientCredential, *account.AccessToken, error)
	Exchange(ctx context.Context, cred *account.ClientCredential) (*account.AccessToken, error)
}

// NoteStore reads and writes notes with an access token.
type NoteStore interface {
	Put(ctx context.Context, tok *account.AccessToken, note notes.Note) error
	Remove(ctx context.Context, tok *account.AccessToken, id string) error
	List(ctx context.Context, tok *account.AccessToken) (*notes.ListResult, error)
}

// Session is safe for concurrent use.
type Session struct {
	auth     Authenticator
	store    NoteStore
	validate *validator.Validate
	cache    bool
	skew     time.Duration
	retry    retry.Config
	timeout  time.Duration
	now      func() time.Time
	newID    func() string
	logger   *slog.Logger

	refresh singleflight.Group
	mu      sync.Mutex
	cred    *account.ClientCredential
	tok     *account.AccessToken
}

// Option configures a Session.
type Option func(*Session)

// WithoutCache runs the full handshake for every operation.
func WithoutCache() Option {
	return func(s *Session) {
		s.cache = false
	}
}

// WithSkew sets how long before expiry a cached token is replaced.
func WithSkew(skew time.Duration) Option {
	return func(s *Session) {
		if skew >= 0 {
			s.skew = skew
		}
	}
}

// WithRetry retries token acquisition on transport and 5xx failures.
func WithRetry(cfg retry.Config) Option {
	return func(s *Session) {
		s.retry = cfg
	}
}

// WithRefreshTimeout bounds a shared token refresh.
func WithRefreshTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithClock overrides the time source for token expiry and default dates.
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		s.now = now
	}
}

// WithIDGenerator overrides how ids are assigned to new notes.
func WithIDGenerator(newID func() string) Option {
	return func(s *Session) {
		s.newID = newID
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a Session.
func New(auth Authenticator, store NoteStore, opts ...Option) *Session {
	s := &Session{
		auth:     auth,
		store:    store,
		validate: newValidator(),
		cache:    true,
		skew:     DefaultSkew,
		retry:    retry.DefaultConfig(),
		timeout:  DefaultRefreshTimeout,
		now:      time.Now,
		newID:    uuid.NewString,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.retry.Retryable == nil {
		s.retry.Retryable = retryable
	}
	return s
}

// Create stores a new note. A supplied id that already exists is
// overwritten.
func (s *Session) Create(ctx context.Context, in NoteInput) (*notes.Note, error) {
	in = normalize(in)
	if err := s.validateInput(in); err != nil {
		return nil, err
	}
	note := s.build(in)

	tok, err := s.Token(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.store.Put(ctx, tok, note); err != nil {
		s.observe(err)
		return nil, fmt.Errorf("%w: create note %s: %w", ErrOperationFailed, note.ID, err)
	}
	s.logger.Info("note.created", "id", note.ID)
	return &note, nil
}

// Update replaces note id.
func (s *Session) Update(ctx context.Context, id string, in NoteInput) (*notes.Note, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	in.ID = id
	in = normalize(in)
	if err := s.validateInput(in); err != nil {
		return nil, err
	}
	note := s.build(in)

	tok, err := s.Token(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.store.Put(ctx, tok, note); err != nil {
		s.observe(err)
		return nil, fmt.Errorf("%w: update note %s: %w", ErrOperationFailed, id, err)
	}
	s.logger.Info("note.updated", "id", id)
	return &note, nil
}

// Delete removes note id.
func (s *Session) Delete(ctx context.Context, id string) error {
	if err := validateID(id); err != nil {
		return err
	}
	tok, err := s.Token(ctx)
	if err != nil {
		return err
	}
	if err := s.store.Remove(ctx, tok, id); err != nil {
		s.observe(err)
		return fmt.Errorf("%w: delete note %s: %w", ErrOperationFailed, id, err)
	}
	s.logger.Info("note.deleted", "id", id)
	return nil
}

// List returns every readable note in the container.
func (s *Session) List(ctx context.Context) (*notes.ListResult, error) {
	tok, err := s.Token(ctx)
	if err != nil {
		return nil, err
	}
	result, err := s.store.List(ctx, tok)
	if err != nil {
		s.observe(err)
		return nil, fmt.Errorf("%w: list notes: %w", ErrOperationFailed, err)
	}
	return result, nil
}

// Token returns a usable access token. A cached token is reused until it
// is within the skew of expiry; concurrent callers share one refresh.
// The refresh is detached from any single caller: a caller whose ctx ends
// returns ctx.Err() while the others keep waiting for the result.
func (s *Session) Token(ctx context.Context) (*account.AccessToken, error) {
	if !s.cache {
		var tok *account.AccessToken
		err := retry.Do(ctx, s.retry, func(ctx context.Context) error {
			var err error
			_, tok, err = s.auth.Handshake(ctx)
			return err
		})
		return tok, err
	}

	if tok := s.cached(); tok != nil {
		return tok, nil
	}

	ch := s.refresh.DoChan("token", func() (any, error) {
		if tok := s.cached(); tok != nil {
			return tok, nil
		}
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		var tok *account.AccessToken
		err := retry.Do(fctx, s.retry, func(ctx context.Context) error {
			var err error
			tok, err = s.acquire(ctx)
			return err
		})
		return tok, err
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			s.logger.Debug("session.token_shared")
		}
		return res.Val.(*account.AccessToken), nil
	}
}

// Invalidate drops the cached token so the next operation acquires a new one.
func (s *Session) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tok = nil
}

func (s *Session) cached() *account.AccessToken {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tok.Valid(s.now(), s.skew) {
		return s.tok
	}
	return nil
}

// acquire re-exchanges the held client credential, falling back to the full
// handshake when there is none or the server no longer accepts it.
func (s *Session) acquire(ctx context.Context) (*account.AccessToken, error) {
	s.mu.Lock()
	cred := s.cred
	s.mu.Unlock()

	if cred != nil {
		tok, err := s.auth.Exchange(ctx, cred)
		if err == nil {
			s.remember(cred, tok)
			s.logger.Debug("session.token_reexchanged")
			return tok, nil
		}
		if !errors.Is(err, account.ErrAuth) {
			return nil, err
		}
		s.logger.Info("session.credential_rejected", "error", err)
	}

	cred, tok, err := s.auth.Handshake(ctx)
	if err != nil {
		return nil, err
	}
	s.remember(cred, tok)
	s.logger.Debug("session.handshake_complete")
	return tok, nil
}

func (s *Session) remember(cred *account.ClientCredential, tok *account.AccessToken) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cred = cred
	s.tok = tok
}

// observe drops the cached token when the pod rejected it.
func (s *Session) observe(err error) {
	var statusErr *notes.StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusUnauthorized {
		s.Invalidate()
	}
}

func (s *Session) build(in NoteInput) notes.Note {
	note := notes.Note{
		ID:      in.ID,
		Title:   in.Title,
		Subject: in.Subject,
		Content: in.Content,
		Date:    in.Date,
	}
	if note.ID == "" {
		note.ID = s.newID()
	}
	if note.Subject == "" {
		note.Subject = truncateRunes(in.Content, subjectLength)
	}
	if note.Date == "" {
		note.Date = s.now().Format(time.RFC3339)
	}
	return note
}

// normalize puts note text in Unicode NFC so length limits and stored
// literals do not depend on how the caller composed accents.
func normalize(in NoteInput) NoteInput {
	in.Title = norm.NFC.String(in.Title)
	in.Subject = norm.NFC.String(in.Subject)
	in.Content = norm.NFC.String(in.Content)
	return in
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func retryable(err error) bool {
	if errors.Is(err, account.ErrTransport) {
		return true
	}
	var statusErr *account.StatusError
	return errors.As(err, &statusErr) && statusErr.StatusCode >= http.StatusInternalServerError
}
