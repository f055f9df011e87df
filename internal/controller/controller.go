// Package controller reconciles what a signed-in user sees with the remote
// session and data. One Controller serves one API request or one live event
// stream; it is the server-side counterpart of an open browser tab.
package controller

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/MrSnakeDoc/marks/internal/domain"
	"github.com/MrSnakeDoc/marks/internal/logger"
	"github.com/MrSnakeDoc/marks/internal/notify"
	"github.com/MrSnakeDoc/marks/internal/session"
)

const (
	bookmarksTable = "bookmarks"
	refetchTimeout = 10 * time.Second
)

// Backend is the managed data store. Every call runs as the token's user.
type Backend interface {
	ListBookmarks(ctx context.Context, accessToken, userID string) ([]domain.Bookmark, error)
	InsertBookmark(ctx context.Context, accessToken string, in domain.BookmarkInput) (*domain.Bookmark, error)
	DeleteBookmark(ctx context.Context, accessToken, id string) error
}

// Auth invalidates sessions with the identity provider.
type Auth interface {
	SignOut(ctx context.Context, accessToken string) error
}

// SignInStarter builds the provider redirect of a sign-in.
type SignInStarter interface {
	AuthorizeURL(provider, redirectTo, codeChallenge string) (string, error)
}

// Sessions yields the session the controller acts as.
type Sessions interface {
	Current(ctx context.Context) (*session.Session, error)
	End(ctx context.Context, sess *session.Session)
}

// State is what the user sees.
type State struct {
	Loading   bool              `json:"loading"`
	User      *domain.User      `json:"user"`
	Bookmarks []domain.Bookmark `json:"bookmarks"`
	URL       string            `json:"url"`
	Title     string            `json:"title"`
	Message   string            `json:"message"`
}

func (s State) clone() State {
	out := s
	if s.User != nil {
		u := *s.User
		out.User = &u
	}
	out.Bookmarks = append([]domain.Bookmark{}, s.Bookmarks...)
	return out
}

type Controller struct {
	backend   Backend
	sessions  Sessions
	auth      Auth
	starter   SignInStarter
	provider  string
	notifier  notify.Notifier
	publisher notify.Publisher
	log       logger.Logger

	ctx    context.Context // cancelled by Close
	cancel context.CancelFunc

	mu          sync.Mutex
	state       State
	sess        *session.Session
	sub         notify.Subscription
	subToken    string
	initialized bool
	closed      bool
	gen         uint64 // bumped when the user changes; stale results are dropped
	inflight    sync.WaitGroup

	emitMu   sync.Mutex
	onChange func(State)
}

type Option func(*Controller)

func WithAuth(a Auth) Option                  { return func(c *Controller) { c.auth = a } }
func WithNotifier(n notify.Notifier) Option   { return func(c *Controller) { c.notifier = n } }
func WithPublisher(p notify.Publisher) Option { return func(c *Controller) { c.publisher = p } }
func WithSignIn(s SignInStarter, provider string) Option {
	return func(c *Controller) { c.starter, c.provider = s, provider }
}

func New(backend Backend, sessions Sessions, log logger.Logger, opts ...Option) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		backend:  backend,
		sessions: sessions,
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
		state:    State{Bookmarks: []domain.Bookmark{}},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.clone()
}

// OnChange registers fn to receive every new state, in order.
func (c *Controller) OnChange(fn func(State)) {
	c.emitMu.Lock()
	c.onChange = fn
	c.emitMu.Unlock()
}

func (c *Controller) emit() {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()
	if c.onChange != nil {
		c.onChange(c.Snapshot())
	}
}

// update mutates the state under the lock and notifies the listener.
func (c *Controller) update(fn func(*State)) {
	c.mu.Lock()
	fn(&c.state)
	c.mu.Unlock()
	c.emit()
}

func (c *Controller) fail(err error) error {
	c.update(func(s *State) { s.Message = err.Error() })
	return err
}

// Initialize loads the session. Signed out: no data call is made. Signed in:
// the list is fetched and a change subscription for the user is opened.
func (c *Controller) Initialize(ctx context.Context) error {
	c.mu.Lock()
	first := !c.initialized
	c.initialized = true
	c.mu.Unlock()

	if first {
		c.update(func(s *State) { s.Loading = true })
		defer c.update(func(s *State) { s.Loading = false })
	}

	sess, err := c.session(ctx)
	if errors.Is(err, session.ErrNoSession) {
		return nil
	}
	if err != nil {
		return c.fail(err)
	}

	fetchErr := c.refetch(ctx)
	c.subscribe(ctx, sess)
	return fetchErr
}

// Resume loads the session without fetching, for single write requests.
func (c *Controller) Resume(ctx context.Context) error {
	_, err := c.session(ctx)
	return err
}

// session asks the source for the current session and mirrors its user.
func (c *Controller) session(ctx context.Context) (*session.Session, error) {
	sess, err := c.sessions.Current(ctx)
	if err != nil {
		if errors.Is(err, session.ErrNoSession) {
			c.signedOut()
		}
		return nil, err
	}

	c.mu.Lock()
	var stale notify.Subscription
	if c.state.User != nil && c.state.User.ID != sess.UserID {
		// Another account: drop everything tied to the previous one.
		stale = c.sub
		c.sub, c.subToken = nil, ""
		c.gen++
		c.state.Bookmarks = []domain.Bookmark{}
		c.state.URL, c.state.Title, c.state.Message = "", "", ""
	}
	user := sess.User()
	c.state.User = &user
	c.sess = sess

	var updater notify.TokenUpdater
	if c.sub != nil && c.subToken != sess.AccessToken {
		updater, _ = c.sub.(notify.TokenUpdater)
		c.subToken = sess.AccessToken
	}
	c.mu.Unlock()

	if stale != nil {
		_ = stale.Close()
	}
	if updater != nil {
		if err := updater.SetAccessToken(sess.AccessToken); err != nil {
			c.log.Warn("failed to push refreshed token to subscription",
				logger.String("user_id", sess.UserID),
				logger.Error(err))
		}
	}
	c.emit()
	return sess, nil
}

// signedOut clears everything tied to the user.
func (c *Controller) signedOut() {
	c.mu.Lock()
	sub := c.sub
	c.sub, c.subToken, c.sess = nil, "", nil
	c.gen++
	loading := c.state.Loading
	c.state = State{Loading: loading, Bookmarks: []domain.Bookmark{}}
	c.mu.Unlock()

	if sub != nil {
		_ = sub.Close()
	}
	c.emit()
}

func (c *Controller) subscribe(ctx context.Context, sess *session.Session) {
	if c.notifier == nil {
		return
	}
	c.mu.Lock()
	if c.sub != nil || c.closed {
		c.mu.Unlock()
		return
	}
	gen := c.gen
	c.mu.Unlock()

	userID := sess.UserID
	sub, err := c.notifier.Subscribe(ctx, userID, sess.AccessToken, func(ev domain.ChangeEvent) {
		c.onNotification(gen, ev)
	})
	if err != nil {
		// Live updates are lost, the list itself is still correct.
		c.log.Warn("change subscription failed",
			logger.String("user_id", userID),
			logger.Error(err))
		return
	}

	c.mu.Lock()
	if c.closed || c.gen != gen || c.sub != nil {
		c.mu.Unlock()
		_ = sub.Close()
		return
	}
	c.sub, c.subToken = sub, sess.AccessToken
	c.mu.Unlock()

	c.log.Debug("subscribed to bookmark changes", logger.String("user_id", userID))
}

// onNotification refetches on any change. Refetches are not sequenced: the
// last one to resolve wins.
func (c *Controller) onNotification(gen uint64, ev domain.ChangeEvent) {
	c.mu.Lock()
	if c.closed || c.gen != gen {
		c.mu.Unlock()
		return
	}
	c.inflight.Add(1)
	c.mu.Unlock()

	c.log.Debug("bookmarks changed, refetching", logger.String("type", string(ev.Type)))
	go func() {
		defer c.inflight.Done()
		ctx, cancel := context.WithTimeout(c.ctx, refetchTimeout)
		defer cancel()
		_ = c.Refetch(ctx)
	}()
}

// Refetch replaces the list with the backend's. A failure only sets the message.
func (c *Controller) Refetch(ctx context.Context) error {
	if _, err := c.session(ctx); err != nil {
		return err
	}
	return c.refetch(ctx)
}

func (c *Controller) refetch(ctx context.Context) error {
	c.mu.Lock()
	sess, gen := c.sess, c.gen
	c.mu.Unlock()
	if sess == nil {
		return session.ErrNoSession
	}

	rows, err := c.backend.ListBookmarks(ctx, sess.AccessToken, sess.UserID)

	c.mu.Lock()
	if c.closed || c.gen != gen {
		c.mu.Unlock()
		return nil
	}
	if err != nil {
		c.state.Message = err.Error()
	} else {
		c.state.Bookmarks = rows
	}
	c.mu.Unlock()
	c.emit()
	return err
}

// SetInputs sets the url and title of the next bookmark.
func (c *Controller) SetInputs(url, title string) {
	c.update(func(s *State) { s.URL, s.Title = url, title })
}

// Create inserts the bookmark described by the inputs. Blank inputs or a
// missing user make no remote call and leave the state unchanged.
func (c *Controller) Create(ctx context.Context) error {
	c.mu.Lock()
	url, title, user := c.state.URL, c.state.Title, c.state.User
	c.mu.Unlock()

	if strings.TrimSpace(url) == "" || strings.TrimSpace(title) == "" {
		return domain.ErrInvalidInput
	}
	if user == nil {
		return session.ErrNoSession
	}
	in, err := domain.NewBookmarkInput(url, title, user.ID)
	if err != nil {
		return err
	}

	sess, err := c.session(ctx)
	if err != nil {
		return err
	}
	if _, err := c.backend.InsertBookmark(ctx, sess.AccessToken, in); err != nil {
		return c.fail(err)
	}

	c.update(func(s *State) { s.URL, s.Title, s.Message = "", "", "" })
	c.publish(ctx, domain.ChangeInsert, sess.UserID)
	_ = c.refetch(ctx)
	return nil
}

// Delete removes the bookmark with id. Ownership is checked remotely.
func (c *Controller) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.ErrInvalidInput
	}
	c.mu.Lock()
	user := c.state.User
	c.mu.Unlock()
	if user == nil {
		return session.ErrNoSession
	}

	sess, err := c.session(ctx)
	if err != nil {
		return err
	}
	if err := c.backend.DeleteBookmark(ctx, sess.AccessToken, id); err != nil {
		return c.fail(err)
	}

	c.update(func(s *State) { s.Message = "" })
	c.publish(ctx, domain.ChangeDelete, sess.UserID)
	_ = c.refetch(ctx)
	return nil
}

// Import inserts inputs in order for the current user, then refetches once.
// It stops at the first failure and returns how many were inserted.
func (c *Controller) Import(ctx context.Context, inputs []domain.BookmarkInput) (int, error) {
	sess, err := c.session(ctx)
	if err != nil {
		return 0, err
	}

	inserted := 0
	var failed error
	for _, raw := range inputs {
		in, err := domain.NewBookmarkInput(raw.URL, raw.Title, sess.UserID)
		if err != nil {
			failed = err
			break
		}
		if _, err := c.backend.InsertBookmark(ctx, sess.AccessToken, in); err != nil {
			failed = err
			break
		}
		inserted++
	}

	if failed != nil {
		_ = c.fail(failed)
	} else {
		c.update(func(s *State) { s.Message = "" })
	}
	if inserted > 0 {
		c.publish(ctx, domain.ChangeInsert, sess.UserID)
		_ = c.refetch(ctx)
	}
	return inserted, failed
}

// SignIn returns the provider URL the browser must navigate to.
func (c *Controller) SignIn(callbackURL, codeChallenge string) (string, error) {
	if c.starter == nil {
		return "", c.fail(errors.New("sign-in is not configured"))
	}
	u, err := c.starter.AuthorizeURL(c.provider, callbackURL, codeChallenge)
	if err != nil {
		return "", c.fail(err)
	}
	return u, nil
}

// SignOut invalidates the session remotely, then clears the local state
// whatever the outcome. The remote error is still reported.
func (c *Controller) SignOut(ctx context.Context) error {
	c.mu.Lock()
	sess := c.sess
	c.mu.Unlock()
	if sess == nil {
		sess, _ = c.sessions.Current(ctx)
	}

	var err error
	if sess != nil && c.auth != nil {
		err = c.auth.SignOut(ctx, sess.AccessToken)
	}
	c.sessions.End(ctx, sess)
	c.signedOut()

	if err != nil {
		c.log.Warn("remote sign out failed", logger.Error(err))
		return c.fail(err)
	}
	return nil
}

// Close releases the subscription. Results of refetches still in flight
// are dropped.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	sub := c.sub
	c.sub = nil
	c.mu.Unlock()

	c.cancel()
	if sub != nil {
		_ = sub.Close()
	}
	c.inflight.Wait()
}

func (c *Controller) publish(ctx context.Context, typ domain.ChangeType, userID string) {
	if c.publisher == nil {
		return
	}
	ev := domain.ChangeEvent{Type: typ, Table: bookmarksTable, UserID: userID, At: time.Now().UTC()}
	if err := c.publisher.Publish(ctx, ev); err != nil {
		c.log.Warn("failed to publish change", logger.String("user_id", userID), logger.Error(err))
	}
}
