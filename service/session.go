package service

import (
	"context"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"bombily/pkg/logger"
	"bombily/pkg/models"
)

// Session is one user's working set between Open (login) and Close (logout).
// The bots keep their wizard state here as well.
type Session struct {
	mu sync.Mutex

	User     models.User
	Orders   []*models.Order
	Cities   []*models.City
	Shops    []*models.Shop
	Settings models.AppSettings
	OpenedAt time.Time

	state string
	draft CreateCommand
	temp  map[string]string
}

// Current returns the user as of the last Open or Refresh.
func (s *Session) Current() models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.User
}

func (s *Session) State() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) SetState(state string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

// Draft returns a copy of the order being assembled.
func (s *Session) Draft() CreateCommand {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.draft
	d.Items = slices.Clone(d.Items)
	return d
}

func (s *Session) EditDraft(fn func(*CreateCommand)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.draft)
}

// Reset drops the wizard state and the draft.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = ""
	s.draft = CreateCommand{}
	s.temp = nil
}

func (s *Session) Put(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.temp == nil {
		s.temp = make(map[string]string)
	}
	s.temp[key] = value
}

func (s *Session) Value(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.temp[key]
}

type Sessions struct {
	mu     sync.RWMutex
	byTele map[int64]*Session

	dir    Directory
	orders OrderService
	now    func() time.Time
	log    logger.ILogger
}

func NewSessions(dir Directory, orders OrderService, log logger.ILogger) *Sessions {
	return &Sessions{
		byTele: make(map[int64]*Session),
		dir:    dir,
		orders: orders,
		now:    time.Now,
		log:    log,
	}
}

// Open registers the telegram user if needed and loads their working set. An
// existing session for the same user is replaced.
func (s *Sessions) Open(ctx context.Context, teleID int64, name string) (*Session, error) {
	user, err := s.dir.Register(ctx, teleID, name)
	if err != nil {
		return nil, err
	}

	sess := &Session{User: *user, OpenedAt: s.now()}
	if err := s.load(ctx, sess); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.byTele[teleID] = sess
	s.mu.Unlock()

	s.log.Debug("session opened", logger.Int64("telegram_id", teleID), logger.String("role", string(user.Role)))
	return sess, nil
}

// Refresh reloads the working set of an open session, keeping wizard state.
func (s *Sessions) Refresh(ctx context.Context, teleID int64) (*Session, error) {
	sess, ok := s.Get(teleID)
	if !ok {
		return nil, ErrNotFound
	}
	user, err := s.dir.User(ctx, teleID)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	sess.User = *user
	sess.mu.Unlock()
	return sess, s.load(ctx, sess)
}

func (s *Sessions) load(ctx context.Context, sess *Session) error {
	sess.mu.Lock()
	user := sess.User
	sess.mu.Unlock()

	var (
		orders   []*models.Order
		cities   []*models.City
		shops    []*models.Shop
		settings *models.AppSettings
	)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		if user.Role == models.RoleDriver {
			orders, err = s.orders.ListByDriver(ctx, user.ID)
			return err
		}
		orders, err = s.orders.ListByRequester(ctx, user.ID)
		return err
	})
	g.Go(func() (err error) {
		cities, err = s.dir.Cities(ctx)
		return err
	})
	g.Go(func() (err error) {
		if user.CityID == nil {
			return nil
		}
		shops, err = s.dir.Shops(ctx, *user.CityID)
		return err
	})
	g.Go(func() (err error) {
		settings, err = s.dir.Settings(ctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.Orders = orders
	sess.Cities = cities
	sess.Shops = shops
	if settings != nil {
		sess.Settings = *settings
	}
	return nil
}

func (s *Sessions) Get(teleID int64) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.byTele[teleID]
	return sess, ok
}

// Close forgets the session; a later Open starts from scratch.
func (s *Sessions) Close(teleID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byTele, teleID)
}

func (s *Sessions) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byTele)
}
