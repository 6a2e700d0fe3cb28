// Package cart implements the storefront cart engine: an optimistic local
// cart kept in sync with the authoritative backend cart across asynchronous,
// out-of-order network operations and authentication transitions.
//
// Every mutation applies to in-memory state and the local store
// synchronously, then schedules a background remote call through the
// operation tracker when a session is authenticated. Responses flow through
// the reconciler, which decides per operation whether to adopt the server's
// cart, keep the optimistic state, or discard a superseded response.
package cart

import (
	"context"
	"log/slog"
	stdsync "sync"
	"time"

	"github.com/shopspring/decimal"

	"sheetcart/internal/auth"
	"sheetcart/internal/localstore"
	"sheetcart/internal/model"
	"sheetcart/internal/sync"
)

// DefaultDebounce is the quiet period quantity updates wait for before
// hitting the network, so rapid +/+/+ clicks coalesce into one call.
const DefaultDebounce = 200 * time.Millisecond

// RemoteClient is the backend cart API surface the engine consumes.
// internal/remote provides the production implementation; tests inject
// fakes.
type RemoteClient interface {
	FetchCart(ctx context.Context, token string) (model.Cart, error)
	AddItem(ctx context.Context, token string, id model.ProductID, quantity int) (model.Cart, error)
	RemoveItem(ctx context.Context, token string, id model.ProductID) (model.Cart, error)
	UpdateItem(ctx context.Context, token string, id model.ProductID, quantity int) (model.Cart, error)
	MergeCart(ctx context.Context, token string, items model.Cart) (model.Cart, error)
	ClearCart(ctx context.Context, token string) error
}

// State labels the engine's position in the session lifecycle. Mutations
// during Auth-Synced stay in Auth-Synced; background reconciliation never
// changes the label.
type State string

const (
	StateGuestEmpty     State = "guest-empty"
	StateGuestPopulated State = "guest-populated"
	StateAuthLoading    State = "auth-loading"
	StateAuthSynced     State = "auth-synced"
)

// Product is the raw catalog shape handed to AddToCart. Ids and prices
// arrive in whatever form the catalog data uses; both are normalized once
// at this boundary.
type Product struct {
	ID    any
	Title string
	Price any
	Image string
}

// Options configures a Service.
type Options struct {
	Store  localstore.Store
	Remote RemoteClient
	Logger *slog.Logger

	// Debounce overrides the quiet period for quantity updates.
	// Zero means DefaultDebounce.
	Debounce time.Duration

	// FallbackTokens resolves a bearer token for best-effort calls (clear)
	// when the auth context is empty, e.g. right after a payment redirect.
	FallbackTokens auth.TokenSource
}

// Service owns the single in-memory cart for the lifetime of the
// application session. The local store and the remote backend mirror it;
// neither owns it. Construct one per session and share it by explicit
// composition, never as an ambient singleton.
type Service struct {
	mu      stdsync.Mutex
	items   model.Cart
	open    bool
	state   State
	store   localstore.Store
	remote  RemoteClient
	tracker *sync.Tracker
	logger  *slog.Logger
	debounce time.Duration
	fallback auth.TokenSource

	// Session flags. One-shot per session, reset on logout.
	loadedRemote bool // fetched/merged from the backend this session
	merged       bool // guest cart folded into the backend cart this session
	prevAuth     bool
	prevToken    string
	authed       bool
	token        string

	// authGen invalidates load/merge results from a superseded auth
	// transition (re-login mid-flight).
	authGen int64
}

// New constructs the engine and performs the guest-session local load.
// The cart starts from whatever the local store holds; remote state is only
// consulted once SetAuth reports an authenticated session.
func New(opts Options) (*Service, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	debounce := opts.Debounce
	if debounce == 0 {
		debounce = DefaultDebounce
	}

	s := &Service{
		store:    opts.Store,
		remote:   opts.Remote,
		tracker:  sync.NewTracker(),
		logger:   logger,
		debounce: debounce,
		fallback: opts.FallbackTokens,
	}

	items, err := opts.Store.LoadCart()
	if err != nil {
		// Storage trouble is non-fatal; the session runs memory-only.
		logger.Warn("loading persisted cart", slog.Any("error", err))
		items = model.Cart{}
	}
	s.items = items
	s.state = guestState(items)

	return s, nil
}

func guestState(items model.Cart) State {
	if items.IsEmpty() {
		return StateGuestEmpty
	}
	return StateGuestPopulated
}

// === Public Cart API ===

// AddToCart increments the existing line for the product or appends a new
// line with quantity 1, persists locally, and schedules a remote add when
// authenticated. Returns after the optimistic update; never waits on the
// network. Opening the cart panel is the caller's business.
func (s *Service) AddToCart(p Product) {
	id := model.NormalizeID(p.ID)
	if id == "" {
		return
	}

	s.mu.Lock()
	next := s.items.Clone()
	var expected int
	if i := next.Find(id); i >= 0 {
		next[i].Quantity++
		expected = next[i].Quantity
	} else {
		next = append(next, model.Item{
			ID:       id,
			Title:    p.Title,
			Price:    model.ParsePrice(p.Price),
			Image:    p.Image,
			Quantity: 1,
		})
		expected = 1
	}
	s.items = next
	s.persistLocked()
	s.refreshGuestStateLocked()
	authed, token := s.authed, s.token
	s.mu.Unlock()

	if !authed {
		return
	}
	s.tracker.Submit(updateKey(id), 0, func(ctx context.Context, seq int64) {
		remoteCart, err := s.remote.AddItem(ctx, token, id, 1)
		s.settleMutation(updateKey(id), seq, id, expectation{quantity: expected}, remoteCart, err)
	})
}

// RemoveFromCart removes the matching line, persists locally, and schedules
// a remote removal when authenticated. A removal also cancels any pending
// quantity update for the same product: remove wins unconditionally, so a
// debounced update can never resurrect a deleted line.
func (s *Service) RemoveFromCart(rawID any) {
	id := model.NormalizeID(rawID)
	if id == "" {
		return
	}

	s.mu.Lock()
	i := s.items.Find(id)
	if i < 0 {
		s.mu.Unlock()
		return
	}
	next := make(model.Cart, 0, len(s.items)-1)
	next = append(next, s.items[:i]...)
	next = append(next, s.items[i+1:]...)
	s.items = next
	s.persistLocked()
	s.refreshGuestStateLocked()
	authed, token := s.authed, s.token
	s.mu.Unlock()

	if !authed {
		return
	}
	s.tracker.Cancel(updateKey(id))
	s.tracker.Submit(removeKey(id), 0, func(ctx context.Context, seq int64) {
		remoteCart, err := s.remote.RemoveItem(ctx, token, id)
		s.settleMutation(removeKey(id), seq, id, expectation{removed: true}, remoteCart, err)
	})
}

// UpdateQuantity sets the line's quantity. Zero or negative delegates to
// RemoveFromCart. The remote update is debounced so rapid repeated clicks
// coalesce into a single call carrying the final quantity.
func (s *Service) UpdateQuantity(rawID any, quantity int) {
	if quantity <= 0 {
		s.RemoveFromCart(rawID)
		return
	}
	id := model.NormalizeID(rawID)
	if id == "" {
		return
	}

	s.mu.Lock()
	i := s.items.Find(id)
	if i < 0 {
		s.mu.Unlock()
		return
	}
	next := s.items.Clone()
	next[i].Quantity = quantity
	s.items = next
	s.persistLocked()
	authed, token := s.authed, s.token
	s.mu.Unlock()

	if !authed {
		return
	}
	s.tracker.Submit(updateKey(id), s.debounce, func(ctx context.Context, seq int64) {
		remoteCart, err := s.remote.UpdateItem(ctx, token, id, quantity)
		s.settleMutation(updateKey(id), seq, id, expectation{quantity: quantity}, remoteCart, err)
	})
}

// ClearCart empties state and local storage immediately, aborts all pending
// operations, and fires a best-effort remote clear with whichever token is
// available. Remote failure is tolerated silently; local-empty is the
// desired end state regardless.
func (s *Service) ClearCart() {
	s.mu.Lock()
	s.items = model.Cart{}
	s.persistLocked()
	if !s.authed {
		s.state = StateGuestEmpty
	}
	token := s.token
	s.mu.Unlock()

	s.tracker.Reset()

	if token == "" && s.fallback != nil {
		token = s.fallback.Token()
	}
	if token == "" {
		return
	}
	go func() {
		if err := s.remote.ClearCart(context.Background(), token); err != nil && !model.IsCanceled(err) {
			s.logger.Debug("remote clear failed", slog.Any("error", err))
		}
	}()
}

// Items returns a copy of the current cart lines.
func (s *Service) Items() model.Cart {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.items.Clone()
}

// ItemCount is the sum of all line quantities.
func (s *Service) ItemCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.items.ItemCount()
}

// Subtotal is the sum of price times quantity over all lines.
func (s *Service) Subtotal() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.items.Subtotal()
}

// State returns the current lifecycle label.
func (s *Service) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Pending returns the number of remote operations still in flight or
// waiting out their debounce. Callers that must not exit with work
// outstanding (the CLI) poll this to drain.
func (s *Service) Pending() int {
	return s.tracker.Len()
}

// Open reports the cart panel visibility flag. Pure UI state, never
// persisted.
func (s *Service) Open() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

// SetOpen sets the cart panel visibility flag.
func (s *Service) SetOpen(open bool) {
	s.mu.Lock()
	s.open = open
	s.mu.Unlock()
}

// ReplaceItems overwrites the cart wholesale and persists it. Manual
// override hook; normal mutations go through the typed operations above.
func (s *Service) ReplaceItems(items model.Cart) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = items.Clone()
	s.persistLocked()
	s.refreshGuestStateLocked()
}

// === Auth transitions ===

// SetAuth feeds the engine the latest authentication snapshot. The engine
// compares it against the previous snapshot to detect the three transition
// edges: login (or token change while authenticated), logout, and the
// initial guest mount, which is a no-op here because New already loaded
// local state.
func (s *Service) SetAuth(snap auth.Snapshot) {
	s.mu.Lock()

	switch {
	case snap.Authenticated && snap.Token != "":
		tokenChanged := s.prevAuth && snap.Token != s.prevToken
		needLoad := !s.loadedRemote || tokenChanged
		s.authed = true
		s.token = snap.Token
		s.prevAuth = true
		s.prevToken = snap.Token

		if !needLoad {
			s.mu.Unlock()
			return
		}

		// A fresh token is also the durable fallback for post-redirect
		// best-effort calls.
		if err := s.store.SetToken(snap.Token); err != nil {
			s.logger.Warn("persisting fallback token", slog.Any("error", err))
		}

		guest := s.items.Clone()
		doMerge := !s.merged && !guest.IsEmpty() && !s.loadedRemote
		if doMerge {
			// One-shot: the merge counts as spent when scheduled, so a
			// failed merge degrades to a plain fetch on the next login
			// edge rather than merging twice.
			s.merged = true
		}
		s.state = StateAuthLoading
		s.authGen++
		gen := s.authGen
		token := snap.Token
		s.mu.Unlock()

		go s.loadRemote(gen, token, guest, doMerge)

	case !snap.Authenticated && s.prevAuth:
		// True logout edge: empty everything, reset all one-shot flags so
		// a later login re-runs load/merge.
		s.items = model.Cart{}
		if err := s.store.RemoveCart(); err != nil {
			s.logger.Warn("clearing persisted cart on logout", slog.Any("error", err))
		}
		if err := s.store.DeleteToken(); err != nil {
			s.logger.Warn("clearing fallback token on logout", slog.Any("error", err))
		}
		s.loadedRemote = false
		s.merged = false
		s.prevAuth = false
		s.prevToken = ""
		s.authed = false
		s.token = ""
		s.authGen++
		s.state = StateGuestEmpty
		s.mu.Unlock()

		s.tracker.Reset()

	default:
		// Initial unauthenticated mount: guest state already loaded by New.
		s.authed = false
		s.token = ""
		s.mu.Unlock()
	}
}

// loadRemote fetches (or merges into) the backend cart after a login edge
// and adopts the result if this auth generation is still current.
func (s *Service) loadRemote(gen int64, token string, guest model.Cart, doMerge bool) {
	var (
		remoteCart model.Cart
		err        error
	)
	ctx := context.Background()
	if doMerge {
		remoteCart, err = s.remote.MergeCart(ctx, token, guest)
	} else {
		remoteCart, err = s.remote.FetchCart(ctx, token)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.authGen {
		// Superseded by a newer login/logout; discard entirely.
		return
	}

	if err != nil {
		if !model.IsCanceled(err) {
			s.logger.Warn("loading remote cart", slog.Any("error", err), slog.Bool("merge", doMerge))
		}
		// Local optimistic state stays authoritative until a later sync.
		s.state = StateAuthSynced
		return
	}

	s.items = remoteCart.Clone()
	s.persistLocked()
	s.loadedRemote = true
	s.state = StateAuthSynced
}

// === internals ===

// persistLocked mirrors in-memory state to the local store. Failures are
// logged and swallowed; memory stays the source of truth for the session.
func (s *Service) persistLocked() {
	if err := s.store.SaveCart(s.items); err != nil {
		s.logger.Warn("persisting cart", slog.Any("error", err))
	}
}

// refreshGuestStateLocked keeps the guest labels in step with content.
// Authenticated labels only move on auth edges and load completion.
func (s *Service) refreshGuestStateLocked() {
	if s.state == StateGuestEmpty || s.state == StateGuestPopulated {
		s.state = guestState(s.items)
	}
}

// updateKey is the tracking key for add and quantity-update operations.
func updateKey(id model.ProductID) string { return string(id) }

// removeKey is the distinct tracking key for removals, so a removal and a
// final debounced update never collapse into one tracker slot.
func removeKey(id model.ProductID) string { return "remove:" + string(id) }
