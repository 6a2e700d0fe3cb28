package cart

import (
	"context"
	"errors"
	"io"
	"log/slog"
	stdsync "sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"sheetcart/internal/auth"
	"sheetcart/internal/localstore"
	"sheetcart/internal/model"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newService(t *testing.T, store *localstore.MemoryStore, remote RemoteClient) *Service {
	t.Helper()
	if store == nil {
		store = localstore.NewMemory()
	}
	if remote == nil {
		remote = &MockRemote{}
	}
	s, err := New(Options{
		Store:    store,
		Remote:   remote,
		Logger:   quietLogger(),
		Debounce: 30 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("creating service: %v", err)
	}
	return s
}

// waitFor polls until cond holds or the deadline passes.
func waitFor(t *testing.T, msg string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

// echoAdd confirms the optimistic add verbatim, so tests exercising later
// operations are not disturbed by the add's reconciliation.
func echoAdd(ctx context.Context, token string, id model.ProductID, quantity int) (model.Cart, error) {
	return model.Cart{{ID: id, Quantity: quantity}}, nil
}

func login(s *Service, token string) {
	s.SetAuth(auth.Snapshot{Authenticated: true, Token: token})
}

func logout(s *Service) {
	s.SetAuth(auth.Snapshot{Authenticated: false})
}

// === Guest-mode behavior ===

func TestAddToCart_IdempotentAdd(t *testing.T) {
	s := newService(t, nil, nil)

	s.AddToCart(Product{ID: 1, Title: "Budget Planner", Price: "100"})
	s.AddToCart(Product{ID: 1, Title: "Budget Planner", Price: "100"})

	items := s.Items()
	if len(items) != 1 {
		t.Fatalf("cart has %d rows, want 1", len(items))
	}
	if items[0].Quantity != 2 {
		t.Errorf("quantity = %d, want 2", items[0].Quantity)
	}
}

func TestAddToCart_NormalizesMixedIDForms(t *testing.T) {
	s := newService(t, nil, nil)

	// Added with numeric id, referenced with string id.
	s.AddToCart(Product{ID: 5, Price: 10})
	s.UpdateQuantity("5", 3)

	items := s.Items()
	if len(items) != 1 || items[0].Quantity != 3 {
		t.Fatalf("items = %+v, want one row with quantity 3", items)
	}

	s.RemoveFromCart("5")
	if got := s.ItemCount(); got != 0 {
		t.Errorf("count after string-id remove = %d, want 0", got)
	}
}

func TestScenario_BasicAddRemove(t *testing.T) {
	s := newService(t, nil, nil)

	s.AddToCart(Product{ID: 1, Price: 100})
	if !s.Subtotal().Equal(decimal.NewFromInt(100)) {
		t.Errorf("subtotal = %s, want 100", s.Subtotal())
	}
	if s.ItemCount() != 1 {
		t.Errorf("count = %d, want 1", s.ItemCount())
	}

	// Second add of the same product: price unchanged, quantity 2.
	s.AddToCart(Product{ID: 1})
	items := s.Items()
	if !items[0].Price.Equal(decimal.NewFromInt(100)) {
		t.Errorf("price after re-add = %s, want 100", items[0].Price)
	}
	if items[0].Quantity != 2 || s.ItemCount() != 2 {
		t.Errorf("quantity = %d count = %d, want 2 and 2", items[0].Quantity, s.ItemCount())
	}

	s.RemoveFromCart(1)
	if s.ItemCount() != 0 {
		t.Errorf("count after remove = %d, want 0", s.ItemCount())
	}
	if !s.Subtotal().IsZero() {
		t.Errorf("subtotal after remove = %s, want 0", s.Subtotal())
	}
}

func TestScenario_UpdateToZeroRemoves(t *testing.T) {
	s := newService(t, nil, nil)
	store := localstore.NewMemory()
	s2 := newService(t, store, nil)

	s.AddToCart(Product{ID: 1, Price: 10})
	s.RemoveFromCart(1)

	s2.AddToCart(Product{ID: 1, Price: 10})
	s2.UpdateQuantity(1, 0)

	if len(s.Items()) != 0 || len(s2.Items()) != 0 {
		t.Error("updateQuantity(1, 0) must behave exactly like removeFromCart(1)")
	}
	if store.HasCart() {
		t.Error("persisted value must be deleted when the cart empties")
	}
}

func TestScenario_CorruptStorageLoadsEmpty(t *testing.T) {
	store := localstore.NewMemory()
	store.SeedCart(`{broken json!!`)

	s := newService(t, store, nil)
	if len(s.Items()) != 0 {
		t.Errorf("corrupt storage yielded %d items, want empty cart", len(s.Items()))
	}
	if s.State() != StateGuestEmpty {
		t.Errorf("state = %s, want %s", s.State(), StateGuestEmpty)
	}
}

func TestGuestStateLabels(t *testing.T) {
	s := newService(t, nil, nil)
	if s.State() != StateGuestEmpty {
		t.Fatalf("initial state = %s, want %s", s.State(), StateGuestEmpty)
	}

	s.AddToCart(Product{ID: 1, Price: 5})
	if s.State() != StateGuestPopulated {
		t.Errorf("state after add = %s, want %s", s.State(), StateGuestPopulated)
	}

	s.RemoveFromCart(1)
	if s.State() != StateGuestEmpty {
		t.Errorf("state after remove = %s, want %s", s.State(), StateGuestEmpty)
	}
}

func TestGuestMutationsArePersisted(t *testing.T) {
	store := localstore.NewMemory()
	s := newService(t, store, nil)

	s.AddToCart(Product{ID: 1, Title: "Budget Planner", Price: "12.99"})

	persisted, _ := store.LoadCart()
	if len(persisted) != 1 || persisted[0].ID != "1" {
		t.Fatalf("persisted = %+v, want the added item", persisted)
	}
}

func TestGuestMutationsNeverTouchNetwork(t *testing.T) {
	var calls int32
	remote := &MockRemote{
		AddItemFunc: func(ctx context.Context, token string, id model.ProductID, q int) (model.Cart, error) {
			calls++
			return model.Cart{}, nil
		},
	}
	s := newService(t, nil, remote)

	s.AddToCart(Product{ID: 1, Price: 10})
	s.UpdateQuantity(1, 3)
	s.RemoveFromCart(1)

	time.Sleep(100 * time.Millisecond)
	if calls != 0 {
		t.Errorf("guest mutations made %d remote calls, want 0", calls)
	}
}

func TestOpenFlag(t *testing.T) {
	s := newService(t, nil, nil)
	if s.Open() {
		t.Error("panel should start closed")
	}
	s.SetOpen(true)
	if !s.Open() {
		t.Error("SetOpen(true) did not stick")
	}
}

// === Auth transitions ===

func TestLogin_FetchesRemoteCart(t *testing.T) {
	serverCart := model.Cart{{ID: "9", Title: "Tax Workbook", Price: decimal.NewFromInt(20), Quantity: 1}}
	remote := &MockRemote{
		FetchCartFunc: func(ctx context.Context, token string) (model.Cart, error) {
			return serverCart.Clone(), nil
		},
	}
	store := localstore.NewMemory()
	s := newService(t, store, remote)

	login(s, "tok-1")

	waitFor(t, "remote load", func() bool { return s.State() == StateAuthSynced })
	items := s.Items()
	if len(items) != 1 || items[0].ID != "9" {
		t.Fatalf("items after login = %+v, want server cart", items)
	}

	persisted, _ := store.LoadCart()
	if len(persisted) != 1 {
		t.Error("remote cart was not mirrored to local store")
	}
}

func TestLogin_MergesGuestCartExactlyOnce(t *testing.T) {
	var mu stdsync.Mutex
	var mergeCalls, fetchCalls int
	remote := &MockRemote{
		MergeCartFunc: func(ctx context.Context, token string, items model.Cart) (model.Cart, error) {
			mu.Lock()
			mergeCalls++
			mu.Unlock()
			// Additive merge: server already held one unit of product 1.
			merged := items.Clone()
			merged[0].Quantity++
			return merged, nil
		},
		FetchCartFunc: func(ctx context.Context, token string) (model.Cart, error) {
			mu.Lock()
			fetchCalls++
			mu.Unlock()
			return model.Cart{}, nil
		},
	}
	s := newService(t, nil, remote)

	s.AddToCart(Product{ID: 1, Price: 10}) // guest cart
	login(s, "tok-1")
	waitFor(t, "merge", func() bool { return s.State() == StateAuthSynced })

	mu.Lock()
	if mergeCalls != 1 {
		t.Errorf("merge calls = %d, want 1", mergeCalls)
	}
	mu.Unlock()

	if got := s.Items()[0].Quantity; got != 2 {
		t.Errorf("merged quantity = %d, want 2", got)
	}

	// A second login snapshot within the same session must not merge again
	// nor reload.
	login(s, "tok-1")
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if mergeCalls != 1 {
		t.Errorf("merge calls after re-snapshot = %d, want 1", mergeCalls)
	}
	if fetchCalls != 0 {
		t.Errorf("fetch calls = %d, want 0 (merge replaced the plain fetch)", fetchCalls)
	}
}

func TestLogin_EmptyGuestCartFetchesInsteadOfMerging(t *testing.T) {
	var mu stdsync.Mutex
	var mergeCalls, fetchCalls int
	remote := &MockRemote{
		MergeCartFunc: func(ctx context.Context, token string, items model.Cart) (model.Cart, error) {
			mu.Lock()
			mergeCalls++
			mu.Unlock()
			return items, nil
		},
		FetchCartFunc: func(ctx context.Context, token string) (model.Cart, error) {
			mu.Lock()
			fetchCalls++
			mu.Unlock()
			return model.Cart{}, nil
		},
	}
	s := newService(t, nil, remote)

	login(s, "tok-1")
	waitFor(t, "load", func() bool { return s.State() == StateAuthSynced })

	mu.Lock()
	defer mu.Unlock()
	if mergeCalls != 0 {
		t.Errorf("merge calls = %d, want 0 for empty guest cart", mergeCalls)
	}
	if fetchCalls != 1 {
		t.Errorf("fetch calls = %d, want 1", fetchCalls)
	}
}

func TestLogout_ClearsEverythingAndResetsFlags(t *testing.T) {
	var mu stdsync.Mutex
	var fetchCalls int
	remote := &MockRemote{
		FetchCartFunc: func(ctx context.Context, token string) (model.Cart, error) {
			mu.Lock()
			fetchCalls++
			mu.Unlock()
			return model.Cart{{ID: "1", Quantity: 1}}, nil
		},
	}
	store := localstore.NewMemory()
	s := newService(t, store, remote)

	login(s, "tok-1")
	waitFor(t, "first load", func() bool { return s.State() == StateAuthSynced })

	logout(s)
	if s.State() != StateGuestEmpty {
		t.Errorf("state after logout = %s, want %s", s.State(), StateGuestEmpty)
	}
	if len(s.Items()) != 0 {
		t.Error("in-memory cart not emptied on logout")
	}
	if store.HasCart() {
		t.Error("persisted cart not removed on logout")
	}
	if tok, _ := store.Token(); tok != "" {
		t.Error("fallback token not removed on logout")
	}

	// Flags were reset, so a subsequent login re-triggers the load.
	login(s, "tok-2")
	waitFor(t, "reload after logout", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return fetchCalls == 2
	})
}

func TestInitialUnauthenticatedMountIsNotALogout(t *testing.T) {
	store := localstore.NewMemory()
	store.SaveCart(model.Cart{{ID: "1", Quantity: 2}})
	s := newService(t, store, nil)

	// The first snapshot on a guest mount is unauthenticated; it must not
	// be treated as a logout edge.
	logout(s)

	if len(s.Items()) != 1 {
		t.Error("initial unauthenticated snapshot wiped the guest cart")
	}
	if !store.HasCart() {
		t.Error("initial unauthenticated snapshot wiped persisted state")
	}
}

func TestTokenChange_ForcesReload(t *testing.T) {
	var mu stdsync.Mutex
	var tokens []string
	remote := &MockRemote{
		FetchCartFunc: func(ctx context.Context, token string) (model.Cart, error) {
			mu.Lock()
			tokens = append(tokens, token)
			mu.Unlock()
			return model.Cart{}, nil
		},
	}
	s := newService(t, nil, remote)

	login(s, "tok-1")
	waitFor(t, "first load", func() bool { return s.State() == StateAuthSynced })

	// Same token again: "already loaded this session" skips the reload.
	login(s, "tok-1")
	time.Sleep(50 * time.Millisecond)

	// Different token while staying authenticated: reload is forced.
	login(s, "tok-2")
	waitFor(t, "reload on token change", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(tokens) == 2
	})

	mu.Lock()
	defer mu.Unlock()
	if tokens[0] != "tok-1" || tokens[1] != "tok-2" {
		t.Errorf("fetch tokens = %v, want [tok-1 tok-2]", tokens)
	}
}

func TestLogin_StoresFallbackToken(t *testing.T) {
	store := localstore.NewMemory()
	s := newService(t, store, nil)

	login(s, "tok-1")
	waitFor(t, "load", func() bool { return s.State() == StateAuthSynced })

	if tok, _ := store.Token(); tok != "tok-1" {
		t.Errorf("fallback token = %q, want tok-1", tok)
	}
}

func TestLogin_RemoteUnavailableFallsBackToLocal(t *testing.T) {
	// Guest cart is populated, so the login edge tries a merge.
	remote := &MockRemote{
		MergeCartFunc: func(ctx context.Context, token string, items model.Cart) (model.Cart, error) {
			return nil, model.NewRemoteError("merge", errors.New("down"))
		},
	}
	store := localstore.NewMemory()
	store.SaveCart(model.Cart{{ID: "1", Quantity: 2}})
	s := newService(t, store, remote)

	login(s, "tok-1")
	waitFor(t, "fallback", func() bool { return s.State() == StateAuthSynced })

	if len(s.Items()) != 1 {
		t.Error("local cart must survive a failed remote load")
	}
}

// === Remote sync of mutations ===

func TestAuthedAdd_SchedulesRemoteAdd(t *testing.T) {
	added := make(chan model.ProductID, 1)
	remote := &MockRemote{
		AddItemFunc: func(ctx context.Context, token string, id model.ProductID, q int) (model.Cart, error) {
			added <- id
			return model.Cart{{ID: id, Quantity: 1}}, nil
		},
	}
	s := newService(t, nil, remote)
	login(s, "tok-1")
	waitFor(t, "load", func() bool { return s.State() == StateAuthSynced })

	s.AddToCart(Product{ID: 7, Price: 10})

	select {
	case id := <-added:
		if id != "7" {
			t.Errorf("remote add id = %q, want 7", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("remote add never scheduled")
	}
}

func TestAuthedMutation_NeverBlocksOnNetwork(t *testing.T) {
	block := make(chan struct{})
	t.Cleanup(func() { close(block) })
	remote := &MockRemote{
		AddItemFunc: func(ctx context.Context, token string, id model.ProductID, q int) (model.Cart, error) {
			<-block
			return model.Cart{}, nil
		},
	}
	s := newService(t, nil, remote)
	login(s, "tok-1")
	waitFor(t, "load", func() bool { return s.State() == StateAuthSynced })

	done := make(chan struct{})
	go func() {
		s.AddToCart(Product{ID: 1, Price: 5})
		close(done)
	}()

	select {
	case <-done:
		// Optimistic state is already visible.
		if s.ItemCount() != 1 {
			t.Error("optimistic update not applied before network settles")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("AddToCart blocked on the network call")
	}
}

func TestScenario_DebounceCoalescing(t *testing.T) {
	var mu stdsync.Mutex
	var quantities []int
	remote := &MockRemote{
		AddItemFunc: echoAdd,
		UpdateItemFunc: func(ctx context.Context, token string, id model.ProductID, q int) (model.Cart, error) {
			mu.Lock()
			quantities = append(quantities, q)
			mu.Unlock()
			return model.Cart{{ID: id, Quantity: q}}, nil
		},
	}
	s := newService(t, nil, remote)
	login(s, "tok-1")
	waitFor(t, "load", func() bool { return s.State() == StateAuthSynced })

	s.AddToCart(Product{ID: 1, Price: 10})
	waitFor(t, "add settles", func() bool { return !s.tracker.Active(updateKey("1")) })

	// Three rapid updates inside the debounce window.
	s.UpdateQuantity(1, 2)
	s.UpdateQuantity(1, 3)
	s.UpdateQuantity(1, 4)

	waitFor(t, "debounced update", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(quantities) > 0
	})
	time.Sleep(100 * time.Millisecond) // room for stragglers to (wrongly) fire

	mu.Lock()
	defer mu.Unlock()
	if len(quantities) != 1 {
		t.Fatalf("remote update ran %d times, want 1 (got %v)", len(quantities), quantities)
	}
	if quantities[0] != 4 {
		t.Errorf("remote update quantity = %d, want 4", quantities[0])
	}
}

func TestSequence_StaleResponseNeverRegressesState(t *testing.T) {
	firstStarted := make(chan struct{})
	releaseFirst := make(chan struct{})
	secondDone := make(chan struct{})
	var call int32
	var mu stdsync.Mutex

	remote := &MockRemote{
		AddItemFunc: echoAdd,
		UpdateItemFunc: func(ctx context.Context, token string, id model.ProductID, q int) (model.Cart, error) {
			mu.Lock()
			call++
			n := call
			mu.Unlock()
			if n == 1 {
				close(firstStarted)
				// Ignore ctx cancellation deliberately: simulate a response
				// that was already on the wire when it was superseded.
				<-releaseFirst
				return model.Cart{{ID: id, Quantity: 2}}, nil
			}
			defer close(secondDone)
			return model.Cart{{ID: id, Quantity: 5}}, nil
		},
	}

	s, err := New(Options{
		Store:    localstore.NewMemory(),
		Remote:   remote,
		Logger:   quietLogger(),
		Debounce: time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}
	login(s, "tok-1")
	waitFor(t, "load", func() bool { return s.State() == StateAuthSynced })

	s.AddToCart(Product{ID: 1, Price: 10})
	waitFor(t, "add settles", func() bool { return !s.tracker.Active(updateKey("1")) })

	s.UpdateQuantity(1, 2)
	<-firstStarted

	s.UpdateQuantity(1, 5)
	<-secondDone
	waitFor(t, "second settles", func() bool { return !s.tracker.Active(updateKey("1")) })

	// The stale response (quantity 2) arrives after the newer operation
	// already settled. It must be discarded.
	close(releaseFirst)
	time.Sleep(100 * time.Millisecond)

	items := s.Items()
	if len(items) != 1 || items[0].Quantity != 5 {
		t.Fatalf("state regressed to stale response: %+v, want quantity 5", items)
	}
}

func TestNoFlicker_MatchingResponseKeepsStateIdentity(t *testing.T) {
	remote := &MockRemote{
		AddItemFunc: echoAdd,
		UpdateItemFunc: func(ctx context.Context, token string, id model.ProductID, q int) (model.Cart, error) {
			// Server agrees exactly with the optimistic quantity.
			return model.Cart{{ID: id, Quantity: q}}, nil
		},
	}
	s := newService(t, nil, remote)
	login(s, "tok-1")
	waitFor(t, "load", func() bool { return s.State() == StateAuthSynced })

	s.AddToCart(Product{ID: 1, Price: 10})
	waitFor(t, "add settles", func() bool { return !s.tracker.Active(updateKey("1")) })

	s.UpdateQuantity(1, 3)

	s.mu.Lock()
	before := &s.items[0]
	s.mu.Unlock()

	waitFor(t, "update settles", func() bool { return !s.tracker.Active(updateKey("1")) })
	time.Sleep(50 * time.Millisecond)

	s.mu.Lock()
	after := &s.items[0]
	s.mu.Unlock()

	if before != after {
		t.Error("matching remote response replaced the state slice; expected reference-stable keep")
	}
}

func TestServerCorrection_IsAdopted(t *testing.T) {
	remote := &MockRemote{
		AddItemFunc: echoAdd,
		UpdateItemFunc: func(ctx context.Context, token string, id model.ProductID, q int) (model.Cart, error) {
			// Server clamps every quantity to 3 (stock limit).
			return model.Cart{{ID: id, Title: "Budget Planner", Quantity: 3}}, nil
		},
	}
	s := newService(t, nil, remote)
	login(s, "tok-1")
	waitFor(t, "load", func() bool { return s.State() == StateAuthSynced })

	s.AddToCart(Product{ID: 1, Price: 10})
	waitFor(t, "add settles", func() bool { return !s.tracker.Active(updateKey("1")) })

	s.UpdateQuantity(1, 10)
	waitFor(t, "clamped quantity adopted", func() bool {
		items := s.Items()
		return len(items) == 1 && items[0].Quantity == 3
	})
}

func TestRemoveWins_CancelsPendingUpdate(t *testing.T) {
	var mu stdsync.Mutex
	var updateCalls int
	removed := make(chan struct{}, 1)
	remote := &MockRemote{
		AddItemFunc: echoAdd,
		UpdateItemFunc: func(ctx context.Context, token string, id model.ProductID, q int) (model.Cart, error) {
			mu.Lock()
			updateCalls++
			mu.Unlock()
			return model.Cart{{ID: id, Quantity: q}}, nil
		},
		RemoveItemFunc: func(ctx context.Context, token string, id model.ProductID) (model.Cart, error) {
			removed <- struct{}{}
			return model.Cart{}, nil
		},
	}
	s := newService(t, nil, remote)
	login(s, "tok-1")
	waitFor(t, "load", func() bool { return s.State() == StateAuthSynced })

	s.AddToCart(Product{ID: 1, Price: 10})
	waitFor(t, "add settles", func() bool { return !s.tracker.Active(updateKey("1")) })

	// Update still sitting in its debounce window when the remove lands.
	s.UpdateQuantity(1, 7)
	s.RemoveFromCart(1)

	select {
	case <-removed:
	case <-time.After(2 * time.Second):
		t.Fatal("remote remove never dispatched")
	}
	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if updateCalls != 0 {
		t.Errorf("canceled update still hit the network %d times", updateCalls)
	}
	if len(s.Items()) != 0 {
		t.Error("item resurrected after remove")
	}
}

func TestRemoteFailure_KeepsOptimisticState(t *testing.T) {
	remote := &MockRemote{
		AddItemFunc: func(ctx context.Context, token string, id model.ProductID, q int) (model.Cart, error) {
			return nil, model.NewRemoteError("add", errors.New("backend down"))
		},
	}
	s := newService(t, nil, remote)
	login(s, "tok-1")
	waitFor(t, "load", func() bool { return s.State() == StateAuthSynced })

	s.AddToCart(Product{ID: 1, Price: 10})
	waitFor(t, "operation settles", func() bool { return !s.tracker.Active(updateKey("1")) })

	if s.ItemCount() != 1 {
		t.Error("optimistic state lost after remote failure")
	}
	if s.State() != StateAuthSynced {
		t.Errorf("state = %s, remote failure must not change the label", s.State())
	}
}

func TestClearCart_LocalFirstRemoteBestEffort(t *testing.T) {
	cleared := make(chan string, 1)
	remote := &MockRemote{
		ClearCartFunc: func(ctx context.Context, token string) error {
			cleared <- token
			return errors.New("ignored")
		},
	}
	store := localstore.NewMemory()
	s := newService(t, store, remote)
	login(s, "tok-1")
	waitFor(t, "load", func() bool { return s.State() == StateAuthSynced })

	s.AddToCart(Product{ID: 1, Price: 10})
	s.ClearCart()

	if len(s.Items()) != 0 {
		t.Error("cart not emptied locally")
	}
	if store.HasCart() {
		t.Error("persisted cart not removed")
	}

	select {
	case token := <-cleared:
		if token != "tok-1" {
			t.Errorf("remote clear token = %q, want tok-1", token)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("best-effort remote clear never fired")
	}
}

func TestClearCart_UsesFallbackTokenWhenContextEmpty(t *testing.T) {
	cleared := make(chan string, 1)
	remote := &MockRemote{
		ClearCartFunc: func(ctx context.Context, token string) error {
			cleared <- token
			return nil
		},
	}
	store := localstore.NewMemory()
	store.SetToken("durable-tok")

	s, err := New(Options{
		Store:          store,
		Remote:         remote,
		Logger:         quietLogger(),
		FallbackTokens: auth.Fallback{Store: store},
	})
	if err != nil {
		t.Fatal(err)
	}

	// Guest session (no live token), e.g. right after a payment redirect.
	s.AddToCart(Product{ID: 1, Price: 10})
	s.ClearCart()

	select {
	case token := <-cleared:
		if token != "durable-tok" {
			t.Errorf("remote clear token = %q, want durable-tok", token)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("remote clear with fallback token never fired")
	}
}

func TestReplaceItems_OverridesAndPersists(t *testing.T) {
	store := localstore.NewMemory()
	s := newService(t, store, nil)

	s.ReplaceItems(model.Cart{{ID: "3", Quantity: 2}})

	if s.ItemCount() != 2 {
		t.Errorf("count = %d, want 2", s.ItemCount())
	}
	persisted, _ := store.LoadCart()
	if len(persisted) != 1 || persisted[0].ID != "3" {
		t.Errorf("persisted = %+v", persisted)
	}
}
