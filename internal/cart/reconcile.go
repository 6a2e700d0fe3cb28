package cart

import (
	"log/slog"

	"sheetcart/internal/model"
)

// expectation is the post-condition an operation promised when it was
// submitted: either "this item is gone" or "this item holds this quantity".
type expectation struct {
	removed  bool
	quantity int
}

// settleMutation is the single entry point for every mutating operation's
// outcome. It applies the reconciliation decision rule in order:
//
//  1. Sequence gate: if the tracker entry for this key no longer belongs to
//     seq, a newer operation superseded this one - discard the response
//     without touching state or storage.
//  2. Expectation check: if both the current in-memory item and the remote
//     item already agree with the expected post-condition, the optimistic
//     state was correct - keep it unchanged, so the visible cart is never
//     replaced redundantly (no flicker).
//  3. Otherwise the remote result is authoritative - replace the in-memory
//     cart with the remote cart wholesale and re-persist it.
//
// Settling the tracker entry doubles as the gate and as cleanup, so a
// superseded operation's entry is never removed out from under its
// successor.
//
// "Always trust the latest server response" would flicker under rapid
// clicking; "always trust optimistic state" diverges permanently when the
// backend clamps or rejects a value. The sequence gate plus the expectation
// check gives last-intent-wins without discarding legitimate corrections.
func (s *Service) settleMutation(key string, seq int64, id model.ProductID, exp expectation, remoteCart model.Cart, err error) {
	if err != nil {
		if model.IsCanceled(err) {
			// Aborted because a newer operation superseded this one.
			// Not a failure; nothing to log, nothing to clean - the
			// successor already replaced the tracker entry.
			return
		}
		s.logger.Warn("remote cart mutation failed",
			slog.String("key", key),
			slog.Any("error", err),
		)
		// Optimistic state stays authoritative. Settle so the entry does
		// not linger once the failure is final for this sequence.
		s.tracker.Settle(key, seq)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.tracker.Settle(key, seq) {
		return
	}

	if optimisticStateCorrect(s.items, remoteCart, id, exp) {
		return
	}

	s.items = remoteCart.Clone()
	s.persistLocked()
}

// optimisticStateCorrect reports whether both the current in-memory cart
// and the remote cart already satisfy the operation's expected
// post-condition for the given product. When they do, replacing state with
// the remote cart would change nothing visible and only cause churn.
func optimisticStateCorrect(current, remote model.Cart, id model.ProductID, exp expectation) bool {
	curIdx := current.Find(id)
	remIdx := remote.Find(id)

	if exp.removed {
		return curIdx < 0 && remIdx < 0
	}
	return curIdx >= 0 && remIdx >= 0 &&
		current[curIdx].Quantity == exp.quantity &&
		remote[remIdx].Quantity == exp.quantity
}
