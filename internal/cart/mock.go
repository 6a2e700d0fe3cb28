package cart

import (
	"context"

	"sheetcart/internal/model"
)

// MockRemote implements RemoteClient for testing.
// Each method can be configured via function fields; unconfigured methods
// return an empty cart.
type MockRemote struct {
	FetchCartFunc  func(ctx context.Context, token string) (model.Cart, error)
	AddItemFunc    func(ctx context.Context, token string, id model.ProductID, quantity int) (model.Cart, error)
	RemoveItemFunc func(ctx context.Context, token string, id model.ProductID) (model.Cart, error)
	UpdateItemFunc func(ctx context.Context, token string, id model.ProductID, quantity int) (model.Cart, error)
	MergeCartFunc  func(ctx context.Context, token string, items model.Cart) (model.Cart, error)
	ClearCartFunc  func(ctx context.Context, token string) error
}

func (m *MockRemote) FetchCart(ctx context.Context, token string) (model.Cart, error) {
	if m.FetchCartFunc != nil {
		return m.FetchCartFunc(ctx, token)
	}
	return model.Cart{}, nil
}

func (m *MockRemote) AddItem(ctx context.Context, token string, id model.ProductID, quantity int) (model.Cart, error) {
	if m.AddItemFunc != nil {
		return m.AddItemFunc(ctx, token, id, quantity)
	}
	return model.Cart{}, nil
}

func (m *MockRemote) RemoveItem(ctx context.Context, token string, id model.ProductID) (model.Cart, error) {
	if m.RemoveItemFunc != nil {
		return m.RemoveItemFunc(ctx, token, id)
	}
	return model.Cart{}, nil
}

func (m *MockRemote) UpdateItem(ctx context.Context, token string, id model.ProductID, quantity int) (model.Cart, error) {
	if m.UpdateItemFunc != nil {
		return m.UpdateItemFunc(ctx, token, id, quantity)
	}
	return model.Cart{}, nil
}

func (m *MockRemote) MergeCart(ctx context.Context, token string, items model.Cart) (model.Cart, error) {
	if m.MergeCartFunc != nil {
		return m.MergeCartFunc(ctx, token, items)
	}
	return model.Cart{}, nil
}

func (m *MockRemote) ClearCart(ctx context.Context, token string) error {
	if m.ClearCartFunc != nil {
		return m.ClearCartFunc(ctx, token)
	}
	return nil
}

// Verify MockRemote implements RemoteClient at compile time.
var _ RemoteClient = (*MockRemote)(nil)
