//go:build integration

package store_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safar/petplace/internal/database"
	"github.com/safar/petplace/internal/models"
	"github.com/safar/petplace/internal/store"
)

func TestCreateOrder(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	user := mustCreateUser(t, db, "test@example.com")
	product1 := mustCreateProduct(t, db, "TEST-ORD-001", 100, 50)
	product2 := mustCreateProduct(t, db, "TEST-ORD-002", 200, 30)

	order, err := store.CreateOrder(ctx, db, store.CreateOrderRequest{
		UserID: user.ID,
		Items: []store.OrderItemRequest{
			{ProductID: product2.ID, Quantity: 3},
			{ProductID: product1.ID, Quantity: 5},
		},
	})
	if err != nil {
		t.Fatalf("Create order: %v", err)
	}

	if order.ID == 0 {
		t.Error("Order ID should not be 0")
	}

	expectedTotal := decimal.NewFromInt(100).Mul(decimal.NewFromInt(5)).
		Add(decimal.NewFromInt(200).Mul(decimal.NewFromInt(3)))

	if !order.TotalAmount.Equal(expectedTotal) {
		t.Errorf("Expected total %s, got %s", expectedTotal, order.TotalAmount)
	}
	if len(order.Items) != 2 {
		t.Errorf("Expected 2 order items, got %d", len(order.Items))
	}

	product1After, err := store.GetProduct(ctx, db, product1.ID)
	if err != nil {
		t.Fatalf("Get product 1: %v", err)
	}
	if product1After.StockQuantity != 45 {
		t.Errorf("Expected product 1 stock 45, got %d", product1After.StockQuantity)
	}

	product2After, err := store.GetProduct(ctx, db, product2.ID)
	if err != nil {
		t.Fatalf("Get product 2: %v", err)
	}
	if product2After.StockQuantity != 27 {
		t.Errorf("Expected product 2 stock 27, got %d", product2After.StockQuantity)
	}
}

func TestCreateOrderInsufficientStock(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	user := mustCreateUser(t, db, "test2@example.com")
	plenty := mustCreateProduct(t, db, "TEST-ORD-002", 10, 100)
	product := mustCreateProduct(t, db, "TEST-ORD-003", 100, 5)

	_, err := store.CreateOrder(ctx, db, store.CreateOrderRequest{
		UserID: user.ID,
		Items: []store.OrderItemRequest{
			{ProductID: plenty.ID, Quantity: 1},
			{ProductID: product.ID, Quantity: 10},
		},
	})

	if !errors.Is(err, database.ErrInsufficientStock) {
		t.Errorf("Expected insufficient stock error, got: %v", err)
	}

	var stockErr *database.OutOfStockError
	if errors.As(err, &stockErr) {
		assert.Equal(t, product.ID, stockErr.ProductID)
		assert.Equal(t, 10, stockErr.Requested)
		assert.Equal(t, 5, stockErr.Available)
	} else {
		t.Errorf("Expected OutOfStockError, got %T", err)
	}

	productAfter, err := store.GetProduct(ctx, db, product.ID)
	if err != nil {
		t.Fatalf("Get product: %v", err)
	}
	if productAfter.StockQuantity != 5 {
		t.Errorf("Stock should remain unchanged at 5, got %d", productAfter.StockQuantity)
	}

	plentyAfter, err := store.GetProduct(ctx, db, plenty.ID)
	if err != nil {
		t.Fatalf("Get product: %v", err)
	}
	if plentyAfter.StockQuantity != 100 {
		t.Errorf("Stock of the first line should remain 100, got %d", plentyAfter.StockQuantity)
	}
}

func TestConcurrentOrderCreation(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	user := mustCreateUser(t, db, "test3@example.com")
	product := mustCreateProduct(t, db, "TEST-ORD-004", 100, 15)

	concurrency := 10
	var wg sync.WaitGroup
	results := make(chan error, concurrency)

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			_, err := store.CreateOrder(ctx, db, store.CreateOrderRequest{
				UserID: user.ID,
				Items: []store.OrderItemRequest{
					{ProductID: product.ID, Quantity: 2},
				},
			})

			results <- err
		}()
	}

	wg.Wait()
	close(results)

	successCount := 0
	for err := range results {
		switch {
		case err == nil:
			successCount++
		case errors.Is(err, database.ErrInsufficientStock):
		default:
			t.Logf("Unexpected error: %v", err)
		}
	}

	if successCount > 7 {
		t.Errorf("Stock of 15 allows at most 7 orders of 2, got %d", successCount)
	}

	productAfter, err := store.GetProduct(ctx, db, product.ID)
	if err != nil {
		t.Fatalf("Get product: %v", err)
	}

	expectedStock := 15 - (successCount * 2)
	if productAfter.StockQuantity != expectedStock {
		t.Errorf("Expected final stock %d, got %d", expectedStock, productAfter.StockQuantity)
	}
}

func TestListOrdersCursor(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	user := mustCreateUser(t, db, "test4@example.com")
	product := mustCreateProduct(t, db, "TEST-ORD-005", 100, 100)

	for i := 0; i < 15; i++ {
		_, err := store.CreateOrder(ctx, db, store.CreateOrderRequest{
			UserID: user.ID,
			Items: []store.OrderItemRequest{
				{ProductID: product.ID, Quantity: 1},
			},
		})
		if err != nil {
			t.Fatalf("Create order %d: %v", i, err)
		}
	}

	page1, err := store.ListOrdersCursor(ctx, db, user.ID, "", 10)
	if err != nil {
		t.Fatalf("List orders page 1: %v", err)
	}

	if !page1.HasMore {
		t.Error("Page 1 should have more results")
	}

	if page1.NextCursor == "" {
		t.Error("Page 1 should have a next cursor")
	}

	page2, err := store.ListOrdersCursor(ctx, db, user.ID, page1.NextCursor, 10)
	if err != nil {
		t.Fatalf("List orders page 2: %v", err)
	}

	if page2.HasMore {
		t.Error("Page 2 should not have more results")
	}
}

func TestCreateOrderFromCart(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	user := mustCreateUser(t, db, "cart@example.com")
	food := mustCreateProduct(t, db, "FOOD-1", 25, 10)
	toy := mustCreateProduct(t, db, "TOY-1", 8, 4)

	cart, err := store.GetOrCreateCart(ctx, db, user.ID)
	require.NoError(t, err)

	_, err = store.AddCartItem(ctx, db, cart.ID, food.ID, 2)
	require.NoError(t, err)
	_, err = store.AddCartItem(ctx, db, cart.ID, toy.ID, 1)
	require.NoError(t, err)
	cart, err = store.AddCartItem(ctx, db, cart.ID, toy.ID, 2)
	require.NoError(t, err)

	require.Len(t, cart.Items, 2)
	assert.Equal(t, 5, cart.ItemCount)
	assert.True(t, cart.Total.Equal(decimal.NewFromInt(74)), "cart total %s", cart.Total)

	// The order bills the cart price; the name is read from the product at checkout.
	_, err = db.ExecContext(ctx, `UPDATE products SET price = 99, name = 'Kibble XL' WHERE id = $1`, food.ID)
	require.NoError(t, err)

	order, err := store.CreateOrderFromCart(ctx, db, cart.ID, "1 Main St")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.True(t, order.TotalAmount.Equal(decimal.NewFromInt(74)), "order total %s", order.TotalAmount)

	require.Len(t, order.Items, 2)
	for _, item := range order.Items {
		if item.ProductID == food.ID {
			assert.Equal(t, "Kibble XL", item.ProductName)
			assert.True(t, item.UnitPrice.Equal(decimal.NewFromInt(25)), "unit price %s", item.UnitPrice)
		}
	}

	emptied, err := store.GetCart(ctx, db, cart.ID)
	require.NoError(t, err)
	assert.Empty(t, emptied.Items)
	assert.True(t, emptied.Total.IsZero())

	toyAfter, err := store.GetProduct(ctx, db, toy.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, toyAfter.StockQuantity)
}

func TestCreateOrderFromCartIsAllOrNothing(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	user := mustCreateUser(t, db, "partial@example.com")
	food := mustCreateProduct(t, db, "FOOD-2", 25, 10)
	toy := mustCreateProduct(t, db, "TOY-2", 8, 3)

	cart, err := store.GetOrCreateCart(ctx, db, user.ID)
	require.NoError(t, err)
	_, err = store.AddCartItem(ctx, db, cart.ID, food.ID, 2)
	require.NoError(t, err)
	_, err = store.AddCartItem(ctx, db, cart.ID, toy.ID, 3)
	require.NoError(t, err)

	// Someone else buys the toys first.
	_, err = store.CreateOrder(ctx, db, store.CreateOrderRequest{
		UserID: user.ID,
		Items:  []store.OrderItemRequest{{ProductID: toy.ID, Quantity: 2}},
	})
	require.NoError(t, err)

	_, err = store.CreateOrderFromCart(ctx, db, cart.ID, "1 Main St")
	require.ErrorIs(t, err, database.ErrInsufficientStock)

	foodAfter, err := store.GetProduct(ctx, db, food.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, foodAfter.StockQuantity)

	cartAfter, err := store.GetCart(ctx, db, cart.ID)
	require.NoError(t, err)
	assert.Len(t, cartAfter.Items, 2)

	page, err := store.ListOrdersCursor(ctx, db, user.ID, "", 10)
	require.NoError(t, err)
	assert.Len(t, page.Items, 1)
}

func TestAddCartItemRespectsStock(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	user := mustCreateUser(t, db, "stock@example.com")
	product := mustCreateProduct(t, db, "LEASH-1", 15, 3)

	cart, err := store.GetOrCreateCart(ctx, db, user.ID)
	require.NoError(t, err)

	_, err = store.AddCartItem(ctx, db, cart.ID, product.ID, 2)
	require.NoError(t, err)

	_, err = store.AddCartItem(ctx, db, cart.ID, product.ID, 2)
	require.ErrorIs(t, err, database.ErrInsufficientStock)

	cart, err = store.UpdateCartItemQuantity(ctx, db, cart.ID, product.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, cart.ItemCount)

	cart, err = store.RemoveCartItem(ctx, db, cart.ID, product.ID)
	require.NoError(t, err)
	assert.Empty(t, cart.Items)
	assert.Equal(t, 0, cart.ItemCount)

	_, err = store.RemoveCartItem(ctx, db, cart.ID, product.ID)
	assert.ErrorIs(t, err, database.ErrCartItemNotFound)
}

func TestCancelOrderRestoresStock(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	user := mustCreateUser(t, db, "cancel@example.com")
	product := mustCreateProduct(t, db, "BOWL-1", 12, 10)

	order, err := store.CreateOrder(ctx, db, store.CreateOrderRequest{
		UserID: user.ID,
		Items:  []store.OrderItemRequest{{ProductID: product.ID, Quantity: 4}},
	})
	require.NoError(t, err)

	cancelled, err := store.CancelOrder(ctx, db, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, cancelled.Status)

	productAfter, err := store.GetProduct(ctx, db, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, productAfter.StockQuantity)

	_, err = store.CancelOrder(ctx, db, order.ID)
	assert.ErrorIs(t, err, database.ErrOrderNotCancellable)
}
