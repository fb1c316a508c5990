package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/safar/petplace/internal/database"
	"github.com/safar/petplace/internal/metrics"
	"github.com/safar/petplace/internal/models"
)

const orderColumns = `id, user_id, order_number, status, subtotal, total_amount, shipping_address, created_at, updated_at, version`

func scanOrder(row scanner, order *models.Order) error {
	return row.Scan(
		&order.ID,
		&order.UserID,
		&order.OrderNumber,
		&order.Status,
		&order.Subtotal,
		&order.TotalAmount,
		&order.ShippingAddress,
		&order.CreatedAt,
		&order.UpdatedAt,
		&order.Version,
	)
}

type CreateOrderRequest struct {
	UserID          int64
	ShippingAddress string
	Items           []OrderItemRequest
}

type OrderItemRequest struct {
	ProductID int64
	Quantity  int
	// UnitPrice overrides the live product price; carts pass their snapshot.
	UnitPrice *decimal.Decimal
}

func generateOrderNumber() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "ORD-" + strings.ToUpper(id[:12])
}

func orderTxOptions() database.TxOptions {
	return database.TxOptions{
		IsolationLevel: sql.LevelSerializable,
		MaxRetries:     3,
	}
}

// CreateOrder places an order for explicit items, checking and decrementing
// stock in the same transaction.
func CreateOrder(ctx context.Context, db *sql.DB, req CreateOrderRequest) (*models.Order, error) {
	if len(req.Items) == 0 {
		return nil, database.ErrEmptyCart
	}

	var orderID int64
	err := database.WithRetry(ctx, db, orderTxOptions(), func(tx *sql.Tx) error {
		var exists bool
		err := tx.QueryRowContext(ctx,
			"SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)",
			req.UserID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check user exists: %w", err)
		}
		if !exists {
			return database.ErrUserNotFound
		}

		orderID, err = placeOrderTx(ctx, tx, req)
		return err
	})
	if err != nil {
		return nil, err
	}

	metrics.OrdersCreated.Inc()
	return GetOrder(ctx, db, orderID)
}

// CreateOrderFromCart converts a cart into an order. Either the order, its
// items, the stock decrements and the emptied cart are all committed, or
// nothing is.
func CreateOrderFromCart(ctx context.Context, db *sql.DB, cartID int64, shippingAddress string) (*models.Order, error) {
	var orderID int64
	err := database.WithRetry(ctx, db, orderTxOptions(), func(tx *sql.Tx) error {
		if err := lockCart(ctx, tx, cartID); err != nil {
			return err
		}

		cart, err := GetCart(ctx, tx, cartID)
		if err != nil {
			return err
		}
		if len(cart.Items) == 0 {
			return database.ErrEmptyCart
		}

		req := CreateOrderRequest{UserID: cart.UserID, ShippingAddress: shippingAddress}
		for _, item := range cart.Items {
			price := item.UnitPrice
			req.Items = append(req.Items, OrderItemRequest{
				ProductID: item.ProductID,
				Quantity:  item.Quantity,
				UnitPrice: &price,
			})
		}

		orderID, err = placeOrderTx(ctx, tx, req)
		if err != nil {
			return err
		}

		_, err = clearCartTx(ctx, tx, cartID)
		return err
	})
	if err != nil {
		return nil, err
	}

	metrics.OrdersCreated.Inc()
	return GetOrder(ctx, db, orderID)
}

func placeOrderTx(ctx context.Context, tx *sql.Tx, req CreateOrderRequest) (int64, error) {
	items := make([]OrderItemRequest, len(req.Items))
	copy(items, req.Items)
	// Lock rows in a fixed order so concurrent orders cannot deadlock.
	sort.SliceStable(items, func(i, j int) bool { return items[i].ProductID < items[j].ProductID })

	subtotal := decimal.Zero
	products := make(map[int64]*models.Product, len(items))
	prices := make([]decimal.Decimal, len(items))

	for i, item := range items {
		if item.Quantity <= 0 {
			return 0, database.ErrInvalidQuantity
		}

		product, err := ReserveStock(ctx, tx, item.ProductID, item.Quantity)
		if err != nil {
			return 0, err
		}
		products[item.ProductID] = product

		prices[i] = product.Price
		if item.UnitPrice != nil {
			prices[i] = *item.UnitPrice
		}
		subtotal = subtotal.Add(models.LineTotal(prices[i], item.Quantity))
	}

	var orderID int64
	err := tx.QueryRowContext(ctx,
		`INSERT INTO orders (user_id, order_number, status, subtotal, total_amount, shipping_address, created_at, updated_at, version)
		 VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW(), 1)
		 RETURNING id`,
		req.UserID, generateOrderNumber(), models.OrderStatusPending, subtotal, subtotal, req.ShippingAddress).Scan(&orderID)
	if err != nil {
		return 0, fmt.Errorf("create order: %w", err)
	}

	for i, item := range items {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO order_items (order_id, product_id, product_name, quantity, unit_price, subtotal, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, NOW())`,
			orderID, item.ProductID, products[item.ProductID].Name, item.Quantity, prices[i], models.LineTotal(prices[i], item.Quantity))
		if err != nil {
			return 0, fmt.Errorf("create order item: %w", err)
		}
	}

	for _, item := range items {
		if err := DecrementStock(ctx, tx, item.ProductID, item.Quantity); err != nil {
			return 0, err
		}
	}

	return orderID, nil
}

func GetOrder(ctx context.Context, db database.Querier, id int64) (*models.Order, error) {
	order := &models.Order{}

	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	if err := scanOrder(db.QueryRowContext(ctx, query, id), order); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	items, err := listOrderItems(ctx, db, id)
	if err != nil {
		return nil, err
	}
	order.Items = items

	return order, nil
}

func listOrderItems(ctx context.Context, db database.Querier, orderID int64) ([]models.OrderItem, error) {
	itemsQuery := `
		SELECT id, order_id, product_id, product_name, quantity, unit_price, subtotal, created_at
		FROM order_items
		WHERE order_id = $1
		ORDER BY id`

	rows, err := db.QueryContext(ctx, itemsQuery, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order items: %w", err)
	}
	defer rows.Close()

	var items []models.OrderItem
	for rows.Next() {
		var item models.OrderItem
		err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.ProductID,
			&item.ProductName,
			&item.Quantity,
			&item.UnitPrice,
			&item.Subtotal,
			&item.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return items, nil
}

func ListOrdersCursor(ctx context.Context, db *sql.DB, userID int64, cursor string, limit int) (*CursorPage, error) {
	cursorData, err := DecodeCursor(cursor)
	if err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}

	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE user_id = $1
		  AND (created_at, id) < ($2, $3)
		ORDER BY created_at DESC, id DESC
		LIMIT $4`

	rows, err := db.QueryContext(ctx, query, userID, cursorData.CreatedAt, cursorData.ID, limit+1)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		var order models.Order
		if err := scanOrder(rows, &order); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	hasMore := len(orders) > limit
	if hasMore {
		orders = orders[:limit]
	}

	var nextCursor string
	if hasMore && len(orders) > 0 {
		lastOrder := orders[len(orders)-1]
		nextCursor = EncodeCursor(Cursor{
			CreatedAt: lastOrder.CreatedAt,
			ID:        lastOrder.ID,
		})
	}

	return &CursorPage{
		Items:      orders,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}

// CancelOrder cancels a pending order and puts its items back in stock.
func CancelOrder(ctx context.Context, db *sql.DB, orderID int64) (*models.Order, error) {
	err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		var status string
		err := tx.QueryRowContext(ctx,
			`SELECT status FROM orders WHERE id = $1 FOR UPDATE`, orderID).Scan(&status)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return database.ErrOrderNotFound
			}
			return fmt.Errorf("lock order: %w", err)
		}
		if status != models.OrderStatusPending {
			return database.ErrOrderNotCancellable
		}

		items, err := listOrderItems(ctx, tx, orderID)
		if err != nil {
			return err
		}
		for _, item := range items {
			if err := IncrementStock(ctx, tx, item.ProductID, item.Quantity); err != nil {
				return err
			}
		}

		return setOrderStatus(ctx, tx, orderID, models.OrderStatusCancelled)
	})
	if err != nil {
		return nil, err
	}

	return GetOrder(ctx, db, orderID)
}

func setOrderStatus(ctx context.Context, tx *sql.Tx, orderID int64, status string) error {
	result, err := tx.ExecContext(ctx,
		`UPDATE orders SET status = $1, updated_at = NOW(), version = version + 1 WHERE id = $2`,
		status, orderID)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return database.ErrOrderNotFound
	}
	return nil
}
