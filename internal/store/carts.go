package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/safar/petplace/internal/database"
	"github.com/safar/petplace/internal/models"
)

// GetOrCreateCart returns the user's cart, creating an empty one on first use.
func GetOrCreateCart(ctx context.Context, db *sql.DB, userID int64) (*models.Cart, error) {
	_, err := db.ExecContext(ctx,
		`INSERT INTO carts (user_id, subtotal, total, item_count, created_at, updated_at)
		 VALUES ($1, 0, 0, 0, NOW(), NOW())
		 ON CONFLICT (user_id) DO NOTHING`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("create cart: %w", err)
	}

	var cartID int64
	err = db.QueryRowContext(ctx, `SELECT id FROM carts WHERE user_id = $1`, userID).Scan(&cartID)
	if err != nil {
		return nil, fmt.Errorf("find cart: %w", err)
	}

	return GetCart(ctx, db, cartID)
}

func GetCart(ctx context.Context, db database.Querier, cartID int64) (*models.Cart, error) {
	cart := &models.Cart{}

	err := db.QueryRowContext(ctx,
		`SELECT id, user_id, subtotal, total, item_count, created_at, updated_at
		 FROM carts WHERE id = $1`,
		cartID).Scan(
		&cart.ID,
		&cart.UserID,
		&cart.Subtotal,
		&cart.Total,
		&cart.ItemCount,
		&cart.CreatedAt,
		&cart.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrCartNotFound
		}
		return nil, fmt.Errorf("get cart: %w", err)
	}

	items, err := listCartItems(ctx, db, cartID)
	if err != nil {
		return nil, err
	}
	cart.Items = items

	return cart, nil
}

func listCartItems(ctx context.Context, db database.Querier, cartID int64) ([]models.CartItem, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, cart_id, product_id, quantity, unit_price, total, created_at, updated_at
		 FROM cart_items
		 WHERE cart_id = $1
		 ORDER BY product_id`,
		cartID)
	if err != nil {
		return nil, fmt.Errorf("list cart items: %w", err)
	}
	defer rows.Close()

	var items []models.CartItem
	for rows.Next() {
		var item models.CartItem
		err := rows.Scan(
			&item.ID,
			&item.CartID,
			&item.ProductID,
			&item.Quantity,
			&item.UnitPrice,
			&item.Total,
			&item.CreatedAt,
			&item.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return items, nil
}

// lockCart serializes mutations of one cart for the rest of tx.
func lockCart(ctx context.Context, tx *sql.Tx, cartID int64) error {
	var id int64
	err := tx.QueryRowContext(ctx, `SELECT id FROM carts WHERE id = $1 FOR UPDATE`, cartID).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return database.ErrCartNotFound
		}
		return fmt.Errorf("lock cart: %w", err)
	}
	return nil
}

// recalculateCart rewrites the cart totals from its current items.
func recalculateCart(ctx context.Context, tx *sql.Tx, cartID int64) (*models.Cart, error) {
	items, err := listCartItems(ctx, tx, cartID)
	if err != nil {
		return nil, err
	}

	cart := &models.Cart{ID: cartID, Items: items}
	cart.Recalculate()

	err = tx.QueryRowContext(ctx,
		`UPDATE carts
		 SET subtotal = $1, total = $2, item_count = $3, updated_at = NOW()
		 WHERE id = $4
		 RETURNING user_id, created_at, updated_at`,
		cart.Subtotal, cart.Total, cart.ItemCount, cartID).Scan(&cart.UserID, &cart.CreatedAt, &cart.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("update cart totals: %w", err)
	}

	return cart, nil
}

// AddCartItem adds quantity units of a product, merging with an existing line.
// The line is repriced at the current product price.
func AddCartItem(ctx context.Context, db *sql.DB, cartID, productID int64, quantity int) (*models.Cart, error) {
	if quantity <= 0 {
		return nil, database.ErrInvalidQuantity
	}

	var cart *models.Cart
	err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		if err := lockCart(ctx, tx, cartID); err != nil {
			return err
		}

		var existing int
		err := tx.QueryRowContext(ctx,
			`SELECT quantity FROM cart_items WHERE cart_id = $1 AND product_id = $2`,
			cartID, productID).Scan(&existing)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("get cart item: %w", err)
		}

		product, err := GetProduct(ctx, tx, productID)
		if err != nil {
			return err
		}

		newQuantity := existing + quantity
		if product.StockQuantity < newQuantity {
			return &database.OutOfStockError{
				ProductID: product.ID,
				Name:      product.Name,
				Requested: newQuantity,
				Available: product.StockQuantity,
			}
		}

		if err := upsertCartItem(ctx, tx, cartID, product, newQuantity); err != nil {
			return err
		}

		cart, err = recalculateCart(ctx, tx, cartID)
		return err
	})
	if err != nil {
		return nil, err
	}

	return cart, nil
}

func upsertCartItem(ctx context.Context, tx *sql.Tx, cartID int64, product *models.Product, quantity int) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO cart_items (cart_id, product_id, quantity, unit_price, total, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		 ON CONFLICT (cart_id, product_id) DO UPDATE
		 SET quantity = EXCLUDED.quantity,
		     unit_price = EXCLUDED.unit_price,
		     total = EXCLUDED.total,
		     updated_at = NOW()`,
		cartID, product.ID, quantity, product.Price, models.LineTotal(product.Price, quantity))
	if err != nil {
		return fmt.Errorf("upsert cart item: %w", err)
	}
	return nil
}

// UpdateCartItemQuantity sets a line to an absolute quantity; zero removes it.
func UpdateCartItemQuantity(ctx context.Context, db *sql.DB, cartID, productID int64, quantity int) (*models.Cart, error) {
	if quantity < 0 {
		return nil, database.ErrInvalidQuantity
	}
	if quantity == 0 {
		return RemoveCartItem(ctx, db, cartID, productID)
	}

	var cart *models.Cart
	err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		if err := lockCart(ctx, tx, cartID); err != nil {
			return err
		}

		var exists bool
		err := tx.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM cart_items WHERE cart_id = $1 AND product_id = $2)`,
			cartID, productID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check cart item: %w", err)
		}
		if !exists {
			return database.ErrCartItemNotFound
		}

		product, err := GetProduct(ctx, tx, productID)
		if err != nil {
			return err
		}
		if product.StockQuantity < quantity {
			return &database.OutOfStockError{
				ProductID: product.ID,
				Name:      product.Name,
				Requested: quantity,
				Available: product.StockQuantity,
			}
		}

		if err := upsertCartItem(ctx, tx, cartID, product, quantity); err != nil {
			return err
		}

		cart, err = recalculateCart(ctx, tx, cartID)
		return err
	})
	if err != nil {
		return nil, err
	}

	return cart, nil
}

func RemoveCartItem(ctx context.Context, db *sql.DB, cartID, productID int64) (*models.Cart, error) {
	var cart *models.Cart
	err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		if err := lockCart(ctx, tx, cartID); err != nil {
			return err
		}

		result, err := tx.ExecContext(ctx,
			`DELETE FROM cart_items WHERE cart_id = $1 AND product_id = $2`,
			cartID, productID)
		if err != nil {
			return fmt.Errorf("delete cart item: %w", err)
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("get rows affected: %w", err)
		}
		if rowsAffected == 0 {
			return database.ErrCartItemNotFound
		}

		cart, err = recalculateCart(ctx, tx, cartID)
		return err
	})
	if err != nil {
		return nil, err
	}

	return cart, nil
}

func ClearCart(ctx context.Context, db *sql.DB, cartID int64) (*models.Cart, error) {
	var cart *models.Cart
	err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		if err := lockCart(ctx, tx, cartID); err != nil {
			return err
		}

		var err error
		cart, err = clearCartTx(ctx, tx, cartID)
		return err
	})
	if err != nil {
		return nil, err
	}

	return cart, nil
}

func clearCartTx(ctx context.Context, tx *sql.Tx, cartID int64) (*models.Cart, error) {
	if _, err := tx.ExecContext(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cartID); err != nil {
		return nil, fmt.Errorf("clear cart: %w", err)
	}
	return recalculateCart(ctx, tx, cartID)
}
