package order

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/sellista/marketplace/internal/auth"
	"github.com/sellista/marketplace/internal/models"
)

// Ledger owns the checkout/cancel/status lifecycle of orders. Every mutating
// operation runs as a single transaction: stock counters, order rows and cart
// rows either all change or none do. Concurrent checkouts on the same product
// are serialized by a guarded decrement (stock_quantity >= requested in the
// UPDATE's WHERE clause), so the stock counter can never go negative even
// when two requests pass the pre-check together.
type Ledger struct {
	DB *gorm.DB
}

func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{DB: db}
}

// Checkout converts the buyer's entire cart into one pending order, capturing
// each line's price and seller id, decrementing stock and clearing the cart.
func (l *Ledger) Checkout(ctx context.Context, ident auth.Identity, shippingAddress string) (*models.Order, []models.OrderItem, error) {
	if !ident.IsBuyer() {
		return nil, nil, ErrForbidden
	}
	shippingAddress = strings.TrimSpace(shippingAddress)
	if shippingAddress == "" {
		return nil, nil, ErrAddressRequired
	}

	var (
		order models.Order
		lines []models.OrderItem
	)

	txErr := l.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var items []models.CartItem
		if err := tx.Where("buyer_id = ?", ident.UserID).Order("product_id ASC").Find(&items).Error; err != nil {
			return err
		}
		if len(items) == 0 {
			return ErrEmptyCart
		}

		// Validate every line before any mutation so a failing line never
		// leaves a partially created order behind.
		products := make(map[uint]models.Product, len(items))
		var total float64
		for _, it := range items {
			var p models.Product
			if err := tx.First(&p, it.ProductID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrProductNotFound
				}
				return err
			}
			if p.StockQuantity < it.Quantity {
				return &InsufficientStockError{
					ProductID:   p.ID,
					ProductName: p.Name,
					Requested:   it.Quantity,
					Available:   p.StockQuantity,
				}
			}
			products[it.ProductID] = p
			total += p.Price * float64(it.Quantity)
		}

		order = models.Order{
			BuyerID:         ident.UserID,
			TotalAmount:     total,
			Status:          StatusPending,
			ShippingAddress: shippingAddress,
		}
		if err := tx.Create(&order).Error; err != nil {
			return err
		}

		lines = make([]models.OrderItem, 0, len(items))
		for _, it := range items {
			p := products[it.ProductID]
			line := models.OrderItem{
				OrderID:   order.ID,
				ProductID: p.ID,
				SellerID:  p.SellerID,
				Quantity:  it.Quantity,
				Price:     p.Price,
			}
			if err := tx.Create(&line).Error; err != nil {
				return err
			}
			lines = append(lines, line)

			res := tx.Model(&models.Product{}).
				Where("id = ? AND stock_quantity >= ?", p.ID, it.Quantity).
				UpdateColumn("stock_quantity", gorm.Expr("stock_quantity - ?", it.Quantity))
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				// A concurrent checkout won the race since the pre-check.
				var fresh models.Product
				if err := tx.First(&fresh, p.ID).Error; err == nil {
					p.StockQuantity = fresh.StockQuantity
				}
				return &InsufficientStockError{
					ProductID:   p.ID,
					ProductName: p.Name,
					Requested:   it.Quantity,
					Available:   p.StockQuantity,
				}
			}
		}

		return tx.Where("buyer_id = ?", ident.UserID).Delete(&models.CartItem{}).Error
	})
	if txErr != nil {
		return nil, nil, txErr
	}

	return &order, lines, nil
}

// Cancel sets a buyer's own pending order to cancelled and restores the stock
// consumed by its lines. A second cancel fails with ErrInvalidTransition.
func (l *Ledger) Cancel(ctx context.Context, ident auth.Identity, orderID uint) (*models.Order, error) {
	if !ident.IsBuyer() {
		return nil, ErrForbidden
	}

	var order models.Order

	txErr := l.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ? AND buyer_id = ?", orderID, ident.UserID).First(&order).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrOrderNotFound
			}
			return err
		}
		if order.Status != StatusPending {
			return ErrInvalidTransition
		}

		// Guarded write: only the transition from pending may restore stock,
		// so restoration happens at most once per order.
		res := tx.Model(&models.Order{}).
			Where("id = ? AND status = ?", order.ID, StatusPending).
			Update("status", StatusCancelled)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrInvalidTransition
		}
		order.Status = StatusCancelled

		return restoreStock(tx, order.ID)
	})
	if txErr != nil {
		return nil, txErr
	}

	return &order, nil
}

// UpdateStatus lets a seller move an order containing their lines through the
// status lifecycle. The status applies to the whole order, shared across all
// sellers whose products appear in it. A transition into cancelled restores
// stock just like a buyer cancellation.
func (l *Ledger) UpdateStatus(ctx context.Context, ident auth.Identity, orderID uint, newStatus string) (*models.Order, error) {
	if !ident.IsSeller() {
		return nil, ErrForbidden
	}
	if !ValidStatus(newStatus) {
		return nil, ErrInvalidStatus
	}

	var order models.Order

	txErr := l.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.OrderItem{}).
			Where("order_id = ? AND seller_id = ?", orderID, ident.UserID).
			Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrOrderNotFound
		}

		if err := tx.First(&order, orderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrOrderNotFound
			}
			return err
		}
		if !CanTransition(order.Status, newStatus) {
			return ErrInvalidTransition
		}

		res := tx.Model(&models.Order{}).
			Where("id = ? AND status = ?", order.ID, order.Status).
			Update("status", newStatus)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrInvalidTransition
		}
		order.Status = newStatus

		if newStatus == StatusCancelled {
			return restoreStock(tx, order.ID)
		}
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}

	return &order, nil
}

// restoreStock is the inverse of checkout's decrement: every line's quantity
// goes back onto its product. All lines or none, courtesy of the surrounding
// transaction.
func restoreStock(tx *gorm.DB, orderID uint) error {
	var lines []models.OrderItem
	if err := tx.Where("order_id = ?", orderID).Find(&lines).Error; err != nil {
		return err
	}
	for _, line := range lines {
		res := tx.Model(&models.Product{}).
			Where("id = ?", line.ProductID).
			UpdateColumn("stock_quantity", gorm.Expr("stock_quantity + ?", line.Quantity))
		if res.Error != nil {
			return res.Error
		}
	}
	return nil
}
