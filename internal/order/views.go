package order

import (
	"context"
	"time"

	"github.com/sellista/marketplace/internal/auth"
	"github.com/sellista/marketplace/internal/models"
)

// LineView is one order line joined with product and store display data.
// Price is the captured price, not the product's current one.
type LineView struct {
	ProductID   uint    `json:"product_id"`
	ProductName string  `json:"product_name"`
	ImageURL    string  `json:"image_url"`
	StoreName   string  `json:"store_name"`
	SellerID    uint    `json:"seller_id"`
	Quantity    uint    `json:"quantity"`
	Price       float64 `json:"price"`
	Subtotal    float64 `json:"subtotal"`
}

type BuyerOrderView struct {
	ID              uint       `json:"id"`
	TotalAmount     float64    `json:"total_amount"`
	Status          string     `json:"status"`
	ShippingAddress string     `json:"shipping_address"`
	CreatedAt       time.Time  `json:"created_at"`
	Items           []LineView `json:"items"`
}

// SellerOrderView scopes an order to one seller: only their lines appear and
// SellerTotal sums only those lines, not the buyer's full order total.
type SellerOrderView struct {
	ID              uint       `json:"id"`
	Status          string     `json:"status"`
	ShippingAddress string     `json:"shipping_address"`
	CreatedAt       time.Time  `json:"created_at"`
	BuyerName       string     `json:"buyer_name"`
	BuyerEmail      string     `json:"buyer_email"`
	SellerTotal     float64    `json:"seller_total"`
	Items           []LineView `json:"items"`
}

type lineRow struct {
	OrderID     uint
	ProductID   uint
	ProductName string
	ImageURL    string
	StoreName   string
	SellerID    uint
	Quantity    uint
	Price       float64
}

func (r lineRow) view() LineView {
	return LineView{
		ProductID:   r.ProductID,
		ProductName: r.ProductName,
		ImageURL:    r.ImageURL,
		StoreName:   r.StoreName,
		SellerID:    r.SellerID,
		Quantity:    r.Quantity,
		Price:       r.Price,
		Subtotal:    r.Price * float64(r.Quantity),
	}
}

// BuyerOrders returns the buyer's own orders, newest first, with all lines.
func (l *Ledger) BuyerOrders(ctx context.Context, ident auth.Identity) ([]BuyerOrderView, error) {
	if !ident.IsBuyer() {
		return nil, ErrForbidden
	}

	var orders []models.Order
	if err := l.DB.WithContext(ctx).
		Where("buyer_id = ?", ident.UserID).
		Order("created_at DESC, id DESC").
		Find(&orders).Error; err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return []BuyerOrderView{}, nil
	}

	ids := make([]uint, 0, len(orders))
	for _, o := range orders {
		ids = append(ids, o.ID)
	}

	rows, err := l.lineRows(ctx, ids, 0)
	if err != nil {
		return nil, err
	}

	byOrder := make(map[uint][]LineView, len(orders))
	for _, r := range rows {
		byOrder[r.OrderID] = append(byOrder[r.OrderID], r.view())
	}

	views := make([]BuyerOrderView, 0, len(orders))
	for _, o := range orders {
		items := byOrder[o.ID]
		if items == nil {
			items = []LineView{}
		}
		views = append(views, BuyerOrderView{
			ID:              o.ID,
			TotalAmount:     o.TotalAmount,
			Status:          o.Status,
			ShippingAddress: o.ShippingAddress,
			CreatedAt:       o.CreatedAt,
			Items:           items,
		})
	}
	return views, nil
}

// SellerOrders returns every order containing at least one of the seller's
// lines, scoped to just those lines.
func (l *Ledger) SellerOrders(ctx context.Context, ident auth.Identity) ([]SellerOrderView, error) {
	if !ident.IsSeller() {
		return nil, ErrForbidden
	}

	type headerRow struct {
		ID              uint
		Status          string
		ShippingAddress string
		CreatedAt       time.Time
		BuyerName       string
		BuyerEmail      string
	}

	var headers []headerRow
	if err := l.DB.WithContext(ctx).
		Table("orders").
		Select("DISTINCT orders.id, orders.status, orders.shipping_address, orders.created_at, users.full_name AS buyer_name, users.email AS buyer_email").
		Joins("JOIN order_items ON order_items.order_id = orders.id").
		Joins("JOIN users ON users.id = orders.buyer_id").
		Where("order_items.seller_id = ?", ident.UserID).
		Order("orders.created_at DESC, orders.id DESC").
		Scan(&headers).Error; err != nil {
		return nil, err
	}
	if len(headers) == 0 {
		return []SellerOrderView{}, nil
	}

	ids := make([]uint, 0, len(headers))
	for _, h := range headers {
		ids = append(ids, h.ID)
	}

	rows, err := l.lineRows(ctx, ids, ident.UserID)
	if err != nil {
		return nil, err
	}

	byOrder := make(map[uint][]LineView, len(headers))
	totals := make(map[uint]float64, len(headers))
	for _, r := range rows {
		v := r.view()
		byOrder[r.OrderID] = append(byOrder[r.OrderID], v)
		totals[r.OrderID] += v.Subtotal
	}

	views := make([]SellerOrderView, 0, len(headers))
	for _, h := range headers {
		items := byOrder[h.ID]
		if items == nil {
			items = []LineView{}
		}
		views = append(views, SellerOrderView{
			ID:              h.ID,
			Status:          h.Status,
			ShippingAddress: h.ShippingAddress,
			CreatedAt:       h.CreatedAt,
			BuyerName:       h.BuyerName,
			BuyerEmail:      h.BuyerEmail,
			SellerTotal:     totals[h.ID],
			Items:           items,
		})
	}
	return views, nil
}

// lineRows loads order lines joined with product/store display data. A zero
// sellerID means no seller scoping. LEFT JOINs keep lines visible after a
// product is deleted.
func (l *Ledger) lineRows(ctx context.Context, orderIDs []uint, sellerID uint) ([]lineRow, error) {
	q := l.DB.WithContext(ctx).
		Table("order_items").
		Select("order_items.order_id, order_items.product_id, order_items.seller_id, order_items.quantity, order_items.price, products.name AS product_name, products.image_url, stores.store_name").
		Joins("LEFT JOIN products ON products.id = order_items.product_id").
		Joins("LEFT JOIN stores ON stores.id = products.store_id").
		Where("order_items.order_id IN ?", orderIDs).
		Order("order_items.id ASC")
	if sellerID != 0 {
		q = q.Where("order_items.seller_id = ?", sellerID)
	}

	var rows []lineRow
	if err := q.Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
