package models

import (
	"time"
)

const (
	RoleBuyer  = "buyer"
	RoleSeller = "seller"
)

type User struct {
	ID           uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Email        string    `gorm:"unique;not null"          json:"email"`
	PasswordHash string    `gorm:"not null"                 json:"-"`
	Role         string    `gorm:"not null"                 json:"role"`
	FullName     string    `gorm:"not null"                 json:"full_name"`
	CreatedAt    time.Time `json:"created_at"`
}

// Store is 1:1 with its seller and is created lazily on first save.
type Store struct {
	ID          uint      `gorm:"primaryKey;autoIncrement"   json:"id"`
	SellerID    uint      `gorm:"uniqueIndex;not null"       json:"seller_id"`
	Name        string    `gorm:"column:store_name;not null" json:"store_name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

type Product struct {
	ID            uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	SellerID      uint      `gorm:"index;not null"           json:"seller_id"`
	StoreID       uint      `gorm:"index;not null"           json:"store_id"`
	Name          string    `gorm:"not null"                 json:"name"`
	Description   string    `json:"description"`
	Price         float64   `gorm:"not null"                 json:"price"`
	StockQuantity uint      `gorm:"not null;default:0"       json:"stock_quantity"`
	ImageURL      string    `json:"image_url"`
	CreatedAt     time.Time `json:"created_at"`
}

type CartItem struct {
	ID        uint      `gorm:"primaryKey"                                  json:"id"`
	BuyerID   uint      `gorm:"not null;uniqueIndex:idx_cart_buyer_product" json:"buyer_id"`
	ProductID uint      `gorm:"not null;uniqueIndex:idx_cart_buyer_product" json:"product_id"`
	Quantity  uint      `gorm:"default:1;check:quantity>0"                  json:"quantity"`
	AddedAt   time.Time `gorm:"autoCreateTime"                              json:"added_at"`
}

type Order struct {
	ID              uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	BuyerID         uint      `gorm:"index;not null"           json:"buyer_id"`
	TotalAmount     float64   `gorm:"not null"                 json:"total_amount"`
	Status          string    `gorm:"not null;default:pending" json:"status"`
	ShippingAddress string    `gorm:"not null"                 json:"shipping_address"`
	CreatedAt       time.Time `json:"created_at"`
}

// OrderItem copies price and seller id at checkout time so later product
// edits never alter historical orders.
type OrderItem struct {
	ID        uint    `gorm:"primaryKey"     json:"id"`
	OrderID   uint    `gorm:"index;not null" json:"order_id"`
	ProductID uint    `gorm:"not null"       json:"product_id"`
	SellerID  uint    `gorm:"index;not null" json:"seller_id"`
	Quantity  uint    `gorm:"not null"       json:"quantity"`
	Price     float64 `gorm:"not null"       json:"price"`
}
