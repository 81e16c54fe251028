package order

import (
	"context"
	"errors"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/sellista/marketplace/internal/auth"
	"github.com/sellista/marketplace/internal/config"
	"github.com/sellista/marketplace/internal/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, config.Migrate(db))
	return db
}

func createUser(t *testing.T, db *gorm.DB, role string) models.User {
	t.Helper()
	user := models.User{
		Email:        role + "@example.com",
		PasswordHash: "x",
		Role:         role,
		FullName:     "Test " + role,
	}
	require.NoError(t, db.Create(&user).Error)
	return user
}

func identity(u models.User) auth.Identity {
	return auth.Identity{UserID: u.ID, Role: u.Role, Email: u.Email}
}

func createProduct(t *testing.T, db *gorm.DB, seller models.User, price float64, stock uint) models.Product {
	t.Helper()
	var store models.Store
	if err := db.Where("seller_id = ?", seller.ID).First(&store).Error; errors.Is(err, gorm.ErrRecordNotFound) {
		store = models.Store{SellerID: seller.ID, Name: "Store of " + seller.FullName}
		require.NoError(t, db.Create(&store).Error)
	}
	p := models.Product{
		SellerID:      seller.ID,
		StoreID:       store.ID,
		Name:          "Widget",
		Price:         price,
		StockQuantity: stock,
	}
	require.NoError(t, db.Create(&p).Error)
	return p
}

func addToCart(t *testing.T, db *gorm.DB, buyer models.User, p models.Product, qty uint) {
	t.Helper()
	require.NoError(t, db.Create(&models.CartItem{BuyerID: buyer.ID, ProductID: p.ID, Quantity: qty}).Error)
}

func stockOf(t *testing.T, db *gorm.DB, productID uint) uint {
	t.Helper()
	var p models.Product
	require.NoError(t, db.First(&p, productID).Error)
	return p.StockQuantity
}

func countRows(t *testing.T, db *gorm.DB, model interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(model).Count(&n).Error)
	return n
}

func TestCheckout_Success(t *testing.T) {
	db := newTestDB(t)
	ledger := NewLedger(db)
	ctx := context.Background()

	seller := createUser(t, db, models.RoleSeller)
	buyer := createUser(t, db, models.RoleBuyer)
	product := createProduct(t, db, seller, 10.00, 5)
	addToCart(t, db, buyer, product, 2)

	ord, lines, err := ledger.Checkout(ctx, identity(buyer), "123 St")
	require.NoError(t, err)
	require.Equal(t, StatusPending, ord.Status)
	require.Equal(t, 20.00, ord.TotalAmount)
	require.Equal(t, "123 St", ord.ShippingAddress)
	require.Equal(t, buyer.ID, ord.BuyerID)

	require.Len(t, lines, 1)
	require.Equal(t, product.ID, lines[0].ProductID)
	require.Equal(t, seller.ID, lines[0].SellerID)
	require.Equal(t, uint(2), lines[0].Quantity)
	require.Equal(t, 10.00, lines[0].Price)

	require.Equal(t, uint(3), stockOf(t, db, product.ID))
	require.Zero(t, countRows(t, db, &models.CartItem{}))
}

func TestCheckout_InsufficientStock(t *testing.T) {
	db := newTestDB(t)
	ledger := NewLedger(db)
	ctx := context.Background()

	seller := createUser(t, db, models.RoleSeller)
	buyer := createUser(t, db, models.RoleBuyer)
	product := createProduct(t, db, seller, 10.00, 3)
	addToCart(t, db, buyer, product, 5)

	_, _, err := ledger.Checkout(ctx, identity(buyer), "123 St")

	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	require.Equal(t, product.ID, stockErr.ProductID)
	require.Equal(t, uint(5), stockErr.Requested)
	require.Equal(t, uint(3), stockErr.Available)

	require.Equal(t, uint(3), stockOf(t, db, product.ID))
	require.Zero(t, countRows(t, db, &models.Order{}))
	require.Zero(t, countRows(t, db, &models.OrderItem{}))
	require.EqualValues(t, 1, countRows(t, db, &models.CartItem{}))
}

func TestCheckout_EmptyCart(t *testing.T) {
	db := newTestDB(t)
	ledger := NewLedger(db)

	buyer := createUser(t, db, models.RoleBuyer)

	_, _, err := ledger.Checkout(context.Background(), identity(buyer), "123 St")
	require.ErrorIs(t, err, ErrEmptyCart)
}

func TestCheckout_BlankAddress(t *testing.T) {
	db := newTestDB(t)
	ledger := NewLedger(db)

	buyer := createUser(t, db, models.RoleBuyer)

	_, _, err := ledger.Checkout(context.Background(), identity(buyer), "   ")
	require.ErrorIs(t, err, ErrAddressRequired)
}

func TestCheckout_SellerForbidden(t *testing.T) {
	db := newTestDB(t)
	ledger := NewLedger(db)

	seller := createUser(t, db, models.RoleSeller)

	_, _, err := ledger.Checkout(context.Background(), identity(seller), "123 St")
	require.ErrorIs(t, err, ErrForbidden)
}

func TestCheckout_MultipleSellers(t *testing.T) {
	db := newTestDB(t)
	ledger := NewLedger(db)
	ctx := context.Background()

	sellerA := createUser(t, db, models.RoleSeller)
	sellerB := models.User{Email: "seller-b@example.com", PasswordHash: "x", Role: models.RoleSeller, FullName: "Seller B"}
	require.NoError(t, db.Create(&sellerB).Error)

	buyer := createUser(t, db, models.RoleBuyer)
	prodA := createProduct(t, db, sellerA, 5.00, 10)
	prodB := createProduct(t, db, sellerB, 7.50, 10)
	addToCart(t, db, buyer, prodA, 2)
	addToCart(t, db, buyer, prodB, 4)

	ord, lines, err := ledger.Checkout(ctx, identity(buyer), "123 St")
	require.NoError(t, err)
	require.Equal(t, 40.00, ord.TotalAmount)
	require.Len(t, lines, 2)

	sellersSeen := map[uint]bool{}
	for _, line := range lines {
		sellersSeen[line.SellerID] = true
	}
	require.True(t, sellersSeen[sellerA.ID])
	require.True(t, sellersSeen[sellerB.ID])
}

// A concurrent checkout can consume stock between the pre-check and the
// decrement. Simulate the lost race by zeroing the stock right after the
// order row is created and verify the whole attempt rolls back.
func TestCheckout_LostStockRace_RollsBack(t *testing.T) {
	db := newTestDB(t)
	ledger := NewLedger(db)
	ctx := context.Background()

	seller := createUser(t, db, models.RoleSeller)
	buyer := createUser(t, db, models.RoleBuyer)
	product := createProduct(t, db, seller, 10.00, 5)
	addToCart(t, db, buyer, product, 2)

	sabotage := true
	err := db.Callback().Create().After("gorm:create").Register("test:steal_stock", func(d *gorm.DB) {
		if !sabotage || d.Statement == nil || d.Statement.Table != "orders" {
			return
		}
		sabotage = false
		d.Session(&gorm.Session{NewDB: true}).
			Exec("UPDATE products SET stock_quantity = 0 WHERE id = ?", product.ID)
	})
	require.NoError(t, err)

	_, _, err = ledger.Checkout(ctx, identity(buyer), "123 St")

	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	require.Equal(t, product.ID, stockErr.ProductID)

	// Rollback undid the simulated concurrent write too, so the counter is
	// whatever the other transaction would have committed; the point is that
	// nothing from this attempt persisted.
	require.Zero(t, countRows(t, db, &models.Order{}))
	require.Zero(t, countRows(t, db, &models.OrderItem{}))
	require.EqualValues(t, 1, countRows(t, db, &models.CartItem{}))
}

func TestCheckout_TotalSurvivesPriceChange(t *testing.T) {
	db := newTestDB(t)
	ledger := NewLedger(db)
	ctx := context.Background()

	seller := createUser(t, db, models.RoleSeller)
	buyer := createUser(t, db, models.RoleBuyer)
	product := createProduct(t, db, seller, 10.00, 5)
	addToCart(t, db, buyer, product, 2)

	ord, _, err := ledger.Checkout(ctx, identity(buyer), "123 St")
	require.NoError(t, err)

	require.NoError(t, db.Model(&models.Product{}).Where("id = ?", product.ID).Update("price", 99.99).Error)

	var stored models.Order
	require.NoError(t, db.First(&stored, ord.ID).Error)
	require.Equal(t, 20.00, stored.TotalAmount)

	var line models.OrderItem
	require.NoError(t, db.Where("order_id = ?", ord.ID).First(&line).Error)
	require.Equal(t, 10.00, line.Price)
}

func TestCancel_RestoresStock(t *testing.T) {
	db := newTestDB(t)
	ledger := NewLedger(db)
	ctx := context.Background()

	seller := createUser(t, db, models.RoleSeller)
	buyer := createUser(t, db, models.RoleBuyer)
	product := createProduct(t, db, seller, 10.00, 5)
	addToCart(t, db, buyer, product, 2)

	ord, _, err := ledger.Checkout(ctx, identity(buyer), "123 St")
	require.NoError(t, err)
	require.Equal(t, uint(3), stockOf(t, db, product.ID))

	cancelled, err := ledger.Cancel(ctx, identity(buyer), ord.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, cancelled.Status)
	require.Equal(t, uint(5), stockOf(t, db, product.ID))
}

func TestCancel_TwiceFails(t *testing.T) {
	db := newTestDB(t)
	ledger := NewLedger(db)
	ctx := context.Background()

	seller := createUser(t, db, models.RoleSeller)
	buyer := createUser(t, db, models.RoleBuyer)
	product := createProduct(t, db, seller, 10.00, 5)
	addToCart(t, db, buyer, product, 2)

	ord, _, err := ledger.Checkout(ctx, identity(buyer), "123 St")
	require.NoError(t, err)

	_, err = ledger.Cancel(ctx, identity(buyer), ord.ID)
	require.NoError(t, err)

	_, err = ledger.Cancel(ctx, identity(buyer), ord.ID)
	require.ErrorIs(t, err, ErrInvalidTransition)

	// Stock restored exactly once.
	require.Equal(t, uint(5), stockOf(t, db, product.ID))
}

func TestCancel_ShippedFails(t *testing.T) {
	db := newTestDB(t)
	ledger := NewLedger(db)
	ctx := context.Background()

	seller := createUser(t, db, models.RoleSeller)
	buyer := createUser(t, db, models.RoleBuyer)
	product := createProduct(t, db, seller, 10.00, 5)
	addToCart(t, db, buyer, product, 2)

	ord, _, err := ledger.Checkout(ctx, identity(buyer), "123 St")
	require.NoError(t, err)

	_, err = ledger.UpdateStatus(ctx, identity(seller), ord.ID, StatusShipped)
	require.NoError(t, err)

	_, err = ledger.Cancel(ctx, identity(buyer), ord.ID)
	require.ErrorIs(t, err, ErrInvalidTransition)

	var stored models.Order
	require.NoError(t, db.First(&stored, ord.ID).Error)
	require.Equal(t, StatusShipped, stored.Status)
	require.Equal(t, uint(3), stockOf(t, db, product.ID))
}

func TestCancel_NotFound(t *testing.T) {
	db := newTestDB(t)
	ledger := NewLedger(db)

	buyer := createUser(t, db, models.RoleBuyer)

	_, err := ledger.Cancel(context.Background(), identity(buyer), 42)
	require.ErrorIs(t, err, ErrOrderNotFound)
}

func TestCancel_OtherBuyersOrder(t *testing.T) {
	db := newTestDB(t)
	ledger := NewLedger(db)
	ctx := context.Background()

	seller := createUser(t, db, models.RoleSeller)
	buyer := createUser(t, db, models.RoleBuyer)
	other := models.User{Email: "other@example.com", PasswordHash: "x", Role: models.RoleBuyer, FullName: "Other"}
	require.NoError(t, db.Create(&other).Error)

	product := createProduct(t, db, seller, 10.00, 5)
	addToCart(t, db, buyer, product, 2)

	ord, _, err := ledger.Checkout(ctx, identity(buyer), "123 St")
	require.NoError(t, err)

	_, err = ledger.Cancel(ctx, identity(other), ord.ID)
	require.ErrorIs(t, err, ErrOrderNotFound)
}

func TestUpdateStatus_Lifecycle(t *testing.T) {
	db := newTestDB(t)
	ledger := NewLedger(db)
	ctx := context.Background()

	seller := createUser(t, db, models.RoleSeller)
	buyer := createUser(t, db, models.RoleBuyer)
	product := createProduct(t, db, seller, 10.00, 5)
	addToCart(t, db, buyer, product, 2)

	ord, _, err := ledger.Checkout(ctx, identity(buyer), "123 St")
	require.NoError(t, err)

	updated, err := ledger.UpdateStatus(ctx, identity(seller), ord.ID, StatusShipped)
	require.NoError(t, err)
	require.Equal(t, StatusShipped, updated.Status)

	updated, err = ledger.UpdateStatus(ctx, identity(seller), ord.ID, StatusDelivered)
	require.NoError(t, err)
	require.Equal(t, StatusDelivered, updated.Status)

	// Backward moves are rejected.
	_, err = ledger.UpdateStatus(ctx, identity(seller), ord.ID, StatusPending)
	require.ErrorIs(t, err, ErrInvalidTransition)
	_, err = ledger.UpdateStatus(ctx, identity(seller), ord.ID, StatusShipped)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestUpdateStatus_BackwardFromShipped(t *testing.T) {
	db := newTestDB(t)
	ledger := NewLedger(db)
	ctx := context.Background()

	seller := createUser(t, db, models.RoleSeller)
	buyer := createUser(t, db, models.RoleBuyer)
	product := createProduct(t, db, seller, 10.00, 5)
	addToCart(t, db, buyer, product, 2)

	ord, _, err := ledger.Checkout(ctx, identity(buyer), "123 St")
	require.NoError(t, err)

	_, err = ledger.UpdateStatus(ctx, identity(seller), ord.ID, StatusShipped)
	require.NoError(t, err)

	_, err = ledger.UpdateStatus(ctx, identity(seller), ord.ID, StatusPending)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestUpdateStatus_InvalidVocabulary(t *testing.T) {
	db := newTestDB(t)
	ledger := NewLedger(db)

	seller := createUser(t, db, models.RoleSeller)

	_, err := ledger.UpdateStatus(context.Background(), identity(seller), 1, "refunded")
	require.ErrorIs(t, err, ErrInvalidStatus)
}

func TestUpdateStatus_ForeignSeller(t *testing.T) {
	db := newTestDB(t)
	ledger := NewLedger(db)
	ctx := context.Background()

	seller := createUser(t, db, models.RoleSeller)
	intruder := models.User{Email: "intruder@example.com", PasswordHash: "x", Role: models.RoleSeller, FullName: "Intruder"}
	require.NoError(t, db.Create(&intruder).Error)

	buyer := createUser(t, db, models.RoleBuyer)
	product := createProduct(t, db, seller, 10.00, 5)
	addToCart(t, db, buyer, product, 2)

	ord, _, err := ledger.Checkout(ctx, identity(buyer), "123 St")
	require.NoError(t, err)

	_, err = ledger.UpdateStatus(ctx, identity(intruder), ord.ID, StatusShipped)
	require.ErrorIs(t, err, ErrOrderNotFound)
}

func TestUpdateStatus_CancelRestoresStock(t *testing.T) {
	db := newTestDB(t)
	ledger := NewLedger(db)
	ctx := context.Background()

	seller := createUser(t, db, models.RoleSeller)
	buyer := createUser(t, db, models.RoleBuyer)
	product := createProduct(t, db, seller, 10.00, 5)
	addToCart(t, db, buyer, product, 2)

	ord, _, err := ledger.Checkout(ctx, identity(buyer), "123 St")
	require.NoError(t, err)
	require.Equal(t, uint(3), stockOf(t, db, product.ID))

	updated, err := ledger.UpdateStatus(ctx, identity(seller), ord.ID, StatusCancelled)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, updated.Status)
	require.Equal(t, uint(5), stockOf(t, db, product.ID))
}

func TestBuyerOrders_ScopedAndNested(t *testing.T) {
	db := newTestDB(t)
	ledger := NewLedger(db)
	ctx := context.Background()

	seller := createUser(t, db, models.RoleSeller)
	buyer := createUser(t, db, models.RoleBuyer)
	other := models.User{Email: "other@example.com", PasswordHash: "x", Role: models.RoleBuyer, FullName: "Other"}
	require.NoError(t, db.Create(&other).Error)

	product := createProduct(t, db, seller, 10.00, 10)
	addToCart(t, db, buyer, product, 2)
	addToCart(t, db, other, product, 1)

	mine, _, err := ledger.Checkout(ctx, identity(buyer), "123 St")
	require.NoError(t, err)
	_, _, err = ledger.Checkout(ctx, identity(other), "456 Ave")
	require.NoError(t, err)

	views, err := ledger.BuyerOrders(ctx, identity(buyer))
	require.NoError(t, err)
	require.Len(t, views, 1)
	require.Equal(t, mine.ID, views[0].ID)
	require.Equal(t, 20.00, views[0].TotalAmount)
	require.Len(t, views[0].Items, 1)
	require.Equal(t, "Widget", views[0].Items[0].ProductName)
	require.Equal(t, 20.00, views[0].Items[0].Subtotal)
	require.NotEmpty(t, views[0].Items[0].StoreName)
}

func TestSellerOrders_OnlyOwnLines(t *testing.T) {
	db := newTestDB(t)
	ledger := NewLedger(db)
	ctx := context.Background()

	sellerA := createUser(t, db, models.RoleSeller)
	sellerB := models.User{Email: "seller-b@example.com", PasswordHash: "x", Role: models.RoleSeller, FullName: "Seller B"}
	require.NoError(t, db.Create(&sellerB).Error)

	buyer := createUser(t, db, models.RoleBuyer)
	prodA := createProduct(t, db, sellerA, 5.00, 10)
	prodB := createProduct(t, db, sellerB, 7.50, 10)
	addToCart(t, db, buyer, prodA, 2)
	addToCart(t, db, buyer, prodB, 4)

	ord, _, err := ledger.Checkout(ctx, identity(buyer), "123 St")
	require.NoError(t, err)

	views, err := ledger.SellerOrders(ctx, identity(sellerA))
	require.NoError(t, err)
	require.Len(t, views, 1)
	require.Equal(t, ord.ID, views[0].ID)
	require.Equal(t, buyer.Email, views[0].BuyerEmail)
	require.Len(t, views[0].Items, 1)
	require.Equal(t, prodA.ID, views[0].Items[0].ProductID)
	// The seller sees the sum of their lines, not the buyer's order total.
	require.Equal(t, 10.00, views[0].SellerTotal)
}

func TestSellerOrders_EmptyForUninvolvedSeller(t *testing.T) {
	db := newTestDB(t)
	ledger := NewLedger(db)

	seller := createUser(t, db, models.RoleSeller)

	views, err := ledger.SellerOrders(context.Background(), identity(seller))
	require.NoError(t, err)
	require.Empty(t, views)
}

func TestViews_RoleChecks(t *testing.T) {
	db := newTestDB(t)
	ledger := NewLedger(db)
	ctx := context.Background()

	seller := createUser(t, db, models.RoleSeller)
	buyer := createUser(t, db, models.RoleBuyer)

	_, err := ledger.BuyerOrders(ctx, identity(seller))
	require.ErrorIs(t, err, ErrForbidden)

	_, err = ledger.SellerOrders(ctx, identity(buyer))
	require.ErrorIs(t, err, ErrForbidden)

	_, err = ledger.UpdateStatus(ctx, identity(buyer), 1, StatusShipped)
	require.ErrorIs(t, err, ErrForbidden)

	_, err = ledger.Cancel(ctx, identity(seller), 1)
	require.ErrorIs(t, err, ErrForbidden)
}
