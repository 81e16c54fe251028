package httpserver

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sellista/marketplace/internal/auth"
	"github.com/sellista/marketplace/internal/handlers"
	"github.com/sellista/marketplace/internal/models"
)

type Deps struct {
	JWTSecret      []byte
	AuthHandler    *handlers.AuthHandler
	StoreHandler   *handlers.StoreHandler
	ProductHandler *handlers.ProductHandler
	CartHandler    *handlers.CartHandler
	OrderHandler   *handlers.OrderHandler
	SearchHandler  *handlers.SearchHandler
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(200) })
	e.GET("/health/ready", func(c echo.Context) error { return c.NoContent(200) })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api")

	api.POST("/auth/register", d.AuthHandler.Register)
	api.POST("/auth/login", d.AuthHandler.Login)

	api.GET("/products", d.ProductHandler.GetProducts)
	api.GET("/products/search", d.SearchHandler.Search)
	api.GET("/products/:id", d.ProductHandler.GetProduct)

	authed := api.Group("", auth.Middleware(d.JWTSecret))
	authed.GET("/auth/me", d.AuthHandler.Me)

	buyer := authed.Group("", auth.RequireRole(models.RoleBuyer))
	buyer.GET("/cart", d.CartHandler.GetCart)
	buyer.POST("/cart", d.CartHandler.AddToCart)
	buyer.PUT("/cart/:productId", d.CartHandler.UpdateCartItem)
	buyer.DELETE("/cart/:productId", d.CartHandler.RemoveFromCart)
	buyer.POST("/checkout", d.OrderHandler.Checkout)
	buyer.GET("/orders", d.OrderHandler.MyOrders)
	buyer.PUT("/orders/:id/cancel", d.OrderHandler.CancelOrder)

	seller := authed.Group("/seller", auth.RequireRole(models.RoleSeller))
	seller.GET("/store", d.StoreHandler.GetStore)
	seller.POST("/store", d.StoreHandler.SaveStore)
	seller.GET("/products", d.ProductHandler.SellerProducts)
	seller.POST("/products", d.ProductHandler.CreateProduct)
	seller.PUT("/products/:id", d.ProductHandler.UpdateProduct)
	seller.DELETE("/products/:id", d.ProductHandler.DeleteProduct)
	seller.GET("/orders", d.OrderHandler.SellerOrders)
	seller.PUT("/orders/:id/status", d.OrderHandler.UpdateOrderStatus)
}
