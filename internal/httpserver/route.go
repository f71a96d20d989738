package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"

	middleware "github.com/Skotchmaster/online_kart/pkg/middleware/auth"
)

type Deps struct {
	Auth    *AuthHTTP
	Catalog *CatalogHTTP
	Cart    *CartHTTP
	Orders  *OrderHTTP
	Health  *HealthHTTP

	JWTSecret []byte
	Metrics   http.Handler
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", d.Health.Live)
	e.GET("/health/ready", d.Health.Ready)
	if d.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(d.Metrics))
	}

	authMW := middleware.NewAuthMiddleware(d.JWTSecret)

	api := e.Group("/api")
	api.GET("/health", d.Health.Up)

	auth := api.Group("/auth")
	auth.POST("/register", d.Auth.Register)
	auth.POST("/login", d.Auth.Login)
	auth.GET("/me", d.Auth.Me, authMW.RequireAuth)
	auth.POST("/logout", d.Auth.Logout, authMW.RequireAuth)

	api.GET("/categories", d.Catalog.ListCategories)
	api.POST("/categories", d.Catalog.CreateCategory, authMW.RequireAdmin)
	api.PUT("/categories/:id", d.Catalog.UpdateCategory, authMW.RequireAdmin)
	api.PATCH("/categories/:id", d.Catalog.UpdateCategory, authMW.RequireAdmin)
	api.DELETE("/categories/:id", d.Catalog.DeleteCategory, authMW.RequireAdmin)

	products := api.Group("/products")
	products.GET("", d.Catalog.ListProducts)
	products.GET("/search", d.Catalog.SearchProducts)
	products.GET("/:id", d.Catalog.GetProduct)
	products.POST("", d.Catalog.CreateProduct, authMW.RequireAdmin)
	products.PUT("/:id", d.Catalog.ReplaceProduct, authMW.RequireAdmin)
	products.PATCH("/:id", d.Catalog.PatchProduct, authMW.RequireAdmin)
	products.DELETE("/:id", d.Catalog.DeleteProduct, authMW.RequireAdmin)
	products.POST("/:id/restock", d.Catalog.Restock, authMW.RequireAdmin)

	cart := api.Group("/cart")
	cart.Use(authMW.RequireAuth)
	cart.GET("", d.Cart.GetCart)
	cart.POST("/add_item", d.Cart.AddItem)
	cart.POST("/remove_item", d.Cart.RemoveItem)
	cart.POST("/clear", d.Cart.Clear)
	cart.POST("/checkout", d.Cart.Checkout)

	orders := api.Group("/orders")
	orders.Use(authMW.RequireAuth)
	orders.GET("", d.Orders.ListOrders)
	orders.GET("/:id", d.Orders.GetOrder)
}
