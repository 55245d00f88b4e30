package api

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"storefront/internal/config"
	"storefront/internal/entity"
)

const adminCookie = "admin_token"

type AdminClaims struct {
	Name string `json:"name"`
	jwt.RegisteredClaims
}

type AdminHandler struct {
	catalog Catalog
	orders  Orders
	admin   config.Admin
}

func NewAdminHandler(catalog Catalog, orders Orders, admin config.Admin) *AdminHandler {
	return &AdminHandler{catalog: catalog, orders: orders, admin: admin}
}

type productRequest struct {
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	ImageURL    string          `json:"image_url"`
	Stock       int             `json:"stock"`
	Description string          `json:"description"`
}

func (r productRequest) toProduct(id int64) *entity.Product {
	return &entity.Product{
		ID:          id,
		Name:        r.Name,
		Price:       r.Price,
		ImageURL:    r.ImageURL,
		Stock:       r.Stock,
		Description: r.Description,
	}
}

// Login issues an admin token --> POST /admin/login
func (h *AdminHandler) Login(c echo.Context) error {
	login := struct {
		Username string `json:"username" form:"username"`
		Password string `json:"password" form:"password"`
	}{}
	if err := c.Bind(&login); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request payload"})
	}

	userOK := subtle.ConstantTimeCompare([]byte(login.Username), []byte(h.admin.User)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(login.Password), []byte(h.admin.Password)) == 1
	if !userOK || !passOK {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
	}

	expires := time.Now().Add(h.admin.TokenTTL)
	claims := &AdminClaims{
		Name: login.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   login.Username,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(h.admin.JWTSecret))
	if err != nil {
		logger.Error().Err(err).Msg("Error signing admin token")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "could not issue token"})
	}

	c.SetCookie(&http.Cookie{
		Name:     adminCookie,
		Value:    token,
		Path:     "/admin",
		Expires:  expires,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
	return c.JSON(http.StatusOK, map[string]string{"token": token})
}

// ListProducts --> GET /admin/products
func (h *AdminHandler) ListProducts(c echo.Context) error {
	products, err := h.catalog.ListProducts(c.Request().Context())
	if err != nil {
		return c.JSON(statusOf(err), jsonError(err))
	}
	return c.JSON(http.StatusOK, products)
}

// GetProduct --> GET /admin/products/:id
func (h *AdminHandler) GetProduct(c echo.Context) error {
	id, err := parseID(c.Param("id"), "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, jsonError(err))
	}
	product, err := h.catalog.GetProduct(c.Request().Context(), id)
	if err != nil {
		return c.JSON(statusOf(err), jsonError(err))
	}
	return c.JSON(http.StatusOK, product)
}

// CreateProduct --> POST /admin/products
func (h *AdminHandler) CreateProduct(c echo.Context) error {
	var req productRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request payload"})
	}
	created, err := h.catalog.CreateProduct(c.Request().Context(), req.toProduct(0))
	if err != nil {
		return c.JSON(statusOf(err), jsonError(err))
	}
	return c.JSON(http.StatusCreated, created)
}

// UpdateProduct --> PUT /admin/products/:id
func (h *AdminHandler) UpdateProduct(c echo.Context) error {
	id, err := parseID(c.Param("id"), "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, jsonError(err))
	}
	var req productRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request payload"})
	}
	updated, err := h.catalog.UpdateProduct(c.Request().Context(), req.toProduct(id))
	if err != nil {
		return c.JSON(statusOf(err), jsonError(err))
	}
	return c.JSON(http.StatusOK, updated)
}

// ListOrders --> GET /admin/orders
func (h *AdminHandler) ListOrders(c echo.Context) error {
	orders, err := h.orders.ListOrders(c.Request().Context())
	if err != nil {
		return c.JSON(statusOf(err), jsonError(err))
	}
	if orders == nil {
		orders = []entity.OrderDetail{}
	}
	return c.JSON(http.StatusOK, orders)
}

// GetOrder --> GET /admin/orders/:id
func (h *AdminHandler) GetOrder(c echo.Context) error {
	id, err := parseID(c.Param("id"), "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, jsonError(err))
	}
	order, err := h.orders.GetOrder(c.Request().Context(), id)
	if err != nil {
		return c.JSON(statusOf(err), jsonError(err))
	}
	return c.JSON(http.StatusOK, order)
}

// WarmupCache loads the catalog into the cache --> POST /admin/cache/warmup
func (h *AdminHandler) WarmupCache(c echo.Context) error {
	n, err := h.catalog.PreWarmCache(c.Request().Context())
	if err != nil {
		return c.JSON(statusOf(err), jsonError(err))
	}
	return c.JSON(http.StatusOK, map[string]int{"warmed": n})
}
