package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"storefront/internal/entity"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Str("component", "api").Logger()

type Catalog interface {
	ListProducts(ctx context.Context) ([]entity.Product, error)
	GetProduct(ctx context.Context, id int64) (*entity.Product, error)
	CreateProduct(ctx context.Context, product *entity.Product) (*entity.Product, error)
	UpdateProduct(ctx context.Context, product *entity.Product) (*entity.Product, error)
	PreWarmCache(ctx context.Context) (int, error)
}

type Orders interface {
	PlaceOrder(ctx context.Context, productID int64, quantity int) (*entity.Order, error)
	ListOrders(ctx context.Context) ([]entity.OrderDetail, error)
	GetOrder(ctx context.Context, id int64) (*entity.OrderDetail, error)
}

// SubmissionGuard rejects a second order carrying the same form token.
type SubmissionGuard interface {
	Claim(ctx context.Context, token string) error
	Forget(ctx context.Context, token string) error
}

type StorefrontHandler struct {
	catalog  Catalog
	orders   Orders
	guard    SubmissionGuard
	basePath string
}

// NewStorefrontHandler creates a new instance of StorefrontHandler. guard may be nil.
func NewStorefrontHandler(catalog Catalog, orders Orders, guard SubmissionGuard, basePath string) *StorefrontHandler {
	return &StorefrontHandler{catalog: catalog, orders: orders, guard: guard, basePath: basePath}
}

func parseID(raw, field string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, &entity.ValidationError{Field: field, Reason: "must be a positive integer"}
	}
	return id, nil
}

// Index lists products --> /
func (h *StorefrontHandler) Index(c echo.Context) error {
	products, err := h.catalog.ListProducts(c.Request().Context())
	if err != nil {
		return c.Render(statusOf(err), "index.html", page{
			Title: "Products", BasePath: h.basePath, ErrorMessage: messageOf(err),
		})
	}
	return c.Render(http.StatusOK, "index.html", page{Title: "Products", BasePath: h.basePath, Products: products})
}

// Detail shows one product --> /:id
func (h *StorefrontHandler) Detail(c echo.Context) error {
	id, err := parseID(c.Param("id"), "id")
	if err == nil {
		var product *entity.Product
		product, err = h.catalog.GetProduct(c.Request().Context(), id)
		if err == nil {
			return c.Render(http.StatusOK, "detail.html", page{
				Title:           product.Name,
				BasePath:        h.basePath,
				Product:         product,
				SubmissionToken: uuid.NewString(),
			})
		}
	}
	return c.Render(statusOf(err), "detail.html", page{
		Title: "Product", BasePath: h.basePath, ErrorMessage: messageOf(err),
	})
}

// Thanks confirms a placed order --> /thanks
func (h *StorefrontHandler) Thanks(c echo.Context) error {
	return c.Render(http.StatusOK, "thanks.html", page{Title: "Thank you", BasePath: h.basePath})
}

// AdminRedirect --> /admin
func (h *StorefrontHandler) AdminRedirect(c echo.Context) error {
	return c.Redirect(http.StatusFound, h.basePath+"/admin/products")
}

// PlaceOrder buys one unit of a product --> POST /order
func (h *StorefrontHandler) PlaceOrder(c echo.Context) error {
	ctx := c.Request().Context()
	rawID := c.FormValue("product_id")
	const quantity = 1

	productID, err := parseID(rawID, "product_id")
	if err != nil {
		return h.renderOrderError(c, err, rawID)
	}

	token := c.FormValue("submission_token")
	if h.guard != nil && token != "" {
		if err := h.guard.Claim(ctx, token); err != nil {
			return h.renderOrderError(c, err, rawID)
		}
	}

	order, err := h.orders.PlaceOrder(ctx, productID, quantity)
	if err != nil {
		// a rejected order changed nothing, so the same form may be sent again
		if h.guard != nil && token != "" && entity.OutcomeOf(err) == entity.OutcomeRejected {
			if ferr := h.guard.Forget(ctx, token); ferr != nil {
				logger.Error().Err(ferr).Msg("Error releasing submission token")
			}
		}
		return h.renderOrderError(c, err, rawID)
	}

	logger.Info().Msgf("Order %d accepted for product %d", order.ID, order.ProductID)
	return c.Redirect(http.StatusSeeOther, h.basePath+"/thanks")
}

func (h *StorefrontHandler) renderOrderError(c echo.Context, err error, rawID string) error {
	link := h.basePath + "/"
	pageName := "products"
	if _, perr := parseID(rawID, "product_id"); perr == nil {
		link = fmt.Sprintf("%s/%s", h.basePath, rawID)
		pageName = "product page"
	}
	return c.Render(statusOf(err), "error.html", page{
		Title:        "Order failed",
		BasePath:     h.basePath,
		ErrorMessage: messageOf(err),
		LinkURL:      link,
		PageName:     pageName,
	})
}
