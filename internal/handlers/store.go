package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/sellista/marketplace/internal/auth"
	"github.com/sellista/marketplace/internal/models"
)

type StoreHandler struct {
	DB *gorm.DB
}

func (h *StoreHandler) GetStore(c echo.Context) error {
	ident, err := auth.FromContext(c)
	if err != nil {
		return err
	}

	var store models.Store
	if err := h.DB.Where("seller_id = ?", ident.UserID).First(&store).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "store not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	return c.JSON(http.StatusOK, store)
}

// SaveStore creates the seller's store on first save and updates it afterwards.
func (h *StoreHandler) SaveStore(c echo.Context) error {
	ident, err := auth.FromContext(c)
	if err != nil {
		return err
	}

	var req struct {
		StoreName   string `json:"storeName"`
		Description string `json:"description"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	req.StoreName = strings.TrimSpace(req.StoreName)
	if req.StoreName == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "store name is required")
	}

	var store models.Store
	err = h.DB.Where("seller_id = ?", ident.UserID).First(&store).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		store = models.Store{
			SellerID:    ident.UserID,
			Name:        req.StoreName,
			Description: req.Description,
		}
		if err := h.DB.Create(&store).Error; err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
		}
		return c.JSON(http.StatusCreated, store)
	case err != nil:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	store.Name = req.StoreName
	store.Description = req.Description
	if err := h.DB.Save(&store).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	return c.JSON(http.StatusOK, store)
}
