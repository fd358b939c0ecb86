package server

import (
	"github.com/labstack/echo/v4"

	"github.com/aingdesk/daemon/pkg/apierr"
	"github.com/aingdesk/daemon/pkg/suppliers"
)

func (s *Server) handleGetSupplierList(c echo.Context) error {
	return apierr.Respond(c, s.supplies.List())
}

func (s *Server) handleAddSupplier(c echo.Context) error {
	var body suppliers.Supplier
	if err := c.Bind(&body); err != nil {
		return apierr.RespondErr(c, apierr.Wrap(apierr.ErrInvalidInput, err))
	}
	sup, err := s.supplies.Create(c.Request().Context(), body)
	if err != nil {
		return apierr.RespondErr(c, err)
	}
	return apierr.Respond(c, sup)
}

func (s *Server) handleUpdateSupplier(c echo.Context) error {
	var body struct {
		Name   string            `json:"name"`
		Models []suppliers.Model `json:"models"`
		APIKey string            `json:"api_key"`
	}
	if err := c.Bind(&body); err != nil {
		return apierr.RespondErr(c, apierr.Wrap(apierr.ErrInvalidInput, err))
	}
	sup, err := s.supplies.Update(c.Request().Context(), body.Name, func(existing *suppliers.Supplier) {
		if body.Models != nil {
			existing.Models = body.Models
		}
		if body.APIKey != "" {
			existing.APIKey = body.APIKey
		}
	})
	if err != nil {
		return apierr.RespondErr(c, err)
	}
	return apierr.Respond(c, sup)
}

func (s *Server) handleRemoveSupplier(c echo.Context) error {
	var body struct {
		Name string `json:"name"`
	}
	if err := c.Bind(&body); err != nil {
		return apierr.RespondErr(c, apierr.Wrap(apierr.ErrInvalidInput, err))
	}
	if err := s.supplies.Remove(c.Request().Context(), body.Name); err != nil {
		return apierr.RespondErr(c, err)
	}
	return apierr.Respond(c, nil)
}

func (s *Server) handleCheckSupplierConfig(c echo.Context) error {
	var body struct {
		Name string `json:"name"`
	}
	if err := c.Bind(&body); err != nil {
		return apierr.RespondErr(c, apierr.Wrap(apierr.ErrInvalidInput, err))
	}
	if err := s.supplies.CheckConfig(c.Request().Context(), body.Name); err != nil {
		return apierr.RespondErr(c, err)
	}
	return apierr.Respond(c, map[string]bool{"ok": true})
}

func (s *Server) handleSetSupplierStatus(c echo.Context) error {
	var body struct {
		Name    string `json:"name"`
		Enabled bool   `json:"enabled"`
	}
	if err := c.Bind(&body); err != nil {
		return apierr.RespondErr(c, apierr.Wrap(apierr.ErrInvalidInput, err))
	}
	sup, err := s.supplies.SetSupplierStatus(c.Request().Context(), body.Name, body.Enabled)
	if err != nil {
		return apierr.RespondErr(c, err)
	}
	return apierr.Respond(c, sup)
}

func (s *Server) handleAddModel(c echo.Context) error {
	var body struct {
		SupplierName string          `json:"supplier_name"`
		Model        suppliers.Model `json:"model"`
	}
	if err := c.Bind(&body); err != nil {
		return apierr.RespondErr(c, apierr.Wrap(apierr.ErrInvalidInput, err))
	}
	sup, err := s.supplies.AddModel(c.Request().Context(), body.SupplierName, body.Model)
	if err != nil {
		return apierr.RespondErr(c, err)
	}
	return apierr.Respond(c, sup)
}

func (s *Server) handleRemoveModel(c echo.Context) error {
	var body struct {
		SupplierName string `json:"supplier_name"`
		ModelName    string `json:"model_name"`
	}
	if err := c.Bind(&body); err != nil {
		return apierr.RespondErr(c, apierr.Wrap(apierr.ErrInvalidInput, err))
	}
	sup, err := s.supplies.RemoveModel(c.Request().Context(), body.SupplierName, body.ModelName)
	if err != nil {
		return apierr.RespondErr(c, err)
	}
	return apierr.Respond(c, sup)
}

func (s *Server) handleSetModelStatus(c echo.Context) error {
	var body struct {
		SupplierName string `json:"supplier_name"`
		ModelName    string `json:"model_name"`
		Enabled      bool   `json:"enabled"`
	}
	if err := c.Bind(&body); err != nil {
		return apierr.RespondErr(c, apierr.Wrap(apierr.ErrInvalidInput, err))
	}
	sup, err := s.supplies.SetModelStatus(c.Request().Context(), body.SupplierName, body.ModelName, body.Enabled)
	if err != nil {
		return apierr.RespondErr(c, err)
	}
	return apierr.Respond(c, sup)
}

func (s *Server) handleSetModelTitle(c echo.Context) error {
	var body struct {
		SupplierName string `json:"supplier_name"`
		ModelName    string `json:"model_name"`
		Title        string `json:"title"`
	}
	if err := c.Bind(&body); err != nil {
		return apierr.RespondErr(c, apierr.Wrap(apierr.ErrInvalidInput, err))
	}
	sup, err := s.supplies.SetModelTitle(c.Request().Context(), body.SupplierName, body.ModelName, body.Title)
	if err != nil {
		return apierr.RespondErr(c, err)
	}
	return apierr.Respond(c, sup)
}

func (s *Server) handleListEmbeddingModels(c echo.Context) error {
	return apierr.Respond(c, s.supplies.ListEmbeddingModels())
}
