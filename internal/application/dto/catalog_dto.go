package dto

import "github.com/shopspring/decimal"

// CatalogProductDTO producto tal como viaja en GET /api/catalog.
type CatalogProductDTO struct {
	ID               int64            `json:"id"`
	Code             string           `json:"code"`
	Description      string           `json:"description"`
	Balance          decimal.Decimal  `json:"balance"`
	Price            *decimal.Decimal `json:"price,omitempty"`
	Category         string           `json:"category,omitempty"`
	Brand            string           `json:"brand,omitempty"`
	RegistrationType string           `json:"registrationType"`
}

// BarcodeLinkDTO enlace código de barras → producto.
type BarcodeLinkDTO struct {
	Barcode   string `json:"barcode"`
	ProductID int64  `json:"productId"`
}

// CatalogResponse respuesta completa del catálogo (sin deltas).
type CatalogResponse struct {
	Products     []CatalogProductDTO `json:"products"`
	BarcodeLinks []BarcodeLinkDTO    `json:"barcodeLinks"`
}
