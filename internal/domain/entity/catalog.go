package entity

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/width"
)

// Tipos de registro de un producto del catálogo.
const (
	RegistrationFixed    = "fixed"    // producto del catálogo maestro
	RegistrationImported = "imported" // producto creado por una importación ad hoc
)

// CatalogProduct producto de referencia contra el que se cuenta.
// Inmutable para el motor: se reemplaza completo en cada refresco del catálogo.
type CatalogProduct struct {
	ID               int64
	OwnerID          string
	Code             string // único por propietario
	Description      string
	Balance          decimal.Decimal // saldo en sistema
	Price            *decimal.Decimal
	Category         string
	Brand            string
	RegistrationType string
}

// BarcodeLink asocia un código de barras escaneado a un producto (muchos a uno).
type BarcodeLink struct {
	Barcode   string
	ProductID int64
}

// CatalogSnapshot copia completa del catálogo de un propietario.
type CatalogSnapshot struct {
	Products  []CatalogProduct
	Links     []BarcodeLink
	FetchedAt time.Time
}

// IsEmpty indica si la copia no tiene productos. Un catálogo descargado puede estar
// vacío: para saber si hubo descarga se mira FetchedAt.
func (s *CatalogSnapshot) IsEmpty() bool {
	return s == nil || len(s.Products) == 0
}

// Validate verifica que no haya IDs, códigos ni códigos de barras duplicados,
// ni enlaces apuntando a productos inexistentes.
func (s *CatalogSnapshot) Validate() error {
	ids := make(map[int64]struct{}, len(s.Products))
	codes := make(map[string]struct{}, len(s.Products))
	for _, p := range s.Products {
		if p.Code == "" {
			return fmt.Errorf("producto %d sin código", p.ID)
		}
		if _, dup := ids[p.ID]; dup {
			return fmt.Errorf("ID de producto duplicado: %d", p.ID)
		}
		if _, dup := codes[p.Code]; dup {
			return fmt.Errorf("código de producto duplicado: %s", p.Code)
		}
		codes[p.Code] = struct{}{}
		ids[p.ID] = struct{}{}
	}
	barcodes := make(map[string]struct{}, len(s.Links))
	for _, l := range s.Links {
		if l.Barcode == "" {
			return fmt.Errorf("enlace sin código de barras hacia el producto %d", l.ProductID)
		}
		if _, dup := barcodes[l.Barcode]; dup {
			// Un código de barras resuelve a un solo producto.
			return fmt.Errorf("código de barras duplicado: %s", l.Barcode)
		}
		barcodes[l.Barcode] = struct{}{}
		if _, ok := ids[l.ProductID]; !ok {
			return fmt.Errorf("código de barras %s apunta a producto inexistente %d", l.Barcode, l.ProductID)
		}
	}
	return nil
}

// Lookup resuelve un código escaneado: primero como código de barras, luego como código de producto.
func (s *CatalogSnapshot) Lookup(code string) (*CatalogProduct, bool) {
	if s == nil {
		return nil, false
	}
	code = NormalizeCode(code)
	for _, l := range s.Links {
		if l.Barcode == code {
			for i := range s.Products {
				if s.Products[i].ID == l.ProductID {
					return &s.Products[i], true
				}
			}
		}
	}
	for i := range s.Products {
		if s.Products[i].Code == code {
			return &s.Products[i], true
		}
	}
	return nil, false
}

// NormalizeCode limpia espacios y pliega dígitos de ancho completo que emiten algunos lectores.
func NormalizeCode(code string) string {
	return strings.TrimSpace(width.Fold.String(code))
}
