package inventory

import (
	"github.com/shopspring/decimal"

	"github.com/jhoicas/inventario-conteo/internal/domain/entity"
)

// PriceFunc precio unitario de un código; nil si el catálogo no lo tiene.
type PriceFunc func(code string) *decimal.Decimal

// VarianceSummary resumen de diferencias de un conteo frente al saldo de sistema.
type VarianceSummary struct {
	Items    int
	Matched  int             // productos sin diferencia
	Surplus  decimal.Decimal // unidades sobrantes
	Shortage decimal.Decimal // unidades faltantes (positivo)
	NetValue decimal.Decimal // sobrante valorizado menos faltante valorizado
	Unpriced int             // productos con diferencia pero sin precio
}

// Variance valoriza la diferencia de cada producto: Diferencia = Total - SaldoSistema;
// Valor = Diferencia * Precio.
func Variance(counts []entity.WorkingCount, priceOf PriceFunc) VarianceSummary {
	s := VarianceSummary{Surplus: decimal.Zero, Shortage: decimal.Zero, NetValue: decimal.Zero}
	for i := range counts {
		diff := counts[i].Difference()
		s.Items++
		switch diff.Sign() {
		case 0:
			s.Matched++
			continue
		case 1:
			s.Surplus = s.Surplus.Add(diff)
		default:
			s.Shortage = s.Shortage.Add(diff.Neg())
		}
		var price *decimal.Decimal
		if priceOf != nil {
			price = priceOf(counts[i].Code)
		}
		if price == nil {
			s.Unpriced++
			continue
		}
		s.NetValue = s.NetValue.Add(diff.Mul(*price))
	}
	return s
}
