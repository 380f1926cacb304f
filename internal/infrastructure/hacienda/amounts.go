package hacienda

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/tu-usuario/facturacion-cr/internal/domain/entity"
	pkghacienda "github.com/tu-usuario/facturacion-cr/pkg/hacienda"
)

var cien = decimal.NewFromInt(100)

// LineAmounts montos calculados de una línea de detalle, con precisión
// completa; el formato a 5 decimales se aplica solo al serializar.
type LineAmounts struct {
	Item entity.InvoiceItem

	Gross       decimal.Decimal // MontoTotal = precio × cantidad
	Discount    decimal.Decimal // Monto del descuento
	SubTotal    decimal.Decimal // SubTotal y BaseImponible
	TariffCode  string          // CodigoTarifaIVA (vacío si el impuesto no es IVA)
	Tax         decimal.Decimal // Impuesto/Monto
	Exoneration decimal.Decimal // Porción del impuesto exonerada
	NetTax      decimal.Decimal // ImpuestoNeto = Tax − Exoneration − asumido fábrica
	LineTotal   decimal.Decimal // MontoTotalLinea = SubTotal + NetTax
}

// BreakdownEntry acumulado por combinación código de impuesto + tarifa,
// para TotalDesgloseImpuesto del resumen.
type BreakdownEntry struct {
	TaxCode    string
	TariffCode string
	Base       decimal.Decimal
	Tax        decimal.Decimal
}

// Totals montos del ResumenFactura.
type Totals struct {
	ServGravados  decimal.Decimal
	ServExentos   decimal.Decimal
	ServExonerado decimal.Decimal
	ServNoSujeto  decimal.Decimal
	MercGravadas  decimal.Decimal
	MercExentas   decimal.Decimal
	MercExonerada decimal.Decimal

	Gravado   decimal.Decimal
	Exento    decimal.Decimal
	Exonerado decimal.Decimal
	NoSujeto  decimal.Decimal

	Venta       decimal.Decimal // Suma de subtotales antes de descuento
	Descuentos  decimal.Decimal
	VentaNeta   decimal.Decimal
	Impuesto    decimal.Decimal // Suma de impuestos netos
	Comprobante decimal.Decimal // VentaNeta + Impuesto

	Breakdown []BreakdownEntry // Orden de primera aparición
}

// ComputeLine calcula los montos de una línea:
//
//	bruto     = precio × cantidad
//	descuento = bruto × %descuento / 100
//	subtotal  = bruto − descuento
//	impuesto  = subtotal × tarifa / 100
//
// Para IVA la tarifa debe figurar en la tabla de la Nota 8.1; una tarifa fuera
// de tabla es un error de datos. La exoneración reduce el impuesto en el
// porcentaje indicado y el impuesto asumido por el emisor/fábrica se resta del
// impuesto neto.
func ComputeLine(item entity.InvoiceItem) (*LineAmounts, error) {
	if item.Quantity.Sign() <= 0 {
		return nil, fmt.Errorf("hacienda: línea %d con cantidad no positiva", item.LineNumber)
	}
	if item.UnitPrice.Sign() < 0 {
		return nil, fmt.Errorf("hacienda: línea %d con precio negativo", item.LineNumber)
	}
	if item.DiscountPercent.Sign() < 0 || item.DiscountPercent.GreaterThan(cien) {
		return nil, fmt.Errorf("hacienda: línea %d con descuento fuera de rango (0-100)", item.LineNumber)
	}

	la := &LineAmounts{Item: item}
	la.Gross = item.UnitPrice.Mul(item.Quantity)
	la.Discount = la.Gross.Mul(item.DiscountPercent).Div(cien)
	la.SubTotal = la.Gross.Sub(la.Discount)

	if item.HasTax() {
		if !pkghacienda.ValidTaxCodes[item.TaxCode] {
			return nil, fmt.Errorf("hacienda: línea %d con código de impuesto %q inválido", item.LineNumber, item.TaxCode)
		}
		if isIVACode(item.TaxCode) {
			code, ok := pkghacienda.IVATariffCode(item.TaxRate)
			if !ok {
				return nil, fmt.Errorf("hacienda: línea %d con tarifa de IVA %s%% fuera de la tabla v4.4", item.LineNumber, item.TaxRate)
			}
			la.TariffCode = code
		}
		la.Tax = la.SubTotal.Mul(item.TaxRate).Div(cien)

		if item.HasExoneration() {
			if item.ExonerationPercent.GreaterThan(cien) {
				return nil, fmt.Errorf("hacienda: línea %d con exoneración mayor al 100%%", item.LineNumber)
			}
			la.Exoneration = la.Tax.Mul(item.ExonerationPercent).Div(cien)
		}
	}

	la.NetTax = la.Tax.Sub(la.Exoneration).Sub(item.FactoryAssumedTax)
	la.LineTotal = la.SubTotal.Add(la.NetTax)
	return la, nil
}

// ComputeTotals clasifica cada línea en servicio/mercancía por el primer
// dígito del CABYS y dentro de cada grupo en gravado/exento/exonerado/no
// sujeto, acumulando el resumen y el desglose por impuesto.
func ComputeTotals(lines []*LineAmounts) *Totals {
	t := &Totals{}
	index := map[string]int{} // taxCode+tariffCode → posición en Breakdown

	for _, la := range lines {
		service := pkghacienda.IsServiceCABYS(la.Item.CABYSCode)

		switch {
		case !la.Item.HasTax():
			// Sin nodo de impuesto: no sujeto.
			if service {
				t.ServNoSujeto = t.ServNoSujeto.Add(la.SubTotal)
			} else {
				// El esquema no tiene total de mercancía no sujeta; se acumula como exenta.
				t.MercExentas = t.MercExentas.Add(la.SubTotal)
			}
		case la.Tax.IsZero():
			if service {
				t.ServExentos = t.ServExentos.Add(la.SubTotal)
			} else {
				t.MercExentas = t.MercExentas.Add(la.SubTotal)
			}
		default:
			gravado := la.SubTotal
			if la.Item.HasExoneration() {
				exonerado := la.SubTotal.Mul(la.Item.ExonerationPercent).Div(cien)
				gravado = gravado.Sub(exonerado)
				if service {
					t.ServExonerado = t.ServExonerado.Add(exonerado)
				} else {
					t.MercExonerada = t.MercExonerada.Add(exonerado)
				}
			}
			// El impuesto asumido por el emisor/fábrica no debe contar dos veces
			// como base gravada.
			gravado = gravado.Sub(la.Item.FactoryAssumedTax)
			if service {
				t.ServGravados = t.ServGravados.Add(gravado)
			} else {
				t.MercGravadas = t.MercGravadas.Add(gravado)
			}
		}

		t.Venta = t.Venta.Add(la.Gross)
		t.Descuentos = t.Descuentos.Add(la.Discount)
		t.Impuesto = t.Impuesto.Add(la.NetTax)

		if la.Item.HasTax() {
			key := la.Item.TaxCode + "|" + la.TariffCode
			i, ok := index[key]
			if !ok {
				i = len(t.Breakdown)
				index[key] = i
				t.Breakdown = append(t.Breakdown, BreakdownEntry{
					TaxCode:    la.Item.TaxCode,
					TariffCode: la.TariffCode,
				})
			}
			t.Breakdown[i].Base = t.Breakdown[i].Base.Add(la.SubTotal)
			t.Breakdown[i].Tax = t.Breakdown[i].Tax.Add(la.NetTax)
		}
	}

	t.Gravado = t.ServGravados.Add(t.MercGravadas)
	t.Exento = t.ServExentos.Add(t.MercExentas)
	t.Exonerado = t.ServExonerado.Add(t.MercExonerada)
	t.NoSujeto = t.ServNoSujeto
	t.VentaNeta = t.Venta.Sub(t.Descuentos)
	t.Comprobante = t.VentaNeta.Add(t.Impuesto)
	return t
}

// isIVACode indica si la línea lleva CodigoTarifaIVA (solo variantes de IVA).
func isIVACode(code string) bool {
	switch code {
	case pkghacienda.TaxCodeIVA, pkghacienda.TaxCodeIVACalculoEspecial, pkghacienda.TaxCodeIVABienesUsados:
		return true
	}
	return false
}
