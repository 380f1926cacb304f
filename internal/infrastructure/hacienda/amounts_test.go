package hacienda_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tu-usuario/facturacion-cr/internal/domain/entity"
	"github.com/tu-usuario/facturacion-cr/internal/infrastructure/hacienda"
)

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

// ──────────────────────────────────────────────────────────────────────────────
// ComputeLine — aritmética de una línea
// ──────────────────────────────────────────────────────────────────────────────

func TestComputeLine_ConDescuentoEImpuesto(t *testing.T) {
	item := entity.InvoiceItem{
		LineNumber:      1,
		CABYSCode:       "8399000000000",
		Quantity:        decimal.NewFromInt(2),
		UnitPrice:       decimal.NewFromInt(1000),
		DiscountPercent: decimal.NewFromInt(10),
		TaxCode:         "01",
		TaxRate:         decimal.NewFromInt(13),
	}

	la, err := hacienda.ComputeLine(item)
	require.NoError(t, err)

	assert.True(t, la.Gross.Equal(dec(t, "2000")), "monto bruto")
	assert.True(t, la.Discount.Equal(dec(t, "200")), "descuento 10%%")
	assert.True(t, la.SubTotal.Equal(dec(t, "1800")), "subtotal")
	assert.True(t, la.Tax.Equal(dec(t, "234")), "IVA 13%% sobre subtotal")
	assert.True(t, la.NetTax.Equal(dec(t, "234")))
	assert.True(t, la.LineTotal.Equal(dec(t, "2034")))
	assert.Equal(t, "08", la.TariffCode, "13%% es tarifa general (Nota 8.1)")
}

// El impuesto asumido por la fábrica se resta del impuesto neto de la línea.
func TestComputeLine_ImpuestoAsumidoFabrica(t *testing.T) {
	item := entity.InvoiceItem{
		LineNumber:        1,
		CABYSCode:         "2399000000000",
		Quantity:          decimal.NewFromInt(1),
		UnitPrice:         decimal.NewFromInt(1000),
		TaxCode:           "01",
		TaxRate:           decimal.NewFromInt(13),
		FactoryAssumedTax: decimal.NewFromInt(30),
	}

	la, err := hacienda.ComputeLine(item)
	require.NoError(t, err)

	assert.True(t, la.Tax.Equal(dec(t, "130")))
	assert.True(t, la.NetTax.Equal(dec(t, "100")), "130 - 30 asumido")
	assert.True(t, la.LineTotal.Equal(dec(t, "1100")))
}

// La exoneración reduce el impuesto neto en el porcentaje exonerado.
func TestComputeLine_Exoneracion(t *testing.T) {
	item := entity.InvoiceItem{
		LineNumber:         1,
		CABYSCode:          "8399000000000",
		Quantity:           decimal.NewFromInt(1),
		UnitPrice:          decimal.NewFromInt(1000),
		TaxCode:            "01",
		TaxRate:            decimal.NewFromInt(13),
		ExonerationPercent: decimal.NewFromInt(50),
	}

	la, err := hacienda.ComputeLine(item)
	require.NoError(t, err)

	assert.True(t, la.Tax.Equal(dec(t, "130")))
	assert.True(t, la.Exoneration.Equal(dec(t, "65")))
	assert.True(t, la.NetTax.Equal(dec(t, "65")))
	assert.True(t, la.LineTotal.Equal(dec(t, "1065")))
}

func TestComputeLine_Invalidos(t *testing.T) {
	base := entity.InvoiceItem{
		LineNumber: 1,
		CABYSCode:  "8399000000000",
		Quantity:   decimal.NewFromInt(1),
		UnitPrice:  decimal.NewFromInt(100),
	}

	negQty := base
	negQty.Quantity = decimal.NewFromInt(-1)
	_, err := hacienda.ComputeLine(negQty)
	assert.Error(t, err, "cantidad negativa")

	badTax := base
	badTax.TaxCode = "77"
	_, err = hacienda.ComputeLine(badTax)
	assert.Error(t, err, "código de impuesto fuera de catálogo")

	badTariff := base
	badTariff.TaxCode = "01"
	badTariff.TaxRate = decimal.NewFromInt(7)
	_, err = hacienda.ComputeLine(badTariff)
	assert.Error(t, err, "tarifa de IVA fuera de la tabla")
}

// ──────────────────────────────────────────────────────────────────────────────
// ComputeTotals — clasificación en cubetas y desglose
// ──────────────────────────────────────────────────────────────────────────────

// Línea sin nodo de impuesto: servicio → NoSujeto, mercancía → Exenta
// (el resumen v4.4 no tiene total de mercancía no sujeta).
func TestComputeTotals_SinImpuesto(t *testing.T) {
	servicio := entity.InvoiceItem{
		LineNumber: 1, CABYSCode: "8399000000000",
		Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(500),
	}
	mercancia := entity.InvoiceItem{
		LineNumber: 2, CABYSCode: "2399000000000",
		Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(300),
	}

	l1, err := hacienda.ComputeLine(servicio)
	require.NoError(t, err)
	l2, err := hacienda.ComputeLine(mercancia)
	require.NoError(t, err)

	totals := hacienda.ComputeTotals([]*hacienda.LineAmounts{l1, l2})

	assert.True(t, totals.ServNoSujeto.Equal(dec(t, "500")))
	assert.True(t, totals.MercExentas.Equal(dec(t, "300")))
	assert.True(t, totals.Comprobante.Equal(dec(t, "800")))
	assert.Empty(t, totals.Breakdown, "sin impuestos no hay desglose")
}

// El desglose agrupa por código de impuesto + tarifa en orden de aparición.
func TestComputeTotals_DesgloseOrdenado(t *testing.T) {
	mk := func(line int, price int64, rate int64) *hacienda.LineAmounts {
		la, err := hacienda.ComputeLine(entity.InvoiceItem{
			LineNumber: line, CABYSCode: "8399000000000",
			Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(price),
			TaxCode: "01", TaxRate: decimal.NewFromInt(rate),
		})
		require.NoError(t, err)
		return la
	}

	totals := hacienda.ComputeTotals([]*hacienda.LineAmounts{
		mk(1, 1000, 13), mk(2, 2000, 1), mk(3, 500, 13),
	})

	require.Len(t, totals.Breakdown, 2)
	assert.Equal(t, "01", totals.Breakdown[0].TaxCode)
	assert.Equal(t, "08", totals.Breakdown[0].TariffCode, "primero la tarifa 13%% por orden de aparición")
	assert.True(t, totals.Breakdown[0].Tax.Equal(dec(t, "195")), "130 + 65")
	assert.Equal(t, "02", totals.Breakdown[1].TariffCode)
	assert.True(t, totals.Breakdown[1].Tax.Equal(dec(t, "20")))
}
