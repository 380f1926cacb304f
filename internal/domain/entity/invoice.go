package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Invoice representa la cabecera de una factura o tiquete por facturar.
type Invoice struct {
	ID             string
	BusinessID     string
	DocumentType   string // 01 factura, 04 tiquete (Nota 1)
	Branch         int    // Sucursal (dígitos 1-3 del consecutivo)
	Terminal       int    // Terminal / punto de venta (dígitos 4-8)
	Sequential     int64  // Número consecutivo interno (dígitos 11-20)
	Date           time.Time
	SaleCondition  string // 01 contado, 02 crédito
	CreditTermDays int    // PlazoCredito en días, solo si venta a crédito
	PaymentMethod  string // Medio de pago interno (cash, card, sinpe, ...)
	CurrencyCode   string // ISO 4217, p. ej. CRC, USD
	ExchangeRate   decimal.Decimal
	CustomerName   string // Receptor opcional (tiquete no lo exige)
	CustomerID     string
	Reference      *DocumentReference // InformacionReferencia (notas de crédito/débito)
	Items          []InvoiceItem
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// InvoiceItem representa una línea de detalle.
type InvoiceItem struct {
	ID              string
	InvoiceID       string
	LineNumber      int
	CABYSCode       string // Código CABYS (13 dígitos); primer dígito 5-9 = servicio
	Description     string
	Quantity        decimal.Decimal
	Unit            string // Unidad de medida (Sp, Unid, kg, ...)
	UnitPrice       decimal.Decimal
	DiscountPercent decimal.Decimal // 0-100
	DiscountReason  string
	TaxCode         string          // Código del impuesto (Nota 8); vacío = sin impuesto
	TaxRate         decimal.Decimal // Porcentaje de IVA (0, 0.5, 1, 2, 4, 8, 13)
	// Exoneración: porcentaje del impuesto exonerado (0-100) con documento de respaldo.
	ExonerationPercent decimal.Decimal
	ExonerationDocType string
	ExonerationDocNum  string
	ExonerationIssuer  string
	ExonerationDate    time.Time
	// Impuesto asumido por el emisor o la fábrica (v4.4); se resta del neto de línea.
	FactoryAssumedTax decimal.Decimal
}

// HasDiscount indica si la línea lleva nodo Descuento.
func (i InvoiceItem) HasDiscount() bool {
	return i.DiscountPercent.IsPositive()
}

// HasTax indica si la línea lleva nodo Impuesto.
func (i InvoiceItem) HasTax() bool {
	return i.TaxCode != ""
}

// HasExoneration indica si la línea lleva exoneración parcial o total.
func (i InvoiceItem) HasExoneration() bool {
	return i.ExonerationPercent.IsPositive()
}

// DocumentReference referencia a otro comprobante (InformacionReferencia).
type DocumentReference struct {
	DocType string    // Tipo de documento de referencia
	Number  string    // Clave o número del documento referenciado
	Date    time.Time // Fecha de emisión del documento referenciado
	Code    string    // Código de referencia (01 anula, 02 corrige, ...)
	Reason  string
}
