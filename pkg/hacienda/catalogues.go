// Package hacienda contiene catálogos y validaciones alineados al Anexo de
// Estructuras del comprobante electrónico v4.4 del Ministerio de Hacienda
// (Costa Rica).
package hacienda

import "github.com/shopspring/decimal"

// =============================================================================
// Nota 2 - Tipo de identificación (Anexo v4.4)
// =============================================================================

const (
	IdentificationTypeCedulaFisica   = "01" // Cédula física (persona natural)
	IdentificationTypeCedulaJuridica = "02" // Cédula jurídica
	IdentificationTypeDIMEX          = "03" // DIMEX (documento de identificación migratorio)
	IdentificationTypeNITE           = "04" // NITE (número de identificación tributario especial)
)

// ValidIdentificationTypes tipos de identificación admitidos por el esquema v4.4.
var ValidIdentificationTypes = map[string]bool{
	IdentificationTypeCedulaFisica:   true,
	IdentificationTypeCedulaJuridica: true,
	IdentificationTypeDIMEX:          true,
	IdentificationTypeNITE:           true,
}

// =============================================================================
// Nota 8 - Código del impuesto (Anexo v4.4)
// =============================================================================

const (
	TaxCodeIVA                = "01" // Impuesto al Valor Agregado
	TaxCodeSelectivoConsumo   = "02" // Impuesto Selectivo de Consumo
	TaxCodeCombustibles       = "03" // Impuesto Único a los Combustibles
	TaxCodeBebidasAlcoholicas = "04" // Impuesto específico de Bebidas Alcohólicas
	TaxCodeBebidasSinAlcohol  = "05" // Impuesto Específico sobre bebidas sin alcohol
	TaxCodeProductosTabaco    = "06" // Impuesto a los Productos de Tabaco
	TaxCodeIVACalculoEspecial = "07" // IVA (cálculo especial)
	TaxCodeIVABienesUsados    = "08" // IVA Régimen de Bienes Usados (factor)
	TaxCodeCemento            = "12" // Impuesto Específico al Cemento
	TaxCodeOtros              = "99" // Otros
)

// ValidTaxCodes códigos de impuesto admitidos en LineaDetalle/Impuesto/Codigo.
var ValidTaxCodes = map[string]bool{
	TaxCodeIVA: true, TaxCodeSelectivoConsumo: true, TaxCodeCombustibles: true,
	TaxCodeBebidasAlcoholicas: true, TaxCodeBebidasSinAlcohol: true,
	TaxCodeProductosTabaco: true, TaxCodeIVACalculoEspecial: true,
	TaxCodeIVABienesUsados: true, TaxCodeCemento: true, TaxCodeOtros: true,
}

// =============================================================================
// Nota 8.1 - Código de la tarifa del IVA (Anexo v4.4)
// El código se deriva del porcentaje de tarifa; una tarifa fuera de la tabla
// es un error de datos, no un caso a "redondear".
// =============================================================================

const (
	TariffCodeExento       = "01" // Tarifa 0% (Exento)
	TariffCodeReducida1    = "02" // Tarifa reducida 1%
	TariffCodeReducida2    = "03" // Tarifa reducida 2%
	TariffCodeReducida4    = "04" // Tarifa reducida 4%
	TariffCodeTransitoria0 = "05" // Transitorio 0%
	TariffCodeTransitoria4 = "06" // Transitorio 4%
	TariffCodeTransitoria8 = "07" // Tarifa 8% (transitoria y general reducida)
	TariffCodeGeneral13    = "08" // Tarifa general 13%
	TariffCodeReducida05   = "09" // Tarifa reducida 0.5%
)

// ivaTariffCodes porcentaje de IVA → código de tarifa (Nota 8.1).
// Las llaves son la representación canónica en string del porcentaje.
var ivaTariffCodes = map[string]string{
	"0":   TariffCodeExento,
	"0.5": TariffCodeReducida05,
	"1":   TariffCodeReducida1,
	"2":   TariffCodeReducida2,
	"4":   TariffCodeReducida4,
	"8":   TariffCodeTransitoria8,
	"13":  TariffCodeGeneral13,
}

// IVATariffCode devuelve el código de tarifa para un porcentaje de IVA.
// El segundo valor es false si el porcentaje no figura en la tabla v4.4.
func IVATariffCode(rate decimal.Decimal) (string, bool) {
	code, ok := ivaTariffCodes[rate.String()]
	return code, ok
}

// =============================================================================
// Nota 6 - Condición de la venta (Anexo v4.4, subconjunto de uso frecuente)
// =============================================================================

const (
	SaleConditionContado = "01" // Contado
	SaleConditionCredito = "02" // Crédito (requiere PlazoCredito)
)

// =============================================================================
// Nota 7 - Medio de pago (Anexo v4.4, subconjunto de uso frecuente)
// =============================================================================

const (
	PaymentMethodEfectivo = "01" // Efectivo
	PaymentMethodTarjeta  = "02" // Tarjeta
	PaymentMethodSINPE    = "06" // SINPE móvil
	PaymentMethodOtros    = "99" // Otros
)

// PaymentMethodCode traduce el medio de pago interno al código v4.4.
// Todo medio no reconocido se reporta como "99 Otros".
func PaymentMethodCode(method string) string {
	switch method {
	case "cash", "efectivo":
		return PaymentMethodEfectivo
	case "card", "tarjeta":
		return PaymentMethodTarjeta
	case "sinpe", "sinpe_movil":
		return PaymentMethodSINPE
	default:
		return PaymentMethodOtros
	}
}

// =============================================================================
// Nota 1 - Tipo de comprobante (dígitos 29-30 del consecutivo)
// =============================================================================

const (
	DocTypeFacturaElectronica = "01" // Factura electrónica
	DocTypeNotaDebito         = "02" // Nota de débito electrónica
	DocTypeNotaCredito        = "03" // Nota de crédito electrónica
	DocTypeTiqueteElectronico = "04" // Tiquete electrónico
	DocTypeFacturaCompra      = "08" // Factura electrónica de compra
	DocTypeFacturaExportacion = "09" // Factura electrónica de exportación
)

// ValidDocumentTypes tipos de comprobante reconocidos en el consecutivo.
var ValidDocumentTypes = map[string]bool{
	DocTypeFacturaElectronica: true, DocTypeNotaDebito: true,
	DocTypeNotaCredito: true, DocTypeTiqueteElectronico: true,
	DocTypeFacturaCompra: true, DocTypeFacturaExportacion: true,
}

// =============================================================================
// CABYS - Catálogo de Bienes y Servicios (BCCR)
// El primer dígito del código clasifica el renglón: 0-4 mercancía, 5-9 servicio.
// =============================================================================

// IsServiceCABYS indica si un código CABYS corresponde a un servicio.
// Un código vacío se trata como mercancía.
func IsServiceCABYS(code string) bool {
	if code == "" {
		return false
	}
	return code[0] >= '5' && code[0] <= '9'
}
