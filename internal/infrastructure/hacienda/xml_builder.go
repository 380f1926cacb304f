package hacienda

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	pkghacienda "github.com/tu-usuario/facturacion-cr/pkg/hacienda"
)

// Namespaces oficiales del comprobante electrónico v4.4.
const (
	// Namespace por defecto del tiquete electrónico v4.4
	NsTiquete = "https://cdn.comprobanteselectronicos.go.cr/xml-schemas/v4.4/tiqueteElectronico"
	// Namespace de la factura electrónica v4.4
	NsFactura = "https://cdn.comprobanteselectronicos.go.cr/xml-schemas/v4.4/facturaElectronica"
	// XML Digital Signature
	NsDs = "http://www.w3.org/2000/09/xmldsig#"
	// XAdES (para la firma)
	NsXades = "http://uri.etsi.org/01903/v1.3.2#"
	// XML Schema Instance (para schemaLocation)
	nsXsi = "http://www.w3.org/2001/XMLSchema-instance"
)

// rootElementByDocType elemento raíz y namespace según el tipo de comprobante.
func rootElementByDocType(docType string) (local, ns string, err error) {
	switch docType {
	case pkghacienda.DocTypeFacturaElectronica:
		return "FacturaElectronica", NsFactura, nil
	case pkghacienda.DocTypeTiqueteElectronico:
		return "TiqueteElectronico", NsTiquete, nil
	case pkghacienda.DocTypeNotaCredito:
		return "NotaCreditoElectronica", "https://cdn.comprobanteselectronicos.go.cr/xml-schemas/v4.4/notaCreditoElectronica", nil
	case pkghacienda.DocTypeNotaDebito:
		return "NotaDebitoElectronica", "https://cdn.comprobanteselectronicos.go.cr/xml-schemas/v4.4/notaDebitoElectronica", nil
	default:
		return "", "", fmt.Errorf("hacienda: tipo de comprobante %q sin elemento raíz v4.4", docType)
	}
}

// XMLBuilderService construye el XML v4.4 del comprobante (sin firma XAdES).
type XMLBuilderService struct{}

// NewXMLBuilderService crea el servicio.
func NewXMLBuilderService() *XMLBuilderService {
	return &XMLBuilderService{}
}

// BuildResult XML sin firmar más los montos calculados (para persistencia).
type BuildResult struct {
	XML    []byte
	Lines  []*LineAmounts
	Totals *Totals
}

// Build genera el comprobante v4.4 sin firma. El orden de los elementos es el
// exigido por el XSD; alterarlo produce rechazo por esquema.
func (s *XMLBuilderService) Build(ctx *BuildContext) (*BuildResult, error) {
	if ctx == nil || ctx.Invoice == nil || ctx.Business == nil {
		return nil, fmt.Errorf("hacienda: faltan invoice o business en el contexto")
	}
	if len(ctx.Items) == 0 {
		return nil, fmt.Errorf("hacienda: el comprobante no tiene líneas de detalle")
	}
	if len(ctx.Clave) != 50 {
		return nil, fmt.Errorf("hacienda: clave de %d dígitos, se esperaban 50", len(ctx.Clave))
	}
	if onlyDigits(ctx.Business.Identification) == "" {
		// Nunca se emite con un emisor por defecto: un número equivocado
		// produce un comprobante legalmente inválido.
		return nil, fmt.Errorf("hacienda: emisor sin número de identificación configurado")
	}

	lines := make([]*LineAmounts, 0, len(ctx.Items))
	for _, item := range ctx.Items {
		la, err := ComputeLine(item)
		if err != nil {
			return nil, err
		}
		lines = append(lines, la)
	}
	totals := ComputeTotals(lines)

	rootLocal, rootNs, err := rootElementByDocType(ctx.Invoice.DocumentType)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)

	schemaLocation := ctx.SchemaLocation
	if schemaLocation == "" {
		schemaLocation = rootNs
	}
	root := xml.StartElement{
		Name: xml.Name{Local: rootLocal},
		Attr: []xml.Attr{
			{Name: xml.Name{Local: "xmlns"}, Value: rootNs},
			{Name: xml.Name{Local: "xmlns:ds"}, Value: NsDs},
			{Name: xml.Name{Local: "xmlns:xades"}, Value: NsXades},
			{Name: xml.Name{Local: "xmlns:xsi"}, Value: nsXsi},
			{Name: xml.Name{Local: "xsi:schemaLocation"}, Value: rootNs + " " + schemaLocation},
		},
	}
	if err := enc.EncodeToken(root); err != nil {
		return nil, err
	}

	issueDate := ctx.Invoice.Date
	if ctx.IssueDate != nil {
		issueDate = *ctx.IssueDate
	}

	// ---- Encabezado (orden fijo del XSD v4.4)
	writeEl(enc, "Clave", ctx.Clave)
	writeEl(enc, "ProveedorSistemas", onlyDigits(ctx.ProveedorSistemas))
	writeEl(enc, "CodigoActividadEmisor", clampString(ctx.Business.EconomicActivity, 6, 6))
	writeEl(enc, "NumeroConsecutivo", ctx.Consecutivo)
	writeEl(enc, "FechaEmision", issueDate.Format("2006-01-02T15:04:05-07:00"))

	// ---- Emisor
	if err := s.writeEmisor(enc, ctx); err != nil {
		return nil, err
	}

	// ---- Condición de venta
	writeEl(enc, "CondicionVenta", ctx.Invoice.SaleCondition)
	if ctx.Invoice.SaleCondition == pkghacienda.SaleConditionCredito {
		writeEl(enc, "PlazoCredito", strconv.Itoa(ctx.Invoice.CreditTermDays))
	}

	// ---- DetalleServicio
	_ = enc.EncodeToken(startEl("DetalleServicio"))
	for _, la := range lines {
		s.writeLinea(enc, la)
	}
	_ = enc.EncodeToken(endEl("DetalleServicio"))

	// ---- ResumenFactura
	s.writeResumen(enc, ctx, totals)

	// ---- InformacionReferencia (notas de crédito/débito)
	if ref := ctx.Invoice.Reference; ref != nil {
		_ = enc.EncodeToken(startEl("InformacionReferencia"))
		writeEl(enc, "TipoDocIR", ref.DocType)
		writeEl(enc, "Numero", ref.Number)
		writeEl(enc, "FechaEmisionIR", ref.Date.Format("2006-01-02T15:04:05-07:00"))
		writeEl(enc, "Codigo", ref.Code)
		writeEl(enc, "Razon", clampString(ref.Reason, 1, 180))
		_ = enc.EncodeToken(endEl("InformacionReferencia"))
	}

	if err := enc.EncodeToken(root.End()); err != nil {
		return nil, err
	}
	if err := enc.Flush(); err != nil {
		return nil, err
	}
	return &BuildResult{XML: buf.Bytes(), Lines: lines, Totals: totals}, nil
}

func (s *XMLBuilderService) writeEmisor(enc *xml.Encoder, ctx *BuildContext) error {
	b := ctx.Business
	if !pkghacienda.ValidIdentificationTypes[b.IdentificationType] {
		return fmt.Errorf("hacienda: tipo de identificación del emisor %q inválido", b.IdentificationType)
	}

	_ = enc.EncodeToken(startEl("Emisor"))
	writeEl(enc, "Nombre", clampString(b.Name, 3, 100))
	_ = enc.EncodeToken(startEl("Identificacion"))
	writeEl(enc, "Tipo", b.IdentificationType)
	writeEl(enc, "Numero", onlyDigits(b.Identification))
	_ = enc.EncodeToken(endEl("Identificacion"))
	if b.TradeName != "" {
		writeEl(enc, "NombreComercial", clampString(b.TradeName, 1, 80))
	}
	if b.Province != "" {
		_ = enc.EncodeToken(startEl("Ubicacion"))
		writeEl(enc, "Provincia", b.Province)
		writeEl(enc, "Canton", b.Canton)
		writeEl(enc, "Distrito", b.District)
		if b.Neighborhood != "" {
			writeEl(enc, "Barrio", clampString(b.Neighborhood, 1, 50))
		}
		if b.OtherAddress != "" {
			writeEl(enc, "OtrasSenas", clampString(b.OtherAddress, 5, 250))
		}
		_ = enc.EncodeToken(endEl("Ubicacion"))
	}
	if b.Phone != "" {
		_ = enc.EncodeToken(startEl("Telefono"))
		writeEl(enc, "CodigoPais", "506")
		writeEl(enc, "NumTelefono", onlyDigits(b.Phone))
		_ = enc.EncodeToken(endEl("Telefono"))
	}
	if b.Email != "" {
		writeEl(enc, "CorreoElectronico", b.Email)
	}
	_ = enc.EncodeToken(endEl("Emisor"))
	return nil
}

func (s *XMLBuilderService) writeLinea(enc *xml.Encoder, la *LineAmounts) {
	item := la.Item

	_ = enc.EncodeToken(startEl("LineaDetalle"))
	writeEl(enc, "NumeroLinea", strconv.Itoa(item.LineNumber))
	writeEl(enc, "CodigoCABYS", item.CABYSCode)
	writeEl(enc, "Cantidad", formatCantidad(item.Quantity))
	writeEl(enc, "UnidadMedida", item.Unit)
	writeEl(enc, "Detalle", clampString(item.Description, 1, 200))
	writeEl(enc, "PrecioUnitario", formatMonto(item.UnitPrice))
	writeEl(enc, "MontoTotal", formatMonto(la.Gross))

	if item.HasDiscount() {
		_ = enc.EncodeToken(startEl("Descuento"))
		writeEl(enc, "MontoDescuento", formatMonto(la.Discount))
		if item.DiscountReason != "" {
			writeEl(enc, "NaturalezaDescuento", clampString(item.DiscountReason, 1, 80))
		}
		_ = enc.EncodeToken(endEl("Descuento"))
	}

	writeEl(enc, "SubTotal", formatMonto(la.SubTotal))
	writeEl(enc, "BaseImponible", formatMonto(la.SubTotal))

	if item.HasTax() {
		_ = enc.EncodeToken(startEl("Impuesto"))
		writeEl(enc, "Codigo", item.TaxCode)
		if la.TariffCode != "" {
			writeEl(enc, "CodigoTarifaIVA", la.TariffCode)
		}
		writeEl(enc, "Tarifa", formatTarifa(item.TaxRate))
		writeEl(enc, "Monto", formatMonto(la.Tax))
		if item.HasExoneration() {
			_ = enc.EncodeToken(startEl("Exoneracion"))
			writeEl(enc, "TipoDocumentoEX1", item.ExonerationDocType)
			writeEl(enc, "NumeroDocumento", item.ExonerationDocNum)
			writeEl(enc, "NombreInstitucion", clampString(item.ExonerationIssuer, 1, 160))
			writeEl(enc, "FechaEmisionEX", item.ExonerationDate.Format("2006-01-02T15:04:05-07:00"))
			writeEl(enc, "TarifaExonerada", formatTarifa(item.ExonerationPercent))
			writeEl(enc, "MontoExoneracion", formatMonto(la.Exoneration))
			_ = enc.EncodeToken(endEl("Exoneracion"))
		}
		_ = enc.EncodeToken(endEl("Impuesto"))
	}

	// Siempre presente en v4.4, con 0.00000 cuando el emisor no asume nada.
	writeEl(enc, "ImpuestoAsumidoEmisorFabrica", formatMonto(item.FactoryAssumedTax))
	writeEl(enc, "ImpuestoNeto", formatMonto(la.NetTax))
	writeEl(enc, "MontoTotalLinea", formatMonto(la.LineTotal))
	_ = enc.EncodeToken(endEl("LineaDetalle"))
}

func (s *XMLBuilderService) writeResumen(enc *xml.Encoder, ctx *BuildContext, t *Totals) {
	_ = enc.EncodeToken(startEl("ResumenFactura"))

	currency := ctx.Invoice.CurrencyCode
	if currency == "" {
		currency = "CRC"
	}
	rate := ctx.Invoice.ExchangeRate
	if rate.IsZero() {
		rate = decimal.NewFromInt(1)
	}
	_ = enc.EncodeToken(startEl("CodigoTipoMoneda"))
	writeEl(enc, "CodigoMoneda", currency)
	writeEl(enc, "TipoCambio", formatMonto(rate))
	_ = enc.EncodeToken(endEl("CodigoTipoMoneda"))

	writeEl(enc, "TotalServGravados", formatMonto(t.ServGravados))
	writeEl(enc, "TotalServExentos", formatMonto(t.ServExentos))
	writeEl(enc, "TotalServExonerado", formatMonto(t.ServExonerado))
	writeEl(enc, "TotalServNoSujeto", formatMonto(t.ServNoSujeto))
	writeEl(enc, "TotalMercanciasGravadas", formatMonto(t.MercGravadas))
	writeEl(enc, "TotalMercanciasExentas", formatMonto(t.MercExentas))
	writeEl(enc, "TotalMercExonerada", formatMonto(t.MercExonerada))
	writeEl(enc, "TotalGravado", formatMonto(t.Gravado))
	writeEl(enc, "TotalExento", formatMonto(t.Exento))
	writeEl(enc, "TotalExonerado", formatMonto(t.Exonerado))
	writeEl(enc, "TotalVenta", formatMonto(t.Venta))
	writeEl(enc, "TotalDescuentos", formatMonto(t.Descuentos))
	writeEl(enc, "TotalVentaNeta", formatMonto(t.VentaNeta))

	for _, b := range t.Breakdown {
		_ = enc.EncodeToken(startEl("TotalDesgloseImpuesto"))
		writeEl(enc, "Codigo", b.TaxCode)
		if b.TariffCode != "" {
			writeEl(enc, "CodigoTarifaIVA", b.TariffCode)
		}
		writeEl(enc, "TotalMontoImpuesto", formatMonto(b.Tax))
		_ = enc.EncodeToken(endEl("TotalDesgloseImpuesto"))
	}

	writeEl(enc, "TotalImpuesto", formatMonto(t.Impuesto))
	_ = enc.EncodeToken(startEl("MedioPago"))
	writeEl(enc, "TipoMedioPago", pkghacienda.PaymentMethodCode(ctx.Invoice.PaymentMethod))
	_ = enc.EncodeToken(endEl("MedioPago"))
	writeEl(enc, "TotalComprobante", formatMonto(t.Comprobante))

	_ = enc.EncodeToken(endEl("ResumenFactura"))
}

// ── helpers de serialización ─────────────────────────────────────────────────

func startEl(local string) xml.StartElement {
	return xml.StartElement{Name: xml.Name{Local: local}}
}

func endEl(local string) xml.EndElement {
	return xml.EndElement{Name: xml.Name{Local: local}}
}

func writeEl(enc *xml.Encoder, local, value string) {
	_ = enc.EncodeToken(startEl(local))
	_ = enc.EncodeToken(xml.CharData(value))
	_ = enc.EncodeToken(endEl(local))
}

// formatMonto serializa montos con exactamente 5 decimales (DecimalType v4.4).
func formatMonto(d decimal.Decimal) string {
	return d.Round(5).StringFixed(5)
}

// formatCantidad serializa cantidades con hasta 3 decimales, sin ceros a la
// derecha; cero se serializa como "0", nunca como cadena vacía.
func formatCantidad(d decimal.Decimal) string {
	s := d.Round(3).String()
	if strings.Contains(s, ".") {
		s = strings.TrimRight(s, "0")
		s = strings.TrimRight(s, ".")
	}
	if s == "" || s == "-" {
		return "0"
	}
	return s
}

// formatTarifa serializa porcentajes de tarifa con 2 decimales.
func formatTarifa(d decimal.Decimal) string {
	return d.Round(2).StringFixed(2)
}

// clampString ajusta un texto a los largos mínimo/máximo del esquema:
// rellena con espacios a la derecha si es corto, trunca si es largo.
func clampString(s string, min, max int) string {
	r := []rune(s)
	if len(r) > max {
		return string(r[:max])
	}
	for len(r) < min {
		r = append(r, ' ')
	}
	return string(r)
}

// onlyDigits deja solo dígitos 0-9.
func onlyDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
