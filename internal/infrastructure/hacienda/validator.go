package hacienda

import (
	"fmt"
	"regexp"
	"time"

	"github.com/beevik/etree"
)

// ValidatorService valida la estructura del comprobante contra las reglas del
// esquema v4.4 que más rechazos producen en recepción: presencia y orden de
// los elementos de encabezado, formatos de clave y consecutivo, y la
// integridad mínima de detalle y resumen.
//
// Nunca lanza error por XML malformado: siempre devuelve un veredicto más la
// lista de violaciones en texto, apta para persistir junto al comprobante.
// Un resultado negativo no bloquea el envío por sí solo; esa decisión es del
// llamador.
type ValidatorService struct{}

// NewValidatorService crea el servicio.
func NewValidatorService() *ValidatorService {
	return &ValidatorService{}
}

var (
	reClave       = regexp.MustCompile(`^\d{50}$`)
	reConsecutivo = regexp.MustCompile(`^\d{20}$`)
	reActividad   = regexp.MustCompile(`^\d{6}$`)
)

// headerOrder orden del encabezado exigido por el XSD v4.4.
var headerOrder = []string{
	"Clave", "ProveedorSistemas", "CodigoActividadEmisor",
	"NumeroConsecutivo", "FechaEmision", "Emisor", "CondicionVenta",
}

// Validate revisa los bytes del comprobante (firmado o no).
func (s *ValidatorService) Validate(xmlBytes []byte) (bool, []string) {
	var violations []string

	if len(xmlBytes) == 0 {
		return false, []string{"documento vacío"}
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(xmlBytes); err != nil {
		return false, []string{fmt.Sprintf("XML malformado: %v", err)}
	}
	root := doc.Root()
	if root == nil {
		return false, []string{"documento sin elemento raíz"}
	}

	switch root.Tag {
	case "FacturaElectronica", "TiqueteElectronico", "NotaCreditoElectronica", "NotaDebitoElectronica", "FacturaElectronicaCompra", "FacturaElectronicaExportacion":
	default:
		violations = append(violations, fmt.Sprintf("elemento raíz %q no es un comprobante v4.4", root.Tag))
	}

	// Orden del encabezado
	pos := -1
	for _, name := range headerOrder {
		i := indexOfChild(root, name)
		if i < 0 {
			violations = append(violations, fmt.Sprintf("falta el elemento %s", name))
			continue
		}
		if i < pos {
			violations = append(violations, fmt.Sprintf("%s fuera de orden", name))
		}
		pos = i
	}

	if clave := childText(root, "Clave"); clave != "" && !reClave.MatchString(clave) {
		violations = append(violations, fmt.Sprintf("Clave %q no tiene 50 dígitos", clave))
	}
	if cons := childText(root, "NumeroConsecutivo"); cons != "" && !reConsecutivo.MatchString(cons) {
		violations = append(violations, fmt.Sprintf("NumeroConsecutivo %q no tiene 20 dígitos", cons))
	}
	if act := childText(root, "CodigoActividadEmisor"); act != "" && !reActividad.MatchString(act) {
		violations = append(violations, fmt.Sprintf("CodigoActividadEmisor %q no tiene 6 dígitos", act))
	}
	if fecha := childText(root, "FechaEmision"); fecha != "" {
		if _, err := time.Parse("2006-01-02T15:04:05-07:00", fecha); err != nil {
			violations = append(violations, fmt.Sprintf("FechaEmision %q no es ISO-8601 con zona", fecha))
		}
	}

	// Coherencia clave ↔ consecutivo
	clave, cons := childText(root, "Clave"), childText(root, "NumeroConsecutivo")
	if reClave.MatchString(clave) && reConsecutivo.MatchString(cons) && clave[21:41] != cons {
		violations = append(violations, "el consecutivo no coincide con las posiciones 22-41 de la clave")
	}

	violations = append(violations, s.validateEmisor(root)...)
	violations = append(violations, s.validateDetalle(root)...)
	violations = append(violations, s.validateResumen(root)...)

	// Si hay firma, debe ser el último hijo del elemento raíz.
	children := root.ChildElements()
	for i, c := range children {
		if localName(c) == "Signature" && i != len(children)-1 {
			violations = append(violations, "ds:Signature no es el último hijo del elemento raíz")
		}
	}

	return len(violations) == 0, violations
}

func (s *ValidatorService) validateEmisor(root *etree.Element) []string {
	var v []string
	emisor := root.FindElement("Emisor")
	if emisor == nil {
		return v // la ausencia ya se reportó en el encabezado
	}
	if childText(emisor, "Nombre") == "" {
		v = append(v, "Emisor sin Nombre")
	}
	ident := emisor.FindElement("Identificacion")
	if ident == nil {
		v = append(v, "Emisor sin Identificacion")
		return v
	}
	switch childText(ident, "Tipo") {
	case "01", "02", "03", "04":
	default:
		v = append(v, fmt.Sprintf("tipo de identificación del emisor %q inválido", childText(ident, "Tipo")))
	}
	if childText(ident, "Numero") == "" {
		v = append(v, "Emisor sin número de identificación")
	}
	return v
}

func (s *ValidatorService) validateDetalle(root *etree.Element) []string {
	var v []string
	detalle := root.FindElement("DetalleServicio")
	if detalle == nil {
		return []string{"falta DetalleServicio"}
	}
	lineas := detalle.FindElements("LineaDetalle")
	if len(lineas) == 0 {
		return []string{"DetalleServicio sin líneas"}
	}
	required := []string{"NumeroLinea", "CodigoCABYS", "Cantidad", "UnidadMedida", "Detalle", "PrecioUnitario", "MontoTotal", "SubTotal", "MontoTotalLinea"}
	for i, linea := range lineas {
		for _, name := range required {
			if childText(linea, name) == "" {
				v = append(v, fmt.Sprintf("línea %d sin %s", i+1, name))
			}
		}
	}
	return v
}

func (s *ValidatorService) validateResumen(root *etree.Element) []string {
	var v []string
	resumen := root.FindElement("ResumenFactura")
	if resumen == nil {
		return []string{"falta ResumenFactura"}
	}
	if resumen.FindElement("CodigoTipoMoneda") == nil {
		v = append(v, "ResumenFactura sin CodigoTipoMoneda")
	}
	for _, name := range []string{"TotalVenta", "TotalVentaNeta", "TotalComprobante"} {
		if childText(resumen, name) == "" {
			v = append(v, fmt.Sprintf("ResumenFactura sin %s", name))
		}
	}
	return v
}

// ── helpers ──────────────────────────────────────────────────────────────────

func localName(el *etree.Element) string {
	return el.Tag
}

func indexOfChild(el *etree.Element, local string) int {
	for i, c := range el.ChildElements() {
		if c.Tag == local {
			return i
		}
	}
	return -1
}

func childText(el *etree.Element, local string) string {
	c := el.FindElement(local)
	if c == nil {
		return ""
	}
	return c.Text()
}
