// Package hacienda implementa la generación, firma, validación y envío de
// comprobantes electrónicos v4.4 ante el Ministerio de Hacienda (Costa Rica).
package hacienda

import (
	"time"

	"github.com/tu-usuario/facturacion-cr/internal/domain/entity"
)

// BuildContext contexto con todos los datos necesarios para construir el XML
// del comprobante (sin firma).
type BuildContext struct {
	Invoice  *entity.Invoice
	Business *entity.Business // Emisor
	Items    []entity.InvoiceItem

	Clave       string // Clave numérica de 50 dígitos ya generada
	Consecutivo string // Número consecutivo de 20 dígitos

	ProveedorSistemas string // Cédula del proveedor de sistemas (v4.4)
	SchemaLocation    string // Valor de xsi:schemaLocation

	// IssueDate sobreescribe Invoice.Date como fecha de emisión si no es nil.
	IssueDate *time.Time
}
