package entity

import "time"

// Estados del comprobante en su ciclo de vida local y ante Hacienda.
const (
	DocStatusGenerado  = "GENERADO"  // XML construido y firmado, sin enviar
	DocStatusEnviado   = "ENVIADO"   // Recibido por el endpoint de recepción, en proceso
	DocStatusAceptado  = "ACEPTADO"  // Aceptado por Hacienda
	DocStatusRechazado = "RECHAZADO" // Rechazado por Hacienda
	DocStatusError     = "ERROR"     // Falló generación, firma o transporte
)

// GeneratedDocument es un comprobante ya emitido: clave, consecutivo y los
// bytes firmados. XMLSigned es inmutable una vez firmado; cualquier
// re-serialización invalida los digests de la firma.
type GeneratedDocument struct {
	ID           string
	InvoiceID    string
	BusinessID   string
	Clave        string // Clave numérica de 50 dígitos
	Consecutivo  string // Número consecutivo de 20 dígitos
	DocumentType string
	Date         time.Time
	XMLSigned    []byte // Bytes exactos del XML firmado
	SchemaValid  bool   // Resultado de la validación estructural local
	Attempts     int    // Número de envíos a recepción realizados
	Status       string
	ErrorDetail  string // Detalle del último error (texto)
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HaciendaResponse es la respuesta de Hacienda asociada a un comprobante,
// tanto del POST de recepción como de las consultas de estado posteriores.
type HaciendaResponse struct {
	ID           string
	DocumentID   string
	Clave        string
	IndEstado    string // recibido, procesando, aceptado, rechazado
	HTTPStatus   int
	Message      string // Mensaje de error o detalle devuelto
	RespuestaXML []byte // respuesta-xml decodificada (acuse MH), si la hay
	ReceivedAt   time.Time
}
