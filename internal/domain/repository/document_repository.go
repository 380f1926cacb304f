package repository

import "github.com/tu-usuario/facturacion-cr/internal/domain/entity"

// DocumentRepository define el puerto de persistencia de comprobantes emitidos.
type DocumentRepository interface {
	Create(doc *entity.GeneratedDocument) error
	// UpdateStatus actualiza estado y detalle de error sin tocar XMLSigned.
	UpdateStatus(id, status, errorDetail string) error
	// IncrementAttempts suma uno al contador de envíos.
	IncrementAttempts(id string) error
	GetByID(id string) (*entity.GeneratedDocument, error)
	GetByClave(clave string) (*entity.GeneratedDocument, error)
	GetByInvoiceID(invoiceID string) (*entity.GeneratedDocument, error)
}

// ResponseRepository guarda el historial de respuestas de Hacienda.
type ResponseRepository interface {
	Create(resp *entity.HaciendaResponse) error
	GetByDocumentID(documentID string) ([]*entity.HaciendaResponse, error)
	GetLatestByClave(clave string) (*entity.HaciendaResponse, error)
}
