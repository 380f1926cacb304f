package repository

import "github.com/tu-usuario/facturacion-cr/internal/domain/entity"

// InvoiceRepository define el puerto de persistencia para facturas y líneas.
type InvoiceRepository interface {
	Create(invoice *entity.Invoice) error
	CreateItem(item *entity.InvoiceItem) error
	GetByID(id string) (*entity.Invoice, error)
	GetItemsByInvoiceID(invoiceID string) ([]*entity.InvoiceItem, error)
	// NextSequential reserva y devuelve el siguiente consecutivo para la
	// combinación emisor/sucursal/terminal/tipo. Debe ser atómico.
	NextSequential(businessID string, branch, terminal int, docType string) (int64, error)
}
