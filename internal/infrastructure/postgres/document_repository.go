package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/tu-usuario/facturacion-cr/internal/domain/entity"
	"github.com/tu-usuario/facturacion-cr/internal/domain/repository"
)

var _ repository.DocumentRepository = (*DocumentRepo)(nil)

// DocumentRepo implementación de DocumentRepository (usable con pool o tx).
type DocumentRepo struct {
	q Querier
}

// NewDocumentRepository construye el adaptador. Pasar pool o tx (Querier).
func NewDocumentRepository(q Querier) *DocumentRepo {
	return &DocumentRepo{q: q}
}

// Create persiste el comprobante con sus bytes firmados.
func (r *DocumentRepo) Create(doc *entity.GeneratedDocument) error {
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}
	query := `
		INSERT INTO documents (id, invoice_id, business_id, clave, consecutivo, document_type, date,
		                       xml_signed, schema_valid, attempts, status, error_detail, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	_, err := r.q.Exec(context.Background(), query,
		doc.ID, doc.InvoiceID, doc.BusinessID, doc.Clave, doc.Consecutivo,
		doc.DocumentType, doc.Date, doc.XMLSigned, doc.SchemaValid, doc.Attempts,
		doc.Status, nullIfEmpty(doc.ErrorDetail), doc.CreatedAt, doc.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("clave already registered: %w", err)
		}
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

// UpdateStatus actualiza estado y detalle de error. Nunca toca xml_signed:
// los bytes firmados son inmutables.
func (r *DocumentRepo) UpdateStatus(id, status, errorDetail string) error {
	query := `
		UPDATE documents
		SET status = $2, error_detail = $3, updated_at = $4
		WHERE id = $1`
	_, err := r.q.Exec(context.Background(), query, id, status, nullIfEmpty(errorDetail), time.Now())
	if err != nil {
		return fmt.Errorf("update document status: %w", err)
	}
	return nil
}

// IncrementAttempts suma uno al contador de envíos.
func (r *DocumentRepo) IncrementAttempts(id string) error {
	query := `UPDATE documents SET attempts = attempts + 1, updated_at = $2 WHERE id = $1`
	_, err := r.q.Exec(context.Background(), query, id, time.Now())
	if err != nil {
		return fmt.Errorf("increment document attempts: %w", err)
	}
	return nil
}

// GetByID devuelve el comprobante o (nil, nil) si no existe.
func (r *DocumentRepo) GetByID(id string) (*entity.GeneratedDocument, error) {
	return r.getOne(`WHERE id = $1`, id)
}

// GetByClave devuelve el comprobante por clave de 50 dígitos.
func (r *DocumentRepo) GetByClave(clave string) (*entity.GeneratedDocument, error) {
	return r.getOne(`WHERE clave = $1`, clave)
}

// GetByInvoiceID devuelve el comprobante asociado a la factura.
func (r *DocumentRepo) GetByInvoiceID(invoiceID string) (*entity.GeneratedDocument, error) {
	return r.getOne(`WHERE invoice_id = $1`, invoiceID)
}

func (r *DocumentRepo) getOne(where string, arg any) (*entity.GeneratedDocument, error) {
	query := `
		SELECT id, invoice_id, business_id, clave, consecutivo, document_type, date,
		       xml_signed, schema_valid, attempts, status, COALESCE(error_detail, ''), created_at, updated_at
		FROM documents ` + where

	var d entity.GeneratedDocument
	err := r.q.QueryRow(context.Background(), query, arg).Scan(
		&d.ID, &d.InvoiceID, &d.BusinessID, &d.Clave, &d.Consecutivo,
		&d.DocumentType, &d.Date, &d.XMLSigned, &d.SchemaValid, &d.Attempts,
		&d.Status, &d.ErrorDetail, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select document: %w", err)
	}
	return &d, nil
}
