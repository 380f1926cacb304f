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

var _ repository.InvoiceRepository = (*InvoiceRepo)(nil)

// InvoiceRepo implementación de InvoiceRepository (usable con pool o tx).
type InvoiceRepo struct {
	q Querier
}

// NewInvoiceRepository construye el adaptador. Pasar pool o tx (Querier).
func NewInvoiceRepository(q Querier) *InvoiceRepo {
	return &InvoiceRepo{q: q}
}

// Create persiste la cabecera de la factura. Las líneas se insertan aparte.
func (r *InvoiceRepo) Create(invoice *entity.Invoice) error {
	if invoice.ID == "" {
		invoice.ID = uuid.New().String()
	}
	if invoice.CreatedAt.IsZero() {
		invoice.CreatedAt = time.Now()
	}
	var refType, refNumber, refCode, refReason any
	var refDate any
	if invoice.Reference != nil {
		refType = invoice.Reference.DocType
		refNumber = invoice.Reference.Number
		refCode = invoice.Reference.Code
		refReason = invoice.Reference.Reason
		refDate = invoice.Reference.Date
	}
	query := `
		INSERT INTO invoices (id, business_id, document_type, branch, terminal, sequential, date,
		                      sale_condition, credit_term_days, payment_method, currency_code, exchange_rate,
		                      customer_name, customer_id,
		                      ref_doc_type, ref_number, ref_date, ref_code, ref_reason,
		                      created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`
	_, err := r.q.Exec(context.Background(), query,
		invoice.ID, invoice.BusinessID, invoice.DocumentType,
		invoice.Branch, invoice.Terminal, invoice.Sequential, invoice.Date,
		invoice.SaleCondition, invoice.CreditTermDays, invoice.PaymentMethod,
		invoice.CurrencyCode, invoice.ExchangeRate,
		nullIfEmpty(invoice.CustomerName), nullIfEmpty(invoice.CustomerID),
		refType, refNumber, refDate, refCode, refReason,
		invoice.CreatedAt, invoice.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("duplicate consecutive for business: %w", err)
		}
		return fmt.Errorf("insert invoice: %w", err)
	}
	return nil
}

// CreateItem persiste una línea de detalle.
func (r *InvoiceRepo) CreateItem(item *entity.InvoiceItem) error {
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	var exonDate any
	if !item.ExonerationDate.IsZero() {
		exonDate = item.ExonerationDate
	}
	query := `
		INSERT INTO invoice_items (id, invoice_id, line_number, cabys_code, description,
		                           quantity, unit, unit_price, discount_percent, discount_reason,
		                           tax_code, tax_rate,
		                           exoneration_percent, exoneration_doc_type, exoneration_doc_num,
		                           exoneration_issuer, exoneration_date, factory_assumed_tax)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`
	_, err := r.q.Exec(context.Background(), query,
		item.ID, item.InvoiceID, item.LineNumber, item.CABYSCode, item.Description,
		item.Quantity, item.Unit, item.UnitPrice, item.DiscountPercent, nullIfEmpty(item.DiscountReason),
		nullIfEmpty(item.TaxCode), item.TaxRate,
		item.ExonerationPercent, nullIfEmpty(item.ExonerationDocType), nullIfEmpty(item.ExonerationDocNum),
		nullIfEmpty(item.ExonerationIssuer), exonDate, item.FactoryAssumedTax,
	)
	if err != nil {
		return fmt.Errorf("insert invoice item: %w", err)
	}
	return nil
}

// GetByID devuelve la cabecera o (nil, nil) si no existe. No carga las líneas.
func (r *InvoiceRepo) GetByID(id string) (*entity.Invoice, error) {
	query := `
		SELECT id, business_id, document_type, branch, terminal, sequential, date,
		       sale_condition, credit_term_days, payment_method, currency_code, exchange_rate,
		       COALESCE(customer_name, ''), COALESCE(customer_id, ''),
		       COALESCE(ref_doc_type, ''), COALESCE(ref_number, ''), ref_date,
		       COALESCE(ref_code, ''), COALESCE(ref_reason, ''),
		       created_at, updated_at
		FROM invoices WHERE id = $1`

	var inv entity.Invoice
	var refType, refNumber, refCode, refReason string
	var refDate *time.Time
	err := r.q.QueryRow(context.Background(), query, id).Scan(
		&inv.ID, &inv.BusinessID, &inv.DocumentType, &inv.Branch, &inv.Terminal, &inv.Sequential, &inv.Date,
		&inv.SaleCondition, &inv.CreditTermDays, &inv.PaymentMethod, &inv.CurrencyCode, &inv.ExchangeRate,
		&inv.CustomerName, &inv.CustomerID,
		&refType, &refNumber, &refDate, &refCode, &refReason,
		&inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select invoice: %w", err)
	}
	if refNumber != "" {
		ref := entity.DocumentReference{DocType: refType, Number: refNumber, Code: refCode, Reason: refReason}
		if refDate != nil {
			ref.Date = *refDate
		}
		inv.Reference = &ref
	}
	return &inv, nil
}

// GetItemsByInvoiceID devuelve las líneas ordenadas por número de línea.
func (r *InvoiceRepo) GetItemsByInvoiceID(invoiceID string) ([]*entity.InvoiceItem, error) {
	query := `
		SELECT id, invoice_id, line_number, cabys_code, description,
		       quantity, unit, unit_price, discount_percent, COALESCE(discount_reason, ''),
		       COALESCE(tax_code, ''), tax_rate,
		       exoneration_percent, COALESCE(exoneration_doc_type, ''), COALESCE(exoneration_doc_num, ''),
		       COALESCE(exoneration_issuer, ''), exoneration_date, factory_assumed_tax
		FROM invoice_items WHERE invoice_id = $1
		ORDER BY line_number`

	rows, err := r.q.Query(context.Background(), query, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("select invoice items: %w", err)
	}
	defer rows.Close()

	var items []*entity.InvoiceItem
	for rows.Next() {
		var it entity.InvoiceItem
		var exonDate *time.Time
		if err := rows.Scan(
			&it.ID, &it.InvoiceID, &it.LineNumber, &it.CABYSCode, &it.Description,
			&it.Quantity, &it.Unit, &it.UnitPrice, &it.DiscountPercent, &it.DiscountReason,
			&it.TaxCode, &it.TaxRate,
			&it.ExonerationPercent, &it.ExonerationDocType, &it.ExonerationDocNum,
			&it.ExonerationIssuer, &exonDate, &it.FactoryAssumedTax,
		); err != nil {
			return nil, fmt.Errorf("scan invoice item: %w", err)
		}
		if exonDate != nil {
			it.ExonerationDate = *exonDate
		}
		items = append(items, &it)
	}
	return items, rows.Err()
}

// NextSequential reserva el siguiente consecutivo de forma atómica mediante
// un upsert sobre la tabla de secuencias. El RETURNING garantiza que dos
// llamadas concurrentes nunca obtienen el mismo número.
func (r *InvoiceRepo) NextSequential(businessID string, branch, terminal int, docType string) (int64, error) {
	query := `
		INSERT INTO document_sequences (business_id, branch, terminal, document_type, last_value)
		VALUES ($1, $2, $3, $4, 1)
		ON CONFLICT (business_id, branch, terminal, document_type)
		DO UPDATE SET last_value = document_sequences.last_value + 1
		RETURNING last_value`

	var next int64
	err := r.q.QueryRow(context.Background(), query, businessID, branch, terminal, docType).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("next sequential: %w", err)
	}
	return next, nil
}
