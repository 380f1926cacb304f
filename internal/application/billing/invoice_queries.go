package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/tu-usuario/facturacion-cr/internal/application/dto"
	"github.com/tu-usuario/facturacion-cr/internal/domain"
	"github.com/tu-usuario/facturacion-cr/internal/domain/entity"
)

// Get devuelve la factura con su comprobante asociado (si ya se emitió).
// Valida que la factura pertenezca al emisor autenticado.
func (s *InvoiceService) Get(businessID, invoiceID string) (*entity.Invoice, *entity.GeneratedDocument, error) {
	inv, err := s.invoiceRepo.GetByID(invoiceID)
	if err != nil {
		return nil, nil, fmt.Errorf("consultar factura: %w", err)
	}
	if inv == nil {
		return nil, nil, fmt.Errorf("%w: factura %s", domain.ErrNotFound, invoiceID)
	}
	if inv.BusinessID != businessID {
		return nil, nil, domain.ErrForbidden
	}

	items, err := s.invoiceRepo.GetItemsByInvoiceID(invoiceID)
	if err != nil {
		return nil, nil, fmt.Errorf("consultar líneas: %w", err)
	}
	for _, it := range items {
		inv.Items = append(inv.Items, *it)
	}

	doc, err := s.docRepo.GetByInvoiceID(invoiceID)
	if err != nil {
		return nil, nil, fmt.Errorf("consultar comprobante: %w", err)
	}
	return inv, doc, nil
}

// GetSignedXML devuelve los bytes exactos del XML firmado.
func (s *InvoiceService) GetSignedXML(businessID, invoiceID string) ([]byte, error) {
	doc, err := s.document(businessID, invoiceID)
	if err != nil {
		return nil, err
	}
	if len(doc.XMLSigned) == 0 {
		return nil, fmt.Errorf("%w: la factura %s no tiene comprobante firmado", domain.ErrDocumentoNoFirmado, invoiceID)
	}
	return doc.XMLSigned, nil
}

// Resubmit reenvía el comprobante ya firmado con la misma clave y los mismos
// bytes. Útil cuando el envío original falló por transporte.
func (s *InvoiceService) Resubmit(ctx context.Context, businessID, invoiceID string) (*dto.DocumentStatusResponse, error) {
	doc, err := s.document(businessID, invoiceID)
	if err != nil {
		return nil, err
	}
	if err := s.orchestrator.Submit(ctx, doc); err != nil {
		return nil, err
	}
	return s.statusResponse(doc, nil), nil
}

// Status consulta el estado del comprobante ante Hacienda y lo devuelve
// actualizado. Si el comprobante aún no se envió, devuelve el estado local.
func (s *InvoiceService) Status(ctx context.Context, businessID, invoiceID string) (*dto.DocumentStatusResponse, error) {
	doc, err := s.document(businessID, invoiceID)
	if err != nil {
		return nil, err
	}
	if doc.Status == entity.DocStatusGenerado || doc.Status == entity.DocStatusError {
		return s.statusResponse(doc, nil), nil
	}

	resp, err := s.orchestrator.RefreshStatus(ctx, doc.ID)
	if err != nil {
		return nil, err
	}
	// Releer: RefreshStatus pudo mover el estado local.
	doc, derr := s.docRepo.GetByID(doc.ID)
	if derr != nil || doc == nil {
		return nil, fmt.Errorf("releer comprobante: %w", derr)
	}
	return s.statusResponse(doc, resp), nil
}

func (s *InvoiceService) document(businessID, invoiceID string) (*entity.GeneratedDocument, error) {
	doc, err := s.docRepo.GetByInvoiceID(invoiceID)
	if err != nil {
		return nil, fmt.Errorf("consultar comprobante: %w", err)
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: la factura %s no tiene comprobante", domain.ErrNotFound, invoiceID)
	}
	if doc.BusinessID != businessID {
		return nil, domain.ErrForbidden
	}
	return doc, nil
}

func (s *InvoiceService) statusResponse(doc *entity.GeneratedDocument, resp *entity.HaciendaResponse) *dto.DocumentStatusResponse {
	out := &dto.DocumentStatusResponse{
		DocumentID:  doc.ID,
		Clave:       doc.Clave,
		Status:      doc.Status,
		Attempts:    doc.Attempts,
		ErrorDetail: doc.ErrorDetail,
		CheckedAt:   time.Now(),
	}
	if resp != nil {
		out.IndEstado = resp.IndEstado
		out.Message = resp.Message
	}
	return out
}
