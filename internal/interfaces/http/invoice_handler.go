package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/tu-usuario/facturacion-cr/internal/application/billing"
	"github.com/tu-usuario/facturacion-cr/internal/application/dto"
	"github.com/tu-usuario/facturacion-cr/internal/domain"
	"github.com/tu-usuario/facturacion-cr/internal/infrastructure/hacienda"
)

// InvoiceHandler maneja las peticiones HTTP de facturación (protegido).
type InvoiceHandler struct {
	svc *billing.InvoiceService
}

// NewInvoiceHandler construye el handler.
func NewInvoiceHandler(svc *billing.InvoiceService) *InvoiceHandler {
	return &InvoiceHandler{svc: svc}
}

// Create crea una factura y dispara la emisión asíncrona del comprobante.
// POST /api/invoices
func (h *InvoiceHandler) Create(c *fiber.Ctx) error {
	businessID := GetBusinessID(c)
	if businessID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "token inválido"})
	}
	var in dto.CreateInvoiceRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	invoice, err := h.svc.Create(businessID, &in)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.InvoiceResponse{
		ID:           invoice.ID,
		DocumentType: invoice.DocumentType,
		Sequential:   invoice.Sequential,
		Date:         invoice.Date,
		Status:       "PROCESANDO",
	})
}

// GetByID obtiene la factura con el estado de su comprobante.
// GET /api/invoices/:id
func (h *InvoiceHandler) GetByID(c *fiber.Ctx) error {
	businessID := GetBusinessID(c)
	if businessID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "token inválido"})
	}
	id := c.Params("id")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "id requerido"})
	}
	invoice, doc, err := h.svc.Get(businessID, id)
	if err != nil {
		return writeError(c, err)
	}
	out := dto.InvoiceResponse{
		ID:           invoice.ID,
		DocumentType: invoice.DocumentType,
		Sequential:   invoice.Sequential,
		Date:         invoice.Date,
	}
	if doc != nil {
		out.Status = doc.Status
		out.Clave = doc.Clave
		out.Consecutivo = doc.Consecutivo
	}
	return c.JSON(out)
}

// GetXML devuelve los bytes exactos del comprobante firmado. Nunca se
// re-serializa: cualquier transformación invalidaría la firma.
// GET /api/invoices/:id/xml
func (h *InvoiceHandler) GetXML(c *fiber.Ctx) error {
	businessID := GetBusinessID(c)
	if businessID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "token inválido"})
	}
	id := c.Params("id")
	xmlBytes, err := h.svc.GetSignedXML(businessID, id)
	if err != nil {
		return writeError(c, err)
	}
	c.Set(fiber.HeaderContentType, "application/xml; charset=utf-8")
	return c.Send(xmlBytes)
}

// Submit reintenta el envío del comprobante a Hacienda con la misma clave.
// POST /api/invoices/:id/submit
func (h *InvoiceHandler) Submit(c *fiber.Ctx) error {
	businessID := GetBusinessID(c)
	if businessID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "token inválido"})
	}
	id := c.Params("id")
	status, err := h.svc.Resubmit(c.Context(), businessID, id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(status)
}

// Status consulta el estado del comprobante ante Hacienda.
// GET /api/invoices/:id/status
func (h *InvoiceHandler) Status(c *fiber.Ctx) error {
	businessID := GetBusinessID(c)
	if businessID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "token inválido"})
	}
	id := c.Params("id")
	status, err := h.svc.Status(c.Context(), businessID, id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(status)
}

// writeError traduce errores de dominio a respuestas HTTP uniformes.
func writeError(c *fiber.Ctx, err error) error {
	var rejected *hacienda.RejectedError
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: err.Error()})
	case errors.Is(err, domain.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Code: "NOT_FOUND", Message: err.Error()})
	case errors.Is(err, domain.ErrForbidden):
		return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{Code: "FORBIDDEN", Message: "acceso denegado al recurso"})
	case errors.Is(err, domain.ErrConflict):
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Code: "CONFLICT", Message: err.Error()})
	case errors.Is(err, domain.ErrDocumentoNoFirmado):
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Code: "NOT_SIGNED", Message: err.Error()})
	case errors.As(err, &rejected):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(dto.ErrorResponse{Code: "REJECTED", Message: rejected.Message})
	case errors.Is(err, hacienda.ErrTransport):
		return c.Status(fiber.StatusBadGateway).JSON(dto.ErrorResponse{Code: "HACIENDA_UNREACHABLE", Message: "no se pudo contactar a Hacienda"})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}
}
