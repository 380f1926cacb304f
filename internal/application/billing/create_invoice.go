package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tu-usuario/facturacion-cr/internal/application/dto"
	"github.com/tu-usuario/facturacion-cr/internal/domain"
	"github.com/tu-usuario/facturacion-cr/internal/domain/entity"
	"github.com/tu-usuario/facturacion-cr/internal/domain/repository"
	pkghacienda "github.com/tu-usuario/facturacion-cr/pkg/hacienda"
)

// InvoiceService casos de uso de facturación: crear la factura con su
// consecutivo reservado y disparar la emisión.
type InvoiceService struct {
	invoiceRepo  repository.InvoiceRepository
	businessRepo repository.BusinessRepository
	docRepo      repository.DocumentRepository
	txRunner     TxRunner
	orchestrator *Orchestrator
}

// NewInvoiceService crea el servicio.
func NewInvoiceService(
	invoiceRepo repository.InvoiceRepository,
	businessRepo repository.BusinessRepository,
	docRepo repository.DocumentRepository,
	txRunner TxRunner,
	orchestrator *Orchestrator,
) *InvoiceService {
	return &InvoiceService{
		invoiceRepo:  invoiceRepo,
		businessRepo: businessRepo,
		docRepo:      docRepo,
		txRunner:     txRunner,
		orchestrator: orchestrator,
	}
}

// Create valida el payload, reserva el consecutivo, persiste factura y líneas
// y dispara la emisión asíncrona. Devuelve la factura ya persistida.
func (s *InvoiceService) Create(businessID string, req *dto.CreateInvoiceRequest) (*entity.Invoice, error) {
	if req == nil || len(req.Items) == 0 {
		return nil, fmt.Errorf("%w: la factura necesita al menos una línea", domain.ErrInvalidInput)
	}

	business, err := s.businessRepo.GetByID(businessID)
	if err != nil || business == nil {
		return nil, fmt.Errorf("%w: emisor %s", domain.ErrNotFound, businessID)
	}

	inv, err := s.buildInvoice(businessID, req)
	if err != nil {
		return nil, err
	}

	// Consecutivo, cabecera y líneas confirman en una sola transacción:
	// un consecutivo reservado sin factura dejaría un hueco en la numeración.
	err = s.txRunner.Run(context.Background(), func(invoiceRepo repository.InvoiceRepository) error {
		seq, err := invoiceRepo.NextSequential(businessID, inv.Branch, inv.Terminal, inv.DocumentType)
		if err != nil {
			return fmt.Errorf("reservar consecutivo: %w", err)
		}
		inv.Sequential = seq

		if err := invoiceRepo.Create(inv); err != nil {
			return fmt.Errorf("persistir factura: %w", err)
		}
		for i := range inv.Items {
			inv.Items[i].InvoiceID = inv.ID
			if err := invoiceRepo.CreateItem(&inv.Items[i]); err != nil {
				return fmt.Errorf("persistir línea %d: %w", i+1, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.orchestrator.EmitAsync(inv.ID)
	return inv, nil
}

// buildInvoice traduce el DTO a la entidad, aplicando defaults y validando
// catálogos.
func (s *InvoiceService) buildInvoice(businessID string, req *dto.CreateInvoiceRequest) (*entity.Invoice, error) {
	docType := req.DocumentType
	if docType == "" {
		docType = pkghacienda.DocTypeTiqueteElectronico
	}
	if !pkghacienda.ValidDocumentTypes[docType] {
		return nil, fmt.Errorf("%w: tipo de comprobante %q", domain.ErrInvalidInput, docType)
	}

	saleCondition := req.SaleCondition
	if saleCondition == "" {
		saleCondition = pkghacienda.SaleConditionContado
	}
	if saleCondition == pkghacienda.SaleConditionCredito && req.CreditDays <= 0 {
		return nil, fmt.Errorf("%w: venta a crédito sin plazo", domain.ErrInvalidInput)
	}

	branch, terminal := req.Branch, req.Terminal
	if branch == 0 {
		branch = 1
	}
	if terminal == 0 {
		terminal = 1
	}

	currency := req.CurrencyCode
	if currency == "" {
		currency = "CRC"
	}
	exchangeRate := decimal.NewFromInt(1)
	if req.ExchangeRate != "" {
		parsed, err := decimal.NewFromString(req.ExchangeRate)
		if err != nil || parsed.Sign() <= 0 {
			return nil, fmt.Errorf("%w: tipo de cambio %q", domain.ErrInvalidInput, req.ExchangeRate)
		}
		exchangeRate = parsed
	}

	inv := &entity.Invoice{
		ID:             uuid.NewString(),
		BusinessID:     businessID,
		DocumentType:   docType,
		Branch:         branch,
		Terminal:       terminal,
		Date:           time.Now(),
		SaleCondition:  saleCondition,
		CreditTermDays: req.CreditDays,
		PaymentMethod:  req.PaymentMethod,
		CurrencyCode:   currency,
		ExchangeRate:   exchangeRate,
		CustomerName:   req.CustomerName,
		CustomerID:     req.CustomerID,
		CreatedAt:      time.Now(),
	}

	// La nota de crédito siempre referencia al comprobante que anula o corrige.
	if docType == pkghacienda.DocTypeNotaCredito && req.Reference == nil {
		return nil, fmt.Errorf("%w: nota de crédito sin referencia", domain.ErrInvalidInput)
	}
	if req.Reference != nil {
		ref, err := buildReference(req.Reference)
		if err != nil {
			return nil, err
		}
		inv.Reference = ref
	}

	for i, it := range req.Items {
		item, err := buildItem(i+1, it)
		if err != nil {
			return nil, err
		}
		inv.Items = append(inv.Items, *item)
	}
	return inv, nil
}

func buildReference(ref *dto.DocumentReference) (*entity.DocumentReference, error) {
	if ref.Number == "" || ref.Code == "" {
		return nil, fmt.Errorf("%w: referencia sin número o sin código", domain.ErrInvalidInput)
	}
	out := &entity.DocumentReference{
		DocType: ref.DocType,
		Number:  ref.Number,
		Code:    ref.Code,
		Reason:  ref.Reason,
	}
	if ref.Date != "" {
		d, err := time.Parse(time.RFC3339, ref.Date)
		if err != nil {
			return nil, fmt.Errorf("%w: fecha de referencia %q", domain.ErrInvalidInput, ref.Date)
		}
		out.Date = d
	}
	return out, nil
}

func buildItem(lineNumber int, it dto.CreateInvoiceItem) (*entity.InvoiceItem, error) {
	if it.CABYSCode == "" || it.Description == "" {
		return nil, fmt.Errorf("%w: línea %d sin CABYS o descripción", domain.ErrInvalidInput, lineNumber)
	}

	qty, err := decimal.NewFromString(it.Quantity)
	if err != nil || qty.Sign() <= 0 {
		return nil, fmt.Errorf("%w: línea %d con cantidad %q", domain.ErrInvalidInput, lineNumber, it.Quantity)
	}
	price, err := decimal.NewFromString(it.UnitPrice)
	if err != nil || price.Sign() < 0 {
		return nil, fmt.Errorf("%w: línea %d con precio %q", domain.ErrInvalidInput, lineNumber, it.UnitPrice)
	}

	discount := decimal.Zero
	if it.DiscountPercent != "" {
		discount, err = decimal.NewFromString(it.DiscountPercent)
		if err != nil || discount.Sign() < 0 || discount.GreaterThan(decimal.NewFromInt(100)) {
			return nil, fmt.Errorf("%w: línea %d con descuento %q", domain.ErrInvalidInput, lineNumber, it.DiscountPercent)
		}
	}

	taxRate := decimal.Zero
	if it.TaxCode != "" {
		if !pkghacienda.ValidTaxCodes[it.TaxCode] {
			return nil, fmt.Errorf("%w: línea %d con código de impuesto %q", domain.ErrInvalidInput, lineNumber, it.TaxCode)
		}
		taxRate, err = decimal.NewFromString(it.TaxRate)
		if err != nil || taxRate.Sign() < 0 {
			return nil, fmt.Errorf("%w: línea %d con tarifa %q", domain.ErrInvalidInput, lineNumber, it.TaxRate)
		}
	}

	unit := it.Unit
	if unit == "" {
		unit = "Unid"
	}

	item := &entity.InvoiceItem{
		ID:              uuid.NewString(),
		LineNumber:      lineNumber,
		CABYSCode:       it.CABYSCode,
		Description:     it.Description,
		Quantity:        qty,
		Unit:            unit,
		UnitPrice:       price,
		DiscountPercent: discount,
		DiscountReason:  it.DiscountReason,
		TaxCode:         it.TaxCode,
		TaxRate:         taxRate,
	}

	if it.ExonerationPercent != "" {
		exon, err := decimal.NewFromString(it.ExonerationPercent)
		if err != nil || exon.Sign() < 0 || exon.GreaterThan(decimal.NewFromInt(100)) {
			return nil, fmt.Errorf("%w: línea %d con exoneración %q", domain.ErrInvalidInput, lineNumber, it.ExonerationPercent)
		}
		if exon.IsPositive() && (it.ExonerationDocType == "" || it.ExonerationDocNum == "") {
			return nil, fmt.Errorf("%w: línea %d exonerada sin documento de respaldo", domain.ErrInvalidInput, lineNumber)
		}
		item.ExonerationPercent = exon
		item.ExonerationDocType = it.ExonerationDocType
		item.ExonerationDocNum = it.ExonerationDocNum
		item.ExonerationIssuer = it.ExonerationIssuer
		if it.ExonerationDate != "" {
			d, err := time.Parse(time.RFC3339, it.ExonerationDate)
			if err != nil {
				return nil, fmt.Errorf("%w: línea %d con fecha de exoneración %q", domain.ErrInvalidInput, lineNumber, it.ExonerationDate)
			}
			item.ExonerationDate = d
		}
	}

	if it.FactoryAssumedTax != "" {
		assumed, err := decimal.NewFromString(it.FactoryAssumedTax)
		if err != nil || assumed.Sign() < 0 {
			return nil, fmt.Errorf("%w: línea %d con impuesto asumido %q", domain.ErrInvalidInput, lineNumber, it.FactoryAssumedTax)
		}
		item.FactoryAssumedTax = assumed
	}

	return item, nil
}
