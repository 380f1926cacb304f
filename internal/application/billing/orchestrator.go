package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tu-usuario/facturacion-cr/internal/domain"
	domainhacienda "github.com/tu-usuario/facturacion-cr/internal/domain/hacienda"

	"github.com/tu-usuario/facturacion-cr/internal/domain/entity"
	"github.com/tu-usuario/facturacion-cr/internal/domain/repository"
	infrahacienda "github.com/tu-usuario/facturacion-cr/internal/infrastructure/hacienda"
	"github.com/tu-usuario/facturacion-cr/pkg/config"
	"github.com/tu-usuario/facturacion-cr/pkg/logger"
)

// Orchestrator orquesta el ciclo completo del comprobante electrónico:
//
//	Clave → XML v4.4 → Firma XAdES-BES → Validación → Envío a recepción → Update DB
//
// Se ejecuta en goroutine independiente (EmitAsync) con su propio
// context.Background() + timeout, desacoplado del ciclo HTTP.
//
// Modos de operación (HaciendaConfig.Env):
//   - "dev"  → Genera, firma y valida; NO envía. Estado final: GENERADO.
//   - "stag" → Envía al sandbox api-sandbox.comprobanteselectronicos.go.cr.
//   - "prod" → Envía a producción api.comprobanteselectronicos.go.cr.
type Orchestrator struct {
	invoiceRepo  repository.InvoiceRepository
	businessRepo repository.BusinessRepository
	docRepo      repository.DocumentRepository
	respRepo     repository.ResponseRepository

	claveSvc   *domainhacienda.ClaveService
	xmlBuilder *infrahacienda.XMLBuilderService
	validator  Validator
	identities IdentityLoader
	signer     Signer
	tokens     TokenProvider
	submitter  Submitter // nil en dev

	cfg config.HaciendaConfig
	log *logger.Logger
}

// NewOrchestrator construye el orquestador con todas sus dependencias.
// submitter y tokens pueden ser nil: en ese caso solo funciona el modo dev.
func NewOrchestrator(
	invoiceRepo repository.InvoiceRepository,
	businessRepo repository.BusinessRepository,
	docRepo repository.DocumentRepository,
	respRepo repository.ResponseRepository,
	claveSvc *domainhacienda.ClaveService,
	xmlBuilder *infrahacienda.XMLBuilderService,
	validator Validator,
	identities IdentityLoader,
	signer Signer,
	tokens TokenProvider,
	submitter Submitter,
	cfg config.HaciendaConfig,
	log *logger.Logger,
) *Orchestrator {
	return &Orchestrator{
		invoiceRepo:  invoiceRepo,
		businessRepo: businessRepo,
		docRepo:      docRepo,
		respRepo:     respRepo,
		claveSvc:     claveSvc,
		xmlBuilder:   xmlBuilder,
		validator:    validator,
		identities:   identities,
		signer:       signer,
		tokens:       tokens,
		submitter:    submitter,
		cfg:          cfg,
		log:          log.With("component", "orchestrator"),
	}
}

// EmitAsync dispara la emisión en una goroutine independiente. invoiceID es
// el ID de la factura ya persistida con sus líneas y consecutivo reservado.
func (o *Orchestrator) EmitAsync(invoiceID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()
		if _, err := o.Emit(ctx, invoiceID); err != nil {
			o.log.Error().Err(err).Str("invoice_id", invoiceID).Msg("emisión fallida")
		}
	}()
}

// Emit ejecuta el ciclo completo de forma síncrona y devuelve el comprobante
// generado. Siempre deja el estado final persistido (GENERADO, ENVIADO o
// ERROR); ACEPTADO/RECHAZADO llegan después vía RefreshStatus.
func (o *Orchestrator) Emit(ctx context.Context, invoiceID string) (*entity.GeneratedDocument, error) {
	// ═══════════════════════════════════════════════════════════════════════════
	// 0. Datos frescos de la factura y el emisor
	// ═══════════════════════════════════════════════════════════════════════════
	inv, err := o.invoiceRepo.GetByID(invoiceID)
	if err != nil || inv == nil {
		return nil, fmt.Errorf("factura %s no encontrada: %w", invoiceID, err)
	}
	if existing, err := o.docRepo.GetByInvoiceID(invoiceID); err == nil && existing != nil {
		// La factura ya tiene comprobante: los bytes firmados son inmutables y
		// un reintento reutiliza la misma clave, jamás genera una nueva.
		switch existing.Status {
		case entity.DocStatusAceptado, entity.DocStatusRechazado:
			return existing, fmt.Errorf("%w: la factura %s ya tiene comprobante %s en estado terminal %s",
				domain.ErrConflict, invoiceID, existing.Clave, existing.Status)
		default:
			if o.cfg.Env == "dev" || o.submitter == nil {
				return existing, nil
			}
			return existing, o.Submit(ctx, existing)
		}
	}

	business, err := o.businessRepo.GetByID(inv.BusinessID)
	if err != nil || business == nil {
		return nil, fmt.Errorf("emisor %s no encontrado: %w", inv.BusinessID, err)
	}
	items, err := o.invoiceRepo.GetItemsByInvoiceID(invoiceID)
	if err != nil || len(items) == 0 {
		return nil, fmt.Errorf("factura %s sin líneas: %w", invoiceID, err)
	}

	// ═══════════════════════════════════════════════════════════════════════════
	// 1. Clave numérica (50 dígitos) y consecutivo (20 dígitos)
	// ═══════════════════════════════════════════════════════════════════════════
	generated, err := o.claveSvc.Generate(&domainhacienda.ClaveParams{
		Date:         inv.Date,
		EmisorNumero: business.Identification,
		Branch:       inv.Branch,
		Terminal:     inv.Terminal,
		DocType:      inv.DocumentType,
		Sequential:   inv.Sequential,
	})
	if err != nil {
		return nil, fmt.Errorf("generar clave: %w", err)
	}
	o.log.Info().Str("clave", generated.Clave).Msg("clave generada")

	// ═══════════════════════════════════════════════════════════════════════════
	// 2. XML v4.4 sin firma
	// ═══════════════════════════════════════════════════════════════════════════
	itemValues := make([]entity.InvoiceItem, len(items))
	for i, it := range items {
		itemValues[i] = *it
	}
	buildRes, err := o.xmlBuilder.Build(&infrahacienda.BuildContext{
		Invoice:           inv,
		Business:          business,
		Items:             itemValues,
		Clave:             generated.Clave,
		Consecutivo:       generated.Consecutivo,
		ProveedorSistemas: o.cfg.ProveedorSistemas,
		SchemaLocation:    o.cfg.SchemaLocation,
	})
	if err != nil {
		return nil, fmt.Errorf("construir XML: %w", err)
	}

	// ═══════════════════════════════════════════════════════════════════════════
	// 3. Firma XAdES-BES. Cualquier falla aborta: jamás se persiste un
	//    comprobante con firma de relleno.
	// ═══════════════════════════════════════════════════════════════════════════
	identity, err := o.identities.LoadIdentity()
	if err != nil {
		return nil, fmt.Errorf("cargar certificado: %w", err)
	}
	signedXML, err := o.signer.Sign(buildRes.XML, identity.Certificate)
	if err != nil {
		return nil, fmt.Errorf("firmar comprobante: %w", err)
	}
	if err := o.signer.Verify(signedXML); err != nil {
		return nil, fmt.Errorf("verificación post-firma: %w", err)
	}

	// ═══════════════════════════════════════════════════════════════════════════
	// 4. Validación estructural: se registra, no bloquea el envío.
	// ═══════════════════════════════════════════════════════════════════════════
	var validationNote string
	schemaValid, violations := o.validator.Validate(signedXML)
	if !schemaValid {
		validationNote = "validación: " + strings.Join(violations, "; ")
		o.log.Warn().Str("clave", generated.Clave).Strs("violations", violations).
			Msg("el comprobante tiene violaciones estructurales")
	}

	// ═══════════════════════════════════════════════════════════════════════════
	// 5. Persistir el comprobante. Los bytes firmados son definitivos.
	// ═══════════════════════════════════════════════════════════════════════════
	doc := &entity.GeneratedDocument{
		ID:           uuid.NewString(),
		InvoiceID:    inv.ID,
		BusinessID:   business.ID,
		Clave:        generated.Clave,
		Consecutivo:  generated.Consecutivo,
		DocumentType: inv.DocumentType,
		Date:         inv.Date,
		XMLSigned:    signedXML,
		SchemaValid:  schemaValid,
		Status:       entity.DocStatusGenerado,
		ErrorDetail:  validationNote,
		CreatedAt:    time.Now(),
	}
	if err := o.docRepo.Create(doc); err != nil {
		return nil, fmt.Errorf("persistir comprobante: %w", err)
	}

	if o.cfg.Env == "dev" || o.submitter == nil {
		o.log.Info().Str("clave", doc.Clave).Msg("modo dev: comprobante generado sin envío")
		return doc, nil
	}

	// ═══════════════════════════════════════════════════════════════════════════
	// 6. Envío a recepción
	// ═══════════════════════════════════════════════════════════════════════════
	if err := o.Submit(ctx, doc); err != nil {
		return doc, err
	}
	return doc, nil
}

// Submit envía un comprobante ya generado (primer intento o reintento del
// llamador). Reutiliza siempre los mismos bytes y la misma clave.
func (o *Orchestrator) Submit(ctx context.Context, doc *entity.GeneratedDocument) error {
	if len(doc.XMLSigned) == 0 {
		return fmt.Errorf("comprobante %s sin XML firmado", doc.ID)
	}
	if doc.Status == entity.DocStatusAceptado || doc.Status == entity.DocStatusRechazado {
		return fmt.Errorf("%w: comprobante %s ya tiene estado terminal %s", domain.ErrConflict, doc.ID, doc.Status)
	}

	token, err := o.tokens.GetToken(ctx)
	if err != nil {
		o.markError(doc, fmt.Sprintf("token: %v", err))
		return err
	}

	doc.Attempts++
	if err := o.docRepo.IncrementAttempts(doc.ID); err != nil {
		o.log.Error().Err(err).Str("clave", doc.Clave).Msg("no se pudo actualizar el contador de envíos")
	}

	resp, err := o.submitter.Submit(ctx, token, doc)
	if err != nil {
		var rejected *infrahacienda.RejectedError
		if errors.As(err, &rejected) {
			if rejected.Status == 401 {
				o.tokens.Invalidate()
			}
			o.markError(doc, rejected.Message)
		} else {
			o.markError(doc, err.Error())
		}
		return err
	}

	o.persistResponse(doc, resp)
	o.updateStatus(doc, entity.DocStatusEnviado, "")
	o.log.Info().Str("clave", doc.Clave).Int("http", resp.HTTPStatus).Msg("comprobante enviado")
	return nil
}

// RefreshStatus consulta el estado ante Hacienda y actualiza el comprobante.
func (o *Orchestrator) RefreshStatus(ctx context.Context, documentID string) (*entity.HaciendaResponse, error) {
	doc, err := o.docRepo.GetByID(documentID)
	if err != nil || doc == nil {
		return nil, fmt.Errorf("comprobante %s no encontrado: %w", documentID, err)
	}
	if o.submitter == nil {
		return nil, fmt.Errorf("consulta de estado no disponible en modo dev")
	}

	token, err := o.tokens.GetToken(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := o.submitter.CheckStatus(ctx, token, doc.Clave)
	if err != nil {
		return nil, err
	}
	o.persistResponse(doc, resp)

	switch resp.IndEstado {
	case "aceptado":
		o.updateStatus(doc, entity.DocStatusAceptado, "")
	case "rechazado":
		o.updateStatus(doc, entity.DocStatusRechazado, resp.Message)
	case "recibido", "procesando":
		o.updateStatus(doc, entity.DocStatusEnviado, "")
	default:
		o.log.Warn().Str("clave", doc.Clave).Str("ind_estado", resp.IndEstado).
			Msg("estado desconocido de recepción")
	}
	return resp, nil
}

// persistResponse guarda la respuesta como snapshot inmutable; un fallo de
// persistencia se loguea pero no corta el flujo.
func (o *Orchestrator) persistResponse(doc *entity.GeneratedDocument, resp *entity.HaciendaResponse) {
	resp.ID = uuid.NewString()
	resp.DocumentID = doc.ID
	if resp.ReceivedAt.IsZero() {
		resp.ReceivedAt = time.Now()
	}
	if err := o.respRepo.Create(resp); err != nil {
		o.log.Error().Err(err).Str("clave", doc.Clave).Msg("no se pudo persistir la respuesta")
	}
}

func (o *Orchestrator) updateStatus(doc *entity.GeneratedDocument, status, detail string) {
	doc.Status = status
	doc.ErrorDetail = detail
	if err := o.docRepo.UpdateStatus(doc.ID, status, detail); err != nil {
		o.log.Error().Err(err).Str("clave", doc.Clave).Msg("no se pudo actualizar el estado")
	}
}

func (o *Orchestrator) markError(doc *entity.GeneratedDocument, detail string) {
	o.updateStatus(doc, entity.DocStatusError, detail)
	o.log.Error().Str("clave", doc.Clave).Str("detalle", detail).Msg("comprobante en error")
}
