package billing

import (
	"context"
	"crypto/tls"

	"github.com/tu-usuario/facturacion-cr/internal/domain/entity"
	"github.com/tu-usuario/facturacion-cr/internal/domain/repository"
	infrahacienda "github.com/tu-usuario/facturacion-cr/internal/infrastructure/hacienda"
)

// TxRunner ejecuta fn dentro de una transacción con el repo atado a la tx.
type TxRunner interface {
	Run(ctx context.Context, fn func(invoiceRepo repository.InvoiceRepository) error) error
}

// Signer firma comprobantes XML. La implementación por defecto es XAdES-BES
// local; un firmador remoto (HSM, servicio externo) solo necesita cumplir
// este contrato.
type Signer interface {
	Sign(xmlBytes []byte, cert tls.Certificate) ([]byte, error)
	// Verify comprueba la firma sobre los bytes exactos; se usa como control
	// de integridad antes de persistir.
	Verify(signedXML []byte) error
}

// IdentityLoader carga el certificado de firma ya validado.
type IdentityLoader interface {
	LoadIdentity() (*infrahacienda.SigningIdentity, error)
}

// TokenProvider entrega bearer tokens vigentes del IDP de Hacienda.
type TokenProvider interface {
	GetToken(ctx context.Context) (string, error)
	Invalidate()
}

// Submitter envía comprobantes y consulta su estado ante recepción.
type Submitter interface {
	Submit(ctx context.Context, token string, doc *entity.GeneratedDocument) (*entity.HaciendaResponse, error)
	CheckStatus(ctx context.Context, token, clave string) (*entity.HaciendaResponse, error)
}

// Validator valida la estructura del comprobante.
type Validator interface {
	Validate(xmlBytes []byte) (bool, []string)
}
