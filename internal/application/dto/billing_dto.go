package dto

import "time"

// CreateInvoiceRequest payload para crear y emitir una factura o tiquete.
type CreateInvoiceRequest struct {
	DocumentType  string              `json:"document_type"`  // 01 factura, 04 tiquete; vacío = 04
	Branch        int                 `json:"branch"`         // vacío = 1
	Terminal      int                 `json:"terminal"`       // vacío = 1
	SaleCondition string              `json:"sale_condition"` // 01 contado (default), 02 crédito
	CreditDays    int                 `json:"credit_days"`
	PaymentMethod string              `json:"payment_method"` // cash, card, sinpe
	CurrencyCode  string              `json:"currency_code"`  // default CRC
	ExchangeRate  string              `json:"exchange_rate"`  // decimal como string; default 1
	CustomerName  string              `json:"customer_name"`
	CustomerID    string              `json:"customer_id"`
	Reference     *DocumentReference  `json:"reference,omitempty"` // obligatorio en notas de crédito
	Items         []CreateInvoiceItem `json:"items"`
}

// DocumentReference referencia al comprobante que se anula o corrige.
type DocumentReference struct {
	DocType string `json:"doc_type"`
	Number  string `json:"number"` // clave del documento referenciado
	Date    string `json:"date"`   // RFC 3339
	Code    string `json:"code"`   // 01 anula, 02 corrige
	Reason  string `json:"reason"`
}

// CreateInvoiceItem línea del payload de creación.
type CreateInvoiceItem struct {
	CABYSCode       string `json:"cabys_code"`
	Description     string `json:"description"`
	Quantity        string `json:"quantity"`   // decimal como string
	Unit            string `json:"unit"`       // default Unid
	UnitPrice       string `json:"unit_price"` // decimal como string
	DiscountPercent string `json:"discount_percent"`
	DiscountReason  string `json:"discount_reason"`
	TaxCode         string `json:"tax_code"`
	TaxRate         string `json:"tax_rate"`
	// Exoneración (opcional): porcentaje del impuesto exonerado con su
	// documento de respaldo.
	ExonerationPercent string `json:"exoneration_percent,omitempty"`
	ExonerationDocType string `json:"exoneration_doc_type,omitempty"`
	ExonerationDocNum  string `json:"exoneration_doc_num,omitempty"`
	ExonerationIssuer  string `json:"exoneration_issuer,omitempty"`
	ExonerationDate    string `json:"exoneration_date,omitempty"` // RFC 3339
	// Impuesto asumido por el emisor o la fábrica (decimal como string).
	FactoryAssumedTax string `json:"factory_assumed_tax,omitempty"`
}

// InvoiceResponse respuesta de creación/consulta de factura.
type InvoiceResponse struct {
	ID           string    `json:"id"`
	DocumentType string    `json:"document_type"`
	Sequential   int64     `json:"sequential"`
	Date         time.Time `json:"date"`
	Status       string    `json:"status"` // estado del comprobante si existe
	Clave        string    `json:"clave,omitempty"`
	Consecutivo  string    `json:"consecutivo,omitempty"`
}

// DocumentStatusResponse estado del comprobante ante Hacienda.
type DocumentStatusResponse struct {
	DocumentID  string    `json:"document_id"`
	Clave       string    `json:"clave"`
	Status      string    `json:"status"`
	Attempts    int       `json:"attempts"`
	IndEstado   string    `json:"ind_estado,omitempty"`
	Message     string    `json:"message,omitempty"`
	ErrorDetail string    `json:"error_detail,omitempty"`
	CheckedAt   time.Time `json:"checked_at"`
}

// ErrorResponse respuesta de error uniforme de la API.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
