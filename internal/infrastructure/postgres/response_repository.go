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

var _ repository.ResponseRepository = (*ResponseRepo)(nil)

// ResponseRepo guarda el historial de respuestas de Hacienda por comprobante.
type ResponseRepo struct {
	q Querier
}

// NewResponseRepository construye el adaptador. Pasar pool o tx (Querier).
func NewResponseRepository(q Querier) *ResponseRepo {
	return &ResponseRepo{q: q}
}

// Create persiste una respuesta. Nunca sobreescribe: cada POST o consulta
// de estado agrega una fila nueva al historial.
func (r *ResponseRepo) Create(resp *entity.HaciendaResponse) error {
	if resp.ID == "" {
		resp.ID = uuid.New().String()
	}
	if resp.ReceivedAt.IsZero() {
		resp.ReceivedAt = time.Now()
	}
	query := `
		INSERT INTO hacienda_responses (id, document_id, clave, ind_estado, http_status, message, respuesta_xml, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.q.Exec(context.Background(), query,
		resp.ID, resp.DocumentID, resp.Clave, resp.IndEstado,
		resp.HTTPStatus, nullIfEmpty(resp.Message), resp.RespuestaXML, resp.ReceivedAt,
	)
	if err != nil {
		return fmt.Errorf("insert hacienda response: %w", err)
	}
	return nil
}

// GetByDocumentID devuelve el historial completo, el más reciente primero.
func (r *ResponseRepo) GetByDocumentID(documentID string) ([]*entity.HaciendaResponse, error) {
	query := `
		SELECT id, document_id, clave, ind_estado, http_status, COALESCE(message, ''), respuesta_xml, received_at
		FROM hacienda_responses
		WHERE document_id = $1
		ORDER BY received_at DESC`

	rows, err := r.q.Query(context.Background(), query, documentID)
	if err != nil {
		return nil, fmt.Errorf("select hacienda responses: %w", err)
	}
	defer rows.Close()

	var out []*entity.HaciendaResponse
	for rows.Next() {
		var resp entity.HaciendaResponse
		if err := rows.Scan(
			&resp.ID, &resp.DocumentID, &resp.Clave, &resp.IndEstado,
			&resp.HTTPStatus, &resp.Message, &resp.RespuestaXML, &resp.ReceivedAt,
		); err != nil {
			return nil, fmt.Errorf("scan hacienda response: %w", err)
		}
		out = append(out, &resp)
	}
	return out, rows.Err()
}

// GetLatestByClave devuelve la respuesta más reciente para la clave,
// o (nil, nil) si nunca se ha consultado.
func (r *ResponseRepo) GetLatestByClave(clave string) (*entity.HaciendaResponse, error) {
	query := `
		SELECT id, document_id, clave, ind_estado, http_status, COALESCE(message, ''), respuesta_xml, received_at
		FROM hacienda_responses
		WHERE clave = $1
		ORDER BY received_at DESC
		LIMIT 1`

	var resp entity.HaciendaResponse
	err := r.q.QueryRow(context.Background(), query, clave).Scan(
		&resp.ID, &resp.DocumentID, &resp.Clave, &resp.IndEstado,
		&resp.HTTPStatus, &resp.Message, &resp.RespuestaXML, &resp.ReceivedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select latest hacienda response: %w", err)
	}
	return &resp, nil
}
