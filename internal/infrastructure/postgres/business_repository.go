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

var _ repository.BusinessRepository = (*BusinessRepo)(nil)

// BusinessRepo implementación de BusinessRepository (usable con pool o tx).
type BusinessRepo struct {
	q Querier
}

// NewBusinessRepository construye el adaptador. Pasar pool o tx (Querier).
func NewBusinessRepository(q Querier) *BusinessRepo {
	return &BusinessRepo{q: q}
}

// Create persiste un emisor.
func (r *BusinessRepo) Create(business *entity.Business) error {
	if business.ID == "" {
		business.ID = uuid.New().String()
	}
	if business.CreatedAt.IsZero() {
		business.CreatedAt = time.Now()
	}
	query := `
		INSERT INTO businesses (id, name, trade_name, identification_type, identification, economic_activity, email, phone, province, canton, district, neighborhood, other_address, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`
	_, err := r.q.Exec(context.Background(), query,
		business.ID, business.Name, nullIfEmpty(business.TradeName),
		business.IdentificationType, business.Identification, business.EconomicActivity,
		nullIfEmpty(business.Email), nullIfEmpty(business.Phone),
		nullIfEmpty(business.Province), nullIfEmpty(business.Canton), nullIfEmpty(business.District),
		nullIfEmpty(business.Neighborhood), nullIfEmpty(business.OtherAddress),
		business.CreatedAt, business.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("identification already registered: %w", err)
		}
		return fmt.Errorf("insert business: %w", err)
	}
	return nil
}

// Update actualiza los datos del emisor.
func (r *BusinessRepo) Update(business *entity.Business) error {
	query := `
		UPDATE businesses
		SET name = $2, trade_name = $3, identification_type = $4, identification = $5,
		    economic_activity = $6, email = $7, phone = $8,
		    province = $9, canton = $10, district = $11, neighborhood = $12,
		    other_address = $13, updated_at = $14
		WHERE id = $1`
	_, err := r.q.Exec(context.Background(), query,
		business.ID, business.Name, nullIfEmpty(business.TradeName),
		business.IdentificationType, business.Identification, business.EconomicActivity,
		nullIfEmpty(business.Email), nullIfEmpty(business.Phone),
		nullIfEmpty(business.Province), nullIfEmpty(business.Canton), nullIfEmpty(business.District),
		nullIfEmpty(business.Neighborhood), nullIfEmpty(business.OtherAddress), time.Now(),
	)
	if err != nil {
		return fmt.Errorf("update business: %w", err)
	}
	return nil
}

// GetByID devuelve el emisor o (nil, nil) si no existe.
func (r *BusinessRepo) GetByID(id string) (*entity.Business, error) {
	return r.getOne(`WHERE id = $1`, id)
}

// GetByIdentification devuelve el emisor por número de identificación.
func (r *BusinessRepo) GetByIdentification(identification string) (*entity.Business, error) {
	return r.getOne(`WHERE identification = $1`, identification)
}

func (r *BusinessRepo) getOne(where string, arg any) (*entity.Business, error) {
	query := `
		SELECT id, name, COALESCE(trade_name, ''), identification_type, identification,
		       economic_activity, COALESCE(email, ''), COALESCE(phone, ''),
		       COALESCE(province, ''), COALESCE(canton, ''), COALESCE(district, ''),
		       COALESCE(neighborhood, ''), COALESCE(other_address, ''), created_at, updated_at
		FROM businesses ` + where

	var b entity.Business
	err := r.q.QueryRow(context.Background(), query, arg).Scan(
		&b.ID, &b.Name, &b.TradeName, &b.IdentificationType, &b.Identification,
		&b.EconomicActivity, &b.Email, &b.Phone,
		&b.Province, &b.Canton, &b.District, &b.Neighborhood, &b.OtherAddress,
		&b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select business: %w", err)
	}
	return &b, nil
}
