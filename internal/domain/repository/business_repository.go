package repository

import "github.com/tu-usuario/facturacion-cr/internal/domain/entity"

// BusinessRepository define el puerto de persistencia para emisores.
type BusinessRepository interface {
	Create(business *entity.Business) error
	Update(business *entity.Business) error
	GetByID(id string) (*entity.Business, error)
	GetByIdentification(identification string) (*entity.Business, error)
}
