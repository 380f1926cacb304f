package entity

import "time"

// Business representa un emisor de comprobantes electrónicos.
type Business struct {
	ID                 string
	Name               string // Nombre o razón social
	TradeName          string // Nombre comercial (opcional)
	IdentificationType string // 01 física, 02 jurídica, 03 DIMEX, 04 NITE
	Identification     string // Número de identificación, solo dígitos
	EconomicActivity   string // Código de actividad económica (6 dígitos)
	Email              string
	Phone              string
	Province           string
	Canton             string
	District           string
	Neighborhood       string // Barrio (opcional)
	OtherAddress       string // Otras señas
	CreatedAt          time.Time
	UpdatedAt          time.Time
}
