package jwt_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgjwt "github.com/tu-usuario/facturacion-cr/pkg/jwt"
)

const (
	testSecret = "test-secret-key-for-unit-tests"
	testIssuer = "facturacion-cr-test"
)

// ──────────────────────────────────────────────────────────────────────────────
// Generate / Validate
// ──────────────────────────────────────────────────────────────────────────────

func TestJWT_GenerateYValidate(t *testing.T) {
	svc := pkgjwt.NewService(testSecret, 60, testIssuer)

	tok, err := svc.Generate("user-1", "biz-1", "admin@example.com")
	require.NoError(t, err)
	require.NotEmpty(t, tok)

	claims, err := svc.Validate(tok)
	require.NoError(t, err)

	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "biz-1", claims.BusinessID)
	assert.Equal(t, "admin@example.com", claims.Email)
	assert.Equal(t, testIssuer, claims.Issuer)
}

func TestJWT_TokenExpirado_RetornaError(t *testing.T) {
	// Expiración -1 minuto: el token nace expirado.
	svc := pkgjwt.NewService(testSecret, -1, testIssuer)

	tok, err := svc.Generate("user-1", "biz-1", "admin@example.com")
	require.NoError(t, err)

	_, err = svc.Validate(tok)
	assert.ErrorIs(t, err, pkgjwt.ErrExpiredToken)
}

func TestJWT_SecretIncorrecto_RetornaError(t *testing.T) {
	svc := pkgjwt.NewService(testSecret, 60, testIssuer)
	other := pkgjwt.NewService("otro-secret-completamente-distinto", 60, testIssuer)

	tok, err := svc.Generate("user-1", "biz-1", "admin@example.com")
	require.NoError(t, err)

	_, err = other.Validate(tok)
	assert.ErrorIs(t, err, pkgjwt.ErrInvalidToken)
}

func TestJWT_TokenMalformado_RetornaError(t *testing.T) {
	svc := pkgjwt.NewService(testSecret, 60, testIssuer)

	_, err := svc.Validate("token.invalido.aqui")
	assert.ErrorIs(t, err, pkgjwt.ErrInvalidToken)
}
