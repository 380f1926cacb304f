package hacienda

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/tu-usuario/facturacion-cr/pkg/config"
	"github.com/tu-usuario/facturacion-cr/pkg/logger"
)

// Endpoints oficiales del IDP de Hacienda (Keycloak, grant password).
const (
	TokenURLProd = "https://idp.comprobanteselectronicos.go.cr/auth/realms/rut/protocol/openid-connect/token"
	TokenURLStag = "https://idp.comprobanteselectronicos.go.cr/auth/realms/rut-stag/protocol/openid-connect/token"

	ClientIDProd = "api-prod"
	ClientIDStag = "api-stag"
)

// Errores de autenticación contra el IDP.
var (
	ErrInvalidCredentials = errors.New("hacienda: credenciales inválidas ante el IDP")
	ErrIDPUnreachable     = errors.New("hacienda: IDP inalcanzable")
	ErrMalformedToken     = errors.New("hacienda: respuesta del IDP sin token o sin expiración")
)

// tokenSafetyMargin se resta al expires_in del servidor para no usar tokens
// a punto de vencer en vuelo: un expires_in de 120 da ~90s de reutilización.
const tokenSafetyMargin = 30 * time.Second

// TokenService obtiene y cachea tokens OAuth2 (grant password) del IDP.
// El cache se indexa por (entorno, usuario); cada llave admite un único
// refresh en vuelo y los llamadores concurrentes esperan ese mismo refresh.
type TokenService struct {
	cfg        config.HaciendaConfig
	httpClient *http.Client
	log        *logger.Logger

	mu      sync.Mutex
	entries map[string]*tokenEntry
}

type tokenEntry struct {
	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// NewTokenService crea el servicio.
func NewTokenService(cfg config.HaciendaConfig, log *logger.Logger) *TokenService {
	return &TokenService{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		log:        log,
		entries:    make(map[string]*tokenEntry),
	}
}

// GetToken devuelve un bearer token vigente, reutilizando el cacheado
// mientras no haya vencido (expiración del servidor menos el margen).
func (s *TokenService) GetToken(ctx context.Context) (string, error) {
	if s.cfg.Username == "" || s.cfg.Password == "" {
		return "", fmt.Errorf("%w: usuario o contraseña sin configurar", ErrInvalidCredentials)
	}

	key := s.cfg.Env + "|" + s.cfg.Username

	s.mu.Lock()
	entry, ok := s.entries[key]
	if !ok {
		entry = &tokenEntry{}
		s.entries[key] = entry
	}
	s.mu.Unlock()

	// El lock de la entrada serializa el refresh: el primero que llega
	// autentica, el resto espera y reutiliza el resultado.
	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.token != "" && time.Now().Before(entry.expiresAt) {
		return entry.token, nil
	}

	token, ttl, err := s.authenticate(ctx)
	if err != nil {
		return "", err
	}

	margin := tokenSafetyMargin
	if ttl <= margin {
		margin = 0
	}
	entry.token = token
	entry.expiresAt = time.Now().Add(ttl - margin)

	s.log.Debug().
		Str("env", s.cfg.Env).
		Dur("ttl", ttl).
		Msg("token de Hacienda renovado")
	return token, nil
}

// Invalidate descarta el token cacheado del usuario configurado (p. ej. tras
// un 401 del endpoint de recepción).
func (s *TokenService) Invalidate() {
	key := s.cfg.Env + "|" + s.cfg.Username
	s.mu.Lock()
	entry, ok := s.entries[key]
	s.mu.Unlock()
	if !ok {
		return
	}
	entry.mu.Lock()
	entry.token = ""
	entry.expiresAt = time.Time{}
	entry.mu.Unlock()
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// authenticate ejecuta el intercambio OAuth2 grant password.
func (s *TokenService) authenticate(ctx context.Context) (string, time.Duration, error) {
	endpoint := s.cfg.TokenURL
	clientID := s.cfg.ClientID
	if endpoint == "" {
		if s.cfg.Env == "prod" {
			endpoint = TokenURLProd
		} else {
			endpoint = TokenURLStag
		}
	}
	if clientID == "" {
		if s.cfg.Env == "prod" {
			clientID = ClientIDProd
		} else {
			clientID = ClientIDStag
		}
	}

	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("client_id", clientID)
	form.Set("username", s.cfg.Username)
	form.Set("password", s.cfg.Password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", ErrIDPUnreachable, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", ErrIDPUnreachable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", 0, fmt.Errorf("%w: leer respuesta: %v", ErrIDPUnreachable, err)
	}

	if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized {
		return "", 0, fmt.Errorf("%w (HTTP %d)", ErrInvalidCredentials, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("%w: HTTP %d del IDP", ErrIDPUnreachable, resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", 0, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	if tr.AccessToken == "" || tr.ExpiresIn <= 0 {
		return "", 0, ErrMalformedToken
	}
	return tr.AccessToken, time.Duration(tr.ExpiresIn) * time.Second, nil
}
