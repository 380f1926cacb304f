// certcheck inspecciona el certificado de firma configurado y reporta
// identidad del emisor, vigencia y coherencia con el entorno, sin firmar
// ni enviar nada.
//
// Uso: HACIENDA_CERT_P12_PATH=cert.p12 HACIENDA_CERT_PASSWORD=xxx go run ./cmd/certcheck
package main

import (
	"fmt"
	"os"

	infrahacienda "github.com/tu-usuario/facturacion-cr/internal/infrastructure/hacienda"
	"github.com/tu-usuario/facturacion-cr/pkg/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "cargar configuración:", err)
		os.Exit(1)
	}

	certSvc := infrahacienda.NewCertService(cfg.Hacienda)
	diag, err := certSvc.Diagnose()
	if err != nil {
		fmt.Fprintln(os.Stderr, "no se pudo cargar el certificado:", err)
		os.Exit(1)
	}

	fmt.Println("── Certificado de firma ──────────────────────────────")
	fmt.Printf("Subject:       %s\n", diag.Subject)
	fmt.Printf("Issuer:        %s\n", diag.Issuer)
	fmt.Printf("Serial:        %s\n", diag.Serial)
	fmt.Printf("Identificación: tipo %s, número %s\n", diag.Tipo, diag.Numero)
	fmt.Printf("Entorno:       certificado de %s (configurado %s)\n", diag.Environment, cfg.Hacienda.Env)
	fmt.Printf("Vigencia:      %s → %s\n",
		diag.NotBefore.Format("2006-01-02"), diag.NotAfter.Format("2006-01-02"))
	if diag.Expired {
		fmt.Println("Estado:        EXPIRADO")
	} else {
		fmt.Printf("Estado:        vigente (%d días restantes)\n", diag.DaysToExpiry)
	}
	fmt.Printf("Llave:         RSA=%v, %d bits\n", diag.KeyIsRSA, diag.KeyBits)

	if len(diag.Problems) == 0 {
		fmt.Println("\nSin problemas detectados.")
		return
	}
	fmt.Println("\nProblemas detectados:")
	for _, p := range diag.Problems {
		fmt.Printf("  - %s\n", p)
	}
	os.Exit(2)
}
