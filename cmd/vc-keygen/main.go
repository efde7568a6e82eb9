// Package main generates an issuer Ed25519 keypair and, optionally, the bcrypt hash of an admin API key.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/credential-service/internal/auth"
	"github.com/spec-kit/credential-service/internal/keys"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("vc-keygen", flag.ContinueOnError)
	fs.SetOutput(stderr)
	did := fs.String("did", "did:web:gym.example", "Issuer DID")
	outDir := fs.String("out", "keys", "Directory for issuer.pem and issuer.pub.pem")
	adminKey := fs.String("admin-key", "", "Print the ADMIN_API_KEY_HASH for this key")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	km, err := keys.Generate(*did)
	if err != nil {
		fmt.Fprintf(stderr, "vc-keygen: %v\n", err)
		return 1
	}
	privPEM, err := km.PrivateKeyPEM()
	if err != nil {
		fmt.Fprintf(stderr, "vc-keygen: %v\n", err)
		return 1
	}
	pubPEM, err := km.PublicKeyPEM()
	if err != nil {
		fmt.Fprintf(stderr, "vc-keygen: %v\n", err)
		return 1
	}

	if err := os.MkdirAll(*outDir, 0o700); err != nil {
		fmt.Fprintf(stderr, "vc-keygen: %v\n", err)
		return 1
	}
	privPath := filepath.Join(*outDir, "issuer.pem")
	pubPath := filepath.Join(*outDir, "issuer.pub.pem")
	if err := writeNew(privPath, privPEM, 0o600); err != nil {
		fmt.Fprintf(stderr, "vc-keygen: %v\n", err)
		return 1
	}
	if err := writeNew(pubPath, pubPEM, 0o644); err != nil {
		fmt.Fprintf(stderr, "vc-keygen: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "ISSUER_DID=%s\nISSUER_PRIVATE_KEY_PATH=%s\nISSUER_PUBLIC_KEY_PATH=%s\n", km.IssuerDID(), privPath, pubPath)

	if *adminKey != "" {
		hash, err := auth.HashAPIKey(*adminKey, bcrypt.DefaultCost)
		if err != nil {
			fmt.Fprintf(stderr, "vc-keygen: %v\n", err)
			return 1
		}
		fmt.Fprintf(stdout, "ADMIN_API_KEY_HASH=%s\n", hash)
	}
	return 0
}

// writeNew refuses to overwrite an existing key file.
func writeNew(path string, data []byte, perm os.FileMode) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
