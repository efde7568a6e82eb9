// Package main verifies a signed membership credential offline, using only the issuer's public key.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spec-kit/credential-service/internal/api/http/handlers"
	"github.com/spec-kit/credential-service/internal/keys"
	"github.com/spec-kit/credential-service/internal/vc"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr, time.Now))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer, now func() time.Time) int {
	fs := flag.NewFlagSet("vc-verify", flag.ContinueOnError)
	fs.SetOutput(stderr)
	pubPath := fs.String("pubkey", "", "Path to the issuer public key (PKIX PEM)")
	issuer := fs.String("issuer", "did:web:gym.example", "Expected issuer DID")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: vc-verify -pubkey issuer.pub.pem [-issuer did:...] <token|->")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *pubPath == "" || fs.NArg() != 1 {
		fs.Usage()
		return 2
	}

	public, err := keys.LoadPublicKey(*pubPath)
	if err != nil {
		fmt.Fprintf(stderr, "vc-verify: %v\n", err)
		return 2
	}

	token := fs.Arg(0)
	if token == "-" {
		raw, err := io.ReadAll(stdin)
		if err != nil {
			fmt.Fprintf(stderr, "vc-verify: read stdin: %v\n", err)
			return 2
		}
		token = string(raw)
	}
	token = strings.TrimSpace(token)

	result := handlers.OfflineResult(vc.NewVerifier(public, *issuer).VerifyAt(token, now()))
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		fmt.Fprintf(stderr, "vc-verify: %v\n", err)
		return 2
	}
	if !result.Valid {
		return 1
	}
	return 0
}
