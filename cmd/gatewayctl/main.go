// Command gatewayctl is operator tooling for the gateway: it issues operator
// tokens for the admin routes and signs approval messages with a local key
// for manual testing.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"signed-transfer-gateway/config"
	"signed-transfer-gateway/internal/service"

	"github.com/ethereum/go-ethereum/crypto"
)

const usage = "usage: gatewayctl token --subject <name> [--config <path>] | gatewayctl sign --key <hex> [--message <text> | --message-file <path|->]"

func main() {
	if len(os.Args) < 2 {
		fail(usage, 2)
	}
	switch os.Args[1] {
	case "token":
		runToken(os.Args[2:])
	case "sign":
		runSign(os.Args[2:])
	default:
		fail("unknown command "+os.Args[1]+"\n"+usage, 2)
	}
}

func runToken(args []string) {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	subject := fs.String("subject", "", "operator name recorded in audit logs")
	cfgPath := fs.String("config", "", "config file (defaults to ./config.yaml and STG_ env)")
	if err := fs.Parse(args); err != nil {
		fail(err.Error(), 2)
	}
	if strings.TrimSpace(*subject) == "" {
		fail("--subject is required", 2)
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fail("load config: "+err.Error(), 1)
	}
	if cfg.JWT.Secret == "" {
		fail("jwt.secret is not configured", 1)
	}

	token, expiresAt, err := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer).Generate(*subject)
	if err != nil {
		fail("issue token: "+err.Error(), 1)
	}
	printJSON(map[string]string{
		"token":      token,
		"expires_at": expiresAt.UTC().Format(time.RFC3339),
	})
}

func runSign(args []string) {
	fs := flag.NewFlagSet("sign", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	keyHex := fs.String("key", "", "secp256k1 private key, hex")
	message := fs.String("message", "", "message to sign, verbatim")
	messageFile := fs.String("message-file", "", "read the message from a file, or - for stdin")
	if err := fs.Parse(args); err != nil {
		fail(err.Error(), 2)
	}
	if *keyHex == "" {
		fail("--key is required", 2)
	}

	msg := *message
	if *messageFile != "" {
		var raw []byte
		var err error
		if *messageFile == "-" {
			raw, err = io.ReadAll(os.Stdin)
		} else {
			raw, err = os.ReadFile(*messageFile)
		}
		if err != nil {
			fail("read message: "+err.Error(), 1)
		}
		// Shells and editors append a newline the signer never saw.
		msg = strings.TrimRight(string(raw), "\r\n")
	}
	if msg == "" {
		fail("one of --message or --message-file is required", 2)
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(*keyHex, "0x"))
	if err != nil {
		fail("parse key: "+err.Error(), 1)
	}
	sig, err := service.SignPersonalMessage(key, msg)
	if err != nil {
		fail("sign: "+err.Error(), 1)
	}
	printJSON(map[string]string{
		"address":   crypto.PubkeyToAddress(key.PublicKey).Hex(),
		"signature": sig,
	})
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func fail(msg string, code int) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(code)
}
