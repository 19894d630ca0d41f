// keytool seeds the credential store: derive a signing key from a master
// mnemonic (3-digit account id scheme) or import a raw private key, and
// optionally set the RPC endpoint list. Secrets never touch config files.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/perpdesk/goperp/pkg/secretstore"
)

func run() error {
	secretDir := flag.String("secret-dir", "data/secrets", "credential store directory")
	accountID := flag.String("account-id", "", "3-digit account id to derive from GOPERP_MNEMONIC")
	privateKey := flag.String("private-key", "", "raw private key hex to import (alternative to derivation)")
	rpcURLs := flag.String("rpc-urls", "", "comma-separated RPC endpoint list to store")
	flag.Parse()

	_ = godotenv.Load()

	store, err := secretstore.Open(secretstore.OpenOptions{
		Path:          *secretDir,
		EncryptionKey: []byte(os.Getenv("GOPERP_SECRET_KEY")),
	})
	if err != nil {
		return fmt.Errorf("open credential store: %w", err)
	}
	defer store.Close()

	switch {
	case *accountID != "":
		mnemonic := strings.TrimSpace(os.Getenv("GOPERP_MNEMONIC"))
		if mnemonic == "" {
			return fmt.Errorf("GOPERP_MNEMONIC is not set")
		}
		wallet, err := secretstore.DeriveFromMnemonic(mnemonic, *accountID)
		if err != nil {
			return err
		}
		if err := store.StoreDerived(wallet); err != nil {
			return err
		}
		fmt.Printf("derived account %s stored (%s)\n", *accountID, wallet.Address)
	case *privateKey != "":
		if err := store.SetString(secretstore.KeyPrivateKey, strings.TrimPrefix(strings.TrimSpace(*privateKey), "0x")); err != nil {
			return err
		}
		fmt.Println("private key stored")
	}

	if *rpcURLs != "" {
		if err := store.SetString(secretstore.KeyRPCURLs, *rpcURLs); err != nil {
			return err
		}
		fmt.Println("rpc endpoint list stored")
	}
	return nil
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
