package secretstore

import (
	"fmt"
	"regexp"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	hdwallet "github.com/miguelmota/go-ethereum-hdwallet"
)

var accountIDRe = regexp.MustCompile(`^\d{3}$`)

func normalizeAccountID(id string) (string, error) {
	if !accountIDRe.MatchString(id) {
		return "", fmt.Errorf("account_id must be 3 digits (e.g. 456)")
	}
	return id, nil
}

// derivationPathFromAccountID maps "456" -> "m/44'/60'/4'/5/6"
func derivationPathFromAccountID(id string) (string, error) {
	id, err := normalizeAccountID(id)
	if err != nil {
		return "", err
	}
	d0, d1, d2 := id[0], id[1], id[2]
	return fmt.Sprintf("m/44'/60'/%c'/%c/%c", d0, d1, d2), nil
}

// DerivedWallet is a key pair derived from the master mnemonic.
type DerivedWallet struct {
	PrivateKeyHex string // hex, no 0x prefix
	Address       string // 0x EOA address
}

// DeriveFromMnemonic derives the signing key for a 3-digit account id.
func DeriveFromMnemonic(mnemonic, accountID string) (*DerivedWallet, error) {
	path, err := derivationPathFromAccountID(accountID)
	if err != nil {
		return nil, err
	}
	wallet, err := hdwallet.NewFromMnemonic(mnemonic)
	if err != nil {
		return nil, fmt.Errorf("invalid mnemonic: %w", err)
	}
	dpath, err := hdwallet.ParseDerivationPath(path)
	if err != nil {
		return nil, fmt.Errorf("invalid derivation path %s: %w", path, err)
	}
	account, err := wallet.Derive(dpath, false)
	if err != nil {
		return nil, fmt.Errorf("derive failed: %w", err)
	}
	priv, err := wallet.PrivateKey(account)
	if err != nil {
		return nil, fmt.Errorf("private key export failed: %w", err)
	}
	return &DerivedWallet{
		PrivateKeyHex: hexutil.Encode(crypto.FromECDSA(priv))[2:],
		Address:       account.Address.Hex(),
	}, nil
}

// StoreDerived persists a derived wallet into the store.
func (s *Store) StoreDerived(w *DerivedWallet) error {
	if err := s.SetString(KeyPrivateKey, w.PrivateKeyHex); err != nil {
		return err
	}
	return s.SetString(KeyAccount, w.Address)
}
