package wallet

import (
	"sort"
	"strings"

	"github.com/mrz1836/sigil-keyring/internal/chain"
	sigilerr "github.com/mrz1836/sigil-keyring/pkg/errors"
)

// AccountType partitions the account table into independent id-spaces.
type AccountType string

// Account types.
const (
	HDAccount AccountType = "HDAccount"
	Imported  AccountType = "Imported"
	Trezor    AccountType = "Trezor"
	Ledger    AccountType = "Ledger"
)

var (
	// ErrAccountNotFound indicates the (type, id) pair is not in the table.
	ErrAccountNotFound = sigilerr.ErrAccountNotFound

	// ErrUnknownAccountType indicates an account type outside the four known tags.
	ErrUnknownAccountType = sigilerr.WithSuggestion(sigilerr.ErrInvalidInput, "account type must be one of HDAccount, Imported, Trezor, Ledger")
)

// AccountTypes returns every account type in display order.
func AccountTypes() []AccountType {
	return []AccountType{HDAccount, Imported, Trezor, Ledger}
}

// IsValid returns true if t is a known account type.
func (t AccountType) IsValid() bool {
	switch t {
	case HDAccount, Imported, Trezor, Ledger:
		return true
	default:
		return false
	}
}

// IsHardware reports whether accounts of this type sign on a device.
func (t AccountType) IsHardware() bool {
	return t == Trezor || t == Ledger
}

// ParseAccountType parses an account type name case-insensitively.
// "hd" is accepted as shorthand for HDAccount.
func ParseAccountType(s string) (AccountType, error) {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "hd") {
		return HDAccount, nil
	}
	for _, t := range AccountTypes() {
		if strings.EqualFold(s, string(t)) {
			return t, nil
		}
	}
	return "", ErrUnknownAccountType
}

// Balances holds the last known balance of an account per family, as
// decimal strings in the network's currency.
type Balances struct {
	UTXO string `json:"utxo"`
	EVM  string `json:"evm"`
}

// Get returns the balance for a family.
func (b Balances) Get(f chain.Family) string {
	if f == chain.FamilyEVM {
		return b.EVM
	}
	return b.UTXO
}

// Set stores the balance for a family.
func (b *Balances) Set(f chain.Family, v string) {
	if f == chain.FamilyEVM {
		b.EVM = v
		return
	}
	b.UTXO = v
}

// Account is one entry of the account table.
type Account struct {
	ID                          uint32   `json:"id"`
	Label                       string   `json:"label"`
	Address                     string   `json:"address"`
	PublicExtendedKey           string   `json:"xpub"`
	EncryptedPrivateExtendedKey string   `json:"xprv,omitempty"`
	Balances                    Balances `json:"balances"`
	IsImported                  bool     `json:"isImported"`

	// HardwareVendor names the device vendor for hardware accounts; empty otherwise.
	HardwareVendor string `json:"hardwareVendor,omitempty"`
}

// IsHardware reports whether the account signs on a device.
func (a Account) IsHardware() bool {
	return a.HardwareVendor != ""
}

// Public returns a copy with the encrypted secret stripped, for display.
func (a Account) Public() Account {
	a.EncryptedPrivateExtendedKey = ""
	return a
}

// AccountRef addresses one account in the table.
type AccountRef struct {
	Type AccountType `json:"type"`
	ID   uint32      `json:"id"`
}

// VaultState is the account table, network registry, and active selection.
// The caller's store owns it; the keyring works on a private copy.
type VaultState struct {
	Accounts          map[AccountType]map[uint32]*Account         `json:"accounts"`
	NextIDs           map[AccountType]uint32                      `json:"nextIds"`
	ActiveAccountID   uint32                                      `json:"activeAccountId"`
	ActiveAccountType AccountType                                 `json:"activeAccountType"`
	ActiveNetwork     chain.Network                               `json:"activeNetwork"`
	Networks          map[chain.Family]map[uint64]chain.Network `json:"networks"`
}

// NewVaultState returns an empty account table with the given networks
// registered and active selected.
func NewVaultState(networks []chain.Network, active chain.Network) *VaultState {
	s := &VaultState{
		ActiveAccountType: HDAccount,
		ActiveNetwork:     active,
		Networks:          make(map[chain.Family]map[uint64]chain.Network),
	}
	s.ResetAccounts()
	for _, n := range networks {
		s.PutNetwork(n)
	}
	return s
}

// ResetAccounts empties every account bucket and restarts id assignment.
// Networks and the active network are kept.
func (s *VaultState) ResetAccounts() {
	s.Accounts = make(map[AccountType]map[uint32]*Account, 4)
	s.NextIDs = make(map[AccountType]uint32, 4)
	for _, t := range AccountTypes() {
		s.Accounts[t] = make(map[uint32]*Account)
		s.NextIDs[t] = 0
	}
	s.ActiveAccountID = 0
	s.ActiveAccountType = HDAccount
}

// Clone returns a deep copy.
func (s *VaultState) Clone() *VaultState {
	if s == nil {
		return nil
	}
	out := &VaultState{
		Accounts:          make(map[AccountType]map[uint32]*Account, len(s.Accounts)),
		NextIDs:           make(map[AccountType]uint32, len(s.NextIDs)),
		ActiveAccountID:   s.ActiveAccountID,
		ActiveAccountType: s.ActiveAccountType,
		ActiveNetwork:     s.ActiveNetwork,
		Networks:          make(map[chain.Family]map[uint64]chain.Network, len(s.Networks)),
	}
	for t, bucket := range s.Accounts {
		cp := make(map[uint32]*Account, len(bucket))
		for id, a := range bucket {
			acct := *a
			cp[id] = &acct
		}
		out.Accounts[t] = cp
	}
	for t, next := range s.NextIDs {
		out.NextIDs[t] = next
	}
	for f, nets := range s.Networks {
		cp := make(map[uint64]chain.Network, len(nets))
		for id, n := range nets {
			cp[id] = n
		}
		out.Networks[f] = cp
	}
	return out
}

// Normalize fills in missing buckets of a decoded state and advances NextIDs
// past existing ids.
func (s *VaultState) Normalize() {
	if s.Accounts == nil {
		s.Accounts = make(map[AccountType]map[uint32]*Account, 4)
	}
	if s.NextIDs == nil {
		s.NextIDs = make(map[AccountType]uint32, 4)
	}
	if s.Networks == nil {
		s.Networks = make(map[chain.Family]map[uint64]chain.Network)
	}
	if s.ActiveAccountType == "" {
		s.ActiveAccountType = HDAccount
	}
	for _, t := range AccountTypes() {
		if s.Accounts[t] == nil {
			s.Accounts[t] = make(map[uint32]*Account)
		}
		for id := range s.Accounts[t] {
			if id >= s.NextIDs[t] {
				s.NextIDs[t] = id + 1
			}
		}
	}
}

// Account looks up an account.
func (s *VaultState) Account(t AccountType, id uint32) (*Account, bool) {
	a, ok := s.Accounts[t][id]
	return a, ok
}

// ActiveAccount returns the active account, if it exists.
func (s *VaultState) ActiveAccount() (*Account, bool) {
	return s.Account(s.ActiveAccountType, s.ActiveAccountID)
}

// NextID returns the id the next account of type t will receive.
func (s *VaultState) NextID(t AccountType) uint32 {
	return s.NextIDs[t]
}

// Insert assigns the next id of type t to a and stores it.
func (s *VaultState) Insert(t AccountType, a *Account) (uint32, error) {
	if !t.IsValid() {
		return 0, ErrUnknownAccountType
	}
	if s.Accounts[t] == nil {
		s.Accounts[t] = make(map[uint32]*Account)
	}
	id := s.NextIDs[t]
	a.ID = id
	s.Accounts[t][id] = a
	s.NextIDs[t] = id + 1
	return id, nil
}

// Remove deletes an account. Its id is not reused.
func (s *VaultState) Remove(t AccountType, id uint32) error {
	if _, ok := s.Accounts[t][id]; !ok {
		return ErrAccountNotFound
	}
	delete(s.Accounts[t], id)
	return nil
}

// List returns the accounts of type t ordered by id.
func (s *VaultState) List(t AccountType) []*Account {
	bucket := s.Accounts[t]
	out := make([]*Account, 0, len(bucket))
	for _, a := range bucket {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Count returns the number of accounts across every type.
func (s *VaultState) Count() int {
	n := 0
	for _, bucket := range s.Accounts {
		n += len(bucket)
	}
	return n
}

// PutNetwork registers or replaces a network under its family and chain id.
func (s *VaultState) PutNetwork(n chain.Network) {
	f := n.Family()
	if s.Networks[f] == nil {
		s.Networks[f] = make(map[uint64]chain.Network)
	}
	s.Networks[f][n.ChainID] = n
}

// AdoptNetwork registers n unless its family already has a network with
// that chain id, so an existing entry, built-in or not, is never replaced.
// Adopted networks are never built-in. It reports whether n was added.
func (s *VaultState) AdoptNetwork(n chain.Network) bool {
	if _, ok := s.Network(n.Family(), n.ChainID); ok {
		return false
	}
	n.Default = false
	s.PutNetwork(n)
	return true
}

// Network looks up a registered network.
func (s *VaultState) Network(f chain.Family, chainID uint64) (chain.Network, bool) {
	n, ok := s.Networks[f][chainID]
	return n, ok
}

// DeleteNetwork removes a registered network.
func (s *VaultState) DeleteNetwork(f chain.Family, chainID uint64) bool {
	if _, ok := s.Networks[f][chainID]; !ok {
		return false
	}
	delete(s.Networks[f], chainID)
	return true
}

// NetworkList returns the networks of a family ordered by chain id.
func (s *VaultState) NetworkList(f chain.Family) []chain.Network {
	nets := s.Networks[f]
	out := make([]chain.Network, 0, len(nets))
	for _, n := range nets {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChainID < out[j].ChainID })
	return out
}
