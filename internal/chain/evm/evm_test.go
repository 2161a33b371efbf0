package evm

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tyler-smith/go-bip39"

	"github.com/mrz1836/sigil-keyring/internal/chain"
	sigilerr "github.com/mrz1836/sigil-keyring/pkg/errors"
)

const (
	testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"
	// First address of m/44'/60'/0'/0/0 for testMnemonic.
	testAddress0 = "0x9858EfFD232B4033E47d90003D41EC34EcaEda94"
)

func testSeed(t *testing.T) []byte {
	t.Helper()
	seed, err := bip39.NewSeedWithErrorChecking(testMnemonic, "")
	require.NoError(t, err)
	return seed
}

func TestDeriveAccount_KnownVector(t *testing.T) {
	t.Parallel()
	acct, err := DeriveAccount(testSeed(t), 0)
	require.NoError(t, err)

	assert.Equal(t, testAddress0, acct.Address)
	assert.Equal(t, "m/44'/60'/0'/0/0", acct.Path)
	assert.Len(t, acct.PrivateKey, 66)
	assert.Len(t, acct.PublicKey, 2+130)
}

func TestDeriveAccount_Deterministic(t *testing.T) {
	t.Parallel()
	seed := testSeed(t)

	a, err := DeriveAccount(seed, 2)
	require.NoError(t, err)
	b, err := DeriveAccount(seed, 2)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := DeriveAccount(seed, 3)
	require.NoError(t, err)
	assert.NotEqual(t, a.Address, c.Address)
}

func TestAccountFromPrivateKey_RoundTrip(t *testing.T) {
	t.Parallel()
	acct, err := DeriveAccount(testSeed(t), 0)
	require.NoError(t, err)

	raw, ok := ParsePrivateKeyHex(acct.PrivateKey)
	require.True(t, ok)

	imported, err := AccountFromPrivateKey(raw)
	require.NoError(t, err)
	assert.Equal(t, acct.Address, imported.Address)

	_, err = AccountFromPrivateKey(make([]byte, 32))
	require.ErrorIs(t, err, ErrInvalidPrivateKey)
}

func TestParsePrivateKeyHex(t *testing.T) {
	t.Parallel()
	key := "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

	tests := []struct {
		name string
		in   string
		ok   bool
	}{
		{"bare", key, true},
		{"0x prefix", "0x" + key, true},
		{"whitespace", "  " + key + "\n", true},
		{"too short", key[:62], false},
		{"not hex", "zz" + key[2:], false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			b, ok := ParsePrivateKeyHex(tt.in)
			assert.Equal(t, tt.ok, ok)
			if ok {
				assert.Len(t, b, PrivateKeyLength)
			}
		})
	}
}

func TestValidateAddress(t *testing.T) {
	t.Parallel()
	require.NoError(t, ValidateAddress(testAddress0))
	require.ErrorIs(t, ValidateAddress("0x1234"), ErrInvalidAddress)
	require.ErrorIs(t, ValidateAddress("9858EfFD232B4033E47d90003D41EC34EcaEda9400"), ErrInvalidAddress)
}

func TestSigner(t *testing.T) {
	t.Parallel()
	n := chain.DefaultNetwork(chain.FamilyEVM)
	s, err := NewSigner(testSeed(t), n, 0)
	require.NoError(t, err)
	defer s.Wipe()

	assert.Equal(t, chain.FamilyEVM, s.Family())
	assert.Equal(t, testAddress0, s.Address())
	assert.Equal(t, n, s.Network())

	digest := sha256.Sum256([]byte("payload"))
	sig, err := s.SignDigest(digest[:])
	require.NoError(t, err)
	require.Len(t, sig, 65)

	pub, err := crypto.SigToPub(digest[:], sig)
	require.NoError(t, err)
	assert.Equal(t, testAddress0, crypto.PubkeyToAddress(*pub).Hex())

	_, err = s.SignDigest([]byte{1, 2, 3})
	require.ErrorIs(t, err, ErrInvalidDigest)
}

func TestSigner_PersonalMessage(t *testing.T) {
	t.Parallel()
	s, err := NewSigner(testSeed(t), chain.DefaultNetwork(chain.FamilyEVM), 0)
	require.NoError(t, err)

	sig, err := s.SignPersonalMessage([]byte("hello"))
	require.NoError(t, err)
	assert.Contains(t, []byte{27, 28}, sig[64])
}

func TestSigner_SignTx(t *testing.T) {
	t.Parallel()
	n := chain.DefaultNetwork(chain.FamilyEVM)
	s, err := NewSigner(testSeed(t), n, 0)
	require.NoError(t, err)

	to := common.HexToAddress("0x000000000000000000000000000000000000dEaD")
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   new(big.Int).SetUint64(n.ChainID),
		Nonce:     1,
		GasTipCap: big.NewInt(1),
		GasFeeCap: big.NewInt(2),
		Gas:       21000,
		To:        &to,
		Value:     big.NewInt(10),
	})

	signed, err := s.SignTx(tx)
	require.NoError(t, err)

	from, err := types.Sender(types.LatestSignerForChainID(signed.ChainId()), signed)
	require.NoError(t, err)
	assert.Equal(t, testAddress0, from.Hex())
}

// rpcServer answers eth_chainId and eth_blockNumber.
func rpcServer(t *testing.T, chainID uint64) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		var result string
		switch req.Method {
		case "eth_chainId":
			result = fmt.Sprintf("0x%x", chainID)
		case "eth_blockNumber":
			result = "0x10"
		default:
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,"result":%q}`, req.ID, result)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRPCResolver(t *testing.T) {
	t.Parallel()
	srv := rpcServer(t, 57)

	n := chain.Network{ChainID: 57, URL: srv.URL, Slip44: chain.CoinTypeEVM, Label: "nevm"}
	got, err := NewRPCResolver().ResolveNetwork(context.Background(), n)
	require.NoError(t, err)
	assert.Equal(t, uint64(57), got.ChainConfig.ChainID)
	assert.Equal(t, uint64(16), got.ChainConfig.BlockHeight)

	n.ChainID = 1
	_, err = NewRPCResolver().ResolveNetwork(context.Background(), n)
	require.ErrorIs(t, err, sigilerr.ErrNetworkValidation)
}

func TestRPCResolver_RejectsUTXO(t *testing.T) {
	t.Parallel()
	_, err := NewRPCResolver().ResolveNetwork(context.Background(), chain.DefaultNetwork(chain.FamilyUTXO))
	require.ErrorIs(t, err, sigilerr.ErrNetworkValidation)
}
