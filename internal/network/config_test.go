package network_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/sigil-keyring/internal/chain"
	"github.com/mrz1836/sigil-keyring/internal/config"
	"github.com/mrz1836/sigil-keyring/internal/network"
	sigilerr "github.com/mrz1836/sigil-keyring/pkg/errors"
)

func TestFromConfig_Offline(t *testing.T) {
	t.Parallel()
	cfg := config.Defaults().Resolver
	cfg.Offline = true

	r := network.FromConfig(cfg, nil, nil)
	assert.IsType(t, network.Static{}, r)

	n := chain.Network{ChainID: 57, URL: "https://unreachable.invalid", Slip44: chain.CoinTypeSyscoin}
	got, err := r.ResolveNetwork(context.Background(), n)
	require.NoError(t, err)
	assert.Equal(t, n, got.Network)
}

func TestFromConfig_RoutesUTXOToBlockbook(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v2", r.URL.Path)
		_, _ = w.Write([]byte(`{"blockbook":{"coin":"Syscoin","bestHeight":42},"backend":{"chain":"main"}}`))
	}))
	t.Cleanup(srv.Close)

	r := network.FromConfig(config.Defaults().Resolver, config.NullLogger(), nil)
	require.IsType(t, &network.Guarded{}, r)

	got, err := r.ResolveNetwork(context.Background(), chain.Network{ChainID: 57, URL: srv.URL, Slip44: chain.CoinTypeSyscoin})
	require.NoError(t, err)
	assert.Equal(t, uint64(42), got.ChainConfig.BlockHeight)

	_, err = r.ResolveNetwork(context.Background(), chain.Network{ChainID: 5700, URL: srv.URL, Slip44: chain.CoinTypeTestnet, IsTestnet: true})
	require.ErrorIs(t, err, sigilerr.ErrNetworkValidation)
}
