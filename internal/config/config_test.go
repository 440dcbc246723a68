package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleYAML = `
chains:
  - chain: 1
    chain_rpc: "https://eth.example"
    taker_private_key: "0x59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690"
    beneficiary: "0x0000000000000000000000000000000000000001"
batch_unlock_size: 3
min_profitability_bps: 10
swap_connector: "1inch+jupiter"
`

func writeTemp(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeTemp(t, sampleYAML)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 3, cfg.BatchUnlockSize)
	require.Equal(t, "coingecko", cfg.TokenPriceService)
	require.Len(t, cfg.Chains, 1)
}

func TestLoad_RejectsInvalidBatchSize(t *testing.T) {
	path := writeTemp(t, strings.Replace(sampleYAML, "batch_unlock_size: 3", "batch_unlock_size: 20", 1))
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_RejectsCustomSwapConnector(t *testing.T) {
	bad := `
chains: []
batch_unlock_size: 1
swap_connector: "paraswap"
`
	path := writeTemp(t, bad)
	_, err := Load(path)
	require.Error(t, err)
}

func TestDecodePrivateKey_HexSelectsEVM(t *testing.T) {
	evm, sol, err := DecodePrivateKey("0x59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690")
	require.NoError(t, err)
	require.NotNil(t, evm)
	require.Nil(t, sol)
}

func TestDecodePrivateKey_Base58SelectsSolana(t *testing.T) {
	_, sol, err := DecodePrivateKey("3QJmV3qfvL9SuYo34YihAf3sRCW3qSinFBRgJFHGTvsV")
	require.NoError(t, err)
	require.NotNil(t, sol)
}
