package service

import (
	"context"
	"crypto/ecdsa"
	"io"
	"math/big"
	"testing"

	"signed-transfer-gateway/internal/core/domain"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const (
	testSender    = "0x5B38Da6a701c568545dCfcB03FcB875f56beddC4"
	testRecipient = "0xAb8483F64d9C6d1EcF9b849Ae677dD3315835cb2"
)

func newTestLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

// mockTx implements pgx.Tx for testing
type mockTx struct {
	pgx.Tx
	committed  bool
	rolledBack bool
}

func (m *mockTx) Rollback(_ context.Context) error {
	if !m.committed {
		m.rolledBack = true
	}
	return nil
}

func (m *mockTx) Commit(_ context.Context) error {
	m.committed = true
	return nil
}

// ether returns whole ether amounts in wei.
func ether(n int64) *big.Int {
	return domain.WeiFromEther(decimal.NewFromInt(n))
}

type signer struct {
	key     *ecdsa.PrivateKey
	address string
}

func newSigner(t *testing.T) signer {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return signer{key: key, address: crypto.PubkeyToAddress(key.PublicKey).Hex()}
}

func (s signer) sign(t *testing.T, message string) string {
	t.Helper()
	sig, err := SignPersonalMessage(s.key, message)
	require.NoError(t, err)
	return sig
}

// decimalMatcher compares decimals by value, ignoring exponent.
type decimalMatcher struct{ want decimal.Decimal }

func decEq(s string) gomock.Matcher {
	return decimalMatcher{want: decimal.RequireFromString(s)}
}

func (m decimalMatcher) Matches(x any) bool {
	d, ok := x.(decimal.Decimal)
	return ok && d.Equal(m.want)
}

func (m decimalMatcher) String() string { return "is decimal " + m.want.String() }
