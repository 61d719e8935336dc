package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestActivityIdentity(t *testing.T) {
	act := &Activity{
		Kind:    KindSale,
		TokenID: "42",
		TxHash:  "0xabc123",
	}
	assert.Equal(t, "42-0xabc123", act.Identity())
}

func TestValidIdentity(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"valid", "42-0xabc123", true},
		{"valid long hash", "1-0xdeadbeefdeadbeefdeadbeefdeadbeef", true},
		{"missing hyphen", "420xabc", false},
		{"empty", "", false},
		{"non-numeric token", "abc-0x123", false},
		{"missing 0x prefix", "42-deadbeef", false},
		{"empty token", "-0xabc", false},
		{"placeholder token from provider", "???-0xabc", false},
		{"placeholder hash", "42-noTxHash", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidIdentity(tt.input))
		})
	}
}

func TestCollectionDefaults(t *testing.T) {
	coll := &Collection{Name: "test", ContractAddress: "0xabc"}

	assert.Equal(t, 5*time.Minute, coll.PollInterval())
	assert.Equal(t, 60*time.Minute, coll.Cooldown())
	assert.Equal(t, 50, coll.FetchLimit())
	assert.Equal(t, 50, coll.SalesFetchLimit())
	assert.Equal(t, 50, coll.Capacity(KindSale))
	assert.Equal(t, 100, coll.Capacity(KindMint))
	assert.Equal(t, 100, coll.Capacity(KindBurn))
	assert.Equal(t, DefaultZeroAddress, coll.FilterAddress())
}

func TestCollectionOverrides(t *testing.T) {
	coll := &Collection{
		Name:                "test",
		PollIntervalSeconds: 60,
		CooldownMinutes:     5,
		ActivityLimit:       25,
		MaxKnownSales:       10,
		ZeroAddress:         "0x000000000000000000000000000000000000DEAD",
	}

	assert.Equal(t, time.Minute, coll.PollInterval())
	assert.Equal(t, 5*time.Minute, coll.Cooldown())
	assert.Equal(t, 25, coll.FetchLimit())
	assert.Equal(t, 10, coll.Capacity(KindSale))
	assert.Equal(t, "0x000000000000000000000000000000000000dead", coll.FilterAddress())
}
