package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsLocalID(t *testing.T) {
	assert.True(t, IsLocalID("LOCAL-S1"))
	assert.True(t, IsLocalID(NewLocalID(UUIDv7Generator{})))
	assert.False(t, IsLocalID("5f1c2d3e-0000-7000-8000-000000000000"))
	assert.False(t, IsLocalID(""))
	assert.False(t, IsLocalID("local-s1"))
}

func TestFixedIDGenerator(t *testing.T) {
	gen := NewFixedIDGenerator("a", "b")
	assert.Equal(t, "LOCAL-a", NewLocalID(gen))
	assert.Equal(t, "b", gen.Generate())
	assert.Panics(t, func() { gen.Generate() })
}

func TestParseEntityType(t *testing.T) {
	for _, e := range Entities {
		got, err := ParseEntityType(string(e))
		require.NoError(t, err)
		assert.Equal(t, e, got)
	}

	_, err := ParseEntityType("refund")
	assert.Error(t, err)
}

func TestParseReferenceEntity(t *testing.T) {
	got, err := ParseReferenceEntity("stock_levels")
	require.NoError(t, err)
	assert.Equal(t, RefStock, got)

	_, err = ParseReferenceEntity("stock")
	assert.Error(t, err)
}

func TestParseResolution(t *testing.T) {
	r, err := ParseResolution("keep_server")
	require.NoError(t, err)
	assert.Equal(t, ResolutionKeepServer, r)

	_, err = ParseResolution("overwrite")
	assert.Error(t, err)
}

func TestQueueItem_IsDead(t *testing.T) {
	item := &QueueItem{Status: QueueStatusFailed, Retries: 5}
	assert.True(t, item.IsDead(5))
	assert.False(t, item.IsDead(6))

	item.Status = QueueStatusPending
	assert.False(t, item.IsDead(5))
}

func TestPromotion_Expired(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	assert.True(t, (&Promotion{ValidUntil: &past}).Expired(now))
	assert.False(t, (&Promotion{ValidUntil: &future}).Expired(now))
	assert.False(t, (&Promotion{}).Expired(now))
}

func TestCanonicalPayload_SortsKeys(t *testing.T) {
	out, err := CanonicalPayload([]byte(`{"b":1,"a":{"z":true,"y":null},"c":[3,"x"]}`))
	require.NoError(t, err)
	assert.Equal(t, `{"a":{"y":null,"z":true},"b":1,"c":[3,"x"]}`, string(out))
}

func TestCanonicalPayload_KeepsNumberText(t *testing.T) {
	out, err := CanonicalPayload([]byte(`{"amount": 12.50, "qty": 2}`))
	require.NoError(t, err)
	assert.Equal(t, `{"amount":12.50,"qty":2}`, string(out))
}

func TestCanonicalPayload_NoHTMLEscaping(t *testing.T) {
	out, err := CanonicalPayload([]byte(`{"note":"<fragile> & heavy"}`))
	require.NoError(t, err)
	assert.Equal(t, `{"note":"<fragile> & heavy"}`, string(out))
}

func TestCanonicalPayload_Empty(t *testing.T) {
	out, err := CanonicalPayload(nil)
	require.NoError(t, err)
	assert.Equal(t, "null", string(out))
}

func TestCanonicalPayload_Invalid(t *testing.T) {
	_, err := CanonicalPayload([]byte(`{"a":`))
	assert.Error(t, err)
}

func TestPayloadHash_StableAcrossKeyOrderAndNormalization(t *testing.T) {
	// "é" precomposed vs "e" + combining acute accent
	h1, err := PayloadHash([]byte(`{"name":"Café","total":100}`))
	require.NoError(t, err)
	h2, err := PayloadHash([]byte(`{"total":100,"name":"Café"}`))
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)

	h3, err := PayloadHash([]byte(`{"total":101,"name":"Café"}`))
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3)
}
