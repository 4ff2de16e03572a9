package dht

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZentaChain/zentalk-wsnet/pkg/protocol"
)

var errNotFound = errors.New("not found")

type memStore struct {
	values map[string]json.RawMessage
}

func newMemStore() *memStore {
	return &memStore{values: make(map[string]json.RawMessage)}
}

func (m *memStore) Put(_ context.Context, key string, value any) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.values[key] = b
	return nil
}

func (m *memStore) Get(_ context.Context, key string) (json.RawMessage, error) {
	v, ok := m.values[key]
	if !ok {
		return nil, errNotFound
	}
	return v, nil
}

func TestPublishAndFindContact(t *testing.T) {
	kp := newKey(t)
	store := newMemStore()
	ctx := context.Background()

	record, err := PublishContact(ctx, store, kp, protocol.Contact{
		Name:    "alice",
		Address: "10.0.0.5",
		Port:    32321,
	}, 0)
	require.NoError(t, err)
	assert.Equal(t, ContactKey(kp.PublicKeyHash()), record.Key)
	assert.Equal(t, int64(DefaultRecordTTL.Seconds()), record.TTL)

	got, err := FindContact(ctx, store, kp.PublicKeyHash())
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Name)
	assert.Equal(t, "10.0.0.5", got.Address)
	assert.Equal(t, 32321, got.Port)
	assert.Equal(t, kp.PublicKeyHex(), got.PublicKey)
	assert.Equal(t, kp.PublicKeyHash(), got.PKeyHash)
}

func TestFindContactStringWrapped(t *testing.T) {
	kp := newKey(t)
	store := newMemStore()
	ctx := context.Background()

	record, err := PublishContact(ctx, store, kp, protocol.Contact{Name: "bob"}, time.Hour)
	require.NoError(t, err)
	encoded, err := record.Encode()
	require.NoError(t, err)
	store.values[record.Key], _ = json.Marshal(string(encoded))

	got, err := FindContact(ctx, store, kp.PublicKeyHash())
	require.NoError(t, err)
	assert.Equal(t, "bob", got.Name)
}

func TestFindContactRejectsForeignPublisher(t *testing.T) {
	victim := newKey(t)
	attacker := newKey(t)
	store := newMemStore()
	ctx := context.Background()

	// attacker signs its own contact but stores it under the victim's key
	value, _ := json.Marshal(protocol.Contact{Name: "victim", PKeyHash: victim.PublicKeyHash()})
	key := ContactKey(victim.PublicKeyHash())
	record, err := SignRecord(key, value, attacker, time.Hour)
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, key, record))

	_, err = FindContact(ctx, store, victim.PublicKeyHash())
	assert.ErrorIs(t, err, ErrPublisherMismatch)
}

func TestFindContactMissing(t *testing.T) {
	_, err := FindContact(context.Background(), newMemStore(), "abc")
	assert.ErrorIs(t, err, errNotFound)
}
