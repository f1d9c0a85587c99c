package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/tj/assert"

	"chorus/services/presence-service/models"
	"chorus/services/presence-service/registry"
	"chorus/services/presence-service/registry/registrytest"
	"chorus/services/presence-service/utils"
)

func newTestRelay() (*Relay, *memMessageStore, *registry.Registry) {
	reg := registry.New()
	store := newMemMessageStore()
	logger := utils.NopLogger()
	return NewRelay(store, NewBroadcaster(reg, logger, nil), logger, nil), store, reg
}

func TestSendDeliversToConnectedReceiver(t *testing.T) {
	ctx := context.Background()
	relay, _, reg := newTestRelay()
	bob := registrytest.NewConn("c2", "bob")
	reg.Register("bob", bob)

	msg, err := relay.Send(ctx, "alice", "bob", "hi")
	assert.NoError(t, err)

	env, ok := bob.Last(models.EventMessageReceived)
	assert.True(t, ok)
	var got models.Message
	assert.NoError(t, env.Decode(&got))
	assert.Equal(t, msg.ID, got.ID)
	assert.Equal(t, "hi", got.Body)
}

func TestSendToOfflineReceiverIsStored(t *testing.T) {
	ctx := context.Background()
	relay, _, reg := newTestRelay()
	alice := registrytest.NewConn("c1", "alice")
	reg.Register("alice", alice)

	msg, err := relay.Send(ctx, "alice", "bob", "hi")
	assert.NoError(t, err)
	assert.NotNil(t, msg)
	assert.Equal(t, 0, len(alice.OfType(models.EventMessageReceived)))

	bob := registrytest.NewConn("c2", "bob")
	reg.Register("bob", bob)
	history, err := relay.History(ctx, "bob", "alice")
	assert.NoError(t, err)
	assert.Equal(t, 1, len(history))
	assert.Equal(t, "hi", history[0].Body)
	assert.Equal(t, 0, len(bob.Frames()))
}

func TestSendDeliveryFailureIsSwallowed(t *testing.T) {
	ctx := context.Background()
	relay, store, reg := newTestRelay()
	bob := registrytest.NewConn("c2", "bob")
	bob.Close()
	reg.Register("bob", bob)

	msg, err := relay.Send(ctx, "alice", "bob", "hi")
	assert.NoError(t, err)

	stored, err := store.Get(ctx, msg.ID)
	assert.NoError(t, err)
	assert.Equal(t, "hi", stored.Body)
}

func TestSendStoreFailureAborts(t *testing.T) {
	ctx := context.Background()
	relay, store, reg := newTestRelay()
	bob := registrytest.NewConn("c2", "bob")
	reg.Register("bob", bob)
	store.err = errors.New("postgres down")

	msg, err := relay.Send(ctx, "alice", "bob", "hi")
	assert.Nil(t, msg)
	assert.True(t, errors.Is(err, ErrTransientStore))
	assert.Equal(t, 0, len(bob.Frames()))
}

func TestSendValidation(t *testing.T) {
	relay, _, _ := newTestRelay()

	cases := []struct {
		name             string
		sender, to, body string
	}{
		{"no sender", "", "bob", "hi"},
		{"no receiver", "alice", "", "hi"},
		{"blank body", "alice", "bob", "   "},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := relay.Send(context.Background(), tc.sender, tc.to, tc.body)
			assert.True(t, errors.Is(err, ErrInvalidMessage))
		})
	}
}

func TestDeleteBroadcastsToEveryone(t *testing.T) {
	ctx := context.Background()
	relay, _, reg := newTestRelay()
	alice := registrytest.NewConn("c1", "alice")
	carol := registrytest.NewConn("c3", "carol")
	reg.Register("alice", alice)
	reg.Register("carol", carol)

	msg, err := relay.Send(ctx, "alice", "bob", "hi")
	assert.NoError(t, err)

	assert.NoError(t, relay.Delete(ctx, msg.ID.String()))

	for _, c := range []*registrytest.Conn{alice, carol} {
		env, ok := c.Last(models.EventMessageDeleted)
		assert.True(t, ok)
		var p models.MessageDeletedPayload
		assert.NoError(t, env.Decode(&p))
		assert.Equal(t, msg.ID.String(), p.MessageID)
		assert.Equal(t, "alice", p.SenderID)
		assert.Equal(t, "bob", p.ReceiverID)
	}

	history, err := relay.History(ctx, "alice", "bob")
	assert.NoError(t, err)
	assert.Equal(t, 0, len(history))
}

func TestDeleteErrors(t *testing.T) {
	ctx := context.Background()
	relay, _, _ := newTestRelay()

	err := relay.Delete(ctx, uuid.NewString())
	assert.True(t, errors.Is(err, ErrMessageNotFound))

	err = relay.Delete(ctx, "not-a-uuid")
	assert.True(t, errors.Is(err, ErrInvalidMessage))

	msg, err := relay.Send(ctx, "alice", "bob", "hi")
	assert.NoError(t, err)
	err = relay.DeleteAs(ctx, msg.ID.String(), "bob")
	assert.True(t, errors.Is(err, ErrNotMessageOwner))
	assert.NoError(t, relay.DeleteAs(ctx, msg.ID.String(), "alice"))
}
