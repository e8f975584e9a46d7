package identity_test

import (
	"strangerchat/backend/internal/identity"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	anon := uuid.New().String()

	t.Run("Authenticated user wins over anonymous id", func(t *testing.T) {
		actor, err := identity.Resolve("42", anon)
		require.NoError(t, err)
		assert.Equal(t, "user:42", actor.ID)
		assert.False(t, actor.Anonymous)
	})

	t.Run("Anonymous visitor", func(t *testing.T) {
		actor, err := identity.Resolve("", anon)
		require.NoError(t, err)
		assert.Equal(t, "anon:"+anon, actor.ID)
		assert.True(t, actor.Anonymous)
	})

	t.Run("Malformed anonymous id", func(t *testing.T) {
		_, err := identity.Resolve("", "not-a-uuid")
		assert.ErrorIs(t, err, identity.ErrInvalidAnonID)
	})

	t.Run("Nil uuid is rejected", func(t *testing.T) {
		_, err := identity.Resolve("", uuid.Nil.String())
		assert.ErrorIs(t, err, identity.ErrInvalidAnonID)
	})

	t.Run("Nothing supplied", func(t *testing.T) {
		_, err := identity.Resolve(" ", "")
		assert.ErrorIs(t, err, identity.ErrNoIdentity)
	})
}

func TestResolveIsStable(t *testing.T) {
	anon := uuid.New().String()
	first, err := identity.Resolve("", anon)
	require.NoError(t, err)
	second, err := identity.Resolve("", anon)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestParseAndUserID(t *testing.T) {
	actor, err := identity.Parse("user:7")
	require.NoError(t, err)
	assert.Equal(t, "user:7", actor.ID)

	id, ok := identity.UserID(actor.ID)
	assert.True(t, ok)
	assert.Equal(t, "7", id)

	anon := uuid.New().String()
	actor, err = identity.Parse("anon:" + anon)
	require.NoError(t, err)
	assert.True(t, actor.Anonymous)
	_, ok = identity.UserID(actor.ID)
	assert.False(t, ok)

	_, err = identity.Parse("bogus")
	assert.ErrorIs(t, err, identity.ErrInvalidActorID)
}

func TestTokens(t *testing.T) {
	tokens := identity.NewTokens("test-secret", time.Hour)

	t.Run("Anonymous token round trip", func(t *testing.T) {
		token, anonID, err := tokens.IssueAnonymous()
		require.NoError(t, err)

		actor, err := tokens.Actor(token)
		require.NoError(t, err)
		assert.Equal(t, "anon:"+anonID, actor.ID)
		assert.True(t, actor.Anonymous)
	})

	t.Run("User token round trip", func(t *testing.T) {
		token, err := tokens.IssueUser("99")
		require.NoError(t, err)

		actor, err := tokens.Actor(token)
		require.NoError(t, err)
		assert.Equal(t, "user:99", actor.ID)
	})

	t.Run("Wrong secret", func(t *testing.T) {
		token, err := identity.NewTokens("other-secret", time.Hour).IssueUser("99")
		require.NoError(t, err)

		_, err = tokens.Actor(token)
		assert.ErrorIs(t, err, identity.ErrInvalidToken)
	})

	t.Run("Expired token", func(t *testing.T) {
		token, err := identity.NewTokens("test-secret", -time.Minute).IssueUser("99")
		require.NoError(t, err)

		_, err = tokens.Actor(token)
		assert.ErrorIs(t, err, identity.ErrInvalidToken)
	})

	t.Run("Garbage", func(t *testing.T) {
		_, err := tokens.Actor("not.a.jwt")
		assert.ErrorIs(t, err, identity.ErrInvalidToken)
	})
}
