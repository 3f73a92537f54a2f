package types

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextHelpers(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	_, ok := RequestID(ctx)
	assert.False(t, ok)

	ctx = WithRequestID(ctx, "req-1")
	got, ok := RequestID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "req-1", got)

	ctx = WithUserID(ctx, "editor")
	user, ok := UserID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "editor", user)

	ctx = WithRoles(ctx, []string{"admin"})
	roles, ok := Roles(ctx)
	assert.True(t, ok)
	assert.Equal(t, []string{"admin"}, roles)

	ctx = WithEventID(ctx, "evt-1")
	evt, ok := EventID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "evt-1", evt)

	empty := WithUserID(context.Background(), "")
	_, ok = UserID(empty)
	assert.False(t, ok)
}
