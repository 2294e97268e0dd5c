package context

import (
	stdcontext "context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnsureCorrelationIDPrefersRequestID(t *testing.T) {
	ctx := WithRequestID(stdcontext.Background(), "req-1")
	ctx, cid := EnsureCorrelationID(ctx)

	assert.Equal(t, "req-1", cid)
	assert.Equal(t, "req-1", CorrelationIDFromContext(ctx))
}

func TestEnsureCorrelationIDGenerates(t *testing.T) {
	ctx, cid := EnsureCorrelationID(stdcontext.Background())

	assert.Len(t, cid, 26)
	_, again := EnsureCorrelationID(ctx)
	assert.Equal(t, cid, again)
}

func TestActorRoundTrip(t *testing.T) {
	ctx := WithActor(stdcontext.Background(), " api_key ", "42")
	kind, id := ActorFromContext(ctx)

	assert.Equal(t, "api_key", kind)
	assert.Equal(t, "42", id)
}
