package tracing

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mgruene/ARANDU-PUB/internal/config"
)

func TestSetup_DisabledWithoutKeys(t *testing.T) {
	t.Parallel()
	for _, cfg := range []config.TracingConfig{
		{},
		{PublicKey: "pk"},
		{SecretKey: "sk", Host: "http://langfuse"},
	} {
		h, flush, ok := Setup(cfg)
		assert.False(t, ok)
		assert.Nil(t, h)
		assert.Nil(t, flush)
	}
}
