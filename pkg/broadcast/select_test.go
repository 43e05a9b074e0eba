package broadcast

import (
	"testing"

	"github.com/relaymatch/matchcore/pkg/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelect_PrefersRelayWhenSignerConfigured(t *testing.T) {
	signer, err := crypto.GenerateKey()
	require.NoError(t, err)

	b := Select(nil, "https://relay.example", signer)
	_, ok := b.(*RelayBroadcaster)
	assert.True(t, ok, "expected relay broadcaster when a signer and relay url are configured")
}

func TestSelect_FallsBackToDirectWithoutSigner(t *testing.T) {
	b := Select(nil, "", nil)
	_, ok := b.(*DirectBroadcaster)
	assert.True(t, ok, "expected direct broadcaster when no relay signer is configured")
}
