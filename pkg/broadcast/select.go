package broadcast

import (
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/relaymatch/matchcore/pkg/crypto"
)

// Select resolves spec.md §9's second Open Question: the Private Relay
// Bundle path is production behavior once both a flashbots auth signer and
// a relay URL are configured; the Forked/Direct path is used otherwise
// (dev/fork mode, or no relay signer or relay URL available).
func Select(client *ethclient.Client, relayURL string, authSigner *crypto.Signer) Broadcaster {
	if authSigner != nil && relayURL != "" {
		return NewRelayBroadcaster(relayURL, authSigner)
	}
	return NewDirectBroadcaster(client)
}
