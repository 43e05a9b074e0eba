// Command sign-order is a developer utility: it generates a keypair, builds
// a single-token listing order against the seaport/single-token variant,
// signs the order's canonical id digest, stores that signature as the
// order's raw payload, and prints the order ready for local ingestion
// testing.
package main

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/relaymatch/matchcore/pkg/crypto"
	"github.com/relaymatch/matchcore/pkg/marketplace"
	"github.com/relaymatch/matchcore/pkg/order"
)

func main() {
	fmt.Println("Generating new keypair...")
	signer, err := crypto.GenerateKey()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Address: %s\n", signer.Address().Hex())
	fmt.Printf("Private Key: %s (KEEP SECRET!)\n\n", signer.PrivateKeyHex())

	now := time.Now().Unix()
	o := &order.Order{
		ChainID:       1,
		Side:          order.Sell,
		Scope:         order.SingleToken,
		Collection:    common.HexToAddress("0x1111111111111111111111111111111111111111"),
		TokenID:       big.NewInt(1),
		Complication:  common.HexToAddress("0x2222222222222222222222222222222222222222"),
		Currency:      common.Address{}, // native
		StartPriceEth: big.NewFloat(0.1),
		StartTime:     now,
		EndTime:       now + 86400,
		Signer:        signer.Address(),
		Marketplace:   string(marketplace.Seaport),
		Kind:          string(marketplace.SingleTokenKind),
		Status:        order.Active,
	}

	digest := order.CanonicalID(o)
	sig, err := signer.Sign(digest.Bytes())
	if err != nil {
		fmt.Printf("Error signing: %v\n", err)
		os.Exit(1)
	}
	o.RawPayload = sig
	o.ID = order.CanonicalID(o)

	if err := o.Validate(); err != nil {
		fmt.Printf("Order failed validation: %v\n", err)
		os.Exit(1)
	}

	recovered, err := crypto.RecoverAddress(digest.Bytes(), sig)
	if err != nil {
		fmt.Printf("Error recovering signer: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Order id: %s\n", o.ID.Hex())
	fmt.Printf("Recovered signer: %s (matches: %v)\n\n", recovered.Hex(), recovered == signer.Address())

	out, err := json.MarshalIndent(o, "", "  ")
	if err != nil {
		fmt.Printf("Error marshaling order: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Signed order (JSON):")
	fmt.Println(string(out))
}
