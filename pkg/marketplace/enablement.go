// Package marketplace models the closed set of external marketplaces the
// relayer knows how to parse orders from and build fill transactions for.
package marketplace

import "fmt"

// Name identifies a supported marketplace. The set is closed: callers must
// not invent new names at runtime, only toggle the ones listed here.
type Name string

const (
	Infinity      Name = "infinity"
	Seaport       Name = "seaport"
	WyvernV2      Name = "wyvern-v2"
	WyvernV23     Name = "wyvern-v2.3"
	LooksRare     Name = "looks-rare"
	ZeroExV4ERC721  Name = "zeroex-v4-erc721"
	ZeroExV4ERC1155 Name = "zeroex-v4-erc1155"
	Foundation    Name = "foundation"
	X2Y2          Name = "x2y2"
	Rarible       Name = "rarible"
	ElementERC721  Name = "element-erc721"
	ElementERC1155 Name = "element-erc1155"
	Quixotic      Name = "quixotic"
	Nouns         Name = "nouns"
	ZoraV3        Name = "zora-v3"
	Mint          Name = "mint"
	Cryptopunks   Name = "cryptopunks"
	Sudoswap      Name = "sudoswap"
	Universe      Name = "universe"
	Nftx          Name = "nftx"
	Blur          Name = "blur"
	Forward       Name = "forward"
)

// AllMarketplaces is the closed list of recognized marketplace names.
var AllMarketplaces = []Name{
	Infinity, Seaport, WyvernV2, WyvernV23, LooksRare, ZeroExV4ERC721,
	ZeroExV4ERC1155, Foundation, X2Y2, Rarible, ElementERC721,
	ElementERC1155, Quixotic, Nouns, ZoraV3, Mint, Cryptopunks, Sudoswap,
	Universe, Nftx, Blur, Forward,
}

// Kind identifies a shape of order payload a marketplace may expose.
type Kind string

const (
	SingleTokenKind Kind = "single-token"
	ContractWideKind Kind = "contract-wide"
	ComplexKind     Kind = "complex"
	BundleAskKind   Kind = "bundle-ask"
	TokenListKind   Kind = "token-list"
)

// AllKinds is the closed list of recognized order-kind names.
var AllKinds = []Kind{SingleTokenKind, ContractWideKind, ComplexKind, BundleAskKind, TokenListKind}

// KindConfig is one (marketplace, kind) cell of the enablement table.
type KindConfig struct {
	Enabled bool
}

// MarketplaceConfig is a marketplace's row of the enablement table.
type MarketplaceConfig struct {
	Enabled bool
	Kinds   map[Kind]KindConfig
}

// Table is the static marketplace×kind enablement configuration from
// spec.md §6. It is consulted at ingestion (reject unsupported pairs) and
// at Execution Engine startup (every enabled cell must resolve to a
// registered builder, checked exhaustively).
type Table map[Name]MarketplaceConfig

// DefaultTable ships with seaport:single-token enabled, infinity present
// but fully disabled, and every other marketplace absent (and therefore
// disabled).
func DefaultTable() Table {
	t := make(Table, len(AllMarketplaces))
	t[Seaport] = MarketplaceConfig{
		Enabled: true,
		Kinds: map[Kind]KindConfig{
			SingleTokenKind: {Enabled: true},
		},
	}
	t[Infinity] = MarketplaceConfig{
		Enabled: false,
		Kinds: map[Kind]KindConfig{
			SingleTokenKind:  {Enabled: false},
			ContractWideKind: {Enabled: false},
			ComplexKind:      {Enabled: false},
			BundleAskKind:    {Enabled: false},
			TokenListKind:    {Enabled: false},
		},
	}
	return t
}

// IsEnabled reports whether (name, kind) is enabled for ingestion/execution.
func (t Table) IsEnabled(name Name, kind Kind) bool {
	mc, ok := t[name]
	if !ok || !mc.Enabled {
		return false
	}
	kc, ok := mc.Kinds[kind]
	return ok && kc.Enabled
}

// UnsupportedOrderKind is returned by ingestion when (marketplace, kind)
// is not an enabled cell of the table.
type UnsupportedOrderKind struct {
	Marketplace Name
	Kind        Kind
}

func (e *UnsupportedOrderKind) Error() string {
	return fmt.Sprintf("unsupported order kind: marketplace=%s kind=%s", e.Marketplace, e.Kind)
}

// Validate rejects an order's (marketplace, kind) pair at ingestion,
// returning UnsupportedOrderKind when the table does not enable it.
func (t Table) Validate(name Name, kind Kind) error {
	if !t.IsEnabled(name, kind) {
		return &UnsupportedOrderKind{Marketplace: name, Kind: kind}
	}
	return nil
}
