package ledger

import (
	"math/big"

	"github.com/delegacy/core/pkg/types"
)

// ActionKind categorizes a logged action.
type ActionKind string

const (
	ActionTransfer   ActionKind = "TRANSFER"
	ActionSwap       ActionKind = "SWAP"
	ActionProvideLP  ActionKind = "PROVIDE_LP"
	ActionBorrow     ActionKind = "BORROW"
	ActionDeploy     ActionKind = "DEPLOY"
	ActionDelegate   ActionKind = "DELEGATE"
	ActionGovernance ActionKind = "GOVERNANCE"
	ActionCustom     ActionKind = "CUSTOM"
)

// Entry is one hash-chained, append-only record in a relationship's
// log. The canonical entry hash covers all seven fields below in this
// declaration order.
type Entry struct {
	RelationshipID  types.Hash
	ActionKind      ActionKind
	Target          types.Address
	Value           *big.Int
	AuthorityAtTime *big.Int
	Timestamp       uint64
	PrevHash        types.Hash
}

// Clone deep-copies an entry's big.Int fields.
func (e Entry) Clone() Entry {
	c := e
	c.Value = new(big.Int).Set(e.Value)
	c.AuthorityAtTime = new(big.Int).Set(e.AuthorityAtTime)
	return c
}

// Summary aggregates one relationship's entire log.
type Summary struct {
	TotalActions     uint64
	HighestAuthority *big.Int
	LowestAuthority  *big.Int
	TotalValue       *big.Int
	FirstAction      uint64
	LastAction       uint64
}
