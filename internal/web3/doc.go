// Package web3 holds the chain-facing value types shared by the dispatcher and
// the gateway implementations: operation outcomes, balance snapshots and the
// decimal conversions between human amounts and contract base units. The
// go-ethereum backed gateway lives in the ethereum sub-package and key custody
// in custody.
package web3
