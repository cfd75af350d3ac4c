package validator

import (
	"github.com/svost/novacoin/primitives"
	"github.com/svost/novacoin/wire"
)

// InitialProofOfWorkSubsidy is the flat per-block PoW mint this core
// enforces. The reference implementation ties the subsidy to the
// block's difficulty (nBits) rather than height; that schedule is not
// recoverable from the retrieved sources (§9 Open Question territory),
// so this keeps a constant subsidy instead of guessing at a halving
// curve.
const InitialProofOfWorkSubsidy = 10 * wire.Coin

// ProofOfWorkReward returns the maximum a PoW coinbase may mint: the
// flat subsidy plus whatever fees this block's other transactions paid.
func ProofOfWorkReward(fees int64) int64 {
	return InitialProofOfWorkSubsidy + fees
}

// CoinAgeReward computes the proof-of-stake mint for a coinstake
// transaction from its aggregate coin age, following the ppcoin-
// lineage formula: reward = coin-age (in cent-years, i.e. Cent-valued
// units held for a year) × an annual interest rate. Fees are not added — spec §4.7 step 8 destroys them
// for PoS blocks rather than paying them to the coinstake.
//
// StakeAnnualInterestPermil sets the rate; 100 == 10% per coin-year,
// novacoin's own published initial rate.
const StakeAnnualInterestPermil = 100

func CoinAgeReward(coinAgeCentYears uint64) int64 {
	reward := int64(coinAgeCentYears) * wire.Cent * StakeAnnualInterestPermil / 1000
	if reward < 0 {
		return 0
	}
	return reward
}

// secondsPerYear is used to normalize accumulated cent-seconds into
// cent-years for CoinAgeReward's input.
const secondsPerYear = 365 * 24 * 60 * 60

// maxStakeAge caps how much of an input's age counts towards coin age,
// matching the reference implementation's anti-hoarding ceiling.
const maxStakeAge = 90 * 24 * 60 * 60

// ComputeCoinAge sums (value_in_cents × capped_age_seconds) across a
// coinstake's inputs and returns the total in cent-years, the unit
// CoinAgeReward expects. prevOuts and prevTimes must be parallel to
// tx.Vin (prevTimes[i] is the timestamp of the transaction that
// created prevOuts[i]).
func ComputeCoinAge(tx *primitives.Tx, prevOuts []primitives.TxOut, prevTimes []uint32, blockTime uint32) uint64 {
	var centSeconds uint64
	for i := range tx.Vin {
		if i >= len(prevOuts) || i >= len(prevTimes) {
			break
		}
		if prevOuts[i].Value <= 0 {
			continue
		}
		age := int64(blockTime) - int64(prevTimes[i])
		if age < 0 {
			age = 0
		}
		if age > maxStakeAge {
			age = maxStakeAge
		}
		centSeconds += uint64(prevOuts[i].Value/wire.Cent) * uint64(age)
	}
	return centSeconds / secondsPerYear
}
