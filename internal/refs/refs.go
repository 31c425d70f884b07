// Package refs generates the human-facing codes attached to ledger rows:
// transaction references, voucher codes, agent codes, and referral codes.
// Codes are random enough that collisions are negligible; the storage layer
// still enforces uniqueness as a backstop.
package refs

import (
	"crypto/rand"
	"math/big"
	"time"
)

const alphanum = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
const digits = "0123456789"

// TransactionReference returns a code like TXN20260830142501X7K2QD.
func TransactionReference() string {
	return "TXN" + time.Now().UTC().Format("20060102150405") + randomString(alphanum, 6)
}

// VoucherCode returns a 12-character WiFi voucher code.
func VoucherCode() string {
	return randomString(alphanum, 12)
}

// AgentCode returns a code like AG482913.
func AgentCode() string {
	return "AG" + randomString(digits, 6)
}

// ReferralCode returns an 8-character referral code.
func ReferralCode() string {
	return randomString(alphanum, 8)
}

func randomString(charset string, length int) string {
	max := big.NewInt(int64(len(charset)))
	out := make([]byte, length)
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic(err)
		}
		out[i] = charset[n.Int64()]
	}
	return string(out)
}
