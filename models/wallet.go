package models

import (
	"fmt"
	"time"
)

// Wallet holds the prepaid balance for one subject. Balances are integer
// monetary units and never go negative.
type Wallet struct {
	WalletId       string `json:"wallet_id" bson:"wallet_id"`
	SubjectId      string `json:"subject_id" bson:"subject_id"`
	CurrentBalance int    `json:"current_balance" bson:"current_balance"`
}

func NewWallet(subjectId string, initialBalance int) *Wallet {
	return &Wallet{
		WalletId:       fmt.Sprintf("WALLET_%d", time.Now().UnixMilli()),
		SubjectId:      subjectId,
		CurrentBalance: initialBalance,
	}
}

// WalletAudit is one entry of the balance adjustment trail. The trail is what
// an operator reconciles against when a settlement debited the wallet but the
// session was left pending.
type WalletAudit struct {
	AuditId      string    `json:"audit_id" bson:"audit_id"`
	WalletId     string    `json:"wallet_id" bson:"wallet_id"`
	Delta        int       `json:"delta" bson:"delta"`
	BalanceAfter int       `json:"balance_after" bson:"balance_after"`
	Reason       string    `json:"reason" bson:"reason"`
	Time         time.Time `json:"time" bson:"time"`
}
