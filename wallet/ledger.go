package wallet

import (
	"fmt"
	"parklot/internal"
	"parklot/models"
	"parklot/utility"
	"time"
)

// Ledger is the balance service over wallet documents. All adjustments go
// through the store's AdjustBalance, which refuses to take a balance below
// zero; the ledger layer validates amounts and resolves subjects to wallets.
type Ledger struct {
	wallets internal.WalletStore
	users   internal.UserStore
	logger  internal.LogHandler
	events  internal.EventHandler
}

func NewLedger(wallets internal.WalletStore, users internal.UserStore) *Ledger {
	return &Ledger{
		wallets: wallets,
		users:   users,
	}
}

func (l *Ledger) SetLogger(logger internal.LogHandler) {
	l.logger = logger
}

func (l *Ledger) SetEventHandler(events internal.EventHandler) {
	l.events = events
}

// BalanceFor returns the wallet of a subject.
func (l *Ledger) BalanceFor(subjectId string) (*models.Wallet, error) {
	wallet, err := l.wallets.GetWalletBySubject(subjectId)
	if err != nil {
		return nil, utility.Wrap("get wallet", err)
	}
	if wallet == nil {
		return nil, utility.NotFound("wallet not found")
	}
	return wallet, nil
}

// TopUp credits a subject's wallet.
func (l *Ledger) TopUp(subjectId string, amount int) (*models.Wallet, error) {
	if amount <= 0 {
		return nil, utility.InvalidArgument("top up amount must be positive")
	}
	wallet, err := l.BalanceFor(subjectId)
	if err != nil {
		return nil, err
	}
	updated, err := l.wallets.AdjustBalance(wallet.WalletId, amount, "topup")
	if err != nil {
		return nil, utility.Wrap("top up wallet", err)
	}
	l.featureEvent("TopUp", updated.WalletId, fmt.Sprintf("topped up %s, balance %d", utility.FormatRupiah(amount), updated.CurrentBalance))
	l.notifyTopUp(subjectId, amount)
	return updated, nil
}

// Deduct debits a wallet by a positive amount; the store applies it as a
// negative delta and fails without writing when the balance cannot cover it.
func (l *Ledger) Deduct(walletId string, amount int, reason string) (*models.Wallet, error) {
	if amount <= 0 {
		return nil, utility.InvalidArgument("deduction amount must be positive")
	}
	updated, err := l.wallets.AdjustBalance(walletId, -amount, reason)
	if err != nil {
		return nil, utility.Wrap("deduct from wallet", err)
	}
	l.featureEvent("Deduct", walletId, fmt.Sprintf("deducted %s for %s, balance %d", utility.FormatRupiah(amount), reason, updated.CurrentBalance))
	return updated, nil
}

// AdminTopUp credits any subject's wallet, creating the wallet with the
// credited amount when the subject has none yet.
func (l *Ledger) AdminTopUp(subjectId string, amount int) (*models.Wallet, error) {
	if amount <= 0 {
		return nil, utility.InvalidArgument("top up amount must be positive")
	}
	user, err := l.users.GetUser(subjectId)
	if err != nil {
		return nil, utility.Wrap("get user", err)
	}
	if user == nil {
		return nil, utility.NotFound("user not found")
	}

	wallet, err := l.wallets.GetWalletBySubject(subjectId)
	if err != nil {
		return nil, utility.Wrap("get wallet", err)
	}
	if wallet == nil {
		wallet = models.NewWallet(subjectId, amount)
		if err = l.wallets.AddWallet(wallet); err != nil {
			return nil, utility.Wrap("create wallet", err)
		}
		l.featureEvent("TopUp", wallet.WalletId, fmt.Sprintf("created wallet for %s with %s", subjectId, utility.FormatRupiah(amount)))
		l.notifyTopUp(subjectId, amount)
		return wallet, nil
	}

	updated, err := l.wallets.AdjustBalance(wallet.WalletId, amount, "topup")
	if err != nil {
		return nil, utility.Wrap("top up wallet", err)
	}
	l.featureEvent("TopUp", updated.WalletId, fmt.Sprintf("topped up %s for %s, balance %d", utility.FormatRupiah(amount), subjectId, updated.CurrentBalance))
	l.notifyTopUp(subjectId, amount)
	return updated, nil
}

func (l *Ledger) featureEvent(feature, id, text string) {
	if l.logger != nil {
		l.logger.FeatureEvent(feature, id, text)
	}
}

func (l *Ledger) notifyTopUp(subjectId string, amount int) {
	if l.events == nil {
		return
	}
	l.events.OnTopUp(&internal.EventMessage{
		Type:      "TopUp",
		SubjectId: subjectId,
		Amount:    amount,
		Time:      time.Now(),
	})
}
