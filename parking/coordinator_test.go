package parking

import (
	"errors"
	"sort"
	"testing"
	"time"

	"parklot/models"
	"parklot/utility"
	"parklot/wallet"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory stand-in for the document store. It mirrors the
// store contract: getters return (nil, nil) when nothing matches, and
// AdjustBalance refuses to take a balance below zero without writing.
type memStore struct {
	sessions map[string]*models.ParkingSession
	wallets  map[string]*models.Wallet
	users    []*models.User
	audits   []models.WalletAudit

	closeErr    error
	setStateErr error
}

func newMemStore() *memStore {
	return &memStore{
		sessions: make(map[string]*models.ParkingSession),
		wallets:  make(map[string]*models.Wallet),
	}
}

func (m *memStore) AddSession(session *models.ParkingSession) error {
	copied := *session
	m.sessions[session.SessionId] = &copied
	return nil
}

func (m *memStore) GetSession(id string) (*models.ParkingSession, error) {
	session, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	copied := *session
	return &copied, nil
}

func (m *memStore) GetActiveSessionByVehicle(tag string) (*models.ParkingSession, error) {
	for _, s := range m.sessions {
		if s.VehicleTag == tag && s.ExitedAt == nil {
			copied := *s
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *memStore) GetActiveSessionBySubject(subjectId string) (*models.ParkingSession, error) {
	for _, s := range m.sessions {
		if s.SubjectId == subjectId && s.ExitedAt == nil {
			copied := *s
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *memStore) GetLatestClosedSessionByVehicle(tag string) (*models.ParkingSession, error) {
	var found *models.ParkingSession
	for _, s := range m.sessions {
		if s.VehicleTag == tag && s.ExitedAt != nil {
			if found == nil || s.EnteredAt.After(found.EnteredAt) {
				found = s
			}
		}
	}
	if found == nil {
		return nil, nil
	}
	copied := *found
	return &copied, nil
}

func (m *memStore) GetActiveSessions() ([]models.ParkingSession, error) {
	var result []models.ParkingSession
	for _, s := range m.sessions {
		if s.ExitedAt == nil {
			result = append(result, *s)
		}
	}
	return result, nil
}

func (m *memStore) GetSessionsBySubject(subjectId string) ([]models.ParkingSession, error) {
	var result []models.ParkingSession
	for _, s := range m.sessions {
		if s.SubjectId == subjectId {
			result = append(result, *s)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].EnteredAt.After(result[j].EnteredAt)
	})
	return result, nil
}

func (m *memStore) CloseSession(id string, exitedAt time.Time, durationMinutes, amountDue int) error {
	if m.closeErr != nil {
		return m.closeErr
	}
	session, ok := m.sessions[id]
	if !ok {
		return errors.New("session not found")
	}
	session.ExitedAt = &exitedAt
	session.DurationMinutes = &durationMinutes
	session.AmountDue = amountDue
	return nil
}

func (m *memStore) SetPaymentState(id string, state models.PaymentState) error {
	if m.setStateErr != nil {
		return m.setStateErr
	}
	session, ok := m.sessions[id]
	if !ok {
		return errors.New("session not found")
	}
	session.PaymentState = state
	return nil
}

func (m *memStore) matches(s *models.ParkingSession, filter models.HistoryFilter) bool {
	if filter.From != nil && s.EnteredAt.Before(*filter.From) {
		return false
	}
	if filter.To != nil && s.EnteredAt.After(*filter.To) {
		return false
	}
	if filter.State != "" && s.PaymentState != filter.State {
		return false
	}
	return true
}

func (m *memStore) CountSessions(filter models.HistoryFilter) (int, error) {
	count := 0
	for _, s := range m.sessions {
		if m.matches(s, filter) {
			count++
		}
	}
	return count, nil
}

func (m *memStore) GetSessions(filter models.HistoryFilter, sortOrder models.SortOrder, page models.Page) ([]models.ParkingSession, error) {
	var result []models.ParkingSession
	for _, s := range m.sessions {
		if m.matches(s, filter) {
			result = append(result, *s)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if sortOrder.Descending {
			return result[i].EnteredAt.After(result[j].EnteredAt)
		}
		return result[i].EnteredAt.Before(result[j].EnteredAt)
	})
	if page.Limit > 0 {
		skip := int(page.Skip())
		if skip >= len(result) {
			return nil, nil
		}
		result = result[skip:]
		if len(result) > page.Limit {
			result = result[:page.Limit]
		}
	}
	return result, nil
}

func (m *memStore) GetUnsettledSessions() ([]models.ParkingSession, error) {
	var result []models.ParkingSession
	for _, s := range m.sessions {
		if s.ExitedAt != nil && s.PaymentState == models.PaymentPending {
			result = append(result, *s)
		}
	}
	return result, nil
}

func (m *memStore) AddWallet(wallet *models.Wallet) error {
	copied := *wallet
	m.wallets[wallet.WalletId] = &copied
	return nil
}

func (m *memStore) GetWallet(id string) (*models.Wallet, error) {
	wallet, ok := m.wallets[id]
	if !ok {
		return nil, nil
	}
	copied := *wallet
	return &copied, nil
}

func (m *memStore) GetWalletBySubject(subjectId string) (*models.Wallet, error) {
	for _, w := range m.wallets {
		if w.SubjectId == subjectId {
			copied := *w
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *memStore) AdjustBalance(walletId string, delta int, reason string) (*models.Wallet, error) {
	wallet, ok := m.wallets[walletId]
	if !ok {
		return nil, utility.NotFound("wallet not found")
	}
	newBalance := wallet.CurrentBalance + delta
	if newBalance < 0 {
		return nil, utility.InsufficientFunds(-delta, wallet.CurrentBalance)
	}
	wallet.CurrentBalance = newBalance
	m.audits = append(m.audits, models.WalletAudit{
		AuditId:      utility.NewUUID(),
		WalletId:     walletId,
		Delta:        delta,
		BalanceAfter: newBalance,
		Reason:       reason,
		Time:         time.Now().UTC(),
	})
	copied := *wallet
	return &copied, nil
}

func (m *memStore) GetUserByCredential(credential string) (*models.User, error) {
	for _, u := range m.users {
		if u.Credential == credential {
			copied := *u
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *memStore) GetUser(id string) (*models.User, error) {
	for _, u := range m.users {
		if u.UserId == id {
			copied := *u
			return &copied, nil
		}
	}
	return nil, nil
}

func newTestCoordinator(t *testing.T) (*Coordinator, *memStore, *wallet.Ledger) {
	t.Helper()
	store := newMemStore()
	store.users = []*models.User{
		{
			UserId:     "U1",
			Username:   "budi",
			Credential: "CARD-1",
			Vehicles: []models.Vehicle{
				{Plate: "B1234XY", Description: "Black Avanza"},
			},
		},
		{
			UserId:       "U2",
			Username:     "sari",
			Credential:   "CARD-2",
			LegacyPlates: []string{"D5678AB"},
		},
	}
	ledger := wallet.NewLedger(store, store)
	coordinator := NewCoordinator(store, store, ledger, NewFeePolicy(2000, 10000, 24))
	return coordinator, store, ledger
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time {
		return at
	}
}

func TestCheckIn(t *testing.T) {
	enteredAt := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

	t.Run("opens a pending session", func(t *testing.T) {
		coordinator, store, _ := newTestCoordinator(t)
		coordinator.SetClock(fixedClock(enteredAt))

		session, err := coordinator.CheckIn("CARD-1", "B1234XY")
		require.NoError(t, err)
		assert.Equal(t, "U1", session.SubjectId)
		assert.Equal(t, "B1234XY", session.VehicleTag)
		assert.Equal(t, models.PaymentPending, session.PaymentState)
		assert.True(t, session.IsActive())
		assert.Equal(t, 2000, session.AmountDue)

		stored, err := store.GetSession(session.SessionId)
		require.NoError(t, err)
		require.NotNil(t, stored)
		assert.True(t, stored.IsActive())
	})

	t.Run("legacy plate list still grants ownership", func(t *testing.T) {
		coordinator, _, _ := newTestCoordinator(t)
		coordinator.SetClock(fixedClock(enteredAt))

		session, err := coordinator.CheckIn("CARD-2", "D5678AB")
		require.NoError(t, err)
		assert.Equal(t, "U2", session.SubjectId)
	})

	t.Run("unknown credential", func(t *testing.T) {
		coordinator, _, _ := newTestCoordinator(t)
		_, err := coordinator.CheckIn("CARD-9", "B1234XY")
		assert.Equal(t, utility.KindNotFound, utility.KindOf(err))
	})

	t.Run("vehicle not registered to user", func(t *testing.T) {
		coordinator, _, _ := newTestCoordinator(t)
		_, err := coordinator.CheckIn("CARD-1", "D5678AB")
		assert.Equal(t, utility.KindForbidden, utility.KindOf(err))
	})

	t.Run("empty arguments", func(t *testing.T) {
		coordinator, _, _ := newTestCoordinator(t)
		_, err := coordinator.CheckIn("", "B1234XY")
		assert.Equal(t, utility.KindInvalidArgument, utility.KindOf(err))
		_, err = coordinator.CheckIn("CARD-1", "")
		assert.Equal(t, utility.KindInvalidArgument, utility.KindOf(err))
	})

	t.Run("second check-in for the same vehicle conflicts", func(t *testing.T) {
		coordinator, _, _ := newTestCoordinator(t)
		coordinator.SetClock(fixedClock(enteredAt))

		_, err := coordinator.CheckIn("CARD-1", "B1234XY")
		require.NoError(t, err)
		_, err = coordinator.CheckIn("CARD-1", "B1234XY")
		assert.Equal(t, utility.KindConflict, utility.KindOf(err))
	})
}

func TestCheckOutAndPay(t *testing.T) {
	enteredAt := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

	seedWallet := func(store *memStore, subjectId string, balance int) *models.Wallet {
		w := &models.Wallet{WalletId: "WALLET_1", SubjectId: subjectId, CurrentBalance: balance}
		_ = store.AddWallet(w)
		return w
	}

	t.Run("closes, charges and marks paid", func(t *testing.T) {
		coordinator, store, _ := newTestCoordinator(t)
		coordinator.SetClock(fixedClock(enteredAt))
		seedWallet(store, "U1", 50000)

		session, err := coordinator.CheckIn("CARD-1", "B1234XY")
		require.NoError(t, err)

		coordinator.SetClock(fixedClock(enteredAt.Add(10 * time.Minute)))
		paid, message, err := coordinator.CheckOutAndPay("CARD-1", "B1234XY")
		require.NoError(t, err)
		assert.Equal(t, models.PaymentPaid, paid.PaymentState)
		require.NotNil(t, paid.DurationMinutes)
		assert.Equal(t, 10, *paid.DurationMinutes)
		assert.Equal(t, 2000, paid.AmountDue)
		assert.Equal(t, "Successfully checked out and paid parking fee: Rp 2000", message)

		balance, err := store.GetWalletBySubject("U1")
		require.NoError(t, err)
		assert.Equal(t, 48000, balance.CurrentBalance)

		stored, _ := store.GetSession(session.SessionId)
		assert.Equal(t, models.PaymentPaid, stored.PaymentState)
		assert.False(t, stored.IsActive())

		require.Len(t, store.audits, 1)
		assert.Equal(t, -2000, store.audits[0].Delta)
		assert.Equal(t, "parking "+session.SessionId, store.audits[0].Reason)
	})

	t.Run("long stay charges the flat penalty", func(t *testing.T) {
		coordinator, store, _ := newTestCoordinator(t)
		coordinator.SetClock(fixedClock(enteredAt))
		seedWallet(store, "U1", 50000)

		_, err := coordinator.CheckIn("CARD-1", "B1234XY")
		require.NoError(t, err)

		coordinator.SetClock(fixedClock(enteredAt.Add(25 * time.Hour)))
		paid, _, err := coordinator.CheckOutAndPay("CARD-1", "B1234XY")
		require.NoError(t, err)
		assert.Equal(t, 10000, paid.AmountDue)

		balance, _ := store.GetWalletBySubject("U1")
		assert.Equal(t, 40000, balance.CurrentBalance)
	})

	t.Run("insufficient funds leaves session closed and pending", func(t *testing.T) {
		coordinator, store, _ := newTestCoordinator(t)
		coordinator.SetClock(fixedClock(enteredAt))
		seedWallet(store, "U1", 1000)

		session, err := coordinator.CheckIn("CARD-1", "B1234XY")
		require.NoError(t, err)

		coordinator.SetClock(fixedClock(enteredAt.Add(10 * time.Minute)))
		_, _, err = coordinator.CheckOutAndPay("CARD-1", "B1234XY")
		require.Error(t, err)
		assert.Equal(t, utility.KindInsufficientFunds, utility.KindOf(err))

		appErr := utility.AsAppError(err)
		assert.Equal(t, 2000, appErr.Required)
		assert.Equal(t, 1000, appErr.Balance)

		stored, _ := store.GetSession(session.SessionId)
		assert.False(t, stored.IsActive())
		assert.Equal(t, models.PaymentPending, stored.PaymentState)

		balance, _ := store.GetWalletBySubject("U1")
		assert.Equal(t, 1000, balance.CurrentBalance)
		assert.Empty(t, store.audits)
	})

	t.Run("retry after top up settles the stored amount", func(t *testing.T) {
		coordinator, store, ledger := newTestCoordinator(t)
		coordinator.SetClock(fixedClock(enteredAt))
		seedWallet(store, "U1", 1000)

		session, err := coordinator.CheckIn("CARD-1", "B1234XY")
		require.NoError(t, err)

		coordinator.SetClock(fixedClock(enteredAt.Add(10 * time.Minute)))
		_, _, err = coordinator.CheckOutAndPay("CARD-1", "B1234XY")
		assert.Equal(t, utility.KindInsufficientFunds, utility.KindOf(err))

		_, err = ledger.TopUp("U1", 10000)
		require.NoError(t, err)

		// dwell keeps growing past the penalty threshold, but the retry
		// settles the amount recorded at checkout, never a recomputed one
		coordinator.SetClock(fixedClock(enteredAt.Add(30 * time.Hour)))
		paid, _, err := coordinator.CheckOutAndPay("CARD-1", "B1234XY")
		require.NoError(t, err)
		assert.Equal(t, 2000, paid.AmountDue)
		require.NotNil(t, paid.DurationMinutes)
		assert.Equal(t, 10, *paid.DurationMinutes)

		stored, _ := store.GetSession(session.SessionId)
		assert.Equal(t, models.PaymentPaid, stored.PaymentState)

		balance, _ := store.GetWalletBySubject("U1")
		assert.Equal(t, 9000, balance.CurrentBalance)
	})

	t.Run("already paid session conflicts without touching the wallet", func(t *testing.T) {
		coordinator, store, _ := newTestCoordinator(t)
		coordinator.SetClock(fixedClock(enteredAt))
		seedWallet(store, "U1", 50000)

		_, err := coordinator.CheckIn("CARD-1", "B1234XY")
		require.NoError(t, err)

		coordinator.SetClock(fixedClock(enteredAt.Add(10 * time.Minute)))
		_, _, err = coordinator.CheckOutAndPay("CARD-1", "B1234XY")
		require.NoError(t, err)

		_, _, err = coordinator.CheckOutAndPay("CARD-1", "B1234XY")
		assert.Equal(t, utility.KindConflict, utility.KindOf(err))

		balance, _ := store.GetWalletBySubject("U1")
		assert.Equal(t, 48000, balance.CurrentBalance)
		assert.Len(t, store.audits, 1)
	})

	t.Run("cancelled session cannot be checked out again", func(t *testing.T) {
		coordinator, store, _ := newTestCoordinator(t)
		coordinator.SetClock(fixedClock(enteredAt))
		seedWallet(store, "U1", 50000)

		session, err := coordinator.CheckIn("CARD-1", "B1234XY")
		require.NoError(t, err)
		require.NoError(t, store.CloseSession(session.SessionId, enteredAt.Add(10*time.Minute), 10, 2000))
		_, err = coordinator.CancelUnpaid(session.SessionId)
		require.NoError(t, err)

		_, _, err = coordinator.CheckOutAndPay("CARD-1", "B1234XY")
		assert.Equal(t, utility.KindNotFound, utility.KindOf(err))
	})

	t.Run("no session for vehicle", func(t *testing.T) {
		coordinator, store, _ := newTestCoordinator(t)
		seedWallet(store, "U1", 50000)
		_, _, err := coordinator.CheckOutAndPay("CARD-1", "B1234XY")
		assert.Equal(t, utility.KindNotFound, utility.KindOf(err))
	})

	t.Run("missing wallet", func(t *testing.T) {
		coordinator, _, _ := newTestCoordinator(t)
		coordinator.SetClock(fixedClock(enteredAt))

		_, err := coordinator.CheckIn("CARD-1", "B1234XY")
		require.NoError(t, err)

		coordinator.SetClock(fixedClock(enteredAt.Add(10 * time.Minute)))
		_, _, err = coordinator.CheckOutAndPay("CARD-1", "B1234XY")
		assert.Equal(t, utility.KindNotFound, utility.KindOf(err))
	})

	t.Run("another user cannot check out the session", func(t *testing.T) {
		coordinator, store, _ := newTestCoordinator(t)
		coordinator.SetClock(fixedClock(enteredAt))
		seedWallet(store, "U1", 50000)

		_, err := coordinator.CheckIn("CARD-1", "B1234XY")
		require.NoError(t, err)

		// register the plate for the second user as well, so only the
		// session ownership check can reject the attempt
		store.users[1].LegacyPlates = append(store.users[1].LegacyPlates, "B1234XY")
		_, _, err = coordinator.CheckOutAndPay("CARD-2", "B1234XY")
		assert.Equal(t, utility.KindForbidden, utility.KindOf(err))
	})

	t.Run("failed close aborts before settlement", func(t *testing.T) {
		coordinator, store, _ := newTestCoordinator(t)
		coordinator.SetClock(fixedClock(enteredAt))
		seedWallet(store, "U1", 50000)

		session, err := coordinator.CheckIn("CARD-1", "B1234XY")
		require.NoError(t, err)

		store.closeErr = errors.New("write failed")
		coordinator.SetClock(fixedClock(enteredAt.Add(10 * time.Minute)))
		_, _, err = coordinator.CheckOutAndPay("CARD-1", "B1234XY")
		require.Error(t, err)

		stored, _ := store.GetSession(session.SessionId)
		assert.True(t, stored.IsActive())
		balance, _ := store.GetWalletBySubject("U1")
		assert.Equal(t, 50000, balance.CurrentBalance)
	})

	t.Run("debit landed but mark paid failed", func(t *testing.T) {
		coordinator, store, _ := newTestCoordinator(t)
		coordinator.SetClock(fixedClock(enteredAt))
		seedWallet(store, "U1", 50000)

		session, err := coordinator.CheckIn("CARD-1", "B1234XY")
		require.NoError(t, err)

		coordinator.SetClock(fixedClock(enteredAt.Add(10 * time.Minute)))
		store.setStateErr = errors.New("write failed")
		_, _, err = coordinator.CheckOutAndPay("CARD-1", "B1234XY")
		require.Error(t, err)

		// the session surfaces in the unsettled listing and the debit in the
		// audit trail, so operators can reconcile the two
		store.setStateErr = nil
		unsettled, err := coordinator.ListUnsettled()
		require.NoError(t, err)
		require.Len(t, unsettled, 1)
		assert.Equal(t, session.SessionId, unsettled[0].SessionId)
		require.Len(t, store.audits, 1)
		assert.Equal(t, -2000, store.audits[0].Delta)
	})
}

func TestCancelUnpaid(t *testing.T) {
	enteredAt := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

	t.Run("cancels a closed pending session", func(t *testing.T) {
		coordinator, store, _ := newTestCoordinator(t)
		coordinator.SetClock(fixedClock(enteredAt))

		session, err := coordinator.CheckIn("CARD-1", "B1234XY")
		require.NoError(t, err)
		exitedAt := enteredAt.Add(10 * time.Minute)
		require.NoError(t, store.CloseSession(session.SessionId, exitedAt, 10, 2000))

		cancelled, err := coordinator.CancelUnpaid(session.SessionId)
		require.NoError(t, err)
		assert.Equal(t, models.PaymentCancelled, cancelled.PaymentState)
	})

	t.Run("active session cannot be cancelled", func(t *testing.T) {
		coordinator, _, _ := newTestCoordinator(t)
		coordinator.SetClock(fixedClock(enteredAt))

		session, err := coordinator.CheckIn("CARD-1", "B1234XY")
		require.NoError(t, err)

		_, err = coordinator.CancelUnpaid(session.SessionId)
		assert.Equal(t, utility.KindConflict, utility.KindOf(err))
	})

	t.Run("unknown session", func(t *testing.T) {
		coordinator, _, _ := newTestCoordinator(t)
		_, err := coordinator.CancelUnpaid("PARK_404")
		assert.Equal(t, utility.KindNotFound, utility.KindOf(err))
	})
}

func TestListings(t *testing.T) {
	enteredAt := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

	t.Run("active session lookup enriches the vehicle description", func(t *testing.T) {
		coordinator, _, _ := newTestCoordinator(t)
		coordinator.SetClock(fixedClock(enteredAt))

		_, err := coordinator.CheckIn("CARD-1", "B1234XY")
		require.NoError(t, err)

		session, err := coordinator.GetActiveForSubject("U1")
		require.NoError(t, err)
		assert.Equal(t, "Black Avanza", session.VehicleDescription)

		byVehicle, err := coordinator.GetActiveForVehicle("B1234XY")
		require.NoError(t, err)
		assert.Equal(t, session.SessionId, byVehicle.SessionId)
	})

	t.Run("no active session is not found", func(t *testing.T) {
		coordinator, _, _ := newTestCoordinator(t)
		_, err := coordinator.GetActiveForSubject("U1")
		assert.Equal(t, utility.KindNotFound, utility.KindOf(err))
	})

	t.Run("history pagination", func(t *testing.T) {
		coordinator, store, _ := newTestCoordinator(t)
		for i := 0; i < 5; i++ {
			at := enteredAt.Add(time.Duration(i) * time.Hour)
			session := models.NewParkingSession("U1", "B1234XY", 2000, at)
			require.NoError(t, store.AddSession(session))
		}

		sessions, pagination, err := coordinator.ListHistory(
			models.HistoryFilter{},
			models.SortOrder{Key: "entered_at", Descending: true},
			models.Page{Number: 2, Limit: 2},
		)
		require.NoError(t, err)
		assert.Len(t, sessions, 2)
		assert.Equal(t, 5, pagination.Total)
		assert.Equal(t, 2, pagination.Page)
		assert.Equal(t, 3, pagination.Pages)
		// page 2 of the descending listing holds the third and second entries
		assert.Equal(t, enteredAt.Add(2*time.Hour), sessions[0].EnteredAt)
	})

	t.Run("history filter by state", func(t *testing.T) {
		coordinator, store, _ := newTestCoordinator(t)
		first := models.NewParkingSession("U1", "B1234XY", 2000, enteredAt)
		require.NoError(t, store.AddSession(first))
		second := models.NewParkingSession("U1", "B1234XY", 2000, enteredAt.Add(time.Hour))
		second.PaymentState = models.PaymentPaid
		require.NoError(t, store.AddSession(second))

		sessions, pagination, err := coordinator.ListHistory(
			models.HistoryFilter{State: models.PaymentPaid},
			models.SortOrder{Key: "entered_at", Descending: true},
			models.Page{Number: 1, Limit: 100},
		)
		require.NoError(t, err)
		require.Len(t, sessions, 1)
		assert.Equal(t, second.SessionId, sessions[0].SessionId)
		assert.Equal(t, 1, pagination.Total)
	})
}
