package parking

import (
	"fmt"
	"parklot/internal"
	"parklot/models"
	"parklot/utility"
	"parklot/wallet"
	"time"
)

// Coordinator drives the parking session state machine: a session is created
// at check-in, closed with a computed fee at checkout, and settled against
// the owner's wallet. The document store offers no cross-document
// transactions, so settlement debits the wallet first and flips the payment
// state after; a crash between the two leaves the session pending with the
// wallet already debited, which the audit trail and the unsettled listing
// make visible to operators instead of double charging on retry.
type Coordinator struct {
	sessions internal.SessionStore
	users    internal.UserStore
	ledger   *wallet.Ledger
	fees     FeePolicy
	logger   internal.LogHandler
	events   internal.EventHandler
	now      func() time.Time
}

func NewCoordinator(sessions internal.SessionStore, users internal.UserStore, ledger *wallet.Ledger, fees FeePolicy) *Coordinator {
	return &Coordinator{
		sessions: sessions,
		users:    users,
		ledger:   ledger,
		fees:     fees,
		now:      time.Now,
	}
}

func (c *Coordinator) SetLogger(logger internal.LogHandler) {
	c.logger = logger
}

func (c *Coordinator) SetEventHandler(events internal.EventHandler) {
	c.events = events
}

// SetClock replaces the time source, used by tests.
func (c *Coordinator) SetClock(now func() time.Time) {
	c.now = now
}

// CheckIn opens a session for a vehicle after resolving the credential and
// verifying the vehicle belongs to the resolved subject.
func (c *Coordinator) CheckIn(credential, vehicleTag string) (*models.ParkingSession, error) {
	if credential == "" {
		return nil, utility.InvalidArgument("credential is required")
	}
	if vehicleTag == "" {
		return nil, utility.InvalidArgument("vehicle tag is required")
	}

	user, err := c.resolveCredential(credential)
	if err != nil {
		return nil, err
	}
	if !user.OwnsVehicle(vehicleTag) {
		return nil, utility.Forbidden("vehicle is not registered to this user")
	}

	// best-effort uniqueness check; the read and the insert can interleave
	// with another request, the idempotent checkout path bounds the damage
	active, err := c.sessions.GetActiveSessionByVehicle(vehicleTag)
	if err != nil {
		return nil, utility.Wrap("query active session", err)
	}
	if active != nil {
		return nil, utility.Conflict("this vehicle is already checked in")
	}

	session := models.NewParkingSession(user.UserId, vehicleTag, c.fees.NormalRate, c.now())
	if err = c.sessions.AddSession(session); err != nil {
		return nil, utility.Wrap("create session", err)
	}

	c.featureEvent("CheckIn", session.SessionId, fmt.Sprintf("vehicle %s checked in for %s", vehicleTag, user.UserId))
	if c.events != nil {
		c.events.OnCheckIn(&internal.EventMessage{
			Type:       "CheckIn",
			SessionId:  session.SessionId,
			VehicleTag: vehicleTag,
			SubjectId:  user.UserId,
			Username:   user.Username,
			Time:       session.EnteredAt,
		})
	}
	return session, nil
}

// CheckOutAndPay closes the active session for a vehicle, computes the fee
// and settles it from the owner's wallet. Calling it again for a session
// whose checkout landed but whose settlement did not re-enters settlement
// with the stored amount; calling it for an already paid session fails with
// a conflict.
func (c *Coordinator) CheckOutAndPay(credential, vehicleTag string) (*models.ParkingSession, string, error) {
	if credential == "" {
		return nil, "", utility.InvalidArgument("credential is required")
	}
	if vehicleTag == "" {
		return nil, "", utility.InvalidArgument("vehicle tag is required")
	}

	user, err := c.resolveCredential(credential)
	if err != nil {
		return nil, "", err
	}

	session, err := c.sessions.GetActiveSessionByVehicle(vehicleTag)
	if err != nil {
		return nil, "", utility.Wrap("query active session", err)
	}
	if session == nil {
		// retry path: the checkout may have landed while its settlement did not
		session, err = c.sessions.GetLatestClosedSessionByVehicle(vehicleTag)
		if err != nil {
			return nil, "", utility.Wrap("query closed session", err)
		}
	}
	if session == nil || session.PaymentState == models.PaymentCancelled {
		return nil, "", utility.NotFound("no active parking session found")
	}
	if session.SubjectId != user.UserId {
		return nil, "", utility.Forbidden("you are not authorized to check out this parking session")
	}

	if session.IsActive() {
		exitedAt := c.now()
		durationMinutes, amountDue := c.fees.Compute(session.EnteredAt, exitedAt)
		if err = c.sessions.CloseSession(session.SessionId, exitedAt, durationMinutes, amountDue); err != nil {
			// the checkout did not happen, do not settle
			return nil, "", utility.Wrap("close session", err)
		}
		session.ExitedAt = &exitedAt
		session.DurationMinutes = &durationMinutes
		session.AmountDue = amountDue

		c.featureEvent("CheckOut", session.SessionId, fmt.Sprintf("vehicle %s checked out after %d minutes, due %s", vehicleTag, durationMinutes, utility.FormatRupiah(amountDue)))
		if c.events != nil {
			c.events.OnCheckOut(&internal.EventMessage{
				Type:       "CheckOut",
				SessionId:  session.SessionId,
				VehicleTag: vehicleTag,
				SubjectId:  session.SubjectId,
				Username:   user.Username,
				Time:       exitedAt,
				Amount:     amountDue,
			})
		}
	} else if session.PaymentState == models.PaymentPaid {
		return nil, "", utility.Conflict("this parking session has already been checked out and paid")
	}

	return c.settle(session, user)
}

// settle debits the wallet and flips the session to paid, in that order. The
// session is re-read first so a settlement that raced this one fails with a
// conflict instead of charging twice.
func (c *Coordinator) settle(session *models.ParkingSession, user *models.User) (*models.ParkingSession, string, error) {
	current, err := c.sessions.GetSession(session.SessionId)
	if err != nil {
		return nil, "", utility.Wrap("reread session", err)
	}
	if current == nil {
		return nil, "", utility.NotFound("parking session not found")
	}
	if current.PaymentState != models.PaymentPending {
		return nil, "", utility.Conflict("this parking session has already been paid")
	}

	walletDoc, err := c.ledger.BalanceFor(session.SubjectId)
	if err != nil {
		return nil, "", err
	}
	if walletDoc.CurrentBalance < session.AmountDue {
		return nil, "", utility.InsufficientFunds(session.AmountDue, walletDoc.CurrentBalance)
	}

	if _, err = c.ledger.Deduct(walletDoc.WalletId, session.AmountDue, "parking "+session.SessionId); err != nil {
		return nil, "", err
	}
	if err = c.sessions.SetPaymentState(session.SessionId, models.PaymentPaid); err != nil {
		// wallet already debited, session left pending: reconcilable through
		// the audit trail and the unsettled listing
		c.warn(fmt.Sprintf("session %s debited but not marked paid: %s", session.SessionId, err))
		return nil, "", utility.Wrap("mark session paid", err)
	}
	session.PaymentState = models.PaymentPaid

	message := fmt.Sprintf("Successfully checked out and paid parking fee: %s", utility.FormatRupiah(session.AmountDue))
	c.featureEvent("Payment", session.SessionId, fmt.Sprintf("charged %s to wallet %s", utility.FormatRupiah(session.AmountDue), walletDoc.WalletId))
	if c.events != nil {
		c.events.OnPayment(&internal.EventMessage{
			Type:       "Payment",
			SessionId:  session.SessionId,
			VehicleTag: session.VehicleTag,
			SubjectId:  session.SubjectId,
			Username:   user.Username,
			Time:       c.now(),
			Amount:     session.AmountDue,
		})
	}
	return session, message, nil
}

// CancelUnpaid cancels a closed, still pending session. Cancellation is
// terminal and only reachable after checkout; active and paid sessions are
// left alone.
func (c *Coordinator) CancelUnpaid(sessionId string) (*models.ParkingSession, error) {
	session, err := c.sessions.GetSession(sessionId)
	if err != nil {
		return nil, utility.Wrap("get session", err)
	}
	if session == nil {
		return nil, utility.NotFound("parking session not found")
	}
	if session.IsActive() {
		return nil, utility.Conflict("cannot cancel an active parking session")
	}
	if session.PaymentState != models.PaymentPending {
		return nil, utility.Conflict("this parking session is already settled")
	}
	if err = c.sessions.SetPaymentState(sessionId, models.PaymentCancelled); err != nil {
		return nil, utility.Wrap("cancel session", err)
	}
	session.PaymentState = models.PaymentCancelled
	c.featureEvent("Cancel", sessionId, "payment cancelled")
	return session, nil
}

// GetActiveForSubject returns the subject's open session, with the vehicle
// description filled in when the directory can supply it.
func (c *Coordinator) GetActiveForSubject(subjectId string) (*models.ParkingSession, error) {
	session, err := c.sessions.GetActiveSessionBySubject(subjectId)
	if err != nil {
		return nil, utility.Wrap("query active session", err)
	}
	if session == nil {
		return nil, utility.NotFound("no active parking session found")
	}
	c.enrich(session)
	return session, nil
}

func (c *Coordinator) GetActiveForVehicle(vehicleTag string) (*models.ParkingSession, error) {
	session, err := c.sessions.GetActiveSessionByVehicle(vehicleTag)
	if err != nil {
		return nil, utility.Wrap("query active session", err)
	}
	if session == nil {
		return nil, utility.NotFound("no active parking session found")
	}
	c.enrich(session)
	return session, nil
}

// GetHistoryForSubject returns the subject's sessions, newest first.
func (c *Coordinator) GetHistoryForSubject(subjectId string) ([]models.ParkingSession, error) {
	sessions, err := c.sessions.GetSessionsBySubject(subjectId)
	if err != nil {
		return nil, utility.Wrap("query history", err)
	}
	c.enrichAll(sessions)
	return sessions, nil
}

// ListActiveSessions is the admin view of every open session.
func (c *Coordinator) ListActiveSessions() ([]models.ParkingSession, error) {
	sessions, err := c.sessions.GetActiveSessions()
	if err != nil {
		return nil, utility.Wrap("query active sessions", err)
	}
	c.enrichAll(sessions)
	return sessions, nil
}

// ListHistory is the admin listing with filters, sort and page+limit
// pagination.
func (c *Coordinator) ListHistory(filter models.HistoryFilter, sort models.SortOrder, page models.Page) ([]models.ParkingSession, models.Pagination, error) {
	total, err := c.sessions.CountSessions(filter)
	if err != nil {
		return nil, models.Pagination{}, utility.Wrap("count sessions", err)
	}
	sessions, err := c.sessions.GetSessions(filter, sort, page)
	if err != nil {
		return nil, models.Pagination{}, utility.Wrap("query sessions", err)
	}
	c.enrichAll(sessions)

	pagination := models.Pagination{
		Total: total,
		Page:  page.Number,
		Limit: page.Limit,
	}
	if page.Limit > 0 {
		pagination.Pages = (total + page.Limit - 1) / page.Limit
	}
	return sessions, pagination, nil
}

// ListUnsettled is the reconciliation view: sessions checked out but never
// settled, to compare against the wallet audit trail.
func (c *Coordinator) ListUnsettled() ([]models.ParkingSession, error) {
	sessions, err := c.sessions.GetUnsettledSessions()
	if err != nil {
		return nil, utility.Wrap("query unsettled sessions", err)
	}
	return sessions, nil
}

func (c *Coordinator) resolveCredential(credential string) (*models.User, error) {
	user, err := c.users.GetUserByCredential(credential)
	if err != nil {
		return nil, utility.Wrap("resolve credential", err)
	}
	if user == nil {
		return nil, utility.NotFound("user not found with the provided credential")
	}
	return user, nil
}

// enrich fills the vehicle description from the directory. A directory
// failure degrades to an empty description, never to a failed query.
func (c *Coordinator) enrich(session *models.ParkingSession) {
	user, err := c.users.GetUser(session.SubjectId)
	if err != nil || user == nil {
		return
	}
	session.VehicleDescription = user.VehicleDescription(session.VehicleTag)
}

func (c *Coordinator) enrichAll(sessions []models.ParkingSession) {
	cache := make(map[string]*models.User)
	for i := range sessions {
		user, ok := cache[sessions[i].SubjectId]
		if !ok {
			var err error
			user, err = c.users.GetUser(sessions[i].SubjectId)
			if err != nil {
				continue
			}
			cache[sessions[i].SubjectId] = user
		}
		if user != nil {
			sessions[i].VehicleDescription = user.VehicleDescription(sessions[i].VehicleTag)
		}
	}
}

func (c *Coordinator) featureEvent(feature, id, text string) {
	if c.logger != nil {
		c.logger.FeatureEvent(feature, id, text)
	}
}

func (c *Coordinator) warn(text string) {
	if c.logger != nil {
		c.logger.Warn(text)
	}
}
