package internal

import (
	"parklot/models"
	"time"
)

type Data interface {
	DataType() string
}

// SessionStore is the parking-session side of the document store. Getters
// return (nil, nil) when no document matches; the coordinator decides whether
// absence is a domain error.
type SessionStore interface {
	AddSession(session *models.ParkingSession) error
	GetSession(id string) (*models.ParkingSession, error)
	GetActiveSessionByVehicle(tag string) (*models.ParkingSession, error)
	GetActiveSessionBySubject(subjectId string) (*models.ParkingSession, error)
	GetLatestClosedSessionByVehicle(tag string) (*models.ParkingSession, error)
	GetActiveSessions() ([]models.ParkingSession, error)
	GetSessionsBySubject(subjectId string) ([]models.ParkingSession, error)
	CloseSession(id string, exitedAt time.Time, durationMinutes, amountDue int) error
	SetPaymentState(id string, state models.PaymentState) error
	CountSessions(filter models.HistoryFilter) (int, error)
	GetSessions(filter models.HistoryFilter, sort models.SortOrder, page models.Page) ([]models.ParkingSession, error)
	GetUnsettledSessions() ([]models.ParkingSession, error)
}

// WalletStore is the ledger side. AdjustBalance performs the store's
// read-then-conditionally-write: it never persists a negative balance and
// appends an audit entry alongside every successful write.
type WalletStore interface {
	AddWallet(wallet *models.Wallet) error
	GetWallet(id string) (*models.Wallet, error)
	GetWalletBySubject(subjectId string) (*models.Wallet, error)
	AdjustBalance(walletId string, delta int, reason string) (*models.Wallet, error)
}

// UserStore is the read-only directory view: credential and id resolution.
type UserStore interface {
	GetUserByCredential(credential string) (*models.User, error)
	GetUser(id string) (*models.User, error)
}

type Database interface {
	SessionStore
	WalletStore
	UserStore
	WriteLogMessage(data Data) error
	ReadLog() (interface{}, error)
	GetSubscriptions() ([]models.UserSubscription, error)
	AddSubscription(subscription *models.UserSubscription) error
	DeleteSubscription(subscription *models.UserSubscription) error
}
