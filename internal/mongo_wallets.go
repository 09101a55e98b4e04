package internal

import (
	"errors"
	"parklot/models"
	"parklot/utility"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

func (m *MongoDB) AddWallet(wallet *models.Wallet) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(collectionWallets)
	_, err = collection.InsertOne(m.ctx, wallet)
	return err
}

func (m *MongoDB) GetWallet(id string) (*models.Wallet, error) {
	return m.findWallet(bson.D{{Key: "wallet_id", Value: id}})
}

func (m *MongoDB) GetWalletBySubject(subjectId string) (*models.Wallet, error) {
	return m.findWallet(bson.D{{Key: "subject_id", Value: subjectId}})
}

func (m *MongoDB) findWallet(filter bson.D) (*models.Wallet, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(collectionWallets)
	var wallet models.Wallet
	err = collection.FindOne(m.ctx, filter).Decode(&wallet)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &wallet, nil
}

// AdjustBalance applies a signed delta to a wallet. The read and the write
// are two store operations; a concurrent adjustment can interleave between
// them, which the callers bound with re-reads and terminal-state checks.
// A delta that would take the balance below zero fails without writing.
func (m *MongoDB) AdjustBalance(walletId string, delta int, reason string) (*models.Wallet, error) {
	wallet, err := m.GetWallet(walletId)
	if err != nil {
		return nil, err
	}
	if wallet == nil {
		return nil, utility.NotFound("wallet not found")
	}

	newBalance := wallet.CurrentBalance + delta
	if newBalance < 0 {
		return nil, utility.InsufficientFunds(-delta, wallet.CurrentBalance)
	}

	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	filter := bson.D{{Key: "wallet_id", Value: walletId}}
	update := bson.M{"$set": bson.M{"current_balance": newBalance}}
	collection := connection.Database(m.database).Collection(collectionWallets)
	_, err = collection.UpdateOne(m.ctx, filter, update)
	if err != nil {
		return nil, err
	}

	audit := models.WalletAudit{
		AuditId:      utility.NewUUID(),
		WalletId:     walletId,
		Delta:        delta,
		BalanceAfter: newBalance,
		Reason:       reason,
		Time:         time.Now().UTC(),
	}
	auditCollection := connection.Database(m.database).Collection(collectionWalletAudit)
	if _, err = auditCollection.InsertOne(m.ctx, audit); err != nil {
		// balance is already written; the trail entry is what reconciliation
		// leans on, so surface the failure instead of dropping it
		return nil, err
	}

	wallet.CurrentBalance = newBalance
	return wallet, nil
}
