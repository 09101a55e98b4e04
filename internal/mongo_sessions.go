package internal

import (
	"errors"
	"parklot/models"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func (m *MongoDB) AddSession(session *models.ParkingSession) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(collectionSessions)
	_, err = collection.InsertOne(m.ctx, session)
	return err
}

func (m *MongoDB) GetSession(id string) (*models.ParkingSession, error) {
	return m.findSession(bson.D{{Key: "session_id", Value: id}})
}

// GetActiveSessionByVehicle finds the session with no exit time for a plate.
// The no-double-check-in invariant keeps this unique.
func (m *MongoDB) GetActiveSessionByVehicle(tag string) (*models.ParkingSession, error) {
	return m.findSession(bson.D{{Key: "vehicle_tag", Value: tag}, {Key: "exited_at", Value: nil}})
}

func (m *MongoDB) GetActiveSessionBySubject(subjectId string) (*models.ParkingSession, error) {
	return m.findSession(bson.D{{Key: "subject_id", Value: subjectId}, {Key: "exited_at", Value: nil}})
}

// GetLatestClosedSessionByVehicle finds the newest closed session for a
// plate, whatever its payment state. The coordinator uses it to retry a
// settlement that never landed and to refuse a repeated checkout.
func (m *MongoDB) GetLatestClosedSessionByVehicle(tag string) (*models.ParkingSession, error) {
	filter := bson.D{
		{Key: "vehicle_tag", Value: tag},
		{Key: "exited_at", Value: bson.D{{Key: "$ne", Value: nil}}},
	}
	return m.findSession(filter, options.FindOne().SetSort(bson.D{{Key: "entered_at", Value: -1}}))
}

func (m *MongoDB) findSession(filter bson.D, opts ...*options.FindOneOptions) (*models.ParkingSession, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(collectionSessions)
	var session models.ParkingSession
	err = collection.FindOne(m.ctx, filter, opts...).Decode(&session)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (m *MongoDB) GetActiveSessions() ([]models.ParkingSession, error) {
	return m.findSessions(bson.D{{Key: "exited_at", Value: nil}}, options.Find().SetSort(bson.D{{Key: "entered_at", Value: -1}}))
}

func (m *MongoDB) GetSessionsBySubject(subjectId string) ([]models.ParkingSession, error) {
	filter := bson.D{{Key: "subject_id", Value: subjectId}}
	return m.findSessions(filter, options.Find().SetSort(bson.D{{Key: "entered_at", Value: -1}}))
}

// GetUnsettledSessions lists closed sessions still pending payment, the
// operator view onto the settlement crash window.
func (m *MongoDB) GetUnsettledSessions() ([]models.ParkingSession, error) {
	filter := bson.D{
		{Key: "exited_at", Value: bson.D{{Key: "$ne", Value: nil}}},
		{Key: "payment_state", Value: models.PaymentPending},
	}
	return m.findSessions(filter, options.Find().SetSort(bson.D{{Key: "entered_at", Value: -1}}))
}

func (m *MongoDB) findSessions(filter bson.D, opts *options.FindOptions) ([]models.ParkingSession, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(collectionSessions)
	cursor, err := collection.Find(m.ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var sessions []models.ParkingSession
	if err = cursor.All(m.ctx, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// CloseSession writes the checkout result. ExitedAt is written once; the
// coordinator never calls this for an already closed session.
func (m *MongoDB) CloseSession(id string, exitedAt time.Time, durationMinutes, amountDue int) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	filter := bson.D{{Key: "session_id", Value: id}}
	update := bson.M{"$set": bson.M{
		"exited_at":        exitedAt,
		"duration_minutes": durationMinutes,
		"amount_due":       amountDue,
	}}
	collection := connection.Database(m.database).Collection(collectionSessions)
	_, err = collection.UpdateOne(m.ctx, filter, update)
	return err
}

func (m *MongoDB) SetPaymentState(id string, state models.PaymentState) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	filter := bson.D{{Key: "session_id", Value: id}}
	update := bson.M{"$set": bson.M{"payment_state": state}}
	collection := connection.Database(m.database).Collection(collectionSessions)
	_, err = collection.UpdateOne(m.ctx, filter, update)
	return err
}

func historyFilter(filter models.HistoryFilter) bson.D {
	query := bson.D{}
	if filter.From != nil || filter.To != nil {
		rangeFilter := bson.D{}
		if filter.From != nil {
			rangeFilter = append(rangeFilter, bson.E{Key: "$gte", Value: *filter.From})
		}
		if filter.To != nil {
			rangeFilter = append(rangeFilter, bson.E{Key: "$lte", Value: *filter.To})
		}
		query = append(query, bson.E{Key: "entered_at", Value: rangeFilter})
	}
	if filter.State != "" {
		query = append(query, bson.E{Key: "payment_state", Value: filter.State})
	}
	return query
}

func (m *MongoDB) CountSessions(filter models.HistoryFilter) (int, error) {
	connection, err := m.connect()
	if err != nil {
		return 0, err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(collectionSessions)
	count, err := collection.CountDocuments(m.ctx, historyFilter(filter))
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

func (m *MongoDB) GetSessions(filter models.HistoryFilter, sort models.SortOrder, page models.Page) ([]models.ParkingSession, error) {
	sortKey := sort.Key
	if sortKey == "" {
		sortKey = "entered_at"
	}
	direction := 1
	if sort.Descending {
		direction = -1
	}
	opts := options.Find().SetSort(bson.D{{Key: sortKey, Value: direction}})
	if page.Limit > 0 {
		opts = opts.SetSkip(page.Skip()).SetLimit(int64(page.Limit))
	}
	return m.findSessions(historyFilter(filter), opts)
}
