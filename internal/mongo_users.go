package internal

import (
	"errors"
	"parklot/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

func (m *MongoDB) GetUserByCredential(credential string) (*models.User, error) {
	return m.findUser(bson.D{{Key: "credential", Value: credential}})
}

func (m *MongoDB) GetUser(id string) (*models.User, error) {
	return m.findUser(bson.D{{Key: "user_id", Value: id}})
}

func (m *MongoDB) findUser(filter bson.D) (*models.User, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(collectionUsers)
	var user models.User
	err = collection.FindOne(m.ctx, filter).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}
