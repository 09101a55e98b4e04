package models

type Vehicle struct {
	Plate       string `json:"plate" bson:"plate"`
	Description string `json:"description" bson:"description"`
}

// User is a directory record. Vehicles is the current registration format;
// LegacyPlates carries the old flat list some records still have, kept
// readable so ownership checks keep working without a migration.
type User struct {
	UserId       string    `json:"user_id" bson:"user_id"`
	Username     string    `json:"username" bson:"username"`
	Email        string    `json:"email" bson:"email"`
	Role         string    `json:"role" bson:"role"`
	Credential   string    `json:"credential,omitempty" bson:"credential"`
	Vehicles     []Vehicle `json:"vehicles" bson:"vehicles"`
	LegacyPlates []string  `json:"vehicle_plates,omitempty" bson:"vehicle_plates"`
}

// OwnsVehicle checks both registration formats.
func (u *User) OwnsVehicle(plate string) bool {
	for _, v := range u.Vehicles {
		if v.Plate == plate {
			return true
		}
	}
	for _, p := range u.LegacyPlates {
		if p == plate {
			return true
		}
	}
	return false
}

// VehicleDescription returns the registered description for a plate, empty
// when unknown or registered in the legacy format.
func (u *User) VehicleDescription(plate string) string {
	for _, v := range u.Vehicles {
		if v.Plate == plate {
			return v.Description
		}
	}
	return ""
}
