package model

import "gorm.io/datatypes"

// UserPermission holds the flat permission-string set for one user.
// Permission strings are namespaced per consuming application, e.g.
// "theluxar_user". Mutated only through the permission-granting API.
type UserPermission struct {
	Base
	OwnerID     string                      `gorm:"column:owner_id;type:uuid;uniqueIndex;not null" json:"owner_id"`
	Permissions datatypes.JSONSlice[string] `gorm:"column:permissions" json:"permissions"`
}

func (UserPermission) TableName() string {
	return "user_permissions"
}
