package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// User types recognized by the authorization middleware.
const (
	UserTypeAdmin      = "admin"
	UserTypeSuperAdmin = "super_admin"
	UserTypeUser       = "user"
)

// User is an account: platform staff (admin, super_admin) or a buyer.
type User struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Email     string             `bson:"email" json:"email"`
	Password  string             `bson:"password" json:"-"`
	FullName  string             `bson:"fullName" json:"fullName"`
	UserType  string             `bson:"userType" json:"userType"`
	IsActive  bool               `bson:"isActive" json:"isActive"`
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// LoginRequest is the credential payload for the login endpoint.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Response is the shared API response envelope.
type Response struct {
	Status  int         `json:"status"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}
