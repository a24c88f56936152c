package store

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestUserProfileStripsCredentials(t *testing.T) {
	now := time.Now()
	row := &User{
		ID:           uuid.New(),
		Name:         "Dana",
		Email:        "dana@example.com",
		Phone:        "555-0100",
		PasswordHash: "$2a$10$abcdefghijklmnopqrstuv",
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	profile := row.Profile()

	assert.Equal(t, row.ID, profile.ID)
	assert.Equal(t, "Dana", profile.Name)
	assert.Equal(t, "dana@example.com", profile.Email)
	assert.True(t, profile.PasswordSet)
}

func TestUserProfilePasswordSetFollowsHash(t *testing.T) {
	row := &User{ID: uuid.New(), Name: "Dana", Email: "dana@example.com"}
	assert.False(t, row.Profile().PasswordSet)
}

func TestNilUserProfileIsNil(t *testing.T) {
	var row *User
	assert.Nil(t, row.Profile())
}
