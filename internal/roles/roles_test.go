package roles

import (
	"testing"

	"booking-bot/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name string
		user *models.User
		want Capabilities
	}{
		{"nil user", nil, Capabilities{}},
		{"client", &models.User{Role: models.RoleClient}, Capabilities{}},
		{"admin", &models.User{Role: models.RoleAdmin}, Capabilities{CanAdmin: true}},
		{"owner", &models.User{Role: models.RoleOwner}, Capabilities{CanAdmin: true, CanOwn: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Resolve(tt.user))
		})
	}
}

func TestAllows(t *testing.T) {
	client := Capabilities{}
	admin := Capabilities{CanAdmin: true}
	owner := Capabilities{CanAdmin: true, CanOwn: true}

	assert.True(t, client.Allows(RequireNone))
	assert.False(t, client.Allows(RequireAdmin))
	assert.False(t, client.Allows(RequireOwner))

	assert.True(t, admin.Allows(RequireAdmin))
	assert.False(t, admin.Allows(RequireOwner))

	assert.True(t, owner.Allows(RequireAdmin))
	assert.True(t, owner.Allows(RequireOwner))
	assert.False(t, owner.Allows(Requirement(99)))
}
