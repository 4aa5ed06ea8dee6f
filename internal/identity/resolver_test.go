package identity

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractRoles(t *testing.T) {
	tests := []struct {
		name     string
		appMeta  map[string]interface{}
		userMeta map[string]interface{}
		seed     []string
		want     []string
	}{
		{
			name: "seed only when metadata empty",
			seed: []string{"authenticated"},
			want: []string{"authenticated"},
		},
		{
			name:    "string role from app metadata",
			appMeta: map[string]interface{}{"role": "admin"},
			seed:    []string{"authenticated"},
			want:    []string{"authenticated", "admin"},
		},
		{
			name:     "list roles from user metadata",
			userMeta: map[string]interface{}{"roles": []interface{}{"finance", "ops"}},
			seed:     []string{"authenticated"},
			want:     []string{"authenticated", "finance", "ops"},
		},
		{
			name:     "all four locations unioned in order",
			appMeta:  map[string]interface{}{"role": "admin", "roles": []interface{}{"reports"}},
			userMeta: map[string]interface{}{"role": "manager", "roles": []interface{}{"ops"}},
			seed:     []string{"authenticated"},
			want:     []string{"authenticated", "admin", "manager", "reports", "ops"},
		},
		{
			name:     "duplicates collapse",
			appMeta:  map[string]interface{}{"role": "admin"},
			userMeta: map[string]interface{}{"roles": []interface{}{"admin", "admin"}},
			seed:     []string{"authenticated"},
			want:     []string{"authenticated", "admin"},
		},
		{
			name:     "non-string values ignored",
			appMeta:  map[string]interface{}{"role": 42},
			userMeta: map[string]interface{}{"roles": map[string]interface{}{"x": "y"}},
			seed:     []string{"authenticated"},
			want:     []string{"authenticated"},
		},
		{
			name:    "chart path seeds user and authenticated",
			appMeta: map[string]interface{}{"role": "admin"},
			seed:    []string{"user", "authenticated"},
			want:    []string{"user", "authenticated", "admin"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractRoles(tt.appMeta, tt.userMeta, tt.seed...)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPrincipal_HasRole(t *testing.T) {
	p := &Principal{Roles: []string{"authenticated", "admin"}}
	assert.True(t, p.HasRole("admin"))
	assert.False(t, p.HasRole("finance"))
}

func TestTokenFromHeader(t *testing.T) {
	r := httptest.NewRequest("POST", "/fetchUserData", nil)

	_, err := TokenFromHeader(r)
	require.Error(t, err)

	r.Header.Set("Authorization", "Basic abc")
	_, err = TokenFromHeader(r)
	require.Error(t, err)

	r.Header.Set("Authorization", "Bearer some-token")
	token, err := TokenFromHeader(r)
	require.NoError(t, err)
	assert.Equal(t, "some-token", token)
}
