package db

import (
	"errors"
	"testing"
)

func TestIsUniqueViolation(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		constraint string
		want       bool
	}{
		{
			name:       "postgres message with constraint name",
			err:        errors.New(`ERROR: duplicate key value violates unique constraint "ux_users_email" (SQLSTATE 23505)`),
			constraint: "ux_users_email",
			want:       true,
		},
		{
			name:       "sqlite message omits the constraint name",
			err:        errors.New("UNIQUE constraint failed: users.email"),
			constraint: "ux_users_email",
			want:       true,
		},
		{
			name: "generic match without constraint",
			err:  errors.New("UNIQUE constraint failed: users.email"),
			want: true,
		},
		{
			name:       "unrelated error",
			err:        errors.New("connection refused"),
			constraint: "ux_users_email",
			want:       false,
		},
		{
			name:       "nil error",
			constraint: "ux_users_email",
			want:       false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsUniqueViolation(tc.err, tc.constraint); got != tc.want {
				t.Fatalf("IsUniqueViolation(%v, %q) = %v, want %v", tc.err, tc.constraint, got, tc.want)
			}
		})
	}
}
