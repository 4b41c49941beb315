package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/brunamourao/usermail-backend/pkg/migrate"
)

func TestMigrationsDirIsValid(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("validate migrations dir: %v", err)
	}
}

func TestOutboxMigrationContainsConstraints(t *testing.T) {
	content := readMigration(t, "*_create_outbox_messages.sql")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS outbox_messages",
		"CHECK (status IN ('pending', 'published', 'failed'))",
		"CHECK (attempt_count >= 0)",
		"WHERE status = 'pending'",
		"DROP TABLE IF EXISTS outbox_messages",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestUsersMigrationEnforcesUniqueEmail(t *testing.T) {
	content := readMigration(t, "*_create_users.sql")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS users",
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_users_email ON users (email)",
		"DROP TABLE IF EXISTS users",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestDLQMigrationConstrainsReason(t *testing.T) {
	content := readMigration(t, "*_create_outbox_dlq.sql")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS outbox_dlq",
		"CHECK (error_reason IN ('max_attempts', 'non_retryable'))",
		"DROP TABLE IF EXISTS outbox_dlq",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func readMigration(t *testing.T, pattern string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", pattern))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no migration matching %q found", pattern)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}
