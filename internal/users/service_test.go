package users

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/brunamourao/usermail-backend/pkg/db/models"
	"github.com/brunamourao/usermail-backend/pkg/enums"
	pkgerrors "github.com/brunamourao/usermail-backend/pkg/errors"
	"github.com/brunamourao/usermail-backend/pkg/outbox"
	"github.com/brunamourao/usermail-backend/pkg/outbox/payloads"
)

type stubTxRunner struct {
	err error
}

func (s stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if s.err != nil {
		return s.err
	}
	return fn(nil)
}

type stubUserRepository struct {
	data      map[string]*models.User
	created   *models.User
	createErr error
}

func newStubUserRepository() *stubUserRepository {
	return &stubUserRepository{data: map[string]*models.User{}}
}

func (s *stubUserRepository) Create(ctx context.Context, dto CreateUserDTO) (*models.User, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	user := &models.User{
		ID:    uuid.New(),
		Name:  dto.Name,
		Email: dto.Email,
	}
	s.data[dto.Email] = user
	s.created = user
	return user, nil
}

func (s *stubUserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if user, ok := s.data[email]; ok {
		return user, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubUserRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	for _, user := range s.data {
		if user.ID == id {
			return user, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubUserRepository) List(ctx context.Context, limit, offset int) ([]models.User, error) {
	rows := make([]models.User, 0, len(s.data))
	for _, user := range s.data {
		rows = append(rows, *user)
	}
	return rows, nil
}

type stubEmitter struct {
	messages []outbox.Message
	err      error
}

func (s *stubEmitter) Emit(ctx context.Context, tx *gorm.DB, msg outbox.Message) error {
	if s.err != nil {
		return s.err
	}
	s.messages = append(s.messages, msg)
	return nil
}

type serviceTestSetup struct {
	service Service
	repo    *stubUserRepository
	emitter *stubEmitter
}

func newServiceTestSetup(t *testing.T, runner txRunner) *serviceTestSetup {
	t.Helper()
	repo := newStubUserRepository()
	emitter := &stubEmitter{}
	svc, err := NewService(ServiceParams{
		TxRunner: runner,
		UserRepoFactory: func(tx *gorm.DB) userRepository {
			return repo
		},
		Emitter: emitter,
	})
	if err != nil {
		t.Fatalf("build service: %v", err)
	}
	return &serviceTestSetup{service: svc, repo: repo, emitter: emitter}
}

func TestCreateAndNotifyPersistsUserAndQueuesWelcome(t *testing.T) {
	setup := newServiceTestSetup(t, stubTxRunner{})

	dto, err := setup.service.CreateAndNotify(context.Background(), CreateUserRequest{
		Name:  "Bruna",
		Email: "Bruna@Example.com",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if dto.Email != "bruna@example.com" {
		t.Fatalf("expected normalized email, got %q", dto.Email)
	}
	if dto.ID == uuid.Nil {
		t.Fatal("expected assigned id")
	}

	if len(setup.emitter.messages) != 1 {
		t.Fatalf("expected 1 outbox message, got %d", len(setup.emitter.messages))
	}
	msg := setup.emitter.messages[0]
	if msg.EventType != enums.EventUserCreated {
		t.Fatalf("unexpected event type %s", msg.EventType)
	}
	if msg.AggregateID != dto.ID {
		t.Fatal("aggregate id must match the new user")
	}
	event, ok := msg.Data.(payloads.UserCreatedEvent)
	if !ok {
		t.Fatalf("unexpected payload type %T", msg.Data)
	}
	if event.Subject != payloads.EmailSubjectWelcome {
		t.Fatalf("unexpected subject %q", event.Subject)
	}
	if event.EmailTo != "bruna@example.com" {
		t.Fatalf("unexpected recipient %q", event.EmailTo)
	}
}

func TestCreateAndNotifyRejectsDuplicateEmail(t *testing.T) {
	setup := newServiceTestSetup(t, stubTxRunner{})
	ctx := context.Background()

	if _, err := setup.service.CreateAndNotify(ctx, CreateUserRequest{Name: "Bruna", Email: "bruna@example.com"}); err != nil {
		t.Fatalf("first create: %v", err)
	}
	_, err := setup.service.CreateAndNotify(ctx, CreateUserRequest{Name: "Outra", Email: "bruna@example.com"})
	assertCode(t, err, pkgerrors.CodeConflict)

	if len(setup.emitter.messages) != 1 {
		t.Fatal("duplicate registration must not queue a second message")
	}
}

func TestCreateAndNotifyValidatesInput(t *testing.T) {
	setup := newServiceTestSetup(t, stubTxRunner{})
	ctx := context.Background()

	_, err := setup.service.CreateAndNotify(ctx, CreateUserRequest{Name: "", Email: "bruna@example.com"})
	assertCode(t, err, pkgerrors.CodeValidation)

	_, err = setup.service.CreateAndNotify(ctx, CreateUserRequest{Name: "Bruna", Email: "  "})
	assertCode(t, err, pkgerrors.CodeValidation)
}

func TestCreateAndNotifyRejectsMalformedEmail(t *testing.T) {
	setup := newServiceTestSetup(t, stubTxRunner{})
	ctx := context.Background()

	for _, email := range []string{
		"definitely-not-an-email",
		"missing@domain@twice",
		"bruna@",
	} {
		_, err := setup.service.CreateAndNotify(ctx, CreateUserRequest{Name: "Bruna", Email: email})
		assertCode(t, err, pkgerrors.CodeValidation)
	}

	if setup.repo.created != nil {
		t.Fatal("malformed email must not persist a user")
	}
	if len(setup.emitter.messages) != 0 {
		t.Fatal("malformed email must not queue a message")
	}
}

func TestListReturnsRegisteredUsers(t *testing.T) {
	setup := newServiceTestSetup(t, stubTxRunner{})
	ctx := context.Background()

	if _, err := setup.service.CreateAndNotify(ctx, CreateUserRequest{Name: "Bruna", Email: "bruna@example.com"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	listed, err := setup.service.List(ctx, 10, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(listed) != 1 {
		t.Fatalf("expected 1 user, got %d", len(listed))
	}
	if listed[0].Email != "bruna@example.com" {
		t.Fatalf("unexpected email %q", listed[0].Email)
	}
}

func TestCreateAndNotifyWrapsTransactionFailure(t *testing.T) {
	setup := newServiceTestSetup(t, stubTxRunner{err: errors.New("commit failed")})

	_, err := setup.service.CreateAndNotify(context.Background(), CreateUserRequest{Name: "Bruna", Email: "bruna@example.com"})
	assertCode(t, err, pkgerrors.CodeInternal)
}

func TestCreateAndNotifyFailsWhenEmitFails(t *testing.T) {
	setup := newServiceTestSetup(t, stubTxRunner{})
	setup.emitter.err = errors.New("insert outbox row")

	_, err := setup.service.CreateAndNotify(context.Background(), CreateUserRequest{Name: "Bruna", Email: "bruna@example.com"})
	assertCode(t, err, pkgerrors.CodeInternal)
}

func TestGetByIDReturnsNotFound(t *testing.T) {
	setup := newServiceTestSetup(t, stubTxRunner{})

	_, err := setup.service.GetByID(context.Background(), uuid.New())
	assertCode(t, err, pkgerrors.CodeNotFound)
}

func TestGetByIDReturnsStoredUser(t *testing.T) {
	setup := newServiceTestSetup(t, stubTxRunner{})
	ctx := context.Background()

	created, err := setup.service.CreateAndNotify(ctx, CreateUserRequest{Name: "Bruna", Email: "bruna@example.com"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	dto, err := setup.service.GetByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if dto.Email != created.Email {
		t.Fatalf("expected %q, got %q", created.Email, dto.Email)
	}
}

func assertCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error")
	}
	appErr := pkgerrors.As(err)
	if appErr == nil {
		t.Fatalf("expected app error, got %T", err)
	}
	if appErr.Code() != code {
		t.Fatalf("expected code %s, got %s", code, appErr.Code())
	}
}
