package users

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/brunamourao/usermail-backend/pkg/db"
	"github.com/brunamourao/usermail-backend/pkg/db/models"
	"github.com/brunamourao/usermail-backend/pkg/enums"
	pkgerrors "github.com/brunamourao/usermail-backend/pkg/errors"
	"github.com/brunamourao/usermail-backend/pkg/logger"
	"github.com/brunamourao/usermail-backend/pkg/outbox"
	"github.com/brunamourao/usermail-backend/pkg/outbox/payloads"
)

const emailUniqueConstraint = "ux_users_email"

// Service handles user registration and the welcome notification handoff.
type Service interface {
	CreateAndNotify(ctx context.Context, req CreateUserRequest) (*UserDTO, error)
	GetByID(ctx context.Context, id uuid.UUID) (*UserDTO, error)
	List(ctx context.Context, limit, offset int) ([]UserDTO, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type userRepository interface {
	Create(ctx context.Context, dto CreateUserDTO) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	List(ctx context.Context, limit, offset int) ([]models.User, error)
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, msg outbox.Message) error
}

// ServiceParams packages the dependencies for the registration flow.
type ServiceParams struct {
	DB       *db.Client
	Logger   *logger.Logger
	TxRunner txRunner

	UserRepoFactory func(tx *gorm.DB) userRepository
	Emitter         outboxEmitter
}

type service struct {
	base     *gorm.DB
	logg     *logger.Logger
	txRunner txRunner

	userRepoFactory func(tx *gorm.DB) userRepository
	emitter         outboxEmitter
}

// NewService builds a user service with the provided dependencies.
func NewService(params ServiceParams) (Service, error) {
	runner := params.TxRunner
	if runner == nil {
		if params.DB == nil {
			return nil, pkgerrors.New(pkgerrors.CodeInternal, "database client required")
		}
		runner = params.DB
	}

	repoFactory := params.UserRepoFactory
	if repoFactory == nil {
		repoFactory = func(tx *gorm.DB) userRepository {
			return NewRepository(tx)
		}
	}

	emitter := params.Emitter
	if emitter == nil {
		if params.DB == nil {
			return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox emitter required")
		}
		emitter = outbox.NewService(outbox.NewRepository(params.DB.DB()), params.Logger)
	}

	var base *gorm.DB
	if params.DB != nil {
		base = params.DB.DB()
	}

	return &service{
		base:            base,
		logg:            params.Logger,
		txRunner:        runner,
		userRepoFactory: repoFactory,
		emitter:         emitter,
	}, nil
}

// CreateAndNotify persists the user and records the welcome notification in
// the same transaction. Either both land or neither does.
func (s *service) CreateAndNotify(ctx context.Context, req CreateUserRequest) (*UserDTO, error) {
	name := strings.TrimSpace(req.Name)
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}
	if email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email is required")
	}
	// the relay quarantines rows with bad addresses, so reject them up front
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email is invalid")
	}

	var created *models.User
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.userRepoFactory(tx)

		if _, err := repo.FindByEmail(ctx, email); err == nil {
			return pkgerrors.New(pkgerrors.CodeConflict, "email already registered")
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check user email")
		}

		user, err := repo.Create(ctx, CreateUserDTO{Name: name, Email: email})
		if err != nil {
			// concurrent insert can still trip the unique index
			if db.IsUniqueViolation(err, emailUniqueConstraint) {
				return pkgerrors.New(pkgerrors.CodeConflict, "email already registered")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create user")
		}

		event := payloads.NewUserCreatedEvent(user.ID, user.Name, user.Email)
		if err := s.emitter.Emit(ctx, tx, outbox.Message{
			EventType:   enums.EventUserCreated,
			AggregateID: user.ID,
			Data:        event,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "queue welcome notification")
		}

		created = user
		return nil
	})
	if err != nil {
		if appErr := pkgerrors.As(err); appErr != nil {
			return nil, appErr
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "register user")
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"user_id": created.ID.String(),
			"email":   created.Email,
		})
		s.logg.Info(logCtx, "user registered")
	}

	return FromModel(created), nil
}

// GetByID returns the stored user or CodeNotFound.
// List returns registered users, newest first.
func (s *service) List(ctx context.Context, limit, offset int) ([]UserDTO, error) {
	repo := s.userRepoFactory(s.base)
	rows, err := repo.List(ctx, limit, offset)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list users")
	}
	dtos := make([]UserDTO, 0, len(rows))
	for i := range rows {
		dtos = append(dtos, *FromModel(&rows[i]))
	}
	return dtos, nil
}

func (s *service) GetByID(ctx context.Context, id uuid.UUID) (*UserDTO, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	repo := s.userRepoFactory(s.base)
	user, err := repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load user")
	}
	return FromModel(user), nil
}
