package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pribylovaa/go-auth-core/internal/service"
)

// errUsage - неверные аргументы команды.
var errUsage = errors.New("invalid usage")

func (a *app) run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Fprint(a.out, usage)
		return errUsage
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "migrate":
		if err := a.migrate(ctx); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		fmt.Fprintln(a.out, "migrations applied")
		return nil
	case "create-user":
		return a.createUser(ctx, rest)
	case "verify-email":
		return a.verifyEmail(ctx, rest)
	case "revoke-sessions":
		return a.revokeSessions(ctx, rest)
	case "unlock":
		return a.unlock(ctx, rest)
	case "audit":
		return a.audit(ctx, rest)
	case "help", "-h", "--help":
		fmt.Fprint(a.out, usage)
		return nil
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func (a *app) withService(ctx context.Context, fn func(svc *service.Service) error) error {
	svc, closeFn, err := a.openService(ctx)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer closeFn()

	return fn(svc)
}

func (a *app) createUser(ctx context.Context, args []string) error {
	fs := newFlagSet("create-user")
	email := fs.String("email", "", "user email")
	verified := fs.Bool("verified", false, "mark email as verified")
	if err := fs.Parse(args); err != nil || *email == "" {
		return fmt.Errorf("%w: create-user -email E [-verified]", errUsage)
	}

	password := a.getenv(passwordEnv)
	if password == "" {
		pw, err := a.readPassword()
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}
		password = string(pw)
	}

	return a.withService(ctx, func(svc *service.Service) error {
		id, err := svc.RegisterUser(ctx, *email, password)
		if err != nil {
			return err
		}

		if *verified {
			if err := svc.MarkEmailVerified(ctx, id); err != nil {
				return err
			}
		}

		fmt.Fprintf(a.out, "created user %s\n", id)
		return nil
	})
}

func (a *app) verifyEmail(ctx context.Context, args []string) error {
	fs := newFlagSet("verify-email")
	email := fs.String("email", "", "user email")
	if err := fs.Parse(args); err != nil || *email == "" {
		return fmt.Errorf("%w: verify-email -email E", errUsage)
	}

	return a.withService(ctx, func(svc *service.Service) error {
		id, err := svc.MarkEmailVerifiedByEmail(ctx, *email)
		if err != nil {
			return err
		}

		fmt.Fprintf(a.out, "email verified for %s\n", id)
		return nil
	})
}

func (a *app) revokeSessions(ctx context.Context, args []string) error {
	fs := newFlagSet("revoke-sessions")
	email := fs.String("email", "", "user email")
	rawID := fs.String("user-id", "", "user id")
	if err := fs.Parse(args); err != nil || (*email == "") == (*rawID == "") {
		return fmt.Errorf("%w: revoke-sessions -email E | -user-id ID", errUsage)
	}

	return a.withService(ctx, func(svc *service.Service) error {
		id, err := resolveUser(ctx, svc, *email, *rawID)
		if err != nil {
			return err
		}

		version, err := svc.RevokeUserSessions(ctx, id)
		if err != nil {
			return err
		}

		fmt.Fprintf(a.out, "sessions revoked for %s, token_version=%d\n", id, version)
		return nil
	})
}

func (a *app) unlock(ctx context.Context, args []string) error {
	fs := newFlagSet("unlock")
	email := fs.String("email", "", "user email")
	if err := fs.Parse(args); err != nil || *email == "" {
		return fmt.Errorf("%w: unlock -email E", errUsage)
	}

	return a.withService(ctx, func(svc *service.Service) error {
		if err := svc.Unlock(ctx, *email); err != nil {
			return err
		}

		fmt.Fprintf(a.out, "unlocked %s\n", strings.ToLower(strings.TrimSpace(*email)))
		return nil
	})
}

func (a *app) audit(ctx context.Context, args []string) error {
	fs := newFlagSet("audit")
	email := fs.String("email", "", "user email")
	rawID := fs.String("user-id", "", "user id")
	limit := fs.Int("limit", 20, "max events")
	if err := fs.Parse(args); err != nil || (*email == "") == (*rawID == "") {
		return fmt.Errorf("%w: audit -email E | -user-id ID [-limit N]", errUsage)
	}

	var id uuid.UUID
	err := a.withService(ctx, func(svc *service.Service) error {
		var err error
		id, err = resolveUser(ctx, svc, *email, *rawID)
		return err
	})
	if err != nil {
		return err
	}

	lister, closeFn, err := a.openAudit(ctx)
	if err != nil {
		return fmt.Errorf("open audit: %w", err)
	}
	defer closeFn()

	evs, err := lister.List(ctx, id, *limit)
	if err != nil {
		return err
	}

	for _, ev := range evs {
		fmt.Fprintf(a.out, "%s  %-24s source=%s reason=%s\n",
			ev.OccurredAt.UTC().Format(time.RFC3339), ev.Type, orDash(ev.Source), orDash(ev.Reason))
	}
	if len(evs) == 0 {
		fmt.Fprintln(a.out, "no events")
	}

	return nil
}

// resolveUser находит пользователя по email либо разбирает переданный id.
func resolveUser(ctx context.Context, svc *service.Service, email, rawID string) (uuid.UUID, error) {
	if rawID != "" {
		id, err := uuid.Parse(rawID)
		if err != nil {
			return uuid.Nil, fmt.Errorf("%w: bad user id", errUsage)
		}
		return id, nil
	}

	user, err := svc.UserByEmail(ctx, email)
	if err != nil {
		return uuid.Nil, err
	}

	return user.ID, nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
